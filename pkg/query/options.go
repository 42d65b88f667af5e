package query

import (
	"time"

	"github.com/bastiangx/cityserve/pkg/suggest"
	"github.com/charmbracelet/log"
)

// DefaultDebounce is the quiet period after the last query edit before a search fires.
const DefaultDebounce = 500 * time.Millisecond

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce overrides the debounce window. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithBuilder replaces the function that turns loaded records into an index.
func WithBuilder(b suggest.Builder) Option {
	return func(c *Controller) {
		if b != nil {
			c.build = b
		}
	}
}

// WithLogger sets the controller's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
