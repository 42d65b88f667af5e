package query

import (
	"context"
	"sync"
)

// Cell holds a single latest value. One goroutine publishes; any number of
// readers either Load it or Subscribe to it. Subscribers are conflating: a
// slow reader skips intermediate values but always ends on the newest one.
type Cell[T any] struct {
	mu     sync.Mutex
	value  T
	subs   map[uint64]chan T
	nextID uint64
	closed bool
	done   chan struct{}
}

// NewCell creates a cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		subs:  make(map[uint64]chan T),
		done:  make(chan struct{}),
	}
}

// Load returns the current value.
func (c *Cell[T]) Load() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Publish replaces the value and hands it to every subscriber,
// replacing any value a subscriber has not received yet.
func (c *Cell[T]) Publish(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = v
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Subscribe returns a channel that yields the current value immediately and
// then every later one. The channel is closed when ctx ends or the cell closes.
func (c *Cell[T]) Subscribe(ctx context.Context) <-chan T {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan T, 1)
	if c.closed {
		close(ch)
		return ch
	}

	ch <- c.value
	id := c.nextID
	c.nextID++
	c.subs[id] = ch

	go func() {
		select {
		case <-ctx.Done():
			c.unsubscribe(id)
		case <-c.done:
		}
	}()
	return ch
}

func (c *Cell[T]) unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions
func (c *Cell[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close ends every subscription. The last value stays readable through Load.
func (c *Cell[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
