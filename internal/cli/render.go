package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/bastiangx/cityserve/pkg/group"
	"github.com/bastiangx/cityserve/pkg/location"
	"github.com/bastiangx/cityserve/pkg/navigate"
	"github.com/bastiangx/cityserve/pkg/query"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#286983", Dark: "#9ccfd8"})
	cityStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	mutedStyle = lipgloss.NewStyle().Faint(true)
	linkStyle  = lipgloss.NewStyle().Underline(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#907aa9", Dark: "#c4a7e7"})
	errorStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#b4637a", Dark: "#eb6f92"})
)

// Renderer prints search states and events as grouped, styled text.
// It is safe for concurrent use.
type Renderer struct {
	mu      sync.Mutex
	out     io.Writer
	maxRows int
}

// NewRenderer creates a renderer printing at most maxRows cities per state.
func NewRenderer(out io.Writer, maxRows int) *Renderer {
	return &Renderer{out: out, maxRows: maxRows}
}

func (r *Renderer) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, s)
}

// State prints one published state.
func (r *Renderer) State(st query.State) {
	switch st.Phase {
	case query.PhaseLoading:
		r.println(mutedStyle.Render("loading cities..."))
		return
	case query.PhaseError:
		r.println(errorStyle.Render(st.Err))
		return
	}

	total := st.Groups.Len()
	if total == 0 {
		r.println(mutedStyle.Render(fmt.Sprintf("No cities found for '%s'", st.Query)))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %s cities for '%s':\n", formatWithCommas(total), st.Query)
	shown := 0
	for _, bucket := range st.Groups {
		if r.maxRows > 0 && shown >= r.maxRows {
			break
		}
		b.WriteString(headerStyle.Render(string(bucket.Key)))
		b.WriteByte('\n')
		for _, rec := range bucket.Records {
			if r.maxRows > 0 && shown >= r.maxRows {
				break
			}
			b.WriteString(cityLine(rec))
			b.WriteByte('\n')
			shown++
		}
	}
	if shown < total {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("... and %s more", formatWithCommas(total-shown))))
		b.WriteByte('\n')
	}
	r.println(strings.TrimRight(b.String(), "\n"))
}

func cityLine(rec location.Record) string {
	return fmt.Sprintf("  %-10d %s %s",
		rec.ID,
		cityStyle.Render(rec.DisplayName()),
		mutedStyle.Render(fmt.Sprintf("(%s, %s)", coord(rec.Coord.Lat), coord(rec.Coord.Lon))))
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Event prints a one-shot event. Scroll events only draw a rule.
func (r *Renderer) Event(e query.Event) {
	switch e.Kind {
	case query.EventScrollToTop:
		r.println(mutedStyle.Render(strings.Repeat("─", 32)))
	case query.EventOpenLocation:
		r.println(fmt.Sprintf("Opening %s\n  %s\n  %s",
			cityStyle.Render(e.Record.DisplayName()),
			linkStyle.Render(navigate.GoogleMapsURL(e.Coord)),
			linkStyle.Render(navigate.GeoURI(e.Coord, e.Record.DisplayName()))))
	}
}

// Nearby prints the closest cities to origin.
func (r *Renderer) Nearby(origin location.Record, near []navigate.Neighbour) {
	if len(near) == 0 {
		r.println(mutedStyle.Render("No other cities in the dataset"))
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Closest to %s:", cityStyle.Render(origin.DisplayName()))
	for _, n := range near {
		fmt.Fprintf(&b, "\n%s %s", cityLine(n.Record), mutedStyle.Render(fmt.Sprintf("%.1f km", n.DistanceKm)))
	}
	r.println(b.String())
}

// Errorf prints a styled error line.
func (r *Renderer) Errorf(format string, args ...any) {
	r.println(errorStyle.Render(fmt.Sprintf(format, args...)))
}

// sameResult reports whether two states would render identically.
// Query-only updates share their Groups backing arrays with the previous state.
func sameResult(a, b query.State) bool {
	if a.Phase != b.Phase || a.Err != b.Err || len(a.Groups) != len(b.Groups) {
		return false
	}
	for i := range a.Groups {
		if !sameBucket(a.Groups[i], b.Groups[i]) {
			return false
		}
	}
	return true
}

func sameBucket(a, b group.Bucket) bool {
	if a.Key != b.Key || len(a.Records) != len(b.Records) {
		return false
	}
	return len(a.Records) == 0 || &a.Records[0] == &b.Records[0]
}

// formatWithCommas formats an integer with comma separators
func formatWithCommas(n int) string {
	str := strconv.Itoa(n)
	if n < 1000 {
		return str
	}
	var b strings.Builder
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(char)
	}
	return b.String()
}
