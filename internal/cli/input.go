// Package cli is a line-based front end over the query pipeline, for
// debugging and trying datasets out by hand.
package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bastiangx/cityserve/pkg/location"
	"github.com/bastiangx/cityserve/pkg/navigate"
	"github.com/bastiangx/cityserve/pkg/query"
	"github.com/bastiangx/cityserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const nearbyCount = 5

// Controller is the part of *query.Controller the CLI drives.
type Controller interface {
	SetQuery(text string)
	Select(record location.Record)
	Lookup(id int64) (location.Record, error)
	Subscribe(ctx context.Context) <-chan query.State
	Events() *query.EventQueue
	Index() suggest.Searcher
}

// InputHandler reads one query per line and prints the results as they are
// published. Lines starting with ':' are commands:
//
//	:open <id>       open a city on the map
//	:near <id> [n]   list the n closest cities (5 by default)
//	:quit            exit
type InputHandler struct {
	ctrl      Controller
	in        io.Reader
	render    *Renderer
	maxLength int
}

// NewInputHandler creates a handler on stdin/stdout.
func NewInputHandler(ctrl Controller, maxLength, maxRows int) *InputHandler {
	return NewInputHandlerWithIO(ctrl, os.Stdin, os.Stdout, maxLength, maxRows)
}

// NewInputHandlerWithIO creates a handler reading from in and printing to out.
func NewInputHandlerWithIO(ctrl Controller, in io.Reader, out io.Writer, maxLength, maxRows int) *InputHandler {
	return &InputHandler{
		ctrl:      ctrl,
		in:        in,
		render:    NewRenderer(out, maxRows),
		maxLength: maxLength,
	}
}

// Start runs the input loop until the input ends, :quit is entered or ctx
// is cancelled.
func (h *InputHandler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Print("CityServe CLI")
	log.Print("type a city prefix and press Enter (:open <id>, :near <id> [n], :quit)")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.printStates(gctx)
		return nil
	})
	g.Go(func() error {
		h.printEvents(gctx)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return h.readLoop(gctx)
	})
	return g.Wait()
}

func (h *InputHandler) printStates(ctx context.Context) {
	var last query.State
	first := true
	for st := range h.ctrl.Subscribe(ctx) {
		if !first && sameResult(st, last) {
			continue
		}
		first = false
		last = st
		h.render.State(st)
	}
}

func (h *InputHandler) printEvents(ctx context.Context) {
	events := h.ctrl.Events()
	for {
		e, ok := events.Next(ctx)
		if !ok {
			return
		}
		h.render.Event(e)
	}
}

func (h *InputHandler) readLoop(ctx context.Context) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(h.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errs:
					return err
				default:
					return nil
				}
			}
			if !h.handleInput(strings.TrimRight(line, "\r")) {
				return nil
			}
		}
	}
}

// handleInput processes one line. It returns false when the user asked to quit.
func (h *InputHandler) handleInput(line string) bool {
	if cmd, args, ok := parseCommand(line); ok {
		switch cmd {
		case "quit", "q":
			return false
		case "open":
			if rec, ok := h.lookup(argAt(args, 0)); ok {
				h.ctrl.Select(rec)
			}
		case "near":
			if rec, ok := h.lookup(argAt(args, 0)); ok {
				h.nearby(rec, nearCount(argAt(args, 1)))
			}
		default:
			h.render.Errorf("Unknown command: :%s", cmd)
		}
		return true
	}

	if n := utf8.RuneCountInString(line); h.maxLength > 0 && n > h.maxLength {
		h.render.Errorf("Query too long: %d characters (max %d)", n, h.maxLength)
		return true
	}
	log.Debug("Query", "text", line)
	h.ctrl.SetQuery(line)
	return true
}

func parseCommand(line string) (cmd string, args []string, ok bool) {
	if !strings.HasPrefix(line, ":") {
		return "", nil, false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// nearCount parses the optional row count of :near, falling back to
// nearbyCount when it is missing or not positive.
func nearCount(arg string) int {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return nearbyCount
	}
	return n
}

func (h *InputHandler) lookup(arg string) (location.Record, bool) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		h.render.Errorf("Not a city id: %q", arg)
		return location.Record{}, false
	}
	rec, err := h.ctrl.Lookup(id)
	if err != nil {
		h.render.Errorf("Cannot open %d: %v", id, err)
		return location.Record{}, false
	}
	return rec, true
}

func (h *InputHandler) nearby(origin location.Record, n int) {
	lister, ok := h.ctrl.Index().(interface{ All() []location.Record })
	if !ok {
		h.render.Errorf("Index cannot list cities")
		return
	}
	h.render.Nearby(origin, navigate.Nearest(lister.All(), origin.Coord, n, origin.ID))
}
