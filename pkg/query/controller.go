/*
Package query drives the search-as-you-type pipeline.

A Controller owns the prefix index and the published search state. Every
change to that state happens on one goroutine, the owner loop started by
Start; public methods only post intents to it, and the dataset load and each
prefix search run on their own goroutines and post their results back.

Query edits are debounced: the search fires once no edit has arrived for the
debounce window (500ms by default). Firing a search cancels the one in flight
and bumps a generation counter, so a late result from a superseded search is
dropped instead of overwriting newer state.

	c := query.New(dataset.NewLoader(path))
	c.Start(ctx)
	defer c.Close()

	for st := range c.Subscribe(ctx) {
		...
	}

One-shot events (scroll to top, open a location) go through an EventQueue
rather than the state cell, so a late subscriber never replays them.
*/
package query

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bastiangx/cityserve/internal/logger"
	"github.com/bastiangx/cityserve/pkg/group"
	"github.com/bastiangx/cityserve/pkg/location"
	"github.com/bastiangx/cityserve/pkg/suggest"
	"github.com/charmbracelet/log"
)

// Phase is the coarse status carried by State.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	}
	return "unknown"
}

// State is the published view of the pipeline. Groups holds the last
// successful result and is kept when a later step fails.
type State struct {
	Phase  Phase
	Query  string
	Groups group.Groups
	Err    string
}

// Loader produces the dataset, already sorted by name.
type Loader interface {
	Load(ctx context.Context) ([]location.Record, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]location.Record, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context) ([]location.Record, error) {
	return f(ctx)
}

type (
	loadIntent   struct{}
	queryIntent  struct{ text string }
	selectIntent struct{ record location.Record }

	debounceFired struct{ gen uint64 }

	loadDone struct {
		index  suggest.Searcher
		groups group.Groups
		count  int
		err    error
	}

	searchDone struct {
		gen    uint64
		query  string
		groups group.Groups
		count  int
		err    error
		took   time.Duration
	}
)

type builtIndex struct {
	searcher suggest.Searcher
}

// Controller is the single-owner state machine behind the search screen.
type Controller struct {
	loader   Loader
	build    suggest.Builder
	debounce time.Duration
	logger   *log.Logger

	state  *Cell[State]
	events *EventQueue

	inbox   chan any
	quit    chan struct{}
	stopped chan struct{}
	ready   chan struct{}
	built   atomic.Pointer[builtIndex]

	startOnce sync.Once
	closeOnce sync.Once

	// fields below belong to the owner loop
	index     suggest.Searcher
	loading   bool
	query     string
	hasQuery  bool
	timer     *time.Timer
	timerGen  uint64
	searchGen uint64
	cancel    context.CancelFunc
	pending   *string
}

// New creates a controller reading its dataset from loader. Nothing runs
// until Start is called.
func New(loader Loader, opts ...Option) *Controller {
	c := &Controller{
		loader:   loader,
		build:    suggest.DefaultBuilder,
		debounce: DefaultDebounce,
		state:    NewCell(State{Phase: PhaseLoading}),
		events:   NewEventQueue(),
		inbox:    make(chan any, 64),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.New("query")
	}
	return c
}

// Start launches the owner loop and requests the initial load.
// Calling it more than once, or after Close, does nothing.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.run(ctx)
		c.Load()
	})
}

// Close stops the owner loop, cancels background work and ends every
// subscription. It blocks until the loop has exited.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	// a controller that was never started has no loop to close stopped
	c.startOnce.Do(func() {
		c.state.Close()
		c.events.Close()
		close(c.stopped)
	})
	<-c.stopped
}

// Wait blocks until the owner loop exits.
func (c *Controller) Wait() {
	<-c.stopped
}

// Load requests the dataset load. It is ignored while a load is running or
// once the index is built; after a failed load it retries.
func (c *Controller) Load() {
	c.post(loadIntent{})
}

// SetQuery updates the query text. The text is published right away; the
// search for it runs after the debounce window.
func (c *Controller) SetQuery(text string) {
	c.post(queryIntent{text: text})
}

// Select emits an EventOpenLocation for record. State is not touched.
func (c *Controller) Select(record location.Record) {
	c.post(selectIntent{record: record})
}

// State returns the latest published state.
func (c *Controller) State() State {
	return c.state.Load()
}

// Subscribe streams published states, starting with the current one.
func (c *Controller) Subscribe(ctx context.Context) <-chan State {
	return c.state.Subscribe(ctx)
}

// Events returns the one-shot event queue.
func (c *Controller) Events() *EventQueue {
	return c.events
}

// Ready is closed once the index has been built.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Index returns the built index, or nil before the load completes.
func (c *Controller) Index() suggest.Searcher {
	if b := c.built.Load(); b != nil {
		return b.searcher
	}
	return nil
}

// Lookup finds an indexed record by id.
func (c *Controller) Lookup(id int64) (location.Record, error) {
	idx := c.Index()
	if idx == nil {
		return location.Record{}, ErrNotReady
	}
	byID, ok := idx.(interface {
		ByID(int64) (location.Record, bool)
	})
	if !ok {
		return location.Record{}, fmt.Errorf("%w: index has no id lookup", ErrUnknownRecord)
	}
	r, found := byID.ByID(id)
	if !found {
		return location.Record{}, fmt.Errorf("%w: %d", ErrUnknownRecord, id)
	}
	return r, nil
}

// Keys lists up to limit distinct display names under prefix.
func (c *Controller) Keys(prefix string, limit int) ([]string, error) {
	idx := c.Index()
	if idx == nil {
		return nil, ErrNotReady
	}
	lister, ok := idx.(interface {
		Keys(string, int) []string
	})
	if !ok {
		return nil, nil
	}
	return lister.Keys(prefix, limit), nil
}

func (c *Controller) post(msg any) {
	select {
	case c.inbox <- msg:
	case <-c.stopped:
	}
}

func (c *Controller) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer close(c.stopped)
	defer c.events.Close()
	defer c.state.Close()
	defer cancel()
	defer c.stopTimer()

	c.logger.Debug("Controller loop started", "debounce", c.debounce)
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Controller loop stopped", "reason", ctx.Err())
			return
		case <-c.quit:
			c.logger.Debug("Controller loop closed")
			return
		case msg := <-c.inbox:
			c.handle(ctx, msg)
		}
	}
}

func (c *Controller) handle(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case loadIntent:
		c.startLoad(ctx)
	case loadDone:
		c.finishLoad(ctx, m)
	case queryIntent:
		c.changeQuery(m.text)
	case debounceFired:
		c.fireSearch(ctx, m.gen)
	case searchDone:
		c.finishSearch(m)
	case selectIntent:
		c.events.Push(Event{Kind: EventOpenLocation, Record: m.record, Coord: m.record.Coord})
	default:
		c.logger.Errorf("Unknown controller message: %T", msg)
	}
}

func (c *Controller) publish(update func(*State)) {
	s := c.state.Load()
	update(&s)
	c.state.Publish(s)
}

func (c *Controller) startLoad(ctx context.Context) {
	if c.index != nil {
		c.logger.Debug("Load requested but index is already built")
		return
	}
	if c.loading {
		c.logger.Debug("Load requested while a load is running")
		return
	}

	c.loading = true
	c.publish(func(s *State) {
		s.Phase = PhaseLoading
		s.Err = ""
	})

	go func() {
		var res loadDone
		defer func() {
			if r := recover(); r != nil {
				res = loadDone{err: fmt.Errorf("%w: panic: %v", ErrLoad, r)}
			}
			c.post(res)
		}()

		start := time.Now()
		records, err := c.loader.Load(ctx)
		if err != nil {
			res.err = fmt.Errorf("%w: %w", ErrLoad, err)
			return
		}
		res.index = c.build(records)
		res.groups = group.Group(records)
		res.count = len(records)
		c.logger.Debugf("Loaded and indexed %d records in %v", len(records), time.Since(start))
	}()
}

func (c *Controller) finishLoad(ctx context.Context, m loadDone) {
	c.loading = false
	if m.err != nil {
		c.logger.Error("Dataset load failed", "err", m.err)
		c.publish(func(s *State) {
			s.Phase = PhaseError
			s.Err = GenericErrorMessage
		})
		return
	}

	c.index = m.index
	c.built.Store(&builtIndex{searcher: m.index})
	close(c.ready)

	c.publish(func(s *State) {
		s.Phase = PhaseReady
		s.Groups = m.groups
		s.Err = ""
	})
	c.logger.Info("Index ready", "records", m.count)

	if c.pending != nil {
		q := *c.pending
		c.pending = nil
		c.startSearch(ctx, q)
	}
}

func (c *Controller) changeQuery(text string) {
	if c.hasQuery && text == c.query {
		return
	}
	c.query = text
	c.hasQuery = true
	c.publish(func(s *State) { s.Query = text })

	c.stopTimer()
	c.timerGen++
	gen := c.timerGen
	c.timer = time.AfterFunc(c.debounce, func() {
		c.post(debounceFired{gen: gen})
	})
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) fireSearch(ctx context.Context, gen uint64) {
	// a timer that was replaced may still have fired
	if gen != c.timerGen {
		return
	}
	c.timer = nil

	if c.index == nil {
		q := c.query
		c.pending = &q
		if c.loading {
			c.logger.Debug("Index not ready, parking search", "query", q)
			return
		}
		// failed load and no retry running: answer against an empty index,
		// the parked query still runs if a later load succeeds
		c.logger.Debug("No index after failed load, publishing empty result", "query", q)
		c.events.Push(Event{Kind: EventScrollToTop})
		c.publish(func(s *State) {
			s.Phase = PhaseReady
			s.Groups = nil
			s.Err = ""
		})
		return
	}
	c.startSearch(ctx, c.query)
}

func (c *Controller) startSearch(ctx context.Context, q string) {
	if c.cancel != nil {
		c.cancel()
	}
	c.searchGen++
	gen := c.searchGen

	sctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.events.Push(Event{Kind: EventScrollToTop})

	go c.search(sctx, gen, c.index, q)
}

func (c *Controller) search(ctx context.Context, gen uint64, idx suggest.Searcher, q string) {
	res := searchDone{gen: gen, query: q}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("%w: panic: %v", ErrSearch, r)
		}
		if ctx.Err() != nil {
			return
		}
		res.took = time.Since(start)
		c.post(res)
	}()

	records := idx.Search(q)
	if ctx.Err() != nil {
		return
	}
	res.groups = group.Group(records)
	res.count = len(records)
}

func (c *Controller) finishSearch(m searchDone) {
	if m.gen != c.searchGen {
		c.logger.Debug("Dropping superseded search result", "query", m.query)
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if m.err != nil {
		c.logger.Error("Search failed", "query", m.query, "err", m.err)
		c.publish(func(s *State) {
			s.Phase = PhaseError
			s.Err = GenericErrorMessage
		})
		return
	}

	c.logger.Debugf("Search %q: %d records in %d groups, took %v", m.query, m.count, len(m.groups), m.took)
	c.publish(func(s *State) {
		s.Phase = PhaseReady
		s.Groups = m.groups
		s.Err = ""
	})
}
