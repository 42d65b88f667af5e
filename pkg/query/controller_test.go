package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bastiangx/cityserve/pkg/group"
	"github.com/bastiangx/cityserve/pkg/location"
	"github.com/bastiangx/cityserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

var cities = []location.Record{
	{ID: 1, Name: "Alabama", Country: "US", Coord: location.Coordinates{Lon: -86.7, Lat: 32.8}},
	{ID: 2, Name: "Albuquerque", Country: "US", Coord: location.Coordinates{Lon: -106.6, Lat: 35.1}},
	{ID: 3, Name: "Anaheim", Country: "US", Coord: location.Coordinates{Lon: -117.9, Lat: 33.8}},
	{ID: 4, Name: "Arizona", Country: "US", Coord: location.Coordinates{Lon: -111.5, Lat: 34.5}},
	{ID: 5, Name: "Sydney", Country: "AU", Coord: location.Coordinates{Lon: 151.2, Lat: -33.9}},
}

func staticLoader(records []location.Record) Loader {
	return LoaderFunc(func(context.Context) ([]location.Record, error) {
		return records, nil
	})
}

// recordingIndex wraps a real index, logging each search and optionally
// blocking or panicking on chosen prefixes.
type recordingIndex struct {
	*suggest.Index

	mu      sync.Mutex
	queries []string
	at      []time.Time
	gates   map[string]chan struct{}
	started chan string
	panicOn string
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 64),
	}
}

func (r *recordingIndex) builder() suggest.Builder {
	return func(records []location.Record) suggest.Searcher {
		r.Index = suggest.Build(records)
		return r
	}
}

func (r *recordingIndex) gate(prefix string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := make(chan struct{})
	r.gates[prefix] = g
	return g
}

func (r *recordingIndex) Search(prefix string) []location.Record {
	r.mu.Lock()
	r.queries = append(r.queries, prefix)
	r.at = append(r.at, time.Now())
	g := r.gates[prefix]
	panicOn := r.panicOn
	r.mu.Unlock()

	r.started <- prefix
	if g != nil {
		<-g
	}
	if panicOn != "" && prefix == panicOn {
		panic("index corrupted")
	}
	return r.Index.Search(prefix)
}

func (r *recordingIndex) searched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

func (r *recordingIndex) times() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.at...)
}

func displayNames(g group.Groups) []string {
	var out []string
	for _, r := range g.Flatten() {
		out = append(out, r.DisplayName())
	}
	return out
}

func startController(t *testing.T, loader Loader, opts ...Option) *Controller {
	t.Helper()
	c := New(loader, opts...)
	c.Start(context.Background())
	t.Cleanup(c.Close)
	return c
}

func waitReady(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Ready():
	case <-time.After(waitFor):
		t.Fatal("index never became ready")
	}
	require.Eventually(t, func() bool { return c.State().Phase == PhaseReady }, waitFor, tick)
}

func TestInitialState(t *testing.T) {
	c := New(staticLoader(cities))
	defer c.Close()

	s := c.State()
	assert.Equal(t, PhaseLoading, s.Phase)
	assert.Empty(t, s.Query)
	assert.Nil(t, s.Groups)
	assert.Empty(t, s.Err)
	assert.Nil(t, c.Index())
}

func TestLoadPublishesAllGroups(t *testing.T) {
	c := startController(t, staticLoader(cities))
	waitReady(t, c)

	s := c.State()
	assert.Equal(t, []rune{'A', 'S'}, s.Groups.Keys())
	assert.Equal(t, 5, s.Groups.Len())
	assert.Empty(t, s.Err)
	assert.NotNil(t, c.Index())
}

func TestLoadFailurePublishesGenericError(t *testing.T) {
	var calls atomic.Int32
	loader := LoaderFunc(func(context.Context) ([]location.Record, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("open data/cities.json: no such file or directory")
		}
		return cities, nil
	})

	c := startController(t, loader, WithDebounce(10*time.Millisecond))
	require.Eventually(t, func() bool { return c.State().Phase == PhaseError }, waitFor, tick)
	assert.Equal(t, GenericErrorMessage, c.State().Err)

	_, err := c.Keys("a", 5)
	assert.ErrorIs(t, err, ErrNotReady)

	// still usable: the query is answered empty now and rerun after the retry
	c.SetQuery("syd")
	require.Eventually(t, func() bool { return c.State().Query == "syd" }, waitFor, tick)

	c.Load()
	waitReady(t, c)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Sydney, AU"}, displayNames(c.State().Groups))
	}, waitFor, tick)
	assert.Empty(t, c.State().Err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestQueryAfterLoadFailure(t *testing.T) {
	loader := LoaderFunc(func(context.Context) ([]location.Record, error) {
		return nil, errors.New("dataset unreadable")
	})
	c := startController(t, loader, WithDebounce(10*time.Millisecond))
	require.Eventually(t, func() bool { return c.State().Phase == PhaseError }, waitFor, tick)

	c.SetQuery("al")

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	e, ok := c.Events().Next(ctx)
	require.True(t, ok)
	assert.Equal(t, EventScrollToTop, e.Kind)

	require.Eventually(t, func() bool { return c.State().Phase == PhaseReady }, waitFor, tick)
	s := c.State()
	assert.Equal(t, "al", s.Query)
	assert.Empty(t, s.Groups)
	assert.Empty(t, s.Err)
	assert.Nil(t, c.Index())

	// each further edit is answered too
	c.SetQuery("alb")
	e, ok = c.Events().Next(ctx)
	require.True(t, ok)
	assert.Equal(t, EventScrollToTop, e.Kind)
	require.Eventually(t, func() bool { return c.State().Query == "alb" }, waitFor, tick)
}

func TestLoaderPanicBecomesError(t *testing.T) {
	loader := LoaderFunc(func(context.Context) ([]location.Record, error) {
		panic("bad dataset")
	})
	c := startController(t, loader)
	require.Eventually(t, func() bool { return c.State().Phase == PhaseError }, waitFor, tick)
	assert.Equal(t, GenericErrorMessage, c.State().Err)
}

func TestLoadIgnoredOnceBuilt(t *testing.T) {
	var calls atomic.Int32
	loader := LoaderFunc(func(context.Context) ([]location.Record, error) {
		calls.Add(1)
		return cities, nil
	})
	c := startController(t, loader)
	waitReady(t, c)

	c.Load()
	c.Load()
	c.SetQuery("a")
	require.Eventually(t, func() bool { return c.State().Query == "a" }, waitFor, tick)
	assert.EqualValues(t, 1, calls.Load())
}

func TestDebounceRunsOnlyLastQuery(t *testing.T) {
	ri := newRecordingIndex()
	c := startController(t, staticLoader(cities), WithBuilder(ri.builder()))
	waitReady(t, c)

	c.SetQuery("a")
	c.SetQuery("al")
	lastEdit := time.Now()
	c.SetQuery("alb")

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Albuquerque, US"}, displayNames(c.State().Groups))
	}, waitFor, tick)

	// allow a stray search to surface if one was scheduled
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"alb"}, ri.searched())
	assert.GreaterOrEqual(t, ri.times()[0].Sub(lastEdit), DefaultDebounce)
	assert.Equal(t, "alb", c.State().Query)
}

func TestQueryPublishedBeforeSearch(t *testing.T) {
	ri := newRecordingIndex()
	c := startController(t, staticLoader(cities), WithBuilder(ri.builder()), WithDebounce(time.Hour))
	waitReady(t, c)

	c.SetQuery("Syd")
	require.Eventually(t, func() bool { return c.State().Query == "Syd" }, waitFor, tick)
	assert.Empty(t, ri.searched())
	assert.Equal(t, 5, c.State().Groups.Len())
}

func TestDuplicateQueryIgnored(t *testing.T) {
	ri := newRecordingIndex()
	c := startController(t, staticLoader(cities), WithBuilder(ri.builder()), WithDebounce(20*time.Millisecond))
	waitReady(t, c)

	c.SetQuery("an")
	require.Eventually(t, func() bool { return len(ri.searched()) == 1 }, waitFor, tick)

	c.SetQuery("an")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"an"}, ri.searched())
	assert.Equal(t, []string{"Anaheim, US"}, displayNames(c.State().Groups))
}

func TestEmptyQuerySearchesEverything(t *testing.T) {
	ri := newRecordingIndex()
	c := startController(t, staticLoader(cities), WithBuilder(ri.builder()), WithDebounce(10*time.Millisecond))
	waitReady(t, c)

	c.SetQuery("syd")
	require.Eventually(t, func() bool { return c.State().Groups.Len() == 1 }, waitFor, tick)

	c.SetQuery("")
	require.Eventually(t, func() bool { return c.State().Groups.Len() == 5 }, waitFor, tick)
	assert.Equal(t, []string{"syd", ""}, ri.searched())
	assert.Equal(t, []rune{'A', 'S'}, c.State().Groups.Keys())
}

func TestNoMatchesPublishesEmptyGroups(t *testing.T) {
	c := startController(t, staticLoader(cities), WithDebounce(10*time.Millisecond))
	waitReady(t, c)

	c.SetQuery("zz")
	require.Eventually(t, func() bool { return c.State().Groups.Len() == 0 }, waitFor, tick)
	s := c.State()
	assert.Equal(t, PhaseReady, s.Phase)
	assert.Empty(t, s.Err)
}

func TestNewSearchCancelsInFlight(t *testing.T) {
	ri := newRecordingIndex()
	slow := ri.gate("al")
	c := startController(t, staticLoader(cities), WithBuilder(ri.builder()), WithDebounce(10*time.Millisecond))
	waitReady(t, c)

	c.SetQuery("al")
	select {
	case p := <-ri.started:
		require.Equal(t, "al", p)
	case <-time.After(waitFor):
		t.Fatal("search for al never started")
	}

	c.SetQuery("alb")
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Albuquerque, US"}, displayNames(c.State().Groups))
	}, waitFor, tick)

	close(slow)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"Albuquerque, US"}, displayNames(c.State().Groups))
	assert.Equal(t, "alb", c.State().Query)
}

func TestSearchPanicBecomesErrorAndRecovers(t *testing.T) {
	ri := newRecordingIndex()
	ri.panicOn = "boom"
	c := startController(t, staticLoader(cities), WithBuilder(ri.builder()), WithDebounce(10*time.Millisecond))
	waitReady(t, c)

	c.SetQuery("syd")
	require.Eventually(t, func() bool { return c.State().Groups.Len() == 1 }, waitFor, tick)

	c.SetQuery("boom")
	require.Eventually(t, func() bool { return c.State().Phase == PhaseError }, waitFor, tick)
	s := c.State()
	assert.Equal(t, GenericErrorMessage, s.Err)
	// last good groups survive the failure
	assert.Equal(t, []string{"Sydney, AU"}, displayNames(s.Groups))

	c.SetQuery("ana")
	require.Eventually(t, func() bool { return c.State().Phase == PhaseReady }, waitFor, tick)
	assert.Equal(t, []string{"Anaheim, US"}, displayNames(c.State().Groups))
	assert.Empty(t, c.State().Err)
}

func TestSearchBeforeReadyIsParked(t *testing.T) {
	release := make(chan struct{})
	loader := LoaderFunc(func(ctx context.Context) ([]location.Record, error) {
		select {
		case <-release:
			return cities, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	ri := newRecordingIndex()
	c := startController(t, loader, WithBuilder(ri.builder()), WithDebounce(10*time.Millisecond))

	c.SetQuery("syd")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, PhaseLoading, c.State().Phase)
	assert.Equal(t, "syd", c.State().Query)

	close(release)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Sydney, AU"}, displayNames(c.State().Groups))
	}, waitFor, tick)
	assert.Equal(t, []string{"syd"}, ri.searched())
}

func TestSearchEmitsScrollToTop(t *testing.T) {
	c := startController(t, staticLoader(cities), WithDebounce(10*time.Millisecond))
	waitReady(t, c)
	assert.Empty(t, c.Events().Drain())

	c.SetQuery("a")
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	e, ok := c.Events().Next(ctx)
	require.True(t, ok)
	assert.Equal(t, EventScrollToTop, e.Kind)
}

func TestSelectEmitsOpenLocation(t *testing.T) {
	c := startController(t, staticLoader(cities))
	waitReady(t, c)
	before := c.State()

	c.Select(cities[4])

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	e, ok := c.Events().Next(ctx)
	require.True(t, ok)
	assert.Equal(t, EventOpenLocation, e.Kind)
	assert.Equal(t, cities[4], e.Record)
	assert.Equal(t, location.Coordinates{Lon: 151.2, Lat: -33.9}, e.Coord)
	assert.Equal(t, before, c.State())

	// consumed once
	assert.Empty(t, c.Events().Drain())
}

func TestLookupAndKeys(t *testing.T) {
	c := startController(t, staticLoader(cities))
	_, err := c.Lookup(1)
	if err != nil {
		assert.ErrorIs(t, err, ErrNotReady)
	}
	waitReady(t, c)

	r, err := c.Lookup(5)
	require.NoError(t, err)
	assert.Equal(t, "Sydney", r.Name)

	_, err = c.Lookup(99)
	assert.ErrorIs(t, err, ErrUnknownRecord)

	keys, err := c.Keys("a", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"alabama, us", "albuquerque, us"}, keys)
}

func TestLookupBeforeLoad(t *testing.T) {
	c := New(staticLoader(cities))
	defer c.Close()

	_, err := c.Lookup(1)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = c.Keys("a", 1)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestCachedBuilderThroughController(t *testing.T) {
	c := startController(t, staticLoader(cities), WithBuilder(suggest.CachedBuilder(8)), WithDebounce(10*time.Millisecond))
	waitReady(t, c)

	c.SetQuery("AL")
	require.Eventually(t, func() bool { return c.State().Groups.Len() == 2 }, waitFor, tick)

	r, err := c.Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, "Albuquerque", r.Name)
}

func TestSubscribeSeesProgression(t *testing.T) {
	c := New(staticLoader(cities), WithDebounce(10*time.Millisecond))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	states := c.Subscribe(ctx)
	first := <-states
	assert.Equal(t, PhaseLoading, first.Phase)

	c.Start(ctx)
	for s := range states {
		if s.Phase == PhaseReady {
			assert.Equal(t, 5, s.Groups.Len())
			return
		}
	}
	t.Fatal("never saw ready state")
}

func TestCloseEndsSubscriptions(t *testing.T) {
	c := New(staticLoader(cities))
	c.Start(context.Background())
	states := c.Subscribe(context.Background())

	c.Close()
	c.Close()

	for range states {
	}
	_, ok := c.Events().Next(context.Background())
	assert.False(t, ok)

	// intents after close are dropped without blocking
	c.SetQuery("x")
	c.Load()
	c.Select(cities[0])
}

func TestCloseWithoutStart(t *testing.T) {
	c := New(staticLoader(cities))
	c.Close()
	c.Wait()
	c.Start(context.Background())
	_, ok := <-c.Subscribe(context.Background())
	assert.False(t, ok)
}

func TestParentContextStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(staticLoader(cities))
	c.Start(ctx)
	waitReady(t, c)

	cancel()
	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("loop did not stop with its context")
	}
	c.Close()
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "loading", PhaseLoading.String())
	assert.Equal(t, "ready", PhaseReady.String())
	assert.Equal(t, "error", PhaseError.String())
	assert.Equal(t, "unknown", Phase(7).String())
}
