package query

import (
	"context"
	"sync"

	"github.com/bastiangx/cityserve/pkg/location"
)

// EventKind tells one-shot events apart.
type EventKind int

const (
	// EventScrollToTop asks the front end to reset its result view.
	EventScrollToTop EventKind = iota
	// EventOpenLocation asks the front end to open a map at Coord.
	EventOpenLocation
)

func (k EventKind) String() string {
	switch k {
	case EventScrollToTop:
		return "scroll_to_top"
	case EventOpenLocation:
		return "open_location"
	}
	return "unknown"
}

// Event is a one-shot notification. Unlike State it is consumed once and
// never replayed.
type Event struct {
	Kind   EventKind
	Record location.Record
	Coord  location.Coordinates
}

// EventQueue is an unbounded FIFO of events. Push never blocks, so the
// controller loop can emit while nobody is listening; whoever reads an event
// removes it for everyone.
type EventQueue struct {
	mu     sync.Mutex
	items  []Event
	notify chan struct{}
	done   chan struct{}
	closed bool
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends an event. Events pushed after Close are dropped.
func (q *EventQueue) Push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.signal()
}

func (q *EventQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available and removes it. It returns false
// once ctx ends, or once the queue is closed and empty.
func (q *EventQueue) Next(ctx context.Context) (Event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = Event{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return e, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Event{}, false
		}

		select {
		case <-ctx.Done():
			return Event{}, false
		case <-q.notify:
		case <-q.done:
		}
	}
}

// Drain removes and returns every queued event.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued events
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes blocked readers. Queued events can still be read.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
