package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bastiangx/cityserve/internal/logger"
	"github.com/bastiangx/cityserve/internal/utils"
	"github.com/bastiangx/cityserve/pkg/config"
	"github.com/bastiangx/cityserve/pkg/group"
	"github.com/bastiangx/cityserve/pkg/location"
	"github.com/bastiangx/cityserve/pkg/navigate"
	"github.com/bastiangx/cityserve/pkg/query"
	"github.com/bastiangx/cityserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
)

// Controller is the part of *query.Controller the server drives.
type Controller interface {
	SetQuery(text string)
	Select(record location.Record)
	Load()
	State() query.State
	Subscribe(ctx context.Context) <-chan query.State
	Events() *query.EventQueue
	Lookup(id int64) (location.Record, error)
	Keys(prefix string, limit int) ([]string, error)
	Index() suggest.Searcher
}

// Server handles the IPC for city search
type Server struct {
	ctrl   Controller
	config *config.Config
	reader io.Reader
	logger *log.Logger

	mu     sync.Mutex
	writer *bufio.Writer
	enc    *msgpack.Encoder
}

// NewServer creates a server using stdin/stdout for IPC.
func NewServer(ctrl Controller, cfg *config.Config) *Server {
	return NewServerWithIO(ctrl, cfg, os.Stdin, os.Stdout)
}

// NewServerWithIO creates a server reading requests from r and writing
// messages to w.
func NewServerWithIO(ctrl Controller, cfg *config.Config, r io.Reader, w io.Writer) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	bw := bufio.NewWriter(w)
	enc := msgpack.NewEncoder(bw)
	enc.UseCompactInts(true)
	return &Server{
		ctrl:   ctrl,
		config: cfg,
		reader: r,
		logger: logger.New("server"),
		writer: bw,
		enc:    enc,
	}
}

// Run serves until the input ends or ctx is cancelled. State and event
// forwarding run alongside the request loop.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Debug("Starting server")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.forwardStates(gctx) })
	g.Go(func() error { return s.forwardEvents(gctx) })
	g.Go(func() error {
		defer cancel()
		return s.readLoop(gctx)
	})
	return g.Wait()
}

type decoded struct {
	req Request
	err error
}

func (s *Server) readLoop(ctx context.Context) error {
	// a blocked read cannot be interrupted, so decoding runs on its own
	// goroutine and ends when the input does
	in := make(chan decoded)
	go func() {
		defer close(in)
		dec := msgpack.NewDecoder(bufio.NewReader(s.reader))
		for {
			var d decoded
			d.err = dec.Decode(&d.req)
			select {
			case in <- d:
			case <-ctx.Done():
				return
			}
			if d.err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-in:
			if !ok {
				return nil
			}
			if d.err != nil {
				if errors.Is(d.err, io.EOF) || errors.Is(d.err, io.ErrUnexpectedEOF) {
					s.logger.Debug("Input closed")
					return nil
				}
				s.logger.Errorf("Decoding request: %v", d.err)
				s.sendError("", "invalid request", 400)
				return fmt.Errorf("decoding request: %w", d.err)
			}
			s.handleRequest(d.req)
		}
	}
}

func (s *Server) forwardStates(ctx context.Context) error {
	for st := range s.ctrl.Subscribe(ctx) {
		s.send(s.stateMessage(st, ""))
	}
	return nil
}

func (s *Server) forwardEvents(ctx context.Context) error {
	events := s.ctrl.Events()
	for {
		e, ok := events.Next(ctx)
		if !ok {
			return nil
		}
		s.send(eventMessage(e))
	}
}

func (s *Server) handleRequest(req Request) {
	s.logger.Debug("Request", "id", req.ID, "op", req.Op)
	switch req.Op {
	case "query":
		s.handleQuery(req)
	case "select":
		s.handleSelect(req)
	case "keys":
		s.handleKeys(req)
	case "near":
		s.handleNear(req)
	case "state":
		s.send(s.stateMessage(s.ctrl.State(), req.ID))
	case "load":
		s.ctrl.Load()
		s.send(AckMessage{Kind: KindAck, ID: req.ID, Op: req.Op})
	default:
		s.sendError(req.ID, fmt.Sprintf("unknown op: %q", req.Op), 400)
	}
}

// validQuery reports why text cannot be used as a query, or "" when it can.
func (s *Server) validQuery(text string) string {
	if !utf8.ValidString(text) {
		return "query is not valid UTF-8"
	}
	if utils.ContainsControlChars(text) {
		return "query contains control characters"
	}
	if n := utf8.RuneCountInString(text); n > s.config.Server.MaxPrefix {
		return fmt.Sprintf("query exceeds maximum length of %d characters", s.config.Server.MaxPrefix)
	}
	return ""
}

func (s *Server) handleQuery(req Request) {
	if reason := s.validQuery(req.Query); reason != "" {
		s.sendError(req.ID, reason, 400)
		return
	}
	s.ctrl.SetQuery(req.Query)
	s.send(AckMessage{Kind: KindAck, ID: req.ID, Op: req.Op})
}

func (s *Server) lookup(req Request) (location.Record, bool) {
	r, err := s.ctrl.Lookup(req.RecordID)
	switch {
	case errors.Is(err, query.ErrNotReady):
		s.sendError(req.ID, "index not ready", 503)
		return r, false
	case err != nil:
		s.sendError(req.ID, fmt.Sprintf("unknown record: %d", req.RecordID), 404)
		return r, false
	}
	return r, true
}

func (s *Server) handleSelect(req Request) {
	r, ok := s.lookup(req)
	if !ok {
		return
	}
	s.ctrl.Select(r)
	s.send(AckMessage{Kind: KindAck, ID: req.ID, Op: req.Op})
}

func (s *Server) handleKeys(req Request) {
	if reason := s.validQuery(req.Query); reason != "" {
		s.sendError(req.ID, reason, 400)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.config.Search.KeyLimit
	}

	start := time.Now()
	keys, err := s.ctrl.Keys(req.Query, limit)
	if err != nil {
		s.sendError(req.ID, "index not ready", 503)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	s.send(KeysResponse{
		Kind:      KindKeys,
		ID:        req.ID,
		Keys:      keys,
		Count:     len(keys),
		TimeTaken: time.Since(start).Microseconds(),
	})
}

func (s *Server) handleNear(req Request) {
	origin, ok := s.lookup(req)
	if !ok {
		return
	}
	all, ok := s.ctrl.Index().(interface{ All() []location.Record })
	if !ok {
		s.sendError(req.ID, "index cannot list records", 500)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.config.Search.KeyLimit
	}

	near := navigate.Nearest(all.All(), origin.Coord, limit, origin.ID)
	resp := NearResponse{Kind: KindNear, ID: req.ID, Cities: make([]NearbyCity, len(near))}
	for i, n := range near {
		resp.Cities[i] = NearbyCity{City: cityMessage(n.Record), DistanceKm: n.DistanceKm}
	}
	s.send(resp)
}

func cityMessage(r location.Record) CityMessage {
	return CityMessage{ID: r.ID, Name: r.Name, Country: r.Country, Lon: r.Coord.Lon, Lat: r.Coord.Lat}
}

// stateMessage flattens a state for the wire, capping the number of cities
// at max_results when it is set.
func (s *Server) stateMessage(st query.State, id string) StateMessage {
	msg := StateMessage{
		Kind:   KindState,
		ID:     id,
		Phase:  st.Phase.String(),
		Query:  st.Query,
		Groups: make([]GroupMessage, 0, len(st.Groups)),
		Error:  st.Err,
	}

	budget := s.config.Server.MaxResults
	for _, b := range st.Groups {
		records := b.Records
		if budget > 0 {
			left := budget - msg.Count
			if left <= 0 {
				msg.Truncated = true
				break
			}
			if len(records) > left {
				records = records[:left]
				msg.Truncated = true
			}
		}
		gm := GroupMessage{Header: headerOf(b), Cities: make([]CityMessage, len(records))}
		for i, r := range records {
			gm.Cities[i] = cityMessage(r)
		}
		msg.Groups = append(msg.Groups, gm)
		msg.Count += len(records)
	}
	return msg
}

func headerOf(b group.Bucket) string {
	return string(b.Key)
}

func eventMessage(e query.Event) EventMessage {
	msg := EventMessage{Kind: KindEvent, Event: e.Kind.String()}
	if e.Kind == query.EventOpenLocation {
		city := cityMessage(e.Record)
		msg.City = &city
		msg.URL = navigate.GoogleMapsURL(e.Coord)
		msg.GeoURI = navigate.GeoURI(e.Coord, e.Record.DisplayName())
	}
	return msg
}

// send encodes one message and flushes it. Writes from the request loop and
// the forwarders are serialized here.
func (s *Server) send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		s.logger.Errorf("Encoding response: %v", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.logger.Errorf("Writing response: %v", err)
	}
}

func (s *Server) sendError(id, message string, code int) {
	s.send(ErrorMessage{Kind: KindError, ID: id, Error: message, Code: code})
}
