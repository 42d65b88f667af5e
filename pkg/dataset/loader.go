// Package dataset reads the city list the index is built from.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/bastiangx/cityserve/pkg/location"
	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrUnknownFormat is returned when a file is neither JSON nor msgpack.
	ErrUnknownFormat = errors.New("unknown dataset format")
	// ErrMalformed wraps decode failures.
	ErrMalformed = errors.New("malformed dataset")
)

// checkEvery is how many records are decoded between context checks.
const checkEvery = 4096

// rawCity is one element of the source file. Keys not listed here are ignored.
type rawCity struct {
	Country string               `json:"country" msgpack:"country"`
	Name    string               `json:"name" msgpack:"name"`
	ID      int64                `json:"_id" msgpack:"_id"`
	Coord   location.Coordinates `json:"coord" msgpack:"coord"`
}

func (c rawCity) record() location.Record {
	return location.Record{ID: c.ID, Name: c.Name, Country: c.Country, Coord: c.Coord}
}

func fromRecord(r location.Record) rawCity {
	return rawCity{Country: r.Country, Name: r.Name, ID: r.ID, Coord: r.Coord}
}

// Loader reads a dataset file and returns its records sorted by name.
type Loader struct {
	path   string
	source *Source
}

// NewLoader creates a loader for path. The format is detected on each Load.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// NewLoaderWithFormat creates a loader that skips format detection.
func NewLoaderWithFormat(path string, src Source) *Loader {
	return &Loader{path: path, source: &src}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string {
	return l.path
}

// Load reads, decodes and sorts the dataset.
func (l *Loader) Load(ctx context.Context) ([]location.Record, error) {
	start := time.Now()

	src := Source{}
	if l.source != nil {
		src = *l.source
	} else {
		detected, err := DetectFormat(l.path)
		if err != nil {
			return nil, err
		}
		src = detected
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", l.path, err)
	}
	defer f.Close()

	records, err := Decode(ctx, f, src)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", l.path, err)
	}

	SortByName(records)
	log.Debugf("Loaded %d records from %s (%s, compressed=%t) in %v",
		len(records), l.path, src.Format, src.Compressed, time.Since(start))
	return records, nil
}

// Decode reads records from r in the given encoding. Order is preserved.
func Decode(ctx context.Context, r io.Reader, src Source) ([]location.Record, error) {
	if src.Compressed {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", ErrMalformed, err)
		}
		defer zr.Close()
		r = zr
	}

	switch src.Format {
	case FormatJSON:
		return decodeJSON(ctx, r)
	case FormatMsgpack:
		return decodeMsgpack(ctx, r)
	}
	return nil, ErrUnknownFormat
}

func decodeJSON(ctx context.Context, r io.Reader) ([]location.Record, error) {
	dec := json.NewDecoder(bufio.NewReader(r))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%w: expected array, got %v", ErrMalformed, tok)
	}

	var records []location.Record
	for dec.More() {
		if len(records)%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var c rawCity
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrMalformed, len(records), err)
		}
		records = append(records, c.record())
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return records, nil
}

func decodeMsgpack(ctx context.Context, r io.Reader) ([]location.Record, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(r))

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if n < 0 {
		return nil, nil
	}

	records := make([]location.Record, 0, n)
	for i := 0; i < n; i++ {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var c rawCity
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrMalformed, i, err)
		}
		records = append(records, c.record())
	}
	return records, nil
}

// SortByName orders records by name, keeping the file order for equal names.
func SortByName(records []location.Record) {
	slices.SortStableFunc(records, func(a, b location.Record) int {
		return strings.Compare(a.Name, b.Name)
	})
}
