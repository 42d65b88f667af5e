// Package group partitions result sequences into alphabetic buckets keyed by the first letter of the name.
package group

import (
	"unicode"
	"unicode/utf8"

	"github.com/bastiangx/cityserve/pkg/location"
)

// EmptyKey is the bucket for records without a name.
const EmptyKey = '#'

// Bucket is one letter's slice of results.
type Bucket struct {
	Key     rune
	Records []location.Record
}

// Groups is an ordered set of buckets. Order follows first appearance in the
// grouped input, which is alphabetical whenever the input is name-sorted.
type Groups []Bucket

// Group buckets records by the upper-cased first rune of Name.
// Records keep their input order inside each bucket.
func Group(records []location.Record) Groups {
	if len(records) == 0 {
		return nil
	}

	var groups Groups
	pos := make(map[rune]int)
	for _, r := range records {
		key := KeyOf(r.Name)
		i, ok := pos[key]
		if !ok {
			i = len(groups)
			pos[key] = i
			groups = append(groups, Bucket{Key: key})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}

// KeyOf returns the bucket key for a name
func KeyOf(name string) rune {
	first, size := utf8.DecodeRuneInString(name)
	if size == 0 {
		return EmptyKey
	}
	return unicode.ToUpper(first)
}

// Keys returns the bucket keys in order.
func (g Groups) Keys() []rune {
	keys := make([]rune, len(g))
	for i, b := range g {
		keys[i] = b.Key
	}
	return keys
}

// Len returns the total number of records across buckets.
func (g Groups) Len() int {
	n := 0
	for _, b := range g {
		n += len(b.Records)
	}
	return n
}

// Flatten concatenates the buckets in key order.
func (g Groups) Flatten() []location.Record {
	out := make([]location.Record, 0, g.Len())
	for _, b := range g {
		out = append(out, b.Records...)
	}
	return out
}

// Get returns the bucket for key, if present.
func (g Groups) Get(key rune) ([]location.Record, bool) {
	for _, b := range g {
		if b.Key == key {
			return b.Records, true
		}
	}
	return nil, false
}
