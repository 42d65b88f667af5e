// Package suggest is the core, providing the prefix trie over location display names and the lookups served from it.
package suggest

import "github.com/bastiangx/cityserve/pkg/location"

// Searcher defines the lookup side of a built index
type Searcher interface {
	// Search returns every record whose display name starts with prefix,
	// sorted by display name. An empty prefix returns the whole dataset.
	Search(prefix string) []location.Record
}

// Builder turns a loaded, name-sorted record sequence into a Searcher.
type Builder func(records []location.Record) Searcher

// DefaultBuilder builds a plain *Index.
func DefaultBuilder(records []location.Record) Searcher {
	return Build(records)
}

// CachedBuilder returns a Builder that wraps each built index in a result cache of the given size.
func CachedBuilder(size int) Builder {
	return func(records []location.Record) Searcher {
		return NewCachedIndex(Build(records), size)
	}
}
