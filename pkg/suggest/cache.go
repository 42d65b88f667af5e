package suggest

import (
	"slices"
	"sync/atomic"

	"github.com/bastiangx/cityserve/internal/utils"
	"github.com/bastiangx/cityserve/pkg/location"
	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of distinct prefixes kept by NewCachedIndex when size <= 0.
const DefaultCacheSize = 256

// CachedIndex serves repeated prefixes from an LRU of already sorted results.
// Entries never go stale because the wrapped Index is immutable.
type CachedIndex struct {
	*Index
	hot    *lru.Cache[string, []location.Record]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedIndex wraps idx with a result cache holding up to size prefixes.
func NewCachedIndex(idx *Index, size int) *CachedIndex {
	if size <= 0 {
		size = DefaultCacheSize
	}
	hot, err := lru.New[string, []location.Record](size)
	if err != nil {
		// only reachable with a non-positive size
		log.Errorf("Creating search cache: %v", err)
	}
	return &CachedIndex{Index: idx, hot: hot}
}

// Search behaves like Index.Search. Results for non-empty prefixes are cached
// by folded prefix, so "AL" and "al" share an entry.
func (c *CachedIndex) Search(prefix string) []location.Record {
	if prefix == "" || c.hot == nil {
		return c.Index.Search(prefix)
	}

	key := utils.FoldASCII(prefix)
	if cached, ok := c.hot.Get(key); ok {
		c.hits.Add(1)
		return slices.Clone(cached)
	}

	c.misses.Add(1)
	results := c.Index.Search(key)
	c.hot.Add(key, results)
	return slices.Clone(results)
}

// Stats merges cache counters into the index statistics
func (c *CachedIndex) Stats() map[string]int {
	stats := c.Index.Stats()
	stats["cacheHits"] = int(c.hits.Load())
	stats["cacheMisses"] = int(c.misses.Load())
	if c.hot != nil {
		stats["cachedPrefixes"] = c.hot.Len()
	}
	return stats
}
