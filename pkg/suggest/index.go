package suggest

import (
	"errors"
	"slices"
	"strings"

	"github.com/bastiangx/cityserve/internal/utils"
	"github.com/bastiangx/cityserve/pkg/location"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

// node is one rune step of the trie. refs holds every record whose folded
// display name passes through this node, in insertion order.
type node struct {
	children map[rune]*node
	refs     []int32
	terminal bool
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Index is a read-only prefix index. It is produced by Build and has no
// mutating methods, so it can be shared between goroutines without locking.
type Index struct {
	root     *node
	records  []location.Record
	keys     []string // folded display names, parallel to records
	byID     map[int64]int32
	names    *patricia.Trie
	nodes    int
	refs     int
	distinct int
}

// Build indexes records by their ASCII-folded display name. The input is
// copied; the order of records in every node follows the input order, so
// callers wanting alphabetical output pass a name-sorted slice.
func Build(records []location.Record) *Index {
	idx := &Index{
		root:    newNode(),
		records: slices.Clone(records),
		keys:    make([]string, len(records)),
		byID:    make(map[int64]int32, len(records)),
		names:   patricia.NewTrie(),
	}

	for i := range idx.records {
		key := utils.FoldASCII(idx.records[i].DisplayName())
		idx.keys[i] = key
		idx.byID[idx.records[i].ID] = int32(i)
		idx.insert(key, int32(i))
		idx.addName(key)
	}

	// patricia sorts sparse child lists while walking; do it once here so
	// later walks from concurrent Keys calls only read
	_ = idx.names.Visit(func(patricia.Prefix, patricia.Item) error { return nil })

	log.Debugf("Built prefix index: %d records, %d nodes, %d refs", len(idx.records), idx.nodes, idx.refs)
	return idx
}

// insert walks the key one rune at a time, creating missing nodes and
// appending the record reference to each node it visits.
func (idx *Index) insert(key string, ref int32) {
	current := idx.root
	for _, r := range key {
		child, ok := current.children[r]
		if !ok {
			child = newNode()
			current.children[r] = child
			idx.nodes++
		}
		current = child
		current.refs = append(current.refs, ref)
		idx.refs++
	}
	current.terminal = true
}

// addName records key in the name trie; the item counts records sharing it.
func (idx *Index) addName(key string) {
	p := patricia.Prefix(key)
	if item := idx.names.Get(p); item != nil {
		*item.(*int)++
		return
	}
	count := 1
	idx.names.Insert(p, &count)
	idx.distinct++
}

// Search returns the records whose display name starts with prefix, ignoring
// ASCII case. An empty prefix returns the full dataset in its original order.
// A prefix that leaves the trie returns nil; there are no partial matches.
func (idx *Index) Search(prefix string) []location.Record {
	if prefix == "" {
		return slices.Clone(idx.records)
	}

	n := idx.find(utils.FoldASCII(prefix))
	if n == nil {
		return nil
	}

	refs := slices.Clone(n.refs)
	slices.SortStableFunc(refs, func(a, b int32) int {
		return strings.Compare(idx.keys[a], idx.keys[b])
	})

	out := make([]location.Record, len(refs))
	for i, ref := range refs {
		out[i] = idx.records[ref]
	}
	return out
}

func (idx *Index) find(folded string) *node {
	current := idx.root
	for _, r := range folded {
		next, ok := current.children[r]
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// errKeyLimit stops a name trie walk once enough keys are collected.
var errKeyLimit = errors.New("key limit reached")

// Keys returns up to limit distinct folded display names starting with prefix,
// in lexicographic order. A limit of zero or less returns all of them.
func (idx *Index) Keys(prefix string, limit int) []string {
	var keys []string
	err := idx.names.VisitSubtree(patricia.Prefix(utils.FoldASCII(prefix)), func(p patricia.Prefix, _ patricia.Item) error {
		keys = append(keys, string(p))
		if limit > 0 && len(keys) >= limit {
			return errKeyLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errKeyLimit) {
		log.Errorf("Error visiting name trie subtree: %v", err)
		return nil
	}
	return keys
}

// ByID returns the record with the given id.
func (idx *Index) ByID(id int64) (location.Record, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return location.Record{}, false
	}
	return idx.records[i], true
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	return len(idx.records)
}

// All returns a copy of the records in the order they were supplied to Build.
func (idx *Index) All() []location.Record {
	return slices.Clone(idx.records)
}

// Stats returns statistics about the built trie
func (idx *Index) Stats() map[string]int {
	return map[string]int{
		"records":  len(idx.records),
		"nodes":    idx.nodes,
		"refs":     idx.refs,
		"distinct": idx.distinct,
	}
}
