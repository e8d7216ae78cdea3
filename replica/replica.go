// Package replica implements the Replica Selector (C5): given the set of
// servers holding a segment, pick exactly one to query.
package replica

import (
	"hash"
	"sort"
	"sync"

	"github.com/jmcvetta/randutil"
	"github.com/spaolacci/murmur3"

	"github.com/getlantern/qbroker/common"
)

// Selection picks one server from a replica set for one segment.
//
// Implementations must be safe for concurrent use: the pipeline calls Select
// once per segment while resolving a query's assignments, and concurrent
// queries do so from their own goroutines.
type Selection interface {
	// Select picks one of candidates to serve segmentId. candidates must be
	// non-empty; callers are responsible for skipping segments with no
	// candidates entirely (that is a NoTableHit-adjacent condition the
	// Candidate Server Resolver, not the selector, must surface).
	Select(segmentId string, candidates []common.ServerInstance) common.ServerInstance
}

// RoundRobin cycles through a replica set in order, one position forward
// per call for the same segment. Each segment gets its own cursor rather
// than a single global one, so one segment's traffic does not advance
// another's rotation; all of a selector's cursors share one mutex, held
// only for the cursor increment.
type RoundRobin struct {
	mx      sync.Mutex
	cursors map[string]int
}

// NewRoundRobin creates an empty round-robin selector.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{cursors: make(map[string]int)}
}

func (r *RoundRobin) Select(segmentId string, candidates []common.ServerInstance) common.ServerInstance {
	sorted := sortedCopy(candidates)

	r.mx.Lock()
	cursor := r.cursors[segmentId]
	r.cursors[segmentId] = cursor + 1
	r.mx.Unlock()

	return sorted[cursor%len(sorted)]
}

// Random picks a uniformly random candidate on every call, using
// github.com/jmcvetta/randutil for the draw.
type Random struct{}

// NewRandom creates a random selector.
func NewRandom() *Random {
	return &Random{}
}

func (r *Random) Select(segmentId string, candidates []common.ServerInstance) common.ServerInstance {
	sorted := sortedCopy(candidates)
	n, err := randutil.IntRange(0, len(sorted))
	if err != nil {
		// randutil.IntRange only errors when min >= max, which cannot happen
		// here since len(sorted) >= 1.
		return sorted[0]
	}
	return sorted[n]
}

// Hash deterministically maps a segment id to one replica using murmur3, so
// that repeated queries for the same segment land on the same server
// (useful for warming per-server caches).
type Hash struct {
	// newHasher lets tests swap in a deterministic hasher; production code
	// always leaves this nil and gets murmur3.New32.
	newHasher func() hash.Hash32
}

// NewHash creates a hash-based selector using murmur3.
func NewHash() *Hash {
	return &Hash{}
}

func (h *Hash) Select(segmentId string, candidates []common.ServerInstance) common.ServerInstance {
	sorted := sortedCopy(candidates)

	newHasher := h.newHasher
	if newHasher == nil {
		newHasher = murmur3.New32
	}
	hasher := newHasher()
	hasher.Write([]byte(segmentId))
	idx := int(hasher.Sum32()) % len(sorted)
	if idx < 0 {
		idx += len(sorted)
	}
	return sorted[idx]
}

// sortedCopy returns candidates sorted by String(), so that RoundRobin and
// Hash see a stable ordering regardless of map-iteration order upstream.
func sortedCopy(candidates []common.ServerInstance) []common.ServerInstance {
	sorted := append([]common.ServerInstance(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	return sorted
}
