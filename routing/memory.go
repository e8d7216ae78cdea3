package routing

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/getlantern/qbroker/common"
)

// TableSnapshot is one immutable routing snapshot for a single physical
// table.
type TableSnapshot struct {
	Servers map[common.ServerInstance]common.SegmentIdSet
}

// StaticRoutingTable is an in-memory RoutingTable backed by an
// atomic.Value, so that readers always observe a complete, consistent
// snapshot even while a writer is publishing a new one (spec §6: "safe for
// concurrent reads"). It never blocks a reader on a writer or vice versa.
type StaticRoutingTable struct {
	snapshot atomic.Value // map[string]*TableSnapshot

	// publishMu serializes writers only; readers go through snapshot.Load
	// directly and never block on it. Without it, two concurrent Publish
	// calls for different tables each copy-on-write from the same starting
	// map and whichever Store wins last silently discards the other's
	// update.
	publishMu sync.Mutex
}

// NewStaticRoutingTable creates an empty routing table.
func NewStaticRoutingTable() *StaticRoutingTable {
	t := &StaticRoutingTable{}
	t.snapshot.Store(map[string]*TableSnapshot{})
	return t
}

func (t *StaticRoutingTable) current() map[string]*TableSnapshot {
	return t.snapshot.Load().(map[string]*TableSnapshot)
}

// Publish atomically replaces the routing snapshot for one physical table.
// Passing a nil snapshot removes the table.
func (t *StaticRoutingTable) Publish(physicalTableName string, snap *TableSnapshot) {
	t.publishMu.Lock()
	defer t.publishMu.Unlock()

	cur := t.current()
	next := make(map[string]*TableSnapshot, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	if snap == nil {
		delete(next, physicalTableName)
	} else {
		next[physicalTableName] = snap
	}
	t.snapshot.Store(next)
}

func (t *StaticRoutingTable) Exists(physicalTableName string) bool {
	_, ok := t.current()[physicalTableName]
	return ok
}

func (t *StaticRoutingTable) Lookup(physicalTableName string, routingOptions []string) map[common.ServerInstance]common.SegmentIdSet {
	snap, ok := t.current()[physicalTableName]
	if !ok {
		return nil
	}
	// routingOptions may be used by a more elaborate implementation to
	// select among replica groups or datacenters; the in-memory
	// implementation has only one group per segment and ignores them.
	_ = routingOptions
	out := make(map[common.ServerInstance]common.SegmentIdSet, len(snap.Servers))
	for server, segments := range snap.Servers {
		out[server] = segments
	}
	return out
}

func (t *StaticRoutingTable) DumpSnapshot(tableName string) string {
	snap, ok := t.current()[tableName]
	if !ok {
		return fmt.Sprintf("no routing table published for %q", tableName)
	}
	servers := make([]string, 0, len(snap.Servers))
	for server, segments := range snap.Servers {
		servers = append(servers, fmt.Sprintf("%s -> %v", server, segments.Names()))
	}
	sort.Strings(servers)
	return strings.Join(servers, "\n")
}

// StaticTimeBoundaryProvider is an in-memory TimeBoundaryProvider backed by
// an atomic.Value for the same reason as StaticRoutingTable.
type StaticTimeBoundaryProvider struct {
	boundaries atomic.Value // map[string]*TimeBoundaryInfo

	// publishMu serializes writers only, for the same reason as
	// StaticRoutingTable.publishMu.
	publishMu sync.Mutex
}

// NewStaticTimeBoundaryProvider creates a provider with no published
// boundaries.
func NewStaticTimeBoundaryProvider() *StaticTimeBoundaryProvider {
	p := &StaticTimeBoundaryProvider{}
	p.boundaries.Store(map[string]*TimeBoundaryInfo{})
	return p
}

// Publish atomically sets (or clears, with a nil info) the time boundary
// for an offline table name.
func (p *StaticTimeBoundaryProvider) Publish(offlineTableName string, info *TimeBoundaryInfo) {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	cur := p.boundaries.Load().(map[string]*TimeBoundaryInfo)
	next := make(map[string]*TimeBoundaryInfo, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	if info == nil {
		delete(next, offlineTableName)
	} else {
		next[offlineTableName] = info
	}
	p.boundaries.Store(next)
}

func (p *StaticTimeBoundaryProvider) GetTimeBoundaryInfoFor(offlineTableName string) *TimeBoundaryInfo {
	return p.boundaries.Load().(map[string]*TimeBoundaryInfo)[offlineTableName]
}
