// Package routing defines the broker's contract with the external
// routing-table provider and time-boundary provider (spec §4.4, §6), plus a
// concurrency-safe in-memory implementation suitable for tests and small
// deployments.
package routing

import (
	"strings"

	"github.com/getlantern/qbroker/common"
)

// TimeBoundaryInfo is published by the routing provider per hybrid table;
// it partitions the time domain so offline and realtime shards do not
// double-count rows at the boundary (spec §3).
type TimeBoundaryInfo struct {
	TimeColumn string
	TimeValue  string
}

// RoutingTable is the broker's read-only view of which servers hold which
// segments for a physical table. Implementations must be safe for
// concurrent reads (spec §6): the broker treats a lookup as an atomic
// snapshot and may cache the result within one request.
type RoutingTable interface {
	// Exists reports whether a routing table is published for the given
	// physical table name.
	Exists(physicalTableName string) bool

	// Lookup returns the candidate servers and the segments each is
	// responsible for, optionally narrowed by routingOptions (parsed from
	// the request's debugOptions). An empty result is not an error - it
	// simply contributes no work to the dispatcher.
	Lookup(physicalTableName string, routingOptions []string) map[common.ServerInstance]common.SegmentIdSet

	// DumpSnapshot renders a human-readable snapshot of the routing table
	// for a physical table name, for debugging.
	DumpSnapshot(tableName string) string
}

// TimeBoundaryProvider resolves the time-boundary value that splits offline
// from realtime data in a hybrid table.
type TimeBoundaryProvider interface {
	// GetTimeBoundaryInfoFor returns the time boundary for the given
	// offline physical table name, or nil if none is published.
	GetTimeBoundaryInfoFor(offlineTableName string) *TimeBoundaryInfo
}

// ParseRoutingOptions splits the comma-separated "routingOptions" debug
// option into a list, trimming whitespace and dropping empty entries
// (spec §4.4).
func ParseRoutingOptions(debugOptions map[string]string) []string {
	if debugOptions == nil {
		return nil
	}
	raw, ok := debugOptions["routingOptions"]
	if !ok || raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	options := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			options = append(options, p)
		}
	}
	return options
}
