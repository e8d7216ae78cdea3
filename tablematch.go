package qbroker

import (
	"strings"

	"github.com/getlantern/qbroker/routing"
)

const (
	offlineSuffix  = "_OFFLINE"
	realtimeSuffix = "_REALTIME"
)

// OfflineTableName derives the physical offline table name for a logical
// table.
func OfflineTableName(logicalTable string) string {
	return logicalTable + offlineSuffix
}

// RealtimeTableName derives the physical realtime table name for a logical
// table.
func RealtimeTableName(logicalTable string) string {
	return logicalTable + realtimeSuffix
}

// IsRealtimeTableName reports whether a physical table name carries the
// realtime suffix, the single source of truth other packages (e.g.
// pipeline's federated-response disambiguation) should use instead of
// re-deriving the suffix convention themselves.
func IsRealtimeTableName(physicalTableName string) bool {
	return strings.HasSuffix(physicalTableName, realtimeSuffix)
}

// MatchTables resolves a logical table name to the ordered list of physical
// tables that exist in the routing table (spec §4.2, C2). Offline is always
// checked before realtime so that the Hybrid Request Splitter (C3) can rely
// on a stable [offline, realtime] order when both exist.
//
// If neither suffixed name exists, it falls back to the raw logical name
// for backward compatibility with non-hybrid tables. If nothing matches,
// the result is an empty slice - the caller should respond with NoTableHit,
// not an error.
func MatchTables(logicalTable string, table routing.RoutingTable) []string {
	var matched []string
	offline := OfflineTableName(logicalTable)
	if table.Exists(offline) {
		matched = append(matched, offline)
	}
	realtime := RealtimeTableName(logicalTable)
	if table.Exists(realtime) {
		matched = append(matched, realtime)
	}
	if len(matched) == 0 && table.Exists(logicalTable) {
		matched = append(matched, logicalTable)
	}
	return matched
}
