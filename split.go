package qbroker

import (
	"github.com/getlantern/qbroker/metrics"
	"github.com/getlantern/qbroker/routing"
)

// SubRequest is one physical-table-scoped request produced by Split: either
// the sole request for a non-hybrid table, or one of an offline/realtime
// pair for a hybrid table.
type SubRequest struct {
	PhysicalTableName string
	Request           *BrokerRequest
}

// Split turns a validated, optimized BrokerRequest plus the set of matched
// physical tables (C2's output) into one SubRequest per physical table
// (spec §4.3, C3).
//
// For a single matched table, the request is routed unmodified. For a
// hybrid offline+realtime pair, each sub-request's filter tree is extended
// with a time-boundary predicate so that neither side double-counts rows at
// the boundary: offline gets "timeColumn < timeValue", realtime gets
// "timeColumn >= timeValue". If no TimeBoundaryInfo is published for the
// offline table, both sub-requests are produced unfiltered - the broker
// accepts the resulting double-count rather than failing the query, logging
// and metering the condition instead (spec's Open Questions, resolved in
// favor of exact compatibility with the degraded-but-available behavior).
func Split(req *BrokerRequest, physicalTables []string, boundaries routing.TimeBoundaryProvider) []SubRequest {
	if len(physicalTables) != 2 {
		subs := make([]SubRequest, 0, len(physicalTables))
		for _, table := range physicalTables {
			subs = append(subs, SubRequest{PhysicalTableName: table, Request: req})
		}
		return subs
	}

	offlineTable, realtimeTable := physicalTables[0], physicalTables[1]
	info := boundaries.GetTimeBoundaryInfoFor(offlineTable)
	if info == nil {
		log.Debugf("no time boundary published for %v, splitting %v/%v without a boundary filter", offlineTable, offlineTable, realtimeTable)
		metrics.HybridSplitMissingBoundary()
		return []SubRequest{
			{PhysicalTableName: offlineTable, Request: req},
			{PhysicalTableName: realtimeTable, Request: req},
		}
	}

	return []SubRequest{
		{PhysicalTableName: offlineTable, Request: withTimeBoundary(req, info, FilterLess)},
		{PhysicalTableName: realtimeTable, Request: withTimeBoundary(req, info, FilterGreaterOrEqual)},
	}
}

// BoundaryComparator names the comparison a synthetic time-boundary filter
// applies.
type BoundaryComparator int

const (
	FilterLess BoundaryComparator = iota
	FilterGreaterOrEqual
)

// withTimeBoundary returns a copy of req whose filter tree is ANDed with a
// synthetic "timeColumn <cmp> timeValue" predicate, using a negative id that
// cannot collide with any id assigned by the upstream compiler.
func withTimeBoundary(req *BrokerRequest, info *routing.TimeBoundaryInfo, cmp BoundaryComparator) *BrokerRequest {
	cp := req.DeepCopy()

	operator := FilterRange
	value := []string{"(*\t\t" + info.TimeValue + ")"}
	if cmp == FilterGreaterOrEqual {
		value = []string{"[" + info.TimeValue + "\t\t*)"}
	}

	if cp.FilterSubQuery == nil {
		cp.FilterSubQuery = &FilterSubQueryMap{Filters: make(map[int]*FilterQuery)}
	}

	boundaryNode := &FilterQuery{
		Id:       cp.FilterSubQuery.nextSyntheticId(),
		Operator: operator,
		Column:   info.TimeColumn,
		Value:    value,
	}
	cp.FilterSubQuery.Filters[boundaryNode.Id] = boundaryNode

	existingRoot := cp.FilterQuery
	if existingRoot == nil {
		cp.FilterQuery = boundaryNode
		cp.FilterSubQuery.RootId = boundaryNode.Id
		return cp
	}

	andNode := &FilterQuery{
		Id:       cp.FilterSubQuery.nextSyntheticId(),
		Operator: FilterAnd,
		Children: []int{existingRoot.Id, boundaryNode.Id},
	}
	cp.FilterSubQuery.Filters[andNode.Id] = andNode
	cp.FilterQuery = andNode
	cp.FilterSubQuery.RootId = andNode.Id
	return cp
}
