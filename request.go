// Package qbroker implements the broker-side query fan-out core: planning,
// scatter/gather dispatch, and reduction of a single query across a fleet of
// servers.
package qbroker

import (
	"github.com/getlantern/golog"
)

var (
	log = golog.LoggerFor("qbroker")
)

// FilterOperator identifies the kind of a FilterQuery node.
type FilterOperator int

const (
	FilterAnd FilterOperator = iota
	FilterOr
	FilterEqual
	FilterRange
	FilterNotEqual
	FilterIn
)

// FilterQuery is one node of a filter tree, stored flat in a
// FilterSubQueryMap and referenced by integer id. Synthetic nodes created by
// the broker (e.g. the hybrid splitter's time-boundary filter) use negative
// ids to avoid colliding with ids assigned by the upstream compiler.
type FilterQuery struct {
	Id       int
	Operator FilterOperator
	Column   string
	Value    []string
	Children []int
}

// FilterSubQueryMap is the flat id -> node representation of a filter tree.
// RootId identifies the node that roots the tree.
type FilterSubQueryMap struct {
	RootId  int
	Filters map[int]*FilterQuery
}

// Root returns the FilterQuery that roots the tree, or nil if the map is
// empty (an unfiltered query).
func (m *FilterSubQueryMap) Root() *FilterQuery {
	if m == nil || m.Filters == nil {
		return nil
	}
	return m.Filters[m.RootId]
}

// nextSyntheticId returns an id guaranteed not to collide with any id
// already present in the map, counting down from -1.
func (m *FilterSubQueryMap) nextSyntheticId() int {
	min := 0
	for id := range m.Filters {
		if id < min {
			min = id
		}
	}
	return min - 1
}

// SortColumn names one column of a selection's sort sequence and the
// direction to sort it in.
type SortColumn struct {
	Column     string
	Descending bool
}

// Selection describes a selection-type query: the columns to project, how
// many rows to return, and an optional sort sequence.
type Selection struct {
	Columns []string
	Size    int
	SortBy  []SortColumn
}

// AggregationFunctionName identifies one of the closed set of aggregation
// combine laws the Reduce Service understands.
type AggregationFunctionName string

const (
	AggSum           AggregationFunctionName = "SUM"
	AggMin           AggregationFunctionName = "MIN"
	AggMax           AggregationFunctionName = "MAX"
	AggCount         AggregationFunctionName = "COUNT"
	AggAvg           AggregationFunctionName = "AVG"
	AggDistinctCount AggregationFunctionName = "DISTINCTCOUNT"
	AggPercentile    AggregationFunctionName = "PERCENTILE"
)

// AggregationInfo describes one aggregation function applied to a column
// (or expression referenced by column name).
type AggregationInfo struct {
	Function AggregationFunctionName
	Column   string
	// Percentile is only meaningful when Function == AggPercentile; it is
	// the requested percentile in [0, 100].
	Percentile float64
}

// GroupBy describes a group-by clause: the expressions to group by and how
// many groups to keep per aggregation (top-N).
type GroupBy struct {
	Columns []string
	TopN    int
}

// ResponseFormat tags which of the three reduce paths a request selects.
type ResponseFormat string

const (
	ResponseNative ResponseFormat = "native"
)

// QuerySource names the logical table a query runs against.
type QuerySource struct {
	TableName string
}

// BrokerRequest is the broker's in-memory representation of a single
// query's structured request tree (spec §3). It is deliberately free of any
// SQL/PQL syntax: the component that produces this tree from a query
// language is an external collaborator (see Compiler).
type BrokerRequest struct {
	QuerySource     QuerySource
	Selections      *Selection
	AggregationInfo []AggregationInfo
	GroupBy         *GroupBy
	FilterQuery     *FilterQuery
	FilterSubQuery  *FilterSubQueryMap
	ResponseFormat  ResponseFormat
	EnableTrace     bool
	DebugOptions    map[string]string
	BucketHashKey   interface{}
}

// IsSelection reports whether this request uses the selection reduce path.
func (r *BrokerRequest) IsSelection() bool {
	return r.Selections != nil
}

// IsGroupBy reports whether this request uses the group-by reduce path.
func (r *BrokerRequest) IsGroupBy() bool {
	return r.GroupBy != nil
}

// DeepCopy returns a fully independent copy of the request, safe to mutate
// without affecting the original. Used by the Hybrid Request Splitter (C3),
// which must produce two sub-requests that can each be rewritten (table
// name, filter tree) without the other observing the change.
func (r *BrokerRequest) DeepCopy() *BrokerRequest {
	cp := *r
	if r.Selections != nil {
		sel := *r.Selections
		sel.Columns = append([]string(nil), r.Selections.Columns...)
		sel.SortBy = append([]SortColumn(nil), r.Selections.SortBy...)
		cp.Selections = &sel
	}
	cp.AggregationInfo = append([]AggregationInfo(nil), r.AggregationInfo...)
	if r.GroupBy != nil {
		gb := *r.GroupBy
		gb.Columns = append([]string(nil), r.GroupBy.Columns...)
		cp.GroupBy = &gb
	}
	if r.FilterSubQuery != nil {
		newMap := &FilterSubQueryMap{
			RootId:  r.FilterSubQuery.RootId,
			Filters: make(map[int]*FilterQuery, len(r.FilterSubQuery.Filters)),
		}
		for id, fq := range r.FilterSubQuery.Filters {
			fqCopy := *fq
			fqCopy.Value = append([]string(nil), fq.Value...)
			fqCopy.Children = append([]int(nil), fq.Children...)
			newMap.Filters[id] = &fqCopy
		}
		cp.FilterSubQuery = newMap
		if r.FilterQuery != nil {
			cp.FilterQuery = newMap.Filters[r.FilterQuery.Id]
		}
	}
	if r.DebugOptions != nil {
		cp.DebugOptions = make(map[string]string, len(r.DebugOptions))
		for k, v := range r.DebugOptions {
			cp.DebugOptions[k] = v
		}
	}
	return &cp
}

// Compiler turns a query-language string into a structured BrokerRequest.
// The actual query-language compiler is an external collaborator (spec §1,
// "out of scope"); this interface documents the only contract the core
// requires of it.
type Compiler interface {
	Compile(queryString string) (*BrokerRequest, error)
}
