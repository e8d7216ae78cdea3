// Package reduce implements the Reduce Service (C9): merging each
// server's DataTable into one BrokerResponse, along the selection,
// aggregation-only or group-by path named by the originating request.
package reduce

import (
	"github.com/getlantern/qbroker"
)

// ProcessingException mirrors qbroker.ProcessingException in shape, with the
// code as a plain int, the form a BrokerResponse carries to the client
// (spec §7).
type ProcessingException struct {
	Code    int
	Message string
}

// SelectionResults is the reduced output of a selection-type query: the
// projected columns and the merged, possibly-ordered and size-capped rows.
type SelectionResults struct {
	Columns []string
	Rows    [][]interface{}
}

// AggregationResult is the reduced output of one aggregation function in an
// aggregation-only query.
type AggregationResult struct {
	Function qbroker.AggregationFunctionName
	Value    interface{}
}

// GroupByResult is the reduced, top-N-truncated output of one aggregation
// function in a group-by query.
type GroupByResult struct {
	Function qbroker.AggregationFunctionName
	Groups   []GroupByRow
}

// GroupByRow is one group's key and reduced aggregation value.
type GroupByRow struct {
	GroupKey []string
	Value    interface{}
}

// BrokerResponse is the reduced result of one query, ready to be rendered
// to the client (spec §5).
type BrokerResponse struct {
	SelectionResults  *SelectionResults
	AggregationResults []AggregationResult
	GroupByResults    []GroupByResult

	Exceptions []ProcessingException
	TraceInfo  map[string]string

	NumDocsScanned             int64
	NumEntriesScannedInFilter  int64
	NumEntriesScannedPostFilter int64
	TotalDocs                  int64
}

// EmptyResponse returns the response for a request whose gather collected
// zero server responses at all (as opposed to zero rows - that still goes
// through the normal reduce path so schema-bearing empty tables render
// correctly).
func EmptyResponse() *BrokerResponse {
	return &BrokerResponse{TraceInfo: make(map[string]string)}
}
