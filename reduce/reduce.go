package reduce

import (
	"github.com/getlantern/qbroker"
	"github.com/getlantern/qbroker/common"
	"github.com/getlantern/qbroker/datatable"
)

// Reduce merges the DataTable gathered from every server into one
// BrokerResponse, dispatching to the selection, aggregation-only or
// group-by path named by req (spec §4.9, BrokerReduceService#reduceOnDataTable).
func Reduce(req *qbroker.BrokerRequest, gathered map[common.ServerInstance]*datatable.DataTable) *BrokerResponse {
	if len(gathered) == 0 {
		return EmptyResponse()
	}

	tables := make(serverTables, len(gathered))
	for server, table := range gathered {
		tables[server] = table
	}

	resp := EmptyResponse()
	reduceMetadata(resp, tables, req.EnableTrace)

	if len(tables) == 0 {
		return resp
	}

	switch {
	case req.IsSelection():
		reduceSelection(resp, req.Selections, tables)
	case req.IsGroupBy():
		reduceGroupBy(resp, req.AggregationInfo, req.GroupBy, tables)
	default:
		reduceAggregationOnly(resp, req.AggregationInfo, tables)
	}

	return resp
}
