package reduce

import (
	"github.com/getlantern/qbroker"
)

// reduceAggregationOnly shuffles each server's single-row result (one
// value per aggregation function) into per-function columns and combines
// each column independently (spec §4.9,
// BrokerReduceService#attachAggregationResults/#shuffleAggregationResults).
func reduceAggregationOnly(resp *BrokerResponse, aggregations []qbroker.AggregationInfo, tables serverTables) {
	numAggregations := len(aggregations)
	shuffled := make([][]interface{}, numAggregations)
	for i := range shuffled {
		shuffled[i] = make([]interface{}, 0, len(tables))
	}

	for _, table := range tables {
		if table.NumRows() == 0 {
			continue
		}
		row := table.Rows[0]
		for i := range aggregations {
			if i < len(row) {
				shuffled[i] = append(shuffled[i], row[i])
			}
		}
	}

	results := make([]AggregationResult, numAggregations)
	for i, info := range aggregations {
		results[i] = AggregationResult{Function: info.Function, Value: combine(info, shuffled[i])}
	}
	resp.AggregationResults = results
}
