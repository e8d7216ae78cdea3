package reduce

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getlantern/qbroker"
)

// reduceGroupBy merges per-group values across servers for each
// aggregation function independently, then truncates each function's
// group set to the top N by value (spec §4.9,
// BrokerReduceService#attachGroupByResults). Rows are assumed to lay out
// as [group-by columns..., one value column per aggregation function], the
// shape the Scatter Dispatcher's leaf servers produce for a group-by
// request.
func reduceGroupBy(resp *BrokerResponse, aggregations []qbroker.AggregationInfo, groupBy *qbroker.GroupBy, tables serverTables) {
	numGroupCols := len(groupBy.Columns)
	numAggregations := len(aggregations)

	// groupKey -> per-aggregation accumulated values across servers
	perFunctionValues := make([]map[string][]interface{}, numAggregations)
	groupKeys := make(map[string][]string)
	for i := range perFunctionValues {
		perFunctionValues[i] = make(map[string][]interface{})
	}

	for _, table := range tables {
		for _, row := range table.Rows {
			if len(row) < numGroupCols+numAggregations {
				continue
			}
			keyParts := make([]string, numGroupCols)
			for i := 0; i < numGroupCols; i++ {
				keyParts[i] = toKeyString(row[i])
			}
			key := strings.Join(keyParts, "\x1f")
			groupKeys[key] = keyParts

			for i := 0; i < numAggregations; i++ {
				perFunctionValues[i][key] = append(perFunctionValues[i][key], row[numGroupCols+i])
			}
		}
	}

	results := make([]GroupByResult, numAggregations)
	for i, info := range aggregations {
		type reduced struct {
			key   string
			group []string
			value interface{}
		}
		all := make([]reduced, 0, len(perFunctionValues[i]))
		for key, values := range perFunctionValues[i] {
			all = append(all, reduced{key: key, group: groupKeys[key], value: combine(info, values)})
		}
		sort.Slice(all, func(a, b int) bool {
			cmp := compareValues(all[a].value, all[b].value)
			if cmp != 0 {
				return cmp > 0 // descending by value
			}
			return all[a].key < all[b].key // deterministic tie-break
		})

		topN := groupBy.TopN
		if topN <= 0 || topN > len(all) {
			topN = len(all)
		}
		rows := make([]GroupByRow, 0, topN)
		for _, r := range all[:topN] {
			rows = append(rows, GroupByRow{GroupKey: r.group, Value: r.value})
		}
		results[i] = GroupByResult{Function: info.Function, Groups: rows}
	}
	resp.GroupByResults = results
}

func toKeyString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
