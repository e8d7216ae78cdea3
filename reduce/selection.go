package reduce

import (
	"sort"
	"strings"

	"github.com/getlantern/qbroker"
	"github.com/getlantern/qbroker/common"
	"github.com/getlantern/qbroker/datatable"
)

// reduceSelection merges every server's rows into one SelectionResults,
// honoring the request's sort sequence and row limit (spec §4.9,
// BrokerReduceService#attachSelectionResults). The lowest-sorted server
// (by ServerInstance.String(), a stand-in for arrival order since the
// gather phase does not track it) supplies the canonical schema; tables
// whose schema disagrees with it are dropped and reported as a
// MergeResponseError, matching removeConflictingResponses.
func reduceSelection(resp *BrokerResponse, selection *qbroker.Selection, tables serverTables) {
	if len(tables) == 0 {
		resp.SelectionResults = &SelectionResults{Columns: selection.Columns}
		return
	}

	// Iterate servers in a fixed order (not Go's randomized map order) so
	// that which schema wins as canonical - and which servers get dropped
	// for disagreeing with it - is deterministic across runs over the same
	// gathered data.
	servers := make([]common.ServerInstance, 0, len(tables))
	for server := range tables {
		servers = append(servers, server)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].String() < servers[j].String() })

	var referenceSchema *datatable.DataSchema
	var droppedServers []string
	for _, server := range servers {
		table := tables[server]
		if referenceSchema == nil {
			schema := table.Schema
			referenceSchema = &schema
			continue
		}
		if !sameSchema(referenceSchema, &table.Schema) {
			droppedServers = append(droppedServers, server.String())
			delete(tables, server)
		}
	}
	if len(droppedServers) > 0 {
		e := qbroker.NewMergeError("responses dropped due to data schema mismatch: %s", strings.Join(droppedServers, ", "))
		resp.Exceptions = append(resp.Exceptions, ProcessingException{Code: int(e.Code), Message: e.Message})
	}

	allRows := make([]taggedRow, 0)
	for server, table := range tables {
		for i, row := range table.Rows {
			allRows = append(allRows, taggedRow{server: server.String(), rowIndex: i, row: row})
		}
	}

	if len(selection.SortBy) > 0 {
		sortRows(allRows, *referenceSchema, selection.SortBy)
	}

	size := selection.Size
	if size < 0 || size > len(allRows) {
		size = len(allRows)
	}
	projection := projectionIndexes(referenceSchema, selection.Columns)
	if unknown := unknownColumns(selection.Columns, projection); len(unknown) > 0 {
		e := qbroker.NewMergeError("requested column(s) not present in schema: %s", strings.Join(unknown, ", "))
		resp.Exceptions = append(resp.Exceptions, ProcessingException{Code: int(e.Code), Message: e.Message})
	}
	rows := make([][]interface{}, 0, size)
	for i := 0; i < size; i++ {
		rows = append(rows, projectRow(allRows[i].row, projection))
	}

	resp.SelectionResults = &SelectionResults{
		Columns: selection.Columns,
		Rows:    rows,
	}
}

// projectionIndexes maps each requested column to its position in schema,
// so rows can be reordered/subset to match selection.Columns regardless of
// the order a server's DataSchema happens to carry them in.
func projectionIndexes(schema *datatable.DataSchema, columns []string) []int {
	idx := make([]int, len(columns))
	for i, col := range columns {
		idx[i] = schema.IndexOf(col)
	}
	return idx
}

// unknownColumns names the requested columns whose projection index came
// back -1, i.e. columns absent from the canonical schema, so the caller can
// report it instead of silently returning nil for that column in every row.
func unknownColumns(columns []string, projection []int) []string {
	var unknown []string
	for i, idx := range projection {
		if idx < 0 {
			unknown = append(unknown, columns[i])
		}
	}
	return unknown
}

// projectRow reorders row to match projection, the column index for each
// position (or -1 if that column wasn't present in the schema, which
// projects to nil).
func projectRow(row []interface{}, projection []int) []interface{} {
	out := make([]interface{}, len(projection))
	for i, idx := range projection {
		if idx >= 0 && idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}

// taggedRow carries a row alongside the server and index it came from, so
// that ties in the sort sequence break deterministically on (server,
// rowIndex) rather than on map-iteration order.
type taggedRow struct {
	server   string
	rowIndex int
	row      []interface{}
}

func sameSchema(a, b *datatable.DataSchema) bool {
	if len(a.ColumnNames) != len(b.ColumnNames) {
		return false
	}
	for i := range a.ColumnNames {
		if a.ColumnNames[i] != b.ColumnNames[i] || a.ColumnTypes[i] != b.ColumnTypes[i] {
			return false
		}
	}
	return true
}

func sortRows(rows []taggedRow, schema datatable.DataSchema, sortBy []qbroker.SortColumn) {
	colIndexes := make([]int, len(sortBy))
	for i, col := range sortBy {
		colIndexes[i] = schema.IndexOf(col.Column)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for k, idx := range colIndexes {
			if idx < 0 {
				continue
			}
			cmp := compareValues(rows[i].row[idx], rows[j].row[idx])
			if cmp == 0 {
				continue
			}
			if sortBy[k].Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		if rows[i].server != rows[j].server {
			return rows[i].server < rows[j].server
		}
		return rows[i].rowIndex < rows[j].rowIndex
	})
}

func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case int64:
		bv, _ := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

