package reduce

import (
	"strconv"
	"strings"

	"github.com/getlantern/qbroker/common"
	"github.com/getlantern/qbroker/datatable"
)

// serverTables is the reducer's working set: server -> its DataTable,
// mutated in place as conflicting or empty-but-schemaless tables are
// dropped (mirrors the Java reducer's dataTableMap, which it prunes via
// iterator.remove as it walks it).
type serverTables map[common.ServerInstance]*datatable.DataTable

// reduceMetadata folds every table's counters, exceptions and trace text
// into resp, and removes zero-row tables from tables - except that if every
// table turns out to have zero rows, one schema-bearing table is kept so
// the result still renders with the right columns (spec §5's "empty-input
// rule").
func reduceMetadata(resp *BrokerResponse, tables serverTables, enableTrace bool) {
	var emptyButSchemaBearing common.ServerInstance
	var emptyButSchemaBearingTable *datatable.DataTable
	haveEmptyButSchemaBearing := false

	for server, table := range tables {
		metadata := table.Metadata

		if enableTrace {
			if trace, ok := metadata[datatable.MetadataTraceInfo]; ok {
				resp.TraceInfo[server.String()] = trace
			}
		}

		for key, value := range metadata {
			if strings.HasPrefix(key, "Exception") {
				codeStr := strings.TrimPrefix(key, "Exception")
				code, err := strconv.Atoi(codeStr)
				if err != nil {
					continue
				}
				resp.Exceptions = append(resp.Exceptions, ProcessingException{Code: code, Message: value})
			}
		}

		resp.NumDocsScanned += parseCounter(metadata, datatable.MetadataNumDocsScanned)
		resp.NumEntriesScannedInFilter += parseCounter(metadata, datatable.MetadataNumEntriesScannedInFilter)
		resp.NumEntriesScannedPostFilter += parseCounter(metadata, datatable.MetadataNumEntriesScannedPostFilter)
		resp.TotalDocs += parseCounter(metadata, datatable.MetadataTotalDocs)

		if table.NumRows() == 0 {
			if !haveEmptyButSchemaBearing && len(table.Schema.ColumnNames) > 0 {
				emptyButSchemaBearing = server
				emptyButSchemaBearingTable = table
				haveEmptyButSchemaBearing = true
			}
			delete(tables, server)
		}
	}

	if len(tables) == 0 && haveEmptyButSchemaBearing {
		// restore the one schema-bearing empty table so the selection/
		// aggregation path below still has a schema to render against
		tables[emptyButSchemaBearing] = emptyButSchemaBearingTable
	}
}

func parseCounter(metadata map[string]string, key string) int64 {
	v, ok := metadata[key]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
