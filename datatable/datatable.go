// Package datatable implements the wire format servers return to the
// broker and the broker's own in-memory result representation: DataTable
// (C8's output, C9's input).
package datatable

import (
	"reflect"
	"strconv"

	"gopkg.in/vmihailenco/msgpack.v2"
)

// ColumnType identifies the Go-level type stored in one column of a
// DataTable.
type ColumnType int

const (
	ColumnLong ColumnType = iota
	ColumnDouble
	ColumnString
	ColumnObject
)

// DataSchema names and types the columns of a DataTable, in column order.
type DataSchema struct {
	ColumnNames []string
	ColumnTypes []ColumnType
}

// IndexOf returns the column index for name, or -1 if absent.
func (s *DataSchema) IndexOf(name string) int {
	for i, n := range s.ColumnNames {
		if n == name {
			return i
		}
	}
	return -1
}

// Metadata keys carried in DataTable.Metadata (spec §5's per-server
// counters and exceptions). The broker sums the numeric ones across all
// server responses and merges the rest.
const (
	MetadataNumDocsScanned              = "numDocsScanned"
	MetadataNumEntriesScannedInFilter    = "numEntriesScannedInFilter"
	MetadataNumEntriesScannedPostFilter  = "numEntriesScannedPostFilter"
	MetadataTotalDocs                   = "totalDocs"
	MetadataTraceInfo                   = "traceInfo"
	MetadataRequestId                   = "requestId"
	metadataExceptionPrefix             = "Exception"
)

// ExceptionMetadataKey builds the metadata key a server uses to report a
// ProcessingException with the given numeric code, e.g. "Exception345".
func ExceptionMetadataKey(code int) string {
	return metadataExceptionPrefix + strconv.Itoa(code)
}

// DataTable is one server's (or the reduced result's) columnar response:
// rows of scalar values under a schema, plus string-valued metadata for
// counters, exceptions and trace text (spec §5).
type DataTable struct {
	Schema   DataSchema
	Rows     [][]interface{}
	Metadata map[string]string
}

// NewDataTable creates an empty table with the given schema.
func NewDataTable(schema DataSchema) *DataTable {
	return &DataTable{Schema: schema, Metadata: make(map[string]string)}
}

// NumRows returns the row count.
func (t *DataTable) NumRows() int {
	return len(t.Rows)
}

// wireDataTable is the exact shape marshaled over the transport; kept
// separate from DataTable so that the public type can grow accessor
// methods without changing the wire encoding.
type wireDataTable struct {
	ColumnNames []string
	ColumnTypes []ColumnType
	Rows        [][]interface{}
	Metadata    map[string]string
}

// Marshal encodes the table using MsgPack, the same codec the broker's
// gRPC transport uses for InstanceRequest/InstanceResponse framing.
func (t *DataTable) Marshal() ([]byte, error) {
	w := wireDataTable{
		ColumnNames: t.Schema.ColumnNames,
		ColumnTypes: t.Schema.ColumnTypes,
		Rows:        t.Rows,
		Metadata:    t.Metadata,
	}
	return msgpack.Marshal(&w)
}

// Unmarshal decodes bytes produced by Marshal.
func Unmarshal(data []byte) (*DataTable, error) {
	var w wireDataTable
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	t := &DataTable{
		Schema: DataSchema{
			ColumnNames: w.ColumnNames,
			ColumnTypes: w.ColumnTypes,
		},
		Rows:     w.Rows,
		Metadata: w.Metadata,
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	// MsgPack hands back integers as whatever width/signedness it encoded
	// them with; restore the int64 a LONG column carries.
	for _, row := range t.Rows {
		for i, v := range row {
			if i >= len(t.Schema.ColumnTypes) || t.Schema.ColumnTypes[i] != ColumnLong {
				continue
			}
			switch rv := reflect.ValueOf(v); rv.Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
				row[i] = rv.Int()
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				row[i] = int64(rv.Uint())
			}
		}
	}
	return t, nil
}
