package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/getlantern/qbroker"
	"github.com/getlantern/qbroker/common"
	"github.com/getlantern/qbroker/datatable"
	"github.com/getlantern/qbroker/pipeline"
	"github.com/getlantern/qbroker/replica"
	"github.com/getlantern/qbroker/routing"
	"github.com/getlantern/qbroker/scatter"
)

type fakeCompiler struct {
	req *qbroker.BrokerRequest
}

func (c *fakeCompiler) Compile(queryString string) (*qbroker.BrokerRequest, error) {
	return c.req.DeepCopy(), nil
}

func TestQueryEndpointReturnsSelectionResults(t *testing.T) {
	schema := datatable.DataSchema{
		ColumnNames: []string{"count"},
		ColumnTypes: []datatable.ColumnType{datatable.ColumnLong},
	}
	table := datatable.NewDataTable(schema)
	table.Rows = [][]interface{}{{int64(42)}}
	data, err := table.Marshal()
	assert.NoError(t, err)

	server := common.ServerInstance{Hostname: "s1", Port: 1}
	rt := routing.NewStaticRoutingTable()
	rt.Publish("foo", &routing.TableSnapshot{
		Servers: map[common.ServerInstance]common.SegmentIdSet{server: common.NewSegmentIdSet("seg0")},
	})
	transport := scatter.NewFakeTransport()
	transport.SetResponse(server, data)

	req := &qbroker.BrokerRequest{
		QuerySource: qbroker.QuerySource{TableName: "foo"},
		Selections:  &qbroker.Selection{Columns: []string{"count"}, Size: 10},
	}
	h := &httpHandler{
		pipeline: &pipeline.Handler{
			Compiler:             &fakeCompiler{req: req},
			RoutingTable:         rt,
			TimeBoundaryProvider: routing.NewStaticTimeBoundaryProvider(),
			ReplicaSelector:      replica.NewRoundRobin(),
			Transport:            transport,
			ResponseLimit:        1000,
			QueryTimeout:         5 * time.Second,
		},
	}

	body, _ := json.Marshal(queryRequest{Pql: "select count from foo"})
	httpReq := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body)).WithContext(context.Background())
	rec := httptest.NewRecorder()

	h.query(rec, httpReq)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out queryResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Empty(t, out.Exceptions)
}

// TestQueryEndpointAcceptsSpecWireShape POSTs the literal JSON body spec §6
// documents - trace and debugOptions as strings, not native JSON bool/object
// values - and confirms the handler parses both instead of rejecting the
// request as malformed.
func TestQueryEndpointAcceptsSpecWireShape(t *testing.T) {
	schema := datatable.DataSchema{
		ColumnNames: []string{"count"},
		ColumnTypes: []datatable.ColumnType{datatable.ColumnLong},
	}
	table := datatable.NewDataTable(schema)
	table.Rows = [][]interface{}{{int64(1)}}
	table.Metadata[datatable.MetadataTraceInfo] = "t=1ms"
	data, err := table.Marshal()
	assert.NoError(t, err)

	server := common.ServerInstance{Hostname: "s1", Port: 1}
	rt := routing.NewStaticRoutingTable()
	rt.Publish("foo", &routing.TableSnapshot{
		Servers: map[common.ServerInstance]common.SegmentIdSet{server: common.NewSegmentIdSet("seg0")},
	})
	transport := scatter.NewFakeTransport()
	transport.SetResponse(server, data)

	req := &qbroker.BrokerRequest{
		QuerySource: qbroker.QuerySource{TableName: "foo"},
		Selections:  &qbroker.Selection{Columns: []string{"count"}, Size: 10},
	}
	h := &httpHandler{
		pipeline: &pipeline.Handler{
			Compiler:             &fakeCompiler{req: req},
			RoutingTable:         rt,
			TimeBoundaryProvider: routing.NewStaticTimeBoundaryProvider(),
			ReplicaSelector:      replica.NewRoundRobin(),
			Transport:            transport,
			ResponseLimit:        1000,
			QueryTimeout:         5 * time.Second,
		},
	}

	body := []byte(`{"pql":"select count from foo","trace":"true","debugOptions":"routingOptions=r1"}`)
	httpReq := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body)).WithContext(context.Background())
	rec := httptest.NewRecorder()

	h.query(rec, httpReq)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out queryResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Empty(t, out.Exceptions)
	assert.NotEmpty(t, out.TraceInfo, "trace=\"true\" on the wire must surface traceInfo")
}

func TestQueryEndpointRejectsMalformedBody(t *testing.T) {
	h := &httpHandler{pipeline: &pipeline.Handler{}}
	httpReq := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	h.query(rec, httpReq)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
