package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/getlantern/qbroker"
	"github.com/getlantern/qbroker/common"
	"github.com/getlantern/qbroker/datatable"
	"github.com/getlantern/qbroker/replica"
	"github.com/getlantern/qbroker/routing"
	"github.com/getlantern/qbroker/scatter"
)

type fakeCompiler struct {
	req *qbroker.BrokerRequest
	err error
}

func (c *fakeCompiler) Compile(queryString string) (*qbroker.BrokerRequest, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.req.DeepCopy(), nil
}

func newTestHandler(t *testing.T, req *qbroker.BrokerRequest, tableName string, server common.ServerInstance, responseBytes []byte) (*Handler, *scatter.FakeTransport) {
	rt := routing.NewStaticRoutingTable()
	rt.Publish(tableName, &routing.TableSnapshot{
		Servers: map[common.ServerInstance]common.SegmentIdSet{
			server: common.NewSegmentIdSet("seg0"),
		},
	})

	transport := scatter.NewFakeTransport()
	transport.SetResponse(server, responseBytes)

	return &Handler{
		Compiler:             &fakeCompiler{req: req},
		RoutingTable:         rt,
		TimeBoundaryProvider: routing.NewStaticTimeBoundaryProvider(),
		ReplicaSelector:      replica.NewRoundRobin(),
		Transport:            transport,
		ResponseLimit:        1000,
		QueryTimeout:         time.Second,
	}, transport
}

func TestHandleRequestSelectionEndToEnd(t *testing.T) {
	schema := datatable.DataSchema{
		ColumnNames: []string{"count"},
		ColumnTypes: []datatable.ColumnType{datatable.ColumnLong},
	}
	table := datatable.NewDataTable(schema)
	table.Rows = [][]interface{}{{int64(7)}}
	table.Metadata[datatable.MetadataNumDocsScanned] = "7"
	data, err := table.Marshal()
	assert.NoError(t, err)

	req := &qbroker.BrokerRequest{
		QuerySource: qbroker.QuerySource{TableName: "foo"},
		Selections:  &qbroker.Selection{Columns: []string{"count"}, Size: 10},
	}
	server := common.ServerInstance{Hostname: "s1", Port: 1}
	handler, _ := newTestHandler(t, req, "foo", server, data)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := handler.HandleRequest(ctx, "req-1", "select count from foo", false, nil)
	assert.NoError(t, err)
	assert.NotNil(t, resp.SelectionResults)
	assert.Equal(t, int64(7), resp.SelectionResults.Rows[0][0])
	assert.Equal(t, int64(7), resp.NumDocsScanned)
}

// TestHandleRequestThreadsTraceAndDebugOptions confirms that trace and
// debugOptions given to HandleRequest (as parsed from the HTTP wire shape,
// spec §6) actually reach the compiled request: enabling trace must surface
// a server's traceInfo in the reduced response, not just round-trip silently.
func TestHandleRequestThreadsTraceAndDebugOptions(t *testing.T) {
	schema := datatable.DataSchema{
		ColumnNames: []string{"count"},
		ColumnTypes: []datatable.ColumnType{datatable.ColumnLong},
	}
	table := datatable.NewDataTable(schema)
	table.Rows = [][]interface{}{{int64(1)}}
	table.Metadata[datatable.MetadataTraceInfo] = "t=1ms"
	data, err := table.Marshal()
	assert.NoError(t, err)

	req := &qbroker.BrokerRequest{
		QuerySource: qbroker.QuerySource{TableName: "foo"},
		Selections:  &qbroker.Selection{Columns: []string{"count"}, Size: 10},
	}
	server := common.ServerInstance{Hostname: "s1", Port: 1}
	handler, _ := newTestHandler(t, req, "foo", server, data)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := handler.HandleRequest(ctx, "req-1", "select count from foo", true, map[string]string{"routingOptions": "r1"})
	assert.NoError(t, err)
	assert.NotEmpty(t, resp.TraceInfo, "enabling trace must surface server trace info in the response")

	resp, err = handler.HandleRequest(ctx, "req-1", "select count from foo", false, nil)
	assert.NoError(t, err)
	assert.Empty(t, resp.TraceInfo, "trace info must not appear unless the caller asked for it")
}

func TestHandleRequestNoTableHit(t *testing.T) {
	req := &qbroker.BrokerRequest{
		QuerySource: qbroker.QuerySource{TableName: "missing"},
		Selections:  &qbroker.Selection{Columns: []string{"count"}, Size: 10},
	}
	handler := &Handler{
		Compiler:             &fakeCompiler{req: req},
		RoutingTable:         routing.NewStaticRoutingTable(),
		TimeBoundaryProvider: routing.NewStaticTimeBoundaryProvider(),
		ReplicaSelector:      replica.NewRoundRobin(),
		Transport:            scatter.NewFakeTransport(),
		ResponseLimit:        1000,
	}

	resp, err := handler.HandleRequest(context.Background(), "req-1", "select count from missing", false, nil)
	assert.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Empty(t, resp.Exceptions, "a query on a missing table gets an empty response, not an exception")
}

func TestHandleRequestValidationFailure(t *testing.T) {
	req := &qbroker.BrokerRequest{
		QuerySource: qbroker.QuerySource{TableName: "foo"},
		Selections:  &qbroker.Selection{Columns: []string{"count"}, Size: 5000},
	}
	server := common.ServerInstance{Hostname: "s1", Port: 1}
	handler, _ := newTestHandler(t, req, "foo", server, nil)
	handler.ResponseLimit = 10

	resp, err := handler.HandleRequest(context.Background(), "req-1", "select count from foo limit 5000", false, nil)
	assert.Error(t, err)
	assert.Nil(t, resp)
	_, ok := err.(*qbroker.QueryValidationError)
	assert.True(t, ok)
}

func TestHandleRequestCompileFailure(t *testing.T) {
	handler := &Handler{
		Compiler:             &fakeCompiler{err: assertErr{}},
		RoutingTable:         routing.NewStaticRoutingTable(),
		TimeBoundaryProvider: routing.NewStaticTimeBoundaryProvider(),
		ReplicaSelector:      replica.NewRoundRobin(),
		Transport:            scatter.NewFakeTransport(),
		ResponseLimit:        1000,
	}

	resp, err := handler.HandleRequest(context.Background(), "req-1", "not valid pql", false, nil)
	assert.Nil(t, resp)
	_, ok := err.(*qbroker.PqlParsingError)
	assert.True(t, ok)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
