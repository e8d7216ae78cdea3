package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/getlantern/qbroker"
	"github.com/getlantern/qbroker/metrics"
	"github.com/getlantern/qbroker/pipeline"
)

type httpHandler struct {
	pipeline *pipeline.Handler
	opts     Opts
}

// queryRequest is the wire shape of a POST /query body (spec §6): trace and
// debugOptions travel as strings, exactly as
// BrokerRequestHandler.handleRequest parses them
// (Boolean.parseBoolean(request.getString("trace")) and a ';'/'='-delimited
// debugOptions string), not as JSON bool/object values.
type queryRequest struct {
	Pql          string `json:"pql"`
	Trace        string `json:"trace"`
	DebugOptions string `json:"debugOptions"`
}

// parseTrace mirrors Java's Boolean.parseBoolean: any value other than a
// case-insensitive "true" is false, and an absent or malformed value never
// fails the request.
func parseTrace(s string) bool {
	return strings.EqualFold(s, "true")
}

// parseDebugOptions splits a "k1=v1;k2=v2" string into a map, mirroring
// Guava's Splitter.on(';').withKeyValueSeparator('=') as used by
// BrokerRequestHandler.handleRequest. Entries without an '=' are skipped.
func parseDebugOptions(s string) map[string]string {
	if s == "" {
		return nil
	}
	options := make(map[string]string)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) != 2 {
			continue
		}
		options[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return options
}

// queryResponse is the wire shape of the broker's reduced result (spec
// §6), matching the field names servers and dashboards built against this
// broker already expect.
type queryResponse struct {
	SelectionResults   interface{}            `json:"selectionResults,omitempty"`
	AggregationResults interface{}            `json:"aggregationResults,omitempty"`
	GroupByResults     interface{}            `json:"groupByResults,omitempty"`
	Exceptions         []exceptionJSON        `json:"exceptions"`
	NumDocsScanned     int64                  `json:"numDocsScanned"`
	NumEntriesInFilter int64                  `json:"numEntriesScannedInFilter"`
	NumEntriesPostFilter int64                `json:"numEntriesScannedPostFilter"`
	TotalDocs          int64                  `json:"totalDocs"`
	TimeUsedMs         int64                  `json:"timeUsedMs"`
	TraceInfo          map[string]string      `json:"traceInfo,omitempty"`
}

type exceptionJSON struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
}

func (h *httpHandler) query(resp http.ResponseWriter, req *http.Request) {
	var q queryRequest
	if err := json.NewDecoder(req.Body).Decode(&q); err != nil {
		http.Error(resp, "malformed request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	timeout := h.opts.QueryTimeout
	if timeout == 0 {
		timeout = h.pipeline.QueryTimeout
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()

	start := time.Now()
	requestId := newRequestId()
	result, err := h.pipeline.HandleRequest(ctx, requestId, q.Pql, parseTrace(q.Trace), parseDebugOptions(q.DebugOptions))
	elapsed := time.Since(start)

	if err != nil {
		log.Debugf("request %v failed before dispatch: %v", requestId, err)
		writeSingleException(resp, err, elapsed)
		return
	}

	out := queryResponse{
		Exceptions:           make([]exceptionJSON, 0, len(result.Exceptions)),
		NumDocsScanned:        result.NumDocsScanned,
		NumEntriesInFilter:    result.NumEntriesScannedInFilter,
		NumEntriesPostFilter:  result.NumEntriesScannedPostFilter,
		TotalDocs:             result.TotalDocs,
		TimeUsedMs:            elapsed.Milliseconds(),
		TraceInfo:             result.TraceInfo,
	}
	for _, e := range result.Exceptions {
		out.Exceptions = append(out.Exceptions, exceptionJSON{ErrorCode: e.Code, Message: e.Message})
	}
	if result.SelectionResults != nil {
		out.SelectionResults = result.SelectionResults
	}
	if len(result.AggregationResults) > 0 {
		out.AggregationResults = result.AggregationResults
	}
	if len(result.GroupByResults) > 0 {
		out.GroupByResults = result.GroupByResults
	}

	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(http.StatusOK)
	json.NewEncoder(resp).Encode(&out)
}

func writeSingleException(resp http.ResponseWriter, err error, elapsed time.Duration) {
	code := int(qbroker.InternalErrorCode)
	switch err.(type) {
	case *qbroker.PqlParsingError:
		code = int(qbroker.PqlParsingErrorCode)
	case *qbroker.QueryValidationError:
		code = int(qbroker.QueryValidationErrorCode)
	}
	out := queryResponse{
		Exceptions: []exceptionJSON{{ErrorCode: code, Message: err.Error()}},
		TimeUsedMs: elapsed.Milliseconds(),
	}
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(http.StatusOK)
	json.NewEncoder(resp).Encode(&out)
}

// dumpRoutingTable resolves the logical table name in the URL to its
// physical (offline/realtime-suffixed) tables the same way a live query
// would (qbroker.MatchTables), since RoutingTable.DumpSnapshot itself is
// keyed by physical table name.
func (h *httpHandler) dumpRoutingTable(resp http.ResponseWriter, req *http.Request) {
	logicalTable := mux.Vars(req)["table"]
	physicalTables := qbroker.MatchTables(logicalTable, h.pipeline.RoutingTable)
	if len(physicalTables) == 0 {
		physicalTables = []string{logicalTable}
	}

	var out []string
	for _, t := range physicalTables {
		out = append(out, fmt.Sprintf("%s:\n%s", t, h.pipeline.RoutingTable.DumpSnapshot(t)))
	}

	resp.Header().Set("Content-Type", "text/plain")
	resp.Write([]byte(strings.Join(out, "\n\n")))
}

func (h *httpHandler) stats(resp http.ResponseWriter, req *http.Request) {
	resp.Header().Set("Content-Type", "application/json")
	json.NewEncoder(resp).Encode(metrics.GetStats())
}
