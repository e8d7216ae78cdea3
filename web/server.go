// Package web exposes the broker's pipeline over HTTP: a single JSON
// /query endpoint, adapted from the teacher's gorilla/mux-routed server
// (web/server.go) with the OAuth/cookie/cache/insert machinery dropped -
// the broker core has no authentication or ingestion concerns.
package web

import (
	"net"
	"net/http"
	"time"

	"github.com/getlantern/golog"
	"github.com/gorilla/mux"

	"github.com/getlantern/qbroker/pipeline"
)

var log = golog.LoggerFor("qbroker.web")

// Opts configures the HTTP server.
type Opts struct {
	// QueryTimeout bounds how long a single /query request may run before
	// the server gives up waiting on the pipeline (defaults to the
	// handler's own QueryTimeout if zero).
	QueryTimeout time.Duration
}

// Serve starts an HTTP server on l, routing /query to the given pipeline
// Handler and /debug/stats to the metrics snapshot.
func Serve(handler *pipeline.Handler, l net.Listener, opts *Opts) error {
	h := &httpHandler{pipeline: handler, opts: *opts}

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/query", h.query).Methods("POST")
	router.HandleFunc("/debug/routingTable/{table}", h.dumpRoutingTable).Methods("GET")
	router.HandleFunc("/debug/stats", h.stats).Methods("GET")

	return http.Serve(l, router)
}
