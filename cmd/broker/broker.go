// broker is the executable for the query-fanout broker: it exposes the
// pipeline over HTTP given a routing table source and a leaf-server
// transport.
package main

import (
	"flag"
	"math"
	"net"
	"os"
	"time"

	"github.com/getlantern/golog"
	"github.com/vharitonsky/iniflags"

	"github.com/getlantern/qbroker/pipeline"
	"github.com/getlantern/qbroker/replica"
	"github.com/getlantern/qbroker/routing"
	"github.com/getlantern/qbroker/scatter"
	"github.com/getlantern/qbroker/web"
)

var log = golog.LoggerFor("qbroker")

func defaultBrokerId() string {
	host, err := os.Hostname()
	if err != nil {
		return "broker"
	}
	return host
}

func main() {
	var (
		httpAddr             = flag.String("httpaddr", "localhost:9000", "address to listen for JSON /query requests")
		brokerId             = flag.String("brokerid", defaultBrokerId(), "identifier for this broker instance, sent to servers with every request (pinot.broker.id)")
		responseLimit        = flag.Int("responselimit", math.MaxInt32, "maximum LIMIT/TOP value any single query may request (pinot.broker.query.response.limit)")
		queryTimeout         = flag.Duration("querytimeout", 10*time.Second, "maximum time to wait for scatter/gather to complete (pinot.broker.timeoutMs)")
		replicaPolicy        = flag.String("replicapolicy", "roundrobin", "replica selection policy: roundrobin, random or hash")
		speculativeRequests  = flag.Int("speculativerequests", 0, "number of alternate replicas to duplicate a request to if the primary is slow; 0 disables duplication")
		speculativeThreshold = flag.Duration("speculativethreshold", 50*time.Millisecond, "how long to wait for the primary before firing speculative duplicates; ignored when speculativerequests is 0")
	)

	iniflags.Parse()

	var selector replica.Selection
	switch *replicaPolicy {
	case "random":
		selector = replica.NewRandom()
	case "hash":
		selector = replica.NewHash()
	default:
		selector = replica.NewRoundRobin()
	}

	// Compiler is deliberately left for the deployer to set: the query
	// language compiler is an external collaborator (see qbroker.Compiler)
	// that this binary does not ship with.
	handler := &pipeline.Handler{
		RoutingTable:         routing.NewStaticRoutingTable(),
		TimeBoundaryProvider: routing.NewStaticTimeBoundaryProvider(),
		ReplicaSelector:      selector,
		Transport:            scatter.NewGRPCTransport(),
		ResponseLimit:        *responseLimit,
		QueryTimeout:         *queryTimeout,
		BrokerId:             *brokerId,
		SpeculativeRequests:  *speculativeRequests,
		SpeculativeThreshold: *speculativeThreshold,
	}

	l, err := net.Listen("tcp", *httpAddr)
	if err != nil {
		log.Fatalf("unable to listen on %v: %v", *httpAddr, err)
	}
	log.Debugf("listening for queries on %v", *httpAddr)

	if err := web.Serve(handler, l, &web.Opts{QueryTimeout: *queryTimeout}); err != nil {
		log.Fatalf("web server exited: %v", err)
	}
}
