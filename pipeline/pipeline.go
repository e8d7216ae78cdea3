// Package pipeline wires together the broker's component packages into the
// end-to-end request flow: compile -> validate -> route -> scatter ->
// gather -> reduce (spec §2), adapted from the teacher's
// BrokerRequestHandler-equivalent orchestration in cluster_query.go.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/golog"
	"github.com/getlantern/mtime"
	"github.com/getlantern/withtimeout"

	"github.com/getlantern/qbroker"
	"github.com/getlantern/qbroker/common"
	"github.com/getlantern/qbroker/datatable"
	"github.com/getlantern/qbroker/metrics"
	"github.com/getlantern/qbroker/reduce"
	"github.com/getlantern/qbroker/replica"
	"github.com/getlantern/qbroker/routing"
	"github.com/getlantern/qbroker/scatter"
)

var log = golog.LoggerFor("qbroker.pipeline")

// defaultCompileTimeout bounds Compiler.Compile when the handler has no
// QueryTimeout configured, since Compile takes no context.Context and an
// external collaborator's compiler must not be allowed to hang a request
// forever.
const defaultCompileTimeout = 5 * time.Second

// State names one stage of a single request's progress through the
// pipeline, used only for logging/debugging - the pipeline itself is
// driven by ordinary control flow, not a state machine object.
type State string

const (
	StateCompiled      State = "COMPILED"
	StateCompileFailed State = "COMPILE_FAILED"
	StateValidated     State = "VALIDATED"
	StateValidateFailed State = "VALIDATE_FAILED"
	StateRouted        State = "ROUTED"
	StateScattered     State = "SCATTERED"
	StateGathered      State = "GATHERED"
	StateReduced       State = "REDUCED"
	StateReturned      State = "RETURNED"
)

// Handler owns every collaborator the pipeline needs: the external query
// compiler, the routing and time-boundary providers, the replica selection
// policy, and the transport used to reach leaf servers.
type Handler struct {
	Compiler             qbroker.Compiler
	RoutingTable         routing.RoutingTable
	TimeBoundaryProvider routing.TimeBoundaryProvider
	ReplicaSelector      replica.Selection
	Transport            scatter.Transport

	// ResponseLimit bounds LIMIT/TOP clauses (spec §4.1, C1).
	ResponseLimit int
	// QueryTimeout bounds the whole scatter/gather phase, halved per hybrid
	// sub-request the same way the teacher's queryCluster halves a
	// context's deadline for each remote round trip.
	QueryTimeout time.Duration

	// BrokerId identifies this broker instance on every InstanceRequest it
	// sends (spec §6, pinot.broker.id).
	BrokerId string
	// SpeculativeRequests is how many alternate replicas the dispatcher
	// duplicates a request to if the primary hasn't responded within
	// SpeculativeThreshold. 0 (the default) disables duplication (spec
	// §4.6).
	SpeculativeRequests int
	// SpeculativeThreshold is how long the dispatcher waits for the primary
	// before firing speculative duplicates. Ignored when
	// SpeculativeRequests is 0.
	SpeculativeThreshold time.Duration
}

// HandleRequest runs one query string through the full pipeline and
// returns the reduced response, or an error if the query never made it to
// dispatch (compile or validation failure - spec §2's COMPILE_FAILED /
// VALIDATE_FAILED terminal states). trace and debugOptions are the
// caller-supplied overrides from the HTTP wire shape (spec §6); they are
// applied to the compiled request regardless of what the query language
// itself carries, since tracing and routingOptions are transport-level
// concerns, not part of the query text.
func (h *Handler) HandleRequest(ctx context.Context, requestId, queryString string, trace bool, debugOptions map[string]string) (*reduce.BrokerResponse, error) {
	metrics.QueryReceived()
	state := StateCompiled

	compileStart := mtime.Stopwatch()
	compileTimeout := h.QueryTimeout
	if compileTimeout <= 0 {
		compileTimeout = defaultCompileTimeout
	}
	result, timedOut, err := withtimeout.Do(compileTimeout, func() (interface{}, error) {
		return h.Compiler.Compile(queryString)
	})
	metrics.PhaseCompleted(metrics.PhaseCompile, compileStart())
	if timedOut {
		state = StateCompileFailed
		log.Debugf("request %v: %v: compiler did not respond within %v", requestId, state, compileTimeout)
		return nil, &qbroker.PqlParsingError{Cause: fmt.Errorf("compilation timed out after %v", compileTimeout)}
	}
	if err != nil {
		state = StateCompileFailed
		log.Debugf("request %v: %v: %v", requestId, state, err)
		return nil, &qbroker.PqlParsingError{Cause: err}
	}
	req := result.(*qbroker.BrokerRequest)
	req.EnableTrace = trace
	req.DebugOptions = debugOptions

	validateStart := mtime.Stopwatch()
	req = qbroker.Optimize(req)
	if verr := qbroker.Validate(req, h.ResponseLimit); verr != nil {
		metrics.PhaseCompleted(metrics.PhaseValidate, validateStart())
		state = StateValidateFailed
		log.Debugf("request %v: %v: %v", requestId, state, verr)
		return nil, verr
	}
	metrics.PhaseCompleted(metrics.PhaseValidate, validateStart())
	state = StateValidated

	routeStart := mtime.Stopwatch()
	physicalTables := qbroker.MatchTables(req.QuerySource.TableName, h.RoutingTable)
	if len(physicalTables) == 0 {
		metrics.PhaseCompleted(metrics.PhaseRoute, routeStart())
		return reduce.EmptyResponse(), nil
	}
	subRequests := qbroker.Split(req, physicalTables, h.TimeBoundaryProvider)
	metrics.PhaseCompleted(metrics.PhaseRoute, routeStart())
	state = StateRouted

	gathered := make(map[common.ServerInstance]*datatable.DataTable)
	var allExceptions []reduce.ProcessingException

	if h.QueryTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, h.QueryTimeout)
		defer cancelTimeout()
	}
	deadline, hasDeadline := ctx.Deadline()
	subCtx := ctx
	if hasDeadline && len(subRequests) > 1 {
		// Halving the deadline across offline+realtime sub-requests mirrors
		// the teacher's queryCluster, which halves the context deadline for
		// each level of fan-out so outer callers still see their own
		// deadline honored.
		half := time.Until(deadline) / time.Duration(len(subRequests))
		var cancel context.CancelFunc
		subCtx, cancel = context.WithTimeout(ctx, half)
		defer cancel()
	}

	routingOptions := routing.ParseRoutingOptions(req.DebugOptions)
	dispatcher := &scatter.Dispatcher{
		Transport:            h.Transport,
		BrokerId:             h.BrokerId,
		SpeculativeRequests:  h.SpeculativeRequests,
		SpeculativeThreshold: h.SpeculativeThreshold,
	}

	scatterStart := mtime.Stopwatch()
	state = StateScattered
	futures := make(map[string]*scatter.CompositeFuture, len(subRequests))
	assigned := make(map[string][]scatter.Assignment, len(subRequests))
	for _, sub := range subRequests {
		candidates := h.RoutingTable.Lookup(sub.PhysicalTableName, routingOptions)
		assignments := resolveAssignments(candidates, h.ReplicaSelector)
		assigned[sub.PhysicalTableName] = assignments
		futures[sub.PhysicalTableName] = dispatcher.ScatterGather(subCtx, requestId, sub.PhysicalTableName, sub.Request, assignments)
	}
	metrics.PhaseCompleted(metrics.PhaseScatter, scatterStart())

	gatherStart := mtime.Stopwatch()
	state = StateGathered
	stats := common.NewScatterGatherStats()
	for physicalTableName, future := range futures {
		future.Await(subCtx)
		// Keyed by physical table, not bare server: a hybrid query's offline
		// and realtime sub-requests can both land on the same host, and
		// ScatterGatherStats would otherwise merge their timings under one
		// "host:port" key, silently discarding one sub-request's numbers.
		times := make(map[string]time.Duration, len(subRequests))
		for server, d := range future.ResponseTimes() {
			times[physicalTableName+"/"+server] = d
		}
		stats.SetResponseTimeMillis(times)
		responses, errs := future.Responses(), future.Errors()
		for _, a := range assigned[physicalTableName] {
			seen := false
			for _, s := range append([]common.ServerInstance{a.Server}, a.Alternates...) {
				_, ok := responses[s]
				_, failed := errs[s]
				seen = seen || ok || failed
			}
			if !seen {
				allExceptions = append(allExceptions, asProcessingException(qbroker.NewGatherError("no response from %v for %v before the deadline", a.Server, physicalTableName)))
				metrics.ExceptionRaised()
			}
		}
		for server, data := range future.Responses() {
			table, derr := datatable.Unmarshal(data)
			if derr != nil {
				allExceptions = append(allExceptions, asProcessingException(qbroker.NewDeserializationError(
					"unable to deserialize response from %v for %v: %v", server, physicalTableName, derr)))
				metrics.ExceptionRaised()
				continue
			}
			if len(subRequests) > 1 {
				server = server.WithSequence(sequenceFor(physicalTableName))
			}
			gathered[server] = table
		}
		for server, serr := range future.Errors() {
			allExceptions = append(allExceptions, asProcessingException(qbroker.NewGatherError(
				"gather failed for %v on %v: %v", server, physicalTableName, serr)))
			metrics.ExceptionRaised()
		}
	}
	metrics.PhaseCompleted(metrics.PhaseGather, gatherStart())

	reduceStart := mtime.Stopwatch()
	state = StateReduced
	resp := reduce.Reduce(req, gathered)
	resp.Exceptions = append(resp.Exceptions, allExceptions...)
	metrics.PhaseCompleted(metrics.PhaseReduce, reduceStart())

	state = StateReturned
	log.Debugf("request %v reached %v, scanned %v docs across %v exceptions, server response times: %v", requestId, state,
		humanize.Comma(resp.NumDocsScanned), len(resp.Exceptions), stats.ResponseTimes())
	return resp, nil
}

// resolveAssignments applies the replica selector to each segment's
// candidate set and groups the resulting picks by server, so the dispatcher
// still sees one assignment per server regardless of how many segments
// landed on it (spec §4.5/§4.6).
func resolveAssignments(candidates map[common.ServerInstance]common.SegmentIdSet, selector replica.Selection) []scatter.Assignment {
	// Build the reverse index: segment -> candidate servers.
	bySegment := make(map[string][]common.ServerInstance)
	for server, segments := range candidates {
		for _, seg := range segments.Names() {
			bySegment[seg] = append(bySegment[seg], server)
		}
	}

	bySelectedServer := make(map[common.ServerInstance]map[string]struct{})
	for seg, servers := range bySegment {
		if len(servers) == 0 {
			continue
		}
		picked := selector.Select(seg, servers)
		if bySelectedServer[picked] == nil {
			bySelectedServer[picked] = make(map[string]struct{})
		}
		bySelectedServer[picked][seg] = struct{}{}
	}

	assignments := make([]scatter.Assignment, 0, len(bySelectedServer))
	for server, segs := range bySelectedServer {
		names := make([]string, 0, len(segs))
		for seg := range segs {
			names = append(names, seg)
		}
		segments := common.NewSegmentIdSet(names...)
		assignments = append(assignments, scatter.Assignment{
			Server:     server,
			Segments:   segments,
			Alternates: alternatesFor(server, segments, candidates),
		})
	}
	return assignments
}

// alternatesFor names the other candidate servers that, on their own, hold
// every segment in segments - i.e. servers that could legitimately stand in
// for the whole assignment if speculative duplication needs a second
// replica to race against the primary (spec §4.6). The result is sorted by
// server identity so it is stable across calls, matching scatter.
// Assignment.Alternates' documented "preference order" - candidates is a
// map and iterating it directly would otherwise pick a different, arbitrary
// subset of alternates to duplicate to on every process/run.
func alternatesFor(primary common.ServerInstance, segments common.SegmentIdSet, candidates map[common.ServerInstance]common.SegmentIdSet) []common.ServerInstance {
	var alternates []common.ServerInstance
	for server, held := range candidates {
		if server == primary {
			continue
		}
		coversAll := true
		for seg := range segments {
			if _, ok := held[seg]; !ok {
				coversAll = false
				break
			}
		}
		if coversAll {
			alternates = append(alternates, server)
		}
	}
	sort.Slice(alternates, func(i, j int) bool {
		return alternates[i].String() < alternates[j].String()
	})
	return alternates
}

// asProcessingException adapts a qbroker.ProcessingException (whose Code is
// qbroker.ErrorCode) into reduce.ProcessingException (whose Code is a plain
// int), so the pipeline can build every gather/deserialization exception
// through the same constructors the root package exports instead of
// duplicating their message formats.
func asProcessingException(e *qbroker.ProcessingException) reduce.ProcessingException {
	return reduce.ProcessingException{Code: int(e.Code), Message: e.Message}
}

// sequenceFor disambiguates federated responses from the same physical
// server across offline/realtime sub-requests (spec §3's ServerInstance.
// Sequence), deferring to qbroker.IsRealtimeTableName as the single source
// of truth for the offline/realtime naming convention.
func sequenceFor(physicalTableName string) int {
	if qbroker.IsRealtimeTableName(physicalTableName) {
		return 2
	}
	return 1
}
