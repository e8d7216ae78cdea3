package scatter

import (
	"context"
	"time"

	"github.com/getlantern/mtime"

	"github.com/getlantern/qbroker"
	"github.com/getlantern/qbroker/common"
)

// Assignment is one (server, segments) pair produced by the Candidate
// Server Resolver and Replica Selector (C4/C5) for one physical table.
// Alternates names other candidate servers holding a superset of Segments,
// in preference order; speculative duplication may fire against them if the
// primary hasn't responded by the threshold (spec §4.6).
type Assignment struct {
	Server     common.ServerInstance
	Segments   common.SegmentIdSet
	Alternates []common.ServerInstance
}

// Dispatcher turns a physical table's server assignments into a
// CompositeFuture of in-flight RPCs (C6), one per distinct server.
type Dispatcher struct {
	Transport Transport

	// BrokerId identifies this broker instance to leaf servers (spec §6,
	// pinot.broker.id), carried on every InstanceRequest for log
	// correlation on the server side.
	BrokerId string

	// SpeculativeRequests is how many alternate replicas to duplicate a
	// request to if the primary hasn't answered within
	// SpeculativeThreshold. 0 disables duplication, which is the default
	// (spec §4.6).
	SpeculativeRequests int
	// SpeculativeThreshold is how long to wait for the primary's response
	// before firing speculative duplicates. Ignored when
	// SpeculativeRequests is 0.
	SpeculativeThreshold time.Duration
}

// NewDispatcher creates a Dispatcher using the given Transport, with
// speculative duplication disabled.
func NewDispatcher(transport Transport) *Dispatcher {
	return &Dispatcher{Transport: transport}
}

// ScatterGather serializes req once per server (a fresh Serializer per
// goroutine, never shared) and fires one goroutine per server, grouping all
// of that server's segments into a single InstanceRequest regardless of how
// many segments it holds (spec §4.6). It returns a CompositeFuture the
// caller awaits with its own deadline.
func (d *Dispatcher) ScatterGather(ctx context.Context, requestId, physicalTableName string, req *qbroker.BrokerRequest, assignments []Assignment) *CompositeFuture {
	future := newCompositeFuture(len(assignments))
	for _, a := range assignments {
		assignment := a
		go func() {
			serializer := NewSerializer()
			serialized, err := serializer.Serialize(req)
			if err != nil {
				future.deliver(serverResult{server: assignment.Server, err: err})
				return
			}
			buildReq := func(server common.ServerInstance) *InstanceRequest {
				return &InstanceRequest{
					RequestId:         requestId,
					TraceFlag:         req.EnableTrace,
					PhysicalTableName: physicalTableName,
					Segments:          assignment.Segments,
					BrokerId:          d.BrokerId,
					SerializedQuery:   serialized,
				}
			}
			if d.SpeculativeRequests > 0 && len(assignment.Alternates) > 0 {
				d.dispatchSpeculative(ctx, assignment, buildReq, future)
				return
			}
			dispatchOne(ctx, d.Transport, assignment.Server, buildReq(assignment.Server), future)
		}()
	}
	return future
}

// dispatchSpeculative fires the primary immediately and, if it hasn't
// answered within SpeculativeThreshold, duplicates the request to up to
// SpeculativeRequests alternates, delivering whichever response arrives
// first to future and discarding the rest (spec §4.6's optional speculative
// duplication to a second replica after a per-request threshold).
func (d *Dispatcher) dispatchSpeculative(ctx context.Context, assignment Assignment, buildReq func(common.ServerInstance) *InstanceRequest, future *CompositeFuture) {
	results := make(chan serverResult, 1+len(assignment.Alternates))
	fire := func(server common.ServerInstance) {
		elapsed := mtime.Stopwatch()
		data, err := d.Transport.ExecuteQuery(ctx, server, buildReq(server))
		results <- serverResult{server: server, data: data, err: err, duration: elapsed()}
	}

	go fire(assignment.Server)

	timer := time.NewTimer(d.SpeculativeThreshold)
	defer timer.Stop()

	select {
	case r := <-results:
		future.deliver(r)
		return
	case <-ctx.Done():
		future.deliver(serverResult{server: assignment.Server, err: ctx.Err()})
		return
	case <-timer.C:
	}

	n := d.SpeculativeRequests
	if n > len(assignment.Alternates) {
		n = len(assignment.Alternates)
	}
	for i := 0; i < n; i++ {
		go fire(assignment.Alternates[i])
	}

	select {
	case r := <-results:
		future.deliver(r)
	case <-ctx.Done():
		future.deliver(serverResult{server: assignment.Server, err: ctx.Err()})
	}
}
