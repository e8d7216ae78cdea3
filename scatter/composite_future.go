package scatter

import (
	"context"
	"sync"
	"time"

	"github.com/getlantern/mtime"

	"github.com/getlantern/qbroker/common"
)

// CompositeFuture represents the in-flight set of per-server RPCs for one
// sub-request. It groups by server, not by segment, so that a table spread
// across many thousand segments on a handful of servers still only opens
// one goroutine and one RPC per server (spec §4.6/§4.7).
type CompositeFuture struct {
	results chan serverResult
	total   int

	mx        sync.Mutex
	responses map[common.ServerInstance][]byte
	errs      map[common.ServerInstance]error
	times     map[string]time.Duration
	received  int
}

type serverResult struct {
	server   common.ServerInstance
	data     []byte
	err      error
	duration time.Duration
}

// newCompositeFuture allocates a future expecting n server results.
func newCompositeFuture(n int) *CompositeFuture {
	return &CompositeFuture{
		results:   make(chan serverResult, n),
		total:     n,
		responses: make(map[common.ServerInstance][]byte, n),
		errs:      make(map[common.ServerInstance]error),
		times:     make(map[string]time.Duration, n),
	}
}

func (f *CompositeFuture) deliver(r serverResult) {
	f.results <- r
}

// Await blocks until every expected server has responded or errored, or the
// context's deadline elapses first, whichever comes first. A per-server
// timeout does not fail the whole future: a failed server is recorded in
// Errors(), a server still outstanding at the deadline is absent from both
// Responses() and Errors(), and the Gather Collector reports either as a
// partial result and still reduces over whatever did come back (spec §4.7).
func (f *CompositeFuture) Await(ctx context.Context) {
	for f.received < f.total {
		select {
		case r := <-f.results:
			f.mx.Lock()
			f.received++
			if r.err != nil {
				f.errs[r.server] = r.err
			} else {
				f.responses[r.server] = r.data
			}
			f.times[r.server.String()] = r.duration
			f.mx.Unlock()
		case <-ctx.Done():
			// Servers that haven't reported in yet are simply absent from
			// Responses()/Errors(); the Gather Collector reports them as
			// gather errors rather than failing the whole query.
			return
		}
	}
}

// Responses returns the raw (not yet decoded) response bytes successfully
// received so far, keyed by server.
func (f *CompositeFuture) Responses() map[common.ServerInstance][]byte {
	f.mx.Lock()
	defer f.mx.Unlock()
	out := make(map[common.ServerInstance][]byte, len(f.responses))
	for k, v := range f.responses {
		out[k] = v
	}
	return out
}

// Errors returns the per-server errors (transport failures or timeouts)
// observed so far.
func (f *CompositeFuture) Errors() map[common.ServerInstance]error {
	f.mx.Lock()
	defer f.mx.Unlock()
	out := make(map[common.ServerInstance]error, len(f.errs))
	for k, v := range f.errs {
		out[k] = v
	}
	return out
}

// ResponseTimes returns the per-server wall-clock durations observed so
// far, for ScatterGatherStats.
func (f *CompositeFuture) ResponseTimes() map[string]time.Duration {
	f.mx.Lock()
	defer f.mx.Unlock()
	out := make(map[string]time.Duration, len(f.times))
	for k, v := range f.times {
		out[k] = v
	}
	return out
}

// dispatchOne issues one server's RPC, timing it with mtime.Stopwatch the
// same way the teacher's cluster query loop times each partition's round
// trip, and delivers the result to the future regardless of outcome.
func dispatchOne(ctx context.Context, transport Transport, server common.ServerInstance, req *InstanceRequest, future *CompositeFuture) {
	elapsed := mtime.Stopwatch()
	data, err := transport.ExecuteQuery(ctx, server, req)
	future.deliver(serverResult{server: server, data: data, err: err, duration: elapsed()})
}
