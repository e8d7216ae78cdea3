package scatter

import (
	"context"
	"sync"

	"github.com/getlantern/qbroker/common"
)

// FakeTransport is an in-memory Transport for deterministic tests: it
// never touches the network, so tests can assert exact responses and
// exercise error/timeout paths without flakiness.
type FakeTransport struct {
	mx        sync.Mutex
	responses map[common.ServerInstance][]byte
	errs      map[common.ServerInstance]error
	// Block, if set, causes ExecuteQuery to hang until ctx is done for any
	// server in this set, simulating an unresponsive server for deadline
	// tests.
	Block map[common.ServerInstance]bool
	calls []common.ServerInstance
}

// NewFakeTransport creates an empty fake transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		responses: make(map[common.ServerInstance][]byte),
		errs:      make(map[common.ServerInstance]error),
	}
}

// SetResponse configures the bytes ExecuteQuery returns for server.
func (t *FakeTransport) SetResponse(server common.ServerInstance, data []byte) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.responses[server] = data
}

// SetError configures the error ExecuteQuery returns for server.
func (t *FakeTransport) SetError(server common.ServerInstance, err error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.errs[server] = err
}

// Calls returns the servers ExecuteQuery was invoked for, in call order.
func (t *FakeTransport) Calls() []common.ServerInstance {
	t.mx.Lock()
	defer t.mx.Unlock()
	return append([]common.ServerInstance(nil), t.calls...)
}

func (t *FakeTransport) ExecuteQuery(ctx context.Context, server common.ServerInstance, req *InstanceRequest) ([]byte, error) {
	t.mx.Lock()
	t.calls = append(t.calls, server)
	blocked := t.Block[server]
	t.mx.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	t.mx.Lock()
	defer t.mx.Unlock()
	if err, ok := t.errs[server]; ok {
		return nil, err
	}
	return t.responses[server], nil
}
