package scatter

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/getlantern/qbroker/common"
)

// serviceDesc mirrors the teacher's hand-rolled grpc.ServiceDesc pattern
// (one stream per RPC, msgpack-coded), adapted to the broker's single
// unary-shaped call: send one framed InstanceRequest, get back one framed
// response.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "qbroker",
	HandlerType: (*instanceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "executeQuery",
			Handler:    executeQueryHandler,
		},
	},
}

// instanceServer is implemented by the leaf query-execution engine; it is
// an external collaborator (spec §1, "out of scope") documented here only
// so the wire contract is explicit.
type instanceServer interface {
	ExecuteQuery(ctx context.Context, req *InstanceRequest) ([]byte, error)
}

func executeQueryHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var req wireFrame
	if err := dec(&req); err != nil {
		return nil, err
	}
	resp, err := srv.(instanceServer).ExecuteQuery(ctx, req.toInstanceRequest())
	if err != nil {
		return nil, err
	}
	return &wireFrame{Data: resp}, nil
}

// wireFrame mirrors InstanceRequest field-for-field (spec §4.6's
// (requestId, traceFlag, brokerRequest, segmentNames, brokerId) tuple) so
// that RequestId, TraceFlag, BrokerId and Segments travel to the server
// alongside the pre-framed BrokerRequest bytes (see Serializer), instead of
// only the opaque query payload.
type wireFrame struct {
	RequestId         string
	TraceFlag         bool
	PhysicalTableName string
	Segments          []string
	BrokerId          string
	Data              []byte
}

func newWireFrame(req *InstanceRequest) *wireFrame {
	return &wireFrame{
		RequestId:         req.RequestId,
		TraceFlag:         req.TraceFlag,
		PhysicalTableName: req.PhysicalTableName,
		Segments:          req.Segments.Names(),
		BrokerId:          req.BrokerId,
		Data:              req.SerializedQuery,
	}
}

func (w *wireFrame) toInstanceRequest() *InstanceRequest {
	return &InstanceRequest{
		RequestId:         w.RequestId,
		TraceFlag:         w.TraceFlag,
		PhysicalTableName: w.PhysicalTableName,
		Segments:          common.NewSegmentIdSet(w.Segments...),
		BrokerId:          w.BrokerId,
		SerializedQuery:   w.Data,
	}
}

var msgpackCodec = &MsgPackCodec{}

// GRPCTransport dials each server lazily on first use and keeps the
// connection open for reuse, the same pooling behavior as the teacher's
// rpc.Dial call sites.
type GRPCTransport struct {
	mx    sync.Mutex
	conns map[common.ServerInstance]*grpc.ClientConn

	// DialTimeout bounds how long dialing a new server connection may take.
	DialTimeout time.Duration
}

// NewGRPCTransport creates a transport with a connection pool.
func NewGRPCTransport() *GRPCTransport {
	return &GRPCTransport{
		conns:       make(map[common.ServerInstance]*grpc.ClientConn),
		DialTimeout: 10 * time.Second,
	}
}

func (t *GRPCTransport) connFor(server common.ServerInstance) (*grpc.ClientConn, error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if cc, ok := t.conns[server]; ok {
		return cc, nil
	}
	dialer := snappyDialContext(func(ctx context.Context, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: t.DialTimeout}
		return d.DialContext(ctx, "tcp", addr)
	})
	cc, err := grpc.Dial(
		fmt.Sprintf("%s:%d", server.Hostname, server.Port),
		grpc.WithInsecure(),
		grpc.WithCodec(msgpackCodec),
		grpc.WithContextDialer(dialer),
		grpc.WithBackoffMaxDelay(t.DialTimeout),
	)
	if err != nil {
		return nil, err
	}
	t.conns[server] = cc
	return cc, nil
}

func (t *GRPCTransport) ExecuteQuery(ctx context.Context, server common.ServerInstance, req *InstanceRequest) ([]byte, error) {
	cc, err := t.connFor(server)
	if err != nil {
		return nil, err
	}
	reply := &wireFrame{}
	if err := cc.Invoke(ctx, "/qbroker/executeQuery", newWireFrame(req), reply); err != nil {
		return nil, err
	}
	return reply.Data, nil
}

// Close releases all pooled connections.
func (t *GRPCTransport) Close() error {
	t.mx.Lock()
	defer t.mx.Unlock()
	var firstErr error
	for server, cc := range t.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.conns, server)
	}
	return firstErr
}
