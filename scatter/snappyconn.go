package scatter

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/golang/snappy"
)

// snappyFlushInterval controls how often a snappyConn's buffered writer is
// flushed, so small framed requests don't sit buffered indefinitely waiting
// for more data to fill a snappy block.
const snappyFlushInterval = 50 * time.Millisecond

// snappyDialContext adapts a context.Context dialer into one that wraps
// every connection it makes in snappy compression, for use with
// grpc.WithContextDialer. DataTable payloads carry full result rows and
// compress well, the same tradeoff the teacher made for its own rpc
// connections.
func snappyDialContext(d func(context.Context, string) (net.Conn, error)) func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, addr string) (net.Conn, error) {
		return snappyWrap(d(ctx, addr))
	}
}

func snappyWrap(conn net.Conn, err error) (net.Conn, error) {
	if err != nil {
		return nil, err
	}
	sc := &snappyConn{
		Conn: conn,
		r:    snappy.NewReader(conn),
		w:    snappy.NewBufferedWriter(conn),
		done: make(chan struct{}),
	}
	go sc.flushPeriodically()
	return sc, nil
}

// snappyConn wraps a net.Conn with snappy framing on both directions. The
// writer is buffered, so a background goroutine flushes it on an interval
// independent of the next Write call.
type snappyConn struct {
	net.Conn
	r       *snappy.Reader
	w       *snappy.Writer
	flushMx sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func (sc *snappyConn) flushPeriodically() {
	ticker := time.NewTicker(snappyFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sc.flushMx.Lock()
			err := sc.w.Flush()
			sc.flushMx.Unlock()
			if err != nil {
				return
			}
		case <-sc.done:
			return
		}
	}
}

func (sc *snappyConn) Read(p []byte) (int, error) {
	return sc.r.Read(p)
}

func (sc *snappyConn) Write(p []byte) (int, error) {
	sc.flushMx.Lock()
	defer sc.flushMx.Unlock()
	return sc.w.Write(p)
}

func (sc *snappyConn) Close() error {
	sc.once.Do(func() { close(sc.done) })
	return sc.Conn.Close()
}
