package transferpool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/errs"
	"github.com/jpmorganchase/swblocks-baselib-sub004/transfer"
)

// startFakeSink accepts connections and negotiates, discarding whatever it
// receives; the pool test observes delivery via its own counters instead.
func startFakeSink(t *testing.T) (addr string, stop func()) {
	t.Helper()
	var ln, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			var conn, acceptErr = ln.Accept()
			if acceptErr != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				var ep = transfer.NewEndpoint(c, false)
				if negErr := ep.NegotiateServer(); negErr != nil {
					return
				}
				for {
					if _, _, recvErr := ep.Recv(&sinkPool{}); recvErr != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

type sinkPool struct{}

func (sinkPool) Get() *block.DataBlock { return block.NewDataBlock(256) }

func dialTCP(ctx context.Context, addr string) (*transfer.Endpoint, error) {
	var conn, err = net.Dial("tcp", addr)
	if err != nil {
		return nil, errs.Wrap(err, errs.Timeout, "dial")
	}
	var ep = transfer.NewEndpoint(conn, false)
	if negErr := ep.NegotiateClient(); negErr != nil {
		_ = conn.Close()
		return nil, errs.Wrap(negErr, errs.ServerNoConnection, "negotiate")
	}
	return ep, nil
}

func TestPoolSubmitDeliversChunkToUpstream(t *testing.T) {
	var addr, stop = startFakeSink(t)
	defer stop()

	var selector = transfer.NewEndpointSelector(addr)
	var p = New(1, selector, transfer.DefaultReconnectPolicy(), dialTCP, nil, false)
	defer p.Stop()

	var data = block.NewDataBlock(8)
	require.NoError(t, data.SetPayloadAndHeader([]byte("payload"), nil))

	require.NoError(t, p.Submit(&WorkItem{ChunkID: uuid.New(), Data: data, SafeToReconnect: true}))

	require.Eventually(t, func() bool { return p.totalBlocks.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(len("payload")), p.totalDataSize.Load())
}

func TestPoolSubmitAfterStopFails(t *testing.T) {
	var addr, stop = startFakeSink(t)
	defer stop()

	var selector = transfer.NewEndpointSelector(addr)
	var p = New(1, selector, transfer.DefaultReconnectPolicy(), dialTCP, nil, false)
	p.Stop()

	var err = p.Submit(&WorkItem{ChunkID: uuid.New(), Data: block.NewDataBlock(1), SafeToReconnect: true})
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.ObjectDisconnected, e.Kind)
}
