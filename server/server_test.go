package server

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpmorganchase/swblocks-baselib-sub004/backend"
	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/storage"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
	"github.com/jpmorganchase/swblocks-baselib-sub004/transfer"
)

type memStore struct {
	mu   sync.Mutex
	data map[protocol.ChunkID][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[protocol.ChunkID][]byte)} }

func (m *memStore) Load(sessionID, chunkID protocol.ChunkID, data *block.DataBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var v, ok = m.data[chunkID]
	if !ok {
		return assert.AnError
	}
	return data.SetPayloadAndHeader(v, nil)
}

func (m *memStore) Save(sessionID, chunkID protocol.ChunkID, data *block.DataBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[chunkID] = append([]byte(nil), data.Bytes()...)
	return nil
}

func (m *memStore) Remove(sessionID, chunkID protocol.ChunkID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, chunkID)
	return nil
}

func (m *memStore) FlushPeerSessions(sessionID *protocol.ChunkID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[protocol.ChunkID][]byte)
	return nil
}

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()

	var io = task.NewIOService(2)
	var async = storage.NewAsync(io, newMemStore(), newMemStore(), block.NewPool(8, 4096), 4, nil, nil)
	var storageBackend = backend.NewDataChunkStorageBackend(async)
	var brokerBackend = backend.NewBrokerBackend(io, nil, nil, 1)
	var composite = backend.NewCompositeBackend(brokerBackend, storageBackend)

	var srv = New(composite, block.NewPool(8, 4096), false)

	var ln, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var ctx, cancel = context.WithCancel(context.Background())
	go srv.Serve(ctx, ln)

	return ln.Addr().String(), func() {
		cancel()
		ln.Close()
	}
}

func dialClient(t *testing.T, addr string) *transfer.Endpoint {
	t.Helper()
	var conn, err = net.Dial("tcp", addr)
	require.NoError(t, err)
	var ep = transfer.NewEndpoint(conn, false)
	require.NoError(t, ep.NegotiateClient())
	return ep
}

func TestServerPutThenGetRoundTrips(t *testing.T) {
	var addr, stop = startTestServer(t)
	defer stop()

	var ep = dialClient(t, addr)
	defer ep.Close()

	var chunkID = uuid.New()
	var payload = []byte("round trip bytes")
	var putBlock = block.NewDataBlock(len(payload))
	require.NoError(t, putBlock.SetPayloadAndHeader(payload, nil))

	require.NoError(t, ep.Send(transfer.SendChunk, chunkID, transfer.Data, putBlock))
	var h, resp, err = ep.Recv(&alwaysAllocPool{})
	require.NoError(t, err)
	assert.Equal(t, transfer.SendChunk, h.CommandID)
	_ = resp

	require.NoError(t, ep.Send(transfer.ReceiveChunk, chunkID, transfer.Data, nil))
	var h2, resp2, err2 = ep.Recv(&alwaysAllocPool{})
	require.NoError(t, err2)
	assert.Equal(t, transfer.ReceiveChunk, h2.CommandID)
	assert.Equal(t, payload, resp2.Header())
}

func TestServerGetMissingChunkReturnsErrorEnvelope(t *testing.T) {
	var addr, stop = startTestServer(t)
	defer stop()

	var ep = dialClient(t, addr)
	defer ep.Close()

	require.NoError(t, ep.Send(transfer.ReceiveChunk, uuid.New(), transfer.Data, nil))
	var _, resp, err = ep.Recv(&alwaysAllocPool{})
	require.NoError(t, err)
	assert.Contains(t, string(resp.Header()), "exceptionType")
}

type alwaysAllocPool struct{}

func (alwaysAllocPool) Get() *block.DataBlock { return block.NewDataBlock(4096) }
