package backend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// memProxyStore is a minimal in-memory ProxyStore double standing in for
// proxystore.Store, whose real methods talk to an upstream peer.
type memProxyStore struct {
	mu      sync.Mutex
	data    map[protocol.ChunkID][]byte
	flushed int
}

func newMemProxyStore() *memProxyStore { return &memProxyStore{data: make(map[protocol.ChunkID][]byte)} }

func (m *memProxyStore) Load(sessionID, chunkID protocol.ChunkID, data *block.DataBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var v, ok = m.data[chunkID]
	if !ok {
		return assert.AnError
	}
	return data.SetPayloadAndHeader(v, nil)
}

func (m *memProxyStore) Save(sessionID, chunkID protocol.ChunkID, data *block.DataBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[chunkID] = append([]byte(nil), data.Bytes()...)
	return nil
}

func (m *memProxyStore) Remove(sessionID, chunkID protocol.ChunkID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, chunkID)
	return nil
}

func (m *memProxyStore) FlushPeerSessions(sessionID *protocol.ChunkID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed++
	m.data = make(map[protocol.ChunkID][]byte)
	return nil
}

func waitProxyTask(t *testing.T, tt *task.Task) {
	t.Helper()
	select {
	case <-tt.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("proxy backend task did not complete")
	}
}

func TestProxyBackendPutThenGetRoundTrips(t *testing.T) {
	var store = newMemProxyStore()
	var pb = NewProxyBackend(task.NewIOService(1), store, 2)

	var chunkID = uuid.New()
	var payload = []byte("hello from upstream")
	var putBlock = block.NewDataBlock(len(payload))
	require.NoError(t, putBlock.SetPayloadAndHeader(payload, nil))

	var putTask, err = pb.CreateBackendProcessingTask(context.Background(), Put, CommandNone, protocol.NilID, chunkID, protocol.NilID, protocol.NilID, putBlock)
	require.NoError(t, err)
	waitProxyTask(t, putTask)
	require.NoError(t, putTask.Exception())

	var getBlock = block.NewDataBlock(0)
	var getTask, gerr = pb.CreateBackendProcessingTask(context.Background(), Get, CommandNone, protocol.NilID, chunkID, protocol.NilID, protocol.NilID, getBlock)
	require.NoError(t, gerr)
	waitProxyTask(t, getTask)
	require.NoError(t, getTask.Exception())
	assert.Equal(t, payload, getBlock.Payload())
}

func TestProxyBackendRemove(t *testing.T) {
	var store = newMemProxyStore()
	var pb = NewProxyBackend(task.NewIOService(1), store, 2)

	var chunkID = uuid.New()
	store.data[chunkID] = []byte("to be removed")

	var t1, err = pb.CreateBackendProcessingTask(context.Background(), CommandOp, CommandRemove, protocol.NilID, chunkID, protocol.NilID, protocol.NilID, nil)
	require.NoError(t, err)
	waitProxyTask(t, t1)
	require.NoError(t, t1.Exception())

	store.mu.Lock()
	_, ok := store.data[chunkID]
	store.mu.Unlock()
	assert.False(t, ok)
}

func TestProxyBackendFlushPeerSessions(t *testing.T) {
	var store = newMemProxyStore()
	var pb = NewProxyBackend(task.NewIOService(1), store, 2)

	var t1, err = pb.CreateBackendProcessingTask(context.Background(), CommandOp, CommandFlushPeerSessions, protocol.NilID, protocol.NilID, protocol.NilID, protocol.NilID, nil)
	require.NoError(t, err)
	waitProxyTask(t, t1)
	require.NoError(t, t1.Exception())
	assert.Equal(t, 1, store.flushed)
}

func TestProxyBackendRejectsUnsupportedOperation(t *testing.T) {
	var store = newMemProxyStore()
	var pb = NewProxyBackend(task.NewIOService(1), store, 2)

	var _, err = pb.CreateBackendProcessingTask(context.Background(), Alloc, CommandNone, protocol.NilID, uuid.New(), protocol.NilID, protocol.NilID, nil)
	assert.Error(t, err)
}

func TestProxyBackendValidatesParameters(t *testing.T) {
	var store = newMemProxyStore()
	var pb = NewProxyBackend(task.NewIOService(1), store, 2)

	var _, err = pb.CreateBackendProcessingTask(context.Background(), Get, CommandNone, protocol.NilID, protocol.NilID, protocol.NilID, protocol.NilID, nil)
	assert.Error(t, err)
}
