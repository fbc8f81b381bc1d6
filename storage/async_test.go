package storage

import (
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

func wait(t *testing.T, tt *task.Task) {
	t.Helper()
	select {
	case <-tt.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("storage task did not complete")
	}
}

func TestAsyncPutThenGetRoundTrips(t *testing.T) {
	var store = newMemStore()
	var pool = block.NewPool(2, 64)
	var async = NewAsync(task.NewIOService(2), store, store, pool, 2, nil, nil)

	var sessionID = uuid.New()
	var chunkID = uuid.New()

	var payload = block.NewDataBlock(16)
	require.NoError(t, payload.SetPayloadAndHeader([]byte("hello chunk"), nil))

	var putTask, err = async.CreateTask(OpPut, CmdNone, sessionID, chunkID, protocol.NilID, protocol.NilID, payload)
	require.NoError(t, err)
	wait(t, putTask)
	require.NoError(t, putTask.Exception())

	var out = block.NewDataBlock(16)
	var getTask, gerr = async.CreateTask(OpGet, CmdNone, sessionID, chunkID, protocol.NilID, protocol.NilID, out)
	require.NoError(t, gerr)
	wait(t, getTask)
	require.NoError(t, getTask.Exception())
	assert.Equal(t, "hello chunk", string(out.Payload()))
}

func TestAsyncGetWithNilChunkIdPanics(t *testing.T) {
	var store = newMemStore()
	var async = NewAsync(task.NewIOService(1), store, store, block.NewPool(1, 16), 1, nil, nil)

	assert.Panics(t, func() {
		_, _ = async.CreateTask(OpGet, CmdNone, uuid.New(), protocol.NilID, protocol.NilID, protocol.NilID, block.NewDataBlock(1))
	})
}

func TestAsyncRemoveThenFlushPeerSessions(t *testing.T) {
	var store = newMemStore()
	var async = NewAsync(task.NewIOService(2), store, store, block.NewPool(2, 16), 2, nil, nil)

	var sessionID = uuid.New()
	var chunkID = uuid.New()
	store.data[chunkID] = []byte("x")

	var removeTask, err = async.CreateTask(OpCommand, CmdRemove, sessionID, chunkID, protocol.NilID, protocol.NilID, nil)
	require.NoError(t, err)
	wait(t, removeTask)
	require.NoError(t, removeTask.Exception())

	var flushTask, ferr = async.CreateTask(OpCommand, CmdFlushPeerSessions, protocol.NilID, protocol.NilID, protocol.NilID, protocol.NilID, nil)
	require.NoError(t, ferr)
	wait(t, flushTask)
	require.NoError(t, flushTask.Exception())
}
