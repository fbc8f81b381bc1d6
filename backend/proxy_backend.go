package backend

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/storage"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// ProxyStore is the subset of proxystore.Store's surface ProxyBackend
// depends on -- declared here, rather than importing proxystore directly,
// to keep backend free of a dependency on the concrete transport.
type ProxyStore interface {
	storage.DataChunkStorage
}

// ProxyBackend adapts a ProxyStore (typically a *proxystore.Store) to the
// Processing interface, per spec.md §4.5's proxy backend: Get/Put/Remove/
// FlushPeerSessions are forwarded to an upstream peer instead of touching
// local storage. Unlike DataChunkStorageBackend, the underlying store has
// no task/queue model of its own, so ProxyBackend owns the internal queue
// that turns each synchronous call into a Task.
type ProxyBackend struct {
	store ProxyStore
	queue *task.Queue
}

// NewProxyBackend constructs a ProxyBackend over store, running at most
// concurrency operations at a time.
func NewProxyBackend(io *task.IOService, store ProxyStore, concurrency int) *ProxyBackend {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ProxyBackend{store: store, queue: task.NewQueue(io, concurrency, task.KeepNone)}
}

func (pb *ProxyBackend) CreateBackendProcessingTask(
	ctx context.Context,
	op OperationID,
	cmd CommandID,
	sessionID protocol.ChunkID,
	chunkID protocol.ChunkID,
	sourcePeerID protocol.PeerID,
	targetPeerID protocol.PeerID,
	data *block.DataBlock,
) (*task.Task, error) {
	if err := ValidateParameters(op, cmd, chunkID); err != nil {
		return nil, err
	}

	var body func(tok *task.ControlToken) error
	switch op {
	case Get:
		body = func(tok *task.ControlToken) error { return pb.store.Load(sessionID, chunkID, data) }
	case Put:
		body = func(tok *task.ControlToken) error { return pb.store.Save(sessionID, chunkID, data) }
	case CommandOp:
		switch cmd {
		case CommandRemove:
			body = func(tok *task.ControlToken) error { return pb.store.Remove(sessionID, chunkID) }
		case CommandFlushPeerSessions:
			body = func(tok *task.ControlToken) error {
				if sessionID == protocol.NilID {
					return pb.store.FlushPeerSessions(nil)
				}
				return pb.store.FlushPeerSessions(&sessionID)
			}
		default:
			return nil, errors.Errorf("proxy backend does not handle command %v", cmd)
		}
	default:
		return nil, errors.Errorf("proxy backend does not handle operation %v", op)
	}

	var t = task.New("proxy-backend-task", body, nil)
	if err := pb.queue.PushBack(t, false); err != nil {
		return nil, err
	}
	return t, nil
}
