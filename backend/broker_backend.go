package backend

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jpmorganchase/swblocks-baselib-sub004/authcache"
	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// BrokerBackend implements Processing for the routing/authorization/
// dispatch message flow of spec.md §3/§4.3. Alloc/SecureAlloc/Get/Put and
// the other chunk-storage operations are served by a separate Processing
// implementation (DataChunkStorageBackend); a broker deployment typically
// composes the two behind a single dispatch on OperationID, per
// spec.md §3.13.
type BrokerBackend struct {
	Routing    *RoutingCache
	AuthCache  authcache.Cache
	Dispatcher Dispatcher

	queue *task.Queue
}

// NewBrokerBackend constructs a BrokerBackend. dispatcher may be nil at
// construction time and set later (eg once the listener is up), but must
// be non-nil before any CommandOp task actually reaches its Dispatch
// state, per spec.md §4.3. io backs the queue BrokerBackend uses to
// schedule the broker tasks it hands back, the same way ProxyBackend
// schedules its own -- a Processing implementation owns running the tasks
// it creates.
func NewBrokerBackend(io *task.IOService, authCache authcache.Cache, dispatcher Dispatcher, concurrency int) *BrokerBackend {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BrokerBackend{
		Routing:    NewRoutingCache(),
		AuthCache:  authCache,
		Dispatcher: dispatcher,
		queue:      task.NewQueue(io, concurrency, task.KeepNone),
	}
}

// CreateBackendProcessingTask implements Processing. Only CommandOp is
// meaningful to the broker backend; any other operation is a programming
// error in the caller's dispatch, since chunk-storage operations belong to
// DataChunkStorageBackend.
func (bb *BrokerBackend) CreateBackendProcessingTask(
	ctx context.Context,
	op OperationID,
	cmd CommandID,
	sessionID protocol.ChunkID,
	chunkID protocol.ChunkID,
	sourcePeerID protocol.PeerID,
	targetPeerID protocol.PeerID,
	data *block.DataBlock,
) (*task.Task, error) {
	if op != CommandOp {
		return nil, errors.Errorf("broker backend does not handle operation %v", op)
	}

	var bt = &brokerTask{
		ctx:        ctx,
		routing:    bb.Routing,
		authCache:  bb.AuthCache,
		dispatcher: bb.Dispatcher,

		sourcePeerID: sourcePeerID,
		data:         data,
	}

	var t = task.New("broker-task", func(tok *task.ControlToken) error {
		return bt.run(tok)
	}, nil)

	if err := bb.queue.PushBack(t, false); err != nil {
		return nil, err
	}
	return t, nil
}
