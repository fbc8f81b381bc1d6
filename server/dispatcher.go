package server

import (
	"sync"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/errs"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// ConnDispatcher implements backend.Dispatcher over the set of currently
// connected peers, per spec.md §6: each connected peer owns a bounded
// outbound queue that its connection's writer goroutine drains. Dispatch
// itself is non-blocking, per spec.md §4.3 -- a full queue or an unknown
// peer fails the dispatch task rather than blocking the caller.
type ConnDispatcher struct {
	mu     sync.RWMutex
	queues map[protocol.PeerID]chan *block.DataBlock
	queue  *task.Queue

	// QueueDepth bounds each registered peer's outbound queue.
	QueueDepth int
}

// NewConnDispatcher constructs a ConnDispatcher whose dispatch tasks run
// on their own bounded worker set.
func NewConnDispatcher(io *task.IOService, concurrency, queueDepth int) *ConnDispatcher {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &ConnDispatcher{
		queues:     make(map[protocol.PeerID]chan *block.DataBlock),
		queue:      task.NewQueue(io, concurrency, task.KeepNone),
		QueueDepth: queueDepth,
	}
}

// Register creates peerID's outbound queue, replacing any prior one (eg a
// stale reconnect), and returns it for the connection's writer loop to
// drain.
func (d *ConnDispatcher) Register(peerID protocol.PeerID) chan *block.DataBlock {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ch = make(chan *block.DataBlock, d.QueueDepth)
	d.queues[peerID] = ch
	return ch
}

// Unregister removes peerID's outbound queue once its connection closes.
func (d *ConnDispatcher) Unregister(peerID protocol.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.queues, peerID)
}

// CreateDispatchTask implements backend.Dispatcher.
func (d *ConnDispatcher) CreateDispatchTask(targetPeerID protocol.PeerID, data *block.DataBlock) (*task.Task, error) {
	var t = task.New("conn-dispatch", func(tok *task.ControlToken) error {
		var ch, ok = d.TryGetMessageBlockCompletionQueue(targetPeerID)
		if !ok {
			return errs.New(errs.ServerNoConnection, "peer %s is not connected", protocol.FormatID(targetPeerID))
		}
		select {
		case ch <- data:
			return nil
		default:
			return errs.New(errs.ObjectDisconnected, "peer %s outbound queue is full", protocol.FormatID(targetPeerID))
		}
	}, nil)
	if err := d.queue.PushBack(t, false); err != nil {
		return nil, err
	}
	return t, nil
}

// TryGetMessageBlockCompletionQueue implements backend.Dispatcher.
func (d *ConnDispatcher) TryGetMessageBlockCompletionQueue(peerID protocol.PeerID) (chan *block.DataBlock, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ch, ok = d.queues[peerID]
	return ch, ok
}

// GetAllActiveQueuesIds implements backend.Dispatcher.
func (d *ConnDispatcher) GetAllActiveQueuesIds() map[protocol.PeerID]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out = make(map[protocol.PeerID]struct{}, len(d.queues))
	for id := range d.queues {
		out[id] = struct{}{}
	}
	return out
}
