package backend

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// ForwardingBackend implements Processing by handing a block directly to a
// Dispatcher, without any broker envelope parsing or authorization step.
// It models the same-process "this peer is the final destination" path of
// spec.md §3, used when targetPeerID addresses a peer connected to this same
// process rather than one reachable only through the broker.
type ForwardingBackend struct {
	Dispatcher Dispatcher

	queue *task.Queue
}

// NewForwardingBackend constructs a ForwardingBackend bound to dispatcher.
// io backs the queue ForwardingBackend uses to schedule the tasks it hands
// back, the same way ProxyBackend and BrokerBackend schedule their own.
func NewForwardingBackend(io *task.IOService, dispatcher Dispatcher) *ForwardingBackend {
	return &ForwardingBackend{Dispatcher: dispatcher, queue: task.NewQueue(io, 1, task.KeepNone)}
}

func (fb *ForwardingBackend) CreateBackendProcessingTask(
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
		return nil, errors.Errorf("forwarding backend does not handle operation %v", op)
	}
	if fb.Dispatcher == nil {
		return nil, errors.New("forwarding backend has no configured dispatcher")
	}

	var t = task.New("forwarding-task", func(tok *task.ControlToken) error {
		var dispatchTask, err = fb.Dispatcher.CreateDispatchTask(targetPeerID, data)
		if err != nil {
			return errors.WithMessage(err, "forward")
		}
		<-dispatchTask.Done()
		return dispatchTask.Exception()
	}, nil)

	if err := fb.queue.PushBack(t, false); err != nil {
		return nil, err
	}
	return t, nil
}
