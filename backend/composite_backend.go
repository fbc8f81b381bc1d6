package backend

import (
	"context"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// CompositeBackend dispatches on OperationID (and, for CommandOp, on
// CommandID) between the broker routing path and the chunk-storage path,
// so a single Processing value can serve a whole connection, per
// spec.md §3.13: a CommandOp task with CommandNone -- forwarding a
// dispatch/acknowledgment message between peers -- goes to Broker, since
// that is the only CommandID BrokerBackend ever sees; a CommandOp task
// carrying CommandRemove or CommandFlushPeerSessions is a chunk-storage
// housekeeping command and goes to Storage, alongside every other
// operation (Alloc/Get/Put/AuthenticateClient/GetServerState).
type CompositeBackend struct {
	Broker  Processing
	Storage Processing
}

// NewCompositeBackend constructs a CompositeBackend. Either field may be
// left nil by the caller if a deployment never exercises that path (eg a
// pure proxy broker with no local chunk storage).
func NewCompositeBackend(broker, storage Processing) *CompositeBackend {
	return &CompositeBackend{Broker: broker, Storage: storage}
}

func (cb *CompositeBackend) CreateBackendProcessingTask(
	ctx context.Context,
	op OperationID,
	cmd CommandID,
	sessionID protocol.ChunkID,
	chunkID protocol.ChunkID,
	sourcePeerID protocol.PeerID,
	targetPeerID protocol.PeerID,
	data *block.DataBlock,
) (*task.Task, error) {
	if op == CommandOp && cmd == CommandNone {
		return cb.Broker.CreateBackendProcessingTask(ctx, op, cmd, sessionID, chunkID, sourcePeerID, targetPeerID, data)
	}
	return cb.Storage.CreateBackendProcessingTask(ctx, op, cmd, sessionID, chunkID, sourcePeerID, targetPeerID, data)
}
