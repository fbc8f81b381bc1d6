package backend

import (
	"context"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/storage"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// DataChunkStorageBackend adapts a storage.Async wrapper to the Processing
// interface, per spec.md §3/§4.4. It is a thin translation layer: the
// Async wrapper owns the bounded worker set and semaphore, this type only
// maps backend.OperationID/CommandID onto storage's own vocabulary.
type DataChunkStorageBackend struct {
	Async *storage.Async
}

// NewDataChunkStorageBackend constructs a DataChunkStorageBackend over async.
func NewDataChunkStorageBackend(async *storage.Async) *DataChunkStorageBackend {
	return &DataChunkStorageBackend{Async: async}
}

func (dcb *DataChunkStorageBackend) CreateBackendProcessingTask(
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

	var sop, scmd = translateOperation(op, cmd)
	return dcb.Async.CreateTask(sop, scmd, sessionID, chunkID, sourcePeerID, targetPeerID, data)
}

func translateOperation(op OperationID, cmd CommandID) (storage.Op, storage.Cmd) {
	switch op {
	case Alloc:
		return storage.OpAlloc, storage.CmdNone
	case SecureAlloc:
		return storage.OpSecureAlloc, storage.CmdNone
	case SecureDiscard:
		return storage.OpSecureDiscard, storage.CmdNone
	case Get:
		return storage.OpGet, storage.CmdNone
	case Put:
		return storage.OpPut, storage.CmdNone
	case AuthenticateClient:
		return storage.OpAuthenticateClient, storage.CmdNone
	case GetServerState:
		return storage.OpGetServerState, storage.CmdNone
	case CommandOp:
		switch cmd {
		case CommandRemove:
			return storage.OpCommand, storage.CmdRemove
		case CommandFlushPeerSessions:
			return storage.OpCommand, storage.CmdFlushPeerSessions
		default:
			return storage.OpCommand, storage.CmdNone
		}
	default:
		return storage.OpCommand, storage.CmdNone
	}
}
