// Package backend implements the backend processing contract of
// spec.md §4.3 and the concrete broker backend that authorizes, routes,
// and forwards inbound messages between peers.
package backend

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// OperationID is the coarse-grained operation dispatched to a Processing
// implementation, per spec.md §3.
type OperationID int

const (
	Alloc OperationID = iota
	SecureAlloc
	SecureDiscard
	Get
	Put
	AuthenticateClient
	GetServerState
	CommandOp
)

// CommandID further distinguishes a CommandOp operation, per spec.md §3.
type CommandID int

const (
	CommandNone CommandID = iota
	CommandRemove
	CommandFlushPeerSessions
)

// Processing is the uniform backend processing contract of spec.md §4.3:
// a non-blocking factory producing a Task that encapsulates all I/O and
// compute for one operation. The block may be rewritten by the task.
type Processing interface {
	CreateBackendProcessingTask(
		ctx context.Context,
		op OperationID,
		cmd CommandID,
		sessionID protocol.ChunkID,
		chunkID protocol.ChunkID,
		sourcePeerID protocol.PeerID,
		targetPeerID protocol.PeerID,
		data *block.DataBlock,
	) (*task.Task, error)
}

// ValidateParameters enforces the shared parameter validation of
// spec.md §4.3: Get/Put require a non-nil chunk id; FlushPeerSessions
// requires a nil chunk id.
func ValidateParameters(op OperationID, cmd CommandID, chunkID protocol.ChunkID) error {
	switch op {
	case Get, Put:
		if chunkID == protocol.NilID {
			return errors.Errorf("operation %v requires a non-nil chunk id", op)
		}
	case CommandOp:
		if cmd == CommandFlushPeerSessions && chunkID != protocol.NilID {
			return errors.New("FlushPeerSessions requires a nil chunk id")
		}
		if cmd == CommandRemove && chunkID == protocol.NilID {
			return errors.New("Remove requires a non-nil chunk id")
		}
	}
	return nil
}

func (op OperationID) String() string {
	switch op {
	case Alloc:
		return "Alloc"
	case SecureAlloc:
		return "SecureAlloc"
	case SecureDiscard:
		return "SecureDiscard"
	case Get:
		return "Get"
	case Put:
		return "Put"
	case AuthenticateClient:
		return "AuthenticateClient"
	case GetServerState:
		return "GetServerState"
	case CommandOp:
		return "Command"
	default:
		return "Unknown"
	}
}
