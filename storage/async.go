package storage

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// Op is Async's own operation vocabulary, mirroring the backend package's
// OperationID one-for-one; Async is kept free of any dependency on
// backend so that backend can depend on storage instead of the reverse,
// per spec.md §3's layering (backend.DataChunkStorageBackend adapts Async
// to the broader Processing interface).
type Op int

const (
	OpAlloc Op = iota
	OpSecureAlloc
	OpSecureDiscard
	OpGet
	OpPut
	OpAuthenticateClient
	OpGetServerState
	OpCommand
)

// Cmd further distinguishes OpCommand.
type Cmd int

const (
	CmdNone Cmd = iota
	CmdRemove
	CmdFlushPeerSessions
)

// AuthenticateFunc validates the credential block in place, materializing
// the authenticated principal descriptor back into data.
type AuthenticateFunc func(data *block.DataBlock) error

// ServerStateFunc materializes server-state information into data.
type ServerStateFunc func(data *block.DataBlock) error

// Async bridges a synchronous DataChunkStorage to the task/queue model of
// spec.md §4.4: each request is wrapped in an operationState and executed
// on a bounded worker set gated by a weighted semaphore.
type Async struct {
	read  DataChunkStorage
	write DataChunkStorage
	pool  *block.Pool

	authenticate AuthenticateFunc
	serverState  ServerStateFunc

	queue *task.Queue
	sem   *semaphore.Weighted
}

// NewAsync constructs an Async wrapper. read and write may be the same
// DataChunkStorage; concurrency bounds the number of operations executing
// at once, independent of the queue's own dispatch concurrency.
func NewAsync(io *task.IOService, read, write DataChunkStorage, pool *block.Pool, concurrency int64, auth AuthenticateFunc, serverState ServerStateFunc) *Async {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Async{
		read:         read,
		write:        write,
		pool:         pool,
		authenticate: auth,
		serverState:  serverState,
		queue:        task.NewQueue(io, int(concurrency), task.KeepNone),
		sem:          semaphore.NewWeighted(concurrency),
	}
}

// operationState is the per-request bundle of spec.md §4.4.
type operationState struct {
	op           Op
	cmd          Cmd
	sessionID    protocol.ChunkID
	chunkID      protocol.ChunkID
	sourcePeerID protocol.PeerID
	targetPeerID protocol.PeerID
	data         *block.DataBlock
}

// mustValidate enforces spec.md §4.4's assertion-level invariants: Get/Put
// require a non-nil chunk id; Command.FlushPeerSessions requires a nil one.
// Violation is a programming error in the caller, not a recoverable fault.
func (s *operationState) mustValidate() {
	switch s.op {
	case OpGet, OpPut:
		if s.chunkID == protocol.NilID {
			panic("storage: Get/Put require a non-nil chunk id")
		}
	case OpCommand:
		if s.cmd == CmdFlushPeerSessions && s.chunkID != protocol.NilID {
			panic("storage: FlushPeerSessions requires a nil chunk id")
		}
		if s.cmd == CmdRemove && s.chunkID == protocol.NilID {
			panic("storage: Remove requires a non-nil chunk id")
		}
	}
	if s.op == OpPut && s.data == nil {
		panic("storage: Put requires non-nil data")
	}
	if s.op == OpCommand && s.cmd == CmdRemove && s.data != nil {
		panic("storage: Remove requires nil data")
	}
}

// CreateTask submits one operation and returns the Task that performs it.
// Cancellation of the returned Task's ControlToken, when observed before
// the operation is dispatched, skips execution entirely (spec.md §4.4/§5).
func (a *Async) CreateTask(
	op Op, cmd Cmd,
	sessionID, chunkID protocol.ChunkID,
	sourcePeerID, targetPeerID protocol.PeerID,
	data *block.DataBlock,
) (*task.Task, error) {
	var st = &operationState{
		op: op, cmd: cmd,
		sessionID: sessionID, chunkID: chunkID,
		sourcePeerID: sourcePeerID, targetPeerID: targetPeerID,
		data: data,
	}
	st.mustValidate()

	var t = task.New("storage-async", func(tok *task.ControlToken) error {
		if tok.IsCanceled() {
			return task.ErrCanceled
		}
		if err := a.sem.Acquire(context.Background(), 1); err != nil {
			return errors.WithMessage(err, "acquire storage concurrency slot")
		}
		defer a.sem.Release(1)

		if tok.IsCanceled() {
			return task.ErrCanceled
		}
		return a.execute(st)
	}, nil)

	if err := a.queue.PushBack(t, false); err != nil {
		return nil, err
	}
	return t, nil
}

// execute implements spec.md §4.4's op-kind dispatch table.
func (a *Async) execute(st *operationState) error {
	switch st.op {
	case OpAlloc, OpSecureAlloc:
		st.data = a.pool.Get()
		return nil
	case OpSecureDiscard:
		a.pool.Put(st.data)
		return nil
	case OpGet:
		return a.read.Load(st.sessionID, st.chunkID, st.data)
	case OpPut:
		return a.write.Save(st.sessionID, st.chunkID, st.data)
	case OpAuthenticateClient:
		if a.authenticate == nil {
			return errors.New("storage: no authentication callback configured")
		}
		return a.authenticate(st.data)
	case OpGetServerState:
		if a.serverState == nil {
			return errors.New("storage: no server-state callback configured")
		}
		return a.serverState(st.data)
	case OpCommand:
		switch st.cmd {
		case CmdRemove:
			return a.write.Remove(st.sessionID, st.chunkID)
		case CmdFlushPeerSessions:
			return a.write.FlushPeerSessions(nil)
		default:
			return errors.Errorf("storage: unrecognized command %v", st.cmd)
		}
	default:
		return errors.Errorf("storage: unrecognized operation %v", st.op)
	}
}
