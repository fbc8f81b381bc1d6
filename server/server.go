// Package server is the brokerd composition root's connection-handling
// loop: it negotiates each accepted connection's block-transfer endpoint
// and drives every received command frame through a backend.Processing
// pipeline, per spec.md §4.2/§4.3/§6.
package server

import (
	"context"
	"encoding/json"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/jpmorganchase/swblocks-baselib-sub004/backend"
	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/errs"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/transfer"
)

// Server accepts block-transfer connections and dispatches each frame to
// Backend, per spec.md §3.13's composition of the broker and storage
// processing paths behind a single Processing value.
type Server struct {
	Backend     backend.Processing
	Pool        *block.Pool
	RequireAuth bool
}

// New constructs a Server.
func New(proc backend.Processing, pool *block.Pool, requireAuth bool) *Server {
	return &Server{Backend: proc, Pool: pool, RequireAuth: requireAuth}
}

// Serve accepts connections from ln until ctx is cancelled or Accept
// fails. Each connection is handled on its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		var conn, err = ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var ep = transfer.NewEndpoint(conn, s.RequireAuth)
	if err := ep.NegotiateServer(); err != nil {
		log.WithError(err).Debug("protocol negotiation failed")
		return
	}

	for {
		var h, data, err = ep.Recv(s.Pool)
		if err != nil {
			return
		}

		var op, cmd = translateCommand(h.CommandID)

		if h.BlockType == transfer.Authentication {
			if s.authenticate(ctx, ep, h, data) {
				continue
			}
			return
		}

		// Remove/FlushPeerSessions carry no block argument into the
		// backend (the chunk id and, respectively, nothing at all fully
		// describe the operation); data is kept only to carry the
		// response back over the wire.
		var backendData = data
		if op == backend.CommandOp {
			backendData = nil
		}

		var t, cerr = s.Backend.CreateBackendProcessingTask(ctx, op, cmd, protocol.NilID, h.ChunkID, protocol.NilID, protocol.NilID, backendData)
		if cerr != nil {
			writeErrorEnvelope(data, cerr)
		} else {
			<-t.Done()
			if exc := t.Exception(); exc != nil {
				writeErrorEnvelope(data, exc)
			}
		}

		if err := ep.Send(h.CommandID, h.ChunkID, transfer.Data, data); err != nil {
			return
		}
	}
}

// authenticate runs the AuthenticateClient operation against the
// credential block and, on success, flips the endpoint's authenticated
// state and sends the acknowledgement frame, per spec.md §4.2.
func (s *Server) authenticate(ctx context.Context, ep *transfer.Endpoint, h transfer.CommandHeader, data *block.DataBlock) bool {
	var t, cerr = s.Backend.CreateBackendProcessingTask(ctx, backend.AuthenticateClient, backend.CommandNone, protocol.NilID, h.ChunkID, protocol.NilID, protocol.NilID, data)
	if cerr != nil {
		log.WithError(cerr).Debug("authentication rejected")
		return false
	}
	<-t.Done()
	if exc := t.Exception(); exc != nil {
		log.WithError(exc).Debug("authentication failed")
		return false
	}

	ep.MarkAuthenticated()
	return ep.Send(h.CommandID, h.ChunkID, transfer.Authentication, data) == nil
}

// translateCommand maps a wire Command onto the backend's operation
// vocabulary, per spec.md §6.
func translateCommand(cmd transfer.Command) (backend.OperationID, backend.CommandID) {
	switch cmd {
	case transfer.SendChunk, transfer.AuthenticateSendChunk:
		return backend.Put, backend.CommandNone
	case transfer.ReceiveChunk, transfer.AuthenticateReceiveChunk:
		return backend.Get, backend.CommandNone
	case transfer.RemoveChunk:
		return backend.CommandOp, backend.CommandRemove
	case transfer.FlushPeerSessions:
		return backend.CommandOp, backend.CommandFlushPeerSessions
	default:
		return backend.CommandOp, backend.CommandNone
	}
}

// writeErrorEnvelope stages err as a server-error envelope in data's
// header, per spec.md §4.2/§7: "a server-side processing error is
// delivered as a normal block whose header carries a structured error
// envelope".
func writeErrorEnvelope(data *block.DataBlock, err error) {
	var env = errs.NewEnvelope(err)
	var header, merr = json.Marshal(env)
	if merr != nil {
		log.WithError(merr).Error("marshal server-error envelope")
		return
	}
	if serr := data.SetPayloadAndHeader(nil, header); serr != nil {
		log.WithError(serr).Error("stage server-error envelope")
	}
}
