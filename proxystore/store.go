// Package proxystore implements the proxy chunk store of spec.md §4.5: a
// DataChunkStorage that fulfills reads (and optionally caches them) by
// contacting an upstream block-transfer endpoint, selected round-robin,
// rather than touching local storage directly.
package proxystore

import (
	"context"
	"net"
	"sync"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/errs"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/storage"
	"github.com/jpmorganchase/swblocks-baselib-sub004/transfer"
)

// workerKeyType is the context-value key each calling goroutine/worker
// uses to identify its own lazily-established upstream connection, per
// spec.md §4.5's "each worker thread lazily owns one upstream connection".
type workerKeyType struct{}

// WithWorkerID tags ctx with a stable per-worker identity so that
// repeated calls from the same logical worker reuse one Store connection
// instead of dialing anew each time.
func WithWorkerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerKeyType{}, id)
}

func workerID(ctx context.Context) string {
	if id, ok := ctx.Value(workerKeyType{}).(string); ok {
		return id
	}
	return "default"
}

// Store implements storage.DataChunkStorage by proxying to an upstream
// block-transfer peer, per spec.md §4.5.
type Store struct {
	selector *transfer.EndpointSelector
	policy   transfer.ReconnectPolicy
	pool     *block.Pool
	authReq  bool

	conns sync.Map // worker id (string) -> *transfer.Endpoint

	// cache, when non-nil, is the local persistent store backing the
	// write-through read cache.
	cache *storage.RocksStore
	index map[protocol.ChunkID]struct{}
	idxMu sync.RWMutex
	wmu   sync.Mutex // Serializes cache-filling writers (the "cache write mutex").
}

// New constructs a Store with no local cache; Load always goes upstream.
func New(selector *transfer.EndpointSelector, policy transfer.ReconnectPolicy, pool *block.Pool, requireAuth bool) *Store {
	return &Store{selector: selector, policy: policy, pool: pool, authReq: requireAuth}
}

// WithCache enables the write-through read cache backed by local.
func (s *Store) WithCache(local *storage.RocksStore) *Store {
	s.cache = local
	s.index = make(map[protocol.ChunkID]struct{})
	return s
}

func (s *Store) connection(ctx context.Context) (*transfer.Endpoint, error) {
	var id = workerID(ctx)
	if v, ok := s.conns.Load(id); ok {
		return v.(*transfer.Endpoint), nil
	}

	var ep, err = transfer.Reconnect(ctx, s.selector, s.policy, func(ctx context.Context, addr string) (*transfer.Endpoint, error) {
		var conn, dialErr = net.Dial("tcp", addr)
		if dialErr != nil {
			return nil, errs.Wrap(dialErr, errs.Timeout, "dial upstream")
		}
		var e = transfer.NewEndpoint(conn, s.authReq)
		if negErr := e.NegotiateClient(); negErr != nil {
			_ = conn.Close()
			return nil, errs.Wrap(negErr, errs.ServerNoConnection, "negotiate upstream")
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	s.conns.Store(id, ep)
	return ep, nil
}

// Load implements the caching discipline of spec.md §4.5.
func (s *Store) Load(sessionID, chunkID protocol.ChunkID, data *block.DataBlock) error {
	if s.cache == nil {
		return s.loadUpstream(context.Background(), sessionID, chunkID, data)
	}

	s.idxMu.RLock()
	var _, cached = s.index[chunkID]
	s.idxMu.RUnlock()

	if cached {
		return s.cache.Load(sessionID, chunkID, data)
	}

	if err := s.loadUpstream(context.Background(), sessionID, chunkID, data); err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.idxMu.RLock()
	_, cached = s.index[chunkID]
	s.idxMu.RUnlock()
	if cached {
		return nil
	}

	if err := s.cache.Save(sessionID, chunkID, data); err != nil {
		// A persistent-cache write failure is fatal, per spec.md §4.5: it
		// must surface to the caller rather than silently degrade.
		return errs.Wrap(err, errs.Unexpected, "persist proxy read cache")
	}

	s.idxMu.Lock()
	s.index[chunkID] = struct{}{}
	s.idxMu.Unlock()

	return nil
}

func (s *Store) loadUpstream(ctx context.Context, sessionID, chunkID protocol.ChunkID, data *block.DataBlock) error {
	var ep, err = s.connection(ctx)
	if err != nil {
		return err
	}
	if err := ep.Send(transfer.ReceiveChunk, chunkID, transfer.Data, nil); err != nil {
		return errs.Wrap(err, errs.ServerNoConnection, "send ReceiveChunk upstream")
	}
	var _, recvd, rerr = ep.Recv(s.pool)
	if rerr != nil {
		return errs.Wrap(rerr, errs.ServerNoConnection, "recv chunk upstream")
	}
	// Recv stages a freshly-received frame's bytes entirely as "header"
	// (see transfer.Endpoint.Recv); re-assemble them here as this chunk's
	// payload, with no header of its own.
	return data.SetPayloadAndHeader(recvd.Header(), nil)
}

// Save is a pass-through to the upstream endpoint; it never touches the
// local cache, per spec.md §4.5.
func (s *Store) Save(sessionID, chunkID protocol.ChunkID, data *block.DataBlock) error {
	var ep, err = s.connection(context.Background())
	if err != nil {
		return err
	}
	if err := ep.Send(transfer.SendChunk, chunkID, transfer.Data, data); err != nil {
		return errs.Wrap(err, errs.ServerNoConnection, "send SendChunk upstream")
	}
	return nil
}

// Remove is a pass-through to the upstream endpoint.
func (s *Store) Remove(sessionID, chunkID protocol.ChunkID) error {
	var ep, err = s.connection(context.Background())
	if err != nil {
		return err
	}
	if err := ep.Send(transfer.RemoveChunk, chunkID, transfer.Data, nil); err != nil {
		return errs.Wrap(err, errs.ServerNoConnection, "send RemoveChunk upstream")
	}
	return nil
}

// FlushPeerSessions is a pass-through to the upstream endpoint.
func (s *Store) FlushPeerSessions(sessionID *protocol.ChunkID) error {
	var ep, err = s.connection(context.Background())
	if err != nil {
		return err
	}
	if err := ep.Send(transfer.FlushPeerSessions, protocol.NilID, transfer.Data, nil); err != nil {
		return errs.Wrap(err, errs.ServerNoConnection, "send FlushPeerSessions upstream")
	}
	return nil
}
