// Package transferpool implements the chunk send/receive pipeline of
// spec.md §4.6: a fixed-size set of connection-owning workers pumping
// ready chunk work items over block-transfer connections to a peer
// cluster, grounded on the ChunkWorkerPool shape used elsewhere in the
// retrieved reference material for per-worker cancellation and draining.
package transferpool

import (
	"context"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/errs"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/transfer"
)

// DefaultWorkerCount is the default pool size, per spec.md §4.6.
const DefaultWorkerCount = 16

// WorkItem is one ready chunk transfer, per spec.md §4.6.
type WorkItem struct {
	ChunkID protocol.ChunkID
	Data    *block.DataBlock

	// SafeToReconnect is false for pipelines where resuming after a
	// dropped connection cannot be done transparently (eg a sending
	// pipeline with peer-session tracking enabled, per spec.md §4.6);
	// such failures must surface instead of triggering a reconnect.
	SafeToReconnect bool
}

// FetchFunc re-fetches a chunk's data from local state ahead of a resend.
// A worker calls it after a reconnect only when its previous connection
// had reported IsAuthenticated after a successful send; otherwise the
// item's existing Data is resent as is.
type FetchFunc func(item *WorkItem) error

// Pool maintains workerCount persistent connections to a peer cluster and
// pumps WorkItems from a shared ready queue through them, per spec.md §4.6.
type Pool struct {
	selector *transfer.EndpointSelector
	policy   transfer.ReconnectPolicy
	dial     func(ctx context.Context, addr string) (*transfer.Endpoint, error)
	refetch  FetchFunc
	authReq  bool

	ready chan *WorkItem

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	totalBlocks   atomic.Int64
	totalDataSize atomic.Int64
}

// New constructs a Pool of workerCount workers (DefaultWorkerCount if <=0),
// dialing upstream endpoints selected round-robin via selector.
func New(workerCount int, selector *transfer.EndpointSelector, policy transfer.ReconnectPolicy, dial func(ctx context.Context, addr string) (*transfer.Endpoint, error), refetch FetchFunc, requireAuth bool) *Pool {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	var ctx, cancel = context.WithCancel(context.Background())
	var p = &Pool{
		selector: selector,
		policy:   policy,
		dial:     dial,
		refetch:  refetch,
		authReq:  requireAuth,
		ready:    make(chan *WorkItem, workerCount*4),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit enqueues item for transfer. It blocks until a worker slot opens
// or the pool is stopped.
func (p *Pool) Submit(item *WorkItem) error {
	if p.ctx.Err() != nil {
		return errs.New(errs.ObjectDisconnected, "transfer pool stopped")
	}
	select {
	case p.ready <- item:
		return nil
	case <-p.ctx.Done():
		return errs.New(errs.ObjectDisconnected, "transfer pool stopped")
	}
}

// Stop drains in-flight work and tears down every worker's connection.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	log.WithFields(log.Fields{
		"totalBlocks":   p.totalBlocks.Load(),
		"totalDataSize": p.totalDataSize.Load(),
	}).Info("transfer pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	var ep *transfer.Endpoint
	var authenticated bool

	for {
		var item *WorkItem
		select {
		case item = <-p.ready:
		case <-p.ctx.Done():
			if ep != nil {
				_ = ep.Close()
			}
			return
		}

		if ep == nil {
			var connectErr error
			ep, connectErr = transfer.Reconnect(p.ctx, p.selector, p.policy, p.dial)
			if connectErr != nil {
				log.WithError(connectErr).WithField("worker", id).Error("transfer worker failed to connect")
				continue
			}
			authenticated = false
		}

		if err := p.send(ep, item); err != nil {
			if !item.SafeToReconnect {
				log.WithError(err).WithField("worker", id).Error("transfer worker: unsafe to reconnect, surfacing error")
				ep = nil
				continue
			}

			_ = ep.Close()
			var reconnected, reconErr = transfer.Reconnect(p.ctx, p.selector, p.policy, p.dial)
			if reconErr != nil {
				log.WithError(reconErr).WithField("worker", id).Error("transfer worker reconnect exhausted")
				ep = nil
				continue
			}
			ep = reconnected

			if authenticated && p.refetch != nil {
				if ferr := p.refetch(item); ferr != nil {
					log.WithError(ferr).WithField("worker", id).Error("re-fetch before resend failed")
					ep = nil
					continue
				}
			}
			authenticated = false

			if err := p.send(ep, item); err != nil {
				log.WithError(err).WithField("worker", id).Error("transfer worker: resend after reconnect failed")
			}
			continue
		}

		if ep.IsAuthenticated() {
			authenticated = true
		}
	}
}

func (p *Pool) send(ep *transfer.Endpoint, item *WorkItem) error {
	if err := ep.Send(transfer.SendChunk, item.ChunkID, transfer.Data, item.Data); err != nil {
		return err
	}
	p.totalBlocks.Add(1)
	if item.Data != nil {
		p.totalDataSize.Add(int64(item.Data.Size()))
	}
	return nil
}
