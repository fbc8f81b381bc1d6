package authcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

type entry struct {
	principal *protocol.SecurityPrincipal
	fetchedAt time.Time
}

// MemCache is a reference, in-memory AuthorizationCache implementation.
// It fingerprints tokens with sha256 and enforces the eviction rules of
// spec.md §3: explicit Evict, or age beyond the configured freshness
// interval. TryUpdate declines while an authorization task for the same
// fingerprint is in flight; CreateAuthorizationTask itself starts a new
// task on every call.
//
// CreateAuthorizationTask's Task body is a no-op stub: this reference
// cache never talks to a real authorization service, so a cache miss
// resolves to "not authorized" once the stub task drains through queue.
// Production deployments plug a concrete Cache backed by the real
// authorization service in at this seam instead.
type MemCache struct {
	tokenType string

	queue *task.Queue

	mu        sync.RWMutex
	entries   map[string]entry
	inflight  map[string]*task.Task
	freshness time.Duration
}

// NewMemCache constructs a MemCache for the given token type, with a
// default freshness interval of 5 minutes. io drives the internal queue
// used to actually run authorization tasks to completion.
func NewMemCache(tokenType string, io *task.IOService) *MemCache {
	return &MemCache{
		tokenType: tokenType,
		queue:     task.NewQueue(io, 4, task.KeepNone),
		entries:   make(map[string]entry),
		inflight:  make(map[string]*task.Task),
		freshness: 5 * time.Minute,
	}
}

func fingerprint(token []byte) string {
	var sum = sha256.Sum256(token)
	return hex.EncodeToString(sum[:])
}

func (c *MemCache) TokenType() string { return c.tokenType }

func (c *MemCache) ConfigureFreshnessInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.freshness = d
}

func (c *MemCache) TryGetAuthorizedPrincipal(token []byte) (*protocol.SecurityPrincipal, bool) {
	var fp = fingerprint(token)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var e, ok = c.entries[fp]
	if !ok {
		return nil, false
	}
	if time.Since(e.fetchedAt) > c.freshness {
		return nil, false
	}
	return e.principal, true
}

// CreateAuthorizationTask returns a no-op Task, run on the cache's own
// queue, and a channel. Once the task completes, the channel receives the
// principal cached for token at that moment (nil if there is none) and is
// closed. Real deployments plug the concrete external authorization
// service in at this seam instead.
func (c *MemCache) CreateAuthorizationTask(token []byte) (*task.Task, <-chan *protocol.SecurityPrincipal) {
	var out = make(chan *protocol.SecurityPrincipal, 1)
	var fp = fingerprint(token)

	var t = task.New("authorize:"+fp, func(tok *task.ControlToken) error {
		return nil
	}, nil)

	c.mu.Lock()
	c.inflight[fp] = t
	c.mu.Unlock()

	go func() {
		<-t.Done()
		if p, ok := c.TryGetAuthorizedPrincipal(token); ok {
			out <- p
		} else {
			out <- nil
		}
		close(out)
		c.mu.Lock()
		delete(c.inflight, fp)
		c.mu.Unlock()
	}()

	_ = c.queue.PushBack(t, false)

	return t, out
}

func (c *MemCache) Update(token []byte, principal *protocol.SecurityPrincipal) *protocol.SecurityPrincipal {
	var fp = fingerprint(token)
	c.mu.Lock()
	c.entries[fp] = entry{principal: principal, fetchedAt: time.Now()}
	c.mu.Unlock()
	return principal
}

func (c *MemCache) TryUpdate(token []byte, principal *protocol.SecurityPrincipal) (*protocol.SecurityPrincipal, bool) {
	var fp = fingerprint(token)

	c.mu.Lock()
	if _, busy := c.inflight[fp]; busy {
		c.mu.Unlock()
		return nil, false
	}
	c.mu.Unlock()

	return c.Update(token, principal), true
}

func (c *MemCache) Evict(token []byte) {
	var fp = fingerprint(token)
	c.mu.Lock()
	delete(c.entries, fp)
	c.mu.Unlock()
}
