// Package authcache defines the authorization cache contract of spec.md
// §6 and a reference in-memory implementation used in place of the
// concrete, out-of-scope authorization-service integration.
package authcache

import (
	"time"

	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

// Cache is the authorization cache contract of spec.md §6.
type Cache interface {
	// TokenType returns the authentication token type this cache handles.
	TokenType() string
	// TryGetAuthorizedPrincipal returns a cached principal for token, or
	// nil if there is no fresh cached entry.
	TryGetAuthorizedPrincipal(token []byte) (*protocol.SecurityPrincipal, bool)
	// CreateAuthorizationTask returns a Task which, on success, authorizes
	// token and produces its principal.
	CreateAuthorizationTask(token []byte) (*task.Task, <-chan *protocol.SecurityPrincipal)
	// Update records principal as the result of authorizing token, and
	// returns it.
	Update(token []byte, principal *protocol.SecurityPrincipal) *protocol.SecurityPrincipal
	// TryUpdate is Update's non-blocking counterpart; if an authorization
	// is already in flight for this token, it records nothing and returns
	// (nil, false).
	TryUpdate(token []byte, principal *protocol.SecurityPrincipal) (*protocol.SecurityPrincipal, bool)
	// Evict removes token's cached entry, if any.
	Evict(token []byte)
	// ConfigureFreshnessInterval sets the maximum age of a cached entry.
	ConfigureFreshnessInterval(d time.Duration)
}
