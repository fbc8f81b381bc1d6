package backend

import (
	"sync"

	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
)

// RoutingCache maps a logical target peer id (as seen by distant clients
// behind a proxy) to the physical peer id of the proxy's direct
// connection to this broker, per spec.md §3/§4.3.
type RoutingCache struct {
	mu    sync.RWMutex
	table map[protocol.PeerID]protocol.PeerID
}

// NewRoutingCache constructs an empty RoutingCache.
func NewRoutingCache() *RoutingCache {
	return &RoutingCache{table: make(map[protocol.PeerID]protocol.PeerID)}
}

// AssociateTargetPeerId records that target is reachable via the
// connection from source.
func (c *RoutingCache) AssociateTargetPeerId(target, source protocol.PeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table[target] = source
}

// DissociateTargetPeerId removes target's routing entry, if present.
// Missing is not an error, per spec.md §4.3.
func (c *RoutingCache) DissociateTargetPeerId(target protocol.PeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.table, target)
}

// TryResolveTargetPeerId returns the physical peer id for target, or
// (NilID, false) if target is not proxied.
func (c *RoutingCache) TryResolveTargetPeerId(target protocol.PeerID) (protocol.PeerID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var source, ok = c.table[target]
	return source, ok
}

// PeerConnectedNotify must be called whenever peerID establishes a direct
// connection to this broker. It dissociates any proxy routing entry for
// peerID, so a proxy can never shadow a direct connection, per
// spec.md §3/§8 ("a peer id that has connected directly to this broker is
// absent from the table").
func (c *RoutingCache) PeerConnectedNotify(peerID protocol.PeerID) {
	c.DissociateTargetPeerId(peerID)
}
