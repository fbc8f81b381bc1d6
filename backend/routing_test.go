package backend

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPeerConnectedNotifyClearsRouting(t *testing.T) {
	var c = NewRoutingCache()
	var p = uuid.New()
	var proxy = uuid.New()

	c.AssociateTargetPeerId(p, proxy)
	var _, ok = c.TryResolveTargetPeerId(p)
	assert.True(t, ok)

	c.PeerConnectedNotify(p)
	_, ok = c.TryResolveTargetPeerId(p)
	assert.False(t, ok)
}

func TestDissociateMissingIsNotAnError(t *testing.T) {
	var c = NewRoutingCache()
	assert.NotPanics(t, func() { c.DissociateTargetPeerId(uuid.New()) })
}
