package transfer

import (
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
)

func TestVersionNegotiationAgreesOnCurrentVersion(t *testing.T) {
	var client, server = net.Pipe()
	defer client.Close()
	defer server.Close()

	var ce = NewEndpoint(client, true)
	var se = NewEndpoint(server, true)

	var done = make(chan error, 1)
	go func() { done <- se.NegotiateServer() }()

	assert.NoError(t, ce.NegotiateClient())
	assert.NoError(t, <-done)

	assert.Equal(t, CurrentVersion, ce.Version())
	assert.Equal(t, CurrentVersion, se.Version())
}

func TestUnauthenticatedCommandRejectedBeforeHandshake(t *testing.T) {
	var client, server = net.Pipe()
	defer client.Close()
	defer server.Close()

	var ce = NewEndpoint(client, true)
	var se = NewEndpoint(server, true)

	var done = make(chan error, 1)
	go func() { done <- se.NegotiateServer() }()
	assert.NoError(t, ce.NegotiateClient())
	assert.NoError(t, <-done)

	var pool = block.NewPool(1, 64)
	var b = pool.Get()
	assert.NoError(t, b.SetPayloadAndHeader([]byte("x"), nil))

	assert.ErrorIs(t, ce.Send(SendChunk, uuid.New(), Data, b), ErrUnauthenticated)
}

func TestAuthenticationFrameAlwaysExempt(t *testing.T) {
	var client, server = net.Pipe()
	defer client.Close()
	defer server.Close()

	var ce = NewEndpoint(client, true)
	var se = NewEndpoint(server, true)

	var done = make(chan error, 1)
	go func() { done <- se.NegotiateServer() }()
	assert.NoError(t, ce.NegotiateClient())
	assert.NoError(t, <-done)

	var pool = block.NewPool(1, 64)
	var cred = pool.Get()
	assert.NoError(t, cred.SetPayloadAndHeader([]byte("credential"), nil))

	var recvErr = make(chan error, 1)
	go func() {
		var _, _, err = se.Recv(pool)
		recvErr <- err
	}()

	assert.NoError(t, ce.Send(SendChunk, uuid.New(), Authentication, cred))
	assert.NoError(t, <-recvErr)
}
