package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpmorganchase/swblocks-baselib-sub004/errs"
)

func TestReconnectSucceedsOnLaterEndpoint(t *testing.T) {
	var selector = NewEndpointSelector("a", "b", "c")
	var tried []string

	var ep, err = Reconnect(context.Background(), selector, DefaultReconnectPolicy(), func(ctx context.Context, addr string) (*Endpoint, error) {
		tried = append(tried, addr)
		if addr == "c" {
			return &Endpoint{}, nil
		}
		return nil, errs.New(errs.Timeout, "dial %s failed", addr)
	})

	require.NoError(t, err)
	assert.NotNil(t, ep)
	assert.Equal(t, []string{"a", "a", "b", "b", "c"}, tried)
}

func TestReconnectNeverRetriesServerError(t *testing.T) {
	var selector = NewEndpointSelector("a", "b")
	var calls int

	var _, err = Reconnect(context.Background(), selector, DefaultReconnectPolicy(), func(ctx context.Context, addr string) (*Endpoint, error) {
		calls++
		return nil, errs.New(errs.ServerError, "server rejected")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestReconnectExhaustionWrapsLastCause(t *testing.T) {
	var selector = NewEndpointSelector("a")
	var policy = ReconnectPolicy{MaxEndpointRotations: 1, MaxRetriesPerEndpoint: 2}

	var _, err = Reconnect(context.Background(), selector, policy, func(ctx context.Context, addr string) (*Endpoint, error) {
		return nil, errs.New(errs.Timeout, "boom")
	})

	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.ServerNoConnection, e.Kind)
}
