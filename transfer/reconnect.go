package transfer

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/jpmorganchase/swblocks-baselib-sub004/errs"
)

// EndpointSelector round-robins over a fixed set of upstream addresses,
// per spec.md §4.5/§4.6's "round-robin endpoint selector".
type EndpointSelector struct {
	addrs []string
	next  int
}

// NewEndpointSelector constructs a selector over addrs, in the given order.
func NewEndpointSelector(addrs ...string) *EndpointSelector {
	return &EndpointSelector{addrs: addrs}
}

// Next returns the next address in rotation. Empty selectors return "".
func (s *EndpointSelector) Next() string {
	if len(s.addrs) == 0 {
		return ""
	}
	var a = s.addrs[s.next%len(s.addrs)]
	s.next++
	return a
}

// Len reports how many distinct endpoints this selector rotates over.
func (s *EndpointSelector) Len() int { return len(s.addrs) }

// ReconnectPolicy bounds the reconnect iterator shared by proxystore and
// transferpool: at most MaxEndpointRotations distinct endpoints are tried,
// with up to MaxRetriesPerEndpoint attempts per endpoint separated by
// RetryDelay, per spec.md §4.5/§4.6.
type ReconnectPolicy struct {
	MaxEndpointRotations  int
	MaxRetriesPerEndpoint int
	RetryDelay            time.Duration
}

// DefaultReconnectPolicy matches spec.md's unconfigured defaults: a modest,
// bounded retry budget rather than unbounded reconnection storms.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{MaxEndpointRotations: 3, MaxRetriesPerEndpoint: 2, RetryDelay: 500 * time.Millisecond}
}

// IsRetryable classifies an error per spec.md §4.5's reconnect rule:
// server-error exceptions and cancellation are never retried; anything
// else (a transport-level system_error) is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *errs.Error
	if errors.As(err, &e) && e.Kind == errs.ServerError {
		return false
	}
	return true
}

// Reconnect drives dial against the endpoints produced by selector
// according to policy, stopping at the first success or the first
// non-retryable error. Exhaustion of the budget returns errs.Kind:
// ServerNoConnection wrapping the last cause, per spec.md §4.5.
func Reconnect(ctx context.Context, selector *EndpointSelector, policy ReconnectPolicy, dial func(ctx context.Context, addr string) (*Endpoint, error)) (*Endpoint, error) {
	var lastErr error

	for rotation := 0; rotation < policy.MaxEndpointRotations; rotation++ {
		var addr = selector.Next()
		if addr == "" {
			return nil, errs.New(errs.ServerNoConnection, "no upstream endpoints configured")
		}

		for attempt := 0; attempt < policy.MaxRetriesPerEndpoint; attempt++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			var ep, err = dial(ctx, addr)
			if err == nil {
				return ep, nil
			}
			lastErr = err
			if !IsRetryable(err) {
				return nil, err
			}
			if attempt+1 < policy.MaxRetriesPerEndpoint {
				time.Sleep(policy.RetryDelay)
			}
		}
	}

	return nil, errs.Wrap(lastErr, errs.ServerNoConnection, "reconnect budget exhausted")
}
