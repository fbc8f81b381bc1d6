package conversation

import (
	"context"
	"errors"

	"github.com/jpmorganchase/swblocks-baselib-sub004/errs"
)

// IsRetryableMessagingBrokerError classifies an error per spec.md §4.7's
// "retryable messaging broker errors" over the §7 taxonomy: transport and
// connectivity failures are retried; protocol and authorization failures,
// which retrying cannot fix, are not.
func IsRetryableMessagingBrokerError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case errs.ServerNoConnection, errs.ObjectDisconnected, errs.Timeout:
		return true
	default:
		return false
	}
}
