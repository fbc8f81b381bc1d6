package task

import "sync/atomic"

// ControlToken is a shared, cooperative cancellation flag plus optional
// user state that tasks poll at logical yield points, per spec.md §3/§5.
// Cancellation is request-only: it never preempts a running task.
type ControlToken struct {
	canceled atomic.Bool
	State    interface{}
}

// NewControlToken returns a fresh, non-canceled token.
func NewControlToken() *ControlToken {
	return &ControlToken{}
}

// IsCanceled reports whether cancellation has been requested.
func (t *ControlToken) IsCanceled() bool {
	if t == nil {
		return false
	}
	return t.canceled.Load()
}

// RequestCancel sets the cancellation flag. It never returns an error and
// never blocks; "NoThrow" in the spec's naming reflects that this call
// cannot itself fail.
func (t *ControlToken) RequestCancel() {
	t.canceled.Store(true)
}

// RequestCancelNoThrow is an alias of RequestCancel kept to mirror the
// spec's two-name API (spec.md §5); both are equivalent in Go since there
// is nothing here that can throw.
func (t *ControlToken) RequestCancelNoThrow() {
	t.RequestCancel()
}
