// Package trace wraps golang.org/x/net/trace for the request-scoped
// diagnostic traces attached at FSM decision points.
package trace

import (
	"context"

	"golang.org/x/net/trace"
)

// Add appends a lazily-formatted line to the trace.Trace bound to ctx, if
// any. It is a no-op when ctx carries no trace, so call sites never need
// to special-case tracing being disabled.
func Add(ctx context.Context, format string, args ...interface{}) {
	if ctx == nil {
		return
	}
	if tr, ok := trace.FromContext(ctx); ok {
		tr.LazyPrintf(format, args...)
	}
}

// New starts a new trace.Trace of the given family/title and returns a
// context carrying it, per golang.org/x/net/trace's NewContext convention.
func New(ctx context.Context, family, title string) (context.Context, trace.Trace) {
	var tr = trace.New(family, title)
	return trace.NewContext(ctx, tr), tr
}
