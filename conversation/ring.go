package conversation

import (
	"github.com/jpmorganchase/swblocks-baselib-sub004/block"
	"github.com/jpmorganchase/swblocks-baselib-sub004/errs"
	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
)

// DefaultPendingCapacity is the bounded pending ring's fixed capacity, per
// spec.md §3/§8: the 33rd push on a stuck consumer must fail.
const DefaultPendingCapacity = 32

// message is one inbound item waiting to be processed: either a genuine
// broker message, or the single acknowledgement the engine is waiting for.
type message struct {
	env     *protocol.Envelope
	payload *block.DataBlock
}

// pendingRing is the slice-backed bounded ring buffer of spec.md §3: a
// fixed-capacity FIFO that rejects further pushes once full instead of
// growing, so a stuck consumer cannot exhaust memory.
type pendingRing struct {
	buf   []message
	head  int
	count int
}

func newPendingRing(capacity int) *pendingRing {
	if capacity <= 0 {
		capacity = DefaultPendingCapacity
	}
	return &pendingRing{buf: make([]message, capacity)}
}

func (r *pendingRing) push(m message) error {
	if r.count == len(r.buf) {
		return errs.New(errs.TargetPeerQueueFull, "conversation pending queue is full")
	}
	r.buf[(r.head+r.count)%len(r.buf)] = m
	r.count++
	return nil
}

func (r *pendingRing) front() (message, bool) {
	if r.count == 0 {
		return message{}, false
	}
	return r.buf[r.head], true
}

func (r *pendingRing) pop() (message, bool) {
	var m, ok = r.front()
	if !ok {
		return message{}, false
	}
	r.buf[r.head] = message{}
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return m, true
}

func (r *pendingRing) empty() bool { return r.count == 0 }
