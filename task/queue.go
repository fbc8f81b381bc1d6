package task

import (
	"container/list"
	"sync"
)

// Mode selects how the Queue treats Tasks that become ready (terminal,
// with no continuation) while nobody is popping them, per spec.md §3.
type Mode int

const (
	// KeepAll buffers ready tasks until popped.
	KeepAll Mode = iota
	// KeepNone discards ready tasks after notifying any waiters.
	KeepNone
)

// Queue owns a pool of worker goroutines (via a shared *IOService) and
// three logical collections of Tasks: pending, executing, ready. It
// accepts Tasks, starts them up to a configured concurrency, and delivers
// completed Tasks to callers. See spec.md §4.1.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	io       *IOService
	cap      int
	mode     Mode
	disposed bool
	canceled bool

	pending   *list.List // *Task, not yet started
	executing map[*Task]struct{}
	ready     *list.List // *Task, terminal, not yet popped (KeepAll only)
}

// NewQueue constructs a Queue bound to io, with at most concurrency Tasks
// running at once.
func NewQueue(io *IOService, concurrency int, mode Mode) *Queue {
	if concurrency <= 0 {
		concurrency = 1
	}
	var q = &Queue{
		io:        io,
		cap:       concurrency,
		mode:      mode,
		pending:   list.New(),
		executing: make(map[*Task]struct{}),
		ready:     list.New(),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// SetOptions changes the queue's ready-task retention policy.
func (q *Queue) SetOptions(mode Mode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.mode = mode
}

// PushBack submits task for execution. If dontSchedule is true, the task
// is enqueued but scheduling is deferred to the next call that does
// schedule (useful for batch submission). PushBack after Dispose fails
// with ErrDisposed.
func (q *Queue) PushBack(t *Task, dontSchedule bool) error {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return ErrDisposed
	}
	t.mu.Lock()
	if q.canceled {
		t.token.RequestCancel()
	}
	t.mu.Unlock()
	q.pending.PushBack(t)
	q.mu.Unlock()

	if !dontSchedule {
		q.dispatch()
	}
	return nil
}

// dispatch drains pending into executing up to the concurrency cap.
func (q *Queue) dispatch() {
	for {
		q.mu.Lock()
		if q.disposed || len(q.executing) >= q.cap {
			q.mu.Unlock()
			return
		}
		var front = q.pending.Front()
		if front == nil {
			q.mu.Unlock()
			return
		}
		q.pending.Remove(front)
		var t = front.Value.(*Task)
		q.executing[t] = struct{}{}
		q.mu.Unlock()

		q.io.Post(func() { q.runTask(t) })
	}
}

// runTask drives original (and any continuation chain hanging off it) to
// termination, then files the chain's terminal Task into ready/discard and
// re-triggers dispatch to backfill the freed concurrency slot.
//
// Each successor runs inline, under the same executing slot, before
// original's Done() is closed -- so a waiter on original always observes
// the chain's terminal outcome, per spec.md §4.1, never the result of
// whichever hop happened to run first.
func (q *Queue) runTask(original *Task) {
	var t = original
	for {
		t.start()

		var next *Task
		if cont := t.Continuation(); cont != nil {
			next = cont()
		}
		if next == nil {
			break
		}
		if t != original {
			t.finish(t.Exception())
		}
		t = next
	}

	var finalErr = t.Exception()
	if t != original {
		t.finish(finalErr)
	}
	original.finish(finalErr)

	q.mu.Lock()
	delete(q.executing, original)
	switch q.mode {
	case KeepAll:
		q.ready.PushBack(t)
	case KeepNone:
		// Discarded; waiters were already notified via Done().
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	q.dispatch()
}

// Top peeks the head of the ready queue without removing it. If wait is
// true and the ready queue is empty, Top blocks until a task becomes
// ready or the queue is disposed.
func (q *Queue) Top(wait bool) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if front := q.ready.Front(); front != nil {
			return front.Value.(*Task)
		}
		if !wait || q.disposed {
			return nil
		}
		q.cond.Wait()
	}
}

// Pop removes and returns the head of the ready queue, optionally
// blocking until one is available.
func (q *Queue) Pop(wait bool) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if front := q.ready.Front(); front != nil {
			q.ready.Remove(front)
			return front.Value.(*Task)
		}
		if !wait || q.disposed {
			return nil
		}
		q.cond.Wait()
	}
}

// Wait blocks until t reaches Completed.
func (q *Queue) Wait(t *Task) {
	<-t.done
}

// WaitForSuccess blocks until t reaches Completed and rethrows its first
// captured exception, if any.
func (q *Queue) WaitForSuccess(t *Task) error {
	<-t.done
	return t.Exception()
}

// CancelAll requests cancellation of every pending and executing Task and,
// if wait is true, blocks until all of them have reached Completed.
func (q *Queue) CancelAll(wait bool) {
	q.mu.Lock()
	q.canceled = true
	var toWait []*Task
	for e := q.pending.Front(); e != nil; e = e.Next() {
		var t = e.Value.(*Task)
		t.RequestCancel()
		toWait = append(toWait, t)
	}
	for t := range q.executing {
		t.RequestCancel()
		toWait = append(toWait, t)
	}
	q.mu.Unlock()

	if wait {
		for _, t := range toWait {
			<-t.done
		}
	}
}

// Flush drains the queue according to the given options. discardPending
// removes not-yet-started tasks without running them (they complete with
// ErrCanceled). discardReady drops buffered ready tasks. cancelExecuting
// requests cancellation of in-flight tasks. If nothrowIfFailed is false,
// Flush returns the first error observed among discarded/canceled tasks.
func (q *Queue) Flush(discardPending, nothrowIfFailed, discardReady, cancelExecuting bool) error {
	q.mu.Lock()
	var firstErr error

	if discardPending {
		for e := q.pending.Front(); e != nil; {
			var next = e.Next()
			var t = e.Value.(*Task)
			t.mu.Lock()
			if t.state == Created {
				t.state = Completed
				t.err = ErrCanceled
				t.mu.Unlock()
				close(t.done)
			} else {
				t.mu.Unlock()
			}
			if firstErr == nil && t.Exception() != nil {
				firstErr = t.Exception()
			}
			q.pending.Remove(e)
			e = next
		}
	}
	if discardReady {
		for e := q.ready.Front(); e != nil; {
			var next = e.Next()
			var t = e.Value.(*Task)
			if firstErr == nil && t.Exception() != nil {
				firstErr = t.Exception()
			}
			q.ready.Remove(e)
			e = next
		}
	}
	var toCancel []*Task
	if cancelExecuting {
		for t := range q.executing {
			toCancel = append(toCancel, t)
		}
	}
	q.mu.Unlock()

	for _, t := range toCancel {
		t.RequestCancel()
		<-t.done
		if firstErr == nil && t.Exception() != nil {
			firstErr = t.Exception()
		}
	}

	if nothrowIfFailed {
		return nil
	}
	return firstErr
}

// ForceFlushNoThrow terminates all active tasks and releases resources
// without ever returning an error. It is intended for use from
// destructors/shutdown paths, mirroring spec.md §4.1.
func (q *Queue) ForceFlushNoThrow() {
	_ = q.Flush(true, true, true, true)
}

// Dispose marks the queue disposed, forbidding new submissions, and wakes
// any blocked Top/Pop callers. Dispose is idempotent.
func (q *Queue) Dispose() {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return
	}
	q.disposed = true
	q.mu.Unlock()
	q.ForceFlushNoThrow()
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Executing returns the number of currently-executing tasks. Exposed for
// the |executing(q)| <= cap(q) invariant in spec.md §8's tests.
func (q *Queue) Executing() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.executing)
}
