package schedcore

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// Queue is the single-threaded cooperative serialiser described in spec
// §4.2: the only writer to a decision engine's mutable state. It is
// grounded in the teacher's dispatch goroutine (workers.go Start), widened
// from "read a task, run it on a fresh worker" to "read a closure, run it
// on the one queue worker".
type Queue struct {
	jobs     chan func()
	started  atomic.Bool
	workerID atomic.Int64 // goroutine id of the running worker; 0 when stopped
	wg       sync.WaitGroup
}

// NewQueue constructs a Queue with the given job buffer size. A size of 0
// makes Exec(blocking=false) synchronous-to-enqueue (it still returns
// immediately once the closure is handed to the channel).
func NewQueue(bufferSize int) *Queue {
	return &Queue{jobs: make(chan func(), bufferSize)}
}

// Start launches the queue's worker goroutine. Start is idempotent; calling
// it twice on an already-started queue is a no-op.
func (q *Queue) Start() {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	ready := make(chan struct{})
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.workerID.Store(currentGoroutineID())
		close(ready)
		for job := range q.jobs {
			job()
		}
		q.workerID.Store(0)
	}()
	<-ready
}

// Stop closes the intake channel and waits for the worker to drain any
// already-enqueued jobs before returning. Further submissions after Stop
// fail with ErrQueueNotStarted.
func (q *Queue) Stop() {
	if !q.started.CompareAndSwap(true, false) {
		return
	}
	close(q.jobs)
	q.wg.Wait()
}

// IsInside reports whether the calling goroutine is the queue's own worker
// goroutine, the Go shape of QueueProxy.is_inside() in
// pyknic/lib/signals/proxy.py. It is used by invariant assertions scattered
// through engine.go.
func (q *Queue) IsInside() bool {
	id := q.workerID.Load()
	return id != 0 && id == currentGoroutineID()
}

// Exec schedules fn onto the queue worker. With blocking=false it returns
// immediately once fn is enqueued (or ErrQueueNotStarted if the queue isn't
// running); fn's return value and error, if any, are discarded by the
// caller — only the worker ever observes them. With blocking=true the
// caller waits for fn to run and receives its result, unless called from
// inside the worker itself, which would deadlock and instead fails fast
// with ErrReentrantBlockingCall.
func (q *Queue) Exec(fn func() (any, error), blocking bool) (any, error) {
	if !blocking {
		if !q.started.Load() {
			return nil, ErrQueueNotStarted
		}
		q.jobs <- func() { fn() } //nolint:errcheck // fire-and-forget by contract
		return nil, nil
	}

	if q.IsInside() {
		return nil, ErrReentrantBlockingCall
	}
	if !q.started.Load() {
		return nil, ErrQueueNotStarted
	}

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)
	q.jobs <- func() {
		v, err := fn()
		done <- outcome{val: v, err: err}
	}
	out := <-done
	return out.val, out.err
}

// ExecVoid is a convenience wrapper around Exec for closures with no
// meaningful return value.
func (q *Queue) ExecVoid(fn func(), blocking bool) error {
	_, err := q.Exec(func() (any, error) { fn(); return nil, nil }, blocking)
	return err
}

// Proxy wraps cb so that, when invoked (typically by a Bus.Emit on another
// goroutine), the call is enqueued onto this queue instead of running
// inline on the emitting goroutine. This is the Go shape of
// QueueProxy.proxy in pyknic/lib/signals/proxy.py, and is how every
// cross-component signal in engine.go gets marshalled onto the single
// writer.
func (q *Queue) Proxy(cb *BoundCallback) *BoundCallback {
	return NewBoundCallback(func(value any) {
		_ = q.ExecVoid(func() { cb.invoke(value) }, false)
	})
}

// currentGoroutineID extracts the calling goroutine's runtime id by parsing
// the header line of runtime.Stack, the same technique the ecosystem's
// goroutine-local-storage helpers use (see goroutineid in the wider
// go-utilpkg workspace) absent a stdlib-exposed goroutine id.
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
