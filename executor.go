package schedcore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kvlach/schedcore/metrics"
	"github.com/kvlach/schedcore/pool"
)

// CompletionEvent is the value carried by TaskCompleted: the task that ran
// and the result it produced, wrapping a normal return into OkResult and a
// recovered panic or returned error into FailedResult, never letting either
// escape to the executor's own caller (spec §4.4).
type CompletionEvent struct {
	Task   Task
	Result TaskResult
}

// TaskCompleted is emitted exactly once per task submitted to an Executor.
var TaskCompleted = NewSignal[CompletionEvent]("task_completed", nil)

type runEntry struct {
	done   chan struct{}
	result TaskResult
}

// execWorker is the pool-managed helper that actually calls into a Task,
// generalizing the teacher's worker.execute (worker.go) from one typed
// results/errors channel pair to a single TaskResult value handed back
// through a CompletionEvent.
type execWorker struct{}

func (execWorker) run(ctx context.Context, t Task) (result TaskResult) {
	defer func() {
		if p := recover(); p != nil {
			result = FailedResult(fmt.Errorf("task execution panicked: %v", p))
		}
	}()
	v, err := t.Start(ctx)
	if err != nil {
		return FailedResult(err)
	}
	return OkResult(v)
}

// Executor is the bounded worker pool of spec §4.4. Capacity zero means
// unbounded: tasks run on a dynamic pool, the teacher's pool.NewDynamic,
// whose TryGet always succeeds. A positive capacity backs it with a
// pool.NewFixed of matching size, whose channel bookkeeping is itself the
// capacity gate — Reserve calls TryGet, never Get, so it reports
// ErrNoFreeSlot instead of blocking once every worker is checked out.
type Executor struct {
	mu      sync.Mutex
	pool    pool.Pool
	running map[Task]*runEntry

	bus            *Bus
	startedCounter metrics.Counter
	completedCtr   metrics.Counter
	inFlightGauge  metrics.UpDownCounter
}

// NewExecutor constructs an Executor. capacity zero means unbounded.
func NewExecutor(capacity uint, mp metrics.Provider) *Executor {
	if mp == nil {
		mp = metrics.NoopProvider{}
	}
	newWorkerFn := func() interface{} { return execWorker{} }
	var p pool.Pool
	if capacity > 0 {
		p = pool.NewFixed(capacity, newWorkerFn)
	} else {
		p = pool.NewDynamic(newWorkerFn)
	}
	return &Executor{
		pool:           p,
		running:        make(map[Task]*runEntry),
		bus:            NewBus(TaskCompleted),
		startedCounter: mp.Counter("schedcore_executor_tasks_started"),
		completedCtr:   mp.Counter("schedcore_executor_tasks_completed"),
		inFlightGauge:  mp.UpDownCounter("schedcore_executor_tasks_in_flight"),
	}
}

// Signals returns the bus task_completed is emitted on.
func (ex *Executor) Signals() *Bus { return ex.bus }

// Slot is a reserved executor capacity unit: the "context" abstraction of
// spec §4.4, holding the worker leased from the pool by Reserve. Exactly
// one of Submit or Release must be called on it afterward, and that call
// is what returns the worker to the pool.
type Slot struct {
	ex       *Executor
	worker   interface{}
	consumed bool
}

// Reserve leases one worker from the pool without blocking, returning
// ErrNoFreeSlot if the pool is at capacity and none is free. The caller
// must follow with exactly one of Slot.Submit or Slot.Release.
func (ex *Executor) Reserve() (*Slot, error) {
	w, ok := ex.pool.TryGet()
	if !ok {
		return nil, ErrNoFreeSlot
	}
	return &Slot{ex: ex, worker: w}, nil
}

// Release gives back a reserved slot without submitting a task to it.
// Calling Release after Submit, or twice, is a no-op.
func (s *Slot) Release() {
	if s.consumed {
		return
	}
	s.consumed = true
	s.ex.pool.Put(s.worker)
}

// Submit consumes the slot, starting t on a fresh worker goroutine using
// the worker leased by Reserve. ctx governs the task's own execution; it
// is not used to cancel the executor's bookkeeping. Calling Submit on an
// already-consumed slot is a no-op.
func (s *Slot) Submit(ctx context.Context, t Task) {
	if s.consumed {
		return
	}
	s.consumed = true
	s.ex.start(ctx, t, s.worker)
}

// Submit is a convenience for Reserve immediately followed by Submit; it
// returns ErrNoFreeSlot under the same conditions as Reserve.
func (ex *Executor) Submit(ctx context.Context, t Task) error {
	slot, err := ex.Reserve()
	if err != nil {
		return err
	}
	slot.Submit(ctx, t)
	return nil
}

func (ex *Executor) start(ctx context.Context, t Task, w interface{}) {
	entry := &runEntry{done: make(chan struct{})}

	ex.mu.Lock()
	ex.running[t] = entry
	ex.mu.Unlock()

	ex.startedCounter.Add(1)
	ex.inFlightGauge.Add(1)

	worker := w.(execWorker)
	go func() {
		result := worker.run(ctx, t)

		entry.result = result
		close(entry.done)

		ex.mu.Lock()
		delete(ex.running, t)
		ex.mu.Unlock()

		ex.pool.Put(worker)
		ex.completedCtr.Add(1)
		ex.inFlightGauge.Add(-1)

		_ = ex.bus.Emit(TaskCompleted, CompletionEvent{Task: t, Result: result})
	}()
}

// Wait blocks until t completes or timeout elapses, returning its
// TaskResult. A nil timeout blocks forever; a zero or negative timeout
// polls without blocking. ErrNoSuchTask is returned if t is not currently
// running.
func (ex *Executor) Wait(t Task, timeout *time.Duration) (TaskResult, error) {
	ex.mu.Lock()
	entry, ok := ex.running[t]
	ex.mu.Unlock()
	if !ok {
		return TaskResult{}, ErrNoSuchTask
	}

	if timeout == nil {
		<-entry.done
		return entry.result, nil
	}
	if *timeout <= 0 {
		select {
		case <-entry.done:
			return entry.result, nil
		default:
			return TaskResult{}, ErrWaitTimeout
		}
	}
	select {
	case <-entry.done:
		return entry.result, nil
	case <-time.After(*timeout):
		return TaskResult{}, ErrWaitTimeout
	}
}

// Tasks snapshots the set of currently-started tasks.
func (ex *Executor) Tasks() []Task {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	out := make([]Task, 0, len(ex.running))
	for t := range ex.running {
		out = append(out, t)
	}
	return out
}

// Stop asks t to wind down cooperatively via its optional Stopper
// capability. ErrMissingCapability is returned if t does not implement it.
func (ex *Executor) Stop(t Task) error {
	s, ok := t.(Stopper)
	if !ok {
		return ErrMissingCapability
	}
	s.Stop()
	return nil
}

// Terminate asks t to stop forcibly via its optional Terminator
// capability. ErrMissingCapability is returned if t does not implement it.
func (ex *Executor) Terminate(t Task) error {
	term, ok := t.(Terminator)
	if !ok {
		return ErrMissingCapability
	}
	term.Terminate()
	return nil
}
