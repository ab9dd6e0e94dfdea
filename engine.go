package schedcore

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/kvlach/schedcore/metrics"
)

// TaskState tracks where a submitted record sits in its lifecycle,
// mirroring SchedulerExecutor.TaskState in scheduler_executor.go.
type TaskState int

const (
	// StateSubmitted means a decision (start, postpone, drop, expire) has
	// not yet been made for this record.
	StateSubmitted TaskState = iota
	// StatePending means the record is sitting in the postpone queue.
	StatePending
	// StateStarted means the record's task is running in the executor.
	StateStarted
)

func (s TaskState) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StatePending:
		return "pending"
	case StateStarted:
		return "started"
	default:
		return "unknown"
	}
}

type taskDescriptor struct {
	record *Record
	state  TaskState
}

// Lifecycle signals, republished verbatim by Scheduler per spec §4.6.
var (
	ScheduledTaskDropped   = NewSignal[*Record]("scheduled_task_dropped", nil)
	ScheduledTaskPostponed = NewSignal[*Record]("scheduled_task_postponed", nil)
	ScheduledTaskExpired   = NewSignal[*Record]("scheduled_task_expired", nil)
	ScheduledTaskStarted   = NewSignal[*Record]("scheduled_task_started", nil)
	ScheduledTaskCompleted = NewSignal[*Record]("scheduled_task_completed", nil)
)

// Engine is the decision engine of spec §4.5: the single source of truth
// for what happens to a submitted Record. Every mutation of its descriptor
// table happens on its Queue's worker goroutine; ported from
// SchedulerExecutor (scheduler_executor.go).
type Engine struct {
	queue    *Queue
	postpone *PostponeQueue
	executor *Executor
	tasks    map[Task]*taskDescriptor
	bus      *Bus
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewEngine constructs an Engine backed by an Executor of the given
// capacity (zero means unbounded). queue must already be constructed by
// the caller and is started/stopped by the owning Scheduler.
func NewEngine(queue *Queue, capacity uint, mp metrics.Provider, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	e := &Engine{
		queue:    queue,
		postpone: NewPostponeQueue(),
		executor: NewExecutor(capacity, mp),
		tasks:    make(map[Task]*taskDescriptor),
		bus: NewBus(
			ScheduledTaskDropped, ScheduledTaskPostponed, ScheduledTaskExpired,
			ScheduledTaskStarted, ScheduledTaskCompleted,
		),
		logger: logger,
		now:    time.Now,
	}

	// Resend the postpone queue's own dropped/expired notices as this
	// engine's scheduled_task_{dropped,expired}; scheduled_task_postponed
	// is emitted explicitly by postponeRecord below instead, matching
	// __postpone emitting it itself before delegating to the queue.
	//
	// Neither resender touches e.tasks. For keep_first or an already-TTL'd
	// record, postponeRecord below has already set the descriptor to
	// StatePending before calling Postpone, and Postpone can immediately
	// turn around and emit task_dropped/task_expired without ever queuing
	// the record. The descriptor is never removed in that case, so the
	// same Task cannot be submitted again (Submit's duplicate check
	// returns ErrDuplicateTask) until the engine itself is discarded. The
	// original has the same gap; it is not fixed here.
	_ = e.postpone.Signals().Subscribe(postponeDropped, NewResender(e.bus, ScheduledTaskDropped).AsCallback())
	_ = e.postpone.Signals().Subscribe(postponeExpired, NewResender(e.bus, ScheduledTaskExpired).AsCallback())

	// The executor completes tasks from arbitrary goroutines; proxy the
	// notification onto the queue worker before touching the descriptor
	// table, exactly as scheduler_executor.go wraps ThreadExecutor's
	// task_completed through the proxy queue.
	_ = e.executor.Signals().Subscribe(TaskCompleted, queue.Proxy(NewBoundCallback(func(v any) {
		e.onTaskCompleted(v.(CompletionEvent))
	})))

	return e
}

// Signals returns the bus carrying the five scheduled_task_* lifecycle
// signals.
func (e *Engine) Signals() *Bus { return e.bus }

// Decision is the immediate outcome of a submit, reported back to a
// blocking caller. Go's Submit is synchronous end-to-end, so there is no
// need for the signal-subscription dance the original's multi-threaded
// submit() used to learn its own record's fate.
type Decision int

const (
	DecisionStarted Decision = iota
	DecisionPostponed
	DecisionDropped
	DecisionExpired
)

func (d Decision) String() string {
	switch d {
	case DecisionStarted:
		return "started"
	case DecisionPostponed:
		return "postponed"
	case DecisionDropped:
		return "dropped"
	case DecisionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Submit asks the engine to start, postpone, drop or expire record.
// blocking controls whether the caller waits for the decision (needed when
// the caller must observe ErrDuplicateTask or learn the Decision) or fires
// and forgets.
func (e *Engine) Submit(record *Record, blocking bool) (Decision, error) {
	out, err := e.queue.Exec(func() (any, error) {
		d, err := e.submit(record)
		return d, err
	}, blocking)
	if err != nil {
		return 0, err
	}
	if out == nil {
		return 0, nil
	}
	return out.(Decision), nil
}

func (e *Engine) submit(record *Record) (Decision, error) {
	if ttl, ok := record.TTL(); ok && ttl < e.now().Unix() {
		_ = e.bus.Emit(ScheduledTaskExpired, record)
		return DecisionExpired, nil
	}

	if _, exists := e.tasks[record.Task()]; exists {
		return 0, ErrDuplicateTask
	}

	e.tasks[record.Task()] = &taskDescriptor{record: record, state: StateSubmitted}

	if !e.filterRecord(record) {
		return e.postponeRecord(record), nil
	}

	slot, err := e.executor.Reserve()
	if err != nil {
		return e.postponeRecord(record), nil
	}
	e.execTask(record, slot)
	return DecisionStarted, nil
}

func (e *Engine) execTask(record *Record, slot *Slot) {
	e.tasks[record.Task()].state = StateStarted
	slot.Submit(context.Background(), record.Task())
	_ = e.bus.Emit(ScheduledTaskStarted, record)
}

func (e *Engine) postponeRecord(record *Record) Decision {
	if record.PostponePolicy() == PolicyDrop {
		delete(e.tasks, record.Task())
		_ = e.bus.Emit(ScheduledTaskDropped, record)
		return DecisionDropped
	}
	// The descriptor is marked StatePending before Postpone runs, but
	// Postpone (keep_first, or an already-expired TTL) can drop or expire
	// the record on the spot instead of actually queuing it — see the
	// e.tasks leak note on the resender subscriptions above.
	e.tasks[record.Task()].state = StatePending
	_ = e.bus.Emit(ScheduledTaskPostponed, record)
	e.postpone.Postpone(record)
	return DecisionPostponed
}

// filterRecord reports whether record is eligible to start right now given
// the simultaneous_runs bound on its group, ported from
// SchedulerExecutor.__filter_record.
func (e *Engine) filterRecord(record *Record) bool {
	groupID, hasGroup := record.GroupID()
	n := record.SimultaneousRuns()
	if !hasGroup || n == 0 {
		return true
	}
	var count uint
	for _, d := range e.tasks {
		if d.state != StateStarted {
			continue
		}
		gid, ok := d.record.GroupID()
		if ok && gid == groupID {
			count++
		}
	}
	return count < n
}

func (e *Engine) onTaskCompleted(ev CompletionEvent) {
	descriptor, ok := e.tasks[ev.Task]
	if !ok {
		e.logger.Warnw("task_completed for untracked task", "task", ev.Task)
		return
	}
	delete(e.tasks, ev.Task)
	_ = e.bus.Emit(ScheduledTaskCompleted, descriptor.record)
	_ = e.queue.ExecVoid(e.runPostponed, false)
}

// runPostponed reserves as many free executor slots as it can fill with
// eligible postponed records, ported from
// SchedulerExecutor.__run_postponed_tasks.
func (e *Engine) runPostponed() {
	for {
		slot, err := e.executor.Reserve()
		if err != nil {
			break
		}
		record := e.postpone.NextRecord(e.filterRecord)
		if record == nil {
			slot.Release()
			break
		}
		e.execTask(record, slot)
	}
}

// cancelPostponedTasks drops every postponed record unconditionally, used
// during shutdown step 2.
func (e *Engine) cancelPostponedTasks() {
	for {
		record := e.postpone.NextRecord(nil)
		if record == nil {
			return
		}
		delete(e.tasks, record.Task())
		_ = e.bus.Emit(ScheduledTaskDropped, record)
	}
}

// CancelPostponedTasks runs cancelPostponedTasks on the queue worker,
// blocking until it completes.
func (e *Engine) CancelPostponedTasks() {
	_ = e.queue.ExecVoid(e.cancelPostponedTasks, true)
}

// stopRunningTasks asks every started task to wind down via whichever of
// Stop/Terminate it implements, used during shutdown step 3.
func (e *Engine) stopRunningTasks() {
	for task, d := range e.tasks {
		if d.state != StateStarted {
			continue
		}
		if err := e.executor.Stop(task); err == nil {
			continue
		}
		if err := e.executor.Terminate(task); err != nil {
			e.logger.Debugw("running task has neither stop nor terminate capability", "task", task)
		}
	}
}

// StopRunningTasks runs stopRunningTasks on the queue worker, blocking
// until it completes.
func (e *Engine) StopRunningTasks() {
	_ = e.queue.ExecVoid(e.stopRunningTasks, true)
}

func (e *Engine) hasTasks() bool {
	return e.postpone.Len() > 0 || len(e.executor.Tasks()) > 0
}

// AwaitTasks blocks, off the queue worker, until the descriptor table is
// empty, interleaving Wait polls on running tasks with run_postponed
// passes so records freed up by a completion are drained, used during
// shutdown step 4. taskTimeout bounds each individual task wait; nil
// blocks forever.
func (e *Engine) AwaitTasks(taskTimeout *time.Duration) error {
	has, _ := e.queue.Exec(func() (any, error) { return e.hasTasks(), nil }, true)
	for has.(bool) {
		for _, task := range e.executor.Tasks() {
			_, err := e.executor.Wait(task, taskTimeout)
			switch {
			case err == nil, errors.Is(err, ErrNoSuchTask):
				// completed, or raced with completion between the
				// Tasks() snapshot and this Wait call.
			case errors.Is(err, ErrWaitTimeout):
				return ErrWaitTimeout
			}
		}
		_ = e.queue.ExecVoid(e.runPostponed, true)
		has, _ = e.queue.Exec(func() (any, error) { return e.hasTasks(), nil }, true)
	}
	return nil
}

// RunningTasks returns the tasks currently in the started state.
func (e *Engine) RunningTasks() []Task {
	out, _ := e.queue.Exec(func() (any, error) {
		return e.tasksFilter(func(d *taskDescriptor) bool { return d.state == StateStarted }), nil
	}, true)
	return out.([]Task)
}

// PendingTasks returns the tasks currently submitted or postponed but not
// yet started.
func (e *Engine) PendingTasks() []Task {
	out, _ := e.queue.Exec(func() (any, error) {
		return e.tasksFilter(func(d *taskDescriptor) bool { return d.state != StateStarted }), nil
	}, true)
	return out.([]Task)
}

func (e *Engine) tasksFilter(pred func(*taskDescriptor) bool) []Task {
	out := make([]Task, 0, len(e.tasks))
	for t, d := range e.tasks {
		if pred(d) {
			out = append(out, t)
		}
	}
	return out
}
