package schedcore

import (
	"github.com/cockroachdb/errors"
)

// Namespace prefixes every sentinel error this package defines, the same
// convention the teacher uses for its own error strings.
const Namespace = "schedcore"

// Programming errors. These surface synchronously from the offending call
// and are never retried; a caller hitting one has a bug to fix, not a
// condition to recover from.
var (
	// ErrUnknownSignal is returned by Emit/Subscribe/Unsubscribe when the
	// given Signal was not declared on the Bus being addressed.
	ErrUnknownSignal = errors.New(Namespace + ": unknown signal")

	// ErrInvalidSignalValue is returned by Emit when the value does not
	// satisfy the Signal's declared type or predicates. No subscriber runs.
	ErrInvalidSignalValue = errors.New(Namespace + ": invalid signal value")

	// ErrNotSubscribed is returned by Unsubscribe when the callback was not
	// registered for the given signal.
	ErrNotSubscribed = errors.New(Namespace + ": callback not subscribed")

	// ErrAlreadySubscribed is returned by Scheduler.Subscribe when the
	// source is already subscribed.
	ErrAlreadySubscribed = errors.New(Namespace + ": source already subscribed")

	// ErrNotSourceSubscribed is returned by Scheduler.Unsubscribe when the
	// source was never subscribed.
	ErrNotSourceSubscribed = errors.New(Namespace + ": source not subscribed")

	// ErrDuplicateTask is returned by Engine.Submit when the record's task
	// is already tracked by a live descriptor.
	ErrDuplicateTask = errors.New(Namespace + ": task already submitted")

	// ErrReentrantBlockingCall is returned by Queue.Exec(blocking=true) when
	// called from inside the queue's own worker goroutine; honoring it
	// would deadlock the worker against itself.
	ErrReentrantBlockingCall = errors.New(Namespace + ": blocking exec called from inside the queue worker")

	// ErrQueueNotStarted is returned by Queue.Exec/Proxy submissions made
	// before Start or after Stop.
	ErrQueueNotStarted = errors.New(Namespace + ": queue is not running")

	// ErrNoFreeSlot is returned by Executor.Reserve/Submit when the worker
	// pool is at capacity. It is not an error condition for the caller to
	// report; it is the signal to postpone instead.
	ErrNoFreeSlot = errors.New(Namespace + ": no free worker slot")

	// ErrNoSuchTask is returned by Executor.Wait/Stop/Terminate for a task
	// the executor is not currently running.
	ErrNoSuchTask = errors.New(Namespace + ": no such running task")

	// ErrWaitTimeout is returned by Executor.Wait when the given timeout
	// elapses, or when polling a task that has not yet completed, before
	// the task finishes.
	ErrWaitTimeout = errors.New(Namespace + ": wait timed out")

	// ErrCycleDetected is returned by chain.Source.Execute when the
	// requested API id's dependency graph is not acyclic.
	ErrCycleDetected = errors.New(Namespace + ": mutual dependency cycle detected")

	// ErrAlreadyActive is returned by chain.Source.Execute when the
	// requested API id already has a started, not-yet-completed log entry.
	ErrAlreadyActive = errors.New(Namespace + ": task already active")

	// ErrRefused is returned by chain.Source.Execute when the scheduler
	// declines to start a record (anything other than scheduled_task_started).
	ErrRefused = errors.New(Namespace + ": scheduler refused to start task")

	// ErrMissingCapability is returned when a capability-gated operation
	// (Stop/Terminate) is requested of a task that does not implement it.
	ErrMissingCapability = errors.New(Namespace + ": task does not implement the requested capability")

	// ErrCronUninitialized is returned by CronScheduleRecord.Next/Commit
	// when called before Init.
	ErrCronUninitialized = errors.New(Namespace + ": cron schedule record used before initialisation")

	// ErrCronAlreadyInitialized is returned by CronScheduleRecord.Init
	// when called a second time.
	ErrCronAlreadyInitialized = errors.New(Namespace + ": cron schedule record already initialised")

	// ErrCronScheduleUnsatisfiable is returned when a CronSchedule has no
	// occurrence within the search horizon from a given point in time.
	ErrCronScheduleUnsatisfiable = errors.New(Namespace + ": cron schedule has no upcoming occurrence")
)
