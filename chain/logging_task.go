package chain

import (
	"context"

	"github.com/google/uuid"

	"github.com/kvlach/schedcore"
)

// loggingTask appends a LogCompleted entry once its wrapped task finishes,
// supplementing chain_source.go's own TODO ("a chained task should
// register its own result in a datalog") rather than leaving every
// Factory.Create implementation to remember to do it itself.
type loggingTask struct {
	inner schedcore.Task
	apiID string
	uid   uuid.UUID
	log   Log
}

func (t *loggingTask) Start(ctx context.Context) (any, error) {
	v, err := t.inner.Start(ctx)

	var result schedcore.TaskResult
	if err != nil {
		result = schedcore.FailedResult(err)
	} else {
		result = schedcore.OkResult(v)
	}
	t.log.Append(NewLogEntry(t.apiID, t.uid, LogCompleted, &result))

	return v, err
}

type loggingTaskStop struct{ *loggingTask }

func (t loggingTaskStop) Stop() { t.inner.(schedcore.Stopper).Stop() }

type loggingTaskTerminate struct{ *loggingTask }

func (t loggingTaskTerminate) Terminate() { t.inner.(schedcore.Terminator).Terminate() }

type loggingTaskStopTerminate struct{ *loggingTask }

func (t loggingTaskStopTerminate) Stop()      { t.inner.(schedcore.Stopper).Stop() }
func (t loggingTaskStopTerminate) Terminate() { t.inner.(schedcore.Terminator).Terminate() }

// wrapWithLogging wraps inner so its completion is recorded in log,
// forwarding the optional Stopper/Terminator capabilities inner itself
// implements so the executor's capability probing (schedcore §4.4) still
// sees them through the wrapper.
func wrapWithLogging(inner schedcore.Task, apiID string, uid uuid.UUID, log Log) schedcore.Task {
	base := &loggingTask{inner: inner, apiID: apiID, uid: uid, log: log}
	_, hasStop := inner.(schedcore.Stopper)
	_, hasTerm := inner.(schedcore.Terminator)

	switch {
	case hasStop && hasTerm:
		return loggingTaskStopTerminate{base}
	case hasStop:
		return loggingTaskStop{base}
	case hasTerm:
		return loggingTaskTerminate{base}
	default:
		return base
	}
}
