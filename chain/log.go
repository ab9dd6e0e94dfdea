// Package chain builds a dependency-aware chained task runner on top of
// the scheduling core: one logical "execute this API id" request expands
// into a topological run of underlying tasks, recorded in an append-only
// log.
package chain

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kvlach/schedcore"
)

// LogState is the lifecycle stage a LogEntry records, ported from
// ChainedTaskState in chain_source.go.
type LogState int

const (
	// LogStarted records that an api id's task instance has begun.
	LogStarted LogState = iota
	// LogCompleted records that an api id's task instance has finished.
	LogCompleted
)

func (s LogState) String() string {
	if s == LogCompleted {
		return "completed"
	}
	return "started"
}

// LogEntry is one immutable event in a Log: a task instance starting or
// completing, ported from ChainedTaskLogEntry.
type LogEntry struct {
	APIID     string
	UID       uuid.UUID
	EventTime time.Time
	State     LogState
	Result    *schedcore.TaskResult
}

// NewLogEntry stamps a LogEntry with the current time.
func NewLogEntry(apiID string, uid uuid.UUID, state LogState, result *schedcore.TaskResult) LogEntry {
	return LogEntry{APIID: apiID, UID: uid, EventTime: time.Now(), State: state, Result: result}
}

// Log is the append-only sequence chained tasks record their lifecycle
// into. Iterate must return a point-in-time snapshot: concurrent appends
// made after the iterator is constructed are not observed, per spec §6.
type Log interface {
	Append(entry LogEntry)
	Iterate(reverse bool) []LogEntry
	// Truncate keeps at least minLength of the most recent entries,
	// discarding older ones.
	Truncate(minLength int)
}

// MemoryLog is an in-process Log backed by a slice, grounded in the
// teacher's channel-backed pool.fixed for the "protect with one lock,
// snapshot under it" shape, generalized from a fixed ring buffer to an
// append-only log with watchers.
type MemoryLog struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []LogEntry
}

// NewMemoryLog constructs an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	l := &MemoryLog{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Append adds entry to the end of the log and wakes any WaitFor callers.
func (l *MemoryLog) Append(entry LogEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Iterate returns a stable snapshot of the log, oldest-first unless
// reverse is set.
func (l *MemoryLog) Iterate(reverse bool) []LogEntry {
	l.mu.Lock()
	snapshot := make([]LogEntry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.Unlock()

	if !reverse {
		return snapshot
	}
	for i, j := 0, len(snapshot)-1; i < j; i, j = i+1, j-1 {
		snapshot[i], snapshot[j] = snapshot[j], snapshot[i]
	}
	return snapshot
}

// Truncate keeps at least minLength of the most recent entries.
func (l *MemoryLog) Truncate(minLength int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if minLength < 0 {
		minLength = 0
	}
	if len(l.entries) <= minLength {
		return
	}
	drop := len(l.entries) - minLength
	l.entries = append([]LogEntry(nil), l.entries[drop:]...)
}

// WaitFor blocks until the log records a LogCompleted entry for apiID, or
// ctx is cancelled, returning the completed entry. This is the Go shape of
// ChainedTaskProto.start() calling wait_for(other_api_id) (spec §4.7).
func (l *MemoryLog) WaitFor(ctx context.Context, apiID string) (LogEntry, error) {
	if entry, ok := l.findCompleted(apiID); ok {
		return entry, nil
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.cond.Broadcast()
		case <-done:
		}
	}()
	defer close(done)

	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return LogEntry{}, err
		}
		for i := len(l.entries) - 1; i >= 0; i-- {
			if l.entries[i].APIID == apiID && l.entries[i].State == LogCompleted {
				return l.entries[i], nil
			}
		}
		l.cond.Wait()
	}
}

func (l *MemoryLog) findCompleted(apiID string) (LogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].APIID == apiID && l.entries[i].State == LogCompleted {
			return l.entries[i], true
		}
	}
	return LogEntry{}, false
}
