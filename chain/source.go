package chain

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kvlach/schedcore"
)

// Source accepts logical "execute this api id" requests and turns each
// into a topological expansion over the requested id's transitive
// dependencies, ported from ChainedTasksSource (chain_source.go). It
// implements schedcore.Source and schedcore.FeedbackReceiver so it can be
// subscribed onto a Scheduler the ordinary way.
type Source struct {
	sourceUID string
	log       Log
	registry  *Registry

	bus       *schedcore.Bus
	queue     *schedcore.Queue
	scheduler *schedcore.Scheduler

	// inflight deduplicates concurrent Execute calls for the same api id:
	// a second caller racing the first observes the first's outcome
	// instead of independently re-walking and re-submitting the same
	// dependency row.
	inflight singleflight.Group
}

// NewSource constructs a Source. log stores every task instance's
// lifecycle; registry resolves api ids to the Factory that builds them.
func NewSource(log Log, registry *Registry) *Source {
	return &Source{
		sourceUID: uuid.NewString(),
		log:       log,
		registry:  registry,
		bus:       schedcore.NewBus(schedcore.TaskScheduled),
		queue:     schedcore.NewQueue(0),
	}
}

// Signals implements schedcore.Source.
func (s *Source) Signals() *schedcore.Bus { return s.bus }

// SchedulerFeedback implements schedcore.FeedbackReceiver, remembering the
// Scheduler this source is bound to so Execute can submit records and
// learn their fate synchronously, ported from
// TaskTrackerSource.scheduler_feedback minus the thread-event tracking:
// Scheduler.Submit is already a blocking in-process call in this port, so
// there is nothing to wait on asynchronously.
func (s *Source) SchedulerFeedback(scheduler *schedcore.Scheduler, kind schedcore.FeedbackKind) {
	if kind == schedcore.FeedbackSubscribed {
		s.scheduler = scheduler
		return
	}
	s.scheduler = nil
}

// Start launches the source's own callback-proxy queue. Execute calls are
// all serialised through it, just as __execution_row runs on the source's
// queue worker in chain_source.go.
func (s *Source) Start() { s.queue.Start() }

// Stop drains and stops the source's queue.
func (s *Source) Stop() { s.queue.Stop() }

// Execute requests apiID and its not-yet-satisfied transitive dependencies
// be run, in dependency order, blocking until every record in the
// expansion has been handed to the scheduler. It fails synchronously,
// before scheduling anything, if apiID is already active or its
// dependency graph is cyclic.
func (s *Source) Execute(ctx context.Context, apiID string) error {
	v, err, _ := s.inflight.Do(apiID, func() (interface{}, error) {
		return nil, s.execute(ctx, apiID)
	})
	_ = v
	return err
}

func (s *Source) execute(ctx context.Context, apiID string) error {
	_, err := s.queue.Exec(func() (any, error) {
		return nil, s.executionRow(ctx, apiID)
	}, true)
	return err
}

func (s *Source) isActive(apiID string) bool {
	for _, e := range s.log.Iterate(true) {
		if e.APIID == apiID {
			return e.State == LogStarted
		}
	}
	return false
}

func (s *Source) alreadyLogged(apiID string) bool {
	for _, e := range s.log.Iterate(false) {
		if e.APIID == apiID {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// executionRow implements the BFS-with-cycle-detection expansion and
// topological run described in spec §4.7, ported from
// ChainedTasksSource.__execution_row.
func (s *Source) executionRow(ctx context.Context, apiID string) error {
	if s.isActive(apiID) {
		return schedcore.ErrAlreadyActive
	}

	root, ok := s.registry.Get(apiID)
	if !ok {
		return fmt.Errorf("chain: no factory registered for api id %q", apiID)
	}

	executionRow := []string{apiID}
	unprocessed := [][]string{root.Dependencies()}

	for len(unprocessed) > 0 {
		nextDeps := make(map[string]struct{})

		for _, deps := range unprocessed {
			var required []string
			for _, d := range deps {
				if !s.alreadyLogged(d) {
					required = append(required, d)
				}
			}
			for _, r := range required {
				if containsString(executionRow, r) {
					return schedcore.ErrCycleDetected
				}
			}
			for _, r := range required {
				nextDeps[r] = struct{}{}
				executionRow = append([]string{r}, executionRow...)
			}
		}

		unprocessed = unprocessed[:0]
		for d := range nextDeps {
			f, ok := s.registry.Get(d)
			if !ok {
				return fmt.Errorf("chain: no factory registered for api id %q", d)
			}
			unprocessed = append(unprocessed, f.Dependencies())
		}
	}

	for _, id := range executionRow {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.exec(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) exec(apiID string) error {
	if s.scheduler == nil {
		return errors.New("chain: source is not subscribed to a scheduler")
	}

	factory, ok := s.registry.Get(apiID)
	if !ok {
		return fmt.Errorf("chain: no factory registered for api id %q", apiID)
	}

	taskUID := uuid.New()
	task := wrapWithLogging(factory.Create(s.log, taskUID), apiID, taskUID, s.log)

	record := schedcore.NewRecord(task, s,
		schedcore.WithSimultaneousRuns(1),
		schedcore.WithGroupID(s.sourceUID+"--"+apiID),
		schedcore.WithPostponePolicy(schedcore.PolicyDrop),
	)

	// Submit drives the engine directly rather than through the bus (the
	// scheduler needs the synchronous Decision return, which an emitted
	// signal has no way to carry back). Emitting task_scheduled here too
	// is what keeps a facade subscriber's view uniform across sources per
	// spec §4.6: without it, nothing on s.bus ever fires and a consumer
	// watching task_scheduled would never see a chain-originated record.
	_ = s.bus.Emit(schedcore.TaskScheduled, record)

	decision, err := s.scheduler.Submit(record, true)
	if err != nil {
		return err
	}
	if decision != schedcore.DecisionStarted {
		return schedcore.ErrRefused
	}

	s.log.Append(NewLogEntry(apiID, taskUID, LogStarted, nil))
	return nil
}
