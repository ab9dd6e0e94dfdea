package schedcore

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler is the thin adapter presented to the outside world, ported
// from SchedulerProto's facade implementation across scheduler_executor.go
// and the SignalSource base: it owns the callback-proxy queue, subscribes
// and unsubscribes Sources, and republishes the engine's five lifecycle
// signals verbatim.
type Scheduler struct {
	queue  *Queue
	engine *Engine
	bus    *Bus
	logger *zap.SugaredLogger

	mu        sync.Mutex
	sources   map[Source]*BoundCallback
	startOnce sync.Once
}

// New constructs a Scheduler. It is not started until Start is called.
func New(opts ...Option) *Scheduler {
	cfg := defaultSchedulerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	queue := NewQueue(cfg.jobsBufSize)
	engine := NewEngine(queue, cfg.capacity, cfg.metrics, cfg.logger)

	s := &Scheduler{
		queue:   queue,
		engine:  engine,
		logger:  cfg.logger,
		sources: make(map[Source]*BoundCallback),
		bus: NewBus(
			TaskScheduled,
			ScheduledTaskDropped, ScheduledTaskPostponed, ScheduledTaskExpired,
			ScheduledTaskStarted, ScheduledTaskCompleted,
		),
	}

	resend := func(sig Signal) {
		_ = engine.Signals().Subscribe(sig, NewResender(s.bus, sig).AsCallback())
	}
	resend(ScheduledTaskDropped)
	resend(ScheduledTaskPostponed)
	resend(ScheduledTaskExpired)
	resend(ScheduledTaskStarted)
	resend(ScheduledTaskCompleted)

	return s
}

// Signals returns the bus carrying task_scheduled plus the five
// scheduled_task_* lifecycle signals; this is the scheduler's public
// contract.
func (s *Scheduler) Signals() *Bus { return s.bus }

// Start launches the scheduler's internal queue worker. Start may be
// called only once; subsequent calls are no-ops.
func (s *Scheduler) Start() {
	s.startOnce.Do(s.queue.Start)
}

// Subscribe wires source's task_scheduled signal through the proxy queue
// into the decision engine. It fails with ErrAlreadySubscribed if source
// is already subscribed. If source implements FeedbackReceiver, it is
// notified with FeedbackSubscribed once wiring completes.
func (s *Scheduler) Subscribe(source Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sources[source]; exists {
		return ErrAlreadySubscribed
	}

	proxied := s.queue.Proxy(NewBoundCallback(func(v any) {
		s.onTaskScheduled(v.(*Record))
	}))
	if err := source.Signals().Subscribe(TaskScheduled, proxied); err != nil {
		return err
	}
	s.sources[source] = proxied

	if fr, ok := source.(FeedbackReceiver); ok {
		fr.SchedulerFeedback(s, FeedbackSubscribed)
	}
	return nil
}

// Unsubscribe is the inverse of Subscribe. It fails with
// ErrNotSourceSubscribed if source was never subscribed.
func (s *Scheduler) Unsubscribe(source Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proxied, exists := s.sources[source]
	if !exists {
		return ErrNotSourceSubscribed
	}
	if err := source.Signals().Unsubscribe(TaskScheduled, proxied); err != nil {
		return err
	}
	delete(s.sources, source)

	if fr, ok := source.(FeedbackReceiver); ok {
		fr.SchedulerFeedback(s, FeedbackUnsubscribed)
	}
	return nil
}

// unsubscribeAll is step 1 of the shutdown sequence: stop new records from
// arriving before anything else happens.
func (s *Scheduler) unsubscribeAll() {
	s.mu.Lock()
	sources := make([]Source, 0, len(s.sources))
	for src := range s.sources {
		sources = append(sources, src)
	}
	s.mu.Unlock()

	for _, src := range sources {
		_ = s.Unsubscribe(src)
	}
}

// onTaskScheduled runs on the queue worker: it re-emits task_scheduled on
// the facade so consumers see a uniform stream independent of source, then
// delegates to the engine's submit algorithm.
func (s *Scheduler) onTaskScheduled(record *Record) {
	_ = s.bus.Emit(TaskScheduled, record)
	if _, err := s.engine.submit(record); err != nil {
		s.logger.Warnw("submit rejected", "error", err)
	}
}

// Submit hands record directly to the engine, bypassing the Source
// indirection; used by components (such as the chained task source) that
// are themselves driving the scheduler programmatically rather than
// through a subscribed Source. blocking must be true for the returned
// Decision to be meaningful.
func (s *Scheduler) Submit(record *Record, blocking bool) (Decision, error) {
	return s.engine.Submit(record, blocking)
}

// Stop runs the shutdown sequence in strict order: unsubscribe every
// source, drop postponed work, ask running tasks to stop, then wait for
// the descriptor table to empty before finally stopping the queue worker.
// taskTimeout bounds each individual running task's wait during the final
// step; nil blocks forever.
func (s *Scheduler) Stop(taskTimeout *time.Duration) error {
	s.unsubscribeAll()
	s.engine.CancelPostponedTasks()
	s.engine.StopRunningTasks()
	if err := s.engine.AwaitTasks(taskTimeout); err != nil {
		return err
	}
	s.queue.Stop()
	return nil
}
