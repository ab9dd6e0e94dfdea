package schedcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubSource struct {
	bus            *Bus
	feedbackEvents []FeedbackKind
}

func newStubSource() *stubSource {
	return &stubSource{bus: NewBus(TaskScheduled)}
}

func (s *stubSource) Signals() *Bus { return s.bus }

func (s *stubSource) SchedulerFeedback(scheduler *Scheduler, kind FeedbackKind) {
	s.feedbackEvents = append(s.feedbackEvents, kind)
}

func (s *stubSource) emit(t *testing.T, r *Record) {
	t.Helper()
	if err := s.bus.Emit(TaskScheduled, r); err != nil {
		t.Fatalf("emit task_scheduled: %v", err)
	}
}

func TestScheduler_SubscribeDeliversRecordsToEngine(t *testing.T) {
	sched := New(WithQueueBuffer(4))
	sched.Start()
	defer sched.Stop(nil)

	src := newStubSource()
	if err := sched.Subscribe(src); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	started := make(chan struct{}, 1)
	task := taskFunc(func(ctx context.Context) (any, error) { started <- struct{}{}; return nil, nil })
	src.emit(t, NewRecord(task, src))

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("record emitted by source was never started")
	}
}

func TestScheduler_SubscribeTwiceFails(t *testing.T) {
	sched := New()
	sched.Start()
	defer sched.Stop(nil)

	src := newStubSource()
	if err := sched.Subscribe(src); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sched.Subscribe(src); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("got %v, want ErrAlreadySubscribed", err)
	}
}

func TestScheduler_UnsubscribeUnknownSourceFails(t *testing.T) {
	sched := New()
	sched.Start()
	defer sched.Stop(nil)

	if err := sched.Unsubscribe(newStubSource()); !errors.Is(err, ErrNotSourceSubscribed) {
		t.Fatalf("got %v, want ErrNotSourceSubscribed", err)
	}
}

func TestScheduler_SubscribeAndUnsubscribeNotifyFeedback(t *testing.T) {
	sched := New()
	sched.Start()
	defer sched.Stop(nil)

	src := newStubSource()
	if err := sched.Subscribe(src); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sched.Unsubscribe(src); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	if len(src.feedbackEvents) != 2 || src.feedbackEvents[0] != FeedbackSubscribed || src.feedbackEvents[1] != FeedbackUnsubscribed {
		t.Fatalf("feedback events = %v, want [Subscribed Unsubscribed]", src.feedbackEvents)
	}
}

func TestScheduler_DirectSubmitBypassesSource(t *testing.T) {
	sched := New()
	sched.Start()
	defer sched.Stop(nil)

	d, err := sched.Submit(NewRecord(noopTask(), nil), true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if d != DecisionStarted {
		t.Fatalf("decision = %v, want DecisionStarted", d)
	}
}

func TestScheduler_StopUnsubscribesAndDrains(t *testing.T) {
	sched := New()
	sched.Start()

	src := newStubSource()
	if err := sched.Subscribe(src); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := sched.Stop(nil); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if len(src.feedbackEvents) == 0 || src.feedbackEvents[len(src.feedbackEvents)-1] != FeedbackUnsubscribed {
		t.Fatal("Stop must unsubscribe every source before shutting down")
	}
}
