package schedcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func taskFunc(fn func(ctx context.Context) (any, error)) *TaskFunc { return NewTaskFunc(fn) }

func TestExecutor_SubmitAndWaitOk(t *testing.T) {
	ex := NewExecutor(0, nil)
	task := taskFunc(func(ctx context.Context) (any, error) { return 5, nil })

	if err := ex.Submit(context.Background(), task); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	res, err := ex.Wait(task, nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	v, verr := res.Unwrap()
	if !res.Ok() || verr != nil || v.(int) != 5 {
		t.Fatalf("result = %v/%v ok=%v, want 5/nil/true", v, verr, res.Ok())
	}
}

func TestExecutor_WaitReturnsFailedResultOnError(t *testing.T) {
	ex := NewExecutor(0, nil)
	boom := errors.New("boom")
	task := taskFunc(func(ctx context.Context) (any, error) { return nil, boom })

	if err := ex.Submit(context.Background(), task); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err := ex.Wait(task, nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	_, verr := res.Unwrap()
	if res.Ok() || !errors.Is(verr, boom) {
		t.Fatalf("result ok=%v err=%v, want ok=false err=boom", res.Ok(), verr)
	}
}

func TestExecutor_PanicIsRecovered(t *testing.T) {
	ex := NewExecutor(0, nil)
	task := taskFunc(func(ctx context.Context) (any, error) { panic("kaboom") })

	if err := ex.Submit(context.Background(), task); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err := ex.Wait(task, nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Ok() {
		t.Fatal("panic should surface as a failed result")
	}
	_, verr := res.Unwrap()
	if verr == nil {
		t.Fatal("expected a non-nil error describing the panic")
	}
}

func TestExecutor_ReserveRespectsCapacity(t *testing.T) {
	ex := NewExecutor(1, nil)

	slot, err := ex.Reserve()
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := ex.Reserve(); !errors.Is(err, ErrNoFreeSlot) {
		t.Fatalf("second Reserve: got %v, want ErrNoFreeSlot", err)
	}

	slot.Release()
	if _, err := ex.Reserve(); err != nil {
		t.Fatalf("Reserve after Release: %v", err)
	}
}

func TestExecutor_SlotReleaseIsIdempotent(t *testing.T) {
	ex := NewExecutor(1, nil)
	slot, err := ex.Reserve()
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	slot.Release()
	slot.Release() // must not double-decrement inUse

	s2, err := ex.Reserve()
	if err != nil {
		t.Fatalf("Reserve after double Release: %v", err)
	}
	if _, err := ex.Reserve(); !errors.Is(err, ErrNoFreeSlot) {
		t.Fatalf("got %v, want ErrNoFreeSlot (capacity must still be 1)", err)
	}
	s2.Release()
}

func TestExecutor_WaitUnknownTask(t *testing.T) {
	ex := NewExecutor(0, nil)
	task := taskFunc(func(ctx context.Context) (any, error) { return nil, nil })
	if _, err := ex.Wait(task, nil); !errors.Is(err, ErrNoSuchTask) {
		t.Fatalf("got %v, want ErrNoSuchTask", err)
	}
}

func TestExecutor_WaitTimesOut(t *testing.T) {
	ex := NewExecutor(0, nil)
	release := make(chan struct{})
	task := taskFunc(func(ctx context.Context) (any, error) { <-release; return nil, nil })

	if err := ex.Submit(context.Background(), task); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	d := 10 * time.Millisecond
	if _, err := ex.Wait(task, &d); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("got %v, want ErrWaitTimeout", err)
	}
	close(release)
	if _, err := ex.Wait(task, nil); err != nil {
		t.Fatalf("final Wait: %v", err)
	}
}

func TestExecutor_StopAndTerminateRequireCapability(t *testing.T) {
	ex := NewExecutor(0, nil)
	task := taskFunc(func(ctx context.Context) (any, error) { return nil, nil })

	if err := ex.Stop(task); !errors.Is(err, ErrMissingCapability) {
		t.Fatalf("Stop: got %v, want ErrMissingCapability", err)
	}
	if err := ex.Terminate(task); !errors.Is(err, ErrMissingCapability) {
		t.Fatalf("Terminate: got %v, want ErrMissingCapability", err)
	}
}

type stoppableTask struct {
	stopped chan struct{}
}

func (s *stoppableTask) Start(ctx context.Context) (any, error) { <-s.stopped; return nil, nil }
func (s *stoppableTask) Stop()                                  { close(s.stopped) }

func TestExecutor_StopInvokesCapability(t *testing.T) {
	ex := NewExecutor(0, nil)
	task := &stoppableTask{stopped: make(chan struct{})}

	if err := ex.Submit(context.Background(), task); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := ex.Stop(task); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := ex.Wait(task, nil); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestExecutor_TasksSnapshot(t *testing.T) {
	ex := NewExecutor(0, nil)
	release := make(chan struct{})
	task := taskFunc(func(ctx context.Context) (any, error) { <-release; return nil, nil })

	if err := ex.Submit(context.Background(), task); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	found := false
	for _, running := range ex.Tasks() {
		if running == Task(task) {
			found = true
		}
	}
	if !found {
		t.Fatal("Tasks() did not include the running task")
	}
	close(release)
	if _, err := ex.Wait(task, nil); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
