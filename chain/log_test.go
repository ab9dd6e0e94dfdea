package chain

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kvlach/schedcore"
)

func TestMemoryLog_AppendAndIterate(t *testing.T) {
	log := NewMemoryLog()
	a := NewLogEntry("a", uuid.New(), LogStarted, nil)
	b := NewLogEntry("b", uuid.New(), LogStarted, nil)
	log.Append(a)
	log.Append(b)

	forward := log.Iterate(false)
	if len(forward) != 2 || forward[0].APIID != "a" || forward[1].APIID != "b" {
		t.Fatalf("forward iterate = %+v, want [a b]", forward)
	}

	reverse := log.Iterate(true)
	if len(reverse) != 2 || reverse[0].APIID != "b" || reverse[1].APIID != "a" {
		t.Fatalf("reverse iterate = %+v, want [b a]", reverse)
	}
}

func TestMemoryLog_IterateIsASnapshot(t *testing.T) {
	log := NewMemoryLog()
	log.Append(NewLogEntry("a", uuid.New(), LogStarted, nil))

	snapshot := log.Iterate(false)
	log.Append(NewLogEntry("b", uuid.New(), LogStarted, nil))

	if len(snapshot) != 1 {
		t.Fatalf("snapshot mutated after later Append: len = %d, want 1", len(snapshot))
	}
}

func TestMemoryLog_Truncate(t *testing.T) {
	log := NewMemoryLog()
	for i := 0; i < 5; i++ {
		log.Append(NewLogEntry("a", uuid.New(), LogStarted, nil))
	}
	log.Truncate(2)
	if got := len(log.Iterate(false)); got != 2 {
		t.Fatalf("len after Truncate(2) = %d, want 2", got)
	}
	log.Truncate(10)
	if got := len(log.Iterate(false)); got != 2 {
		t.Fatalf("Truncate above current length must be a no-op, got len = %d", got)
	}
}

func TestMemoryLog_WaitForReturnsImmediatelyIfAlreadyCompleted(t *testing.T) {
	log := NewMemoryLog()
	result := schedcore.OkResult(1)
	log.Append(NewLogEntry("a", uuid.New(), LogCompleted, &result))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	entry, err := log.WaitFor(ctx, "a")
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if entry.APIID != "a" || entry.State != LogCompleted {
		t.Fatalf("entry = %+v, want a completed entry for api id a", entry)
	}
}

func TestMemoryLog_WaitForBlocksUntilCompletion(t *testing.T) {
	log := NewMemoryLog()
	log.Append(NewLogEntry("a", uuid.New(), LogStarted, nil))

	done := make(chan error, 1)
	go func() {
		_, err := log.WaitFor(context.Background(), "a")
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("WaitFor returned before the completion entry was appended")
	case <-time.After(50 * time.Millisecond):
	}

	result := schedcore.OkResult(nil)
	log.Append(NewLogEntry("a", uuid.New(), LogCompleted, &result))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitFor: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitFor never woke up after completion was appended")
	}
}

func TestMemoryLog_WaitForRespectsContextCancellation(t *testing.T) {
	log := NewMemoryLog()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := log.WaitFor(ctx, "never-appears"); err == nil {
		t.Fatal("expected WaitFor to return an error once the context expired")
	}
}
