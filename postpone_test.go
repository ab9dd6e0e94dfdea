package schedcore

import (
	"context"
	"testing"
	"time"
)

func noopTask() Task { return NewTaskFunc(func(ctx context.Context) (any, error) { return nil, nil }) }

func subscribeCounter(t *testing.T, bus *Bus, sig Signal) *int {
	t.Helper()
	n := 0
	if err := bus.Subscribe(sig, NewBoundCallback(func(any) { n++ })); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return &n
}

func TestPostponeQueue_PolicyDrop(t *testing.T) {
	q := NewPostponeQueue()
	dropped := subscribeCounter(t, q.Signals(), postponeDropped)

	r := NewRecord(noopTask(), nil, WithPostponePolicy(PolicyDrop))
	q.Postpone(r)

	if q.Len() != 0 {
		t.Fatalf("Len = %d, want 0 (dropped record must not queue)", q.Len())
	}
	if *dropped != 1 {
		t.Fatalf("dropped fired %d times, want 1", *dropped)
	}
}

func TestPostponeQueue_ExpiredTTL(t *testing.T) {
	q := NewPostponeQueue()
	q.now = func() time.Time { return time.Unix(1000, 0) }
	expired := subscribeCounter(t, q.Signals(), postponeExpired)

	r := NewRecord(noopTask(), nil, WithTTL(999))
	q.Postpone(r)

	if q.Len() != 0 {
		t.Fatalf("Len = %d, want 0", q.Len())
	}
	if *expired != 1 {
		t.Fatalf("expired fired %d times, want 1", *expired)
	}
}

func TestPostponeQueue_PolicyWaitQueues(t *testing.T) {
	q := NewPostponeQueue()
	postponed := subscribeCounter(t, q.Signals(), postponePostponed)

	r := NewRecord(noopTask(), nil)
	q.Postpone(r)

	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
	if *postponed != 1 {
		t.Fatalf("postponed fired %d times, want 1", *postponed)
	}
}

func TestPostponeQueue_PolicyKeepFirst(t *testing.T) {
	q := NewPostponeQueue()
	dropped := subscribeCounter(t, q.Signals(), postponeDropped)
	postponed := subscribeCounter(t, q.Signals(), postponePostponed)

	first := NewRecord(noopTask(), nil, WithGroupID("g"), WithPostponePolicy(PolicyKeepFirst))
	second := NewRecord(noopTask(), nil, WithGroupID("g"), WithPostponePolicy(PolicyKeepFirst))

	q.Postpone(first)
	q.Postpone(second)

	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (only the first of the group kept)", q.Len())
	}
	if *postponed != 1 || *dropped != 1 {
		t.Fatalf("postponed=%d dropped=%d, want 1 and 1", *postponed, *dropped)
	}
	if q.records[0] != first {
		t.Fatal("kept record is not the first one submitted")
	}
}

func TestPostponeQueue_PolicyKeepLast(t *testing.T) {
	q := NewPostponeQueue()
	dropped := subscribeCounter(t, q.Signals(), postponeDropped)
	postponed := subscribeCounter(t, q.Signals(), postponePostponed)

	first := NewRecord(noopTask(), nil, WithGroupID("g"), WithPostponePolicy(PolicyKeepLast))
	second := NewRecord(noopTask(), nil, WithGroupID("g"), WithPostponePolicy(PolicyKeepLast))

	q.Postpone(first)
	q.Postpone(second)

	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (only the last of the group kept)", q.Len())
	}
	if *postponed != 2 || *dropped != 1 {
		t.Fatalf("postponed=%d dropped=%d, want 2 and 1", *postponed, *dropped)
	}
	if q.records[0] != second {
		t.Fatal("kept record is not the last one submitted")
	}
}

func TestPostponeQueue_NextRecordFilterAndEviction(t *testing.T) {
	q := NewPostponeQueue()
	expired := subscribeCounter(t, q.Signals(), postponeExpired)

	now := time.Unix(1000, 0)
	q.now = func() time.Time { return now }

	stale := NewRecord(noopTask(), nil, WithTTL(500))
	wantedLater := NewRecord(noopTask(), nil, WithGroupID("b"))
	wanted := NewRecord(noopTask(), nil, WithGroupID("a"))

	q.records = append(q.records, stale, wantedLater, wanted)

	picked := q.NextRecord(func(r *Record) bool {
		gid, _ := r.GroupID()
		return gid == "a"
	})
	if picked != wanted {
		t.Fatal("NextRecord did not return the matching record")
	}
	if *expired != 1 {
		t.Fatalf("expired fired %d times while scanning past stale record, want 1", *expired)
	}
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (wantedLater remains queued)", q.Len())
	}
	if q.records[0] != wantedLater {
		t.Fatal("remaining record is not wantedLater")
	}
}

func TestPostponeQueue_NextRecordEmpty(t *testing.T) {
	q := NewPostponeQueue()
	if q.NextRecord(nil) != nil {
		t.Fatal("NextRecord on empty queue must return nil")
	}
}
