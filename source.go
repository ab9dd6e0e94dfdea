package schedcore

// TaskScheduled is the canonical signal every Source emits a *Record on.
// Declared once at package scope, per spec §3 ("declared once as a
// class-level attribute"; Go has no classes, so this is the package-level
// equivalent every Source's Bus carries).
var TaskScheduled = NewSignal[*Record]("task_scheduled", nil)

// Source is anything that can emit scheduling requests. Its Bus must accept
// TaskScheduled; Scheduler.Subscribe wires a proxied handler onto it.
type Source interface {
	Signals() *Bus
}

// FeedbackKind enumerates the two notifications a Scheduler gives a Source
// about its own subscription state, per spec §4.6.
type FeedbackKind int

const (
	// FeedbackSubscribed is sent right after a successful Subscribe.
	FeedbackSubscribed FeedbackKind = iota
	// FeedbackUnsubscribed is sent right after a successful Unsubscribe.
	FeedbackUnsubscribed
)

func (k FeedbackKind) String() string {
	if k == FeedbackSubscribed {
		return "subscribed"
	}
	return "unsubscribed"
}

// FeedbackReceiver is an optional Source capability: a source that wants to
// remember which Scheduler it is bound to implements it, mirroring
// TaskTrackerSource.scheduler_feedback in original_source.
type FeedbackReceiver interface {
	SchedulerFeedback(scheduler *Scheduler, kind FeedbackKind)
}
