package schedcore

import (
	"reflect"
	"sync"
)

// Signal is an opaque, typed broadcast channel identity declared once per
// concern (e.g. "a record was dropped"). Identity is by pointer: two Signals
// are the same signal if and only if they are the same *signalDef, exactly
// as spec §3 requires ("Identity is by object reference").
type Signal = *signalDef

type signalDef struct {
	name     string
	valType  reflect.Type
	validate func(any) error
}

// NewSignal declares a signal carrying values of type V. validate, if
// non-nil, runs after the type check and before any subscriber is invoked;
// returning a non-nil error fails the Emit with ErrInvalidSignalValue before
// any subscriber runs, per spec §4.1.
func NewSignal[V any](name string, validate func(V) error) Signal {
	var v func(any) error
	if validate != nil {
		v = func(a any) error { return validate(a.(V)) }
	}
	return &signalDef{
		name:     name,
		valType:  reflect.TypeOf((*V)(nil)).Elem(),
		validate: v,
	}
}

// Name returns the signal's declared name, for logging and diagnostics.
func (s *signalDef) Name() string { return s.name }

type subscription struct {
	cb    *BoundCallback
	alive func() bool // nil means always alive (strong subscription)
}

// Bus is a named, typed broadcast bus: a fixed set of signals declared by
// its owner, with weak- or strong-held subscribers per signal. It is safe
// for concurrent Emit/Subscribe/Unsubscribe, grounded in
// eventloop.EventTarget's sync.RWMutex-guarded listener map
// (joeycumines-go-utilpkg).
type Bus struct {
	mu   sync.RWMutex
	subs map[Signal][]subscription
	// known restricts Subscribe/Emit/Unsubscribe to a declared set when
	// non-nil; a nil set means any Signal is accepted, which is the
	// common case for a Bus embedded in a single-purpose component.
	known map[Signal]struct{}
}

// NewBus constructs a Bus. If signals is non-empty, only those signals may
// be used with this Bus; any other Signal fails with ErrUnknownSignal,
// mirroring spec §4.1's "attempting to emit or subscribe to an unknown
// signal fails".
func NewBus(signals ...Signal) *Bus {
	b := &Bus{subs: make(map[Signal][]subscription)}
	if len(signals) > 0 {
		b.known = make(map[Signal]struct{}, len(signals))
		for _, s := range signals {
			b.known[s] = struct{}{}
		}
	}
	return b
}

func (b *Bus) checkKnown(sig Signal) error {
	if b.known == nil {
		return nil
	}
	if _, ok := b.known[sig]; !ok {
		return ErrUnknownSignal
	}
	return nil
}

// Subscribe registers cb for sig with a strongly-held reference: cb will
// keep receiving emissions until explicitly Unsubscribed. Re-subscribing
// the same *BoundCallback is idempotent.
func (b *Bus) Subscribe(sig Signal, cb *BoundCallback) error {
	return b.subscribe(sig, cb, nil)
}

// SubscribeWeak registers cb for sig, but only so long as owner remains
// reachable elsewhere: once owner is garbage collected the subscription is
// pruned on its next Emit without ever invoking cb again, the Go realization
// of spec §3's "callbacks are held weakly".
func SubscribeWeak[O any](b *Bus, sig Signal, owner *O, cb *BoundCallback) error {
	return b.subscribe(sig, cb, makeAliveCheck(owner))
}

func (b *Bus) subscribe(sig Signal, cb *BoundCallback, alive func() bool) error {
	if err := b.checkKnown(sig); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs[sig] {
		if s.cb == cb {
			return nil // idempotent re-subscribe
		}
	}
	b.subs[sig] = append(b.subs[sig], subscription{cb: cb, alive: alive})
	return nil
}

// Unsubscribe removes cb from sig. It fails with ErrNotSubscribed if cb was
// never registered for sig.
func (b *Bus) Unsubscribe(sig Signal, cb *BoundCallback) error {
	if err := b.checkKnown(sig); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sig]
	for i, s := range list {
		if s.cb == cb {
			b.subs[sig] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotSubscribed
}

// Emit synchronously invokes every live subscriber of sig on the caller's
// goroutine, in unspecified order, after validating value against sig's
// declared type and predicates. A validation failure runs no subscriber.
func (b *Bus) Emit(sig Signal, value any) error {
	if err := b.checkKnown(sig); err != nil {
		return err
	}
	if value != nil && reflect.TypeOf(value) != sig.valType {
		return ErrInvalidSignalValue
	}
	if sig.validate != nil {
		if err := sig.validate(value); err != nil {
			return ErrInvalidSignalValue
		}
	}

	b.mu.Lock()
	list := b.subs[sig]
	live := list[:0:0]
	var dead []int
	for i, s := range list {
		if s.alive != nil && !s.alive() {
			dead = append(dead, i)
			continue
		}
		live = append(live, s)
	}
	if len(dead) > 0 {
		b.subs[sig] = live
	}
	// Copy under lock, invoke outside it: subscribers may themselves call
	// back into the bus (e.g. to unsubscribe), which would otherwise
	// deadlock on this same mutex.
	snapshot := append([]subscription(nil), live...)
	b.mu.Unlock()

	for _, s := range snapshot {
		s.cb.invoke(value)
	}
	return nil
}
