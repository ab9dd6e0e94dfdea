package schedcore

import "weak"

// BoundCallback is a comparable handle around a subscriber function, the Go
// shape of pyknic's BoundedCallback (pyknic/lib/signals/extra.py): it gives
// a callback a stable identity so Bus.Unsubscribe and idempotent
// re-subscription can compare "is this the same subscriber" without relying
// on Go's non-comparable function values.
type BoundCallback struct {
	fn func(value any)
}

// NewBoundCallback wraps fn in a BoundCallback with its own identity.
func NewBoundCallback(fn func(value any)) *BoundCallback {
	return &BoundCallback{fn: fn}
}

// BindMethod wraps a method value bound to recv into a BoundCallback. Each
// call allocates a new handle, the same as NewBoundCallback; callers that
// need Unsubscribe or idempotent re-subscribe to recognize a binding across
// calls must keep the returned *BoundCallback and reuse it, not call
// BindMethod again with an equal (recv, method) pair.
func BindMethod[R any](recv *R, method func(*R, any)) *BoundCallback {
	return NewBoundCallback(func(value any) { method(recv, value) })
}

func (c *BoundCallback) invoke(value any) { c.fn(value) }

// makeAliveCheck returns a predicate reporting whether owner is still
// reachable, backed by the Go 1.24 weak package. This is the direct
// realization of spec §3's "callback kept alive only through the bus
// disappears with its owner": weak.Make never keeps owner alive, so once
// every strong reference elsewhere is gone, Value() starts returning nil.
func makeAliveCheck[O any](owner *O) func() bool {
	wp := weak.Make(owner)
	return func() bool { return wp.Value() != nil }
}

// Resender re-emits whatever it observes on one Bus's signal onto a second
// Bus, optionally under a different Signal identity. It is the Go shape of
// pyknic's SignalResender (pyknic/lib/signals/extra.py), used throughout
// engine.go and scheduler.go to republish lifecycle signals verbatim.
type Resender struct {
	target *Bus
	signal Signal
}

// NewResender builds a Resender that forwards onto target under targetSignal.
func NewResender(target *Bus, targetSignal Signal) *Resender {
	return &Resender{target: target, signal: targetSignal}
}

// AsCallback returns a BoundCallback suitable for Bus.Subscribe that
// forwards every received value via r.
func (r *Resender) AsCallback() *BoundCallback {
	return NewBoundCallback(r.Forward)
}

// Forward emits value on the target bus under the resender's signal.
// Errors are swallowed: a resender forwards best-effort the same way the
// teacher's error_forwarder.go treats a full outward channel as a
// best-effort delivery rather than a hard failure.
func (r *Resender) Forward(value any) {
	_ = r.target.Emit(r.signal, value)
}
