package chain

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/kvlach/schedcore"
)

type fakeFactory struct {
	deps []string
}

func (f fakeFactory) Dependencies() []string { return f.deps }

func (f fakeFactory) Create(log Log, uid uuid.UUID) schedcore.Task {
	return schedcore.NewTaskFunc(func(ctx context.Context) (any, error) { return nil, nil })
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("a"); ok {
		t.Fatal("Get on empty registry should miss")
	}

	f := fakeFactory{deps: []string{"b"}}
	r.Register("a", f)

	got, ok := r.Get("a")
	if !ok {
		t.Fatal("Get should find the registered factory")
	}
	if len(got.Dependencies()) != 1 || got.Dependencies()[0] != "b" {
		t.Fatalf("Dependencies() = %v, want [b]", got.Dependencies())
	}
}

func TestRegistry_RegisterReplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Register("a", fakeFactory{deps: []string{"b"}})
	r.Register("a", fakeFactory{deps: []string{"c"}})

	got, _ := r.Get("a")
	if got.Dependencies()[0] != "c" {
		t.Fatalf("Dependencies() = %v, want [c] after re-registration", got.Dependencies())
	}
}
