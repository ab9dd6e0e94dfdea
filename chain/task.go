package chain

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kvlach/schedcore"
)

// Factory builds instances of one chained task type, ported from
// ChainedTaskProto's classmethods (chain_source.go): dependencies() and
// create() were abstract classmethods there because Python tasks are
// registered by class; Go registers a value satisfying this interface
// instead.
type Factory interface {
	// Dependencies returns the api ids that must run to completion before
	// a new instance of this task is created.
	Dependencies() []string
	// Create builds one task instance. log is where the instance should
	// record its own lifecycle via uid; wait_for-style coordination is
	// done by calling log.WaitFor from within the returned Task's Start.
	Create(log Log, uid uuid.UUID) schedcore.Task
}

// Registry maps api ids to the Factory that builds them, ported from
// APIRegistry (pyknic/lib/registry.py) generalized from pyknic's
// string-or-class registry to one that only ever holds Factory values.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates apiID with factory. Registering the same apiID twice
// replaces the previous factory.
func (r *Registry) Register(apiID string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[apiID] = factory
}

// Get looks up the factory registered for apiID.
func (r *Registry) Get(apiID string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[apiID]
	return f, ok
}
