package pool

import "sync"

// dynamic adapts sync.Pool to the Pool interface; sync.Pool has no TryGet
// of its own because it never needs one — Get() always succeeds immediately,
// allocating via New when the pool is empty.
type dynamic struct {
	pool sync.Pool
}

// NewDynamic is a dynamic-size pool of workers. It is a wrapper around sync.Pool.
func NewDynamic(newFn func() interface{}) Pool {
	return &dynamic{pool: sync.Pool{New: newFn}}
}

func (p *dynamic) Get() interface{} { return p.pool.Get() }

func (p *dynamic) TryGet() (interface{}, bool) { return p.pool.Get(), true }

func (p *dynamic) Put(el interface{}) { p.pool.Put(el) }
