package pool

// Pool is an interface that defines methods on a pool of workers.
type Pool interface {
	// Get returns a worker from the pool, blocking until one is available.
	Get() interface{}

	// TryGet returns a worker from the pool without blocking. ok is false
	// if the pool is at capacity and every worker is currently checked out.
	TryGet() (worker interface{}, ok bool)

	// Put returns a worker back to the pool.
	Put(interface{})
}
