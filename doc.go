// Package schedcore implements the scheduling core of an in-process job
// runtime: a bounded worker pool fed by an ordered postpone queue, driven by
// a single-writer decision engine, and observed through a typed signal bus.
//
// Sources emit Records; Scheduler admits, postpones, drops, expires, starts
// and completes them according to each Record's group, TTL and postpone
// policy. All lifecycle observation happens through the five
// scheduled_task_* signals published on the Scheduler's bus.
//
// The chain subpackage builds a dependency-aware task runner on top of this
// core: it expands one logical request into a topological run of underlying
// tasks and records their lifecycle in an append-only log.
package schedcore
