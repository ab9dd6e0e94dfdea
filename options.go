package schedcore

import (
	"go.uber.org/zap"

	"github.com/kvlach/schedcore/metrics"
)

// Option configures a Scheduler at construction time, the teacher's
// functional-option idiom (options.go) generalized from workers
// configuration to scheduler configuration.
type Option func(*schedulerConfig)

type schedulerConfig struct {
	capacity    uint
	metrics     metrics.Provider
	logger      *zap.SugaredLogger
	jobsBufSize int
}

func defaultSchedulerConfig() schedulerConfig {
	return schedulerConfig{
		capacity: 0,
		metrics:  metrics.NoopProvider{},
		logger:   zap.NewNop().Sugar(),
	}
}

// WithMaxWorkers bounds the scheduler's thread executor to n concurrently
// running tasks. Zero (the default) means unbounded.
func WithMaxWorkers(n uint) Option {
	return func(c *schedulerConfig) { c.capacity = n }
}

// WithMetrics attaches a metrics.Provider used to instrument the executor.
// The default is a no-op provider.
func WithMetrics(mp metrics.Provider) Option {
	return func(c *schedulerConfig) {
		if mp != nil {
			c.metrics = mp
		}
	}
}

// WithLogger attaches a structured logger. The default is a no-op logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *schedulerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithQueueBuffer sets the buffer size of the scheduler's internal
// callback-proxy queue. The default is 0 (unbuffered).
func WithQueueBuffer(size int) Option {
	return func(c *schedulerConfig) { c.jobsBufSize = size }
}
