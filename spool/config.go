package spool

import (
	"log/slog"
	"time"

	"github.com/cutoff-dev/common/buffer"
	"github.com/cutoff-dev/common/codec"
	"github.com/cutoff-dev/common/codec/json"
	"github.com/cutoff-dev/common/logging"
	"github.com/cutoff-dev/common/retry"
)

// Config of the [Spool]. It can only be changed by the configuration functions passed to [New].
type Config[Item any] struct {
	file         *FileConfig
	codec        codec.Codec[Item]
	buffer       buffer.Buffer[Item]
	capacity     int
	retryPolicy  retry.Policy
	flushSize    int
	flushTimeout time.Duration
	workers      int
	batches      int
	prometheus   *PrometheusConfig
	logger       *slog.Logger
}

func newConfig[Item any](configFuncs ...func(*Config[Item])) *Config[Item] {
	c := Config[Item]{}
	c.Codec(json.New[Item]())
	c.RetryPolicy(retry.Fixed(0, 0))
	c.FlushSize(100)
	c.Workers(1)
	c.Batches(1)
	c.Prometheus(Prometheus(nil))
	c.Logger(logging.Discard())
	for _, cf := range configFuncs {
		if cf != nil {
			cf(&c)
		}
	}

	if c.buffer != nil && c.capacity != 0 {
		panic("capacity can't be set with a custom buffer")
	}
	if c.buffer == nil {
		capacity := c.capacity
		if capacity == 0 {
			capacity = c.flushSize
		}
		c.buffer = buffer.Preallocated(capacity, func() Item {
			var zero Item
			return zero
		})
	}

	return &c
}

// File sets the database file of the spool. By default the spool is kept in memory.
func (c *Config[Item]) File(file *FileConfig) {
	if file == nil {
		panic("file can't be nil")
	}
	c.file = file
}

// Codec sets the codec used to store batches. Default: [json.Codec].
func (c *Config[Item]) Codec(codec codec.Codec[Item]) {
	if codec == nil {
		panic("codec can't be nil")
	}
	c.codec = codec
}

// Buffer sets the buffer every worker derives its own instance from. Default:
// [buffer.Preallocated] with capacity set by [Config.Capacity] and zero value items.
func (c *Config[Item]) Buffer(buffer buffer.Buffer[Item]) {
	if buffer == nil {
		panic("buffer can't be nil")
	}
	c.buffer = buffer
}

// Capacity sets the number of items preallocated by the default buffer. Default: the flush size.
// It can't be combined with [Config.Buffer].
func (c *Config[Item]) Capacity(capacity int) {
	if capacity < 1 {
		panic("capacity can't be < 1")
	}
	c.capacity = capacity
}

// RetryPolicy sets the policy applied to a failed process function. Default: [retry.Fixed] with
// infinite immediate attempts.
func (c *Config[Item]) RetryPolicy(policy retry.Policy) {
	if policy == nil {
		panic("policy can't be nil")
	}
	c.retryPolicy = policy
}

// FlushSize sets the number of staged items that triggers a flush. Default: 100.
func (c *Config[Item]) FlushSize(size int) {
	if size < 1 {
		panic("flush size can't be < 1")
	}
	c.flushSize = size
}

// FlushTimeout sets the interval of periodic flushes. Zero disables them. Default: 0.
func (c *Config[Item]) FlushTimeout(timeout time.Duration) {
	if timeout < 0 {
		panic("flush timeout can't be < 0")
	}
	c.flushTimeout = timeout
}

// Workers sets the number of process workers. Default: 1.
func (c *Config[Item]) Workers(workers int) {
	if workers < 1 {
		panic("workers can't be < 1")
	}
	c.workers = workers
}

// Batches sets how many stored batches a process worker handles in one call of the process
// function. Default: 1.
func (c *Config[Item]) Batches(batches int) {
	if batches < 1 {
		panic("batches can't be < 1")
	}
	c.batches = batches
}

// Prometheus sets the metrics config. Default: unregistered metrics.
func (c *Config[Item]) Prometheus(prometheus *PrometheusConfig) {
	if prometheus == nil {
		panic("prometheus can't be nil")
	}
	c.prometheus = prometheus
}

// Logger sets the logger. Default: a logger that discards everything.
func (c *Config[Item]) Logger(logger *slog.Logger) {
	if logger == nil {
		panic("logger can't be nil")
	}
	c.logger = logger
}
