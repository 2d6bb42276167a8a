package spool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusConfig is a config of the Prometheus metrics provided by the spool.
//
// An instance can be created only by the [Prometheus] function. The zero value is invalid.
type PrometheusConfig struct {
	// Options for the batches gauge.
	Batches prometheus.GaugeOpts
	// Options for the items gauge.
	Items prometheus.GaugeOpts
	// Options for the gauge of the staging buffer capacity.
	BufferCapacity prometheus.GaugeOpts
	// Options for the pushed items counter.
	ItemsPushed prometheus.CounterOpts
	// Options for the flushed items counter. It's partitioned by the "reason" label: size,
	// timeout, manual or close.
	ItemsFlushed prometheus.CounterOpts
	// Options for the processed items counter.
	ItemsProcessed prometheus.CounterOpts
	// Options for the process errors counter.
	ProcessErrors prometheus.CounterOpts
	// Options for the process duration histogram, in seconds.
	ProcessDuration prometheus.HistogramOpts

	registerer prometheus.Registerer
}

// Prometheus returns a [PrometheusConfig] with the provided registerer. If registerer is nil,
// metrics are collected but not registered. Options of every metric can be changed by passing
// configuration functions.
func Prometheus(
	registerer prometheus.Registerer,
	configFuncs ...func(c *PrometheusConfig),
) *PrometheusConfig {
	const namespace = "spool"

	c := PrometheusConfig{
		registerer: registerer,
		Batches: prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches",
			Help:      "Number of stored batches",
		},
		Items: prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items",
			Help:      "Number of items in stored batches",
		},
		BufferCapacity: prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_capacity",
			Help:      "Number of preallocated items in the staging buffer",
		},
		ItemsPushed: prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_pushed",
			Help:      "Number of items pushed into the spool",
		},
		ItemsFlushed: prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_flushed",
			Help:      "Number of items flushed from the staging buffer",
		},
		ItemsProcessed: prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed",
			Help:      "Number of processed items",
		},
		ProcessErrors: prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_errors",
			Help:      "Number of failed calls of the process function",
		},
		ProcessDuration: prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Duration of batch processing",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		},
	}

	for _, cf := range configFuncs {
		if cf != nil {
			cf(&c)
		}
	}

	return &c
}

// Namespace sets the namespace of every metric.
func (c *PrometheusConfig) Namespace(namespace string) {
	c.Batches.Namespace = namespace
	c.Items.Namespace = namespace
	c.BufferCapacity.Namespace = namespace
	c.ItemsPushed.Namespace = namespace
	c.ItemsFlushed.Namespace = namespace
	c.ItemsProcessed.Namespace = namespace
	c.ProcessErrors.Namespace = namespace
	c.ProcessDuration.Namespace = namespace
}

// ConstLabels adds the labels to every metric. Use it to tell apart several spools registered in
// the same registry.
func (c *PrometheusConfig) ConstLabels(labels prometheus.Labels) {
	c.Batches.ConstLabels = labels
	c.Items.ConstLabels = labels
	c.BufferCapacity.ConstLabels = labels
	c.ItemsPushed.ConstLabels = labels
	c.ItemsFlushed.ConstLabels = labels
	c.ItemsProcessed.ConstLabels = labels
	c.ProcessErrors.ConstLabels = labels
	c.ProcessDuration.ConstLabels = labels
}

func (c *PrometheusConfig) metrics() (*metrics, error) {
	m := metrics{
		batches:         prometheus.NewGauge(c.Batches),
		items:           prometheus.NewGauge(c.Items),
		bufferCapacity:  prometheus.NewGauge(c.BufferCapacity),
		itemsPushed:     prometheus.NewCounter(c.ItemsPushed),
		itemsFlushed:    prometheus.NewCounterVec(c.ItemsFlushed, []string{"reason"}),
		itemsProcessed:  prometheus.NewCounter(c.ItemsProcessed),
		processErrors:   prometheus.NewCounter(c.ProcessErrors),
		processDuration: prometheus.NewHistogram(c.ProcessDuration),
	}

	if c.registerer != nil {
		collectors := m.collectors()
		for i, collector := range collectors {
			if err := c.registerer.Register(collector); err != nil {
				// Unregistering an unregistered duplicate would remove the original.
				for _, registered := range collectors[:i] {
					c.registerer.Unregister(registered)
				}
				return nil, err
			}
		}
	}

	return &m, nil
}

type metrics struct {
	batches         prometheus.Gauge
	items           prometheus.Gauge
	bufferCapacity  prometheus.Gauge
	itemsPushed     prometheus.Counter
	itemsFlushed    *prometheus.CounterVec
	itemsProcessed  prometheus.Counter
	processErrors   prometheus.Counter
	processDuration prometheus.Histogram
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.batches,
		m.items,
		m.bufferCapacity,
		m.itemsPushed,
		m.itemsFlushed,
		m.itemsProcessed,
		m.processErrors,
		m.processDuration,
	}
}

// unregister removes the metrics so that a spool can be reopened with the same registerer.
func (c *PrometheusConfig) unregister(m *metrics) {
	if c.registerer == nil {
		return
	}
	for _, collector := range m.collectors() {
		c.registerer.Unregister(collector)
	}
}
