// Package prometheus exports lurch operation metrics to Prometheus.
//
//	mc := prometheus.NewCollector(prometheus.WithConstLabels(map[string]string{"collection": "sessions"}))
//	registry.MustRegister(mc)
//	tbl, _ := lurchtable.New[string, Session](lurchtable.Access, 10_000,
//	    lurchtable.WithMetricsCollector(mc))
package prometheus

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/lurch"
)

var (
	_ lurch.MetricsCollector = (*Collector)(nil)
	_ prom.Collector         = (*Collector)(nil)
)

// Collector implements lurch.MetricsCollector on Prometheus metrics. It is
// itself a prometheus.Collector: register it once, then share it between any
// number of tables and trees.
type Collector struct {
	operations *prom.CounterVec
	latency    *prom.HistogramVec
	lookups    *prom.CounterVec
	evictions  prom.Counter
	grown      prom.Counter
	snapshots  prom.Counter
	live       prom.Gauge
}

// Option configures a Collector.
type Option func(*options)

type options struct {
	namespace   string
	subsystem   string
	constLabels prom.Labels
	buckets     []float64
}

// WithNamespace sets the metric namespace. The default is "lurch".
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithSubsystem sets the metric subsystem.
func WithSubsystem(s string) Option {
	return func(o *options) {
		o.subsystem = s
	}
}

// WithConstLabels attaches fixed labels, e.g. the collection name, to every
// metric.
func WithConstLabels(labels map[string]string) Option {
	return func(o *options) {
		o.constLabels = labels
	}
}

// WithBuckets sets the latency histogram buckets in seconds.
func WithBuckets(buckets []float64) Option {
	return func(o *options) {
		o.buckets = buckets
	}
}

// DefaultBuckets spans 100ns to ~1.6ms; the collections are in-memory.
var DefaultBuckets = prom.ExponentialBuckets(1e-7, 4, 8)

// NewCollector creates a Collector. It is not registered anywhere.
func NewCollector(opts ...Option) *Collector {
	o := options{
		namespace: "lurch",
		buckets:   DefaultBuckets,
	}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}

	return &Collector{
		operations: prom.NewCounterVec(prom.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   o.subsystem,
			Name:        "operations_total",
			Help:        "Mutating operations by kind and outcome.",
			ConstLabels: o.constLabels,
		}, []string{"op", "status"}),
		latency: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace:   o.namespace,
			Subsystem:   o.subsystem,
			Name:        "operation_duration_seconds",
			Help:        "Latency of successful mutating operations.",
			ConstLabels: o.constLabels,
			Buckets:     o.buckets,
		}, []string{"op"}),
		lookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   o.subsystem,
			Name:        "lookups_total",
			Help:        "Point lookups by result.",
			ConstLabels: o.constLabels,
		}, []string{"result"}),
		evictions: prom.NewCounter(prom.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   o.subsystem,
			Name:        "evictions_total",
			Help:        "Entries evicted by bounded tables.",
			ConstLabels: o.constLabels,
		}),
		grown: prom.NewCounter(prom.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   o.subsystem,
			Name:        "slab_slots_grown_total",
			Help:        "Slots added by slab growth.",
			ConstLabels: o.constLabels,
		}),
		snapshots: prom.NewCounter(prom.CounterOpts{
			Namespace:   o.namespace,
			Subsystem:   o.subsystem,
			Name:        "snapshot_events_total",
			Help:        "Snapshots taken or closed.",
			ConstLabels: o.constLabels,
		}),
		live: prom.NewGauge(prom.GaugeOpts{
			Namespace:   o.namespace,
			Subsystem:   o.subsystem,
			Name:        "live_snapshots",
			Help:        "Snapshots currently registered.",
			ConstLabels: o.constLabels,
		}),
	}
}

func (c *Collector) record(op string, d time.Duration, err error) {
	if err != nil {
		c.operations.WithLabelValues(op, "error").Inc()
		return
	}
	c.operations.WithLabelValues(op, "success").Inc()
	c.latency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordInsert implements lurch.MetricsCollector.
func (c *Collector) RecordInsert(d time.Duration, err error) { c.record("insert", d, err) }

// RecordUpdate implements lurch.MetricsCollector.
func (c *Collector) RecordUpdate(d time.Duration, err error) { c.record("update", d, err) }

// RecordDelete implements lurch.MetricsCollector.
func (c *Collector) RecordDelete(d time.Duration, err error) { c.record("delete", d, err) }

// RecordLookup implements lurch.MetricsCollector.
func (c *Collector) RecordLookup(hit bool) {
	if hit {
		c.lookups.WithLabelValues("hit").Inc()
	} else {
		c.lookups.WithLabelValues("miss").Inc()
	}
}

// RecordEviction implements lurch.MetricsCollector.
func (c *Collector) RecordEviction() { c.evictions.Inc() }

// RecordGrowth implements lurch.MetricsCollector.
func (c *Collector) RecordGrowth(slots int) { c.grown.Add(float64(slots)) }

// RecordSnapshot implements lurch.MetricsCollector.
func (c *Collector) RecordSnapshot(live int) {
	c.snapshots.Inc()
	c.live.Set(float64(live))
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prom.Desc) {
	c.operations.Describe(ch)
	c.latency.Describe(ch)
	c.lookups.Describe(ch)
	c.evictions.Describe(ch)
	c.grown.Describe(ch)
	c.snapshots.Describe(ch)
	c.live.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	c.operations.Collect(ch)
	c.latency.Collect(ch)
	c.lookups.Collect(ch)
	c.evictions.Collect(ch)
	c.grown.Collect(ch)
	c.snapshots.Collect(ch)
	c.live.Collect(ch)
}
