package lurch

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package ships a Prometheus implementation.
type MetricsCollector interface {
	// RecordInsert is called after an operation created a new entry or item.
	RecordInsert(duration time.Duration, err error)

	// RecordUpdate is called after an existing entry or item was replaced.
	RecordUpdate(duration time.Duration, err error)

	// RecordDelete is called after an entry or item was removed by the caller.
	RecordDelete(duration time.Duration, err error)

	// RecordLookup is called after each point lookup.
	RecordLookup(hit bool)

	// RecordEviction is called when a bounded table drops its oldest entry.
	RecordEviction()

	// RecordGrowth is called when a slab appends a page of the given slot count.
	RecordGrowth(slots int)

	// RecordSnapshot is called when a snapshot is taken or closed; live is the
	// number of snapshots still registered afterwards.
	RecordSnapshot(live int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error) {}
func (NoopMetricsCollector) RecordUpdate(time.Duration, error) {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error) {}
func (NoopMetricsCollector) RecordLookup(bool)                 {}
func (NoopMetricsCollector) RecordEviction()                   {}
func (NoopMetricsCollector) RecordGrowth(int)                  {}
func (NoopMetricsCollector) RecordSnapshot(int)                {}

// IsNoop reports whether mc records nothing, letting callers skip timing hot paths.
func IsNoop(mc MetricsCollector) bool {
	if mc == nil {
		return true
	}
	_, ok := mc.(NoopMetricsCollector)
	return ok
}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	UpdateCount      atomic.Int64
	UpdateErrors     atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	LookupHits       atomic.Int64
	LookupMisses     atomic.Int64
	Evictions        atomic.Int64
	GrownSlots       atomic.Int64
	Snapshots        atomic.Int64
	LiveSnapshots    atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpdate(_ time.Duration, err error) {
	b.UpdateCount.Add(1)
	if err != nil {
		b.UpdateErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(hit bool) {
	if hit {
		b.LookupHits.Add(1)
	} else {
		b.LookupMisses.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction() {
	b.Evictions.Add(1)
}

// RecordGrowth implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGrowth(slots int) {
	b.GrownSlots.Add(int64(slots))
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(live int) {
	b.Snapshots.Add(1)
	b.LiveSnapshots.Store(int64(live))
}

// MetricsStats is a point-in-time copy of BasicMetricsCollector.
type MetricsStats struct {
	InsertCount    int64
	InsertErrors   int64
	InsertAvgNanos int64
	UpdateCount    int64
	UpdateErrors   int64
	DeleteCount    int64
	DeleteErrors   int64
	LookupHits     int64
	LookupMisses   int64
	Evictions      int64
	GrownSlots     int64
	SnapshotEvents int64
	LiveSnapshots  int64
}

// GetStats returns a snapshot of the collected counters.
func (b *BasicMetricsCollector) GetStats() MetricsStats {
	s := MetricsStats{
		InsertCount:    b.InsertCount.Load(),
		InsertErrors:   b.InsertErrors.Load(),
		UpdateCount:    b.UpdateCount.Load(),
		UpdateErrors:   b.UpdateErrors.Load(),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteErrors:   b.DeleteErrors.Load(),
		LookupHits:     b.LookupHits.Load(),
		LookupMisses:   b.LookupMisses.Load(),
		Evictions:      b.Evictions.Load(),
		GrownSlots:     b.GrownSlots.Load(),
		SnapshotEvents: b.Snapshots.Load(),
		LiveSnapshots:  b.LiveSnapshots.Load(),
	}
	if s.InsertCount > 0 {
		s.InsertAvgNanos = b.InsertTotalNanos.Load() / s.InsertCount
	}
	return s
}
