package prometheus

import (
	"errors"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lurch/lurchtable"
	"github.com/hupe1980/lurch/treeset"
)

// gather returns the value of every sample, keyed by metric name plus the
// values of its labels, e.g. "lurch_lookups_total{hit}".
func gather(t *testing.T, reg *prom.Registry) map[string]float64 {
	t.Helper()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			var labels string
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "collection" {
					continue
				}
				if labels != "" {
					labels += ","
				}
				labels += lp.GetValue()
			}
			if labels != "" {
				key += "{" + labels + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestCollectorRecords(t *testing.T) {
	reg := prom.NewRegistry()
	c := NewCollector()
	require.NoError(t, reg.Register(c))

	c.RecordInsert(time.Microsecond, nil)
	c.RecordInsert(time.Microsecond, nil)
	c.RecordInsert(0, errors.New("full"))
	c.RecordUpdate(time.Microsecond, nil)
	c.RecordDelete(time.Microsecond, nil)
	c.RecordLookup(true)
	c.RecordLookup(false)
	c.RecordLookup(true)
	c.RecordEviction()
	c.RecordGrowth(64)
	c.RecordSnapshot(1)
	c.RecordSnapshot(0)

	got := gather(t, reg)
	assert.Equal(t, 2.0, got["lurch_operations_total{insert,success}"])
	assert.Equal(t, 1.0, got["lurch_operations_total{insert,error}"])
	assert.Equal(t, 1.0, got["lurch_operations_total{update,success}"])
	assert.Equal(t, 1.0, got["lurch_operations_total{delete,success}"])
	assert.Equal(t, 2.0, got["lurch_operation_duration_seconds{insert}"], "errors are not timed")
	assert.Equal(t, 2.0, got["lurch_lookups_total{hit}"])
	assert.Equal(t, 1.0, got["lurch_lookups_total{miss}"])
	assert.Equal(t, 1.0, got["lurch_evictions_total"])
	assert.Equal(t, 64.0, got["lurch_slab_slots_grown_total"])
	assert.Equal(t, 2.0, got["lurch_snapshot_events_total"])
	assert.Equal(t, 0.0, got["lurch_live_snapshots"])
}

func TestCollectorOptions(t *testing.T) {
	reg := prom.NewRegistry()
	c := NewCollector(
		WithNamespace("app"),
		WithSubsystem("sessions"),
		WithConstLabels(map[string]string{"collection": "users"}),
		WithBuckets([]float64{0.001, 0.01}),
	)
	require.NoError(t, reg.Register(c))
	c.RecordEviction()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 4, "vectors without children are not exported")

	names := make([]string, 0, len(mfs))
	for _, mf := range mfs {
		names = append(names, mf.GetName())
		for _, m := range mf.GetMetric() {
			require.Len(t, m.GetLabel(), 1)
			assert.Equal(t, "users", m.GetLabel()[0].GetValue())
		}
	}
	assert.Contains(t, names, "app_sessions_evictions_total")

	// A second collector with the same names clashes.
	assert.Error(t, reg.Register(NewCollector(WithNamespace("app"), WithSubsystem("sessions"),
		WithConstLabels(map[string]string{"collection": "users"}))))
}

func TestCollectorWithCollections(t *testing.T) {
	reg := prom.NewRegistry()
	c := NewCollector(WithConstLabels(map[string]string{"collection": "shared"}))
	require.NoError(t, reg.Register(c))

	tbl, err := lurchtable.New[int, string](lurchtable.Insertion, 2, lurchtable.WithMetricsCollector(c))
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.Set(1, "a"))
	require.NoError(t, tbl.Set(2, "b"))
	require.NoError(t, tbl.Set(3, "c"))
	_, _, err = tbl.TryGet(3)
	require.NoError(t, err)

	s := treeset.NewOrdered[int](treeset.WithMetricsCollector(c))
	_, err = s.Add(1)
	require.NoError(t, err)
	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.NoError(t, snap.Close())

	got := gather(t, reg)
	assert.Equal(t, 4.0, got["lurch_operations_total{insert,success}"])
	assert.Equal(t, 1.0, got["lurch_evictions_total"])
	assert.Equal(t, 1.0, got["lurch_lookups_total{hit}"])
	assert.Equal(t, 2.0, got["lurch_snapshot_events_total"])
	assert.Equal(t, 0.0, got["lurch_live_snapshots"])
	assert.Positive(t, got["lurch_slab_slots_grown_total"])
}
