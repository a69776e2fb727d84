package lurch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	b := &BasicMetricsCollector{}
	b.RecordInsert(10*time.Nanosecond, nil)
	b.RecordInsert(30*time.Nanosecond, errors.New("full"))
	b.RecordUpdate(time.Nanosecond, nil)
	b.RecordDelete(time.Nanosecond, errors.New("gone"))
	b.RecordLookup(true)
	b.RecordLookup(false)
	b.RecordLookup(false)
	b.RecordEviction()
	b.RecordGrowth(128)
	b.RecordGrowth(128)
	b.RecordSnapshot(1)
	b.RecordSnapshot(2)
	b.RecordSnapshot(1)

	assert.Equal(t, MetricsStats{
		InsertCount:    2,
		InsertErrors:   1,
		InsertAvgNanos: 20,
		UpdateCount:    1,
		DeleteCount:    1,
		DeleteErrors:   1,
		LookupHits:     1,
		LookupMisses:   2,
		Evictions:      1,
		GrownSlots:     256,
		SnapshotEvents: 3,
		LiveSnapshots:  1,
	}, b.GetStats())
}

func TestBasicMetricsCollectorConcurrent(t *testing.T) {
	b := &BasicMetricsCollector{}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				b.RecordLookup(true)
				b.RecordEviction()
			}
		}()
	}
	wg.Wait()

	st := b.GetStats()
	assert.Equal(t, int64(8000), st.LookupHits)
	assert.Equal(t, int64(8000), st.Evictions)
	assert.Zero(t, st.InsertAvgNanos)
}

func TestIsNoop(t *testing.T) {
	assert.True(t, IsNoop(nil))
	assert.True(t, IsNoop(NoopMetricsCollector{}))
	assert.False(t, IsNoop(&BasicMetricsCollector{}))
}
