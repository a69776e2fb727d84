// Package cache provides a bounded LRU cache on top of an access-ordered
// lurchtable.Table.
//
// Every hit makes an entry the newest; adding past the capacity evicts the
// least recently used one. With a Sizer and a resource.Controller the cache
// also charges value bytes against a memory budget shared with other caches
// and collections, and refuses values the budget has no room for.
//
// Bytes wraps a Cache of byte slices that stores values LZ4 or zstd
// compressed, so the budget is charged the compressed size.
package cache

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/lurchtable"
	"github.com/hupe1980/lurch/resource"
)

// invalidateChunk is how many entries one Invalidate worker tests per task.
const invalidateChunk = 256

// Cache is a concurrent LRU cache. All methods are safe for concurrent use
// except Close.
type Cache[K comparable, V any] struct {
	table    *lurchtable.Table[K, V]
	capacity int
	sizer    Sizer[V]
	rc       *resource.Controller
	logger   *lurch.Logger

	unsubscribe func()
	evictions   *evictionCounter

	bytes  atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64
	loads  atomic.Int64
}

// evictionCounter counts evictions on their way to the configured collector.
type evictionCounter struct {
	lurch.MetricsCollector
	n atomic.Int64
}

func (e *evictionCounter) RecordEviction() {
	e.n.Add(1)
	e.MetricsCollector.RecordEviction()
}

// New creates a cache holding at most capacity entries.
func New[K comparable, V any](capacity int, opts ...Option) (*Cache[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", lurch.ErrInvalidArgument, capacity)
	}
	o := applyOptions(opts)

	c := &Cache[K, V]{
		capacity:  capacity,
		rc:        o.rc,
		logger:    o.logger.WithComponent("cache"),
		evictions: &evictionCounter{MetricsCollector: o.metricsCollector},
	}

	switch s := o.sizer.(type) {
	case nil:
	case Sizer[V]:
		c.sizer = s
	case func(V) int64:
		c.sizer = s
	default:
		return nil, fmt.Errorf("%w: sizer %T does not size %T values", lurch.ErrInvalidArgument, o.sizer, *new(V))
	}

	tableOpts := append([]lurchtable.Option{
		lurchtable.WithLogger(o.logger),
		lurchtable.WithMetricsCollector(c.evictions),
		lurchtable.WithResourceController(o.rc),
	}, o.tableOpts...)

	table, err := lurchtable.New[K, V](lurchtable.Access, capacity, tableOpts...)
	if err != nil {
		return nil, err
	}
	c.table = table

	if c.sizer != nil {
		c.unsubscribe = table.Subscribe(c.onEvent, lurch.Updated, lurch.Removed)
	}
	return c, nil
}

// onEvent returns the bytes of values that left the cache. It runs under the
// table's stripe lock.
func (c *Cache[K, V]) onEvent(e lurch.Event[lurchtable.Pair[K, V]]) {
	switch e.Kind {
	case lurch.Updated:
		c.release(c.sizer(e.Previous.Value))
	case lurch.Removed:
		c.release(c.sizer(e.Item.Value))
	}
}

// charge reserves the bytes of value, or fails if the budget is exhausted.
func (c *Cache[K, V]) charge(ctx context.Context, value V) (int64, error) {
	if c.sizer == nil {
		return 0, nil
	}
	size := c.sizer(value)
	if size <= 0 {
		return 0, nil
	}
	if err := c.rc.TryAcquireMemory(size); err != nil {
		c.logger.LogRejected(ctx, size, err)
		return 0, err
	}
	c.bytes.Add(size)
	return size, nil
}

func (c *Cache[K, V]) release(size int64) {
	if size <= 0 {
		return
	}
	c.bytes.Add(-size)
	c.rc.ReleaseMemory(size)
}

// Get returns the cached value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool, error) {
	v, ok, err := c.table.TryGet(key)
	if err != nil {
		return v, false, err
	}
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok, nil
}

// Set caches value under key, evicting the least recently used entry if the
// cache is full. With a Sizer it fails with resource.ErrMemoryLimitExceeded
// when the budget has no room for value; the cache is left unchanged.
func (c *Cache[K, V]) Set(key K, value V) error {
	size, err := c.charge(context.Background(), value)
	if err != nil {
		return err
	}
	if err := c.table.Set(key, value); err != nil {
		c.release(size)
		return err
	}
	return nil
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// caching its result. Concurrent misses on the same key may each run load;
// the first value cached wins and is returned to all of them.
//
// A loaded value that does not fit the memory budget is returned but not
// cached. Errors from load are returned as is and nothing is cached.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, load Loader[K, V]) (V, error) {
	v, ok, err := c.Get(key)
	if err != nil || ok {
		return v, err
	}

	start := time.Now()
	v, err = load(ctx, key)
	c.loads.Add(1)
	c.logger.LogLoad(ctx, time.Since(start), err)
	if err != nil {
		var zero V
		return zero, err
	}

	size, err := c.charge(ctx, v)
	if err != nil {
		return v, nil
	}
	added, err := c.table.TryAdd(key, v)
	if err != nil {
		c.release(size)
		var zero V
		return zero, err
	}
	if !added {
		c.release(size)
		if existing, ok, err := c.table.TryGet(key); err == nil && ok {
			return existing, nil
		}
	}
	return v, nil
}

// Remove drops key and returns the value it held.
func (c *Cache[K, V]) Remove(key K) (V, bool, error) {
	return c.table.Remove(key)
}

// Invalidate removes every entry for which pred returns true and reports how
// many it removed. Entries are tested in parallel, bounded by the resource
// controller's background workers (GOMAXPROCS without one), so pred must be
// safe for concurrent use. An entry replaced concurrently is tested again
// against its new value before removal.
func (c *Cache[K, V]) Invalidate(ctx context.Context, pred func(key K, value V) bool) (int, error) {
	pairs, err := c.table.Pairs()
	if err != nil {
		return 0, err
	}

	workers := runtime.GOMAXPROCS(0)
	if c.rc != nil {
		workers = c.rc.BackgroundWorkers()
	}

	var removed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for chunk := range slices.Chunk(pairs, invalidateChunk) {
		g.Go(func() error {
			for _, p := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				if !pred(p.Key, p.Value) {
					continue
				}
				ok, err := c.table.RemoveIf(p.Key, pred)
				if err != nil {
					return err
				}
				if ok {
					removed.Add(1)
				}
			}
			return nil
		})
	}
	err = g.Wait()

	n := int(removed.Load())
	c.logger.LogInvalidate(ctx, len(pairs), n)
	return n, err
}

// Oldest returns the least recently used entry, the next eviction victim,
// without touching it.
func (c *Cache[K, V]) Oldest() (lurchtable.Pair[K, V], bool, error) {
	return c.table.Peek()
}

// All iterates the cached entries without marking them used.
func (c *Cache[K, V]) All() iter.Seq2[K, V] {
	return c.table.All()
}

// Clear removes every entry.
func (c *Cache[K, V]) Clear() error {
	return c.table.Clear()
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	return c.table.Len()
}

// Capacity returns the maximum number of entries.
func (c *Cache[K, V]) Capacity() int {
	return c.capacity
}

// Stats returns current statistics.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Len:       c.table.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.n.Load(),
		Loads:     c.loads.Load(),
		Bytes:     c.bytes.Load(),
	}
}

// Close releases the table and returns every accounted byte to the resource
// controller. It must not race with other calls.
func (c *Cache[K, V]) Close() error {
	if err := c.table.Close(); err != nil {
		return err
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if n := c.bytes.Swap(0); n > 0 {
		c.rc.ReleaseMemory(n)
	}
	return nil
}
