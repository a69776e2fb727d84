package treeset

import (
	"cmp"
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/internal/arena"
)

// Tree is a sorted set kept as a red-black tree with subtree sizes, stored in
// a slab of nodes.
//
// A Tree has a single mutator: its methods must not be called concurrently
// with each other. Snapshots taken with Snapshot are immutable and may be read
// from any number of goroutines while the tree keeps changing.
type Tree[T any] struct {
	compare func(a, b T) int

	slab    *arena.Slab[node[T]]
	free    []ref
	retired []retiredNode

	root       ref
	count      int
	blackdepth int

	// generation is stamped on every node created or copied; it grows by
	// one per snapshot. maxsnap is the generation of the newest open
	// snapshot (or -1), read at the start of every mutation.
	generation int32
	maxsnap    int32
	stamp      uint64

	// Descent stacks for insert and delete: path[i] is an ancestor and
	// dirs[i] is true if the descent went left from it.
	path [maxDepth]ref
	dirs [maxDepth]bool

	reg      registry
	disposed atomic.Bool

	metrics  lurch.MetricsCollector
	logger   *lurch.Logger
	notifier lurch.Notifier[T]
}

// New creates an empty tree ordered by compare, which must be a strict weak
// ordering returning a negative number, zero or a positive number.
func New[T any](compare func(a, b T) int, opts ...Option) (*Tree[T], error) {
	if compare == nil {
		return nil, fmt.Errorf("%w: nil comparer", lurch.ErrInvalidArgument)
	}
	o := applyOptions(opts)

	t := &Tree[T]{
		compare: compare,
		maxsnap: -1,
		metrics: o.metricsCollector,
		logger:  o.logger.WithComponent("treeset"),
	}
	slab, err := arena.NewSlab[node[T]](o.pageShift,
		arena.WithMemoryAcquirer(o.rc),
		arena.WithGrowHook(t.onGrow),
	)
	if err != nil {
		return nil, err
	}
	t.slab = slab
	return t, nil
}

// NewOrdered creates an empty tree ordered by cmp.Compare.
//
//	s := treeset.NewOrdered[int]()
//	s.Add(3)
//	s.Add(1)
//	min, _ := s.FindMin() // 1
func NewOrdered[T cmp.Ordered](opts ...Option) *Tree[T] {
	t, err := New(cmp.Compare[T], opts...)
	if err != nil {
		// Only a first page over the memory budget gets here.
		panic(err)
	}
	return t
}

func (t *Tree[T]) onGrow(pages, slotsPerPage int, err error) {
	t.logger.LogGrowth(context.Background(), pages, slotsPerPage, err)
	if err == nil {
		t.metrics.RecordGrowth(slotsPerPage)
	}
}

// Len returns the number of items.
func (t *Tree[T]) Len() int { return t.count }

// Compare exposes the tree's ordering.
func (t *Tree[T]) Compare(a, b T) int { return t.compare(a, b) }

// Subscribe registers handler for the given event kinds (all if none) and
// returns a function that removes it. Handlers run on the mutating goroutine.
func (t *Tree[T]) Subscribe(handler lurch.Handler[T], kinds ...lurch.EventKind) func() {
	return t.notifier.Subscribe(handler, kinds...)
}

// begin runs before every mutation: it rejects disposed trees, frees what
// closed snapshots released, samples maxsnap and invalidates live iterators.
func (t *Tree[T]) begin() error {
	if t.disposed.Load() {
		return lurch.ErrDisposed
	}
	if t.reg.dirty.Load() {
		t.sweep()
	}
	t.maxsnap = t.reg.newest()
	t.stamp++
	return nil
}

// sweep frees retired nodes no open snapshot can reach and returns how many.
func (t *Tree[T]) sweep() int {
	live := t.reg.live()
	kept := t.retired[:0]
	freed := 0
	for _, r := range t.retired {
		if observed(live, r.gen, r.hi) {
			kept = append(kept, r)
			continue
		}
		t.release(r.ref)
		freed++
	}
	clear(t.retired[len(kept):])
	t.retired = kept

	if freed > 0 {
		t.logger.LogReclaim(context.Background(), freed, len(kept))
	}
	return freed
}

// Reclaim frees retired nodes left behind by closed snapshots now instead of
// at the next mutation. It returns the number of nodes freed.
func (t *Tree[T]) Reclaim() int {
	if t.disposed.Load() {
		return 0
	}
	return t.sweep()
}

// Snapshot returns a read-only view of the current contents. It costs O(1):
// later mutations copy the nodes they touch instead of changing them.
//
// The snapshot must be closed to let the tree reuse the nodes only it
// still reaches.
func (t *Tree[T]) Snapshot() (*Snapshot[T], error) {
	if t.disposed.Load() {
		return nil, lurch.ErrDisposed
	}
	if t.generation >= maxGeneration {
		return nil, fmt.Errorf("%w: snapshot generations exhausted", lurch.ErrUnsupported)
	}

	s := &Snapshot[T]{
		tree:       t,
		root:       t.root,
		count:      t.count,
		blackdepth: t.blackdepth,
		gen:        t.generation,
	}
	live := t.reg.add(s.gen, s.root)
	t.generation++

	t.metrics.RecordSnapshot(live)
	t.logger.LogSnapshot(context.Background(), int(s.gen), live)
	return s, nil
}

// Close clears the tree, disposes every open snapshot and releases the
// slab. It must not run concurrently with snapshot readers.
func (t *Tree[T]) Close() error {
	if t.disposed.Swap(true) {
		return nil
	}
	n := t.count
	t.reg.reset()
	t.slab.Free()
	t.root, t.count, t.blackdepth = 0, 0, 0
	t.free, t.retired = nil, nil
	t.stamp++

	if n > 0 && t.notifier.Active() {
		t.notifier.Emit(lurch.Event[T]{Kind: lurch.Cleared, Count: n})
	}
	return nil
}

// Stats describes the tree and its node storage.
type Stats struct {
	Len           int
	BlackDepth    int
	Generation    int
	Snapshots     int
	Retired       int // nodes kept for open snapshots
	FreeNodes     int
	Pages         int
	SlotsPerPage  int
	Allocated     int
	Used          int
	BytesReserved int64
	Grows         uint64
}

// Stats returns current statistics.
func (t *Tree[T]) Stats() Stats {
	ss := t.slab.Stats()
	return Stats{
		Len:           t.count,
		BlackDepth:    t.blackdepth,
		Generation:    int(t.generation),
		Snapshots:     t.reg.len(),
		Retired:       len(t.retired),
		FreeNodes:     len(t.free),
		Pages:         ss.Pages,
		SlotsPerPage:  ss.SlotsPerPage,
		Allocated:     ss.Allocated,
		Used:          ss.Used,
		BytesReserved: ss.BytesReserved,
		Grows:         ss.Grows,
	}
}

func (t *Tree[T]) emit(kind lurch.EventKind, item, previous T) {
	if t.notifier.Active() {
		t.notifier.Emit(lurch.Event[T]{Kind: kind, Item: item, Previous: previous, Count: 1})
	}
}
