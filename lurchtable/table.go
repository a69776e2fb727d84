package lurchtable

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"
	"golang.org/x/time/rate"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/hashing"
	"github.com/hupe1980/lurch/internal/arena"
	"github.com/hupe1980/lurch/internal/orderlist"
	"github.com/hupe1980/lurch/internal/primes"
)

// Unbounded is the limit of a table that never evicts.
const Unbounded = math.MaxInt32

const (
	// freeSlots is the number of versioned free-lists. Slots 1..freeSlots are
	// their permanent anchors.
	freeSlots = 32
	// overAlloc is how far count may trail the allocated slot count before
	// the allocator stops recycling and grows instead.
	overAlloc = 128
	// maxAllocSize caps the page size hint.
	maxAllocSize = 0x3fffffff
	minShift     = 7
	maxShift     = 24
	minBuckets   = 127
)

// Pair is a key and its value.
type Pair[K, V any] struct {
	Key   K
	Value V
}

type entry[K comparable, V any] struct {
	prev, next atomic.Int32 // order list
	link       atomic.Int32 // bucket chain or free-list successor
	hash       atomic.Int32
	key        K
	value      V
}

type freeList struct {
	head atomic.Int32
	tail atomic.Int32
}

type stripe struct {
	sync.Mutex
	_ cpu.CacheLinePad
}

type insertResult uint8

const (
	inserted insertResult = iota + 1
	updated
	exists
	notFound
)

// Table is a concurrent hash map over a slab of entries with per-stripe
// locking and an optional global order.
//
// With an ordering other than None the table doubles as a queue: Peek,
// TryDequeue and Dequeue operate on the oldest entry in that order, and once
// Len exceeds Limit an insert evicts the oldest entry. Eviction is
// best-effort: under concurrent inserts the count may briefly exceed the
// limit.
//
// All methods are safe for concurrent use except Initialize and Close.
type Table[K comparable, V any] struct {
	ordering Ordering
	hasher   hashing.Hasher[K]
	equal    func(a, b K) bool

	shift   uint
	slab    *arena.Slab[entry[K, V]]
	buckets []atomic.Int32
	stripes []stripe
	free    [freeSlots]freeList

	_           cpu.CacheLinePad
	count       atomic.Int32
	_           cpu.CacheLinePad
	allocNext   atomic.Int32
	freeVersion atomic.Int32
	_           cpu.CacheLinePad

	limit    atomic.Int32
	disposed atomic.Bool
	initMu   sync.Mutex

	metrics  lurch.MetricsCollector
	logger   *lurch.Logger
	opts     options
	notifier lurch.Notifier[Pair[K, V]]
	waitLog  rate.Sometimes
}

// New creates a table with the given ordering that evicts its oldest entry
// once more than limit entries are present. Use Unbounded for no limit;
// ordering None requires Unbounded.
//
// The bucket, page and stripe hints default to limit/2, limit/16 and
// limit/256.
func New[K comparable, V any](ordering Ordering, limit int, opts ...Option) (*Table[K, V], error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", lurch.ErrInvalidArgument, limit)
	}
	if limit > Unbounded {
		limit = Unbounded
	}
	if ordering == None && limit < Unbounded {
		return nil, fmt.Errorf("%w: a limited table requires an ordering", lurch.ErrInvalidArgument)
	}
	if ordering > Access {
		return nil, fmt.Errorf("%w: unknown ordering %d", lurch.ErrInvalidArgument, ordering)
	}
	return newTable[K, V](ordering, limit, applyOptions(limit, opts))
}

// NewWithCapacity creates an unbounded table sized for about capacity entries.
func NewWithCapacity[K comparable, V any](ordering Ordering, capacity int, opts ...Option) (*Table[K, V], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity %d", lurch.ErrInvalidArgument, capacity)
	}
	if ordering > Access {
		return nil, fmt.Errorf("%w: unknown ordering %d", lurch.ErrInvalidArgument, ordering)
	}
	return newTable[K, V](ordering, Unbounded, applyOptions(capacity, opts))
}

func newTable[K comparable, V any](ordering Ordering, limit int, o options) (*Table[K, V], error) {
	t := &Table[K, V]{
		ordering: ordering,
		metrics:  o.metricsCollector,
		logger:   o.logger.WithComponent("lurchtable").WithOrdering(ordering.String()).WithLimit(limit),
		opts:     o,
		waitLog:  rate.Sometimes{Interval: time.Second},
	}
	t.limit.Store(int32(limit)) //nolint:gosec // limit <= Unbounded

	switch h := o.hasher.(type) {
	case nil:
		t.hasher = hashing.Maphash[K]()
	case hashing.Hasher[K]:
		t.hasher = h
	case func(K) uint64:
		t.hasher = hashing.HasherFunc[K](h)
	default:
		return nil, fmt.Errorf("%w: hasher %T does not hash %T keys", lurch.ErrInvalidArgument, o.hasher, *new(K))
	}

	switch eq := o.keyEqual.(type) {
	case nil:
		t.equal = func(a, b K) bool { return a == b }
	case func(K, K) bool:
		t.equal = eq
	default:
		return nil, fmt.Errorf("%w: key equality %T does not compare %T keys", lurch.ErrInvalidArgument, o.keyEqual, *new(K))
	}

	allocSize := min(int64(o.allocSize)+overAlloc, maxAllocSize)
	shift := uint(minShift)
	for shift < maxShift && int64(1)<<(shift+1) < allocSize {
		shift++
	}
	t.shift = shift

	slab, err := arena.NewSlab[entry[K, V]](shift,
		arena.WithMemoryAcquirer(o.rc),
		arena.WithGrowHook(t.onGrow),
	)
	if err != nil {
		return nil, err
	}
	t.slab = slab

	t.buckets = make([]atomic.Int32, primes.Select(max(minBuckets, o.hashSize)))
	t.stripes = make([]stripe, primes.Select(o.lockSize))

	if err := t.Initialize(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table[K, V]) onGrow(pages, slotsPerPage int, err error) {
	t.logger.LogGrowth(context.Background(), pages, slotsPerPage, err)
	if err == nil {
		t.metrics.RecordGrowth(slotsPerPage)
	}
}

// Initialize drops every entry and resets all internal structures without
// firing events. It is not safe for concurrent use; Clear is the concurrent
// alternative.
func (t *Table[K, V]) Initialize() error {
	if t.disposed.Load() {
		return lurch.ErrDisposed
	}

	t.initMu.Lock()
	defer t.initMu.Unlock()

	t.freeVersion.Store(0)
	t.allocNext.Store(0)
	t.count.Store(0)

	for i := range t.buckets {
		t.buckets[i].Store(0)
	}
	t.slab.Reset()
	orderlist.Reset(t.links())

	for slot := range t.free {
		idx, ok := t.slab.TryBump()
		if !ok || idx != int32(slot+1) { //nolint:gosec // slot < freeSlots
			t.corrupt("free-list anchor %d landed on slot %d", slot, idx)
		}
		t.free[slot].head.Store(idx)
		t.free[slot].tail.Store(idx)
	}

	if t.count.Load() != 0 || t.slab.Used() != freeSlots+1 {
		t.corrupt("initialize left count=%d used=%d", t.count.Load(), t.slab.Used())
	}
	return nil
}

// Close releases the slab. Every later call returns lurch.ErrDisposed. Close
// waits for operations holding a stripe lock but must not race with Peek,
// TryDequeue or iteration that has not yet acquired one.
func (t *Table[K, V]) Close() error {
	if t.disposed.Swap(true) {
		return nil
	}

	t.initMu.Lock()
	defer t.initMu.Unlock()

	for i := range t.stripes {
		t.stripes[i].Lock()
	}
	t.count.Store(0)
	t.slab.Free()
	for i := range t.stripes {
		t.stripes[i].Unlock()
	}
	return nil
}

// Len returns the number of entries.
func (t *Table[K, V]) Len() int {
	return int(t.count.Load())
}

// Limit returns the eviction threshold.
func (t *Table[K, V]) Limit() int {
	return int(t.limit.Load())
}

// SetLimit changes the eviction threshold. Lowering it does not evict
// immediately; the next inserts each evict one entry while Len exceeds it.
func (t *Table[K, V]) SetLimit(limit int) error {
	if t.disposed.Load() {
		return lurch.ErrDisposed
	}
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", lurch.ErrInvalidArgument, limit)
	}
	if limit > Unbounded {
		limit = Unbounded
	}
	if t.ordering == None && limit < Unbounded {
		return fmt.Errorf("%w: a limited table requires an ordering", lurch.ErrInvalidArgument)
	}
	t.limit.Store(int32(limit)) //nolint:gosec // clamped above
	return nil
}

// Ordering returns the ordering the table was created with.
func (t *Table[K, V]) Ordering() Ordering {
	return t.ordering
}

// Subscribe registers handler for entry events and returns a function that
// removes it. With no kinds given, every kind is delivered.
//
// Handlers run synchronously while the entry's stripe lock is held; they must
// not call back into the table.
func (t *Table[K, V]) Subscribe(handler lurch.Handler[Pair[K, V]], kinds ...lurch.EventKind) (unsubscribe func()) {
	return t.notifier.Subscribe(handler, kinds...)
}

func (t *Table[K, V]) at(idx int32) *entry[K, V] {
	return t.slab.At(idx)
}

func (t *Table[K, V]) hashOf(key K) int32 {
	return hashing.Fold31(t.hasher.Hash(key))
}

func (t *Table[K, V]) bucketOf(hash int32) int {
	return int(hash) % len(t.buckets)
}

func (t *Table[K, V]) stripeOf(bucket int) *stripe {
	return &t.stripes[bucket%len(t.stripes)]
}

// lock acquires the stripe guarding bucket and reports whether the table is
// still usable.
func (t *Table[K, V]) lock(bucket int) (*stripe, error) {
	s := t.stripeOf(bucket)
	s.Lock()
	if t.disposed.Load() {
		s.Unlock()
		return nil, lurch.ErrDisposed
	}
	return s, nil
}

func (t *Table[K, V]) corrupt(format string, args ...any) {
	err := lurch.Corruption(format, args...)
	t.logger.LogCorruption(context.Background(), err)
	panic(err)
}

func (t *Table[K, V]) must(err error) {
	if err != nil {
		t.logger.LogCorruption(context.Background(), err)
		panic(err)
	}
}

type orderLinks[K comparable, V any] struct {
	slab *arena.Slab[entry[K, V]]
}

func (l orderLinks[K, V]) Prev(idx int32) *atomic.Int32 { return &l.slab.At(idx).prev }
func (l orderLinks[K, V]) Next(idx int32) *atomic.Int32 { return &l.slab.At(idx).next }

func (t *Table[K, V]) links() orderLinks[K, V] {
	return orderLinks[K, V]{slab: t.slab}
}

func (t *Table[K, V]) link(idx int32) {
	t.must(orderlist.Link(t.links(), idx))
}

func (t *Table[K, V]) unlink(idx int32) {
	t.must(orderlist.Unlink(t.links(), idx))
}

func (t *Table[K, V]) relink(idx int32) {
	t.unlink(idx)
	t.link(idx)
}
