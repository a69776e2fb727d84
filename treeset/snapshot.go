package treeset

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/hupe1980/lurch"
)

// Snapshot is an immutable view of a Tree at the moment Snapshot was called.
//
// All methods are safe for concurrent use, also while the tree is being
// mutated. Rank operations (IndexOf, At, CountTo, ...) are not offered: the
// subtree sizes they rely on belong to the live tree only.
type Snapshot[T any] struct {
	tree       *Tree[T]
	root       ref
	count      int
	blackdepth int
	gen        int32
	closed     atomic.Bool
}

func (s *Snapshot[T]) view() (view[T], error) {
	if s.closed.Load() || s.tree.disposed.Load() {
		return view[T]{}, lurch.ErrViewDisposed
	}
	return view[T]{t: s.tree, root: s.root, gen: s.gen, snap: true}, nil
}

// Generation returns the tree generation this snapshot froze.
func (s *Snapshot[T]) Generation() int { return int(s.gen) }

// Len returns the number of items in the snapshot.
func (s *Snapshot[T]) Len() int { return s.count }

// Close releases the snapshot. Nodes only it could reach are reused by the
// tree's next mutation (or Tree.Reclaim). Closing twice is a no-op.
func (s *Snapshot[T]) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	t := s.tree
	if t.disposed.Load() {
		return nil
	}
	live, ok := t.reg.remove(s.gen)
	if ok {
		t.metrics.RecordSnapshot(live)
		t.logger.LogSnapshotClosed(context.Background(), int(s.gen), live)
	}
	return nil
}

// Contains reports whether an item equal to item is present.
func (s *Snapshot[T]) Contains(item T) (bool, error) {
	v, err := s.view()
	if err != nil {
		return false, err
	}
	_, ok := v.find(item)
	return ok, nil
}

// Find returns the stored item equal to item.
func (s *Snapshot[T]) Find(item T) (T, bool, error) {
	v, err := s.view()
	if err != nil {
		var zero T
		return zero, false, err
	}
	it, ok := v.find(item)
	return it, ok, nil
}

// FindMin returns the least item.
func (s *Snapshot[T]) FindMin() (T, error) {
	return s.query(func(v view[T]) (T, bool) { return v.extreme(true) })
}

// FindMax returns the greatest item.
func (s *Snapshot[T]) FindMax() (T, error) {
	return s.query(func(v view[T]) (T, bool) { return v.extreme(false) })
}

// Predecessor returns the greatest item strictly less than item.
func (s *Snapshot[T]) Predecessor(item T) (T, error) {
	return s.query(func(v view[T]) (T, bool) { return v.predecessor(item) })
}

// Successor returns the least item strictly greater than item.
func (s *Snapshot[T]) Successor(item T) (T, error) {
	return s.query(func(v view[T]) (T, bool) { return v.successor(item) })
}

// WeakPredecessor returns the greatest item less than or equal to item.
func (s *Snapshot[T]) WeakPredecessor(item T) (T, error) {
	return s.query(func(v view[T]) (T, bool) { return v.weakPredecessor(item) })
}

// WeakSuccessor returns the least item greater than or equal to item.
func (s *Snapshot[T]) WeakSuccessor(item T) (T, error) {
	return s.query(func(v view[T]) (T, bool) { return v.weakSuccessor(item) })
}

func (s *Snapshot[T]) query(fn func(view[T]) (T, bool)) (T, error) {
	v, err := s.view()
	if err != nil {
		var zero T
		return zero, err
	}
	return orNoSuchItem(fn(v))
}

// Cut is Tree.Cut on the snapshot.
func (s *Snapshot[T]) Cut(fn func(T) int) (CutResult[T], error) {
	v, err := s.view()
	if err != nil {
		return CutResult[T]{}, err
	}
	return v.cut(fn), nil
}

// IndexOf is not supported on snapshots.
func (s *Snapshot[T]) IndexOf(T) (int, error) { return 0, s.unsupported() }

// At is not supported on snapshots.
func (s *Snapshot[T]) At(int) (T, error) {
	var zero T
	return zero, s.unsupported()
}

// CountTo is not supported on snapshots.
func (s *Snapshot[T]) CountTo(T) (int, error) { return 0, s.unsupported() }

// CountFrom is not supported on snapshots.
func (s *Snapshot[T]) CountFrom(T) (int, error) { return 0, s.unsupported() }

// CountFromTo is not supported on snapshots.
func (s *Snapshot[T]) CountFromTo(T, T) (int, error) { return 0, s.unsupported() }

// Interval is not supported on snapshots.
func (s *Snapshot[T]) Interval(int, int) (*Interval[T], error) { return nil, s.unsupported() }

func (s *Snapshot[T]) unsupported() error {
	if _, err := s.view(); err != nil {
		return err
	}
	return lurch.ErrUnsupported
}

// All iterates the snapshot in ascending order.
func (s *Snapshot[T]) All() iter.Seq2[T, error] { return s.RangeAll().All() }

// Backward iterates the snapshot in descending order.
func (s *Snapshot[T]) Backward() iter.Seq2[T, error] { return s.RangeAll().Backwards().All() }

// RangeAll returns all items as a range.
func (s *Snapshot[T]) RangeAll() *Range[T] {
	return &Range[T]{tree: s.tree, snap: s}
}

// RangeFrom returns the items >= lo.
func (s *Snapshot[T]) RangeFrom(lo T) *Range[T] {
	return &Range[T]{tree: s.tree, snap: s, lo: lo, hasLo: true}
}

// RangeFromTo returns the items in [lo, hi).
func (s *Snapshot[T]) RangeFromTo(lo, hi T) *Range[T] {
	return &Range[T]{tree: s.tree, snap: s, lo: lo, hasLo: true, hi: hi, hasHi: true}
}

// RangeTo returns the items < hi.
func (s *Snapshot[T]) RangeTo(hi T) *Range[T] {
	return &Range[T]{tree: s.tree, snap: s, hi: hi, hasHi: true}
}
