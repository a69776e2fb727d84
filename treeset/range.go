package treeset

import (
	"iter"

	"github.com/hupe1980/lurch"
)

// Range is a lazy, bidirectional view of the items between optional bounds:
// lo is inclusive, hi exclusive.
//
// A range over the live tree is invalidated by any mutation of the tree:
// iterating it afterwards yields lurch.ErrConcurrentModification once and
// stops. Ranges over a snapshot never go stale.
type Range[T any] struct {
	tree *Tree[T]
	snap *Snapshot[T] // nil for the live tree

	lo, hi       T
	hasLo, hasHi bool
	backwards    bool

	stamp uint64
}

func (t *Tree[T]) newRange(lo T, hasLo bool, hi T, hasHi bool) *Range[T] {
	return &Range[T]{tree: t, lo: lo, hasLo: hasLo, hi: hi, hasHi: hasHi, stamp: t.stamp}
}

// RangeAll returns all items as a range.
func (t *Tree[T]) RangeAll() *Range[T] {
	var zero T
	return t.newRange(zero, false, zero, false)
}

// RangeFrom returns the items >= lo.
func (t *Tree[T]) RangeFrom(lo T) *Range[T] {
	var zero T
	return t.newRange(lo, true, zero, false)
}

// RangeFromTo returns the items in [lo, hi).
func (t *Tree[T]) RangeFromTo(lo, hi T) *Range[T] {
	return t.newRange(lo, true, hi, true)
}

// RangeTo returns the items < hi.
func (t *Tree[T]) RangeTo(hi T) *Range[T] {
	var zero T
	return t.newRange(zero, false, hi, true)
}

// All iterates the tree in ascending order.
//
//	for item, err := range s.All() {
//	    if err != nil {
//	        return err // the tree changed underneath
//	    }
//	    fmt.Println(item)
//	}
func (t *Tree[T]) All() iter.Seq2[T, error] { return t.RangeAll().All() }

// Backward iterates the tree in descending order.
func (t *Tree[T]) Backward() iter.Seq2[T, error] { return t.RangeAll().Backwards().All() }

// Backwards returns the same range iterated in the opposite direction.
func (r *Range[T]) Backwards() *Range[T] {
	b := *r
	b.backwards = !r.backwards
	return &b
}

// IsBackwards reports whether the range iterates in descending order.
func (r *Range[T]) IsBackwards() bool { return r.backwards }

// Count returns the number of items currently between the range's bounds.
// A live range answers from subtree sizes, even after the tree has changed; a
// snapshot range counts by walking, and reports 0 once the snapshot is closed.
func (r *Range[T]) Count() int {
	if r.snap == nil {
		t := r.tree
		if t.disposed.Load() {
			return 0
		}
		switch {
		case r.hasLo && r.hasHi:
			return t.CountFromTo(r.lo, r.hi)
		case r.hasLo:
			return t.CountFrom(r.lo)
		case r.hasHi:
			return t.CountTo(r.hi)
		default:
			return t.count
		}
	}
	n := 0
	for _, err := range r.All() {
		if err != nil {
			return 0
		}
		n++
	}
	return n
}

// check reports whether the range may still be read.
func (r *Range[T]) check() error {
	if r.snap != nil {
		_, err := r.snap.view()
		return err
	}
	if r.tree.disposed.Load() {
		return lurch.ErrDisposed
	}
	if r.stamp != r.tree.stamp {
		return lurch.ErrConcurrentModification
	}
	return nil
}

func (r *Range[T]) view() (view[T], error) {
	if err := r.check(); err != nil {
		return view[T]{}, err
	}
	if r.snap != nil {
		return r.snap.view()
	}
	return r.tree.live(), nil
}

// All iterates the range. Iteration keeps its own stack of ancestors, so
// nothing is allocated per item.
func (r *Range[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		v, err := r.view()
		if err != nil {
			yield(zero, err)
			return
		}

		compare := r.tree.compare
		var path [maxDepth]ref
		level := 0

		push := func(n ref) {
			path[level] = n
			level++
		}

		if !r.backwards {
			// Stack every node >= lo on the search path for lo.
			for n := v.root; n != 0; {
				if r.hasLo {
					c := compare(v.item(n), r.lo)
					if c < 0 {
						n = v.right(n)
						continue
					}
					push(n)
					if c == 0 {
						break
					}
				} else {
					push(n)
				}
				n = v.left(n)
			}

			for level > 0 {
				level--
				n := path[level]
				item := v.item(n)
				if r.hasHi && compare(item, r.hi) >= 0 {
					return
				}
				if !yield(item, nil) {
					return
				}
				if err := r.check(); err != nil {
					yield(zero, err)
					return
				}
				for c := v.right(n); c != 0; c = v.left(c) {
					push(c)
				}
			}
			return
		}

		// Stack every node < hi on the search path for hi.
		for n := v.root; n != 0; {
			if r.hasHi && compare(v.item(n), r.hi) >= 0 {
				n = v.left(n)
				continue
			}
			push(n)
			n = v.right(n)
		}

		for level > 0 {
			level--
			n := path[level]
			item := v.item(n)
			if r.hasLo && compare(item, r.lo) < 0 {
				return
			}
			if !yield(item, nil) {
				return
			}
			if err := r.check(); err != nil {
				yield(zero, err)
				return
			}
			for c := v.left(n); c != 0; c = v.right(c) {
				push(c)
			}
		}
	}
}

// Interval is a view of count consecutive items by rank. Like a live Range it
// is invalidated by mutations.
type Interval[T any] struct {
	tree      *Tree[T]
	start     int
	length    int
	backwards bool
	stamp     uint64
}

// Interval returns the items at ranks [start, start+count).
func (t *Tree[T]) Interval(start, count int) (*Interval[T], error) {
	if start < 0 || count < 0 || start+count > t.count {
		return nil, &lurch.IndexOutOfRangeError{Index: start + count, Count: t.count}
	}
	return &Interval[T]{tree: t, start: start, length: count, stamp: t.stamp}, nil
}

// Count returns the number of items in the interval.
func (iv *Interval[T]) Count() int { return iv.length }

// Backwards returns the same interval iterated from the highest rank down.
func (iv *Interval[T]) Backwards() *Interval[T] {
	b := *iv
	b.backwards = !iv.backwards
	return &b
}

func (iv *Interval[T]) check() error {
	if iv.tree.disposed.Load() {
		return lurch.ErrDisposed
	}
	if iv.stamp != iv.tree.stamp {
		return lurch.ErrConcurrentModification
	}
	return nil
}

// All iterates the interval.
func (iv *Interval[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if err := iv.check(); err != nil {
			yield(zero, err)
			return
		}
		if iv.length == 0 {
			return
		}

		t := iv.tree
		var path [maxDepth]ref
		level := 0
		cursor := t.root

		// Descend to the first rank, stacking the ancestors still ahead of it.
		i := iv.start
		if iv.backwards {
			i = iv.start + iv.length - 1
		}
		for {
			n := t.node(cursor)
			j := int(t.sizeOf(n.left.Load()))
			if i == j {
				break
			}
			if i > j {
				i -= j + 1
				if iv.backwards {
					path[level] = cursor
					level++
				}
				cursor = n.right.Load()
			} else {
				if !iv.backwards {
					path[level] = cursor
					level++
				}
				cursor = n.left.Load()
			}
		}

		for togo := iv.length; togo > 0; togo-- {
			if !yield(t.node(cursor).item, nil) {
				return
			}
			if togo == 1 {
				return
			}
			if err := iv.check(); err != nil {
				yield(zero, err)
				return
			}

			next := t.node(cursor).child(iv.backwards)
			if next != 0 {
				cursor = next
				for c := t.node(cursor).child(!iv.backwards); c != 0; c = t.node(cursor).child(!iv.backwards) {
					path[level] = cursor
					level++
					cursor = c
				}
			} else {
				level--
				cursor = path[level]
			}
		}
	}
}
