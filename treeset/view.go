package treeset

import (
	"github.com/hupe1980/lurch"
)

// view reads one version of the tree: the live one, or the one a snapshot of
// generation gen froze.
type view[T any] struct {
	t    *Tree[T]
	root ref
	gen  int32
	snap bool
}

func (t *Tree[T]) live() view[T] {
	return view[T]{t: t, root: t.root}
}

// child resolves a child ref as of the view's generation. The child is loaded
// before the extra word; see setChild.
func (v view[T]) child(r ref, left bool) ref {
	n := v.t.node(r)
	c := n.child(left)
	if v.snap {
		e := n.extra.Load()
		if extraLastgen(e) >= v.gen && extraLeft(e) == left {
			return extraRef(e)
		}
	}
	return c
}

func (v view[T]) left(r ref) ref  { return v.child(r, true) }
func (v view[T]) right(r ref) ref { return v.child(r, false) }
func (v view[T]) item(r ref) T    { return v.t.node(r).item }

func (v view[T]) find(item T) (T, bool) {
	for r := v.root; r != 0; {
		it := v.item(r)
		comp := v.t.compare(it, item)
		if comp == 0 {
			return it, true
		}
		r = v.child(r, comp > 0)
	}
	var zero T
	return zero, false
}

// extreme returns the least (or greatest) item.
func (v view[T]) extreme(least bool) (T, bool) {
	var zero T
	if v.root == 0 {
		return zero, false
	}
	r := v.root
	for next := v.child(r, least); next != 0; next = v.child(r, least) {
		r = next
	}
	return v.item(r), true
}

// predecessor returns the greatest item < item.
func (v view[T]) predecessor(item T) (T, bool) {
	var best ref
	for r := v.root; r != 0; {
		comp := v.t.compare(v.item(r), item)
		switch {
		case comp < 0:
			best = r
			r = v.right(r)
		case comp == 0:
			for r = v.left(r); r != 0; r = v.right(r) {
				best = r
			}
		default:
			r = v.left(r)
		}
	}
	return v.result(best)
}

// successor returns the least item > item.
func (v view[T]) successor(item T) (T, bool) {
	var best ref
	for r := v.root; r != 0; {
		comp := v.t.compare(v.item(r), item)
		switch {
		case comp > 0:
			best = r
			r = v.left(r)
		case comp == 0:
			for r = v.right(r); r != 0; r = v.left(r) {
				best = r
			}
		default:
			r = v.right(r)
		}
	}
	return v.result(best)
}

// weakPredecessor returns the greatest item <= item.
func (v view[T]) weakPredecessor(item T) (T, bool) {
	var best ref
	for r := v.root; r != 0; {
		comp := v.t.compare(v.item(r), item)
		switch {
		case comp < 0:
			best = r
			r = v.right(r)
		case comp == 0:
			return v.item(r), true
		default:
			r = v.left(r)
		}
	}
	return v.result(best)
}

// weakSuccessor returns the least item >= item.
func (v view[T]) weakSuccessor(item T) (T, bool) {
	var best ref
	for r := v.root; r != 0; {
		comp := v.t.compare(v.item(r), item)
		switch {
		case comp == 0:
			return v.item(r), true
		case comp > 0:
			best = r
			r = v.left(r)
		default:
			r = v.right(r)
		}
	}
	return v.result(best)
}

func (v view[T]) result(r ref) (T, bool) {
	if r == 0 {
		var zero T
		return zero, false
	}
	return v.item(r), true
}

// CutResult is the outcome of a Cut.
type CutResult[T any] struct {
	Low     T // greatest item below the cut, if HasLow
	HasLow  bool
	High    T // least item above the cut, if HasHigh
	HasHigh bool
	Found   bool // some item lies on the cut
}

// cut searches for the boundary of a monotone cut function: fn returns a
// negative number for items below the cut, zero on it and a positive number
// above it.
func (v view[T]) cut(fn func(T) int) CutResult[T] {
	var lbest, rbest ref
	found := false

	for r := v.root; r != 0; {
		comp := fn(v.item(r))
		if comp < 0 {
			lbest = r
			r = v.right(r)
			continue
		}
		if comp > 0 {
			rbest = r
			r = v.left(r)
			continue
		}

		found = true

		tmp := v.left(r)
		for tmp != 0 && fn(v.item(tmp)) == 0 {
			tmp = v.left(tmp)
		}
		if tmp != 0 {
			lbest = tmp
			for tmp = v.right(tmp); tmp != 0; {
				if fn(v.item(tmp)) < 0 {
					lbest = tmp
					tmp = v.right(tmp)
				} else {
					tmp = v.left(tmp)
				}
			}
		}

		tmp = v.right(r)
		for tmp != 0 && fn(v.item(tmp)) == 0 {
			tmp = v.right(tmp)
		}
		if tmp != 0 {
			rbest = tmp
			for tmp = v.left(tmp); tmp != 0; {
				if fn(v.item(tmp)) > 0 {
					rbest = tmp
					tmp = v.left(tmp)
				} else {
					tmp = v.right(tmp)
				}
			}
		}
		break
	}

	var res CutResult[T]
	res.Found = found
	res.Low, res.HasLow = v.result(lbest)
	res.High, res.HasHigh = v.result(rbest)
	return res
}

// Contains reports whether an item equal to item is present.
func (t *Tree[T]) Contains(item T) bool {
	_, ok := t.Find(item)
	return ok
}

// Find returns the stored item equal to item.
func (t *Tree[T]) Find(item T) (T, bool) {
	it, ok := t.live().find(item)
	t.metrics.RecordLookup(ok)
	return it, ok
}

// FindMin returns the least item, or lurch.ErrNoSuchItem.
func (t *Tree[T]) FindMin() (T, error) {
	return orNoSuchItem(t.live().extreme(true))
}

// FindMax returns the greatest item, or lurch.ErrNoSuchItem.
func (t *Tree[T]) FindMax() (T, error) {
	return orNoSuchItem(t.live().extreme(false))
}

// Predecessor returns the greatest item strictly less than item.
func (t *Tree[T]) Predecessor(item T) (T, error) {
	return orNoSuchItem(t.live().predecessor(item))
}

// Successor returns the least item strictly greater than item.
func (t *Tree[T]) Successor(item T) (T, error) {
	return orNoSuchItem(t.live().successor(item))
}

// WeakPredecessor returns the greatest item less than or equal to item.
func (t *Tree[T]) WeakPredecessor(item T) (T, error) {
	return orNoSuchItem(t.live().weakPredecessor(item))
}

// WeakSuccessor returns the least item greater than or equal to item.
func (t *Tree[T]) WeakSuccessor(item T) (T, error) {
	return orNoSuchItem(t.live().weakSuccessor(item))
}

// TryPredecessor is Predecessor with a boolean instead of an error.
func (t *Tree[T]) TryPredecessor(item T) (T, bool) { return t.live().predecessor(item) }

// TrySuccessor is Successor with a boolean instead of an error.
func (t *Tree[T]) TrySuccessor(item T) (T, bool) { return t.live().successor(item) }

// TryWeakPredecessor is WeakPredecessor with a boolean instead of an error.
func (t *Tree[T]) TryWeakPredecessor(item T) (T, bool) { return t.live().weakPredecessor(item) }

// TryWeakSuccessor is WeakSuccessor with a boolean instead of an error.
func (t *Tree[T]) TryWeakSuccessor(item T) (T, bool) { return t.live().weakSuccessor(item) }

// Cut finds where the monotone function fn changes sign. fn(item) must be
// negative for items below the cut, zero on it and positive above it; Low and
// High are the items straddling the zero region.
//
//	// items in [10, 20) lie on the cut
//	res := s.Cut(func(x int) int {
//	    switch {
//	    case x < 10:
//	        return -1
//	    case x >= 20:
//	        return 1
//	    }
//	    return 0
//	})
func (t *Tree[T]) Cut(fn func(T) int) CutResult[T] {
	return t.live().cut(fn)
}

// IndexOf returns the rank of item, or the one's complement of the rank it
// would be inserted at.
func (t *Tree[T]) IndexOf(item T) int {
	ind := 0
	for r := t.root; r != 0; {
		n := t.node(r)
		comp := t.compare(item, n.item)
		if comp < 0 {
			r = n.left.Load()
			continue
		}
		leftcnt := int(t.sizeOf(n.left.Load()))
		if comp == 0 {
			return ind + leftcnt
		}
		ind += leftcnt + 1
		r = n.right.Load()
	}
	return ^ind
}

// At returns the item at rank i.
func (t *Tree[T]) At(i int) (T, error) {
	if i < 0 || i >= t.count {
		var zero T
		return zero, &lurch.IndexOutOfRangeError{Index: i, Count: t.count}
	}
	return t.node(t.findNode(i)).item, nil
}

func (t *Tree[T]) findNode(i int) ref {
	r := t.root
	for {
		n := t.node(r)
		j := int(t.sizeOf(n.left.Load()))
		switch {
		case i > j:
			i -= j + 1
			r = n.right.Load()
		case i == j:
			return r
		default:
			r = n.left.Load()
		}
	}
}

// countTo returns the number of items < item.
func (t *Tree[T]) countTo(item T) int {
	ind := 0
	for r := t.root; r != 0; {
		n := t.node(r)
		comp := t.compare(item, n.item)
		if comp < 0 {
			r = n.left.Load()
			continue
		}
		leftcnt := int(t.sizeOf(n.left.Load()))
		if comp == 0 {
			return ind + leftcnt
		}
		ind += leftcnt + 1
		r = n.right.Load()
	}
	return ind
}

// CountTo returns the number of items < hi.
func (t *Tree[T]) CountTo(hi T) int { return t.countTo(hi) }

// CountFrom returns the number of items >= lo.
func (t *Tree[T]) CountFrom(lo T) int { return t.count - t.countTo(lo) }

// CountFromTo returns the number of items in [lo, hi).
func (t *Tree[T]) CountFromTo(lo, hi T) int {
	if t.compare(lo, hi) >= 0 {
		return 0
	}
	return t.countTo(hi) - t.countTo(lo)
}

func orNoSuchItem[T any](item T, ok bool) (T, error) {
	if !ok {
		return item, lurch.ErrNoSuchItem
	}
	return item, nil
}
