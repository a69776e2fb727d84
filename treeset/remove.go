package treeset

import (
	"iter"
	"slices"
	"time"

	"github.com/hupe1980/lurch"
)

// Remove deletes the item equal to item and returns the stored one.
func (t *Tree[T]) Remove(item T) (T, bool, error) {
	var zero T
	if err := t.begin(); err != nil {
		return zero, false, err
	}
	removed, ok, err := t.remove(item)
	if err != nil || !ok {
		return zero, false, err
	}
	t.emit(lurch.Removed, removed, zero)
	return removed, true, nil
}

func (t *Tree[T]) remove(item T) (T, bool, error) {
	var zero T
	if t.root == 0 {
		return zero, false, nil
	}
	if err := t.reserve(reserveFor(t.blackdepth)); err != nil {
		t.metrics.RecordDelete(0, err)
		return zero, false, err
	}

	var start time.Time
	timed := !lurch.IsNoop(t.metrics)
	if timed {
		start = time.Now()
	}

	level := 0
	cursor := t.root
	for {
		n := t.node(cursor)
		comp := t.compare(n.item, item)
		if comp == 0 {
			break
		}
		child := n.child(comp > 0)
		if child == 0 {
			return zero, false, nil
		}
		t.dirs[level] = comp > 0
		t.path[level] = cursor
		level++
		cursor = child
	}

	removed := t.node(cursor).item
	t.removeNode(cursor, level)
	if timed {
		t.metrics.RecordDelete(time.Since(start), nil)
	}
	return removed, true, nil
}

// RemoveAll deletes every item present and returns how many were removed.
func (t *Tree[T]) RemoveAll(items iter.Seq[T]) (int, error) {
	if err := t.begin(); err != nil {
		return 0, err
	}
	var zero T
	n := 0
	for item := range items {
		if t.root == 0 {
			break
		}
		removed, ok, err := t.remove(item)
		if err != nil {
			return n, err
		}
		if ok {
			n++
			t.emit(lurch.Removed, removed, zero)
		}
	}
	return n, nil
}

// RetainAll removes every item not equal to one of items. Removed items are
// reported one by one.
func (t *Tree[T]) RetainAll(items iter.Seq[T]) error {
	if err := t.begin(); err != nil {
		return err
	}

	var keep []T
	for item := range items {
		if stored, ok := t.Find(item); ok {
			keep = append(keep, stored)
		}
	}
	slices.SortFunc(keep, t.compare)
	keep = slices.CompactFunc(keep, func(a, b T) bool { return t.compare(a, b) == 0 })
	if len(keep) == t.count {
		return nil
	}

	drop := make([]T, 0, t.count-len(keep))
	for item := range t.RangeAll().All() {
		if _, ok := slices.BinarySearchFunc(keep, item, t.compare); !ok {
			drop = append(drop, item)
		}
	}

	var zero T
	for _, item := range drop {
		removed, ok, err := t.remove(item)
		if err != nil {
			return err
		}
		if ok {
			t.emit(lurch.Removed, removed, zero)
		}
	}
	return nil
}

// Clear removes every item. Nodes no snapshot can see are reused at once.
func (t *Tree[T]) Clear() error {
	if err := t.begin(); err != nil {
		return err
	}
	n := t.count
	if n == 0 {
		return nil
	}
	t.dropAll()
	if t.notifier.Active() {
		t.notifier.Emit(lurch.Event[T]{Kind: lurch.Cleared, Count: n})
	}
	return nil
}

// dropAll empties the tree, retiring every node that an open snapshot still
// needs and recycling the rest.
func (t *Tree[T]) dropAll() {
	if t.maxsnap < 0 {
		// No snapshot is open, so nothing else can reach any node.
		t.slab.Reset()
		t.free = t.free[:0]
		clear(t.retired)
		t.retired = t.retired[:0]
	} else if t.root != 0 {
		var stack [maxDepth]ref
		sp := 0
		stack[sp] = t.root
		sp++
		for sp > 0 {
			sp--
			r := stack[sp]
			n := t.node(r)
			if c := n.left.Load(); c != 0 {
				stack[sp] = c
				sp++
			}
			if c := n.right.Load(); c != 0 {
				stack[sp] = c
				sp++
			}
			t.retire(r)
		}
	}
	t.root, t.count, t.blackdepth = 0, 0, 0
}

// RemoveAt deletes and returns the item at rank i.
func (t *Tree[T]) RemoveAt(i int) (T, error) {
	var zero T
	if err := t.begin(); err != nil {
		return zero, err
	}
	if i < 0 || i >= t.count {
		return zero, &lurch.IndexOutOfRangeError{Index: i, Count: t.count}
	}
	item, err := t.removeAt(i)
	if err != nil {
		return zero, err
	}
	t.emit(lurch.Removed, item, zero)
	return item, nil
}

func (t *Tree[T]) removeAt(i int) (T, error) {
	if err := t.reserve(reserveFor(t.blackdepth)); err != nil {
		var zero T
		return zero, err
	}

	level := 0
	cursor := t.root
	for {
		n := t.node(cursor)
		j := int(t.sizeOf(n.left.Load()))
		if i == j {
			break
		}
		left := i < j
		if !left {
			i -= j + 1
		}
		t.dirs[level] = left
		t.path[level] = cursor
		level++
		cursor = n.child(left)
	}

	item := t.node(cursor).item
	t.removeNode(cursor, level)
	return item, nil
}

// RemoveInterval deletes count items starting at rank start. Subscribers see
// a single Cleared event carrying count.
func (t *Tree[T]) RemoveInterval(start, count int) error {
	if err := t.begin(); err != nil {
		return err
	}
	if start < 0 || count < 0 || start+count > t.count {
		return &lurch.IndexOutOfRangeError{Index: start + count, Count: t.count}
	}
	if count == 0 {
		return nil
	}
	for range count {
		if _, err := t.removeAt(start); err != nil {
			return err
		}
	}
	if t.notifier.Active() {
		t.notifier.Emit(lurch.Event[T]{Kind: lurch.Cleared, Count: count})
	}
	return nil
}

// DeleteMin removes and returns the least item, or lurch.ErrNoSuchItem.
func (t *Tree[T]) DeleteMin() (T, error) {
	return t.deleteEnd(true)
}

// DeleteMax removes and returns the greatest item, or lurch.ErrNoSuchItem.
func (t *Tree[T]) DeleteMax() (T, error) {
	return t.deleteEnd(false)
}

func (t *Tree[T]) deleteEnd(least bool) (T, error) {
	var zero T
	if err := t.begin(); err != nil {
		return zero, err
	}
	if t.count == 0 {
		return zero, lurch.ErrNoSuchItem
	}
	item, err := t.deleteExtreme(least)
	if err != nil {
		return zero, err
	}
	t.emit(lurch.Removed, item, zero)
	return item, nil
}

func (t *Tree[T]) deleteExtreme(least bool) (T, error) {
	if err := t.reserve(reserveFor(t.blackdepth)); err != nil {
		var zero T
		return zero, err
	}

	level := 0
	cursor := t.root
	for {
		next := t.node(cursor).child(least)
		if next == 0 {
			break
		}
		t.dirs[level] = least
		t.path[level] = cursor
		level++
		cursor = next
	}

	item := t.node(cursor).item
	t.removeNode(cursor, level)
	return item, nil
}

// RemoveRangeFrom deletes every item >= lo.
func (t *Tree[T]) RemoveRangeFrom(lo T) error {
	if err := t.begin(); err != nil {
		return err
	}
	return t.removeRepeatedly(t.count-t.countTo(lo), func() (T, error) {
		return t.deleteExtreme(false)
	})
}

// RemoveRangeTo deletes every item < hi.
func (t *Tree[T]) RemoveRangeTo(hi T) error {
	if err := t.begin(); err != nil {
		return err
	}
	return t.removeRepeatedly(t.countTo(hi), func() (T, error) {
		return t.deleteExtreme(true)
	})
}

// RemoveRangeFromTo deletes every item in [lo, hi).
func (t *Tree[T]) RemoveRangeFromTo(lo, hi T) error {
	if err := t.begin(); err != nil {
		return err
	}
	n := 0
	if t.compare(lo, hi) < 0 {
		n = t.countTo(hi) - t.countTo(lo)
	}
	return t.removeRepeatedly(n, func() (T, error) {
		item, ok := t.live().predecessor(hi)
		if !ok {
			panic(lurch.Corruption("treeset: range count exceeds items below bound"))
		}
		removed, _, err := t.remove(item)
		return removed, err
	})
}

func (t *Tree[T]) removeRepeatedly(n int, removeOne func() (T, error)) error {
	var zero T
	for range n {
		item, err := removeOne()
		if err != nil {
			return err
		}
		t.emit(lurch.Removed, item, zero)
	}
	return nil
}

// removeNode unlinks cursor, found at depth level below t.path, and restores
// the red-black invariants bottom-up. t.count must include cursor.
func (t *Tree[T]) removeNode(cursor ref, level int) {
	if t.count == 1 {
		t.dropAll()
		return
	}
	t.count--

	// An inner node takes its predecessor's item; the predecessor, which has
	// at most one child, is removed instead.
	itemLevel := level
	if n := t.node(cursor); n.left.Load() != 0 && n.right.Load() != 0 {
		t.dirs[level] = true
		t.path[level] = cursor
		level++
		cursor = n.left.Load()
		for next := t.rightOf(cursor); next != 0; next = t.rightOf(cursor) {
			t.dirs[level] = false
			t.path[level] = cursor
			level++
			cursor = next
		}
		t.copyNode(&t.path[itemLevel])
		t.node(t.path[itemLevel]).item = t.node(cursor).item
	}

	spliced := t.node(cursor)
	newchild := spliced.right.Load()
	if newchild == 0 {
		newchild = spliced.left.Load()
	}
	rebalance := newchild == 0 && !spliced.red
	if newchild != 0 {
		t.node(newchild).red = false
	}
	t.retire(cursor)

	if level == 0 {
		t.root = newchild
		return
	}

	level--
	cursor = t.path[level]
	left := t.dirs[level]
	t.setChild(&cursor, left, newchild)
	sibling := t.node(cursor).child(!left)
	t.node(cursor).size--

	// Demote until a rotation is needed.
	var far, near ref
	for rebalance {
		sn := t.node(sibling)
		if sn.red {
			break
		}
		far = sn.child(!left)
		if t.isRed(far) {
			break
		}
		near = sn.child(left)
		if t.isRed(near) {
			break
		}

		sn.red = true
		cn := t.node(cursor)
		if level == 0 {
			cn.red = false
			t.blackdepth--
			t.root = cursor
			return
		}
		if cn.red {
			cn.red = false
			rebalance = false
			break
		}

		child := cursor
		level--
		cursor = t.path[level]
		left = t.dirs[level]
		sibling = t.node(cursor).child(!left)
		t.setChild(&cursor, left, child)
		t.node(cursor).size--
	}

	if rebalance {
		parent := cursor

		switch sn := t.node(sibling); {
		case sn.red:
			near = sn.child(left)
			far = sn.child(!left)
			nn := t.node(near)
			neargrand := nn.child(left)
			fargrand := nn.child(!left)

			switch {
			case t.isRed(fargrand):
				t.copyNode(&near)
				t.setChild(&parent, !left, neargrand)
				t.setChild(&sibling, left, near)
				t.node(near).setChild(left, parent)

				cursor = sibling
				t.node(sibling).red = false
				t.node(near).red = true
				t.node(fargrand).red = false
				t.node(cursor).size = t.node(parent).size
				t.node(near).size = t.node(cursor).size - 1 - t.sizeOf(far)
				t.node(parent).size = t.node(near).size - 1 - t.sizeOf(fargrand)

			case t.isRed(neargrand):
				t.copyNode(&neargrand)
				t.setChild(&sibling, left, neargrand)
				t.setChild(&near, left, t.node(neargrand).child(!left))
				t.setChild(&parent, !left, t.node(neargrand).child(left))
				g := t.node(neargrand)
				g.setChild(left, parent)
				g.setChild(!left, near)

				cursor = sibling
				t.node(sibling).red = false
				t.node(cursor).size = t.node(parent).size
				t.fixSize(parent)
				t.fixSize(near)
				g.size = 1 + t.node(parent).size + t.node(near).size

			default:
				t.setChild(&parent, !left, near)
				t.setChild(&sibling, left, parent)

				cursor = sibling
				t.node(sibling).red = false
				t.node(near).red = true
				t.node(cursor).size = t.node(parent).size
				t.node(parent).size -= t.sizeOf(far) + 1
			}

		case t.isRed(far):
			near = sn.child(left)
			t.setChild(&parent, !left, near)
			t.copyNode(&sibling)
			s := t.node(sibling)
			s.setChild(left, parent)
			s.setChild(!left, far)

			cursor = sibling
			p := t.node(parent)
			s.red = p.red
			p.red = false
			t.node(far).red = false
			s.size = p.size
			p.size -= t.sizeOf(far) + 1

		case t.isRed(near):
			t.copyNode(&near)
			t.setChild(&sibling, left, t.node(near).child(!left))
			t.setChild(&parent, !left, t.node(near).child(left))
			nn := t.node(near)
			nn.setChild(left, parent)
			nn.setChild(!left, sibling)

			cursor = near
			p := t.node(parent)
			nn.red = p.red
			p.red = false
			nn.size = p.size
			t.fixSize(parent)
			t.fixSize(sibling)

		default:
			panic(lurch.Corruption("treeset: black sibling without red nephew during delete"))
		}

		if level == 0 {
			t.root = cursor
		} else {
			top := cursor
			level--
			cursor = t.path[level]
			t.setChild(&cursor, t.dirs[level], top)
			t.node(cursor).size--
		}
	}

	// Fix up to the root, relinking copies made on the way.
	for level > 0 {
		child := cursor
		level--
		cursor = t.path[level]
		if child != t.node(cursor).child(t.dirs[level]) {
			t.setChild(&cursor, t.dirs[level], child)
		}
		t.node(cursor).size--
	}
	t.root = cursor
}
