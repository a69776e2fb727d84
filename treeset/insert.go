package treeset

import (
	"iter"
	"time"

	"github.com/hupe1980/lurch"
)

// Add inserts item unless an equal item is present and reports whether it
// did.
func (t *Tree[T]) Add(item T) (bool, error) {
	_, found, err := t.add(item, false)
	if err != nil {
		return false, err
	}
	return !found, nil
}

// FindOrAdd returns the stored item equal to item if there is one; otherwise
// it inserts item and returns it with found false.
func (t *Tree[T]) FindOrAdd(item T) (T, bool, error) {
	prev, found, err := t.add(item, false)
	if err != nil || !found {
		return item, false, err
	}
	return prev, true, nil
}

// UpdateOrAdd replaces the stored item equal to item, or inserts item. It
// returns the replaced item and whether there was one.
func (t *Tree[T]) UpdateOrAdd(item T) (T, bool, error) {
	return t.add(item, true)
}

// AddAll inserts every item and returns how many were new.
func (t *Tree[T]) AddAll(items iter.Seq[T]) (int, error) {
	added := 0
	for item := range items {
		ok, err := t.Add(item)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// AddSorted inserts items, which must be strictly increasing. On an empty
// tree the result is built bottom-up in linear time; otherwise the items are
// added one by one. Out-of-order input fails with lurch.ErrNotSorted: an empty
// tree stays empty, a non-empty one keeps the items added before the
// offending one.
func (t *Tree[T]) AddSorted(items iter.Seq[T]) error {
	if t.count > 0 {
		var last T
		first := true
		for item := range items {
			if !first && t.compare(last, item) >= 0 {
				return lurch.ErrNotSorted
			}
			first = false
			last = item
			if _, err := t.Add(item); err != nil {
				return err
			}
		}
		return nil
	}

	if err := t.begin(); err != nil {
		return err
	}
	return t.addSorted(items)
}

func (t *Tree[T]) add(item T, update bool) (T, bool, error) {
	var zero T
	if err := t.begin(); err != nil {
		return zero, false, err
	}
	if err := t.reserve(reserveFor(t.blackdepth)); err != nil {
		t.metrics.RecordInsert(0, err)
		return zero, false, err
	}

	var start time.Time
	timed := !lurch.IsNoop(t.metrics)
	if timed {
		start = time.Now()
	}

	prev, found := t.insert(item, update)

	switch {
	case !found:
		if timed {
			t.metrics.RecordInsert(time.Since(start), nil)
		}
		t.emit(lurch.Added, item, zero)
	case update:
		if timed {
			t.metrics.RecordUpdate(time.Since(start), nil)
		}
		t.emit(lurch.Updated, item, prev)
	}
	return prev, found, nil
}

// insert adds item, or replaces the equal item if update is set, rebalancing
// bottom-up along t.path. It returns the previous equal item if there was one.
func (t *Tree[T]) insert(item T, update bool) (prev T, found bool) {
	if t.root == 0 {
		r := t.newNode(item)
		t.node(r).red = false
		t.root = r
		t.blackdepth = 1
		t.count = 1
		return prev, false
	}

	level := 0
	cursor := t.root

	for {
		n := t.node(cursor)
		comp := t.compare(n.item, item)

		if comp == 0 {
			prev = n.item
			if update {
				t.copyNode(&cursor)
				t.node(cursor).item = item
				for level > 0 {
					kid := cursor
					level--
					cursor = t.path[level]
					t.setChild(&cursor, t.dirs[level], kid)
				}
				t.root = cursor
			}
			return prev, true
		}

		left := comp > 0
		child := n.child(left)
		t.dirs[level] = left

		if child == 0 {
			child = t.newNode(item)
			t.setChild(&cursor, left, child)
			t.node(cursor).size++
			break
		}

		t.path[level] = cursor
		level++
		cursor = child
	}
	t.count++

	// cursor is the parent of the new red leaf.
	for t.node(cursor).red {
		child := cursor
		level--
		cursor = t.path[level]
		t.setChild(&cursor, t.dirs[level], child)
		t.node(cursor).size++

		left := t.dirs[level]
		sibling := t.node(cursor).child(!left)

		if t.isRed(sibling) {
			// Promote: push the red up one level.
			t.node(child).red = false
			t.node(sibling).red = false

			if level == 0 {
				t.root = cursor
				t.blackdepth++
				return prev, false
			}

			t.node(cursor).red = true
			child = cursor
			level--
			cursor = t.path[level]
			t.setChild(&cursor, t.dirs[level], child)
			t.node(cursor).size++
			continue
		}

		childLeft := t.dirs[level+1]
		t.node(cursor).red = true

		switch {
		case left && childLeft:
			t.setChild(&cursor, true, t.rightOf(child))
			t.setChild(&child, false, cursor)
			cursor = child
		case left:
			bad := t.rightOf(child)
			t.setChild(&cursor, true, t.rightOf(bad))
			t.setChild(&child, false, t.leftOf(bad))
			t.copyNode(&bad)
			b := t.node(bad)
			b.left.Store(child)
			b.right.Store(cursor)
			cursor = bad
		case !childLeft:
			t.setChild(&cursor, false, t.leftOf(child))
			t.setChild(&child, true, cursor)
			cursor = child
		default:
			bad := t.leftOf(child)
			t.setChild(&cursor, false, t.leftOf(bad))
			t.setChild(&child, true, t.rightOf(bad))
			t.copyNode(&bad)
			b := t.node(bad)
			b.right.Store(child)
			b.left.Store(cursor)
			cursor = bad
		}

		top := t.node(cursor)
		top.red = false
		t.fixSize(top.right.Load())
		t.fixSize(top.left.Load())
		top.size = t.sizeOf(top.left.Load()) + t.sizeOf(top.right.Load()) + 1

		if level == 0 {
			t.root = cursor
			return prev, false
		}

		child = cursor
		level--
		cursor = t.path[level]
		t.setChild(&cursor, t.dirs[level], child)
		t.node(cursor).size++
		break
	}

	// Above the rebalanced part only sizes change, and parents need relinking
	// only while copies keep propagating.
	relink := true
	for level > 0 {
		child := cursor
		level--
		cursor = t.path[level]
		if relink {
			relink = t.setChild(&cursor, t.dirs[level], child)
		}
		t.node(cursor).size++
	}

	t.root = cursor
	return prev, false
}

// Update replaces the stored item equal to item and returns the old one.
func (t *Tree[T]) Update(item T) (T, bool, error) {
	var zero T
	if err := t.begin(); err != nil {
		return zero, false, err
	}
	if err := t.reserve(reserveFor(t.blackdepth)); err != nil {
		return zero, false, err
	}

	var start time.Time
	timed := !lurch.IsNoop(t.metrics)
	if timed {
		start = time.Now()
	}

	level := 0
	cursor := t.root
	for cursor != 0 {
		n := t.node(cursor)
		comp := t.compare(n.item, item)
		if comp == 0 {
			old := n.item
			t.copyNode(&cursor)
			t.node(cursor).item = item
			for level > 0 {
				kid := cursor
				level--
				cursor = t.path[level]
				t.setChild(&cursor, t.dirs[level], kid)
			}
			t.root = cursor

			if timed {
				t.metrics.RecordUpdate(time.Since(start), nil)
			}
			t.emit(lurch.Updated, item, old)
			return old, true, nil
		}
		t.dirs[level] = comp > 0
		t.path[level] = cursor
		level++
		cursor = n.child(comp > 0)
	}
	return zero, false, nil
}

// addSorted builds the tree from strictly increasing items in O(n). The tree
// must be empty.
func (t *Tree[T]) addSorted(items iter.Seq[T]) error {
	var head, tail ref
	var last T
	z := 0

	var start time.Time
	timed := !lurch.IsNoop(t.metrics)
	if timed {
		start = time.Now()
	}

	abort := func(err error) error {
		for r := head; r != 0; {
			next := t.rightOf(r)
			t.release(r)
			r = next
		}
		return err
	}

	for item := range items {
		if z > 0 && t.compare(last, item) >= 0 {
			return abort(lurch.ErrNotSorted)
		}
		if err := t.reserve(1); err != nil {
			t.metrics.RecordInsert(0, err)
			return abort(err)
		}
		r := t.newNode(item)
		if tail == 0 {
			head = r
		} else {
			t.node(tail).right.Store(r)
		}
		tail = r
		last = item
		z++
	}
	if z == 0 {
		return nil
	}

	blackheight, red, maxred := 0, z, 1
	for maxred <= red {
		red -= maxred
		maxred <<= 1
		blackheight++
	}

	t.root = t.makeTree(&head, blackheight, maxred, red)
	t.blackdepth = blackheight
	t.count = z

	if timed {
		// Each item is charged an equal share of the build.
		per := time.Since(start) / time.Duration(z)
		for range z {
			t.metrics.RecordInsert(per, nil)
		}
	}
	if t.notifier.Active() {
		var zero T
		for item := range t.RangeAll().All() {
			t.emit(lurch.Added, item, zero)
		}
	}
	return nil
}

// makeTree turns the first 2^h-1+red nodes of the list at *rest, chained
// through their right refs, into a tree of black height h whose red nodes
// all sit on the bottom level. It advances *rest past the nodes it used.
func (t *Tree[T]) makeTree(rest *ref, blackheight, maxred, red int) ref {
	if blackheight == 1 {
		top := *rest
		*rest = t.rightOf(top)

		if red > 0 {
			t.node(top).right.Store(0)
			t.node(*rest).left.Store(top)
			top = *rest
			t.node(top).size = int32(1 + red) //nolint:gosec // red <= 2
			*rest = t.rightOf(*rest)
			red--
		}

		tn := t.node(top)
		if red > 0 {
			tn.right.Store(*rest)
			*rest = t.rightOf(*rest)
			t.node(tn.right.Load()).right.Store(0)
		} else {
			tn.right.Store(0)
		}
		tn.red = false
		return top
	}

	maxred >>= 1
	lred := min(red, maxred)
	left := t.makeTree(rest, blackheight-1, maxred, lred)

	top := *rest
	tn := t.node(top)
	*rest = tn.right.Load()
	tn.left.Store(left)
	tn.red = false
	tn.right.Store(t.makeTree(rest, blackheight-1, maxred, red-lred))
	tn.size = int32((maxred << 1) - 1 + red) //nolint:gosec // bounded by the item count
	return top
}
