package treeset

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lurch"
)

// Check verifies the red-black invariants, subtree sizes and ordering of the
// live tree, the ordering and size of every open snapshot, and that every
// used slab slot is exactly one of live, retired or free. Problems are
// returned as errors marked with lurch.ErrCorrupted.
//
// Check is a mutator-side operation: it must not run concurrently with
// mutations.
func (t *Tree[T]) Check() error {
	if t.disposed.Load() {
		return lurch.ErrDisposed
	}
	err := t.check()
	t.logger.LogVerify(context.Background(), t.count, err)
	return err
}

func (t *Tree[T]) check() error {
	visited := roaring.New()

	if t.root == 0 {
		if t.count != 0 || t.blackdepth != 0 {
			return lurch.Corruption("treeset: empty tree with count %d, black depth %d", t.count, t.blackdepth)
		}
	} else {
		root := t.node(t.root)
		if root.red {
			return lurch.Corruption("treeset: root %d is red", t.root)
		}
		res, err := t.rbcheck(t.root, false, visited)
		if err != nil {
			return err
		}
		if res.blackheight != t.blackdepth {
			return lurch.Corruption("treeset: black height %d, recorded %d", res.blackheight, t.blackdepth)
		}
		if int(root.size) != t.count {
			return lurch.Corruption("treeset: root size %d, count %d", root.size, t.count)
		}
	}

	free := roaring.New()
	for _, r := range t.free {
		if !free.CheckedAdd(r) {
			return lurch.Corruption("treeset: node %d freed twice", r)
		}
	}
	if free.Intersects(visited) {
		return lurch.Corruption("treeset: live tree reaches freed node %d", roaring.And(free, visited).Minimum())
	}

	retired := roaring.New()
	for _, r := range t.retired {
		if !retired.CheckedAdd(r.ref) {
			return lurch.Corruption("treeset: node %d retired twice", r.ref)
		}
		if r.gen > r.hi {
			return lurch.Corruption("treeset: node %d retired with empty generation range [%d, %d]", r.ref, r.gen, r.hi)
		}
	}
	if retired.Intersects(visited) {
		return lurch.Corruption("treeset: live tree reaches retired node %d", roaring.And(retired, visited).Minimum())
	}
	if retired.Intersects(free) {
		return lurch.Corruption("treeset: node %d both retired and free", roaring.And(retired, free).Minimum())
	}

	if used := int(t.slab.Used()) - 1; t.count+len(t.free)+len(t.retired) != used {
		return lurch.Corruption("treeset: %d live + %d free + %d retired nodes, %d slots used",
			t.count, len(t.free), len(t.retired), used)
	}

	for _, e := range t.reg.open() {
		v := view[T]{t: t, root: e.root, gen: e.gen, snap: true}
		seen := roaring.New()
		if _, err := v.snapcheck(v.root, seen); err != nil {
			return err
		}
		if free.Intersects(seen) {
			return lurch.Corruption("treeset: snapshot %d reaches freed node %d", e.gen, roaring.And(free, seen).Minimum())
		}
	}
	return nil
}

type rbResult[T any] struct {
	min, max    T
	blackheight int
}

// rbcheck checks the subtree at r and returns its extremes and black height.
func (t *Tree[T]) rbcheck(r ref, redParent bool, visited *roaring.Bitmap) (rbResult[T], error) {
	var res rbResult[T]
	if !visited.CheckedAdd(r) {
		return res, lurch.Corruption("treeset: node %d reachable twice", r)
	}

	n := t.node(r)
	left, right := n.left.Load(), n.right.Load()

	switch {
	case n.red && redParent:
		return res, lurch.Corruption("treeset: red node %d has a red parent", r)
	case left != 0 && right == 0 && !t.node(left).red:
		return res, lurch.Corruption("treeset: node %d has a black left child and no right child", r)
	case right != 0 && left == 0 && !t.node(right).red:
		return res, lurch.Corruption("treeset: node %d has a black right child and no left child", r)
	case n.size != t.sizeOf(left)+t.sizeOf(right)+1:
		return res, lurch.Corruption("treeset: node %d has size %d, children hold %d", r, n.size, t.sizeOf(left)+t.sizeOf(right))
	}

	res.min, res.max = n.item, n.item
	lbh, rbh := 0, 0

	if left != 0 {
		sub, err := t.rbcheck(left, n.red, visited)
		if err != nil {
			return res, err
		}
		if t.compare(n.item, sub.max) <= 0 {
			return res, lurch.Corruption("treeset: node %d not above its left subtree", r)
		}
		res.min, lbh = sub.min, sub.blackheight
	}
	if right != 0 {
		sub, err := t.rbcheck(right, n.red, visited)
		if err != nil {
			return res, err
		}
		if t.compare(n.item, sub.min) >= 0 {
			return res, lurch.Corruption("treeset: node %d not below its right subtree", r)
		}
		res.max, rbh = sub.max, sub.blackheight
	}

	if lbh != rbh {
		return res, lurch.Corruption("treeset: node %d has black heights %d and %d", r, lbh, rbh)
	}
	res.blackheight = rbh
	if !n.red {
		res.blackheight++
	}
	return res, nil
}

type snapResult[T any] struct {
	min, max T
	size     int
}

// snapcheck checks ordering in the version of the subtree at r seen by v and
// returns its extremes and size.
func (v view[T]) snapcheck(r ref, visited *roaring.Bitmap) (snapResult[T], error) {
	var res snapResult[T]
	if r == 0 {
		return res, nil
	}
	if !visited.CheckedAdd(r) {
		return res, lurch.Corruption("treeset: node %d reachable twice in generation %d", r, v.gen)
	}

	item := v.item(r)
	res.min, res.max, res.size = item, item, 1

	if left := v.left(r); left != 0 {
		sub, err := v.snapcheck(left, visited)
		if err != nil {
			return res, err
		}
		if v.t.compare(item, sub.max) <= 0 {
			return res, lurch.Corruption("treeset: node %d not above its left subtree in generation %d", r, v.gen)
		}
		res.min = sub.min
		res.size += sub.size
	}
	if right := v.right(r); right != 0 {
		sub, err := v.snapcheck(right, visited)
		if err != nil {
			return res, err
		}
		if v.t.compare(item, sub.min) >= 0 {
			return res, lurch.Corruption("treeset: node %d not below its right subtree in generation %d", r, v.gen)
		}
		res.max = sub.max
		res.size += sub.size
	}
	return res, nil
}

// Check verifies ordering and item count of the snapshot. It is safe to run
// while the tree is mutated.
func (s *Snapshot[T]) Check() error {
	v, err := s.view()
	if err != nil {
		return err
	}
	res, err := v.snapcheck(v.root, roaring.New())
	if err == nil && res.size != s.count {
		err = lurch.Corruption("treeset: snapshot %d holds %d nodes, count %d", s.gen, res.size, s.count)
	}
	s.tree.logger.LogVerify(context.Background(), res.size, err)
	return err
}
