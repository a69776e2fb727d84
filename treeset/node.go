package treeset

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/lurch"
)

// ref is a slab index; 0 is nil.
type ref = uint32

// maxDepth bounds the height of any tree that fits in the slab's int32 index
// space: a red-black tree with black height h holds at least 2^h - 1 nodes and
// is at most 2h deep.
const maxDepth = 72

// maxGeneration keeps lastgen+1 within the 31 bits the extra word reserves.
const maxGeneration = 1<<31 - 2

type node[T any] struct {
	item  T
	left  atomic.Uint32
	right atomic.Uint32

	// extra records one superseded child for snapshots at or below lastgen:
	// bits 0-31 oldref, bit 32 set if it was the left child, bits 33-63
	// lastgen+1 (0 when unused).
	extra atomic.Uint64

	size int32
	gen  int32
	red  bool
}

func packExtra(lastgen int32, left bool, old ref) uint64 {
	e := uint64(old) | uint64(lastgen+1)<<33
	if left {
		e |= 1 << 32
	}
	return e
}

func extraLastgen(e uint64) int32 { return int32(e>>33) - 1 } //nolint:gosec // 31 bits
func extraLeft(e uint64) bool     { return e&(1<<32) != 0 }
func extraRef(e uint64) ref       { return ref(e) } //nolint:gosec // low 32 bits

func (n *node[T]) child(left bool) ref {
	if left {
		return n.left.Load()
	}
	return n.right.Load()
}

func (n *node[T]) setChild(left bool, r ref) {
	if left {
		n.left.Store(r)
	} else {
		n.right.Store(r)
	}
}

// retiredNode is a node that left the live tree while some snapshot in
// [gen, hi] could still reach it.
type retiredNode struct {
	ref ref
	gen int32
	hi  int32
}

func (t *Tree[T]) node(r ref) *node[T] {
	return t.slab.At(int32(r)) //nolint:gosec // refs come from the slab
}

func (t *Tree[T]) leftOf(r ref) ref  { return t.node(r).left.Load() }
func (t *Tree[T]) rightOf(r ref) ref { return t.node(r).right.Load() }

func (t *Tree[T]) sizeOf(r ref) int32 {
	if r == 0 {
		return 0
	}
	return t.node(r).size
}

func (t *Tree[T]) isRed(r ref) bool {
	return r != 0 && t.node(r).red
}

func (t *Tree[T]) fixSize(r ref) {
	n := t.node(r)
	n.size = t.sizeOf(n.left.Load()) + t.sizeOf(n.right.Load()) + 1
}

// reserveFor returns how many nodes a single insert or delete may allocate:
// one copy per level plus a constant for the rotation.
func reserveFor(blackdepth int) int {
	return 4*blackdepth + 8
}

// reserve makes sure n nodes can be allocated without growing the slab, so a
// budget failure surfaces before the tree is touched.
func (t *Tree[T]) reserve(n int) error {
	for len(t.free)+int(t.slab.Allocated()-t.slab.Used()) < n {
		if err := t.slab.Grow(context.Background(), t.slab.Pages()); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree[T]) alloc() ref {
	if n := len(t.free); n > 0 {
		r := t.free[n-1]
		t.free = t.free[:n-1]
		return r
	}
	idx, ok := t.slab.TryBump()
	if !ok {
		panic(lurch.Corruption("treeset: node reservation exhausted at %d slots", t.slab.Used()))
	}
	return ref(idx) //nolint:gosec // TryBump never returns a negative index
}

func (t *Tree[T]) newNode(item T) ref {
	r := t.alloc()
	n := t.node(r)
	n.item = item
	n.left.Store(0)
	n.right.Store(0)
	n.extra.Store(0)
	n.size = 1
	n.gen = t.generation
	n.red = true
	return r
}

// release returns r to the free list. Nothing may reach r afterwards.
func (t *Tree[T]) release(r ref) {
	var zero T
	t.node(r).item = zero
	t.free = append(t.free, r)
}

// retire drops r from the live tree. It is freed at once unless a live
// snapshot may still reach it.
func (t *Tree[T]) retire(r ref) {
	n := t.node(r)
	if n.gen > t.maxsnap {
		t.release(r)
		return
	}
	t.retired = append(t.retired, retiredNode{ref: r, gen: n.gen, hi: t.generation - 1})
}

// copyNode replaces *cur by a fresh copy if a live snapshot may observe it
// and reports whether it did.
func (t *Tree[T]) copyNode(cur *ref) bool {
	old := t.node(*cur)
	if old.gen > t.maxsnap {
		return false
	}

	r := t.alloc()
	n := t.node(r)
	n.item = old.item
	n.left.Store(old.left.Load())
	n.right.Store(old.right.Load())
	n.extra.Store(0)
	n.size = old.size
	n.red = old.red
	n.gen = t.generation

	t.retired = append(t.retired, retiredNode{ref: *cur, gen: old.gen, hi: t.generation - 1})
	*cur = r
	return true
}

// setChild points one child of *cur at child. A node that snapshots can see
// absorbs the first overwrite in its extra word; a second overwrite copies it,
// in which case *cur is replaced and the caller must relink the parent.
//
// The extra word is published before the child so that a snapshot reader,
// which loads the child first, never sees the new child without the old one.
func (t *Tree[T]) setChild(cur *ref, left bool, child ref) bool {
	n := t.node(*cur)
	old := n.child(left)
	if child == old {
		return false
	}

	copied := false
	if n.gen <= t.maxsnap {
		e := n.extra.Load()
		lastgen := extraLastgen(e)
		switch {
		case lastgen == -1:
			n.extra.Store(packExtra(t.maxsnap, left, old))
		case extraLeft(e) != left || lastgen < t.maxsnap:
			t.copyNode(cur)
			n = t.node(*cur)
			copied = true
		}
	}

	n.setChild(left, child)
	return copied
}
