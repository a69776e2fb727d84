package lurchtable

import (
	"context"
	"math"
)

// allocSlot returns a slot for a new entry. It prefers recycled slots once
// enough have been freed, then bumps the slab watermark, and grows the slab
// when neither is possible. Callers hold a stripe lock; allocation itself is
// lock-free apart from growth.
func (t *Table[K, V]) allocSlot() (int32, error) {
	for {
		pages := t.slab.Pages()
		allocated := int32(pages) << t.shift //nolint:gosec // bounded by arena.MaxIndex

		for t.count.Load()+overAlloc < allocated || t.slab.Used() < allocated {
			if t.count.Load()+freeSlots < t.slab.Used() {
				slot := (t.allocNext.Add(1) & math.MaxInt32) % freeSlots
				fl := &t.free[slot]
				if next := fl.head.Swap(0); next != 0 {
					nextFree := t.at(next).link.Load()
					if nextFree == 0 {
						// Lists always keep their last element.
						fl.head.Store(next)
					} else {
						fl.head.Store(nextFree)
						return next, nil
					}
				}
			}

			if idx, ok := t.slab.TryBump(); ok {
				return idx, nil
			}
		}

		if err := t.slab.Grow(context.Background(), pages); err != nil {
			return 0, err
		}
	}
}

// freeSlot clears idx and appends it to the free-list picked by version.
func (t *Table[K, V]) freeSlot(idx, version int32) {
	e := t.at(idx)
	var (
		zk K
		zv V
	)
	e.key = zk
	e.value = zv
	e.link.Store(0)

	slot := (version & math.MaxInt32) % freeSlots
	prev := t.free[slot].tail.Swap(idx)
	if prev <= 0 || !t.at(prev).link.CompareAndSwap(0, idx) {
		t.corrupt("free-list %d tail %d cannot take slot %d", slot, prev, idx)
	}
}
