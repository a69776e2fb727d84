package lurchtable

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lurch"
)

// Stats is a point-in-time view of a table's shape.
type Stats struct {
	Len           int
	Limit         int
	Ordering      Ordering
	Buckets       int
	Stripes       int
	SlotsPerPage  int
	Pages         int
	Allocated     int
	Used          int
	Recyclable    int // slots parked on free-lists beyond their anchors
	BytesReserved int64
	Grows         uint64
}

// Stats returns the current table statistics.
func (t *Table[K, V]) Stats() Stats {
	st := t.slab.Stats()
	n := int(t.count.Load())
	recyclable := 0
	if st.Used > 0 {
		recyclable = max(0, st.Used-1-n-freeSlots)
	}
	return Stats{
		Len:           n,
		Limit:         t.Limit(),
		Ordering:      t.ordering,
		Buckets:       len(t.buckets),
		Stripes:       len(t.stripes),
		SlotsPerPage:  st.SlotsPerPage,
		Pages:         st.Pages,
		Allocated:     st.Allocated,
		Used:          st.Used,
		Recyclable:    recyclable,
		BytesReserved: st.BytesReserved,
		Grows:         st.Grows,
	}
}

// Verify walks every bucket chain, free-list and the order list and checks
// that they partition the used slots. Stripes are checked in parallel,
// bounded by the resource controller's background worker slots.
//
// Verify expects the table to be quiescent; concurrent mutation can produce
// false reports. Failures are returned as errors marked with
// lurch.ErrCorrupted.
func (t *Table[K, V]) Verify(ctx context.Context) error {
	if t.disposed.Load() {
		return lurch.ErrDisposed
	}

	live, err := t.verifyChains(ctx)
	if err == nil {
		err = t.verifyFreeLists(live)
	}
	if err == nil && t.ordering != None {
		err = t.verifyOrder(live)
	}

	t.logger.LogVerify(ctx, int(live.GetCardinality()), err)
	return err
}

func (t *Table[K, V]) verifyChains(ctx context.Context) (*roaring.Bitmap, error) {
	used := t.slab.Used()

	var (
		mu   sync.Mutex
		live = roaring.New()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.rc.BackgroundWorkers())

	for i := range t.stripes {
		g.Go(func() error {
			if err := t.opts.rc.AcquireBackground(gctx); err != nil {
				return err
			}
			defer t.opts.rc.ReleaseBackground()

			local, err := t.verifyStripe(i, used)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if live.Intersects(local) {
				dup := roaring.And(live, local)
				return lurch.Corruption("slot %d is chained into two buckets", dup.Minimum())
			}
			live.Or(local)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return live, err
	}

	if n := live.GetCardinality(); n != uint64(t.count.Load()) { //nolint:gosec // count is never negative when quiescent
		return live, lurch.Corruption("chains hold %d entries, count is %d", n, t.count.Load())
	}
	return live, nil
}

func (t *Table[K, V]) verifyStripe(i int, used int32) (*roaring.Bitmap, error) {
	s := &t.stripes[i]
	s.Lock()
	defer s.Unlock()

	local := roaring.New()
	for bucket := i; bucket < len(t.buckets); bucket += len(t.stripes) {
		steps := int32(0)
		for idx := t.buckets[bucket].Load(); idx != 0; {
			if idx < 1 || idx >= used {
				return nil, lurch.Corruption("bucket %d links to slot %d outside [1, %d)", bucket, idx, used)
			}
			if !local.CheckedAdd(uint32(idx)) {
				return nil, lurch.Corruption("bucket %d revisits slot %d", bucket, idx)
			}
			e := t.at(idx)
			if got := t.bucketOf(e.hash.Load()); got != bucket {
				return nil, lurch.Corruption("slot %d hashes to bucket %d but is chained in %d", idx, got, bucket)
			}
			if steps++; steps > used {
				return nil, lurch.Corruption("bucket %d chain does not terminate", bucket)
			}
			idx = e.link.Load()
		}
	}
	return local, nil
}

func (t *Table[K, V]) verifyFreeLists(live *roaring.Bitmap) error {
	used := t.slab.Used()
	free := roaring.New()

	for slot := range t.free {
		head, tail := t.free[slot].head.Load(), t.free[slot].tail.Load()
		idx, last := head, int32(0)
		for idx != 0 {
			if idx < 1 || idx >= used {
				return lurch.Corruption("free-list %d links to slot %d outside [1, %d)", slot, idx, used)
			}
			if live.Contains(uint32(idx)) {
				return lurch.Corruption("slot %d is both live and on free-list %d", idx, slot)
			}
			if !free.CheckedAdd(uint32(idx)) {
				return lurch.Corruption("slot %d appears twice on the free-lists", idx)
			}
			last = idx
			idx = t.at(idx).link.Load()
		}
		if last != tail {
			return lurch.Corruption("free-list %d ends at %d, tail is %d", slot, last, tail)
		}
	}

	if got := live.GetCardinality() + free.GetCardinality() + 1; got != uint64(used) { //nolint:gosec // used > 0
		return lurch.Corruption("%d live and %d free slots do not cover %d used", live.GetCardinality(), free.GetCardinality(), used)
	}
	return nil
}

func (t *Table[K, V]) verifyOrder(live *roaring.Bitmap) error {
	seen := roaring.New()
	prev := int32(0)
	for idx := t.at(0).prev.Load(); idx != 0; {
		if idx < 0 {
			return lurch.Corruption("order list holds marked link %d after %d", idx, prev)
		}
		if !live.Contains(uint32(idx)) {
			return lurch.Corruption("order list links dead slot %d", idx)
		}
		if !seen.CheckedAdd(uint32(idx)) {
			return lurch.Corruption("order list revisits slot %d", idx)
		}
		e := t.at(idx)
		if e.next.Load() != prev {
			return lurch.Corruption("slot %d points back to %d, expected %d", idx, e.next.Load(), prev)
		}
		prev = idx
		idx = e.prev.Load()
	}
	if t.at(0).next.Load() != prev {
		return lurch.Corruption("order anchor newest is %d, walk ended at %d", t.at(0).next.Load(), prev)
	}
	if seen.GetCardinality() != live.GetCardinality() {
		return lurch.Corruption("order list holds %d entries, chains hold %d", seen.GetCardinality(), live.GetCardinality())
	}
	return nil
}
