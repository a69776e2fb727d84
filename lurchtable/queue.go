package lurchtable

import (
	"context"
	"runtime"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/internal/orderlist"
)

func (t *Table[K, V]) checkQueue() error {
	if t.ordering == None {
		return lurch.ErrUnsupported
	}
	if t.disposed.Load() {
		return lurch.ErrDisposed
	}
	return nil
}

// Peek returns the oldest entry without removing it.
func (t *Table[K, V]) Peek() (Pair[K, V], bool, error) {
	var zero Pair[K, V]
	if err := t.checkQueue(); err != nil {
		return zero, false, err
	}

	for {
		idx := orderlist.Oldest(t.links())
		if idx == 0 {
			return zero, false, nil
		}

		hash := t.at(idx).hash.Load()
		if hash < 0 {
			continue
		}
		bucket := t.bucketOf(hash)
		s, err := t.lock(bucket)
		if err != nil {
			return zero, false, err
		}
		if idx == orderlist.Oldest(t.links()) && hash == t.at(idx).hash.Load() {
			e := t.at(idx)
			p := Pair[K, V]{Key: e.key, Value: e.value}
			s.Unlock()
			return p, true, nil
		}
		s.Unlock()
	}
}

// TryDequeue removes and returns the oldest entry.
func (t *Table[K, V]) TryDequeue() (Pair[K, V], bool, error) {
	return t.tryDequeue(nil)
}

// TryDequeueIf removes the oldest entry only when pred accepts it. When pred
// rejects it, the entry is returned with false and stays in place.
func (t *Table[K, V]) TryDequeueIf(pred func(Pair[K, V]) bool) (Pair[K, V], bool, error) {
	return t.tryDequeue(pred)
}

func (t *Table[K, V]) tryDequeue(pred func(Pair[K, V]) bool) (Pair[K, V], bool, error) {
	var zero Pair[K, V]
	if err := t.checkQueue(); err != nil {
		return zero, false, err
	}

	for {
		idx := orderlist.Oldest(t.links())
		if idx == 0 {
			return zero, false, nil
		}

		hash := t.at(idx).hash.Load()
		if hash < 0 {
			continue
		}
		bucket := t.bucketOf(hash)
		s, err := t.lock(bucket)
		if err != nil {
			return zero, false, err
		}

		if idx != orderlist.Oldest(t.links()) || hash != t.at(idx).hash.Load() {
			s.Unlock()
			continue
		}

		p, ok := t.dequeueLocked(bucket, idx, pred)
		s.Unlock()
		return p, ok, nil
	}
}

func (t *Table[K, V]) dequeueLocked(bucket int, idx int32, pred func(Pair[K, V]) bool) (Pair[K, V], bool) {
	e := t.at(idx)
	p := Pair[K, V]{Key: e.key, Value: e.value}
	if pred != nil && !pred(p) {
		return p, false
	}

	next := e.link.Load()
	removed := false
	if t.buckets[bucket].Load() == idx {
		t.buckets[bucket].Store(next)
		removed = true
	} else {
		for test := t.buckets[bucket].Load(); test != 0; {
			te := t.at(test)
			cmp := te.link.Load()
			if cmp == idx {
				te.link.Store(next)
				removed = true
				break
			}
			test = cmp
		}
	}
	if !removed {
		t.corrupt("oldest entry %d missing from bucket %d", idx, bucket)
	}

	t.count.Add(-1)
	t.unlink(idx)
	t.freeSlot(idx, t.freeVersion.Add(1))

	if t.notifier.Active() {
		t.notifier.Emit(lurch.Event[Pair[K, V]]{Kind: lurch.Removed, Item: p})
	}
	return p, true
}

// Dequeue removes and returns the oldest entry, waiting for one to arrive
// when the table is empty. It returns ctx.Err() once ctx is done.
func (t *Table[K, V]) Dequeue(ctx context.Context) (Pair[K, V], error) {
	var zero Pair[K, V]
	if err := t.checkQueue(); err != nil {
		return zero, err
	}

	spins := 0
	for {
		p, ok, err := t.TryDequeue()
		if err != nil {
			return zero, err
		}
		if ok {
			return p, nil
		}

		for {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			if t.disposed.Load() {
				return zero, lurch.ErrDisposed
			}
			if orderlist.Oldest(t.links()) != 0 {
				break
			}
			spins++
			t.waitLog.Do(func() {
				if t.opts.rc.AllowLog() {
					t.logger.LogDequeueWait(ctx, spins)
				}
			})
			runtime.Gosched()
		}
	}
}
