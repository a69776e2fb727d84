package lurchtable

import (
	"iter"

	"github.com/hupe1980/lurch"
)

// Range calls fn for every entry until fn returns false.
//
// Enumeration is weakly consistent: each bucket is copied under its stripe
// lock and fn runs after the lock is released, so fn may call back into the
// table. Entries added or removed during the walk may or may not be seen,
// and no entry is seen twice unless it is removed and added again.
func (t *Table[K, V]) Range(fn func(key K, value V) bool) error {
	if t.disposed.Load() {
		return lurch.ErrDisposed
	}

	var buf []Pair[K, V]
	for bucket := range t.buckets {
		if t.buckets[bucket].Load() == 0 {
			continue
		}

		var err error
		buf, err = t.copyBucket(bucket, buf[:0])
		if err != nil {
			return err
		}
		for _, p := range buf {
			if !fn(p.Key, p.Value) {
				return nil
			}
		}
	}
	return nil
}

func (t *Table[K, V]) copyBucket(bucket int, buf []Pair[K, V]) ([]Pair[K, V], error) {
	s, err := t.lock(bucket)
	if err != nil {
		return buf, err
	}
	defer s.Unlock()

	for idx := t.buckets[bucket].Load(); idx != 0; {
		e := t.at(idx)
		buf = append(buf, Pair[K, V]{Key: e.key, Value: e.value})
		idx = e.link.Load()
	}
	return buf, nil
}

// All returns an iterator over key-value pairs with the semantics of Range.
// A disposed table yields nothing.
func (t *Table[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		_ = t.Range(yield)
	}
}

// Keys returns an iterator over keys.
func (t *Table[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		_ = t.Range(func(k K, _ V) bool { return yield(k) })
	}
}

// Values returns an iterator over values.
func (t *Table[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		_ = t.Range(func(_ K, v V) bool { return yield(v) })
	}
}

// Pairs collects every entry into a slice.
func (t *Table[K, V]) Pairs() ([]Pair[K, V], error) {
	out := make([]Pair[K, V], 0, t.Len())
	err := t.Range(func(k K, v V) bool {
		out = append(out, Pair[K, V]{Key: k, Value: v})
		return true
	})
	return out, err
}

// Clear removes every entry it enumerates, firing Removed for each. Entries
// added concurrently may survive.
func (t *Table[K, V]) Clear() error {
	if t.disposed.Load() {
		return lurch.ErrDisposed
	}

	var rerr error
	err := t.Range(func(k K, _ V) bool {
		if _, _, err := t.Remove(k); err != nil {
			rerr = err
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return rerr
}
