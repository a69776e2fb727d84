package lurchtable

import (
	"context"
	"time"

	"github.com/hupe1980/lurch"
)

// Get returns the value stored for key, or lurch.ErrNotFound. With Access
// ordering a hit makes the entry the newest.
func (t *Table[K, V]) Get(key K) (V, error) {
	v, ok, err := t.lookup(key)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, lurch.ErrNotFound
	}
	return v, nil
}

// TryGet is Get with a boolean instead of lurch.ErrNotFound.
func (t *Table[K, V]) TryGet(key K) (V, bool, error) {
	return t.lookup(key)
}

// ContainsKey reports whether key is present. It counts as an access.
func (t *Table[K, V]) ContainsKey(key K) (bool, error) {
	_, ok, err := t.lookup(key)
	return ok, err
}

func (t *Table[K, V]) lookup(key K) (V, bool, error) {
	var zero V
	if t.disposed.Load() {
		return zero, false, lurch.ErrDisposed
	}

	hash := t.hashOf(key)
	bucket := t.bucketOf(hash)
	s, err := t.lock(bucket)
	if err != nil {
		return zero, false, err
	}
	defer s.Unlock()

	for idx := t.buckets[bucket].Load(); idx != 0; {
		e := t.at(idx)
		if e.hash.Load() == hash && t.equal(key, e.key) {
			if t.ordering == Access {
				t.relink(idx)
			}
			t.metrics.RecordLookup(true)
			return e.value, true, nil
		}
		idx = e.link.Load()
	}

	t.metrics.RecordLookup(false)
	return zero, false, nil
}

// createFunc produces the value for a missing key; false means "do not add".
type createFunc[K, V any] func(key K) (V, bool)

// updateFunc produces the replacement for an existing value; false means
// "leave it".
type updateFunc[K, V any] func(key K, old V) (V, bool)

// insert is the single routine behind every add and update. It returns the
// outcome and the value associated with key afterwards (the existing one for
// exists).
func (t *Table[K, V]) insert(key K, create createFunc[K, V], update updateFunc[K, V]) (insertResult, V, error) {
	var zero V
	if t.disposed.Load() {
		return 0, zero, lurch.ErrDisposed
	}

	var start time.Time
	timed := !lurch.IsNoop(t.metrics)
	if timed {
		start = time.Now()
	}

	hash := t.hashOf(key)
	res, value, added, err := t.insertLocked(hash, key, create, update)

	if timed {
		switch res {
		case inserted:
			t.metrics.RecordInsert(time.Since(start), err)
		case updated:
			t.metrics.RecordUpdate(time.Since(start), err)
		default:
			if err != nil {
				t.metrics.RecordInsert(time.Since(start), err)
			}
		}
	}
	if err != nil {
		return res, value, err
	}

	if limit := t.limit.Load(); added > limit && t.ordering != None {
		if _, ok, derr := t.TryDequeue(); derr == nil && ok {
			t.metrics.RecordEviction()
			t.logger.LogEviction(context.Background(), int(t.count.Load()), int(limit))
		}
	}
	return res, value, nil
}

func (t *Table[K, V]) insertLocked(hash int32, key K, create createFunc[K, V], update updateFunc[K, V]) (res insertResult, value V, added int32, err error) {
	bucket := t.bucketOf(hash)
	s, err := t.lock(bucket)
	if err != nil {
		return 0, value, -1, err
	}
	defer s.Unlock()

	for idx := t.buckets[bucket].Load(); idx != 0; {
		e := t.at(idx)
		if e.hash.Load() == hash && t.equal(key, e.key) {
			original := e.value
			if update == nil {
				return exists, original, -1, nil
			}
			next, ok := update(key, original)
			if !ok {
				return exists, original, -1, nil
			}
			e.value = next

			if t.ordering == Modified || t.ordering == Access {
				t.relink(idx)
			}

			if t.notifier.Active() {
				t.notifier.Emit(lurch.Event[Pair[K, V]]{
					Kind:     lurch.Updated,
					Item:     Pair[K, V]{Key: key, Value: next},
					Previous: Pair[K, V]{Key: key, Value: original},
				})
			}
			return updated, next, -1, nil
		}
		idx = e.link.Load()
	}

	if create == nil {
		return notFound, value, -1, nil
	}
	value, ok := create(key)
	if !ok {
		return notFound, value, -1, nil
	}

	idx, err := t.allocSlot()
	if err != nil {
		var zero V
		return 0, zero, -1, err
	}

	e := t.at(idx)
	e.hash.Store(hash)
	e.key = key
	e.value = value
	e.link.Store(t.buckets[bucket].Load())
	t.buckets[bucket].Store(idx)

	added = t.count.Add(1)
	if t.ordering != None {
		t.link(idx)
	}

	if t.notifier.Active() {
		t.notifier.Emit(lurch.Event[Pair[K, V]]{
			Kind: lurch.Added,
			Item: Pair[K, V]{Key: key, Value: value},
		})
	}
	return inserted, value, added, nil
}

func constant[K, V any](v V) createFunc[K, V] {
	return func(K) (V, bool) { return v, true }
}

func replace[K, V any](v V) updateFunc[K, V] {
	return func(K, V) (V, bool) { return v, true }
}

// Set adds key or overwrites its value.
func (t *Table[K, V]) Set(key K, value V) error {
	_, _, err := t.insert(key, constant[K](value), replace[K](value))
	return err
}

// Add adds key, failing with lurch.ErrKeyExists if it is already present.
func (t *Table[K, V]) Add(key K, value V) error {
	res, _, err := t.insert(key, constant[K](value), nil)
	if err != nil {
		return err
	}
	if res != inserted {
		return lurch.ErrKeyExists
	}
	return nil
}

// TryAdd adds key if it is absent and reports whether it did.
func (t *Table[K, V]) TryAdd(key K, value V) (bool, error) {
	res, _, err := t.insert(key, constant[K](value), nil)
	return res == inserted, err
}

// TryAddFunc adds key with fn(key) if it is absent. fn runs under the stripe
// lock and only when the key is missing.
func (t *Table[K, V]) TryAddFunc(key K, fn func(key K) V) (bool, error) {
	res, _, err := t.insert(key, func(k K) (V, bool) { return fn(k), true }, nil)
	return res == inserted, err
}

// GetOrAdd returns the existing value for key, or adds and returns value.
func (t *Table[K, V]) GetOrAdd(key K, value V) (V, error) {
	_, v, err := t.insert(key, constant[K](value), nil)
	return v, err
}

// GetOrAddFunc returns the existing value for key, or adds and returns fn(key).
func (t *Table[K, V]) GetOrAddFunc(key K, fn func(key K) V) (V, error) {
	_, v, err := t.insert(key, func(k K) (V, bool) { return fn(k), true }, nil)
	return v, err
}

// AddOrUpdate adds addValue for a missing key, or replaces the existing value
// with update(key, old). It returns the value now stored.
func (t *Table[K, V]) AddOrUpdate(key K, addValue V, update func(key K, old V) V) (V, error) {
	_, v, err := t.insert(key, constant[K](addValue), func(k K, old V) (V, bool) { return update(k, old), true })
	return v, err
}

// AddOrUpdateFunc is AddOrUpdate with a lazily created initial value.
func (t *Table[K, V]) AddOrUpdateFunc(key K, create func(key K) V, update func(key K, old V) V) (V, error) {
	_, v, err := t.insert(key,
		func(k K) (V, bool) { return create(k), true },
		func(k K, old V) (V, bool) { return update(k, old), true },
	)
	return v, err
}

// TryUpdate replaces the value of an existing key and reports whether it did.
func (t *Table[K, V]) TryUpdate(key K, value V) (bool, error) {
	res, _, err := t.insert(key, nil, replace[K](value))
	return res == updated, err
}

// TryUpdateIf replaces the value of an existing key only when cond accepts
// the current value.
func (t *Table[K, V]) TryUpdateIf(key K, value V, cond func(key K, old V) bool) (bool, error) {
	res, _, err := t.insert(key, nil, func(k K, old V) (V, bool) {
		if !cond(k, old) {
			return old, false
		}
		return value, true
	})
	return res == updated, err
}

// TryUpdateFunc replaces the value of an existing key with fn(key, old).
func (t *Table[K, V]) TryUpdateFunc(key K, fn func(key K, old V) V) (bool, error) {
	res, _, err := t.insert(key, nil, func(k K, old V) (V, bool) { return fn(k, old), true })
	return res == updated, err
}

// Remove deletes key and returns the value it held.
func (t *Table[K, V]) Remove(key K) (V, bool, error) {
	return t.delete(key, nil)
}

// RemoveIf deletes key only when cond accepts its current value.
func (t *Table[K, V]) RemoveIf(key K, cond func(key K, value V) bool) (bool, error) {
	_, ok, err := t.delete(key, cond)
	return ok, err
}

func (t *Table[K, V]) delete(key K, cond func(K, V) bool) (V, bool, error) {
	var zero V
	if t.disposed.Load() {
		return zero, false, lurch.ErrDisposed
	}

	var start time.Time
	timed := !lurch.IsNoop(t.metrics)
	if timed {
		start = time.Now()
	}

	hash := t.hashOf(key)
	bucket := t.bucketOf(hash)
	s, err := t.lock(bucket)
	if err != nil {
		return zero, false, err
	}
	defer s.Unlock()

	var prev int32
	for idx := t.buckets[bucket].Load(); idx != 0; {
		e := t.at(idx)
		if e.hash.Load() == hash && t.equal(key, e.key) {
			value := e.value
			if cond != nil && !cond(key, value) {
				return value, false, nil
			}

			next := e.link.Load()
			if prev == 0 {
				t.buckets[bucket].Store(next)
			} else {
				t.at(prev).link.Store(next)
			}

			t.count.Add(-1)
			if t.ordering != None {
				t.unlink(idx)
			}
			t.freeSlot(idx, t.freeVersion.Add(1))

			if t.notifier.Active() {
				t.notifier.Emit(lurch.Event[Pair[K, V]]{
					Kind: lurch.Removed,
					Item: Pair[K, V]{Key: key, Value: value},
				})
			}
			if timed {
				t.metrics.RecordDelete(time.Since(start), nil)
			}
			return value, true, nil
		}
		prev = idx
		idx = e.link.Load()
	}
	return zero, false, nil
}
