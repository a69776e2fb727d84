package lurchtable

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/hashing"
)

// colliding is a multiple of the bucket count used by collisionTable, so
// every multiple lands in bucket 0.
const colliding = 1103

func collisionTable(t *testing.T, limit int) *Table[int, string] {
	t.Helper()
	tbl, err := New[int, string](Access, limit,
		WithHashSize(colliding),
		WithAllocSize(10),
		WithLockSize(10),
		WithHasher(hashing.Identity[int]()),
	)
	require.NoError(t, err)
	require.Equal(t, colliding, tbl.Stats().Buckets)
	return tbl
}

func sample() []Pair[int, string] {
	var out []Pair[int, string]
	for i := 1; i < 100; i += 1 + i%2 {
		out = append(out, Pair[int, string]{Key: i, Value: strconv.Itoa(i)})
	}
	return out
}

func TestNew(t *testing.T) {
	t.Run("orderings and limits", func(t *testing.T) {
		tbl, err := NewWithCapacity[int, int](None, 1)
		require.NoError(t, err)
		assert.Equal(t, None, tbl.Ordering())
		assert.Equal(t, Unbounded, tbl.Limit())

		tbl, err = New[int, int](Modified, 5)
		require.NoError(t, err)
		assert.Equal(t, Modified, tbl.Ordering())
		assert.Equal(t, 5, tbl.Limit())

		tbl, err = New[int, int](Access, 5, WithHashSize(1), WithAllocSize(1), WithLockSize(1))
		require.NoError(t, err)
		assert.Equal(t, Access, tbl.Ordering())
		st := tbl.Stats()
		assert.Equal(t, 131, st.Buckets)
		assert.Equal(t, 17, st.Stripes)
		assert.Equal(t, 128, st.SlotsPerPage)
	})

	t.Run("page size grows with alloc hint", func(t *testing.T) {
		tbl, err := NewWithCapacity[int, int](Insertion, 16*4096)
		require.NoError(t, err)
		// 4096 + 128 rounds down to 4096.
		assert.Equal(t, 4096, tbl.Stats().SlotsPerPage)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		_, err := New[int, int](Access, 0)
		assert.ErrorIs(t, err, lurch.ErrInvalidArgument)

		_, err = New[int, int](None, 10)
		assert.ErrorIs(t, err, lurch.ErrInvalidArgument)

		_, err = New[int, int](Ordering(9), 10)
		assert.ErrorIs(t, err, lurch.ErrInvalidArgument)

		_, err = New[string, int](Access, 10, WithHasher(hashing.Identity[int]()))
		assert.ErrorIs(t, err, lurch.ErrInvalidArgument)

		_, err = New[string, int](Access, 10, WithKeyEqual(func(a, b int) bool { return a == b }))
		assert.ErrorIs(t, err, lurch.ErrInvalidArgument)
	})

	t.Run("fresh table verifies", func(t *testing.T) {
		tbl, err := New[int, int](Access, 10)
		require.NoError(t, err)
		assert.Equal(t, freeSlots+1, tbl.Stats().Used)
		require.NoError(t, tbl.Verify(t.Context()))
	})
}

func TestCRUDEvents(t *testing.T) {
	tbl := collisionTable(t, 3)

	var lastAdded, lastUpdated, lastRemoved Pair[int, string]
	tbl.Subscribe(func(ev lurch.Event[Pair[int, string]]) {
		switch ev.Kind {
		case lurch.Added:
			lastAdded = ev.Item
		case lurch.Updated:
			lastUpdated = ev.Item
		case lurch.Removed:
			lastRemoved = ev.Item
		}
	})

	require.NoError(t, tbl.Set(1, "a"))
	assert.Equal(t, "a", lastAdded.Value)
	require.NoError(t, tbl.Set(2, "b"))
	assert.Equal(t, "b", lastAdded.Value)
	require.NoError(t, tbl.Set(3, "c"))
	assert.Equal(t, "c", lastAdded.Value)
	assert.Equal(t, 3, tbl.Len())

	v, err := tbl.Get(2) // access makes 2 the newest
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	require.NoError(t, tbl.Set(4, "d"))
	assert.Equal(t, "d", lastAdded.Value)
	assert.Equal(t, "a", lastRemoved.Value)

	require.NoError(t, tbl.Set(5, "e"))
	assert.Equal(t, "e", lastAdded.Value)
	assert.Equal(t, "c", lastRemoved.Value)

	require.NoError(t, tbl.Set(2, "B"))
	assert.Equal(t, "B", lastUpdated.Value)

	require.NoError(t, tbl.Set(6, "f"))
	assert.Equal(t, "f", lastAdded.Value)
	assert.Equal(t, "d", lastRemoved.Value)
	assert.Equal(t, 3, tbl.Len())

	v, ok, err := tbl.Remove(5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "e", v)
	assert.Equal(t, "e", lastRemoved.Value)

	p, err := tbl.Dequeue(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "B", p.Value)
	p, err = tbl.Dequeue(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "f", p.Value)
	assert.Equal(t, 0, tbl.Len())

	require.NoError(t, tbl.Verify(t.Context()))
}

func TestUpdatedEventCarriesPrevious(t *testing.T) {
	tbl, err := New[string, int](Modified, 10)
	require.NoError(t, err)

	var events []lurch.Event[Pair[string, int]]
	unsubscribe := tbl.Subscribe(func(ev lurch.Event[Pair[string, int]]) {
		events = append(events, ev)
	}, lurch.Updated)

	require.NoError(t, tbl.Set("x", 1))
	require.NoError(t, tbl.Set("x", 2))
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Previous.Value)
	assert.Equal(t, 2, events[0].Item.Value)

	unsubscribe()
	require.NoError(t, tbl.Set("x", 3))
	assert.Len(t, events, 1)
}

func TestEvictionFollowsOrdering(t *testing.T) {
	keys := func(tbl *Table[string, int]) []string {
		pairs, err := tbl.Pairs()
		require.NoError(t, err)
		out := make([]string, 0, len(pairs))
		for _, p := range pairs {
			out = append(out, p.Key)
		}
		return out
	}

	t.Run("insertion", func(t *testing.T) {
		tbl, err := New[string, int](Insertion, 2)
		require.NoError(t, err)
		require.NoError(t, tbl.Set("A", 1))
		require.NoError(t, tbl.Set("B", 2))
		require.NoError(t, tbl.Set("C", 3))

		assert.ElementsMatch(t, []string{"B", "C"}, keys(tbl))
		oldest, ok, err := tbl.Peek()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "B", oldest.Key)
	})

	t.Run("modified", func(t *testing.T) {
		tbl, err := New[string, int](Modified, 2)
		require.NoError(t, err)
		require.NoError(t, tbl.Set("B", 2))
		require.NoError(t, tbl.Set("C", 3))
		require.NoError(t, tbl.Set("B", 20))
		require.NoError(t, tbl.Set("D", 4))

		assert.ElementsMatch(t, []string{"B", "D"}, keys(tbl))
		v, err := tbl.Get("B")
		require.NoError(t, err)
		assert.Equal(t, 20, v)
		require.NoError(t, tbl.Verify(t.Context()))
	})
}

func TestLimitByAccessWithCollisions(t *testing.T) {
	tbl := collisionTable(t, 3)

	require.NoError(t, tbl.Set(1*colliding, "a"))
	require.NoError(t, tbl.Set(2*colliding, "b"))
	require.NoError(t, tbl.Set(3*colliding, "c"))
	assert.Equal(t, 3, tbl.Len())

	v, err := tbl.Get(2 * colliding)
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	require.NoError(t, tbl.Set(4, "d"))
	require.NoError(t, tbl.Set(5, "e"))
	assert.Equal(t, 3, tbl.Len())

	for key, want := range map[int]bool{1 * colliding: false, 2 * colliding: true, 3 * colliding: false} {
		ok, err := tbl.ContainsKey(key)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "key %d", key)
	}
	require.NoError(t, tbl.Verify(t.Context()))
}

func TestCollisionRemoval(t *testing.T) {
	tbl := collisionTable(t, 10)

	for i := 1; i <= 5; i++ {
		require.NoError(t, tbl.Set(i*colliding, string(rune('a'+i-1))))
	}
	for _, i := range []int{4, 2, 5, 1, 3} {
		_, ok, err := tbl.Remove(i * colliding)
		require.NoError(t, err)
		assert.True(t, ok, "remove %d", i)
	}
	assert.Equal(t, 0, tbl.Len())
	require.NoError(t, tbl.Verify(t.Context()))
}

func TestAddRemoveByKey(t *testing.T) {
	tbl, err := NewWithCapacity[int, string](Access, 1024)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, tbl.Add(i, strconv.Itoa(i)))
	}
	assert.ErrorIs(t, tbl.Add(3, "x"), lurch.ErrKeyExists)
	assert.ErrorIs(t, tbl.Add(3, "x"), lurch.ErrInvalidArgument)

	for i := 0; i < 10; i++ {
		ok, err := tbl.ContainsKey(i)
		require.NoError(t, err)
		assert.True(t, ok)

		v, err := tbl.Get(i)
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(i), v)
	}
	for i := 0; i < 10; i++ {
		_, ok, err := tbl.Remove(i)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err = tbl.Get(0)
	assert.ErrorIs(t, err, lurch.ErrNotFound)
	_, ok, err := tbl.TryGet(0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCustomKeyEquality(t *testing.T) {
	tbl, err := NewWithCapacity[string, string](Access, 1024,
		WithHasher(hashing.HasherFunc[string](func(s string) uint64 {
			return xxhash.Sum64String(strings.ToLower(s))
		})),
		WithKeyEqual(strings.EqualFold),
	)
	require.NoError(t, err)

	require.NoError(t, tbl.Set("a", "b"))
	ok, err := tbl.ContainsKey("A")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeysAndValues(t *testing.T) {
	items := sample()
	tbl, err := NewWithCapacity[int, string](Access, 1024, WithHasher(hashing.Identity[int]()))
	require.NoError(t, err)
	for _, p := range items {
		require.NoError(t, tbl.Add(p.Key, p.Value))
	}

	// Identity hashing of keys below the bucket count enumerates in key order.
	ix := 0
	for k := range tbl.Keys() {
		assert.Equal(t, items[ix].Key, k)
		ix++
	}
	assert.Equal(t, len(items), ix)

	ix = 0
	for v := range tbl.Values() {
		assert.Equal(t, items[ix].Value, v)
		ix++
	}

	pairs, err := tbl.Pairs()
	require.NoError(t, err)
	assert.Equal(t, items, pairs)

	t.Run("early stop", func(t *testing.T) {
		n := 0
		for range tbl.All() {
			n++
			if n == 3 {
				break
			}
		}
		assert.Equal(t, 3, n)
	})

	t.Run("callback may mutate", func(t *testing.T) {
		err := tbl.Range(func(k int, _ string) bool {
			_, _, err := tbl.Remove(k)
			return err == nil
		})
		require.NoError(t, err)
		assert.Equal(t, 0, tbl.Len())
	})
}

func TestAtomicAdd(t *testing.T) {
	tbl, err := NewWithCapacity[int, string](Access, 1024)
	require.NoError(t, err)

	counter := -1
	for i := 0; i < 100; i++ {
		ok, err := tbl.TryAddFunc(i, func(int) string {
			counter++
			return strconv.Itoa(counter)
		})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 100, tbl.Len())
	assert.Equal(t, 100, counter+1)

	// Existing keys never call the factory.
	ok, err := tbl.TryAddFunc(50, func(int) string { panic("factory called for existing key") })
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 100, tbl.Len())
}

func TestAtomicAddOrUpdate(t *testing.T) {
	tbl, err := NewWithCapacity[int, string](Access, 1024)
	require.NoError(t, err)

	counter := -1
	next := func() string {
		counter++
		return strconv.Itoa(counter)
	}

	for i := 0; i < 100; i++ {
		_, err := tbl.AddOrUpdateFunc(i,
			func(int) string { return next() },
			func(int, string) string { panic("update called for new key") },
		)
		require.NoError(t, err)
	}

	for i := 0; i < 100; i++ {
		ok, err := tbl.RemoveIf(i, func(_ int, v string) bool {
			n, _ := strconv.Atoi(v)
			return n&1 == 1
		})
		require.NoError(t, err)
		assert.Equal(t, i&1 == 1, ok)
	}

	for i := 0; i < 100; i++ {
		_, err := tbl.AddOrUpdateFunc(i,
			func(int) string { return next() },
			func(int, string) string { return next() },
		)
		require.NoError(t, err)
	}
	assert.Equal(t, 100, tbl.Len())
	assert.Equal(t, 200, counter+1)

	for i := 0; i < 100; i++ {
		ok, err := tbl.RemoveIf(i, func(k int, v string) bool {
			n, _ := strconv.Atoi(v)
			return n-100 == k
		})
		require.NoError(t, err)
		assert.True(t, ok, "key %d", i)
	}
	assert.Equal(t, 0, tbl.Len())
}

func TestAddOrUpdate(t *testing.T) {
	tbl, err := NewWithCapacity[int, string](Access, 1024)
	require.NoError(t, err)

	byKey := func(k int, _ string) string { return strconv.Itoa(k) }

	v, err := tbl.AddOrUpdate(1, "a", byKey)
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	v, err = tbl.AddOrUpdate(1, "a", byKey)
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	v, err = tbl.AddOrUpdateFunc(2, func(int) string { return "b" }, byKey)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	v, err = tbl.AddOrUpdateFunc(2, func(int) string { return "b" }, byKey)
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestGetOrAdd(t *testing.T) {
	tbl, err := NewWithCapacity[int, string](Access, 1024)
	require.NoError(t, err)

	v, err := tbl.GetOrAdd(1, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	v, err = tbl.GetOrAdd(1, "b")
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = tbl.GetOrAddFunc(2, func(int) string { return "b" })
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	v, err = tbl.GetOrAddFunc(2, func(int) string { return "c" })
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestTryRoutines(t *testing.T) {
	tbl, err := NewWithCapacity[int, string](Access, 1024)
	require.NoError(t, err)

	is := func(want string) func(int, string) bool {
		return func(_ int, old string) bool { return old == want }
	}
	get := func(k int) string {
		v, err := tbl.Get(k)
		require.NoError(t, err)
		return v
	}

	ok, _ := tbl.TryAdd(1, "a")
	assert.True(t, ok)
	ok, _ = tbl.TryAdd(1, "a")
	assert.False(t, ok)

	ok, _ = tbl.TryUpdate(1, "a")
	assert.True(t, ok)
	ok, _ = tbl.TryUpdate(1, "c")
	assert.True(t, ok)
	ok, _ = tbl.TryUpdateIf(1, "d", is("c"))
	assert.True(t, ok)
	ok, _ = tbl.TryUpdateIf(1, "f", is("c"))
	assert.False(t, ok)
	assert.Equal(t, "d", get(1))
	ok, _ = tbl.TryUpdateIf(1, "a", is(get(1)))
	assert.True(t, ok)
	assert.Equal(t, "a", get(1))
	ok, _ = tbl.TryUpdate(2, "b")
	assert.False(t, ok)

	v, ok, err := tbl.Remove(1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	v, ok, _ = tbl.Remove(2)
	assert.False(t, ok)
	assert.Empty(t, v)

	ok, _ = tbl.TryUpdateFunc(1, func(_ int, x string) string { return strings.ToUpper(x) })
	assert.False(t, ok)
	require.NoError(t, tbl.Set(1, "a"))
	require.NoError(t, tbl.Set(1, "b"))
	ok, _ = tbl.TryUpdateFunc(1, func(_ int, x string) string { return strings.ToUpper(x) })
	assert.True(t, ok)
	assert.Equal(t, "B", get(1))
}

func TestInitialize(t *testing.T) {
	tbl, err := NewWithCapacity[string, string](Access, 1024)
	require.NoError(t, err)

	require.NoError(t, tbl.Set("a", "b"))
	assert.Equal(t, 1, tbl.Len())

	require.NoError(t, tbl.Initialize())
	assert.Equal(t, 0, tbl.Len())
	ok, err := tbl.ContainsKey("a")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tbl.Verify(t.Context()))
}

func TestClear(t *testing.T) {
	tbl, err := New[int, int](Insertion, 1000)
	require.NoError(t, err)

	removed := 0
	tbl.Subscribe(func(lurch.Event[Pair[int, int]]) { removed++ }, lurch.Removed)

	for i := 0; i < 500; i++ {
		require.NoError(t, tbl.Set(i, i))
	}
	require.NoError(t, tbl.Clear())
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, 500, removed)
	require.NoError(t, tbl.Verify(t.Context()))
}

func TestSetLimit(t *testing.T) {
	tbl, err := New[int, int](Insertion, 10)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, tbl.Set(i, i))
	}

	require.NoError(t, tbl.SetLimit(5))
	assert.Equal(t, 10, tbl.Len(), "lowering the limit does not evict by itself")

	// Each insert evicts exactly one entry.
	require.NoError(t, tbl.Set(100, 100))
	assert.Equal(t, 10, tbl.Len())

	assert.ErrorIs(t, tbl.SetLimit(0), lurch.ErrInvalidArgument)

	unordered, err := NewWithCapacity[int, int](None, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, unordered.SetLimit(5), lurch.ErrInvalidArgument)
}

func TestDisposed(t *testing.T) {
	tbl, err := NewWithCapacity[int, string](Access, 1024)
	require.NoError(t, err)
	require.NoError(t, tbl.Set(1, "a"))

	require.NoError(t, tbl.Close())
	require.NoError(t, tbl.Close())

	checks := map[string]error{}
	checks["Set"] = tbl.Set(1, "")
	checks["Add"] = tbl.Add(2, "")
	_, checks["Get"] = tbl.Get(1)
	_, checks["ContainsKey"] = tbl.ContainsKey(1)
	_, _, checks["Remove"] = tbl.Remove(1)
	_, _, checks["Peek"] = tbl.Peek()
	_, _, checks["TryDequeue"] = tbl.TryDequeue()
	_, checks["Dequeue"] = tbl.Dequeue(t.Context())
	checks["Range"] = tbl.Range(func(int, string) bool { return true })
	checks["Clear"] = tbl.Clear()
	checks["Initialize"] = tbl.Initialize()
	checks["SetLimit"] = tbl.SetLimit(10)
	checks["Verify"] = tbl.Verify(t.Context())

	for name, err := range checks {
		assert.True(t, errors.Is(err, lurch.ErrDisposed), "%s: %v", name, err)
	}
	assert.Equal(t, 0, tbl.Len())
}

func TestMetrics(t *testing.T) {
	mc := &lurch.BasicMetricsCollector{}
	tbl, err := New[int, int](Insertion, 3, WithMetricsCollector(mc))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, tbl.Set(i, i))
	}
	require.NoError(t, tbl.Set(0, 10))
	_, _ = tbl.Get(1)
	_, _ = tbl.Get(42)
	_, _, _ = tbl.Remove(2)
	require.NoError(t, tbl.Set(3, 3))
	require.NoError(t, tbl.Set(4, 4))

	stats := mc.GetStats()
	assert.Equal(t, int64(5), stats.InsertCount)
	assert.Equal(t, int64(1), stats.UpdateCount)
	assert.Equal(t, int64(1), stats.LookupHits)
	assert.Equal(t, int64(1), stats.LookupMisses)
	assert.Equal(t, int64(1), stats.DeleteCount)
	assert.Equal(t, int64(1), stats.Evictions)
}
