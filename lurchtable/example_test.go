package lurchtable_test

import (
	"fmt"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/lurchtable"
)

// Example shows an access-ordered table evicting its least recently used entry.
func Example() {
	t, err := lurchtable.New[string, int](lurchtable.Access, 2)
	if err != nil {
		panic(err)
	}
	defer t.Close()

	unsubscribe := t.Subscribe(func(e lurch.Event[lurchtable.Pair[string, int]]) {
		fmt.Println("evicted", e.Item.Key)
	}, lurch.Removed)
	defer unsubscribe()

	_ = t.Set("a", 1)
	_ = t.Set("b", 2)
	_, _ = t.Get("a") // "b" is now the oldest
	_ = t.Set("c", 3)

	fmt.Println(t.Len())
	// Output:
	// evicted b
	// 2
}

// Example_queue uses an insertion-ordered table as a keyed FIFO.
func Example_queue() {
	q, err := lurchtable.New[int, string](lurchtable.Insertion, lurchtable.Unbounded)
	if err != nil {
		panic(err)
	}
	defer q.Close()

	for i, job := range []string{"parse", "index", "flush"} {
		_ = q.Add(i, job)
	}
	_, _, _ = q.Remove(1)

	for {
		p, ok, err := q.TryDequeue()
		if err != nil || !ok {
			break
		}
		fmt.Println(p.Key, p.Value)
	}
	// Output:
	// 0 parse
	// 2 flush
}
