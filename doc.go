// Package lurch provides in-memory building blocks for search and indexing
// engines: a concurrent, capacity-bounded, order-aware hash table and a
// persistent, indexable red-black tree with point-in-time snapshots.
//
// The data structures live in sub-packages:
//
//   - lurchtable: concurrent hash table with lock striping, optional global
//     order (insertion, modified or access) and eviction of the oldest entry
//     once a limit is exceeded. Doubles as a concurrent FIFO/LRU queue via
//     Peek, TryDequeue and Dequeue.
//   - treeset: sorted set with O(log n) rank queries, range views,
//     priority-queue operations and O(1) read-only snapshots that stay
//     isolated from later mutations.
//   - cache: an LRU cache facade over lurchtable.
//
// This package holds what they share: error sentinels, the structured Logger,
// the MetricsCollector interface and the event Notifier.
//
// # Quick Start
//
//	t, _ := lurchtable.New[string, int](lurchtable.Access, 10_000)
//	_ = t.Set("a", 1)
//	v, err := t.Get("a")
//
//	s := treeset.NewOrdered[int]()
//	s.Add(3)
//	s.Add(1)
//	snap, _ := s.Snapshot()
//	defer snap.Close()
//	s.Add(2) // snap still sees {1, 3}
//
// # Errors
//
// Operations report expected failures (disposed collections, missing keys,
// unsupported calls, concurrent modification during iteration) as errors
// comparable with errors.Is. Internal consistency violations are raised as
// panics carrying an error marked with ErrCorrupted; see Corruption.
//
// # Observability
//
// Every collection accepts a *Logger and a MetricsCollector through its
// options. Both default to no-ops.
package lurch
