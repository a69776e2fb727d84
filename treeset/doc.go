// Package treeset implements a sorted set as a red-black tree with subtree
// sizes and O(1) snapshots.
//
// Nodes live in a paged slab and refer to each other by index. Taking a
// snapshot bumps the tree's generation; afterwards a mutation that would
// change a node an open snapshot can see either records the overwritten child
// in the node (once) or copies the node, so every snapshot keeps reading the
// exact tree it froze while the live tree moves on.
//
// # Quick Start
//
//	s := treeset.NewOrdered[int]()
//	for _, x := range []int{5, 1, 3} {
//	    if _, err := s.Add(x); err != nil {
//	        return err
//	    }
//	}
//
//	snap, _ := s.Snapshot()
//	defer snap.Close()
//
//	s.Remove(3)
//	ok, _ := snap.Contains(3) // true
//
// # Concurrency
//
// A Tree has a single mutator goroutine. Snapshots may be read and closed
// from any goroutine while the mutator keeps going; nodes that only closed
// snapshots could reach are reused by the next mutation.
//
// Live ranges and intervals are invalidated by mutation: their iterators
// yield lurch.ErrConcurrentModification.
//
// # Memory
//
// Pass WithResourceController to cap the node slab. A mutation that would
// need a page over budget fails with the controller's error and leaves the
// tree as it was.
package treeset
