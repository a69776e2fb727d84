// Package orderlist implements the lock-free doubly linked ring that keeps a
// global order over slab entries.
//
// The ring is anchored at index 0: the anchor's Next points at the newest
// entry and its Prev at the oldest. Entries are linked at the newest end only.
// While an entry is being unlinked its own Prev and Next hold the bitwise
// complement of their targets, which every other thread reads as "busy".
//
// Link and Unlink may run concurrently with each other on distinct indices.
// Two goroutines must never link or unlink the same index at once; callers
// serialise that with their own locks.
package orderlist

import (
	"runtime"
	"sync/atomic"

	"github.com/hupe1980/lurch"
)

// Sentinel is the anchor index.
const Sentinel int32 = 0

// Links resolves the order pointers of an index.
type Links interface {
	Prev(idx int32) *atomic.Int32
	Next(idx int32) *atomic.Int32
}

// Link publishes idx as the newest entry.
func Link[L Links](l L, idx int32) error {
	l.Prev(idx).Store(0)
	l.Next(idx).Store(^int32(0))

	next := l.Next(Sentinel).Swap(idx)
	if next < 0 {
		return lurch.Corruption("order anchor holds marked link %d", next)
	}

	for !l.Prev(next).CompareAndSwap(0, idx) {
		runtime.Gosched()
	}

	l.Next(idx).Store(next)
	return nil
}

// Unlink removes idx from the ring.
func Unlink[L Links](l L, idx int32) error {
	for {
		prevRef, nextRef := l.Prev(idx), l.Next(idx)

		prev := prevRef.Load()
		for prev >= 0 && !prevRef.CompareAndSwap(prev, ^prev) {
			prev = prevRef.Load()
		}
		if prev < 0 {
			return lurch.Corruption("order entry %d already marked (prev %d)", idx, prev)
		}

		next := nextRef.Load()
		for next >= 0 && !nextRef.CompareAndSwap(next, ^next) {
			next = nextRef.Load()
		}
		if next < 0 {
			return lurch.Corruption("order entry %d already marked (next %d)", idx, next)
		}

		if l.Next(prev).CompareAndSwap(idx, next) {
			for !l.Prev(next).CompareAndSwap(idx, prev) {
				runtime.Gosched()
			}
			return nil
		}

		// A neighbour moved underneath us: drop the marks and retry.
		if !nextRef.CompareAndSwap(^next, next) {
			return lurch.Corruption("order entry %d lost its next mark", idx)
		}
		if !prevRef.CompareAndSwap(^prev, prev) {
			return lurch.Corruption("order entry %d lost its prev mark", idx)
		}
		runtime.Gosched()
	}
}

// Oldest returns the oldest linked index, or 0 when the ring is empty.
func Oldest[L Links](l L) int32 {
	return l.Prev(Sentinel).Load()
}

// Newest returns the newest linked index, or 0 when the ring is empty.
func Newest[L Links](l L) int32 {
	return l.Next(Sentinel).Load()
}

// Reset detaches everything by pointing the anchor at itself.
func Reset[L Links](l L) {
	l.Prev(Sentinel).Store(0)
	l.Next(Sentinel).Store(0)
}
