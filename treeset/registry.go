package treeset

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
)

type snapEntry struct {
	gen  int32
	root ref
}

// registry tracks the generations of open snapshots in ascending order.
//
// Snapshots are registered by the mutator but may be closed from any
// goroutine; closing only marks the registry dirty and the mutator sweeps
// retired nodes the next time it runs.
type registry struct {
	mu      sync.Mutex
	entries []snapEntry
	dirty   atomic.Bool
}

func (r *registry) add(gen int32, root ref) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Generations only grow, so appending keeps the slice sorted.
	r.entries = append(r.entries, snapEntry{gen: gen, root: root})
	return len(r.entries)
}

// remove drops gen and reports the number of snapshots still open.
func (r *registry) remove(gen int32) (live int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, found := slices.BinarySearchFunc(r.entries, gen, func(e snapEntry, g int32) int {
		return cmp.Compare(e.gen, g)
	})
	if !found {
		return len(r.entries), false
	}
	r.entries = slices.Delete(r.entries, i, i+1)
	r.dirty.Store(true)
	return len(r.entries), true
}

// newest returns the generation of the newest open snapshot, or -1.
func (r *registry) newest() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return -1
	}
	return r.entries[len(r.entries)-1].gen
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// live returns a copy of the open snapshots and clears the dirty flag.
func (r *registry) live() []snapEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty.Store(false)
	return slices.Clone(r.entries)
}

// open returns a copy of the open snapshots.
func (r *registry) open() []snapEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

func (r *registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.dirty.Store(false)
}

// observed reports whether any generation in live lies in [lo, hi].
func observed(live []snapEntry, lo, hi int32) bool {
	i, _ := slices.BinarySearchFunc(live, lo, func(e snapEntry, g int32) int {
		return cmp.Compare(e.gen, g)
	})
	return i < len(live) && live[i].gen <= hi
}
