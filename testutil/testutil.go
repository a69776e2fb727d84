package testutil

import (
	"math/rand"
	"slices"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// Ints returns n values in [0,keyspace), duplicates allowed.
// Locks only once per call (preferred over calling Intn in a loop).
func (r *RNG) Ints(n, keyspace int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, n)
	for i := range out {
		out[i] = r.rand.Intn(keyspace)
	}
	return out
}

// UniqueInts returns n distinct values in [0,keyspace) in random order.
// It panics if n > keyspace.
func (r *RNG) UniqueInts(n, keyspace int) []int {
	if n > keyspace {
		panic("testutil: more unique values than keyspace")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[int]struct{}, n)
	out := make([]int, 0, n)
	for len(out) < n {
		v := r.rand.Intn(keyspace)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SortedUnique returns n distinct values in [0,keyspace) in ascending order.
func (r *RNG) SortedUnique(n, keyspace int) []int {
	out := r.UniqueInts(n, keyspace)
	slices.Sort(out)
	return out
}

// Zipf returns n keys in [0,keyspace) following Zipf's law with skew s > 1:
// low keys are hot, the tail is cold. This is how cache workloads look in
// practice.
func (r *RNG) Zipf(n, keyspace int, s float64) []int {
	if keyspace <= 1 {
		return make([]int, n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	z := rand.NewZipf(r.rand, s, 1, uint64(keyspace-1)) //nolint:gosec // keyspace > 1
	out := make([]int, n)
	for i := range out {
		out[i] = int(z.Uint64()) //nolint:gosec // bounded by keyspace
	}
	return out
}

// Op is one step of a random workload.
type Op uint8

const (
	OpGet Op = iota
	OpSet
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Ops returns n operations where each is a read with probability readRatio
// and otherwise a write, one in five writes being a delete.
func (r *RNG) Ops(n int, readRatio float64) []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, n)
	for i := range out {
		switch {
		case r.rand.Float64() < readRatio:
			out[i] = OpGet
		case r.rand.Intn(5) == 0:
			out[i] = OpDelete
		default:
			out[i] = OpSet
		}
	}
	return out
}
