// Package hashing provides the key hashers used by lurchtable.
//
// Maphash is the default and works for every comparable key. The others trade
// generality for speed or stability across processes:
//
//	Hasher           Keys        Seeded   Stable across runs
//	Maphash          comparable  random   no
//	XXHash           ~string     no       yes
//	CircleHash       integers    yes      yes
//	CircleHashString ~string     yes      yes
//	SipHash          ~string     128-bit  yes (keyed, flood resistant)
//	Identity         integers    no       yes
//
// Identity exists for tests and for keys that are already well distributed.
package hashing

import (
	"hash/maphash"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
	"github.com/fxamacker/circlehash"
)

// Hasher maps a key to a 64-bit hash code. Equal keys must hash equally.
type Hasher[K any] interface {
	Hash(key K) uint64
}

// HasherFunc adapts a function to Hasher.
type HasherFunc[K any] func(key K) uint64

// Hash implements Hasher.
func (f HasherFunc[K]) Hash(key K) uint64 { return f(key) }

// Integer is the set of integer key types.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

type maphashHasher[K comparable] struct {
	seed maphash.Seed
}

func (h maphashHasher[K]) Hash(key K) uint64 {
	return maphash.Comparable(h.seed, key)
}

// Maphash returns a hasher backed by hash/maphash with a fresh random seed.
func Maphash[K comparable]() Hasher[K] {
	return maphashHasher[K]{seed: maphash.MakeSeed()}
}

type xxHasher[K ~string] struct{}

func (xxHasher[K]) Hash(key K) uint64 {
	return xxhash.Sum64String(string(key))
}

// XXHash returns an unseeded xxHash64 hasher for string keys.
func XXHash[K ~string]() Hasher[K] {
	return xxHasher[K]{}
}

type circleHasher[K Integer] struct {
	seed uint64
}

func (h circleHasher[K]) Hash(key K) uint64 {
	return circlehash.Hash64Uint64x2(uint64(key), 0, h.seed) //nolint:gosec // bit pattern reinterpretation
}

// CircleHash returns a CircleHash64 hasher for integer keys.
func CircleHash[K Integer](seed uint64) Hasher[K] {
	return circleHasher[K]{seed: seed}
}

type circleStringHasher[K ~string] struct {
	seed uint64
}

func (h circleStringHasher[K]) Hash(key K) uint64 {
	s := string(key)
	return circlehash.Hash64(unsafe.Slice(unsafe.StringData(s), len(s)), h.seed)
}

// CircleHashString returns a CircleHash64 hasher for string keys.
func CircleHashString[K ~string](seed uint64) Hasher[K] {
	return circleStringHasher[K]{seed: seed}
}

type sipHasher[K ~string] struct {
	k0, k1 uint64
}

func (h sipHasher[K]) Hash(key K) uint64 {
	s := string(key)
	return siphash.Hash(h.k0, h.k1, unsafe.Slice(unsafe.StringData(s), len(s)))
}

// SipHash returns a keyed SipHash-2-4 hasher for string keys. Keep k0 and k1
// secret when keys come from untrusted input.
func SipHash[K ~string](k0, k1 uint64) Hasher[K] {
	return sipHasher[K]{k0: k0, k1: k1}
}

type identityHasher[K Integer] struct{}

func (identityHasher[K]) Hash(key K) uint64 {
	return uint64(key) //nolint:gosec // bit pattern reinterpretation
}

// Identity returns the key itself as its hash.
func Identity[K Integer]() Hasher[K] {
	return identityHasher[K]{}
}

// Fold31 reduces a 64-bit hash code to the non-negative 31-bit code used for
// bucket selection.
func Fold31(h uint64) int32 {
	return int32(uint32(h^h>>32) & 0x7fffffff) //nolint:gosec // masked to 31 bits
}
