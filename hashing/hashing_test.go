package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type point struct{ x, y int }

func TestHashersDeterministic(t *testing.T) {
	t.Run("maphash", func(t *testing.T) {
		h := Maphash[point]()
		assert.Equal(t, h.Hash(point{1, 2}), h.Hash(point{1, 2}))
		assert.NotEqual(t, h.Hash(point{1, 2}), h.Hash(point{2, 1}))
	})

	t.Run("xxhash", func(t *testing.T) {
		h := XXHash[string]()
		assert.Equal(t, h.Hash("lurch"), h.Hash("lurch"))
		assert.NotEqual(t, h.Hash("lurch"), h.Hash("lurcH"))
		// Unseeded: independent instances agree.
		assert.Equal(t, h.Hash("abc"), XXHash[string]().Hash("abc"))
	})

	t.Run("circlehash", func(t *testing.T) {
		h := CircleHash[int](42)
		assert.Equal(t, h.Hash(7), h.Hash(7))
		assert.NotEqual(t, h.Hash(7), h.Hash(8))
		assert.NotEqual(t, h.Hash(7), CircleHash[int](43).Hash(7))
	})

	t.Run("circlehash string", func(t *testing.T) {
		h := CircleHashString[string](1)
		assert.Equal(t, h.Hash("k"), h.Hash("k"))
		assert.NotEqual(t, h.Hash("k"), h.Hash("j"))
	})

	t.Run("siphash", func(t *testing.T) {
		h := SipHash[string](1, 2)
		assert.Equal(t, h.Hash("key"), h.Hash("key"))
		assert.NotEqual(t, h.Hash("key"), SipHash[string](2, 1).Hash("key"))
		assert.Equal(t, h.Hash(""), h.Hash(""))
	})

	t.Run("identity", func(t *testing.T) {
		h := Identity[int32]()
		assert.Equal(t, uint64(12), h.Hash(12))
	})

	t.Run("func", func(t *testing.T) {
		h := HasherFunc[string](func(s string) uint64 { return uint64(len(s)) })
		assert.Equal(t, uint64(3), h.Hash("abc"))
	})
}

type name string

func TestNamedStringTypes(t *testing.T) {
	assert.Equal(t, XXHash[string]().Hash("bob"), XXHash[name]().Hash(name("bob")))
	assert.Equal(t, SipHash[string](3, 4).Hash("bob"), SipHash[name](3, 4).Hash("bob"))
}

func TestFold31(t *testing.T) {
	assert.Equal(t, int32(5), Fold31(5))
	assert.GreaterOrEqual(t, Fold31(^uint64(0)>>1), int32(0))
	for _, h := range []uint64{0, 1, 1 << 31, 1 << 63, ^uint64(0)} {
		assert.GreaterOrEqual(t, Fold31(h), int32(0))
	}
}
