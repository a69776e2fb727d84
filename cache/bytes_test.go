package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/resource"
	"github.com/hupe1980/lurch/testutil"
)

func noise(seed int64, n int) []byte {
	rng := testutil.NewRNG(seed)
	out := make([]byte, 0, n+8)
	for len(out) < n {
		out = binary.LittleEndian.AppendUint64(out, rng.Uint64())
	}
	return out[:n]
}

func TestBytesRoundTrip(t *testing.T) {
	values := map[string][]byte{
		"empty":        {},
		"tiny":         []byte("x"),
		"compressible": bytes.Repeat([]byte("lurch table "), 500),
		"random":       noise(1, 4096),
	}

	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			c, err := NewBytes[string](16, comp)
			require.NoError(t, err)
			defer c.Close()
			assert.Equal(t, comp, c.Compression())

			for k, v := range values {
				require.NoError(t, c.Set(k, v))
			}
			for k, want := range values {
				got, ok, err := c.Get(k)
				require.NoError(t, err)
				require.True(t, ok, k)
				assert.Equal(t, len(want), len(got), k)
				assert.True(t, bytes.Equal(want, got), k)
			}
		})
	}
}

func TestBytesCompressesBudget(t *testing.T) {
	value := bytes.Repeat([]byte("0123456789abcdef"), 1024) // 16 KiB

	for _, comp := range []Compression{CompressionLZ4, CompressionZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			c, err := NewBytes[int](8, comp)
			require.NoError(t, err)
			defer c.Close()

			require.NoError(t, c.Set(1, value))
			assert.Less(t, c.Stats().Bytes, int64(len(value)/4))
			assert.Less(t, c.Ratio(), 0.25)
		})
	}

	c, err := NewBytes[int](8, CompressionLZ4)
	require.NoError(t, err)
	defer c.Close()
	assert.InDelta(t, 1.0, c.Ratio(), 0)

	random := noise(2, 1024)
	require.NoError(t, c.Set(1, random))
	assert.Equal(t, int64(len(random)+blockHeaderSize), c.Stats().Bytes, "incompressible values are stored raw")
}

func TestBytesCopies(t *testing.T) {
	c, err := NewBytes[int](8, CompressionNone)
	require.NoError(t, err)
	defer c.Close()

	in := []byte("hello")
	require.NoError(t, c.Set(1, in))
	in[0] = 'j'

	out, _, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
	out[0] = 'y'

	again, _, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(again))
}

func TestBytesGetOrLoadAndInvalidate(t *testing.T) {
	rc := resource.NewController(resource.Config{MaxBackgroundWorkers: 2})
	c, err := NewBytes[int](100, CompressionZSTD, WithResourceController(rc))
	require.NoError(t, err)
	defer c.Close()

	load := func(_ context.Context, k int) ([]byte, error) {
		return bytes.Repeat([]byte{byte(k)}, 256), nil
	}
	for k := range 10 {
		v, err := c.GetOrLoad(t.Context(), k, load)
		require.NoError(t, err)
		assert.Len(t, v, 256)
	}
	v, err := c.GetOrLoad(t.Context(), 3, load)
	require.NoError(t, err)
	assert.Equal(t, byte(3), v[0])
	assert.Equal(t, int64(10), c.Stats().Loads)
	assert.Equal(t, int64(1), c.Stats().Hits)

	n, err := c.Invalidate(t.Context(), func(k int) bool { return k >= 5 })
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, c.Len())

	ok, err := c.Remove(0)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Clear())
	assert.Equal(t, int64(0), c.Stats().Bytes)
}

func TestBytesRejectsUnknownCompression(t *testing.T) {
	_, err := NewBytes[int](8, Compression(9))
	assert.ErrorIs(t, err, lurch.ErrInvalidArgument)
	assert.Equal(t, "Compression(9)", Compression(9).String())
}

func TestDecompressCorruptBlock(t *testing.T) {
	block, err := compressBlock(bytes.Repeat([]byte("ab"), 100), CompressionLZ4)
	require.NoError(t, err)

	_, err = decompressBlock(block[:4], CompressionLZ4)
	assert.ErrorIs(t, err, errShortBlock)
	_, err = decompressBlock(block[:len(block)-1], CompressionLZ4)
	assert.ErrorIs(t, err, errShortBlock)
}
