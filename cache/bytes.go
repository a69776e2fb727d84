package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/lurch"
)

// Bytes is an LRU cache of byte slices stored compressed. Its memory budget,
// Stats().Bytes included, counts the stored (compressed) size.
//
// Values are copied on the way in and out; callers may reuse or modify them.
type Bytes[K comparable] struct {
	c           *Cache[K, []byte]
	compression Compression

	rawBytes    atomic.Int64
	storedBytes atomic.Int64
}

func storedLen(b []byte) int64 { return int64(len(b)) }

// NewBytes creates a compressed byte cache holding at most capacity entries.
// It sizes values by their stored length unless opts set another Sizer.
func NewBytes[K comparable](capacity int, compression Compression, opts ...Option) (*Bytes[K], error) {
	if compression > CompressionZSTD {
		return nil, fmt.Errorf("%w: unknown compression %d", lurch.ErrInvalidArgument, compression)
	}
	opts = append([]Option{WithSizer(Sizer[[]byte](storedLen))}, opts...)

	c, err := New[K, []byte](capacity, opts...)
	if err != nil {
		return nil, err
	}
	return &Bytes[K]{c: c, compression: compression}, nil
}

func (b *Bytes[K]) pack(value []byte) ([]byte, error) {
	block, err := compressBlock(value, b.compression)
	if err != nil {
		return nil, err
	}
	b.rawBytes.Add(int64(len(value)))
	b.storedBytes.Add(int64(len(block)))
	return block, nil
}

func (b *Bytes[K]) unpack(block []byte) ([]byte, error) {
	v, err := decompressBlock(block, b.compression)
	if err != nil {
		return nil, fmt.Errorf("cache: %s value: %w", b.compression, err)
	}
	return v, nil
}

// Get returns a copy of the value cached under key.
func (b *Bytes[K]) Get(key K) ([]byte, bool, error) {
	block, ok, err := b.c.Get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err := b.unpack(block)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set compresses value and caches it under key.
func (b *Bytes[K]) Set(key K, value []byte) error {
	block, err := b.pack(value)
	if err != nil {
		return err
	}
	return b.c.Set(key, block)
}

// GetOrLoad is Cache.GetOrLoad for compressed values; load sees and returns
// plain bytes.
func (b *Bytes[K]) GetOrLoad(ctx context.Context, key K, load Loader[K, []byte]) ([]byte, error) {
	block, err := b.c.GetOrLoad(ctx, key, func(ctx context.Context, k K) ([]byte, error) {
		v, err := load(ctx, k)
		if err != nil {
			return nil, err
		}
		return b.pack(v)
	})
	if err != nil {
		return nil, err
	}
	return b.unpack(block)
}

// Remove drops key and reports whether it was cached.
func (b *Bytes[K]) Remove(key K) (bool, error) {
	_, ok, err := b.c.Remove(key)
	return ok, err
}

// Invalidate removes every key for which pred returns true. See
// Cache.Invalidate.
func (b *Bytes[K]) Invalidate(ctx context.Context, pred func(key K) bool) (int, error) {
	return b.c.Invalidate(ctx, func(k K, _ []byte) bool { return pred(k) })
}

// Ratio returns stored bytes over raw bytes across every value compressed so
// far, or 1 before the first.
func (b *Bytes[K]) Ratio() float64 {
	raw := b.rawBytes.Load()
	if raw == 0 {
		return 1
	}
	return float64(b.storedBytes.Load()) / float64(raw)
}

// Compression returns the codec values are stored with.
func (b *Bytes[K]) Compression() Compression { return b.compression }

// Len returns the number of cached entries.
func (b *Bytes[K]) Len() int { return b.c.Len() }

// Stats returns the underlying cache statistics.
func (b *Bytes[K]) Stats() Stats { return b.c.Stats() }

// Clear removes every entry.
func (b *Bytes[K]) Clear() error { return b.c.Clear() }

// Close releases the cache. It must not race with other calls.
func (b *Bytes[K]) Close() error { return b.c.Close() }
