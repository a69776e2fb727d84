package cache

import "context"

// Loader produces the value for a missing key.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Sizer reports how many bytes a cached value accounts for.
type Sizer[V any] func(value V) int64

// Stats is a point-in-time view of a cache.
type Stats struct {
	Len       int
	Capacity  int
	Hits      int64
	Misses    int64
	Evictions int64
	Loads     int64
	Bytes     int64 // accounted by the Sizer, 0 without one
}

// HitRatio returns hits / (hits + misses), or 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
