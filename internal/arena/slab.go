package arena

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// MemoryAcquirer is an interface for acquiring memory.
type MemoryAcquirer interface {
	AcquireMemory(ctx context.Context, amount int64) error
	ReleaseMemory(amount int64)
}

var (
	// ErrCapacityExceeded is returned when another page would push the index
	// space past MaxIndex.
	ErrCapacityExceeded = errors.New("arena: index space exhausted")
	// ErrFreed is returned by Grow after Free.
	ErrFreed = errors.New("arena: slab freed")
)

const (
	// MinShift and MaxShift bound the page size to [1<<MinShift, 1<<MaxShift] slots.
	MinShift = 4
	MaxShift = 24

	// MaxIndex is the largest addressable slot index.
	MaxIndex = math.MaxInt32

	// growTimeout bounds a blocking memory reservation when the caller's
	// context carries no deadline.
	growTimeout = 100 * time.Millisecond
)

// Stats tracks slab usage metrics.
type Stats struct {
	Pages         int    // Current: pages held
	SlotsPerPage  int    // Fixed: 1 << shift
	Allocated     int    // Current: Pages * SlotsPerPage
	Used          int    // Current: bump watermark (slots ever handed out since Reset)
	BytesReserved int64  // Current: Pages * page size in bytes
	Grows         uint64 // Historical: pages ever appended
	Generation    uint32 // Bumped on Reset and Free
}

// Option is a configuration option for Slab.
type Option func(*options)

type options struct {
	acquirer MemoryAcquirer
	onGrow   func(pages, slotsPerPage int, err error)
}

// WithMemoryAcquirer reserves every page's bytes from acquirer before the
// page is allocated and returns them on Reset/Free.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(o *options) {
		o.acquirer = acquirer
	}
}

// WithGrowHook registers fn to be called after every growth attempt.
func WithGrowHook(fn func(pages, slotsPerPage int, err error)) Option {
	return func(o *options) {
		o.onGrow = fn
	}
}

// Slab is a paged arena of T slots.
//
// At, TryBump, Allocated and Used are safe for concurrent use. Grow is safe
// for concurrent use and serialises on an internal mutex. Reset and Free must
// not run concurrently with anything else.
type Slab[T any] struct {
	shift     uint
	mask      int32
	pageBytes int64

	pages atomic.Pointer[[]*[]T]

	_    cpu.CacheLinePad
	used atomic.Int32
	_    cpu.CacheLinePad

	mu         sync.Mutex
	grows      atomic.Uint64
	generation atomic.Uint32
	opts       options
}

// NewSlab creates a Slab with 1<<shift slots per page and allocates the first
// page. Slot 0 is reserved, so the first TryBump returns 1.
func NewSlab[T any](shift uint, opts ...Option) (*Slab[T], error) {
	if shift < MinShift || shift > MaxShift {
		return nil, fmt.Errorf("arena: page shift %d outside [%d, %d]", shift, MinShift, MaxShift)
	}

	var zero T
	s := &Slab[T]{
		shift:     shift,
		mask:      int32(1)<<shift - 1,
		pageBytes: int64(unsafe.Sizeof(zero)) << shift,
	}
	for _, opt := range opts {
		opt(&s.opts)
	}

	empty := make([]*[]T, 0, 1)
	s.pages.Store(&empty)
	s.generation.Store(1)

	if err := s.Grow(context.Background(), 0); err != nil {
		return nil, err
	}
	s.used.Store(1)
	return s, nil
}

// Shift returns the page shift.
func (s *Slab[T]) Shift() uint { return s.shift }

// SlotsPerPage returns 1 << Shift().
func (s *Slab[T]) SlotsPerPage() int { return 1 << s.shift }

// At returns the slot at idx. idx must be below Allocated().
func (s *Slab[T]) At(idx int32) *T {
	dir := *s.pages.Load()
	return &(*dir[idx>>s.shift])[idx&s.mask]
}

// Pages returns the number of pages currently held.
func (s *Slab[T]) Pages() int {
	return len(*s.pages.Load())
}

// Allocated returns the number of addressable slots.
func (s *Slab[T]) Allocated() int32 {
	return int32(len(*s.pages.Load())) << s.shift //nolint:gosec // page count is bounded by MaxIndex >> shift
}

// Used returns the bump watermark: every index below it has been handed out
// at least once since the last Reset.
func (s *Slab[T]) Used() int32 {
	return s.used.Load()
}

// TryBump hands out the slot at the watermark if one is still unallocated.
func (s *Slab[T]) TryBump() (int32, bool) {
	for {
		used := s.used.Load()
		if used >= s.Allocated() {
			return 0, false
		}
		if s.used.CompareAndSwap(used, used+1) {
			return used, true
		}
	}
}

// Grow appends one page unless the slab already holds more than pagesSeen
// pages, in which case another goroutine won the race and Grow returns nil.
func (s *Slab[T]) Grow(ctx context.Context, pagesSeen int) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pages.Load()
	if p == nil {
		return ErrFreed
	}
	dir := *p
	if len(dir) > pagesSeen {
		return nil
	}

	defer func() {
		if s.opts.onGrow != nil {
			s.opts.onGrow(len(*s.pages.Load()), s.SlotsPerPage(), err)
		}
	}()

	if int64(len(dir)+1)<<s.shift > MaxIndex {
		return ErrCapacityExceeded
	}

	if s.opts.acquirer != nil {
		var cancel context.CancelFunc
		if _, ok := ctx.Deadline(); !ok {
			ctx, cancel = context.WithTimeout(ctx, growTimeout)
			defer cancel()
		}
		if err := s.opts.acquirer.AcquireMemory(ctx, s.pageBytes); err != nil {
			return err
		}
	}

	page := make([]T, 1<<s.shift)

	// Copy-on-write: readers holding the old directory keep resolving the
	// pages they already know about.
	next := make([]*[]T, len(dir)+1)
	copy(next, dir)
	next[len(dir)] = &page
	s.pages.Store(&next)
	s.grows.Add(1)

	return nil
}

// Generation returns the current generation of the slab.
func (s *Slab[T]) Generation() uint32 {
	return s.generation.Load()
}

// Reset zeroes the first page, drops the others and rewinds the watermark to 1.
func (s *Slab[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pages.Load()
	if p == nil {
		return
	}
	dir := *p

	s.generation.Add(1)

	if len(dir) > 1 && s.opts.acquirer != nil {
		s.opts.acquirer.ReleaseMemory(int64(len(dir)-1) * s.pageBytes)
	}
	if len(dir) > 0 {
		clear(*dir[0])
		next := []*[]T{dir[0]}
		s.pages.Store(&next)
	}
	s.used.Store(1)
}

// Free releases every page. The slab cannot be used afterwards.
func (s *Slab[T]) Free() {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pages.Load()
	if p == nil {
		return
	}

	if s.opts.acquirer != nil {
		s.opts.acquirer.ReleaseMemory(int64(len(*p)) * s.pageBytes)
	}

	s.generation.Add(1)
	s.pages.Store(nil)
	s.used.Store(0)
}

// Freed reports whether Free has been called.
func (s *Slab[T]) Freed() bool {
	return s.pages.Load() == nil
}

// Stats returns the current slab statistics.
func (s *Slab[T]) Stats() Stats {
	pages := 0
	if p := s.pages.Load(); p != nil {
		pages = len(*p)
	}
	return Stats{
		Pages:         pages,
		SlotsPerPage:  s.SlotsPerPage(),
		Allocated:     pages << s.shift,
		Used:          int(s.used.Load()),
		BytesReserved: int64(pages) * s.pageBytes,
		Grows:         s.grows.Load(),
		Generation:    s.generation.Load(),
	}
}

func (s *Slab[T]) String() string {
	st := s.Stats()
	return fmt.Sprintf(
		"Slab{pages: %d, slots/page: %d, used: %d/%d, reserved: %.2f KB}",
		st.Pages,
		st.SlotsPerPage,
		st.Used,
		st.Allocated,
		float64(st.BytesReserved)/1024,
	)
}
