package lurchtable

import (
	"log/slog"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/resource"
)

type options struct {
	hashSize  int
	allocSize int
	lockSize  int
	hasher    any // hashing.Hasher[K], checked in New
	keyEqual  any // func(K, K) bool, checked in New

	metricsCollector lurch.MetricsCollector
	logger           *lurch.Logger
	rc               *resource.Controller
}

// Option configures a Table.
type Option func(*options)

// WithHashSize sets the bucket count hint, usually half the expected
// capacity. The actual count is the next tabled prime, at least 131.
func WithHashSize(n int) Option {
	return func(o *options) {
		o.hashSize = n
	}
}

// WithAllocSize sets how many entries a slab page holds, usually 1/16 of the
// expected capacity. It is rounded to a power of two in [128, 1<<24].
func WithAllocSize(n int) Option {
	return func(o *options) {
		o.allocSize = n
	}
}

// WithLockSize sets the lock stripe hint, usually 1/256 of the expected
// capacity. The actual count is the next tabled prime, at least 17.
func WithLockSize(n int) Option {
	return func(o *options) {
		o.lockSize = n
	}
}

// WithHasher sets the key hasher. h must implement hashing.Hasher[K] for the
// table's key type, otherwise New fails with lurch.ErrInvalidArgument.
// The default is hashing.Maphash[K]().
//
//	t, _ := lurchtable.New[string, int](lurchtable.Access, 1000,
//	    lurchtable.WithHasher(hashing.XXHash[string]()))
func WithHasher(h any) Option {
	return func(o *options) {
		o.hasher = h
	}
}

// WithKeyEqual replaces == as the key equality. eq must be a func(K, K) bool
// consistent with the hasher.
func WithKeyEqual(eq any) Option {
	return func(o *options) {
		o.keyEqual = eq
	}
}

// WithMetricsCollector configures operational metrics.
func WithMetricsCollector(mc lurch.MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging. Pass nil to disable logging.
func WithLogger(logger *lurch.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = lurch.NewTextLogger(level)
	}
}

// WithResourceController shares a memory budget and worker slots with other
// collections. Slab pages are charged against the budget; Verify borrows
// worker slots.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

func applyOptions(limit int, optFns []Option) options {
	o := options{
		hashSize:         limit >> 1,
		allocSize:        limit >> 4,
		lockSize:         limit >> 8,
		metricsCollector: lurch.NoopMetricsCollector{},
		logger:           lurch.NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = lurch.NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = lurch.NoopLogger()
	}
	return o
}
