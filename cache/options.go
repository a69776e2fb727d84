package cache

import (
	"log/slog"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/lurchtable"
	"github.com/hupe1980/lurch/resource"
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	sizer            any
	rc               *resource.Controller
	logger           *lurch.Logger
	metricsCollector lurch.MetricsCollector
	tableOpts        []lurchtable.Option
}

// WithSizer accounts sizer(value) bytes per entry against the resource
// controller (see WithResourceController). sizer must be a Sizer[V] or a
// func(V) int64 for the cache's value type, otherwise New fails with
// lurch.ErrInvalidArgument. The bytes are returned when the entry is evicted,
// replaced or removed.
//
//	c, _ := cache.New[string, []byte](1024,
//	    cache.WithSizer(func(b []byte) int64 { return int64(len(b)) }),
//	    cache.WithResourceController(rc))
func WithSizer(sizer any) Option {
	return func(o *options) {
		o.sizer = sizer
	}
}

// WithResourceController charges the table's slab pages, and value bytes if a
// Sizer is set, against a shared memory budget.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithLogger configures structured logging.
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

// WithMetricsCollector configures operational metrics for the underlying table.
func WithMetricsCollector(mc lurch.MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithTableOptions passes options such as a hasher through to the table.
func WithTableOptions(opts ...lurchtable.Option) Option {
	return func(o *options) {
		o.tableOpts = append(o.tableOpts, opts...)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           lurch.NoopLogger(),
		metricsCollector: lurch.NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = lurch.NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = lurch.NoopMetricsCollector{}
	}
	return o
}
