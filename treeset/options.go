package treeset

import (
	"log/slog"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/internal/arena"
	"github.com/hupe1980/lurch/resource"
)

// DefaultPageShift gives 1024 nodes per slab page.
const DefaultPageShift = 10

type options struct {
	pageShift uint

	metricsCollector lurch.MetricsCollector
	logger           *lurch.Logger
	rc               *resource.Controller
}

// Option configures a Tree.
type Option func(*options)

// WithPageSize sets how many nodes a slab page holds. n is rounded up to a
// power of two and clamped to [16, 1<<24].
func WithPageSize(n int) Option {
	return func(o *options) {
		shift := uint(arena.MinShift)
		for shift < arena.MaxShift && 1<<shift < n {
			shift++
		}
		o.pageShift = shift
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

// WithResourceController charges slab pages against a shared memory budget.
// When the budget is exhausted, mutations that need a new page fail with the
// controller's error and leave the tree unchanged.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		pageShift:        DefaultPageShift,
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
