package lurch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with collection-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithComponent adds a component field ("lurchtable", "treeset", ...).
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// WithOrdering adds an ordering field to the logger.
func (l *Logger) WithOrdering(ordering string) *Logger {
	return &Logger{
		Logger: l.Logger.With("ordering", ordering),
	}
}

// WithLimit adds a limit field to the logger.
func (l *Logger) WithLimit(limit int) *Logger {
	return &Logger{
		Logger: l.Logger.With("limit", limit),
	}
}

// WithGeneration adds a snapshot generation field to the logger.
func (l *Logger) WithGeneration(gen int) *Logger {
	return &Logger{
		Logger: l.Logger.With("generation", gen),
	}
}

// LogEviction logs an entry evicted because the table exceeded its limit.
func (l *Logger) LogEviction(ctx context.Context, count, limit int) {
	l.DebugContext(ctx, "entry evicted",
		"count", count,
		"limit", limit,
	)
}

// LogGrowth logs a slab growing by one page.
func (l *Logger) LogGrowth(ctx context.Context, pages, slotsPerPage int, err error) {
	if err != nil {
		l.WarnContext(ctx, "slab growth failed",
			"pages", pages,
			"slots_per_page", slotsPerPage,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "slab grown",
		"pages", pages,
		"slots_per_page", slotsPerPage,
	)
}

// LogSnapshot logs a snapshot being taken.
func (l *Logger) LogSnapshot(ctx context.Context, generation, live int) {
	l.DebugContext(ctx, "snapshot taken",
		"generation", generation,
		"live", live,
	)
}

// LogSnapshotClosed logs a snapshot release.
func (l *Logger) LogSnapshotClosed(ctx context.Context, generation, live int) {
	l.DebugContext(ctx, "snapshot closed",
		"generation", generation,
		"live", live,
	)
}

// LogReclaim logs a sweep over retired nodes after snapshots were closed.
func (l *Logger) LogReclaim(ctx context.Context, freed, pending int) {
	l.DebugContext(ctx, "retired nodes reclaimed",
		"freed", freed,
		"pending", pending,
	)
}

// LogDequeueWait logs a Dequeue caller still waiting for an entry.
func (l *Logger) LogDequeueWait(ctx context.Context, spins int) {
	l.InfoContext(ctx, "dequeue waiting for entries",
		"spins", spins,
	)
}

// LogCorruption logs an internal consistency violation right before it is raised.
func (l *Logger) LogCorruption(ctx context.Context, err error) {
	l.ErrorContext(ctx, "internal consistency violation",
		"error", err,
	)
}

// LogVerify logs the outcome of a structural verification pass.
func (l *Logger) LogVerify(ctx context.Context, checked int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "verification failed",
			"checked", checked,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "verification completed",
			"checked", checked,
		)
	}
}

// LogLoad logs a cache miss that ran the loader.
func (l *Logger) LogLoad(ctx context.Context, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "cache load failed",
			"duration", duration,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "cache loaded",
		"duration", duration,
	)
}

// LogInvalidate logs a predicate invalidation pass.
func (l *Logger) LogInvalidate(ctx context.Context, scanned, removed int) {
	l.DebugContext(ctx, "cache invalidated",
		"scanned", scanned,
		"removed", removed,
	)
}

// LogRejected logs a value the memory budget had no room for.
func (l *Logger) LogRejected(ctx context.Context, bytes int64, err error) {
	l.DebugContext(ctx, "cache value rejected",
		"bytes", bytes,
		"error", err,
	)
}
