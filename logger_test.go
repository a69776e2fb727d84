package lurch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}))
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, slog.LevelDebug).
		WithComponent("lurchtable").
		WithOrdering("access").
		WithLimit(100)

	l.LogEviction(context.Background(), 101, 100)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "entry evicted", lines[0]["msg"])
	assert.Equal(t, "DEBUG", lines[0]["level"])
	assert.Equal(t, "lurchtable", lines[0]["component"])
	assert.Equal(t, "access", lines[0]["ordering"])
	assert.InDelta(t, 100, lines[0]["limit"], 0)
	assert.InDelta(t, 101, lines[0]["count"], 0)
}

func TestLoggerLevels(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name  string
		log   func(*Logger)
		level string
		msg   string
	}{
		{"growth", func(l *Logger) { l.LogGrowth(ctx, 2, 128, nil) }, "DEBUG", "slab grown"},
		{"growth failed", func(l *Logger) { l.LogGrowth(ctx, 2, 128, boom) }, "WARN", "slab growth failed"},
		{"snapshot", func(l *Logger) { l.WithGeneration(3).LogSnapshot(ctx, 3, 1) }, "DEBUG", "snapshot taken"},
		{"snapshot closed", func(l *Logger) { l.LogSnapshotClosed(ctx, 3, 0) }, "DEBUG", "snapshot closed"},
		{"reclaim", func(l *Logger) { l.LogReclaim(ctx, 10, 2) }, "DEBUG", "retired nodes reclaimed"},
		{"dequeue wait", func(l *Logger) { l.LogDequeueWait(ctx, 1000) }, "INFO", "dequeue waiting for entries"},
		{"corruption", func(l *Logger) { l.LogCorruption(ctx, boom) }, "ERROR", "internal consistency violation"},
		{"verify", func(l *Logger) { l.LogVerify(ctx, 50, nil) }, "DEBUG", "verification completed"},
		{"verify failed", func(l *Logger) { l.LogVerify(ctx, 50, boom) }, "ERROR", "verification failed"},
		{"load", func(l *Logger) { l.LogLoad(ctx, time.Millisecond, nil) }, "DEBUG", "cache loaded"},
		{"load failed", func(l *Logger) { l.LogLoad(ctx, time.Millisecond, boom) }, "WARN", "cache load failed"},
		{"invalidate", func(l *Logger) { l.LogInvalidate(ctx, 10, 3) }, "DEBUG", "cache invalidated"},
		{"rejected", func(l *Logger) { l.LogRejected(ctx, 64, boom) }, "DEBUG", "cache value rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(jsonLogger(&buf, slog.LevelDebug))

			lines := decodeLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, tt.level, lines[0]["level"])
			assert.Equal(t, tt.msg, lines[0]["msg"])
		})
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, slog.LevelInfo)
	l.LogEviction(context.Background(), 2, 1)
	assert.Empty(t, buf.String())

	l.LogDequeueWait(context.Background(), 1)
	assert.NotEmpty(t, buf.String())
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
	l.LogCorruption(context.Background(), errors.New("ignored"))
}
