package resgo

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/resgo/resource"
)

// Logger wraps slog.Logger with resgo-specific context.
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

// WithOwner adds an owner field to the logger.
func (l *Logger) WithOwner(owner Owner) *Logger {
	return &Logger{
		Logger: l.Logger.With("owner", string(owner)),
	}
}

// WithID adds a handle field to the logger.
func (l *Logger) WithID(id resource.ID) *Logger {
	return &Logger{
		Logger: l.Logger.With("id", uint32(id)),
	}
}

// LogCreate logs a create or adopt operation.
func (l *Logger) LogCreate(ctx context.Context, owner Owner, id resource.ID, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create failed",
			"owner", string(owner),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "create completed",
			"owner", string(owner),
			"id", uint32(id),
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, owner Owner, id resource.ID, deleted bool) {
	if !deleted {
		l.WarnContext(ctx, "delete refused",
			"owner", string(owner),
			"id", uint32(id),
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"owner", string(owner),
			"id", uint32(id),
		)
	}
}

// LogCollect logs a garbage collection pass.
func (l *Logger) LogCollect(ctx context.Context, collected int, freed int64) {
	if collected == 0 {
		return
	}
	l.InfoContext(ctx, "garbage collected",
		"collected", collected,
		"freed_bytes", freed,
	)
}

// LogEvict logs an eviction to the cache pool.
func (l *Logger) LogEvict(ctx context.Context, owner Owner, id resource.ID, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "evict failed",
			"owner", string(owner),
			"id", uint32(id),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "evict completed",
			"owner", string(owner),
			"id", uint32(id),
			"bytes", bytes,
		)
	}
}

// LogRestore logs a restore from the cache pool.
func (l *Logger) LogRestore(ctx context.Context, owner Owner, id resource.ID, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"owner", string(owner),
			"id", uint32(id),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "restore completed",
			"owner", string(owner),
			"id", uint32(id),
		)
	}
}

// LogRecover logs cache file recoveries observed during an operation.
func (l *Logger) LogRecover(ctx context.Context, recovered, total int) {
	l.WarnContext(ctx, "cache file recovered",
		"recovered", recovered,
		"total_recoveries", total,
	)
}
