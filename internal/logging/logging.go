// Package logging holds the slog conventions shared by every component:
// snake_case operation events, error records with an "error" attribute and a
// context-carried logger for request-scoped work.
package logging

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
)

type loggerKey struct{}

// NewStructuredLogger returns a JSON slog logger writing to w at the given level.
func NewStructuredLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// WithLogger stores logger in ctx so downstream code can pick it up with FromContext.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default() when there is none.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}

// LogError records msg at error level with err attached.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	args := make([]any, 0, len(attrs)+1)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	args = append(args, attrs...)
	logger.Error(msg, args...)
}

// LogWarn records msg at warn level with err attached.
func LogWarn(logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	args := make([]any, 0, len(attrs)+1)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	args = append(args, attrs...)
	logger.Warn(msg, args...)
}

// LogOperation records a named operation at info level.
func LogOperation(logger *slog.Logger, operation string, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(operation, attrs...)
}

// LogHTTPRequest records one served HTTP request.
func LogHTTPRequest(logger *slog.Logger, method, path string, status int, durationMs float64, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", durationMs),
	}
	args = append(args, attrs...)

	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	} else if status >= 400 {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "http_request", args...)
}

// SafeCloseWithLogging closes c and logs a failure instead of returning it.
// Intended for deferred closes of response bodies and database handles.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, resource string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("resource", resource))
	}
}

// SafeRollbackWithLogging rolls back tx and logs anything other than
// sql.ErrTxDone. Meant to be deferred right after Begin.
func SafeRollbackWithLogging(tx *sql.Tx, logger *slog.Logger, operation string) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		LogError(logger, "failed to roll back transaction", err, slog.String("operation", operation))
	}
}
