// Package logging provides structured logging configuration using log/slog.
//
// Request handlers get loggers carrying chi's request id; background job
// handlers get loggers carrying the job id, type and restaurant. Both are
// recovered from the context with FromContext so code shared by the HTTP
// path and the worker path logs with whichever identity is present.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type loggerKey struct{}

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w. Tests use it with a buffer.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext returns the logger stored in ctx by WithLogger, or the
// default logger. A chi request id in ctx is always attached.
func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	if !ok {
		logger = slog.Default()
	}

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithFields returns a logger with additional structured fields.
//
//	importLogger := logging.WithFields(ctx, "restaurant_id", id, "rows", len(rows))
//	importLogger.Info("import accepted")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// ForJob returns a context whose logger identifies a background job, and
// that logger.
func ForJob(ctx context.Context, jobID, jobType, restaurantID string) (context.Context, *slog.Logger) {
	logger := FromContext(ctx).With(
		"job_id", jobID,
		"job_type", jobType,
		"restaurant_id", restaurantID,
	)
	return WithLogger(ctx, logger), logger
}
