// Package logging configures log/slog for the CLI and carries the batch id
// through context so every entry of one ingestion run can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

// Setup configures the global slog logger.
//
// Level values: "debug", "info", "warn", "error" (default: "info").
// Format values: "text", "json" (default: "text").
func Setup(level, format string) {
	SetupWriter(os.Stderr, level, format)
}

func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
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

// WithBatch stores the batch id in the context.
func WithBatch(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, batchID)
}

func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext returns the default logger, tagged with batch_id when the
// context carries one.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if id := BatchID(ctx); id != "" {
		logger = logger.With("batch_id", id)
	}
	return logger
}

func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
