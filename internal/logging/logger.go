// Package logging configures the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lakeforge-io/lakeforge/internal/lake"
)

var logger *slog.Logger

// Init initializes the global structured logger at the given level.
func Init(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// Logger returns the global logger instance.
func Logger() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// ForKind returns a logger annotated with the resource kind, used by
// reconcilers so every line carries its resource context.
func ForKind(kind lake.ResourceKind) *slog.Logger {
	return Logger().With("kind", string(kind))
}
