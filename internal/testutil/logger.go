package testutil

import (
	"io"
	"log/slog"
)

// NewLogger returns a logger that discards all output. Tests assert on
// returned errors, never on log lines.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}
