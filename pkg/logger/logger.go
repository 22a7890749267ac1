package logger

import (
	"log/slog"
	"os"
)

// New returns a text slog.Logger writing to stderr, keeping stdout free for
// command output.
func New(service string, level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}
