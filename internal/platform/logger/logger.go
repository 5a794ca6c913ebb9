// Package logger centralizes structured logger construction so every binary
// logs in the same shape.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a text slog.Logger writing to stdout. The level comes from the
// LOG_LEVEL environment variable (debug, info, warn, error), defaulting to info.
func New() *slog.Logger {
	return NewWithLevel(os.Getenv("LOG_LEVEL"))
}

// NewWithLevel builds a logger at the named level.
func NewWithLevel(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
