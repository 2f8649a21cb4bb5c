// Package logger sets up the process-wide slog logger. Level and format come
// from the command line or from LOG_LEVEL and LOG_FORMAT.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// New returns a stderr logger. level is debug, info, warn or error (default
// info); format is text or json (default text).
func New(level, format string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.ToLower(format) == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

// Setup installs a logger configured from the environment as the default.
func Setup() *slog.Logger {
	return Install(New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")))
}

// Install makes l the default for this package and for slog.
func Install(l *slog.Logger) *slog.Logger {
	defaultLogger = l
	slog.SetDefault(l)
	return l
}

// L returns the default logger, setting it up on first use.
func L() *slog.Logger {
	if defaultLogger == nil {
		return Setup()
	}
	return defaultLogger
}
