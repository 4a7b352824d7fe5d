// Package logger builds the structured logger the blind peer writes every
// observable event through: one record per line, JSON by default, colored
// text when a human is watching.
//
// The logger is an explicitly passed dependency. Nothing in this repository
// holds a package-level logger; components receive a *slog.Logger handle so
// they are constructible and testable without a real process.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
}

// New builds a logger writing to w with the given configuration. Unknown
// levels fall back to INFO, unknown formats to json.
func New(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = NewTextHandler(w, opts, writerSupportsColor(w))
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// NewStdout builds the process logger on standard output.
func NewStdout(cfg Config) *slog.Logger {
	return New(os.Stdout, cfg)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// writerSupportsColor reports whether w is a terminal.
func writerSupportsColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f.Fd())
}
