package app

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger builds the process logger on stdout.
//
// format "json" (default) emits one JSON object per line; "pretty" emits the
// human-oriented line format, coloured only when stdout is a terminal and
// NO_COLOR is unset; "text" is slog's logfmt handler.
func NewLogger(level, format string) *slog.Logger {
	log := newLogger(os.Stdout, level, format, stdoutIsTerminal())
	slog.SetDefault(log)
	return log
}

func newLogger(w io.Writer, level, format string, tty bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(level),
		AddSource: true,
	}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "pretty":
		color := tty && os.Getenv("NO_COLOR") == ""
		ph := newPrettyHandler(w, opts, color)
		if tty {
			ph.tty = true
			ph.fd = int(os.Stdout.Fd())
		}
		h = ph
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
