package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configure the shared JSON handler. The zero value logs at
// info level to stdout without source locations.
type Options struct {
	Level     string
	Output    io.Writer
	AddSource bool
}

// NewLogger builds the logger the API server uses: JSON with source
// locations attached. slog keeps the standard library feel while still
// emitting structured logs any backend can ingest.
func NewLogger(level string) *slog.Logger {
	return New(Options{Level: level, AddSource: true})
}

// New builds a JSON logger from explicit options, for binaries that
// want a different shape than the server default.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     levelFromString(opts.Level),
		AddSource: opts.AddSource,
	})
	return slog.New(handler)
}

func levelFromString(level string) slog.Leveler {
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
