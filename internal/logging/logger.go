package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a slog logger at the provided level, tagged with service.
// Development builds log human-readable text; everything else logs JSON. If
// the level string is invalid it defaults to info.
func New(level, service string, development bool) *slog.Logger {
	return newLogger(os.Stdout, level, service, development)
}

func newLogger(w io.Writer, level, service string, development bool) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl.Level() <= slog.LevelDebug}
	var handler slog.Handler
	if development {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(handler)
	if service != "" {
		logger = logger.With(slog.String("service", service))
	}
	return logger
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
