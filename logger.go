package pixelsift

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with helpers for the indexing pipeline.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger backed by handler, defaulting to info-level
// text output on stderr when handler is nil.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// LogSkip logs a skipped source during bulk indexing.
func (l *Logger) LogSkip(uri string, err error) {
	l.Warn("skipping source",
		"uri", uri,
		"error", err,
	)
}

// LogIndexed logs a completed indexing run.
func (l *Logger) LogIndexed(scanned, imported, appended int) {
	l.Info("indexing completed",
		"scanned", scanned,
		"imported", imported,
		"appended", appended,
	)
}
