// Package memlog provides the repository's leveled structured logger, a
// thin wrapper over log/slog so commands and packages share one handler
// configuration instead of each constructing their own.
package memlog

import (
	"io"
	"log/slog"
	"os"
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// Default returns the process-wide logger. Commands that want quieter or
// noisier output call SetLevel/SetOutput before doing any work.
func Default() *slog.Logger {
	return defaultLogger
}

// SetLevel reconfigures the default logger's minimum level.
func SetLevel(level slog.Level) {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetOutput redirects the default logger's handler to w, keeping its
// current level.
func SetOutput(w io.Writer, level slog.Level) {
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// VerbosityLevel maps a -v/-vv style count to a slog.Level: 0 is Warn,
// 1 is Info, 2+ is Debug.
func VerbosityLevel(count int) slog.Level {
	switch {
	case count >= 2:
		return slog.LevelDebug
	case count == 1:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}
