// Package logging wires log/slog the same way across the module.
package logging

import (
	"context"
	"io"
	"log/slog"
)

// Init installs a text logger writing to w as the default slog logger and returns it. Records at
// a level below level are dropped.
//
// Call it once, early in main.
func Init(level slog.Level, w io.Writer) *slog.Logger {
	logger := New(level, w)
	slog.SetDefault(logger)
	return logger
}

// New returns a text logger writing to w without installing it.
func New(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OkOrLog returns value and true if err is nil. Otherwise it logs err at level and returns the
// zero value and false. A nil logger means [slog.Default].
func OkOrLog[T any](logger *slog.Logger, level slog.Level, value T, err error) (T, bool) {
	if err == nil {
		return value, true
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), level, err.Error())
	var zero T
	return zero, false
}
