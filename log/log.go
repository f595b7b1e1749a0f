// Package log provides the node core's structured logging: a process-wide
// slog root plus per-subsystem child loggers tagged with a "module"
// attribute. Subsystems hold a child obtained via Module; entry points
// reconfigure the root once at startup via Setup.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var root atomic.Pointer[slog.Logger]

func init() {
	root.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// Setup replaces the root logger with one writing logfmt-style text to w
// at the given level. Call it before constructing subsystems: children
// already handed out by Module keep the handler they were created with.
func Setup(w io.Writer, level slog.Level) {
	root.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// Module returns a child of the root logger tagged with the subsystem
// name. The result is a plain *slog.Logger; callers keep it (chain.Chain
// and syncer.Ingester hold it in a struct field) and log through it
// directly.
func Module(name string) *slog.Logger {
	return root.Load().With("module", name)
}

// Root returns the current process-wide logger.
func Root() *slog.Logger { return root.Load() }

// Debug logs msg at LevelDebug on the root logger.
func Debug(msg string, args ...any) { root.Load().Debug(msg, args...) }

// Info logs msg at LevelInfo on the root logger.
func Info(msg string, args ...any) { root.Load().Info(msg, args...) }

// Warn logs msg at LevelWarn on the root logger.
func Warn(msg string, args ...any) { root.Load().Warn(msg, args...) }

// Error logs msg at LevelError on the root logger.
func Error(msg string, args ...any) { root.Load().Error(msg, args...) }
