// Package log provides structured, leveled logging in the key/value
// style used throughout this codebase: log.Info("message", "key", value, ...).
//
// It wraps log/slog rather than introducing a third-party logging
// dependency.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is a structured, leveled logger bound to a fixed set of context
// key/value pairs. The zero value is not usable; use Root or New.
type Logger struct {
	slog *slog.Logger
}

var root = New(os.Stderr, slog.LevelInfo)

// Root returns the package-wide default logger.
func Root() *Logger { return root }

// SetOutput replaces the root logger's sink, e.g. with a rotating
// lumberjack.Logger when file logging is configured.
func SetOutput(w io.Writer, level slog.Level) {
	root = New(w, level)
}

// New builds a Logger writing leveled, key/value formatted lines to w.
func New(w io.Writer, level slog.Level) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{slog: slog.New(h)}
}

// With returns a Logger that always includes the given key/value context.
func (l *Logger) With(ctx ...any) *Logger {
	return &Logger{slog: l.slog.With(ctx...)}
}

func (l *Logger) log(level slog.Level, msg string, ctx []any) {
	l.slog.Log(context.Background(), level, msg, ctx...)
}

// Trace logs at the most verbose level.
func (l *Logger) Trace(msg string, ctx ...any) { l.log(slog.LevelDebug-4, msg, ctx) }

// Debug logs diagnostic detail not needed in normal operation.
func (l *Logger) Debug(msg string, ctx ...any) { l.log(slog.LevelDebug, msg, ctx) }

// Info logs routine operational events.
func (l *Logger) Info(msg string, ctx ...any) { l.log(slog.LevelInfo, msg, ctx) }

// Warn logs a recoverable but noteworthy condition.
func (l *Logger) Warn(msg string, ctx ...any) { l.log(slog.LevelWarn, msg, ctx) }

// Error logs a failed operation that does not halt the process.
func (l *Logger) Error(msg string, ctx ...any) { l.log(slog.LevelError, msg, ctx) }

// Crit logs a fatal condition and terminates the process.
func (l *Logger) Crit(msg string, ctx ...any) {
	l.log(slog.LevelError+4, msg, ctx)
	os.Exit(1)
}

// Package-level convenience functions delegate to Root().

func Trace(msg string, ctx ...any) { Root().Trace(msg, ctx...) }
func Debug(msg string, ctx ...any) { Root().Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { Root().Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { Root().Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { Root().Error(msg, ctx...) }
func Crit(msg string, ctx ...any)  { Root().Crit(msg, ctx...) }
