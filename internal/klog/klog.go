// Package klog is the kernel's structured logger. It mirrors gcsfuse's
// internal/logger package: a thin wrapper over the standard library's
// log/slog with a TEXT and a JSON handler and a six-level ladder (OFF,
// ERROR, WARNING, INFO, DEBUG, TRACE) mapped onto slog.Level. gcsfuse's
// own logger implementation wasn't retrieved into this pack, but its test
// suite (TestTextFormatLogs_LogLevel*, TestJSONFormatLogs_LogLevel*,
// TestSetLoggingLevel, TestInitLogFile, TestSetLogFormatToText) and its
// go.mod's sole logging-adjacent dependency (github.com/sagikazarmark/
// slog-shim, a compatibility shim over log/slog rather than a competing
// logging library) together pin down the design faithfully enough to
// reproduce here.
package klog

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Level is the six-rung ladder gcsfuse's test names enumerate.
type Level int

const (
	OFF Level = iota
	ERROR
	WARNING
	INFO
	DEBUG
	TRACE
)

// traceLevel sits one notch below slog's built-in Debug so TRACE can be
// strictly more verbose than DEBUG.
const traceLevel = slog.Level(-8)

func (l Level) slogLevel() slog.Level {
	switch l {
	case OFF:
		return slog.Level(1 << 20) // nothing is ever >= this
	case ERROR:
		return slog.LevelError
	case WARNING:
		return slog.LevelWarn
	case INFO:
		return slog.LevelInfo
	case DEBUG:
		return slog.LevelDebug
	case TRACE:
		return traceLevel
	default:
		return slog.LevelInfo
	}
}

// Format selects the handler: text (human-readable, for a console/dev
// session) or JSON (for shipping to a log aggregator).
type Format int

const (
	Text Format = iota
	JSON
)

// Logger wraps an *slog.Logger with a settable level, matching
// gcsfuse's TestSetLoggingLevel behavior of changing the level after
// construction. The format is fixed once New has chosen the handler.
type Logger struct {
	level *slog.LevelVar
	inner *slog.Logger
}

// New builds a Logger writing to w in the given format at the given
// level.
func New(w io.Writer, format Format, level Level) *Logger {
	lv := &slog.LevelVar{}
	lv.Set(level.slogLevel())

	opts := &slog.HandlerOptions{Level: lv}
	var handler slog.Handler
	if format == JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{level: lv, inner: slog.New(handler)}
}

// Default returns a text logger at INFO writing to stderr, for use before
// configuration has been loaded (cmd/kernel wires up the real one once
// config.Load has run).
func Default() *Logger {
	return New(os.Stderr, Text, INFO)
}

// SetLevel reconfigures the logger's minimum level in place.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.slogLevel())
}

func (l *Logger) Trace(msg string, args ...any) {
	l.inner.Log(context.Background(), traceLevel, msg, args...)
}
func (l *Logger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }
