// Package logger provides the structured, context-aware logging interface
// used throughout this module. Call sites pass a context first so a logger
// can be extended later to pull trace/span IDs out of it without touching
// every call site.
package logger

import (
	"context"
	"log/slog"
	"os"
)

type LoggerInterface interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
	With(kv ...any) LoggerInterface
}

var _ LoggerInterface = (*Logger)(nil)

type Logger struct {
	slog *slog.Logger
}

type Option func(*options)

type options struct {
	level  slog.Level
	json   bool
	output *os.File
}

func WithLevel(level slog.Level) Option {
	return func(o *options) { o.level = level }
}

func WithJSON(json bool) Option {
	return func(o *options) { o.json = json }
}

func WithOutput(f *os.File) Option {
	return func(o *options) { o.output = f }
}

// New builds a Logger backed by log/slog. Text handler by default for
// console-first local runs; WithJSON switches to structured JSON for
// shipping to a log collector.
func New(opts ...Option) *Logger {
	o := &options{level: slog.LevelInfo, output: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	handlerOpts := &slog.HandlerOptions{Level: o.level}

	var handler slog.Handler
	if o.json {
		handler = slog.NewJSONHandler(o.output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(o.output, handlerOpts)
	}

	return &Logger{slog: slog.New(handler)}
}

func (l *Logger) Debug(ctx context.Context, msg string, kv ...any) {
	l.slog.DebugContext(ctx, msg, kv...)
}

func (l *Logger) Info(ctx context.Context, msg string, kv ...any) {
	l.slog.InfoContext(ctx, msg, kv...)
}

func (l *Logger) Warn(ctx context.Context, msg string, kv ...any) {
	l.slog.WarnContext(ctx, msg, kv...)
}

func (l *Logger) Error(ctx context.Context, msg string, kv ...any) {
	l.slog.ErrorContext(ctx, msg, kv...)
}

func (l *Logger) With(kv ...any) LoggerInterface {
	return &Logger{slog: l.slog.With(kv...)}
}

// Noop discards everything. Useful as a zero-value default so consumers
// of this module never need a nil check before logging.
func Noop() LoggerInterface {
	return New(WithOutput(devNull), WithLevel(slog.LevelError + 1))
}

var devNull = mustOpenDevNull()

func mustOpenDevNull() *os.File {
	f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return os.Stderr
	}
	return f
}
