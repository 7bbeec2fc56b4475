// Package core provides the ambient stack shared by every other package in
// the engine: structured logging, the error taxonomy, and engine-wide
// configuration. Nothing here depends on graph, scheduler, or any other
// domain package, so core can be imported from anywhere without cycles.
package core

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the structured logging contract used throughout the engine.
// Every field map is flattened into key/value pairs by the implementation;
// callers never format strings themselves.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	DebugContext(ctx context.Context, msg string, fields map[string]interface{})
	InfoContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentLogger tags every emitted record with a fixed component name
// ("flowforge/scheduler", "flowforge/dispatcher", ...) so log aggregation
// can filter by subsystem without string-matching the message.
type ComponentLogger interface {
	Logger
	WithComponent(component string) ComponentLogger
}

// slogLogger adapts log/slog to the Logger interface. The standard library
// is the deliberate choice here (see DESIGN.md): no logging library appears
// in the teacher's dependency tree to adopt instead.
type slogLogger struct {
	base      *slog.Logger
	component string
}

// NewLogger returns the default Logger, writing structured JSON to stderr.
func NewLogger() ComponentLogger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &slogLogger{base: slog.New(h)}
}

// NewLoggerWithHandler wraps an arbitrary slog.Handler, useful for tests that
// want to capture output.
func NewLoggerWithHandler(h slog.Handler) ComponentLogger {
	return &slogLogger{base: slog.New(h)}
}

func (l *slogLogger) WithComponent(component string) ComponentLogger {
	return &slogLogger{base: l.base, component: component}
}

func (l *slogLogger) attrs(fields map[string]interface{}) []any {
	attrs := make([]any, 0, len(fields)*2+2)
	if l.component != "" {
		attrs = append(attrs, "component", l.component)
	}
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return attrs
}

func (l *slogLogger) Debug(msg string, fields map[string]interface{}) { l.base.Debug(msg, l.attrs(fields)...) }
func (l *slogLogger) Info(msg string, fields map[string]interface{})  { l.base.Info(msg, l.attrs(fields)...) }
func (l *slogLogger) Warn(msg string, fields map[string]interface{})  { l.base.Warn(msg, l.attrs(fields)...) }
func (l *slogLogger) Error(msg string, fields map[string]interface{}) { l.base.Error(msg, l.attrs(fields)...) }

func (l *slogLogger) DebugContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.base.DebugContext(ctx, msg, l.attrs(fields)...)
}
func (l *slogLogger) InfoContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.base.InfoContext(ctx, msg, l.attrs(fields)...)
}
func (l *slogLogger) WarnContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.base.WarnContext(ctx, msg, l.attrs(fields)...)
}
func (l *slogLogger) ErrorContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.base.ErrorContext(ctx, msg, l.attrs(fields)...)
}

// NoopLogger discards everything. Useful as a safe default when a caller
// constructs an engine without supplying a logger.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]interface{}) {}
func (NoopLogger) Info(string, map[string]interface{})  {}
func (NoopLogger) Warn(string, map[string]interface{})  {}
func (NoopLogger) Error(string, map[string]interface{}) {}
func (NoopLogger) DebugContext(context.Context, string, map[string]interface{}) {}
func (NoopLogger) InfoContext(context.Context, string, map[string]interface{})  {}
func (NoopLogger) WarnContext(context.Context, string, map[string]interface{})  {}
func (NoopLogger) ErrorContext(context.Context, string, map[string]interface{}) {}
func (n NoopLogger) WithComponent(string) ComponentLogger                       { return n }

var _ ComponentLogger = (*slogLogger)(nil)
var _ ComponentLogger = NoopLogger{}
