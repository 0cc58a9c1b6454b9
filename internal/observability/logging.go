// Package observability carries structured logging context across daemon
// calls and change watches.
package observability

import (
	"context"
	"log/slog"
)

// LogContext holds structured logging context information.
type LogContext struct {
	Package   string
	ChangeID  string
	Operation string
	RequestID string
}

// contextKey is used for context values.
type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithPackage adds a package name to the context.
func WithPackage(ctx context.Context, name string) context.Context {
	lc := extractLogContext(ctx)
	lc.Package = name
	return context.WithValue(ctx, logContextKey, lc)
}

// WithChangeID adds a change identifier to the context.
func WithChangeID(ctx context.Context, changeID string) context.Context {
	lc := extractLogContext(ctx)
	lc.ChangeID = changeID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithOperation adds an operation verb to the context.
func WithOperation(ctx context.Context, operation string) context.Context {
	lc := extractLogContext(ctx)
	lc.Operation = operation
	return context.WithValue(ctx, logContextKey, lc)
}

// WithRequestID adds a daemon request correlation id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	lc := extractLogContext(ctx)
	lc.RequestID = requestID
	return context.WithValue(ctx, logContextKey, lc)
}

// extractLogContext retrieves or creates a LogContext from the context.
func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// getLogAttrs returns slog attributes from the context's LogContext.
func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := []slog.Attr{}

	if lc.Package != "" {
		attrs = append(attrs, slog.String("package", lc.Package))
	}
	if lc.ChangeID != "" {
		attrs = append(attrs, slog.String("change_id", lc.ChangeID))
	}
	if lc.Operation != "" {
		attrs = append(attrs, slog.String("operation", lc.Operation))
	}
	if lc.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", lc.RequestID))
	}

	return attrs
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelInfo, msg, allAttrs...)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelWarn, msg, allAttrs...)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelError, msg, allAttrs...)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelDebug, msg, allAttrs...)
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}
