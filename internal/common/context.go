package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyRunID     contextKey = "run_id"
	ContextKeyPage      contextKey = "page"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithRunID adds an extraction run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}

// WithPage records the page a task is working on
func WithPage(ctx context.Context, page int) context.Context {
	return context.WithValue(ctx, ContextKeyPage, page)
}

// PageFromContext returns the page index, or -1 outside a page task
func PageFromContext(ctx context.Context) int {
	if page, ok := ctx.Value(ContextKeyPage).(int); ok {
		return page
	}
	return -1
}

// LogAttrs returns the run/page/request attributes present in ctx.
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if id := RunIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("run_id", id))
	}
	if page := PageFromContext(ctx); page >= 0 {
		attrs = append(attrs, slog.Int("page", page))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("req_id", id))
	}
	return attrs
}
