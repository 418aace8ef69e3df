package contextx

import (
	"context"
)

type contextKey string

const (
	TraceIDKey   contextKey = "helix.trace_id"
	RequestIDKey contextKey = "helix.request_id"
)

// TraceIDUnknown is returned when no trace id was propagated.
const TraceIDUnknown = "untriaged"

func GetTraceID(ctx context.Context) string {
	return getString(ctx, TraceIDKey, TraceIDUnknown)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey, "")
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func getString(ctx context.Context, key contextKey, fallback string) string {
	if ctx == nil {
		return fallback
	}
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return fallback
}
