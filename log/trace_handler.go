package log

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/godamri/helix-audit/contextx"
)

// TraceHandler decorates a slog.Handler with trace correlation.
// Every record emitted inside an active span carries trace_id and
// span_id, and warn/error records are promoted onto the span itself
// so traces show where things went sideways without log diving.
type TraceHandler struct {
	inner slog.Handler
}

func NewTraceHandler(inner slog.Handler) *TraceHandler {
	return &TraceHandler{inner: inner}
}

func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		// No live span. Fall back to the propagated trace id so log
		// lines stay correlatable across service hops.
		if id := contextx.GetTraceID(ctx); id != contextx.TraceIDUnknown {
			r.AddAttrs(slog.String("trace_id", id))
		}
		return h.inner.Handle(ctx, r)
	}

	sc := span.SpanContext()
	if sc.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", sc.TraceID().String()))
	}
	if sc.HasSpanID() {
		r.AddAttrs(slog.String("span_id", sc.SpanID().String()))
	}

	switch {
	case r.Level >= slog.LevelError:
		span.RecordError(errorFromRecord(r))
		span.SetStatus(codes.Error, r.Message)
	case r.Level == slog.LevelWarn:
		span.AddEvent("log_warning", trace.WithAttributes(
			attribute.String("message", r.Message),
		))
	}

	return h.inner.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{inner: h.inner.WithGroup(name)}
}

// errorFromRecord digs the first error attribute out of the record,
// falling back to the message when callers logged without one.
func errorFromRecord(r slog.Record) error {
	var found error
	r.Attrs(func(a slog.Attr) bool {
		if a.Value.Kind() == slog.KindAny {
			if err, ok := a.Value.Any().(error); ok {
				found = err
				return false
			}
		}
		return true
	})
	if found == nil {
		return errors.New(r.Message)
	}
	return found
}
