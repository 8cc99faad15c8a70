package observability

import (
	"context"
	"log/slog"

	"github.com/geocoder89/projecthub/internal/actorctx"
	"go.opentelemetry.io/otel/trace"
)

// TraceHandler stamps records with the active span and the calling actor.
type TraceHandler struct {
	next slog.Handler
}

func NewTraceHandler(next slog.Handler) *TraceHandler {
	return &TraceHandler{next: next}
}

func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		sc := trace.SpanFromContext(ctx).SpanContext()

		if sc.IsValid() {
			r.AddAttrs(
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
		if actor, ok := actorctx.UserIDFrom(ctx); ok {
			r.AddAttrs(slog.String("actor", actor))
		}
		if reqID, ok := actorctx.RequestIDFrom(ctx); ok {
			r.AddAttrs(slog.String("request_id", reqID))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{next: h.next.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{next: h.next.WithGroup(name)}
}
