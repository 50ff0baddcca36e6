// Package trace stamps and propagates distributed-trace identifiers on
// every inbound call (C1 of the gateway core).
package trace

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fabricgw/gateway/pkg/fabric"
)

type ctxKey struct{}

// New builds a TraceContext for an inbound call. If callerTraceID is
// non-empty it is adopted as-is; a fresh span_id is always generated.
func New(callerTraceID string) fabric.TraceContext {
	traceID := callerTraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return fabric.TraceContext{
		TraceID: traceID,
		SpanID:  uuid.NewString(),
	}
}

// Child derives a new span under parent, keeping the same trace_id.
func Child(parent fabric.TraceContext) fabric.TraceContext {
	p := parent.SpanID
	return fabric.TraceContext{
		TraceID:      parent.TraceID,
		SpanID:       uuid.NewString(),
		ParentSpanID: &p,
	}
}

// WithContext attaches tc to ctx so downstream calls can retrieve it without
// threading it through every function signature explicitly.
func WithContext(ctx context.Context, tc fabric.TraceContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext retrieves the TraceContext stashed by WithContext, if any.
func FromContext(ctx context.Context) (fabric.TraceContext, bool) {
	tc, ok := ctx.Value(ctxKey{}).(fabric.TraceContext)
	return tc, ok
}

// Logger returns a zerolog.Logger enriched with trace_id/span_id fields, so
// every log line emitted while handling a call carries the trace context.
func Logger(base zerolog.Logger, tc fabric.TraceContext) zerolog.Logger {
	l := base.With().Str("trace_id", tc.TraceID).Str("span_id", tc.SpanID)
	if tc.ParentSpanID != nil {
		l = l.Str("parent_span_id", *tc.ParentSpanID)
	}
	return l.Logger()
}
