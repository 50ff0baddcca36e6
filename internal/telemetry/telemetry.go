// Package telemetry wires the OpenTelemetry SDK, generalizing the teacher's
// OTLP gRPC exporter setup. Every adapter call and bus operation is wrapped
// in a span carrying the gateway's own trace_id/span_id as attributes; the
// OTel-internal trace/span ids remain plumbing, never the contractual ones.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config tunes the tracer provider.
type Config struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	Version      string
}

// Init sets up OpenTelemetry tracing with an OTLP gRPC exporter, or returns
// a no-op shutdown when disabled. Callers always defer the returned
// shutdown function.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled || cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Tracer returns the gateway's named tracer off the globally registered
// provider (a no-op provider before Init, or when telemetry is disabled).
func Tracer() oteltrace.Tracer {
	return otel.Tracer("fabricgw/gateway")
}

// StartSpan opens a span named op, stamped with the gateway's own
// trace_id/span_id as attributes (§4.1: these, not OTel's internal ids, are
// the contractual identifiers). Callers defer the returned end function.
func StartSpan(ctx context.Context, op, traceID, spanID string, attrs ...attribute.KeyValue) (context.Context, func()) {
	all := append([]attribute.KeyValue{
		attribute.String("fabric.trace_id", traceID),
		attribute.String("fabric.span_id", spanID),
	}, attrs...)
	ctx, span := Tracer().Start(ctx, op, oteltrace.WithAttributes(all...))
	return ctx, func() { span.End() }
}
