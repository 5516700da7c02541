// Package observability wires OpenTelemetry tracing around the engine's
// two hot paths — the scheduler's per-task run and every HTTP request —
// using a stdout exporter, matching the pack's otel-instrumented services
// rather than hand-rolling span bookkeeping.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the engine's shared tracer. Set by Init; a no-op tracer
// otherwise, so callers never need a nil check.
var Tracer trace.Tracer = otel.Tracer("octabot")

// Init installs a stdout-exporting tracer provider as the global default.
// pretty controls whether exported spans are human-readable JSON (dev) or
// compact (anything else). Returns a shutdown func to flush on exit.
func Init(ctx context.Context, serviceName string, pretty bool) (func(context.Context) error, error) {
	opts := []stdouttrace.Option{}
	if pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("build trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	Tracer = tp.Tracer("octabot")
	return tp.Shutdown, nil
}
