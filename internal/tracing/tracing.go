// Package tracing installs the node's global OpenTelemetry TracerProvider.
// Grounded on DMRHub's cmd/root.go initTracer, minus the OTLP exporter: this
// node has no collector endpoint configured, so spans are created and ended
// through the real SDK (sampler, resource, span lifecycle) without being
// shipped anywhere yet.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name every span in this node is
// recorded under.
const TracerName = "chatfabric-relay-node"

// NewProvider builds the resource-tagged, always-sampling TracerProvider and
// installs it as the global default, so otel.Tracer(TracerName) anywhere in
// the process picks it up.
func NewProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
		attribute.String("library.language", "go"),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the node-wide tracer, a thin wrapper so call sites don't
// repeat the TracerName literal.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
