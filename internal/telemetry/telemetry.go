// Package telemetry wires go.opentelemetry.io/otel spans: one root span per
// run, one child span per layer barrier, one grandchild span per job —
// mirroring spec.md §9's "one root task per run, child task per job" async
// control-flow mapping onto OpenTelemetry's span-parenting model instead of
// a bespoke task tree.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "weavecore/internal/run"

// NewProvider constructs an in-process TracerProvider. Exporting spans to a
// backend is an external-collaborator concern (Non-goals); this package
// only establishes the span hierarchy so the shape is in place to plug an
// exporter into later.
func NewProvider() *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider()
}

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartRun opens the root span for one executor invocation.
func StartRun(ctx context.Context, movieID, runID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "run", trace.WithAttributes(
		attribute.String("movieId", movieID),
		attribute.String("runId", runID),
	))
}

// StartLayer opens a child span for one layer barrier.
func StartLayer(ctx context.Context, layerIndex, jobCount int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "layer", trace.WithAttributes(
		attribute.Int("layerIndex", layerIndex),
		attribute.Int("jobCount", jobCount),
	))
}

// StartJob opens a grandchild span for one job's lifecycle.
func StartJob(ctx context.Context, jobID, producer string, attempt int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "job", trace.WithAttributes(
		attribute.String("jobId", jobID),
		attribute.String("producer", producer),
		attribute.Int("attempt", attempt),
	))
}
