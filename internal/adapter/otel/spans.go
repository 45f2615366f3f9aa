package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "crewd"

// StartRunSpan starts a span for a crew pipeline run.
func StartRunSpan(ctx context.Context, projectID string, dryRun bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "crew.run",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.Bool("run.dry", dryRun),
		),
	)
}

// StartOrchestrateSpan starts a span for analysis and tier optimization.
func StartOrchestrateSpan(ctx context.Context, override bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "crew.orchestrate",
		trace.WithAttributes(attribute.Bool("tier.override", override)),
	)
}

// StartBatchSpan starts a span for one model batch.
func StartBatchSpan(ctx context.Context, model string, size int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "crew.batch",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.Int("batch.size", size),
		),
	)
}

// StartLLMCallSpan starts a span for one upstream completion call.
func StartLLMCallSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "llm.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("llm.model", model)),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
