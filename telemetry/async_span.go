package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartLinkedSpan starts a span linked to a trace recorded earlier, for
// work that crosses an async boundary where the original context.Context
// is gone: a step quarantined to the DLQ and later retried, or an
// execution resumed from a checkpoint on a different process. traceID and
// parentSpanID come from whatever the original execution persisted
// alongside its state; if either is empty or malformed the span is still
// created, just without the link.
func StartLinkedSpan(ctx context.Context, tracer trace.Tracer, name, traceID, parentSpanID string, attrs map[string]string) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracer == nil {
		return ctx, func() {}
	}

	var opts []trace.SpanStartOption
	if traceID != "" && parentSpanID != "" {
		tid, tidErr := trace.TraceIDFromHex(traceID)
		sid, sidErr := trace.SpanIDFromHex(parentSpanID)
		if tidErr == nil && sidErr == nil {
			parentSC := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, Remote: true})
			opts = append(opts, trace.WithLinks(trace.Link{
				SpanContext: parentSC,
				Attributes:  []attribute.KeyValue{attribute.String("link.type", "resumed_execution")},
			}))
		}
	}

	ctx, span := tracer.Start(ctx, name, opts...)
	for k, v := range attrs {
		span.SetAttributes(attribute.String(k, v))
	}
	return ctx, func() { span.End() }
}

// Tracer exposes the Provider's underlying trace.Tracer for StartLinkedSpan
// callers that need to cross an async boundary (engine checkpoint
// recovery, DLQ retry).
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}
