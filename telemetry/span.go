package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span is the minimal surface the engine needs from a tracing backend:
// attach attributes, record an error, and close the span. Kept narrow so
// callers never import go.opentelemetry.io/otel/trace directly.
type Span interface {
	SetAttribute(key string, value interface{})
	RecordError(err error)
	End()
}

// otelSpan adapts an OpenTelemetry span to Span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func (s *otelSpan) End() {
	s.span.End()
}

// noOpSpan discards everything, returned by StartSpan once a Provider has
// been shut down or when it has no tracer.
type noOpSpan struct{}

func (noOpSpan) SetAttribute(string, interface{}) {}
func (noOpSpan) RecordError(error)                {}
func (noOpSpan) End()                              {}
