// Package telemetry wires OpenTelemetry spans and metrics onto an engine's
// lifecycle events (step start/complete/fail, workflow transitions),
// grounded on the teacher's telemetry package: an OTelProvider managing a
// tracer and meter behind one shutdown path, plus the free functions for
// attaching attributes/events to whatever span is already in a context.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "flowforge-engine"

// Provider is the engine's telemetry backend: one tracer, one meter, one
// shutdown path. Disabled (Config.Enabled == false) Providers hand out
// no-op spans and silently drop metrics, so the engine never has to branch
// on whether telemetry was configured.
type Provider struct {
	cfg            Config
	tracer         trace.Tracer
	metrics        *MetricInstruments
	traceProvider  *sdktrace.TracerProvider
	shutdownOnce   sync.Once
	mu             sync.RWMutex
	shutdown       bool
}

// NewProvider builds a Provider from cfg. An empty or disabled cfg returns
// a Provider that is safe to use but records nothing.
func NewProvider(serviceName string, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{cfg: cfg, tracer: trace.NewNoopTracerProvider().Tracer(instrumentationName)}, nil
	}
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required when enabled")
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	ctx := context.Background()
	var traceExporter sdktrace.SpanExporter
	var err error
	switch cfg.Provider {
	case "otel":
		traceExporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	default:
		traceExporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(sampleRate(cfg.SamplingRate))),
	)
	otel.SetTracerProvider(tp)

	meter := otel.Meter(instrumentationName)

	return &Provider{
		cfg:           cfg,
		tracer:        tp.Tracer(instrumentationName),
		traceProvider: tp,
		metrics:       NewMetricInstruments(instrumentationName, meter),
	}, nil
}

func sampleRate(rate float64) float64 {
	if rate <= 0 {
		return 1.0
	}
	if rate > 1 {
		return 1.0
	}
	return rate
}

// StartSpan begins a new span named name as a child of any span already in
// ctx, returning the derived context and the Span handle.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	p.mu.RLock()
	down := p.shutdown
	p.mu.RUnlock()
	if down || p.tracer == nil {
		return ctx, noOpSpan{}
	}
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordDuration records milliseconds under name, a no-op if metrics were
// never configured (Provider built with Config.Enabled == false).
func (p *Provider) RecordDuration(ctx context.Context, name string, d time.Duration) {
	if p.metrics == nil {
		return
	}
	_ = p.metrics.RecordDuration(ctx, name, float64(d.Milliseconds()))
}

// RecordCounter increments name by 1, a no-op if metrics were never
// configured.
func (p *Provider) RecordCounter(ctx context.Context, name string) {
	if p.metrics == nil {
		return
	}
	_ = p.metrics.RecordCounter(ctx, name, 1)
}

// RecordQueueDepth records the current size of a bounded resource (DLQ
// backlog, scheduler ready queue) as an up-down counter.
func (p *Provider) RecordQueueDepth(ctx context.Context, name string, depth int64) {
	if p.metrics == nil {
		return
	}
	_ = p.metrics.RecordUpDownCounter(ctx, name, depth)
}

// Metrics exposes the underlying instrument cache for callers that need
// attributes or record options RecordCounter/RecordDuration don't take.
func (p *Provider) Metrics() *MetricInstruments {
	return p.metrics
}

// Shutdown flushes and tears down the trace provider. Idempotent and
// thread-safe: a second call is a no-op.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.mu.Unlock()
		if p.traceProvider != nil {
			err = p.traceProvider.Shutdown(ctx)
		}
	})
	return err
}

// Noop returns a Provider that records nothing, used as the engine's
// zero-configuration default.
func Noop() *Provider {
	return &Provider{tracer: trace.NewNoopTracerProvider().Tracer(instrumentationName)}
}
