package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricInstruments caches the metric.Meter instruments a Provider creates
// lazily on first use, so callers just name a metric and record a value
// without pre-declaring instrument types.
type MetricInstruments struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	upDowns    map[string]metric.Int64UpDownCounter
	histograms map[string]metric.Float64Histogram
	mu         sync.RWMutex
}

// NewMetricInstruments returns an empty instrument cache bound to meter;
// meterName is not used.
func NewMetricInstruments(meterName string, meter metric.Meter) *MetricInstruments {
	return &MetricInstruments{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		upDowns:    make(map[string]metric.Int64UpDownCounter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// RecordCounter increments a monotonic counter, creating it on first use.
func (m *MetricInstruments) RecordCounter(ctx context.Context, name string, value int64, opts ...metric.AddOption) error {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()
	if !exists {
		m.mu.Lock()
		if counter, exists = m.counters[name]; !exists {
			var err error
			counter, err = m.meter.Int64Counter(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("create counter %s: %w", name, err)
			}
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}
	counter.Add(ctx, value, opts...)
	return nil
}

// RecordUpDownCounter records a value that can move in either direction,
// such as a queue depth.
func (m *MetricInstruments) RecordUpDownCounter(ctx context.Context, name string, value int64, opts ...metric.AddOption) error {
	m.mu.RLock()
	counter, exists := m.upDowns[name]
	m.mu.RUnlock()
	if !exists {
		m.mu.Lock()
		if counter, exists = m.upDowns[name]; !exists {
			var err error
			counter, err = m.meter.Int64UpDownCounter(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("create up-down counter %s: %w", name, err)
			}
			m.upDowns[name] = counter
		}
		m.mu.Unlock()
	}
	counter.Add(ctx, value, opts...)
	return nil
}

// RecordHistogram records a value distribution, such as a step duration.
func (m *MetricInstruments) RecordHistogram(ctx context.Context, name string, value float64, opts ...metric.RecordOption) error {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()
	if !exists {
		m.mu.Lock()
		if histogram, exists = m.histograms[name]; !exists {
			var err error
			histogram, err = m.meter.Float64Histogram(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("create histogram %s: %w", name, err)
			}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}
	histogram.Record(ctx, value, opts...)
	return nil
}

// RecordDuration records a duration in milliseconds as a histogram.
func (m *MetricInstruments) RecordDuration(ctx context.Context, name string, milliseconds float64, attrs ...attribute.KeyValue) error {
	return m.RecordHistogram(ctx, name, milliseconds, metric.WithAttributes(attrs...))
}

// Workflow lifecycle metric names, the engine's analogue of the teacher's
// agent/capability metric constants.
const (
	MetricWorkflowExecutions  = "workflow.executions"
	MetricWorkflowDuration    = "workflow.duration"
	MetricWorkflowActive      = "workflow.active"
	MetricStepExecutions      = "workflow.step.executions"
	MetricStepDuration        = "workflow.step.duration"
	MetricStepFailures        = "workflow.step.failures"
	MetricStepRetries         = "workflow.step.retries"
	MetricBreakerOpen         = "workflow.breaker.open"
	MetricBreakerRejected     = "workflow.breaker.rejected"
	MetricDLQDepth            = "workflow.dlq.depth"
	MetricDLQFallbackApplied  = "workflow.dlq.fallback_applied"
	MetricSchedulerQueueDepth = "workflow.scheduler.queue_depth"
)
