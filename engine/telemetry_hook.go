package engine

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/flowforge/telemetry"
)

// Instrumentation attaches an EventBus to a telemetry.Provider: every step
// gets a span running from StepStarted to its StepCompleted/StepFailed, and
// each terminal workflow transition (completed, failed, cancelled)
// increments the workflow executions counter; other workflow transitions
// record nothing. An
// Engine with no telemetry.Provider configured runs with telemetry.Noop(),
// so this hook is always attached, just recording nothing when disabled.
type Instrumentation struct {
	provider *telemetry.Provider

	mu      sync.Mutex
	spans   map[string]telemetry.Span
	started map[string]time.Time
}

// NewInstrumentation returns an Instrumentation bound to provider.
func NewInstrumentation(provider *telemetry.Provider) *Instrumentation {
	if provider == nil {
		provider = telemetry.Noop()
	}
	return &Instrumentation{
		provider: provider,
		spans:    make(map[string]telemetry.Span),
		started:  make(map[string]time.Time),
	}
}

// Attach subscribes this Instrumentation to bus, returning the
// SubscriptionID so a caller can Unsubscribe on engine shutdown.
func (ins *Instrumentation) Attach(bus *EventBus) SubscriptionID {
	return bus.Subscribe("", ins.handle)
}

func spanKey(executionID, stepID string) string {
	return executionID + "/" + stepID
}

func (ins *Instrumentation) handle(evt Event) {
	ctx := context.Background()
	switch evt.Kind {
	case EventStepStarted:
		_, span := ins.provider.StartSpan(ctx, "step.run")
		span.SetAttribute("execution_id", evt.ExecutionID)
		span.SetAttribute("step_id", evt.StepID)

		key := spanKey(evt.ExecutionID, evt.StepID)
		ins.mu.Lock()
		ins.spans[key] = span
		ins.started[key] = time.Now()
		ins.mu.Unlock()

		ins.provider.RecordCounter(ctx, telemetry.MetricStepExecutions)

	case EventStepCompleted, EventStepFailed:
		key := spanKey(evt.ExecutionID, evt.StepID)
		ins.mu.Lock()
		span, ok := ins.spans[key]
		startedAt := ins.started[key]
		delete(ins.spans, key)
		delete(ins.started, key)
		ins.mu.Unlock()

		if !ok {
			return
		}
		if evt.Kind == EventStepFailed {
			span.RecordError(stepError{evt.Error})
			ins.provider.RecordCounter(ctx, telemetry.MetricStepFailures)
		}
		span.End()
		if !startedAt.IsZero() {
			ins.provider.RecordDuration(ctx, telemetry.MetricStepDuration, time.Since(startedAt))
		}

	case EventWorkflowTransition:
		switch evt.Status {
		case "completed", "failed", "cancelled":
			ins.provider.RecordCounter(ctx, telemetry.MetricWorkflowExecutions)
		}
	}
}

// stepError adapts an Event's string Error field back into an error, since
// EventBus carries errors as strings to stay serialization-friendly.
type stepError struct {
	msg string
}

func (e stepError) Error() string { return e.msg }
