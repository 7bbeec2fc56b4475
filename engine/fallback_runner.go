package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowforge/flowforge/core"
	"github.com/flowforge/flowforge/dlq"
	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/scheduler"
)

// fallbackRunner wraps a scheduler.StepRunner (the dispatcher) with DLQ
// fallback resolution (spec §4.9): on a fallback-eligible failure, it tries
// the step's configured Fallback before giving up; if no fallback applies,
// or the fallback itself fails, the step is quarantined to the DLQ and the
// original error is returned so the scheduler still marks the step Failed.
// A failure that is not fallback-eligible (a fatal error, such as an
// unregistered executor_ref) is quarantined without trying a fallback; a
// cancelled step is not quarantined.
type fallbackRunner struct {
	inner        scheduler.StepRunner
	resolver     *dlq.Resolver
	queue        *dlq.Queue
	workflowName string
	executionID  string
}

func newFallbackRunner(inner scheduler.StepRunner, resolver *dlq.Resolver, queue *dlq.Queue, workflowName, executionID string) *fallbackRunner {
	return &fallbackRunner{inner: inner, resolver: resolver, queue: queue, workflowName: workflowName, executionID: executionID}
}

func cacheKey(workflowName, stepID string) string {
	return fmt.Sprintf("%s/%s", workflowName, stepID)
}

// RunStep satisfies scheduler.StepRunner.
func (f *fallbackRunner) RunStep(ctx context.Context, step *graph.Step) (map[string]interface{}, error) {
	out, err := f.inner.RunStep(ctx, step)
	if err == nil {
		if step.Fallback != nil && step.Fallback.Kind == graph.FallbackCache {
			f.resolver.RecordSuccess(ctx, cacheKey(f.workflowName, step.StepID), out)
		}
		return out, nil
	}

	if !core.IsFallbackEligible(err) {
		if !core.IsCancelled(err) && !errors.Is(err, context.Canceled) {
			f.quarantine(ctx, step, err)
		}
		return nil, err
	}

	alternative := dlq.AlternativeRunner(func(ctx context.Context, executorRef string) (map[string]interface{}, error) {
		substitute := *step
		substitute.ExecutorRef = executorRef
		return f.inner.RunStep(ctx, &substitute)
	})

	resolved, applied, resolveErr := f.resolver.Resolve(ctx, step.Fallback, step.StepID, cacheKey(f.workflowName, step.StepID), err, alternative)
	if applied && resolveErr == nil {
		return resolved, nil
	}

	f.quarantine(ctx, step, err)
	return nil, err
}

func (f *fallbackRunner) quarantine(ctx context.Context, step *graph.Step, cause error) {
	if f.queue == nil {
		return
	}
	_ = f.queue.Enqueue(ctx, f.workflowName, step.StepID, f.executionID, nil, cause, 1)
}
