package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/flowforge/flowforge/breaker"
	"github.com/flowforge/flowforge/core"
	"github.com/flowforge/flowforge/execctx"
	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/retry"
	"github.com/flowforge/flowforge/router"
)

// EventSink receives step lifecycle notifications; engine.EventBus
// implements it. Left as an interface here (rather than imported) so
// dispatcher does not depend on engine.
type EventSink interface {
	StepStarted(executionID, stepID string)
	StepCompleted(executionID, stepID string, outputs map[string]interface{})
	StepFailed(executionID, stepID string, err error)
}

// Dispatcher implements scheduler.StepRunner: resolve inputs, execute within
// a timeout already applied by the scheduler, retry per the step's policy,
// trip/consult a per-executor_ref circuit breaker, and bind results onto
// declared outputs.
type Dispatcher struct {
	executionID  string
	registry     *Registry
	breakers     *breaker.Registry
	retrier      *retry.Coordinator
	execCtx      *execctx.Context
	defaultRetry graph.RetryPolicy
	events       EventSink
	logger       core.ComponentLogger
	streamBroker *router.StreamBroker
}

// New builds a Dispatcher for one execution. streamBroker may be nil; a nil
// broker leaves TaskContext.Emit unset for every step (no stream consumers
// are possible for that execution).
func New(executionID string, registry *Registry, breakers *breaker.Registry, retrier *retry.Coordinator, ec *execctx.Context, defaultRetry graph.RetryPolicy, events EventSink, logger core.ComponentLogger, streamBroker *router.StreamBroker) *Dispatcher {
	if logger == nil {
		logger = core.NoopLogger{}
	}
	return &Dispatcher{
		executionID:  executionID,
		registry:     registry,
		breakers:     breakers,
		retrier:      retrier,
		execCtx:      ec,
		defaultRetry: defaultRetry,
		events:       events,
		logger:       logger,
		streamBroker: streamBroker,
	}
}

// RunStep satisfies scheduler.StepRunner.
func (d *Dispatcher) RunStep(ctx context.Context, step *graph.Step) (map[string]interface{}, error) {
	if d.events != nil {
		d.events.StepStarted(d.executionID, step.StepID)
	}

	inputs, err := d.resolveInputs(step)
	if err != nil {
		d.fail(step, err)
		return nil, err
	}

	executor, ok := d.registry.Get(step.ExecutorRef)
	if !ok {
		err := core.NewError("dispatcher.RunStep", core.KindFatal,
			fmt.Errorf("no task executor registered for executor_ref %q", step.ExecutorRef))
		d.fail(step, err)
		return nil, err
	}

	policy := d.defaultRetry
	if step.RetryPolicy != nil {
		policy = *step.RetryPolicy
	}
	cb := d.breakers.Get(step.ExecutorRef)

	var result *TaskResult
	runErr := d.retrier.Execute(ctx, policy, cb, func(ctx context.Context) error {
		tc := &TaskContext{
			ExecutionID: d.executionID,
			StepID:      step.StepID,
			ExecutorRef: step.ExecutorRef,
			Inputs:      inputs,
		}
		if step.Stream && d.streamBroker != nil {
			tc.Emit = d.emitter(step.StepID)
		}
		out, execErr := executor.Execute(ctx, tc)
		if execErr != nil {
			return translateTaskError(execErr)
		}
		result = out
		return nil
	})
	if step.Stream && d.streamBroker != nil {
		d.streamBroker.Close(step.StepID)
	}
	if runErr != nil {
		d.fail(step, runErr)
		return nil, runErr
	}

	if len(step.Transform) > 0 && result != nil {
		transformed, err := buildTransformChain(step.Transform).Apply(result.Value)
		if err != nil {
			err = core.NewError("dispatcher.RunStep", core.KindPermanentExecutor,
				fmt.Errorf("transform chain: %w", err))
			d.fail(step, err)
			return nil, err
		}
		result.Value = transformed
	}

	bound := d.bindOutputs(step, result)
	if d.events != nil {
		d.events.StepCompleted(d.executionID, step.StepID, bound)
	}
	return bound, nil
}

// emitter returns a TaskContext.Emit closure that publishes each chunk to
// stepID's subscribers via the dispatcher's StreamBroker (spec §4.10).
func (d *Dispatcher) emitter(stepID string) func(chunk interface{}) {
	index := 0
	return func(chunk interface{}) {
		d.streamBroker.Publish(context.Background(), router.Chunk{
			StepID: stepID,
			Index:  index,
			Data:   chunk,
		})
		index++
	}
}

// buildTransformChain compiles a step's declared Transform stages into a
// router.TransformChain (spec §4.10).
func buildTransformChain(stages []graph.TransformStage) *router.TransformChain {
	fns := make([]router.Transformer, 0, len(stages))
	for _, s := range stages {
		switch s.Kind {
		case graph.TransformJSONPath:
			fns = append(fns, router.JSONPathTransform(s.Path))
		}
	}
	return router.NewTransformChain(fns...)
}

func (d *Dispatcher) fail(step *graph.Step, err error) {
	d.logger.Error("step execution failed", map[string]interface{}{
		"step_id": step.StepID, "executor_ref": step.ExecutorRef, "error": err.Error(),
	})
	if d.events != nil {
		d.events.StepFailed(d.executionID, step.StepID, err)
	}
}

// resolveInputs renders every declared input expression against the live
// execution context, lazily — never at definition time (spec §4.3).
func (d *Dispatcher) resolveInputs(step *graph.Step) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(step.Inputs))
	for name, expr := range step.Inputs {
		value, err := execctx.Render(expr, d.execCtx)
		if err != nil {
			return nil, core.NewError("dispatcher.resolveInputs", core.KindTemplate, fmt.Errorf("input %q: %w", name, err))
		}
		resolved[name] = value
	}
	return resolved, nil
}

// bindOutputs applies the multi-output convention from spec §9: output 0 is
// the primary result, output 1 is executor-provided metadata, further
// outputs are populated via output_mapping (name -> JSON path into the
// primary result) or left nil.
func (d *Dispatcher) bindOutputs(step *graph.Step, result *TaskResult) map[string]interface{} {
	bound := make(map[string]interface{}, len(step.OutputDecls))
	if result == nil {
		for _, name := range step.OutputDecls {
			bound[name] = nil
		}
		return bound
	}

	var rawJSON []byte
	for i, name := range step.OutputDecls {
		switch i {
		case 0:
			bound[name] = result.Value
		case 1:
			bound[name] = result.Metadata
		default:
			path, ok := step.OutputMapping[name]
			if !ok {
				d.logger.Warn("output declared with no binding source", map[string]interface{}{
					"step_id": step.StepID, "output": name,
				})
				bound[name] = nil
				continue
			}
			if rawJSON == nil {
				rawJSON, _ = json.Marshal(result.Value)
			}
			r := gjson.GetBytes(rawJSON, path)
			if !r.Exists() {
				bound[name] = nil
				continue
			}
			bound[name] = r.Value()
		}
	}
	return bound
}

func translateTaskError(err error) error {
	te, ok := err.(*TaskError)
	if !ok {
		return core.NewError("dispatcher.RunStep", core.KindPermanentExecutor, err)
	}
	switch te.Kind() {
	case TaskErrTransient:
		return core.NewError("dispatcher.RunStep", core.KindTransientExecutor, te.Err)
	case TaskErrRateLimited:
		return core.NewError("dispatcher.RunStep", core.KindRateLimited, te.Err)
	case TaskErrTimeout:
		return core.NewError("dispatcher.RunStep", core.KindTimeout, te.Err)
	case TaskErrCancelled:
		return core.NewError("dispatcher.RunStep", core.KindCancelled, te.Err)
	case TaskErrUnauthorized, TaskErrBadRequest:
		return core.NewError("dispatcher.RunStep", core.KindPermanentExecutor, te.Err)
	default:
		return core.NewError("dispatcher.RunStep", core.KindPermanentExecutor, te.Err)
	}
}
