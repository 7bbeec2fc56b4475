package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowforge/flowforge/core"
	"github.com/flowforge/flowforge/execctx"
	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/router"
)

// StepRunner is the dispatcher's side of the contract: the scheduler owns
// readiness, concurrency, resources, and rate limiting, and hands a ready
// step to the runner for input resolution, execution, retry, and circuit
// breaking. Keeping this interface here (rather than importing a dispatcher
// package) avoids a scheduler<->dispatcher import cycle.
type StepRunner interface {
	RunStep(ctx context.Context, step *graph.Step) (map[string]interface{}, error)
}

// Driver is the event-driven replacement for the teacher's executeDAG poll
// loop: it walks the DependencyGraph's ready set, gates each step behind the
// concurrency semaphore, the step's token bucket, and the resource pool, and
// sleeps on the Notifier between rounds instead of polling.
type Driver struct {
	workflow *graph.Workflow
	dag      *graph.DependencyGraph
	execCtx  *execctx.Context
	runner   StepRunner

	notifier *Notifier
	sem      *Semaphore
	buckets  *TokenBucketRegistry
	pool     *ResourcePool
	logger   core.ComponentLogger

	byIDMu sync.RWMutex
	byID   map[string]*graph.Step

	fanOutMu         sync.Mutex
	fanOuts          map[string]*fanOutState
	instanceToFanOut map[string]string

	mu           sync.Mutex
	firstFailure error
	cancel       context.CancelFunc
}

// fanOutState tracks one in-flight parallel block's materialized instances
// while its join strategy is pending (spec §4.4).
type fanOutState struct {
	container   *graph.Step
	instanceIDs []string
	completed   map[string]bool
	failed      map[string]bool
	finalized   bool
}

// NewDriver wires a Driver for one workflow execution. The three resource
// primitives (sem, buckets, pool) are shared across executions by the
// caller (engine), so they
// enforce engine-wide, not per-execution, limits.
func NewDriver(workflow *graph.Workflow, dag *graph.DependencyGraph, ec *execctx.Context, runner StepRunner, sem *Semaphore, buckets *TokenBucketRegistry, pool *ResourcePool, logger core.ComponentLogger) *Driver {
	if logger == nil {
		logger = core.NoopLogger{}
	}
	byID := make(map[string]*graph.Step, len(workflow.Steps))
	for i := range workflow.Steps {
		byID[workflow.Steps[i].StepID] = &workflow.Steps[i]
	}
	return &Driver{
		workflow: workflow,
		dag:      dag,
		execCtx:  ec,
		runner:   runner,
		notifier: NewNotifier(),
		sem:      sem,
		buckets:  buckets,
		pool:     pool,
		logger:   logger,
		byID:     byID,
	}
}

// Run drives the DAG to completion (or to the first fail-fast failure),
// returning the first recorded step error, if any.
func (d *Driver) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	var lastGen uint64
	for {
		if runCtx.Err() != nil {
			if err := d.firstErr(); err != nil {
				return err
			}
			return ctx.Err()
		}

		ready := d.dag.Ready()
		if len(ready) == 0 {
			if d.dag.IsComplete() {
				return d.firstErr()
			}
			if !d.dag.HasRunning() {
				return core.NewError("scheduler.Run", core.KindFatal,
					fmt.Errorf("workflow %q stalled: no ready steps and none running", d.workflow.Name))
			}
			lastGen = d.notifier.Wait(lastGen, runCtx.Done())
			continue
		}

		for _, stepID := range ready {
			d.byIDMu.RLock()
			step, ok := d.byID[stepID]
			d.byIDMu.RUnlock()
			if !ok {
				// Materialized (branch or fan-out instance) but RegisterSteps
				// for it hasn't landed yet; it reappears as ready next round.
				continue
			}
			d.admit(runCtx, step)
		}

		lastGen = d.notifier.Wait(lastGen, runCtx.Done())
	}
}

// RegisterSteps adds steps already materialized onto the DependencyGraph (by
// AddSteps/AddBranchTasks) to this driver's lookup table and wakes the run
// loop so they're picked up on the next readiness pass.
func (d *Driver) RegisterSteps(steps []graph.Step) {
	d.byIDMu.Lock()
	for i := range steps {
		d.byID[steps[i].StepID] = &steps[i]
	}
	d.byIDMu.Unlock()
	d.notifier.Broadcast()
}

// admit evaluates a ready step's condition and either skips it, launches a
// parallel block's fan-out, or launches a plain step, on its own goroutine
// gated by the semaphore.
func (d *Driver) admit(ctx context.Context, step *graph.Step) {
	if step.Condition != nil {
		ok, err := execctx.RenderBool(step.Condition, d.execCtx)
		if err != nil {
			d.fail(step.StepID, err)
			return
		}
		if !ok {
			d.dag.MarkSkipped(step.StepID)
			d.notifier.Broadcast()
			return
		}
	}

	d.dag.MarkRunning(step.StepID)
	if len(step.Parallel) > 0 {
		go d.runFanOut(ctx, step)
		return
	}
	go d.runOne(ctx, step)
}

func (d *Driver) runOne(ctx context.Context, step *graph.Step) {
	defer d.notifier.Broadcast()

	if err := d.sem.Acquire(ctx); err != nil {
		d.fail(step.StepID, err)
		return
	}
	defer d.sem.Release()

	if !d.pool.TryReserve(step.Resources) {
		d.fail(step.StepID, core.NewError("scheduler.runOne", core.KindResourceExhausted,
			fmt.Errorf("insufficient resources for step %q", step.StepID)))
		return
	}
	defer d.pool.Release(step.Resources)

	stepCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	if step.ExecutorRef != "" {
		if err := d.buckets.Get(step.ExecutorRef).Acquire(stepCtx); err != nil {
			d.fail(step.StepID, err)
			return
		}
	}

	output, err := d.runner.RunStep(stepCtx, step)
	if err != nil {
		d.fail(step.StepID, err)
		return
	}

	for name, value := range output {
		d.execCtx.SetStepOutput(step.StepID, name, value)
	}
	d.dag.MarkCompleted(step.StepID)
	d.onFanOutInstanceDone(step.StepID)
}

func (d *Driver) fail(stepID string, err error) {
	d.logger.Error("step failed", map[string]interface{}{"step_id": stepID, "error": err.Error()})
	d.dag.MarkFailed(stepID)

	if d.isFanOutInstance(stepID) {
		// A JoinAny/JoinAtLeastK block tolerates some instance failures; the
		// join strategy, not fail-fast, decides whether this one matters.
		// onFanOutInstanceDone recurses into fail() for the container itself
		// (a non-instance step ID) once the join test says it does.
		d.onFanOutInstanceDone(stepID)
		return
	}

	d.mu.Lock()
	if d.firstFailure == nil {
		d.firstFailure = core.NewError("scheduler.runOne", core.KindOf(err), err)
	}
	d.mu.Unlock()

	if d.workflow.Config.FailurePolicy != graph.ContinueOnError {
		d.cancel()
	}
}

func (d *Driver) isFanOutInstance(stepID string) bool {
	d.fanOutMu.Lock()
	defer d.fanOutMu.Unlock()
	_, ok := d.instanceToFanOut[stepID]
	return ok
}

// runFanOut materializes one instance per element of step.FanOutOver times
// every step.Parallel template, registers them with the graph and this
// driver, and leaves step Running until its join strategy resolves (spec
// §4.4). The container itself never runs an executor; MarkCompleted/
// MarkFailed on it happens from onFanOutInstanceDone once the join test is
// decided.
func (d *Driver) runFanOut(ctx context.Context, step *graph.Step) {
	defer d.notifier.Broadcast()

	items, err := d.resolveFanOutItems(step)
	if err != nil {
		d.fail(step.StepID, err)
		return
	}

	if len(items) == 0 {
		empty, _ := aggregatorFor(step).Aggregate(nil)
		d.execCtx.SetStepOutput(step.StepID, "results", empty)
		d.dag.MarkCompleted(step.StepID)
		return
	}

	instances := make([]graph.Step, 0, len(items)*len(step.Parallel))
	instanceIDs := make([]string, 0, len(items)*len(step.Parallel))
	for i, item := range items {
		for ti, tmpl := range step.Parallel {
			inst := tmpl
			inst.StepID = fmt.Sprintf("%s[%d]/%d", step.StepID, i, ti)
			inst.Inputs = mergeInputs(tmpl.Inputs, map[string]*graph.ValueExpression{
				"item":  graph.Literal(item),
				"index": graph.Literal(float64(i)),
			})
			deps := make([]graph.Dependency, 0, len(tmpl.DependsOn)+len(step.DependsOn))
			deps = append(deps, tmpl.DependsOn...)
			deps = append(deps, step.DependsOn...)
			inst.DependsOn = deps
			instances = append(instances, inst)
			instanceIDs = append(instanceIDs, inst.StepID)
		}
	}

	d.fanOutMu.Lock()
	if d.fanOuts == nil {
		d.fanOuts = make(map[string]*fanOutState)
		d.instanceToFanOut = make(map[string]string)
	}
	d.fanOuts[step.StepID] = &fanOutState{
		container:   step,
		instanceIDs: instanceIDs,
		completed:   make(map[string]bool),
		failed:      make(map[string]bool),
	}
	for _, id := range instanceIDs {
		d.instanceToFanOut[id] = step.StepID
	}
	d.fanOutMu.Unlock()

	d.dag.AddSteps(instances)
	d.RegisterSteps(instances)
}

func (d *Driver) resolveFanOutItems(step *graph.Step) ([]interface{}, error) {
	v, err := execctx.Render(step.FanOutOver, d.execCtx)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, core.NewError("scheduler.runFanOut", core.KindFatal,
			fmt.Errorf("fan_out_over for step %q did not resolve to an array", step.StepID))
	}
	return arr, nil
}

func mergeInputs(base, overrides map[string]*graph.ValueExpression) map[string]*graph.ValueExpression {
	out := make(map[string]*graph.ValueExpression, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// onFanOutInstanceDone is called after every step's terminal status lands;
// it is a no-op unless stepID is a tracked fan-out instance. Once its
// container's join strategy is decided (satisfied or provably
// unsatisfiable) it finalizes or fails the container exactly once.
func (d *Driver) onFanOutInstanceDone(stepID string) {
	d.fanOutMu.Lock()
	containerID, ok := d.instanceToFanOut[stepID]
	if !ok {
		d.fanOutMu.Unlock()
		return
	}
	state := d.fanOuts[containerID]
	if state == nil || state.finalized {
		d.fanOutMu.Unlock()
		return
	}
	status, _ := d.dag.Status(stepID)
	if status == graph.NodeCompleted {
		state.completed[stepID] = true
	} else {
		state.failed[stepID] = true
	}
	satisfied, unsatisfiable := evaluateJoin(state.container, len(state.completed), len(state.failed), len(state.instanceIDs))
	finalize := satisfied
	fail := !satisfied && (unsatisfiable || len(state.completed)+len(state.failed) == len(state.instanceIDs))
	if finalize || fail {
		state.finalized = true
	}
	d.fanOutMu.Unlock()

	switch {
	case finalize:
		d.finalizeFanOut(state)
	case fail:
		d.fail(state.container.StepID, core.NewError("scheduler.runFanOut", core.KindFatal,
			fmt.Errorf("fan-out %q join strategy %q not satisfied (%d completed, %d failed of %d)",
				state.container.StepID, state.container.JoinStrategy, len(state.completed), len(state.failed), len(state.instanceIDs))))
	}
}

// evaluateJoin applies the join predicate from spec §4.4. JoinCustom has no
// predicate expression plumbed through the workflow definition, so it falls
// back to JoinAll's all-must-complete test.
func evaluateJoin(container *graph.Step, completed, failed, total int) (satisfied, unsatisfiable bool) {
	switch container.JoinStrategy {
	case graph.JoinAny:
		if completed >= 1 {
			return true, false
		}
		return false, failed == total
	case graph.JoinAtLeastK:
		k := container.JoinAtLeast
		if k <= 0 {
			k = total
		}
		if completed >= k {
			return true, false
		}
		remaining := total - completed - failed
		return false, completed+remaining < k
	default: // JoinAll, JoinCustom
		if completed == total {
			return true, false
		}
		return false, failed > 0
	}
}

// finalizeFanOut aggregates a satisfied fan-out's completed instance outputs
// and marks the container step Completed.
func (d *Driver) finalizeFanOut(state *fanOutState) {
	results := make([]interface{}, 0, len(state.instanceIDs))
	for _, id := range state.instanceIDs {
		if !state.completed[id] {
			continue
		}
		outs := d.execCtx.StepOutputs(id)
		if len(outs) == 1 {
			for _, v := range outs {
				results = append(results, v)
			}
			continue
		}
		results = append(results, outs)
	}

	aggregated, err := aggregatorFor(state.container).Aggregate(results)
	if err != nil {
		d.fail(state.container.StepID, core.NewError("scheduler.runFanOut", core.KindFatal, err))
		return
	}
	d.execCtx.SetStepOutput(state.container.StepID, "results", aggregated)
	d.dag.MarkCompleted(state.container.StepID)
	d.notifier.Broadcast()
}

// aggregatorFor selects the join-point combiner for a parallel block (spec
// §4.10). With AggregatorMap, each instance's result is keyed by its
// AggregateBy field when the result is an object holding that field,
// falling back to its fan-out index.
func aggregatorFor(container *graph.Step) router.Aggregator {
	if container.Aggregator == graph.AggregatorMap {
		by := container.AggregateBy
		return router.MapAggregator{By: func(index int, result interface{}) string {
			if by != "" {
				if m, ok := result.(map[string]interface{}); ok {
					if v, ok := m[by]; ok {
						return fmt.Sprintf("%v", v)
					}
				}
			}
			return fmt.Sprintf("%d", index)
		}}
	}
	return router.ArrayAggregator{}
}

func (d *Driver) firstErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.firstFailure
}
