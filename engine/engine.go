package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/flowforge/breaker"
	"github.com/flowforge/flowforge/core"
	"github.com/flowforge/flowforge/dispatcher"
	"github.com/flowforge/flowforge/dlq"
	"github.com/flowforge/flowforge/execctx"
	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/persistence"
	"github.com/flowforge/flowforge/retry"
	"github.com/flowforge/flowforge/router"
	"github.com/flowforge/flowforge/scheduler"
	"github.com/flowforge/flowforge/telemetry"
)

// Engine is the Engine API from spec §6.4: Submit, Status, Cancel,
// SubscribeEvents, Validate, plus Pause/Resume for the Paused lifecycle
// state (spec §9's decided "external command only, no auto-resume timer").
// Grounded on orchestration/interfaces.go's Orchestrator, generalized from
// one-shot natural-language routing to a long-running, checkpointed DAG
// execution.
type Engine struct {
	cfg    core.EngineConfig
	store  persistence.StateStore
	ckpt   *persistence.Checkpointer
	logger core.ComponentLogger

	executors *dispatcher.Registry
	breakers  *breaker.Registry
	retrier   *retry.Coordinator

	sem     *scheduler.Semaphore
	buckets *scheduler.TokenBucketRegistry
	pool    *scheduler.ResourcePool

	events *EventBus
	debug  DebugStore

	dlqQueue *dlq.Queue
	fallback *dlq.Resolver

	instrumentation *Instrumentation

	mu      sync.Mutex
	running map[string]*runningExecution
}

type runningExecution struct {
	cancel   context.CancelFunc
	workflow *graph.Workflow
	dag      *graph.DependencyGraph
	execCtx  *execctx.Context
	paused   int32 // set via atomic before cancel(), so run() leaves the Paused status Pause() already wrote
}

// Config bundles the collaborators Submit needs beyond core.EngineConfig.
// Any nil field gets a safe in-memory/noop default, so a caller can start an
// Engine with nothing but a StateStore for tests.
type Config struct {
	EngineConfig core.EngineConfig
	Store        persistence.StateStore
	Executors    *dispatcher.Registry
	BreakerParams breaker.Params
	CacheStore   dlq.CacheStore
	CustomHandlers *dlq.CustomHandlerRegistry
	DLQStore     dlq.Store
	DebugStore   DebugStore
	Logger       core.ComponentLogger
	Telemetry    *telemetry.Provider
	ResourceCPU    float64
	ResourceMemory int64
	ResourceGPU    int
	RateLimitCapacity   float64
	RateLimitRefillRate float64
}

// New builds an Engine ready to accept Submit calls.
func New(cfg Config) *Engine {
	if cfg.Store == nil {
		cfg.Store = persistence.NewMemoryStore()
	}
	if cfg.Executors == nil {
		cfg.Executors = dispatcher.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NoopLogger{}
	}
	if cfg.DebugStore == nil {
		if cfg.EngineConfig.ExecutionDebugStoreEnabled {
			cfg.DebugStore = NewMemoryDebugStore()
		} else {
			cfg.DebugStore = NoopDebugStore{}
		}
	}
	if cfg.DLQStore == nil {
		cfg.DLQStore = dlq.NewMemoryStore()
	}
	maxParallel := cfg.EngineConfig.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 16
	}
	rateCapacity := cfg.RateLimitCapacity
	if rateCapacity <= 0 {
		rateCapacity = 10
	}
	rateRefill := cfg.RateLimitRefillRate
	if rateRefill <= 0 {
		rateRefill = 10
	}

	e := &Engine{
		cfg:       cfg.EngineConfig,
		store:     cfg.Store,
		ckpt:      persistence.NewCheckpointer(cfg.Store, cfg.EngineConfig.CheckpointRetainN),
		logger:    cfg.Logger,
		executors: cfg.Executors,
		breakers:  breaker.NewRegistry(cfg.BreakerParams),
		retrier:   retry.New(cfg.Logger),
		sem:       scheduler.NewSemaphore(maxParallel),
		buckets:   scheduler.NewTokenBucketRegistry(rateCapacity, rateRefill),
		pool:      scheduler.NewResourcePool(cfg.ResourceCPU, cfg.ResourceMemory, cfg.ResourceGPU),
		events:    NewEventBus(),
		debug:     cfg.DebugStore,
		dlqQueue:  dlq.NewQueue(cfg.DLQStore),
		fallback:  dlq.NewResolver(cfg.CacheStore, cfg.CustomHandlers),
		running:   make(map[string]*runningExecution),
	}
	e.instrumentation = NewInstrumentation(cfg.Telemetry)
	e.instrumentation.Attach(e.events)
	return e
}

// RegisterExecutor wires a TaskExecutor under executor_ref, delegating to
// the underlying dispatcher.Registry (spec §4.5).
func (e *Engine) RegisterExecutor(executorRef string, exec dispatcher.TaskExecutor) {
	e.executors.Register(executorRef, exec)
}

// Validate runs the full validator pass over a workflow (spec §6.4).
func (e *Engine) Validate(w *graph.Workflow) error {
	return graph.Validate(w)
}

// Submit validates, persists, and launches a new execution, returning its
// id immediately; the DAG runs asynchronously (spec §6.4).
func (e *Engine) Submit(ctx context.Context, w *graph.Workflow, inputs map[string]interface{}, triggerSource string) (string, error) {
	if err := graph.Validate(w); err != nil {
		return "", err
	}

	executionID := uuid.NewString()
	dag := graph.Build(w.Steps)
	ec := execctx.New(executionID)
	for name, value := range inputs {
		ec.SetInput(name, value)
	}
	ec.SetMetadata("trigger_source", triggerSource)
	ec.SetMetadata("workflow_name", w.Name)

	steps := make(map[string]*persistence.StepState, len(w.Steps))
	for _, s := range w.Steps {
		steps[s.StepID] = &persistence.StepState{StepID: s.StepID, Status: persistence.StepPending}
	}
	now := time.Now()
	state := &persistence.ExecutionState{
		ExecutionID:  executionID,
		WorkflowName: w.Name,
		Status:       persistence.WorkflowPending,
		Inputs:       inputs,
		Steps:        steps,
		StartedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.SaveExecution(ctx, state); err != nil {
		return "", err
	}
	if _, err := e.store.AppendWAL(ctx, executionID, persistence.WALWorkflowStarted, state); err != nil {
		return "", err
	}

	state.Status = persistence.WorkflowRunning
	state.UpdatedAt = time.Now()
	if err := e.store.SaveExecution(ctx, state); err != nil {
		return "", err
	}
	e.events.WorkflowTransition(executionID, string(persistence.WorkflowRunning))

	defaultRetry := graph.DefaultRetryPolicy()
	if w.Config.DefaultRetry != nil {
		defaultRetry = *w.Config.DefaultRetry
	}

	streamBroker := router.NewStreamBroker()
	disp := dispatcher.New(executionID, e.executors, e.breakers, e.retrier, ec, defaultRetry, e.events, e.logger, streamBroker)
	runner := newFallbackRunner(disp, e.fallback, e.dlqQueue, w.Name, executionID)
	driver := scheduler.NewDriver(w, dag, ec, runner, e.sem, e.buckets, e.pool, e.logger)

	runCtx, cancel := context.WithCancel(ctx)
	if w.Config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, w.Config.Timeout)
	}

	re := &runningExecution{cancel: cancel, workflow: w, dag: dag, execCtx: ec}
	e.mu.Lock()
	e.running[executionID] = re
	e.mu.Unlock()

	unsubscribe := e.events.Subscribe(executionID, func(evt Event) {
		if evt.Kind != EventStepCompleted && evt.Kind != EventStepFailed {
			return
		}
		if evt.Kind == EventStepCompleted {
			e.evaluateBranches(w, dag, driver, ec, evt.StepID)
		}
		e.checkpoint(context.Background(), executionID, w.Name, dag, ec)
	})

	go e.run(runCtx, executionID, w, re, driver, state, unsubscribe)

	return executionID, nil
}

// run drives the DAG to completion and records the terminal state. It is
// the async body Submit launches. If re.paused was set before the run
// context was cancelled, the Paused status Pause() already persisted is
// left alone rather than overwritten with Cancelled.
func (e *Engine) run(ctx context.Context, executionID string, w *graph.Workflow, re *runningExecution, driver *scheduler.Driver, state *persistence.ExecutionState, unsubscribe SubscriptionID) {
	dag, ec := re.dag, re.execCtx
	defer func() {
		e.mu.Lock()
		delete(e.running, executionID)
		e.mu.Unlock()
		e.events.Unsubscribe(unsubscribe)
	}()

	runErr := driver.Run(ctx)

	if atomic.LoadInt32(&re.paused) == 1 {
		return
	}

	now := time.Now()
	state.UpdatedAt = now
	state.CompletedAt = &now
	switch {
	case runErr == nil && !dag.AnyFailed():
		state.Status = persistence.WorkflowCompleted
	case core.IsCancelled(runErr):
		state.Status = persistence.WorkflowCancelled
	case runErr != nil:
		state.Status = persistence.WorkflowFailed
		state.Error = runErr.Error()
	case w.Config.FailurePolicy == graph.ContinueOnError && dag.AnyFailed():
		state.Status = persistence.WorkflowFailed
	default:
		state.Status = persistence.WorkflowCompleted
	}

	for _, stepID := range dag.StepIDs() {
		status, ok := dag.Status(stepID)
		if !ok {
			continue
		}
		if st, ok := state.Steps[stepID]; ok {
			st.Status = nodeStatusToStepStatus(status)
		}
	}

	_ = e.store.SaveExecution(ctx, state)
	_, _ = e.store.AppendWAL(ctx, executionID, persistence.WALWorkflowTerminated, state)
	e.events.WorkflowTransition(executionID, string(state.Status))

	_ = e.debug.Store(ctx, &DebugRecord{
		ExecutionID:  executionID,
		WorkflowName: w.Name,
		Inputs:       state.Inputs,
		StepOutputs:  snapshotStepOutputs(dag, ec),
		Status:       string(state.Status),
		Error:        state.Error,
		CreatedAt:    state.StartedAt,
	})
}

// evaluateBranches checks every branch controlled by completedStepID and, for
// each whose condition now evaluates true, materializes its tasks onto the
// live graph and registers them with driver (spec §4.4/§9: branches are not
// pre-materialized, they appear once their controller completes).
func (e *Engine) evaluateBranches(w *graph.Workflow, dag *graph.DependencyGraph, driver *scheduler.Driver, ec *execctx.Context, completedStepID string) {
	for i := range w.Branches {
		b := &w.Branches[i]
		if b.Controller != completedStepID {
			continue
		}
		ok, err := execctx.RenderBool(b.Condition, ec)
		if err != nil {
			e.logger.Warn("branch condition evaluation failed", map[string]interface{}{
				"controller": b.Controller, "error": err.Error(),
			})
			continue
		}
		if !ok {
			continue
		}
		tasks := make([]graph.Step, len(b.Tasks))
		copy(tasks, b.Tasks)
		dag.AddBranchTasks(b.Controller, tasks)
		driver.RegisterSteps(tasks)
	}
}

func snapshotStepOutputs(dag *graph.DependencyGraph, ec *execctx.Context) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{})
	for _, stepID := range dag.StepIDs() {
		if outputs := ec.StepOutputs(stepID); outputs != nil {
			out[stepID] = outputs
		}
	}
	return out
}

func nodeStatusToStepStatus(status graph.NodeStatus) persistence.StepStatus {
	switch status {
	case graph.NodeCompleted:
		return persistence.StepCompleted
	case graph.NodeFailed:
		return persistence.StepFailed
	case graph.NodeSkipped:
		return persistence.StepSkipped
	case graph.NodeCancelled:
		return persistence.StepCancelled
	case graph.NodeRunning:
		return persistence.StepRunning
	default:
		return persistence.StepPending
	}
}

// checkpoint snapshots the current execution+context state, triggered after
// every step completion (spec §4.8).
func (e *Engine) checkpoint(ctx context.Context, executionID, workflowName string, dag *graph.DependencyGraph, ec *execctx.Context) {
	steps := make(map[string]*persistence.StepState, len(dag.StepIDs()))
	for _, stepID := range dag.StepIDs() {
		status, _ := dag.Status(stepID)
		steps[stepID] = &persistence.StepState{StepID: stepID, Status: nodeStatusToStepStatus(status)}
	}
	snapshot := persistence.ExecutionState{
		ExecutionID:  executionID,
		WorkflowName: workflowName,
		Status:       persistence.WorkflowRunning,
		Steps:        steps,
		UpdatedAt:    time.Now(),
	}
	rec, err := e.store.AppendWAL(ctx, executionID, persistence.WALCheckpoint, snapshot)
	if err != nil {
		e.logger.Warn("checkpoint WAL append failed", map[string]interface{}{"execution_id": executionID, "error": err.Error()})
		return
	}
	if _, err := e.ckpt.Take(ctx, &snapshot, flattenContext(dag, ec), rec.Sequence); err != nil {
		e.logger.Warn("checkpoint failed", map[string]interface{}{"execution_id": executionID, "error": err.Error()})
	}
}

func flattenContext(dag *graph.DependencyGraph, ec *execctx.Context) map[string]interface{} {
	flat := make(map[string]interface{})
	for _, stepID := range dag.StepIDs() {
		for name, value := range ec.StepOutputs(stepID) {
			flat[stepID+"."+name] = value
		}
	}
	return flat
}

// Status returns the current persisted state of an execution (spec §6.4).
func (e *Engine) Status(ctx context.Context, executionID string) (*persistence.ExecutionState, error) {
	return e.store.LoadExecution(ctx, executionID)
}

// Cancel requests cooperative cancellation of a running execution (spec
// §6.4). Cancelling an execution not currently running is a no-op error.
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	e.mu.Lock()
	re, ok := e.running[executionID]
	e.mu.Unlock()
	if !ok {
		return core.NewError("Engine.Cancel", core.KindFatal, fmt.Errorf("execution %q is not running", executionID))
	}
	re.cancel()
	return nil
}

// Pause transitions a running execution to Paused: it cancels the current
// run loop without marking the execution terminal, leaving it resumable.
// Spec §9 decided Running->Paused->Running are reachable only via explicit
// commands, never an automatic timer.
func (e *Engine) Pause(ctx context.Context, executionID string) error {
	state, err := e.store.LoadExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if !persistence.IsLegalWorkflowTransition(state.Status, persistence.WorkflowPaused) {
		return core.NewError("Engine.Pause", core.KindFatal, fmt.Errorf("cannot pause execution in status %q", state.Status))
	}

	e.mu.Lock()
	re, ok := e.running[executionID]
	e.mu.Unlock()
	if ok {
		atomic.StoreInt32(&re.paused, 1)
		re.cancel()
	}

	state.Status = persistence.WorkflowPaused
	state.UpdatedAt = time.Now()
	return e.store.SaveExecution(ctx, state)
}

// Resume relaunches a Paused execution's scheduler loop from its last
// checkpoint (spec §4.8/§9). The workflow definition must be supplied again
// since a paused execution's in-memory DAG and workflow have been torn down.
func (e *Engine) Resume(ctx context.Context, executionID string, w *graph.Workflow) (string, error) {
	state, err := e.store.LoadExecution(ctx, executionID)
	if err != nil {
		return "", err
	}
	if state.Status != persistence.WorkflowPaused {
		return "", core.NewError("Engine.Resume", core.KindFatal, fmt.Errorf("execution %q is not paused", state.ExecutionID))
	}
	return e.resumeFromCheckpoint(ctx, w, state)
}

func (e *Engine) resumeFromCheckpoint(ctx context.Context, w *graph.Workflow, state *persistence.ExecutionState) (string, error) {
	recovered, err := persistence.Recover(ctx, e.store, idempotentStepSet(w))
	if err != nil {
		return "", err
	}
	for _, r := range recovered {
		if r.Execution.ExecutionID != state.ExecutionID {
			continue
		}
		dag := graph.Build(w.Steps)
		ec := execctx.New(state.ExecutionID)
		for k, v := range r.Context {
			stepID, name, ok := splitFlatKey(k)
			if ok {
				ec.SetStepOutput(stepID, name, v)
			}
		}
		for stepID, st := range r.Execution.Steps {
			switch st.Status {
			case persistence.StepCompleted:
				dag.MarkCompleted(stepID)
			case persistence.StepSkipped:
				dag.MarkSkipped(stepID)
			case persistence.StepFailed:
				dag.MarkFailed(stepID)
			}
		}

		state.Status = persistence.WorkflowRunning
		state.UpdatedAt = time.Now()
		if err := e.store.SaveExecution(ctx, state); err != nil {
			return "", err
		}

		defaultRetry := graph.DefaultRetryPolicy()
		if w.Config.DefaultRetry != nil {
			defaultRetry = *w.Config.DefaultRetry
		}
		streamBroker := router.NewStreamBroker()
		disp := dispatcher.New(state.ExecutionID, e.executors, e.breakers, e.retrier, ec, defaultRetry, e.events, e.logger, streamBroker)
		runner := newFallbackRunner(disp, e.fallback, e.dlqQueue, w.Name, state.ExecutionID)
		driver := scheduler.NewDriver(w, dag, ec, runner, e.sem, e.buckets, e.pool, e.logger)

		runCtx, cancel := context.WithCancel(ctx)
		re := &runningExecution{cancel: cancel, workflow: w, dag: dag, execCtx: ec}
		e.mu.Lock()
		e.running[state.ExecutionID] = re
		e.mu.Unlock()

		unsubscribe := e.events.Subscribe(state.ExecutionID, func(evt Event) {
			if evt.Kind != EventStepCompleted && evt.Kind != EventStepFailed {
				return
			}
			if evt.Kind == EventStepCompleted {
				e.evaluateBranches(w, dag, driver, ec, evt.StepID)
			}
			e.checkpoint(context.Background(), state.ExecutionID, w.Name, dag, ec)
		})
		go e.run(runCtx, state.ExecutionID, w, re, driver, state, unsubscribe)
		return state.ExecutionID, nil
	}
	return "", core.NewError("Engine.Resume", core.KindFatal, fmt.Errorf("no recoverable state for execution %q", state.ExecutionID))
}

func idempotentStepSet(w *graph.Workflow) map[string]bool {
	out := make(map[string]bool, len(w.Steps))
	for _, s := range w.Steps {
		if s.Idempotent {
			out[s.StepID] = true
		}
	}
	return out
}

func splitFlatKey(key string) (stepID, name string, ok bool) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

// SubscribeEvents registers handler for executionID's lifecycle events (spec
// §6.4). Pass "" to subscribe to every execution.
func (e *Engine) SubscribeEvents(executionID string, handler Handler) SubscriptionID {
	return e.events.Subscribe(executionID, handler)
}

// UnsubscribeEvents cancels a SubscribeEvents subscription.
func (e *Engine) UnsubscribeEvents(id SubscriptionID) {
	e.events.Unsubscribe(id)
}

// RecoverOnStartup replays every execution's WAL since its last checkpoint
// and returns the rebuilt in-memory state, without relaunching their
// scheduler loops — a caller decides whether/how to resume each one (spec
// §4.8's replay procedure, steps 1-4).
func (e *Engine) RecoverOnStartup(ctx context.Context, idempotentSteps map[string]bool) ([]*persistence.Recovered, error) {
	return persistence.Recover(ctx, e.store, idempotentSteps)
}
