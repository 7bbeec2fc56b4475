package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/execctx"
	"github.com/flowforge/flowforge/graph"
)

// funcRunner adapts a closure to StepRunner for tests.
type funcRunner struct {
	fn func(ctx context.Context, step *graph.Step) (map[string]interface{}, error)
}

func (r *funcRunner) RunStep(ctx context.Context, step *graph.Step) (map[string]interface{}, error) {
	return r.fn(ctx, step)
}

func newHarness(t *testing.T, steps []graph.Step, runner StepRunner) (*Driver, *graph.DependencyGraph) {
	t.Helper()
	wf := &graph.Workflow{Name: "test-wf", Steps: steps}
	dag := graph.Build(steps)
	ec := execctx.New("exec-1")
	sem := NewSemaphore(8)
	buckets := NewTokenBucketRegistry(100, 100)
	pool := NewResourcePool(1000, 1000, 1000)
	return NewDriver(wf, dag, ec, runner, sem, buckets, pool, nil), dag
}

func TestDriver_LinearWorkflowCompletes(t *testing.T) {
	var order []string
	runner := &funcRunner{fn: func(ctx context.Context, step *graph.Step) (map[string]interface{}, error) {
		order = append(order, step.StepID)
		return map[string]interface{}{"ok": true}, nil
	}}

	steps := []graph.Step{
		{StepID: "a", Kind: graph.KindTransform, ExecutorRef: "x", OutputDecls: []string{"ok"}},
		{StepID: "b", Kind: graph.KindTransform, ExecutorRef: "x", OutputDecls: []string{"ok"},
			DependsOn: []graph.Dependency{{StepID: "a"}}},
	}
	driver, dag := newHarness(t, steps, runner)

	err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, dag.IsComplete())
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestDriver_FanOutRunsConcurrently(t *testing.T) {
	var concurrent int32
	var maxConcurrent int32
	runner := &funcRunner{fn: func(ctx context.Context, step *graph.Step) (map[string]interface{}, error) {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			cur := atomic.LoadInt32(&maxConcurrent)
			if n <= cur || atomic.CompareAndSwapInt32(&maxConcurrent, cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return map[string]interface{}{"ok": true}, nil
	}}

	steps := []graph.Step{
		{StepID: "a", Kind: graph.KindTransform, ExecutorRef: "x", OutputDecls: []string{"ok"}},
		{StepID: "b", Kind: graph.KindTransform, ExecutorRef: "x", OutputDecls: []string{"ok"}},
		{StepID: "c", Kind: graph.KindTransform, ExecutorRef: "x", OutputDecls: []string{"ok"}},
	}
	driver, _ := newHarness(t, steps, runner)

	require.NoError(t, driver.Run(context.Background()))
	assert.GreaterOrEqual(t, maxConcurrent, int32(2))
}

func TestDriver_FailFastReturnsErrorAndSkipsDownstream(t *testing.T) {
	runner := &funcRunner{fn: func(ctx context.Context, step *graph.Step) (map[string]interface{}, error) {
		if step.StepID == "a" {
			return nil, fmt.Errorf("boom")
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	steps := []graph.Step{
		{StepID: "a", Kind: graph.KindTransform, ExecutorRef: "x", OutputDecls: []string{"ok"}},
		{StepID: "b", Kind: graph.KindTransform, ExecutorRef: "x", OutputDecls: []string{"ok"},
			DependsOn: []graph.Dependency{{StepID: "a"}}},
	}
	driver, dag := newHarness(t, steps, runner)

	err := driver.Run(context.Background())
	require.Error(t, err)
	status, ok := dag.Status("b")
	require.True(t, ok)
	assert.Equal(t, graph.NodeSkipped, status)
}

func TestDriver_ConditionFalseSkipsStep(t *testing.T) {
	runner := &funcRunner{fn: func(ctx context.Context, step *graph.Step) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}}

	steps := []graph.Step{
		{StepID: "a", Kind: graph.KindTransform, ExecutorRef: "x", OutputDecls: []string{"ok"},
			Condition: &graph.ValueExpression{Kind: graph.ExprLiteral, Literal: false}},
	}
	driver, dag := newHarness(t, steps, runner)

	require.NoError(t, driver.Run(context.Background()))
	status, ok := dag.Status("a")
	require.True(t, ok)
	assert.Equal(t, graph.NodeSkipped, status)
}

func TestDriver_FanOutJoinAllAggregatesArray(t *testing.T) {
	runner := &funcRunner{fn: func(ctx context.Context, step *graph.Step) (map[string]interface{}, error) {
		item := step.Inputs["item"].Literal
		return map[string]interface{}{"ok": item}, nil
	}}

	steps := []graph.Step{
		{
			StepID:       "fanout",
			FanOutOver:   graph.InputRef("items"),
			JoinStrategy: graph.JoinAll,
			Parallel: []graph.Step{
				{StepID: "child", Kind: graph.KindTransform, ExecutorRef: "x", OutputDecls: []string{"ok"}},
			},
		},
	}
	wf := &graph.Workflow{Name: "test-wf", Steps: steps}
	dag := graph.Build(steps)
	ec := execctx.New("exec-1")
	ec.SetInput("items", []interface{}{"a", "b", "c"})
	driver := NewDriver(wf, dag, ec, runner, NewSemaphore(8), NewTokenBucketRegistry(100, 100), NewResourcePool(1000, 1000, 1000), nil)

	require.NoError(t, driver.Run(context.Background()))
	status, ok := dag.Status("fanout")
	require.True(t, ok)
	assert.Equal(t, graph.NodeCompleted, status)

	results := ec.StepOutputs("fanout")["results"]
	arr, ok := results.([]interface{})
	require.True(t, ok)
	assert.Len(t, arr, 3)
}

func TestDriver_FanOutJoinAnySucceedsOnFirstCompletion(t *testing.T) {
	runner := &funcRunner{fn: func(ctx context.Context, step *graph.Step) (map[string]interface{}, error) {
		item := step.Inputs["item"].Literal
		if item == "bad" {
			return nil, fmt.Errorf("boom")
		}
		return map[string]interface{}{"ok": item}, nil
	}}

	steps := []graph.Step{
		{
			StepID:       "fanout",
			FanOutOver:   graph.InputRef("items"),
			JoinStrategy: graph.JoinAny,
			Parallel: []graph.Step{
				{StepID: "child", Kind: graph.KindTransform, ExecutorRef: "x", OutputDecls: []string{"ok"}},
			},
		},
	}
	wf := &graph.Workflow{Name: "test-wf", Steps: steps}
	dag := graph.Build(steps)
	ec := execctx.New("exec-1")
	ec.SetInput("items", []interface{}{"bad", "good"})
	driver := NewDriver(wf, dag, ec, runner, NewSemaphore(8), NewTokenBucketRegistry(100, 100), NewResourcePool(1000, 1000, 1000), nil)

	require.NoError(t, driver.Run(context.Background()))
	status, ok := dag.Status("fanout")
	require.True(t, ok)
	assert.Equal(t, graph.NodeCompleted, status)
}

func TestDriver_ResourceExhaustionFailsStep(t *testing.T) {
	runner := &funcRunner{fn: func(ctx context.Context, step *graph.Step) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}}

	steps := []graph.Step{
		{StepID: "a", Kind: graph.KindTransform, ExecutorRef: "x", OutputDecls: []string{"ok"},
			Resources: &graph.ResourceRequest{CPU: 9999}},
	}
	wf := &graph.Workflow{Name: "w", Steps: steps}
	dag := graph.Build(steps)
	ec := execctx.New("exec-1")
	driver := NewDriver(wf, dag, ec, runner, NewSemaphore(4), NewTokenBucketRegistry(10, 10), NewResourcePool(1, 1, 1), nil)

	err := driver.Run(context.Background())
	require.Error(t, err)
}
