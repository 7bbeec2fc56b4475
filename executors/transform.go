// Package executors holds the built-in TaskExecutor implementations: a
// no-external-call transform executor, a Bedrock-backed llm/embed pair,
// a Redis-backed vector_search executor, a Lua-sandboxed evaluation/policy
// pair, a no-external-call analytics reducer, and a FuncExecutor test
// helper. Custom executor_refs are registered directly against
// dispatcher.Registry by the embedding application; none of the built-ins
// here self-register.
package executors

import (
	"context"

	"github.com/flowforge/flowforge/dispatcher"
)

// TransformExecutor is the "transform" kind: it performs no external call.
// Its declared inputs, already rendered by the dispatcher's lazy
// execctx.Render pass, ARE its result — the step exists purely to give a
// template/JSON-path computation its own step_id and output bindings.
type TransformExecutor struct{}

// NewTransformExecutor returns a ready-to-register TransformExecutor.
func NewTransformExecutor() *TransformExecutor { return &TransformExecutor{} }

func (e *TransformExecutor) Execute(_ context.Context, tc *dispatcher.TaskContext) (*dispatcher.TaskResult, error) {
	return &dispatcher.TaskResult{Value: tc.Inputs}, nil
}
