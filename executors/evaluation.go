package executors

import (
	"context"

	"github.com/flowforge/flowforge/dispatcher"
)

// EvaluationExecutor is the default "evaluation" kind TaskExecutor: it runs
// tc.Inputs["expression"] (a bare Lua expression, the same language
// execctx's template engine embeds) against tc.Inputs["candidate"], so a
// step can score or grade an upstream result without a dedicated rubric
// service. The expression's "inputs" global is tc.Inputs itself, so it can
// read "inputs.candidate", "inputs.reference", or any other declared input.
type EvaluationExecutor struct{}

// NewEvaluationExecutor returns a ready-to-register EvaluationExecutor.
func NewEvaluationExecutor() *EvaluationExecutor { return &EvaluationExecutor{} }

func (e *EvaluationExecutor) Execute(_ context.Context, tc *dispatcher.TaskContext) (*dispatcher.TaskResult, error) {
	expr, _ := tc.Inputs["expression"].(string)
	if expr == "" {
		return nil, taskErrorf(tc.StepID, "expression")
	}
	result, err := runSandboxedLua(expr, tc.Inputs)
	if err != nil {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrBadRequest, err)
	}
	return &dispatcher.TaskResult{Value: result}, nil
}
