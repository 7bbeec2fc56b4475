package executors

import (
	"context"

	"github.com/flowforge/flowforge/dispatcher"
)

// PolicyExecutor is the default "policy" kind TaskExecutor: it runs
// tc.Inputs["rule"] (a bare Lua boolean expression) against tc.Inputs and
// returns an allow/deny decision plus the rule's raw result, letting a
// workflow gate on business rules without an external policy engine.
type PolicyExecutor struct{}

// NewPolicyExecutor returns a ready-to-register PolicyExecutor.
func NewPolicyExecutor() *PolicyExecutor { return &PolicyExecutor{} }

func (p *PolicyExecutor) Execute(_ context.Context, tc *dispatcher.TaskContext) (*dispatcher.TaskResult, error) {
	rule, _ := tc.Inputs["rule"].(string)
	if rule == "" {
		return nil, taskErrorf(tc.StepID, "rule")
	}
	result, err := runSandboxedLua(rule, tc.Inputs)
	if err != nil {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrBadRequest, err)
	}
	allowed := false
	switch v := result.(type) {
	case bool:
		allowed = v
	case nil:
		allowed = false
	default:
		allowed = true
	}
	return &dispatcher.TaskResult{
		Value:    allowed,
		Metadata: map[string]interface{}{"rule_result": result},
	}, nil
}
