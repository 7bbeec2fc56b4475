package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsLinearWorkflow(t *testing.T) {
	err := Validate(linearWorkflow())
	assert.NoError(t, err)
}

func TestValidate_RejectsCycle(t *testing.T) {
	w := &Workflow{
		Name: "cyclic",
		Steps: []Step{
			{StepID: "a", Kind: KindTransform, ExecutorRef: "noop", DependsOn: []Dependency{{StepID: "b"}}, OutputDecls: []string{"x"}},
			{StepID: "b", Kind: KindTransform, ExecutorRef: "noop", DependsOn: []Dependency{{StepID: "a"}}, OutputDecls: []string{"x"}},
		},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidate_RejectsDuplicateStepID(t *testing.T) {
	w := &Workflow{
		Name: "dup",
		Steps: []Step{
			{StepID: "a", Kind: KindTransform, ExecutorRef: "noop", OutputDecls: []string{"x"}},
			{StepID: "a", Kind: KindTransform, ExecutorRef: "noop", OutputDecls: []string{"x"}},
		},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step id")
}

func TestValidate_RejectsUndeclaredDependency(t *testing.T) {
	w := &Workflow{
		Name: "dangling",
		Steps: []Step{
			{StepID: "a", Kind: KindTransform, ExecutorRef: "noop", DependsOn: []Dependency{{StepID: "ghost"}}, OutputDecls: []string{"x"}},
		},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared step")
}

func TestValidate_RejectsSelfDependency(t *testing.T) {
	w := &Workflow{
		Name: "self",
		Steps: []Step{
			{StepID: "a", Kind: KindTransform, ExecutorRef: "noop", DependsOn: []Dependency{{StepID: "a"}}, OutputDecls: []string{"x"}},
		},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot depend on itself")
}

func TestValidate_RejectsUnknownStepOutputReference(t *testing.T) {
	w := &Workflow{
		Name: "bad-output-ref",
		Steps: []Step{
			{StepID: "a", Kind: KindTransform, ExecutorRef: "noop", OutputDecls: []string{"x"}},
			{StepID: "b", Kind: KindTransform, ExecutorRef: "noop",
				DependsOn:   []Dependency{{StepID: "a"}},
				Inputs:      map[string]*ValueExpression{"in": StepOutputRef("a", "nonexistent")},
				OutputDecls: []string{"x"}},
		},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no declared output")
}

func TestValidate_RejectsBadIdentifier(t *testing.T) {
	w := &Workflow{
		Name: "bad-id",
		Steps: []Step{
			{StepID: "1-bad", Kind: KindTransform, ExecutorRef: "noop", OutputDecls: []string{"x"}},
		},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid identifier")
}

func TestValidate_RejectsInvalidJoinAtLeast(t *testing.T) {
	w := &Workflow{
		Name: "bad-join",
		Steps: []Step{
			{StepID: "a", Kind: KindTransform, ExecutorRef: "noop", OutputDecls: []string{"x"}},
			{StepID: "fanout", Kind: KindTransform, ExecutorRef: "noop",
				DependsOn:    []Dependency{{StepID: "a"}},
				FanOutOver:   InputRef("items"),
				JoinStrategy: JoinAtLeastK,
				JoinAtLeast:  0,
				Parallel:     []Step{{StepID: "inner", Kind: KindTransform, ExecutorRef: "noop", OutputDecls: []string{"x"}}},
				OutputDecls:  []string{"x"},
			},
		},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "join_at_least")
}

func TestValidate_RejectsBadRetryPolicyBounds(t *testing.T) {
	w := &Workflow{
		Name: "bad-retry",
		Steps: []Step{
			{StepID: "a", Kind: KindTransform, ExecutorRef: "noop", OutputDecls: []string{"x"},
				RetryPolicy: &RetryPolicy{MaxAttempts: 0, Multiplier: 2}},
		},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}
