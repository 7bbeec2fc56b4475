package executors

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/dispatcher"
)

func TestTransformExecutor_PassesThroughResolvedInputs(t *testing.T) {
	e := NewTransformExecutor()
	out, err := e.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"a": 1, "b": "two"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": "two"}, out.Value)
}

func TestFuncExecutor_DelegatesToClosure(t *testing.T) {
	calls := 0
	e := &FuncExecutor{Fn: func(ctx context.Context, tc *dispatcher.TaskContext) (*dispatcher.TaskResult, error) {
		calls++
		return &dispatcher.TaskResult{Value: tc.StepID}, nil
	}}

	out, err := e.Execute(context.Background(), &dispatcher.TaskContext{StepID: "s"})
	require.NoError(t, err)
	assert.Equal(t, "s", out.Value)
	assert.Equal(t, 1, calls)
}

type fakeAPIError struct{ code string }

func (e *fakeAPIError) Error() string        { return e.code }
func (e *fakeAPIError) ErrorCode() string    { return e.code }
func (e *fakeAPIError) ErrorMessage() string { return e.code }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestClassifyBedrockErr_ThrottlingIsRateLimited(t *testing.T) {
	err := classifyBedrockErr(&fakeAPIError{code: "ThrottlingException"})
	var te *dispatcher.TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, dispatcher.TaskErrRateLimited, te.Kind())
}

func TestClassifyBedrockErr_ValidationIsBadRequest(t *testing.T) {
	err := classifyBedrockErr(&fakeAPIError{code: "ValidationException"})
	var te *dispatcher.TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, dispatcher.TaskErrBadRequest, te.Kind())
}

func TestClassifyBedrockErr_UnknownIsTransient(t *testing.T) {
	err := classifyBedrockErr(errors.New("connection reset"))
	var te *dispatcher.TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, dispatcher.TaskErrTransient, te.Kind())
}
