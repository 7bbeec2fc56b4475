package executors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/dispatcher"
)

func TestEvaluationExecutor_RunsExpressionAgainstInputs(t *testing.T) {
	e := NewEvaluationExecutor()
	out, err := e.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{
			"expression": "inputs.candidate == inputs.reference",
			"candidate":  "paris",
			"reference":  "paris",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, true, out.Value)
}

func TestEvaluationExecutor_NumericExpression(t *testing.T) {
	e := NewEvaluationExecutor()
	out, err := e.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{
			"expression": "inputs.score * 2",
			"score":      float64(3),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(6), out.Value)
}

func TestEvaluationExecutor_MissingExpressionIsBadRequest(t *testing.T) {
	e := NewEvaluationExecutor()
	_, err := e.Execute(context.Background(), &dispatcher.TaskContext{StepID: "score"})

	var te *dispatcher.TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, dispatcher.TaskErrBadRequest, te.Kind())
}

func TestEvaluationExecutor_InvalidLuaIsBadRequest(t *testing.T) {
	e := NewEvaluationExecutor()
	_, err := e.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"expression": "this is not lua =="},
	})

	var te *dispatcher.TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, dispatcher.TaskErrBadRequest, te.Kind())
}
