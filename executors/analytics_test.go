package executors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/dispatcher"
)

func valuesInput(vs ...float64) []interface{} {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func TestAnalyticsExecutor_Sum(t *testing.T) {
	a := NewAnalyticsExecutor()
	out, err := a.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"op": "sum", "values": valuesInput(1, 2, 3)},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(6), out.Value)
	assert.Equal(t, 3, out.Metadata["count"])
}

func TestAnalyticsExecutor_Avg(t *testing.T) {
	a := NewAnalyticsExecutor()
	out, err := a.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"op": "avg", "values": valuesInput(2, 4, 6)},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(4), out.Value)
}

func TestAnalyticsExecutor_MinMax(t *testing.T) {
	a := NewAnalyticsExecutor()
	out, err := a.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"op": "min", "values": valuesInput(5, 1, 9)},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), out.Value)

	out, err = a.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"op": "max", "values": valuesInput(5, 1, 9)},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(9), out.Value)
}

func TestAnalyticsExecutor_Percentile(t *testing.T) {
	a := NewAnalyticsExecutor()
	out, err := a.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"op": "p50", "values": valuesInput(1, 2, 3, 4)},
	})
	require.NoError(t, err)
	assert.InDelta(t, 2.5, out.Value, 0.001)
}

func TestAnalyticsExecutor_CountOfEmptyIsZero(t *testing.T) {
	a := NewAnalyticsExecutor()
	out, err := a.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"op": "count", "values": valuesInput()},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(0), out.Value)
}

func TestAnalyticsExecutor_SumOfEmptyIsBadRequest(t *testing.T) {
	a := NewAnalyticsExecutor()
	_, err := a.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"op": "sum", "values": valuesInput()},
	})

	var te *dispatcher.TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, dispatcher.TaskErrBadRequest, te.Kind())
}

func TestAnalyticsExecutor_UnknownOpIsBadRequest(t *testing.T) {
	a := NewAnalyticsExecutor()
	_, err := a.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"op": "median", "values": valuesInput(1, 2)},
	})

	var te *dispatcher.TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, dispatcher.TaskErrBadRequest, te.Kind())
}

func TestAnalyticsExecutor_MissingValuesIsBadRequest(t *testing.T) {
	a := NewAnalyticsExecutor()
	_, err := a.Execute(context.Background(), &dispatcher.TaskContext{StepID: "stats"})

	var te *dispatcher.TaskError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, dispatcher.TaskErrBadRequest, te.Kind())
}
