package executors

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/dispatcher"
)

func newTestVectorSearchExecutor(t *testing.T) *VectorSearchExecutor {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewVectorSearchExecutor(client)
}

func TestVectorSearchExecutor_RanksByCosineSimilarity(t *testing.T) {
	ctx := context.Background()
	e := newTestVectorSearchExecutor(t)

	require.NoError(t, e.Index(ctx, "docs", "a", []float64{1, 0}, map[string]interface{}{"title": "a"}))
	require.NoError(t, e.Index(ctx, "docs", "b", []float64{0, 1}, map[string]interface{}{"title": "b"}))
	require.NoError(t, e.Index(ctx, "docs", "c", []float64{0.9, 0.1}, map[string]interface{}{"title": "c"}))

	out, err := e.Execute(ctx, &dispatcher.TaskContext{
		Inputs: map[string]interface{}{
			"namespace":    "docs",
			"query_vector": []interface{}{float64(1), float64(0)},
			"top_k":        float64(2),
		},
	})
	require.NoError(t, err)

	results, ok := out.Value.([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0]["id"])
	assert.Equal(t, "c", results[1]["id"])
	assert.Equal(t, 3, out.Metadata["matched"])
}

func TestVectorSearchExecutor_MissingNamespaceIsBadRequest(t *testing.T) {
	e := newTestVectorSearchExecutor(t)
	_, err := e.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"query_vector": []interface{}{float64(1)}},
	})
	var te *dispatcher.TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, dispatcher.TaskErrBadRequest, te.Kind())
}

func TestVectorSearchExecutor_MissingQueryVectorIsBadRequest(t *testing.T) {
	e := newTestVectorSearchExecutor(t)
	_, err := e.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{"namespace": "docs"},
	})
	var te *dispatcher.TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, dispatcher.TaskErrBadRequest, te.Kind())
}

func TestVectorSearchExecutor_EmptyNamespaceReturnsNoMatches(t *testing.T) {
	e := newTestVectorSearchExecutor(t)
	out, err := e.Execute(context.Background(), &dispatcher.TaskContext{
		Inputs: map[string]interface{}{
			"namespace":    "empty",
			"query_vector": []interface{}{float64(1), float64(0)},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Value)
}
