package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/go-redis/redis/v8"

	"github.com/flowforge/flowforge/dispatcher"
)

// vectorRecord is what VectorSearchExecutor stores/reads per indexed id,
// grounded on the same JSON-blob-per-key convention persistence.RedisStore
// uses for executions and checkpoints.
type vectorRecord struct {
	Vector  []float64              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// VectorSearchExecutor is the default "vector_search" kind TaskExecutor: a
// brute-force cosine-similarity scan over a Redis hash namespace, good
// enough for the candidate pools a workflow step fans out to an LLM or
// evaluation step, without pulling in a dedicated vector database client.
type VectorSearchExecutor struct {
	client *redis.Client
}

// NewVectorSearchExecutor wraps an already-configured *redis.Client, such
// as the one passed to persistence.NewRedisStore.
func NewVectorSearchExecutor(client *redis.Client) *VectorSearchExecutor {
	return &VectorSearchExecutor{client: client}
}

func vectorKey(namespace string) string { return "vectorsearch:" + namespace }

// Index upserts one record under namespace, available to any later Execute
// call against the same namespace. Not a TaskExecutor method — callers seed
// a namespace out of band (a prior embed step, a batch job) before a
// workflow's vector_search steps query it.
func (e *VectorSearchExecutor) Index(ctx context.Context, namespace, id string, vector []float64, payload map[string]interface{}) error {
	body, err := json.Marshal(vectorRecord{Vector: vector, Payload: payload})
	if err != nil {
		return err
	}
	return e.client.HSet(ctx, vectorKey(namespace), id, body).Err()
}

func (e *VectorSearchExecutor) Execute(ctx context.Context, tc *dispatcher.TaskContext) (*dispatcher.TaskResult, error) {
	namespace, _ := tc.Inputs["namespace"].(string)
	if namespace == "" {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrBadRequest,
			fmt.Errorf("step %q: vector_search executor requires a non-empty %q input", tc.StepID, "namespace"))
	}
	query, ok := toFloat64Slice(tc.Inputs["query_vector"])
	if !ok || len(query) == 0 {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrBadRequest,
			fmt.Errorf("step %q: vector_search executor requires a non-empty %q input", tc.StepID, "query_vector"))
	}
	topK := 10
	if k, ok := numericInput(tc.Inputs, "top_k"); ok && k > 0 {
		topK = int(k)
	}

	raw, err := e.client.HGetAll(ctx, vectorKey(namespace)).Result()
	if err != nil {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrInternal, fmt.Errorf("scan namespace %q: %w", namespace, err))
	}

	type scored struct {
		id      string
		score   float64
		payload map[string]interface{}
	}
	matches := make([]scored, 0, len(raw))
	for id, body := range raw {
		var rec vectorRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			continue
		}
		sim, ok := cosineSimilarity(query, rec.Vector)
		if !ok {
			continue
		}
		matches = append(matches, scored{id: id, score: sim, payload: rec.Payload})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > topK {
		matches = matches[:topK]
	}

	results := make([]map[string]interface{}, len(matches))
	for i, m := range matches {
		results[i] = map[string]interface{}{"id": m.id, "score": m.score, "payload": m.payload}
	}
	return &dispatcher.TaskResult{Value: results, Metadata: map[string]interface{}{"namespace": namespace, "matched": len(raw)}}, nil
}

func cosineSimilarity(a, b []float64) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

func toFloat64Slice(v interface{}) ([]float64, bool) {
	arr, ok := v.([]interface{})
	if !ok {
		if f, ok := v.([]float64); ok {
			return f, true
		}
		return nil, false
	}
	out := make([]float64, len(arr))
	for i, e := range arr {
		switch n := e.(type) {
		case float64:
			out[i] = n
		case int:
			out[i] = float64(n)
		default:
			return nil, false
		}
	}
	return out, true
}
