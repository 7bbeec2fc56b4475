package executors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/flowforge/flowforge/dispatcher"
)

// defaultTitanEmbedModel is Amazon's Titan Embed text model id, the same
// default ai/providers/bedrock/client.go's GetEmbeddings uses.
const defaultTitanEmbedModel = "amazon.titan-embed-text-v1"

// EmbedExecutor is the default "embed" kind TaskExecutor, invoking a Titan
// Embed model via Bedrock's raw InvokeModel API (Converse has no embeddings
// verb), adapted from GetEmbeddings/InvokeModel in the same teacher file.
type EmbedExecutor struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewEmbedExecutor wraps an already-configured bedrockruntime.Client.
func NewEmbedExecutor(client *bedrockruntime.Client, modelID string) *EmbedExecutor {
	if modelID == "" {
		modelID = defaultTitanEmbedModel
	}
	return &EmbedExecutor{client: client, modelID: modelID}
}

func (e *EmbedExecutor) Execute(ctx context.Context, tc *dispatcher.TaskContext) (*dispatcher.TaskResult, error) {
	text, _ := tc.Inputs["text"].(string)
	if text == "" {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrBadRequest,
			fmt.Errorf("step %q: embed executor requires a non-empty %q input", tc.StepID, "text"))
	}
	model := e.modelID
	if m, ok := tc.Inputs["model"].(string); ok && m != "" {
		model = m
	}

	body, err := json.Marshal(map[string]interface{}{"inputText": text})
	if err != nil {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrInternal, fmt.Errorf("marshal embed request: %w", err))
	}

	output, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, classifyBedrockErr(err)
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(output.Body, &parsed); err != nil {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrInternal, fmt.Errorf("parse embed response: %w", err))
	}

	return &dispatcher.TaskResult{
		Value:    parsed.Embedding,
		Metadata: map[string]interface{}{"model": model, "dimensions": len(parsed.Embedding)},
	}, nil
}
