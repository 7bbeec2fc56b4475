package executors

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/flowforge/flowforge/dispatcher"
)

// BedrockExecutor is the default "llm" kind TaskExecutor, calling Bedrock's
// Converse API. Adapted from ai/providers/bedrock/client.go's
// GenerateResponse, rebuilt against dispatcher.TaskContext/TaskResult
// instead of core.AIClient/core.AIOptions.
type BedrockExecutor struct {
	client           *bedrockruntime.Client
	defaultModel     string
	defaultMaxTokens int32
}

// NewBedrockExecutor wraps an already-configured bedrockruntime.Client.
func NewBedrockExecutor(client *bedrockruntime.Client, defaultModel string, defaultMaxTokens int32) *BedrockExecutor {
	return &BedrockExecutor{client: client, defaultModel: defaultModel, defaultMaxTokens: defaultMaxTokens}
}

func (e *BedrockExecutor) Execute(ctx context.Context, tc *dispatcher.TaskContext) (*dispatcher.TaskResult, error) {
	prompt, _ := tc.Inputs["prompt"].(string)
	if prompt == "" {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrBadRequest,
			fmt.Errorf("step %q: llm executor requires a non-empty %q input", tc.StepID, "prompt"))
	}

	model, _ := tc.Inputs["model"].(string)
	if model == "" {
		model = e.defaultModel
	}
	systemPrompt, _ := tc.Inputs["system_prompt"].(string)

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
		}},
	}
	if systemPrompt != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: systemPrompt}}
	}

	inferenceConfig := &types.InferenceConfiguration{}
	configSet := false
	if maxTokens, ok := numericInput(tc.Inputs, "max_tokens"); ok && maxTokens > 0 {
		inferenceConfig.MaxTokens = aws.Int32(int32(maxTokens))
		configSet = true
	} else if e.defaultMaxTokens > 0 {
		inferenceConfig.MaxTokens = aws.Int32(e.defaultMaxTokens)
		configSet = true
	}
	if temperature, ok := numericInput(tc.Inputs, "temperature"); ok && temperature > 0 {
		inferenceConfig.Temperature = aws.Float32(float32(temperature))
		configSet = true
	}
	if configSet {
		input.InferenceConfig = inferenceConfig
	}

	output, err := e.client.Converse(ctx, input)
	if err != nil {
		return nil, classifyBedrockErr(err)
	}
	if output.Output == nil {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrInternal, fmt.Errorf("no output in bedrock response"))
	}

	var content string
	switch v := output.Output.(type) {
	case *types.ConverseOutputMemberMessage:
		for _, block := range v.Value.Content {
			if b, ok := block.(*types.ContentBlockMemberText); ok {
				content += b.Value
			}
		}
	default:
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrInternal, fmt.Errorf("unexpected bedrock output type"))
	}
	if content == "" {
		return nil, dispatcher.NewTaskError(dispatcher.TaskErrInternal, fmt.Errorf("no text content in bedrock response"))
	}

	metadata := map[string]interface{}{"model": model}
	if output.Usage != nil {
		metadata["prompt_tokens"] = int(aws.ToInt32(output.Usage.InputTokens))
		metadata["completion_tokens"] = int(aws.ToInt32(output.Usage.OutputTokens))
		metadata["total_tokens"] = int(aws.ToInt32(output.Usage.TotalTokens))
	}
	if output.StopReason != "" {
		metadata["stop_reason"] = string(output.StopReason)
	}

	return &dispatcher.TaskResult{Value: content, Metadata: metadata}, nil
}

// numericInput accepts both float64 (the JSON-decoded common case) and int,
// since a workflow author may supply either via a literal or a template.
func numericInput(inputs map[string]interface{}, name string) (float64, bool) {
	switch v := inputs[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
