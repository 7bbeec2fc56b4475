package executors

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// NewBedrockRuntimeClient loads an AWS config for region and builds a
// bedrockruntime.Client, following the IAM-role / env-vars / profile /
// explicit-credentials precedence the AWS SDK already implements,
// grounded on ai/providers/bedrock/client.go's CreateAWSConfig.
func NewBedrockRuntimeClient(ctx context.Context, region string, accessKeyID, secretAccessKey string) (*bedrockruntime.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}
