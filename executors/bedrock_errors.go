package executors

import (
	"errors"

	"github.com/aws/smithy-go"

	"github.com/flowforge/flowforge/dispatcher"
)

// classifyBedrockErr maps an AWS API error onto the TaskErrorKind taxonomy
// the dispatcher consults for retry/circuit-breaker policy, grounded on the
// error codes Bedrock's Converse/InvokeModel APIs document.
func classifyBedrockErr(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException", "ModelTimeoutException", "ModelNotReadyException":
			return dispatcher.NewTaskError(dispatcher.TaskErrRateLimited, err)
		case "ValidationException", "AccessDeniedException", "ModelErrorException":
			return dispatcher.NewTaskError(dispatcher.TaskErrBadRequest, err)
		}
	}
	return dispatcher.NewTaskError(dispatcher.TaskErrTransient, err)
}
