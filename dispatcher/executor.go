// Package dispatcher resolves a ready step's inputs, hands it to its
// registered TaskExecutor within a timeout/retry/circuit-breaker envelope,
// and binds the result back onto declared outputs (spec §4.5).
package dispatcher

import (
	"context"
	"fmt"
)

// TaskErrorKind is the closed set of executor-reported error kinds from
// spec §6.2. A TaskExecutor returns a *TaskError (or a plain error, treated
// as Internal) so the dispatcher can translate it into the core.ErrorKind
// taxonomy that drives retry/circuit-breaker/DLQ policy.
type TaskErrorKind string

const (
	TaskErrTransient    TaskErrorKind = "transient"
	TaskErrRateLimited  TaskErrorKind = "rate_limited"
	TaskErrTimeout      TaskErrorKind = "timeout"
	TaskErrUnauthorized TaskErrorKind = "unauthorized"
	TaskErrBadRequest   TaskErrorKind = "bad_request"
	TaskErrInternal     TaskErrorKind = "internal"
	TaskErrCancelled    TaskErrorKind = "cancelled"
)

// TaskError is the structured error a TaskExecutor returns.
type TaskError struct {
	kind TaskErrorKind
	Err  error
}

// NewTaskError builds a TaskError of the given kind.
func NewTaskError(kind TaskErrorKind, err error) *TaskError {
	return &TaskError{kind: kind, Err: err}
}

func (e *TaskError) Error() string { return fmt.Sprintf("%s: %v", e.kind, e.Err) }
func (e *TaskError) Unwrap() error { return e.Err }
func (e *TaskError) Kind() TaskErrorKind { return e.kind }

// TaskContext is everything a TaskExecutor needs to run one step instance.
type TaskContext struct {
	ExecutionID string
	StepID      string
	ExecutorRef string
	Inputs      map[string]interface{}

	// Emit publishes an incremental chunk for a Step.Stream executor. Nil
	// unless the step declares Stream: true, in which case the dispatcher
	// wires it to the run's router.StreamBroker.
	Emit func(chunk interface{})
}

// TaskResult is an executor's raw output, split into the primary value
// (bound to output_decls[0]) and metadata (bound to output_decls[1]), per
// the multi-output binding convention in spec §9.
type TaskResult struct {
	Value    interface{}
	Metadata map[string]interface{}
}

// TaskExecutor is the pluggable unit of work a step's executor_ref resolves
// to (spec §6.2). Implementations live in the executors package.
type TaskExecutor interface {
	Execute(ctx context.Context, tc *TaskContext) (*TaskResult, error)
}
