package executors

import (
	"context"

	"github.com/flowforge/flowforge/dispatcher"
)

// FuncExecutor wraps a closure as a TaskExecutor, for tests that need a
// retry-then-succeed, circuit-open, or fallback-triggering executor without
// a real backend (spec §8's seed scenarios).
type FuncExecutor struct {
	Fn func(ctx context.Context, tc *dispatcher.TaskContext) (*dispatcher.TaskResult, error)
}

func (f *FuncExecutor) Execute(ctx context.Context, tc *dispatcher.TaskContext) (*dispatcher.TaskResult, error) {
	return f.Fn(ctx, tc)
}
