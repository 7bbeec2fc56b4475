package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/core"
	"github.com/flowforge/flowforge/graph"
)

func TestBackoffFor_ExactFormula(t *testing.T) {
	policy := graph.RetryPolicy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     1 * time.Second,
		Multiplier:      2.0,
	}
	assert.Equal(t, 100*time.Millisecond, backoffFor(policy, 1))
	assert.Equal(t, 200*time.Millisecond, backoffFor(policy, 2))
	assert.Equal(t, 400*time.Millisecond, backoffFor(policy, 3))
	assert.Equal(t, 800*time.Millisecond, backoffFor(policy, 4))
	assert.Equal(t, 1*time.Second, backoffFor(policy, 5), "must cap at max_interval")
}

func TestCoordinator_JitterStaysWithinBounds(t *testing.T) {
	c := New(nil)
	base := 1000 * time.Millisecond
	for i := 0; i < 200; i++ {
		d := c.jitter(base, 0.15)
		assert.GreaterOrEqual(t, d, 850*time.Millisecond)
		assert.LessOrEqual(t, d, 1150*time.Millisecond)
	}
}

func TestCoordinator_RetriesTransientThenSucceeds(t *testing.T) {
	c := New(nil)
	policy := graph.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}

	attempts := 0
	err := c.Execute(context.Background(), policy, nil, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return core.NewError("op", core.KindTransientExecutor, errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestCoordinator_ExhaustsMaxAttempts(t *testing.T) {
	c := New(nil)
	policy := graph.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}

	attempts := 0
	err := c.Execute(context.Background(), policy, nil, func(ctx context.Context) error {
		attempts++
		return core.NewError("op", core.KindTransientExecutor, errors.New("down"))
	})
	require.Error(t, err)
	var maxErr *MaxAttemptsExceededError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 2, attempts)
}

func TestCoordinator_FatalErrorDoesNotRetry(t *testing.T) {
	c := New(nil)
	policy := graph.RetryPolicy{MaxAttempts: 5, InitialInterval: time.Millisecond, Multiplier: 2}

	attempts := 0
	err := c.Execute(context.Background(), policy, nil, func(ctx context.Context) error {
		attempts++
		return core.NewError("op", core.KindValidation, errors.New("bad input"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "non-retryable kinds must fail fast")
}

type fakeBreaker struct {
	allow       bool
	successes   int
	failures    int
}

func (f *fakeBreaker) Allow() bool       { return f.allow }
func (f *fakeBreaker) RecordSuccess()    { f.successes++ }
func (f *fakeBreaker) RecordFailure()    { f.failures++ }

func TestCoordinator_OpenCircuitShortCircuits(t *testing.T) {
	c := New(nil)
	cb := &fakeBreaker{allow: false}
	policy := graph.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond}

	calls := 0
	err := c.Execute(context.Background(), policy, cb, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls, "breaker must block the call entirely")
}

func TestCoordinator_ContextCancellationStopsRetries(t *testing.T) {
	c := New(nil)
	policy := graph.RetryPolicy{MaxAttempts: 5, InitialInterval: 50 * time.Millisecond, Multiplier: 1}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := c.Execute(ctx, policy, nil, func(ctx context.Context) error {
		attempts++
		return core.NewError("op", core.KindTransientExecutor, errors.New("flaky"))
	})
	require.Error(t, err)
	assert.Less(t, attempts, 5)
}
