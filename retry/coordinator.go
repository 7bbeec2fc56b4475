// Package retry implements the retry coordinator from spec §4.6: exact
// exponential backoff with uniform jitter, consulting core.Policy to
// decide whether a given failure is retryable at all.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/flowforge/flowforge/core"
	"github.com/flowforge/flowforge/graph"
)

// MaxAttemptsExceededError is returned once a retryable operation has
// exhausted its policy's max_attempts (spec §4.6).
type MaxAttemptsExceededError struct {
	Attempts int
	LastErr  error
}

func (e *MaxAttemptsExceededError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.LastErr)
}

func (e *MaxAttemptsExceededError) Unwrap() error { return e.LastErr }

// Breaker is the subset of breaker.CircuitBreaker the coordinator consults
// before sleeping into the next attempt, kept as a narrow interface here so
// the retry package does not import breaker directly (avoids a cycle, since
// breaker state transitions are themselves driven by retry outcomes).
type Breaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
}

// Coordinator runs an operation under a graph.RetryPolicy.
type Coordinator struct {
	logger core.ComponentLogger
	rng    *rand.Rand
}

// New returns a Coordinator. logger may be nil (core.NoopLogger is used).
func New(logger core.ComponentLogger) *Coordinator {
	if logger == nil {
		logger = core.NoopLogger{}
	}
	return &Coordinator{logger: logger, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Execute runs fn under policy, retrying on errors core.Policy classifies
// as DispositionRetry. If cb is non-nil, a circuit in the open state short
// circuits further attempts immediately (spec §4.7's retry/breaker
// interplay). The backoff formula is exactly:
//
//	backoff = min(initial_interval * multiplier^(attempt-1), max_interval)
//
// then, if jitter is enabled, scaled by a uniform factor in [1-j, 1+j]
// with j = 0.15 — deliberately not the teacher's sine-based jitter, since
// a uniform multiplicative jitter is what the policy calls for.
func (c *Coordinator) Execute(ctx context.Context, policy graph.RetryPolicy, cb Breaker, fn func(ctx context.Context) error) error {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if cb != nil && !cb.Allow() {
			lastErr = core.NewError("retry.Execute", core.KindCircuitOpen, core.ErrCircuitOpen)
			break
		}

		err := fn(ctx)
		if err == nil {
			if cb != nil {
				cb.RecordSuccess()
			}
			return nil
		}
		lastErr = err
		if cb != nil {
			cb.RecordFailure()
		}

		if !isRetryable(err, policy) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := backoffFor(policy, attempt)
		if policy.Jitter {
			delay = c.jitter(delay, 0.15)
		}

		c.logger.Debug("retrying after backoff", map[string]interface{}{
			"attempt": attempt, "delay_ms": delay.Milliseconds(), "error": err.Error(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &MaxAttemptsExceededError{Attempts: maxAttempts, LastErr: lastErr}
}

// isRetryable decides whether err should be retried. A policy with a
// non-empty RetryableErrorKinds narrows retry eligibility to exactly those
// kinds, overriding core.Policy's global disposition for this step (a step
// can, for instance, choose to retry a kind core.Policy treats as terminal,
// or refuse to retry one it treats as transient). An empty list defers
// entirely to core.Policy.
func isRetryable(err error, policy graph.RetryPolicy) bool {
	kind := core.KindOf(err)
	if len(policy.RetryableErrorKinds) > 0 {
		for _, k := range policy.RetryableErrorKinds {
			if core.ErrorKind(k) == kind {
				return true
			}
		}
		return false
	}
	return core.Policy(kind) == core.DispositionRetry
}

// backoffFor computes min(initial * multiplier^(attempt-1), max).
func backoffFor(policy graph.RetryPolicy, attempt int) time.Duration {
	multiplier := policy.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	initial := policy.InitialInterval
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}

	raw := float64(initial)
	for i := 1; i < attempt; i++ {
		raw *= multiplier
	}
	d := time.Duration(raw)
	if policy.MaxInterval > 0 && d > policy.MaxInterval {
		d = policy.MaxInterval
	}
	return d
}

// jitter scales d by a uniform random factor in [1-j, 1+j].
func (c *Coordinator) jitter(d time.Duration, j float64) time.Duration {
	factor := 1 - j + c.rng.Float64()*2*j
	return time.Duration(float64(d) * factor)
}
