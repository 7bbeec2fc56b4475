package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb := New(Params{Name: "llm", FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: time.Minute, HalfOpenMaxConcurrent: 1})

	for i := 0; i < 3; i++ {
		require.True(t, cb.Allow())
		cb.RecordFailure()
	}
	assert.Equal(t, Open, cb.State())
	assert.False(t, cb.Allow(), "open breaker must reject while timeout has not elapsed")
}

func TestCircuitBreaker_HalfOpenAfterTimeoutThenCloses(t *testing.T) {
	cb := New(Params{Name: "llm", FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond, HalfOpenMaxConcurrent: 1})

	require.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, Open, cb.State())

	time.Sleep(15 * time.Millisecond)

	assert.True(t, cb.Allow(), "must admit a trial call once open_timeout elapses")
	assert.Equal(t, HalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, HalfOpen, cb.State(), "needs success_threshold consecutive successes to close")

	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, Closed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Params{Name: "llm", FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond, HalfOpenMaxConcurrent: 1})
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)

	require.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, Open, cb.State())
}

func TestCircuitBreaker_HalfOpenConcurrencyGate(t *testing.T) {
	cb := New(Params{Name: "llm", FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: 10 * time.Millisecond, HalfOpenMaxConcurrent: 1})
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)

	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow(), "only one trial call is admitted at a time")
}

func TestRegistry_PerExecutorRefIsolation(t *testing.T) {
	reg := NewRegistry(DefaultParams("template"))
	a := reg.Get("bedrock-llm")
	b := reg.Get("vector-search")
	assert.NotSame(t, a, b)
	assert.Same(t, a, reg.Get("bedrock-llm"))
}
