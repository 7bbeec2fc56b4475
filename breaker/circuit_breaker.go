// Package breaker implements the per-executor_ref circuit breaker FSM from
// spec §4.7: Closed -> Open{opened_at} -> HalfOpen -> {Closed|Open}.
//
// Adapted from the teacher's two circuit breaker implementations
// (core/circuit_breaker.go's interface, resilience/circuit_breaker.go's
// atomic-state-plus-mutex-for-transitions structure) but simplified down
// to spec §4.7's four-parameter model: a sliding error-rate window is more
// than the spec calls for, so this counts consecutive failures/successes
// instead of a bucketed rate.
package breaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowforge/flowforge/core"
)

// State is the circuit's current phase.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Params configures one CircuitBreaker instance (spec §4.7).
type Params struct {
	Name                 string
	FailureThreshold     int           // consecutive failures to trip Closed -> Open
	SuccessThreshold     int           // consecutive half-open successes to close
	OpenTimeout          time.Duration // how long Open holds before trying HalfOpen
	HalfOpenMaxConcurrent int          // concurrent trial requests allowed while HalfOpen
	Logger               core.ComponentLogger
}

// DefaultParams mirrors core.DefaultCircuitBreakerParams' shape, scaled to
// spec §4.7's simpler model.
func DefaultParams(name string) Params {
	return Params{
		Name:                  name,
		FailureThreshold:      5,
		SuccessThreshold:      3,
		OpenTimeout:           30 * time.Second,
		HalfOpenMaxConcurrent: 1,
	}
}

// CircuitBreaker is one per executor_ref (spec §4.7: breaker state is
// scoped to the executor reference, not global).
type CircuitBreaker struct {
	params Params

	mu        sync.Mutex
	state     State
	openedAt  time.Time
	consecFail int
	consecOK   int

	halfOpenInFlight atomic.Int32
}

// New constructs a breaker in the Closed state.
func New(params Params) *CircuitBreaker {
	if params.FailureThreshold <= 0 {
		params.FailureThreshold = 5
	}
	if params.SuccessThreshold <= 0 {
		params.SuccessThreshold = 3
	}
	if params.OpenTimeout <= 0 {
		params.OpenTimeout = 30 * time.Second
	}
	if params.HalfOpenMaxConcurrent <= 0 {
		params.HalfOpenMaxConcurrent = 1
	}
	if params.Logger == nil {
		params.Logger = core.NoopLogger{}
	}
	return &CircuitBreaker{params: params, state: Closed}
}

// Allow reports whether a call may proceed, transitioning Open -> HalfOpen
// once OpenTimeout has elapsed, and gating HalfOpen concurrency to
// HalfOpenMaxConcurrent in-flight trial calls.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true
	case Open:
		if time.Since(cb.openedAt) >= cb.params.OpenTimeout {
			cb.transition(HalfOpen)
			cb.consecOK = 0
			cb.halfOpenInFlight.Store(0)
			return cb.admitHalfOpenLocked()
		}
		return false
	case HalfOpen:
		return cb.admitHalfOpenLocked()
	default:
		return false
	}
}

// admitHalfOpenLocked must be called with cb.mu held.
func (cb *CircuitBreaker) admitHalfOpenLocked() bool {
	if int(cb.halfOpenInFlight.Load()) >= cb.params.HalfOpenMaxConcurrent {
		return false
	}
	cb.halfOpenInFlight.Add(1)
	return true
}

// RecordSuccess reports a successful call, possibly closing a HalfOpen
// breaker once SuccessThreshold consecutive successes accumulate.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.halfOpenInFlight.Add(-1)
		cb.consecOK++
		cb.consecFail = 0
		if cb.consecOK >= cb.params.SuccessThreshold {
			cb.transition(Closed)
		}
	case Closed:
		cb.consecFail = 0
	}
}

// RecordFailure reports a failed call, tripping Closed -> Open once
// FailureThreshold consecutive failures accumulate, or immediately
// re-opening from HalfOpen on any trial failure (spec §4.7).
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.halfOpenInFlight.Add(-1)
		cb.transition(Open)
	case Closed:
		cb.consecFail++
		cb.consecOK = 0
		if cb.consecFail >= cb.params.FailureThreshold {
			cb.transition(Open)
		}
	}
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == Open {
		cb.openedAt = time.Now()
	}
	cb.params.Logger.Info("circuit breaker state transition", map[string]interface{}{
		"name": cb.params.Name, "from": from.String(), "to": to.String(),
	})
}

// State returns the current phase.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to Closed, clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = Closed
	cb.consecFail = 0
	cb.consecOK = 0
	cb.halfOpenInFlight.Store(0)
}
