package core

import (
	"errors"
	"fmt"
)

// ErrorKind is the error taxonomy from the error handling design: a closed
// set of kinds, not Go type names, so policy can be decided by a single
// switch rather than a type assertion per call site.
type ErrorKind string

const (
	KindValidation        ErrorKind = "ValidationError"
	KindCyclicDependency  ErrorKind = "CyclicDependency"
	KindTemplate          ErrorKind = "TemplateError"
	KindTransientExecutor ErrorKind = "TransientExecutor"
	KindRateLimited       ErrorKind = "RateLimited"
	KindTimeout           ErrorKind = "Timeout"
	KindCancelled         ErrorKind = "Cancelled"
	KindPermanentExecutor ErrorKind = "PermanentExecutor"
	KindCircuitOpen       ErrorKind = "CircuitOpen"
	KindResourceExhausted ErrorKind = "ResourceExhausted"
	KindCheckpointError   ErrorKind = "CheckpointError"
	KindFatal             ErrorKind = "Fatal"
)

// Disposition is what the scheduler/dispatcher does with an error of a given
// Kind, per the propagation policy in spec §7.
type Disposition int

const (
	DispositionFatal Disposition = iota
	DispositionRetry
	DispositionDeferred
	DispositionFallbackEligible
	DispositionLoggedContinue
)

// Policy returns the single, canonical disposition for an error kind. Every
// caller (scheduler, dispatcher, retry coordinator) consults this instead of
// re-deriving the table from spec §7 at each call site.
func Policy(kind ErrorKind) Disposition {
	switch kind {
	case KindValidation, KindCyclicDependency, KindFatal:
		return DispositionFatal
	case KindTemplate:
		return DispositionFatal
	case KindTransientExecutor, KindRateLimited, KindTimeout:
		return DispositionRetry
	case KindCancelled:
		return DispositionFatal
	case KindPermanentExecutor, KindCircuitOpen:
		return DispositionFallbackEligible
	case KindResourceExhausted:
		return DispositionDeferred
	case KindCheckpointError:
		return DispositionLoggedContinue
	default:
		return DispositionFatal
	}
}

// Sentinel errors for comparison via errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrTimeout              = errors.New("operation timed out")
	ErrCancelled            = errors.New("operation cancelled")
	ErrCircuitOpen          = errors.New("circuit breaker open")
	ErrMaxAttemptsExceeded  = errors.New("maximum retry attempts exceeded")
	ErrValidation           = errors.New("validation failed")
	ErrCyclicDependency     = errors.New("workflow contains a dependency cycle")
	ErrAlreadyStarted       = errors.New("already started")
	ErrNotInitialized       = errors.New("not initialized")
	ErrUnknownReference     = errors.New("unknown reference")
	ErrResourceExhausted    = errors.New("insufficient resources")
)

// FrameworkError is the structured error carried through the engine. It
// pairs a taxonomy Kind with operation context so logs and the DLQ can
// record *why* without parsing message strings.
type FrameworkError struct {
	Op      string
	Kind    ErrorKind
	ID      string
	Message string
	Err     error
}

func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *FrameworkError) Unwrap() error { return e.Err }

// NewError builds a FrameworkError for a given operation/kind, wrapping the
// underlying cause.
func NewError(op string, kind ErrorKind, err error) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind from an error if it (or something it wraps) is a
// *FrameworkError; otherwise it returns KindFatal as a conservative default.
func KindOf(err error) ErrorKind {
	var fe *FrameworkError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindFatal
}

// IsRetryable reports whether the error's disposition is DispositionRetry.
func IsRetryable(err error) bool {
	return Policy(KindOf(err)) == DispositionRetry
}

// IsFallbackEligible reports whether a DLQ fallback strategy may run after
// retries for this error are exhausted.
func IsFallbackEligible(err error) bool {
	d := Policy(KindOf(err))
	return d == DispositionFallbackEligible || d == DispositionRetry
}

// IsCancelled reports whether the error represents cooperative cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || KindOf(err) == KindCancelled
}

// IsNotFound reports whether the error represents a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
