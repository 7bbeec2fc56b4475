package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyTable(t *testing.T) {
	cases := map[ErrorKind]Disposition{
		KindValidation:        DispositionFatal,
		KindCyclicDependency:  DispositionFatal,
		KindTemplate:          DispositionFatal,
		KindTransientExecutor: DispositionRetry,
		KindRateLimited:       DispositionRetry,
		KindTimeout:           DispositionRetry,
		KindCancelled:         DispositionFatal,
		KindPermanentExecutor: DispositionFallbackEligible,
		KindCircuitOpen:       DispositionFallbackEligible,
		KindResourceExhausted: DispositionDeferred,
		KindCheckpointError:   DispositionLoggedContinue,
	}
	for kind, want := range cases {
		assert.Equal(t, want, Policy(kind), "kind=%s", kind)
	}
}

func TestFrameworkErrorUnwrapAndIs(t *testing.T) {
	base := errors.New("boom")
	fe := NewError("dispatcher.Execute", KindTransientExecutor, base)

	assert.ErrorIs(t, fe, base)
	assert.Equal(t, KindTransientExecutor, KindOf(fe))
	assert.True(t, IsRetryable(fe))
	assert.False(t, IsCancelled(fe))
}

func TestFrameworkErrorMessageFallback(t *testing.T) {
	fe := &FrameworkError{Kind: KindFatal}
	assert.Equal(t, "Fatal error", fe.Error())

	fe2 := &FrameworkError{Message: "explicit message"}
	assert.Equal(t, "explicit message", fe2.Error())
}

func TestIsFallbackEligibleCoversRetryAndFallback(t *testing.T) {
	retry := NewError("op", KindTransientExecutor, errors.New("x"))
	fallback := NewError("op", KindCircuitOpen, errors.New("x"))
	fatal := NewError("op", KindValidation, errors.New("x"))

	assert.True(t, IsFallbackEligible(retry))
	assert.True(t, IsFallbackEligible(fallback))
	assert.False(t, IsFallbackEligible(fatal))
}
