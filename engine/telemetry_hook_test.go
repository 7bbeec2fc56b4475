package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInstrumentation_PairsStepStartedWithCompletedWithoutLeakingSpans(t *testing.T) {
	ins := NewInstrumentation(nil)
	bus := NewEventBus()
	ins.Attach(bus)

	bus.StepStarted("exec-1", "a")
	bus.StepCompleted("exec-1", "a", map[string]interface{}{"out": 1})

	ins.mu.Lock()
	defer ins.mu.Unlock()
	assert.Empty(t, ins.spans)
	assert.Empty(t, ins.started)
}

func TestInstrumentation_CompletedEventWithNoMatchingStartIsIgnored(t *testing.T) {
	ins := NewInstrumentation(nil)
	bus := NewEventBus()
	ins.Attach(bus)

	assert.NotPanics(t, func() {
		bus.StepCompleted("exec-1", "orphan", nil)
	})
}

func TestInstrumentation_StepFailedEndsSpanAndRecordsError(t *testing.T) {
	ins := NewInstrumentation(nil)
	bus := NewEventBus()
	ins.Attach(bus)

	bus.StepStarted("exec-1", "a")
	time.Sleep(time.Millisecond)
	bus.StepFailed("exec-1", "a", assert.AnError)

	ins.mu.Lock()
	defer ins.mu.Unlock()
	assert.Empty(t, ins.spans)
}
