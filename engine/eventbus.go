// Package engine wires scheduler, dispatcher, persistence, and dlq behind
// the Engine API from spec §6.4: submit, status, cancel, subscribe_events,
// validate. Grounded on orchestration/interfaces.go's Orchestrator shape,
// generalized from "orchestrate a natural-language request across agents"
// to "drive a workflow's DAG to completion."
package engine

import (
	"sync"
	"sync/atomic"
)

// Event is one lifecycle notification delivered to subscribers (spec §6.4:
// "emits lifecycle events").
type Event struct {
	ExecutionID string
	Kind        EventKind
	StepID      string                 `json:"step_id,omitempty"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Status      string                 `json:"status,omitempty"`
}

// EventKind is the closed set of lifecycle events an EventBus delivers.
type EventKind string

const (
	EventStepStarted        EventKind = "step.start"
	EventStepCompleted      EventKind = "step.complete"
	EventStepFailed         EventKind = "step.fail"
	EventWorkflowTransition EventKind = "workflow.transition"
)

// Handler receives events for one subscription.
type Handler func(Event)

// SubscriptionID identifies one SubscribeEvents call, for unsubscribing.
type SubscriptionID uint64

// EventBus implements dispatcher.EventSink, fanning step lifecycle
// notifications out to every subscriber of the originating execution id. A
// subscriber with executionID == "" receives events for every execution,
// used by a debug/admin surface.
type EventBus struct {
	mu        sync.RWMutex
	nextID    uint64
	subs      map[SubscriptionID]subscription
	byExecID  map[string][]SubscriptionID
	global    []SubscriptionID
}

type subscription struct {
	executionID string
	handler     Handler
}

// NewEventBus returns an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs:     make(map[SubscriptionID]subscription),
		byExecID: make(map[string][]SubscriptionID),
	}
}

// Subscribe registers handler for executionID's events ("" subscribes to
// every execution), returning an id Unsubscribe accepts.
func (b *EventBus) Subscribe(executionID string, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := SubscriptionID(atomic.AddUint64(&b.nextID, 1))
	b.subs[id] = subscription{executionID: executionID, handler: handler}
	if executionID == "" {
		b.global = append(b.global, id)
	} else {
		b.byExecID[executionID] = append(b.byExecID[executionID], id)
	}
	return id
}

// Unsubscribe removes a subscription registered by Subscribe.
func (b *EventBus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	if sub.executionID == "" {
		b.global = removeID(b.global, id)
	} else {
		b.byExecID[sub.executionID] = removeID(b.byExecID[sub.executionID], id)
	}
}

func removeID(ids []SubscriptionID, target SubscriptionID) []SubscriptionID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func (b *EventBus) publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, id := range b.byExecID[evt.ExecutionID] {
		b.subs[id].handler(evt)
	}
	for _, id := range b.global {
		b.subs[id].handler(evt)
	}
}

// StepStarted satisfies dispatcher.EventSink.
func (b *EventBus) StepStarted(executionID, stepID string) {
	b.publish(Event{ExecutionID: executionID, Kind: EventStepStarted, StepID: stepID})
}

// StepCompleted satisfies dispatcher.EventSink.
func (b *EventBus) StepCompleted(executionID, stepID string, outputs map[string]interface{}) {
	b.publish(Event{ExecutionID: executionID, Kind: EventStepCompleted, StepID: stepID, Outputs: outputs})
}

// StepFailed satisfies dispatcher.EventSink.
func (b *EventBus) StepFailed(executionID, stepID string, err error) {
	b.publish(Event{ExecutionID: executionID, Kind: EventStepFailed, StepID: stepID, Error: err.Error()})
}

// WorkflowTransition publishes a workflow-level status change.
func (b *EventBus) WorkflowTransition(executionID, status string) {
	b.publish(Event{ExecutionID: executionID, Kind: EventWorkflowTransition, Status: status})
}
