// Package dlq implements the dead-letter queue and fallback strategies from
// spec §4.9. A dead letter is scoped by (workflow_name, step_id) — per the
// DLQ-scope decision in DESIGN.md — so operators triage at the granularity
// of "this step, in this workflow definition, keeps failing" rather than a
// single global backlog.
package dlq

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/flowforge/persistence"
)

// Store persists dead letters, grounded on the same
// StorageProvider/key-prefix convention orchestration/execution_store.go
// uses for execution state, scoped here to (workflow_name, step_id) instead
// of execution id.
type Store interface {
	Enqueue(ctx context.Context, item *persistence.DeadLetter) error
	List(ctx context.Context, workflowName, stepID string) ([]*persistence.DeadLetter, error)
	Remove(ctx context.Context, workflowName, stepID, id string) error
	Purge(ctx context.Context, workflowName, stepID string) error
}

func scopeKey(workflowName, stepID string) string { return workflowName + "|" + stepID }

// MemoryStore is an in-process Store, used for tests and single-process
// demos; it is the only Store implementation in this package.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string][]*persistence.DeadLetter
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]*persistence.DeadLetter)}
}

func (s *MemoryStore) Enqueue(_ context.Context, item *persistence.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopeKey(item.WorkflowName, item.StepID)
	s.items[key] = append(s.items[key], item)
	return nil
}

func (s *MemoryStore) List(_ context.Context, workflowName, stepID string) ([]*persistence.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[scopeKey(workflowName, stepID)]
	out := make([]*persistence.DeadLetter, len(items))
	copy(out, items)
	return out, nil
}

func (s *MemoryStore) Remove(_ context.Context, workflowName, stepID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopeKey(workflowName, stepID)
	items := s.items[key]
	for i, it := range items {
		if it.ID == id {
			s.items[key] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, workflowName, stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, scopeKey(workflowName, stepID))
	return nil
}

// Queue is the operator-facing API: Enqueue/List/Retry/Purge (spec §4.9).
type Queue struct {
	store Store
}

// NewQueue wraps a Store.
func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// Enqueue records a dead letter once a step has exhausted retries and has
// no eligible fallback (or its fallback also failed).
func (q *Queue) Enqueue(ctx context.Context, workflowName, stepID, executionID string, inputs map[string]interface{}, lastErr error, attempts int) error {
	item := &persistence.DeadLetter{
		ID:           uuid.NewString(),
		WorkflowName: workflowName,
		StepID:       stepID,
		ExecutionID:  executionID,
		Inputs:       inputs,
		Attempts:     attempts,
		QueuedAt:     time.Now(),
	}
	if lastErr != nil {
		item.LastError = lastErr.Error()
	}
	return q.store.Enqueue(ctx, item)
}

// List returns every dead letter queued for (workflowName, stepID).
func (q *Queue) List(ctx context.Context, workflowName, stepID string) ([]*persistence.DeadLetter, error) {
	return q.store.List(ctx, workflowName, stepID)
}

// Retry replays a single dead letter's inputs through run, removing it from
// the queue only on success.
func (q *Queue) Retry(ctx context.Context, workflowName, stepID, id string, run func(ctx context.Context, item *persistence.DeadLetter) error) error {
	items, err := q.store.List(ctx, workflowName, stepID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ID != id {
			continue
		}
		if err := run(ctx, item); err != nil {
			return err
		}
		return q.store.Remove(ctx, workflowName, stepID, id)
	}
	return nil
}

// Purge discards every dead letter queued for (workflowName, stepID).
func (q *Queue) Purge(ctx context.Context, workflowName, stepID string) error {
	return q.store.Purge(ctx, workflowName, stepID)
}
