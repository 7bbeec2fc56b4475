package persistence

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/flowforge/flowforge/core"
)

// MemoryStore is an in-process StateStore, used by tests and by
// single-process embeddings that accept losing state on restart. It
// implements the same save-ordering contract as a durable backend (WAL
// append before state update) so the scheduler code path is identical
// regardless of backend.
type MemoryStore struct {
	mu          sync.Mutex
	executions  map[string]*ExecutionState
	checkpoints map[string]*Checkpoint
	checkpointIndex map[string][]string // executionID -> checkpoint ids, oldest first
	wal         map[string][]*WALRecord
	seq         map[string]uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions:  make(map[string]*ExecutionState),
		checkpoints: make(map[string]*Checkpoint),
		checkpointIndex: make(map[string][]string),
		wal:         make(map[string][]*WALRecord),
		seq:         make(map[string]uint64),
	}
}

func (s *MemoryStore) SaveExecution(ctx context.Context, state *ExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := *state
	s.executions[state.ExecutionID] = &cloned
	return nil
}

func (s *MemoryStore) LoadExecution(ctx context.Context, executionID string) (*ExecutionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.executions[executionID]
	if !ok {
		return nil, core.NewError("MemoryStore.LoadExecution", core.KindCheckpointError, core.ErrNotFound)
	}
	cloned := *st
	return &cloned, nil
}

func (s *MemoryStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cp.CheckpointID == "" {
		cp.CheckpointID = uuid.NewString()
	}
	cloned := *cp
	s.checkpoints[cp.CheckpointID] = &cloned
	s.checkpointIndex[cp.ExecutionID] = append(s.checkpointIndex[cp.ExecutionID], cp.CheckpointID)
	return cp.CheckpointID, nil
}

func (s *MemoryStore) LoadCheckpoint(ctx context.Context, checkpointID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return nil, core.NewError("MemoryStore.LoadCheckpoint", core.KindCheckpointError, core.ErrNotFound)
	}
	cloned := *cp
	return &cloned, nil
}

func (s *MemoryStore) LatestCheckpoint(ctx context.Context, executionID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.checkpointIndex[executionID]
	if len(ids) == 0 {
		return nil, core.NewError("MemoryStore.LatestCheckpoint", core.KindCheckpointError, core.ErrNotFound)
	}
	cp := s.checkpoints[ids[len(ids)-1]]
	cloned := *cp
	return &cloned, nil
}

func (s *MemoryStore) AppendWAL(ctx context.Context, executionID string, kind WALRecordKind, payload interface{}) (*WALRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.NewError("MemoryStore.AppendWAL", core.KindCheckpointError, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[executionID]++
	rec := &WALRecord{
		Sequence:    s.seq[executionID],
		Kind:        kind,
		ExecutionID: executionID,
		Payload:     body,
	}
	s.wal[executionID] = append(s.wal[executionID], rec)
	return rec, nil
}

func (s *MemoryStore) ReplayWAL(ctx context.Context, executionID string) ([]*WALRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*WALRecord, len(s.wal[executionID]))
	copy(out, s.wal[executionID])
	return out, nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, st := range s.executions {
		if st.Status == WorkflowPending || st.Status == WorkflowRunning || st.Status == WorkflowPaused {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) PruneCheckpoints(ctx context.Context, executionID string, keepN int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.checkpointIndex[executionID]
	if len(ids) <= keepN {
		return nil
	}
	toDrop := ids[:len(ids)-keepN]
	for _, id := range toDrop {
		delete(s.checkpoints, id)
	}
	s.checkpointIndex[executionID] = ids[len(ids)-keepN:]
	return nil
}
