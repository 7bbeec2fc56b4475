package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveLoadExecutionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state := &ExecutionState{
		ExecutionID:  "exec-1",
		WorkflowName: "linear-three-step",
		Status:       WorkflowRunning,
		Steps:        map[string]*StepState{"preprocess": {StepID: "preprocess", Status: StepRunning}},
		StartedAt:    time.Now(),
	}
	require.NoError(t, store.SaveExecution(ctx, state))

	loaded, err := store.LoadExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, state.WorkflowName, loaded.WorkflowName)
	assert.Equal(t, StepRunning, loaded.Steps["preprocess"].Status)
}

func TestMemoryStore_LoadMissingExecutionErrors(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.LoadExecution(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestMemoryStore_CheckpointRetention(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cpr := NewCheckpointer(store, 2)

	execution := &ExecutionState{ExecutionID: "exec-1", WorkflowName: "w", Status: WorkflowRunning}
	var lastID string
	for i := 0; i < 5; i++ {
		cp, err := cpr.Take(ctx, execution, map[string]interface{}{"n": i}, uint64(i))
		require.NoError(t, err)
		lastID = cp.CheckpointID
	}

	latest, err := store.LatestCheckpoint(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, lastID, latest.CheckpointID)

	ids := store.checkpointIndex["exec-1"]
	assert.Len(t, ids, 2, "only the newest N checkpoints are retained")
}

func TestMemoryStore_WALAppendAndReplayOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.AppendWAL(ctx, "exec-1", WALWorkflowStarted, map[string]string{"x": "1"})
	require.NoError(t, err)
	_, err = store.AppendWAL(ctx, "exec-1", WALStepOutputBound, map[string]string{"x": "2"})
	require.NoError(t, err)

	records, err := store.ReplayWAL(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].Sequence)
	assert.Equal(t, uint64(2), records[1].Sequence)
	assert.Equal(t, WALWorkflowStarted, records[0].Kind)
}

func TestMemoryStore_ListActiveExcludesTerminalExecutions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SaveExecution(ctx, &ExecutionState{ExecutionID: "running", Status: WorkflowRunning}))
	require.NoError(t, store.SaveExecution(ctx, &ExecutionState{ExecutionID: "done", Status: WorkflowCompleted}))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"running"}, active)
}

func TestRecover_RunningStepBecomesFailedRetryableByDefault(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	execution := &ExecutionState{
		ExecutionID:  "exec-crash",
		WorkflowName: "w",
		Status:       WorkflowRunning,
		Steps: map[string]*StepState{
			"step-a": {StepID: "step-a", Status: StepCompleted},
			"step-b": {StepID: "step-b", Status: StepRunning},
		},
	}
	require.NoError(t, store.SaveExecution(ctx, execution))

	recovered, err := Recover(ctx, store, nil)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, StepFailed, recovered[0].Execution.Steps["step-b"].Status)
	assert.True(t, recovered[0].Execution.Steps["step-b"].Retryable)
}

func TestRecover_IdempotentStepBecomesPending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	execution := &ExecutionState{
		ExecutionID: "exec-crash-2",
		Status:      WorkflowRunning,
		Steps:       map[string]*StepState{"step-b": {StepID: "step-b", Status: StepRunning}},
	}
	require.NoError(t, store.SaveExecution(ctx, execution))

	recovered, err := Recover(ctx, store, map[string]bool{"step-b": true})
	require.NoError(t, err)
	assert.Equal(t, StepPending, recovered[0].Execution.Steps["step-b"].Status)
}

func TestTransitionTables(t *testing.T) {
	assert.True(t, IsLegalWorkflowTransition(WorkflowRunning, WorkflowPaused))
	assert.True(t, IsLegalWorkflowTransition(WorkflowPaused, WorkflowRunning))
	assert.False(t, IsLegalWorkflowTransition(WorkflowCompleted, WorkflowRunning))
	assert.False(t, IsLegalWorkflowTransition(WorkflowCancelled, WorkflowRunning), "cancelled must never resume")

	assert.True(t, IsLegalStepTransition(StepRunning, StepRetrying))
	assert.False(t, IsLegalStepTransition(StepCompleted, StepRunning))
}
