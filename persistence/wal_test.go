package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAL_AppendAndReopenReplaysAllRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exec-1.wal")

	w, err := OpenWAL(path)
	require.NoError(t, err)

	_, err = w.Append(WALWorkflowStarted, "exec-1", map[string]string{"workflow": "linear"})
	require.NoError(t, err)
	_, err = w.Append(WALStepStateTransition, "exec-1", &StepState{StepID: "preprocess", Status: StepRunning})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	reopened, err := OpenWAL(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Replay()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].Sequence)
	assert.Equal(t, uint64(2), records[1].Sequence)

	// sequence counter must continue from the prior session's max, not reset
	_, err = reopened.Append(WALStepOutputBound, "exec-1", map[string]string{"x": "1"})
	require.NoError(t, err)
	records, err = reopened.Replay()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), records[2].Sequence)
}

func TestWAL_TruncateDropsRecordsUpToSequence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exec-1.wal")
	w, err := OpenWAL(path)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 4; i++ {
		_, err := w.Append(WALStepOutputBound, "exec-1", map[string]int{"i": i})
		require.NoError(t, err)
	}

	require.NoError(t, w.Truncate(2))

	records, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(3), records[0].Sequence)
	assert.Equal(t, uint64(4), records[1].Sequence)
}
