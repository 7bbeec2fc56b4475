package persistence

import (
	"context"
	"time"
)

// Checkpointer takes and prunes checkpoints for a running execution (spec
// §4.8). The engine takes one after every step completion; it has no
// manual checkpoint call and takes no periodic checkpoints
// (core.EngineConfig.CheckpointInterval is not read).
type Checkpointer struct {
	store   StateStore
	retainN int
}

// NewCheckpointer returns a Checkpointer retaining the newest retainN
// checkpoints per execution.
func NewCheckpointer(store StateStore, retainN int) *Checkpointer {
	if retainN <= 0 {
		retainN = 10
	}
	return &Checkpointer{store: store, retainN: retainN}
}

// Take snapshots execution+context as of the given WAL sequence, saves it,
// and prunes anything beyond retainN. It does not touch the WAL, and the
// engine does not truncate the WAL after a checkpoint.
func (c *Checkpointer) Take(ctx context.Context, execution *ExecutionState, flatContext map[string]interface{}, walSeq uint64) (*Checkpoint, error) {
	cp := &Checkpoint{
		ExecutionID: execution.ExecutionID,
		Timestamp:   time.Now(),
		WALSequence: walSeq,
		Execution:   *execution,
		Context:     flatContext,
	}
	id, err := c.store.SaveCheckpoint(ctx, cp)
	if err != nil {
		return nil, err
	}
	cp.CheckpointID = id

	if err := c.store.PruneCheckpoints(ctx, execution.ExecutionID, c.retainN); err != nil {
		return cp, err
	}
	return cp, nil
}
