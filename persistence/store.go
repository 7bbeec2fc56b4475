package persistence

import (
	"context"
	"fmt"
)

// StateStore is the outbound persistence contract from spec §6.3, mirroring
// the teacher's ExecutionStore/StorageProvider split (orchestration/
// execution_store.go): a storage-agnostic interface so Redis, an
// in-process map (tests), or any other backend can implement it uniformly.
type StateStore interface {
	SaveExecution(ctx context.Context, state *ExecutionState) error
	LoadExecution(ctx context.Context, executionID string) (*ExecutionState, error)
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) (string, error)
	LoadCheckpoint(ctx context.Context, checkpointID string) (*Checkpoint, error)
	LatestCheckpoint(ctx context.Context, executionID string) (*Checkpoint, error)
	AppendWAL(ctx context.Context, executionID string, kind WALRecordKind, payload interface{}) (*WALRecord, error)
	ReplayWAL(ctx context.Context, executionID string) ([]*WALRecord, error)
	ListActive(ctx context.Context) ([]string, error)
	PruneCheckpoints(ctx context.Context, executionID string, keepN int) error
}

// recordKey / indexKey style key-prefixing, grounded directly on
// execution_store.go's executionStoreImpl.recordKey/indexKey helpers.
const (
	keyPrefixExecution  = "flowforge:execution:"
	keyPrefixCheckpoint = "flowforge:checkpoint:"
	keyPrefixCheckpointIndex = "flowforge:checkpoint-index:"
	keyPrefixActiveIndex = "flowforge:active-executions"
)

func executionKey(executionID string) string {
	return keyPrefixExecution + executionID
}

func checkpointKey(checkpointID string) string {
	return keyPrefixCheckpoint + checkpointID
}

func checkpointIndexKey(executionID string) string {
	return fmt.Sprintf("%s%s", keyPrefixCheckpointIndex, executionID)
}
