package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/flowforge/flowforge/core"
)

// RedisStore is a StateStore backed by Redis, grounded on the teacher's
// execution_store.go key-prefix-plus-sorted-index convention
// (recordKey/indexKey, ListByScoreDesc). Executions and checkpoints are
// plain JSON blobs; WAL entries are appended to a Redis list so ReplayWAL
// preserves append order without a separate sorted index.
type RedisStore struct {
	client *redis.Client
	ttl    int64 // seconds; 0 means no expiry
}

// NewRedisStore wraps an existing *redis.Client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SaveExecution(ctx context.Context, state *ExecutionState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return core.NewError("RedisStore.SaveExecution", core.KindCheckpointError, err)
	}
	if err := s.client.Set(ctx, executionKey(state.ExecutionID), body, 0).Err(); err != nil {
		return core.NewError("RedisStore.SaveExecution", core.KindCheckpointError, err)
	}
	if isActive(state.Status) {
		s.client.SAdd(ctx, keyPrefixActiveIndex, state.ExecutionID)
	} else {
		s.client.SRem(ctx, keyPrefixActiveIndex, state.ExecutionID)
	}
	return nil
}

func isActive(status WorkflowStatus) bool {
	return status == WorkflowPending || status == WorkflowRunning || status == WorkflowPaused
}

func (s *RedisStore) LoadExecution(ctx context.Context, executionID string) (*ExecutionState, error) {
	body, err := s.client.Get(ctx, executionKey(executionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.NewError("RedisStore.LoadExecution", core.KindCheckpointError, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.NewError("RedisStore.LoadExecution", core.KindCheckpointError, err)
	}
	var state ExecutionState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, core.NewError("RedisStore.LoadExecution", core.KindCheckpointError, err)
	}
	return &state, nil
}

func (s *RedisStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) (string, error) {
	if cp.CheckpointID == "" {
		cp.CheckpointID = uuid.NewString()
	}
	body, err := json.Marshal(cp)
	if err != nil {
		return "", core.NewError("RedisStore.SaveCheckpoint", core.KindCheckpointError, err)
	}
	if err := s.client.Set(ctx, checkpointKey(cp.CheckpointID), body, 0).Err(); err != nil {
		return "", core.NewError("RedisStore.SaveCheckpoint", core.KindCheckpointError, err)
	}
	score := float64(cp.Timestamp.UnixNano())
	if err := s.client.ZAdd(ctx, checkpointIndexKey(cp.ExecutionID), &redis.Z{Score: score, Member: cp.CheckpointID}).Err(); err != nil {
		return "", core.NewError("RedisStore.SaveCheckpoint", core.KindCheckpointError, err)
	}
	return cp.CheckpointID, nil
}

func (s *RedisStore) LoadCheckpoint(ctx context.Context, checkpointID string) (*Checkpoint, error) {
	body, err := s.client.Get(ctx, checkpointKey(checkpointID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.NewError("RedisStore.LoadCheckpoint", core.KindCheckpointError, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.NewError("RedisStore.LoadCheckpoint", core.KindCheckpointError, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(body, &cp); err != nil {
		return nil, core.NewError("RedisStore.LoadCheckpoint", core.KindCheckpointError, err)
	}
	return &cp, nil
}

func (s *RedisStore) LatestCheckpoint(ctx context.Context, executionID string) (*Checkpoint, error) {
	ids, err := s.client.ZRevRange(ctx, checkpointIndexKey(executionID), 0, 0).Result()
	if err != nil {
		return nil, core.NewError("RedisStore.LatestCheckpoint", core.KindCheckpointError, err)
	}
	if len(ids) == 0 {
		return nil, core.NewError("RedisStore.LatestCheckpoint", core.KindCheckpointError, core.ErrNotFound)
	}
	return s.LoadCheckpoint(ctx, ids[0])
}

func walKey(executionID string) string {
	return fmt.Sprintf("flowforge:wal:%s", executionID)
}

func (s *RedisStore) AppendWAL(ctx context.Context, executionID string, kind WALRecordKind, payload interface{}) (*WALRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.NewError("RedisStore.AppendWAL", core.KindCheckpointError, err)
	}
	seq, err := s.client.Incr(ctx, fmt.Sprintf("flowforge:wal-seq:%s", executionID)).Result()
	if err != nil {
		return nil, core.NewError("RedisStore.AppendWAL", core.KindCheckpointError, err)
	}
	rec := &WALRecord{Sequence: uint64(seq), Kind: kind, ExecutionID: executionID, Payload: body}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, core.NewError("RedisStore.AppendWAL", core.KindCheckpointError, err)
	}
	if err := s.client.RPush(ctx, walKey(executionID), raw).Err(); err != nil {
		return nil, core.NewError("RedisStore.AppendWAL", core.KindCheckpointError, err)
	}
	return rec, nil
}

func (s *RedisStore) ReplayWAL(ctx context.Context, executionID string) ([]*WALRecord, error) {
	raws, err := s.client.LRange(ctx, walKey(executionID), 0, -1).Result()
	if err != nil {
		return nil, core.NewError("RedisStore.ReplayWAL", core.KindCheckpointError, err)
	}
	out := make([]*WALRecord, 0, len(raws))
	for _, raw := range raws {
		var rec WALRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, core.NewError("RedisStore.ReplayWAL", core.KindCheckpointError, err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (s *RedisStore) ListActive(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, keyPrefixActiveIndex).Result()
	if err != nil {
		return nil, core.NewError("RedisStore.ListActive", core.KindCheckpointError, err)
	}
	return ids, nil
}

func (s *RedisStore) PruneCheckpoints(ctx context.Context, executionID string, keepN int) error {
	total, err := s.client.ZCard(ctx, checkpointIndexKey(executionID)).Result()
	if err != nil {
		return core.NewError("RedisStore.PruneCheckpoints", core.KindCheckpointError, err)
	}
	if int(total) <= keepN {
		return nil
	}
	stale, err := s.client.ZRange(ctx, checkpointIndexKey(executionID), 0, total-int64(keepN)-1).Result()
	if err != nil {
		return core.NewError("RedisStore.PruneCheckpoints", core.KindCheckpointError, err)
	}
	pipe := s.client.Pipeline()
	for _, id := range stale {
		pipe.Del(ctx, checkpointKey(id))
		pipe.ZRem(ctx, checkpointIndexKey(executionID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewError("RedisStore.PruneCheckpoints", core.KindCheckpointError, err)
	}
	return nil
}
