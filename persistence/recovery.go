package persistence

import (
	"context"
	"encoding/json"
)

// Recovered is the rebuilt in-memory state for one execution after replay,
// ready for the scheduler to resume from (spec §4.8 step 4: "resume the
// scheduler loop from the rebuilt ready set").
type Recovered struct {
	Execution *ExecutionState
	Context   map[string]interface{} // flattened step-output values, from the checkpoint
}

// Recover implements spec §4.8's recovery procedure:
//  1. load every execution whose latest terminal record is absent
//  2. for each, load the most recent checkpoint (if any) and replay all
//     WAL entries strictly newer than it
//  3. mark steps that were Running at crash time Failed{retryable=true}
//     unless their executor is idempotent, in which case Pending
//  4. return the rebuilt state for the scheduler to resume from
//
// idempotentSteps names step ids whose executor declared idempotence
// (spec §9's decided default: at-least-once, non-idempotent-by-default).
func Recover(ctx context.Context, store StateStore, idempotentSteps map[string]bool) ([]*Recovered, error) {
	activeIDs, err := store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var out []*Recovered
	for _, id := range activeIDs {
		r, err := recoverOne(ctx, store, id, idempotentSteps)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func recoverOne(ctx context.Context, store StateStore, executionID string, idempotentSteps map[string]bool) (*Recovered, error) {
	var (
		execution *ExecutionState
		flatCtx   = make(map[string]interface{})
		sinceSeq  uint64
	)

	if cp, err := store.LatestCheckpoint(ctx, executionID); err == nil {
		snapshot := cp.Execution
		execution = &snapshot
		for k, v := range cp.Context {
			flatCtx[k] = v
		}
		sinceSeq = cp.WALSequence
	} else {
		loaded, loadErr := store.LoadExecution(ctx, executionID)
		if loadErr != nil {
			return nil, loadErr
		}
		execution = loaded
	}

	records, err := store.ReplayWAL(ctx, executionID)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Sequence <= sinceSeq {
			continue
		}
		applyRecord(execution, flatCtx, rec)
	}

	for stepID, st := range execution.Steps {
		if st.Status == StepRunning {
			if idempotentSteps[stepID] {
				st.Status = StepPending
			} else {
				st.Status = StepFailed
				st.Retryable = true
			}
		}
	}

	return &Recovered{Execution: execution, Context: flatCtx}, nil
}

// applyRecord folds one WAL record into the in-memory execution/context
// state being rebuilt.
func applyRecord(execution *ExecutionState, flatCtx map[string]interface{}, rec *WALRecord) {
	switch rec.Kind {
	case WALWorkflowStarted, WALWorkflowTerminated:
		var state ExecutionState
		if json.Unmarshal(rec.Payload, &state) == nil {
			*execution = state
		}
	case WALStepStateTransition:
		var st StepState
		if json.Unmarshal(rec.Payload, &st) == nil {
			if execution.Steps == nil {
				execution.Steps = make(map[string]*StepState)
			}
			execution.Steps[st.StepID] = &st
		}
	case WALStepOutputBound:
		var bound struct {
			StepID string      `json:"step_id"`
			Output string      `json:"output_name"`
			Value  interface{} `json:"value"`
		}
		if json.Unmarshal(rec.Payload, &bound) == nil {
			flatCtx[bound.StepID+"."+bound.Output] = bound.Value
		}
	case WALCheckpoint:
		// A mid-stream checkpoint record is informational for replay
		// purposes; the snapshot itself was already loaded separately.
	}
}
