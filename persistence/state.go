// Package persistence implements the state-store interface, write-ahead
// log, checkpointing, and crash recovery from spec §4.8/§6.3/§6.5.
package persistence

import "time"

// StepStatus is the per-step lifecycle from spec §3.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepWaiting   StepStatus = "waiting"
	StepReady     StepStatus = "ready"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepRetrying  StepStatus = "retrying"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepCancelled StepStatus = "cancelled"
)

// WorkflowStatus is the per-workflow lifecycle from spec §3.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowPaused    WorkflowStatus = "paused"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
	WorkflowTimedOut  WorkflowStatus = "timed_out"
)

// legalWorkflowTransitions enumerates every allowed (from, to) pair (spec
// §3, §8 property 8: "every transition recorded in the WAL is in the
// allowed transition table").
var legalWorkflowTransitions = map[WorkflowStatus]map[WorkflowStatus]bool{
	WorkflowPending: {WorkflowRunning: true, WorkflowCancelled: true},
	WorkflowRunning: {
		WorkflowPaused: true, WorkflowCompleted: true, WorkflowFailed: true,
		WorkflowCancelled: true, WorkflowTimedOut: true,
	},
	WorkflowPaused: {WorkflowRunning: true, WorkflowCancelled: true},
}

// IsLegalWorkflowTransition reports whether from->to is in the allowed
// transition table.
func IsLegalWorkflowTransition(from, to WorkflowStatus) bool {
	return legalWorkflowTransitions[from][to]
}

var legalStepTransitions = map[StepStatus]map[StepStatus]bool{
	StepPending: {StepWaiting: true, StepReady: true, StepSkipped: true, StepCancelled: true},
	StepWaiting: {StepReady: true, StepSkipped: true, StepCancelled: true},
	StepReady:   {StepRunning: true, StepSkipped: true, StepCancelled: true},
	StepRunning: {
		StepCompleted: true, StepRetrying: true, StepFailed: true, StepCancelled: true,
	},
	StepRetrying: {StepRunning: true, StepFailed: true, StepCancelled: true},
}

// IsLegalStepTransition reports whether from->to is in the allowed
// transition table.
func IsLegalStepTransition(from, to StepStatus) bool {
	return legalStepTransitions[from][to]
}

// StepState is the persisted state of one step within one execution.
type StepState struct {
	StepID      string     `json:"step_id"`
	Status      StepStatus `json:"status"`
	Attempt     int        `json:"attempt"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Retryable   bool       `json:"retryable,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ExecutionState is the full persisted record for one workflow execution
// (spec §6.5's "executions" collection).
type ExecutionState struct {
	ExecutionID  string                 `json:"execution_id"`
	WorkflowName string                 `json:"workflow_name"`
	Status       WorkflowStatus         `json:"status"`
	Inputs       map[string]interface{} `json:"inputs"`
	Steps        map[string]*StepState  `json:"steps"`
	StartedAt    time.Time              `json:"started_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Checkpoint is a point-in-time snapshot of (workflow_state, per-step
// state, full context) per spec §3/§4.8.
type Checkpoint struct {
	CheckpointID string                 `json:"checkpoint_id"`
	ExecutionID  string                 `json:"execution_id"`
	Timestamp    time.Time              `json:"timestamp"`
	WALSequence  uint64                 `json:"wal_sequence"` // last WAL record folded into this snapshot
	Execution    ExecutionState         `json:"execution"`
	Context      map[string]interface{} `json:"context"` // flattened steps.<id>.<out> -> value
}

// DeadLetter is one quarantined step, keyed per spec §9's decided scope of
// (workflow_name, step_id) rather than globally.
type DeadLetter struct {
	ID           string                 `json:"id"`
	WorkflowName string                 `json:"workflow_name"`
	StepID       string                 `json:"step_id"`
	ExecutionID  string                 `json:"execution_id"`
	Inputs       map[string]interface{} `json:"inputs"`
	LastError    string                 `json:"last_error"`
	Attempts     int                    `json:"attempts"`
	QueuedAt     time.Time              `json:"queued_at"`
}
