package persistence

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/flowforge/flowforge/core"
)

// WALRecordKind is the closed set of WAL record variants (spec §4.8).
type WALRecordKind string

const (
	WALWorkflowStarted    WALRecordKind = "workflow_started"
	WALStepStateTransition WALRecordKind = "step_state_transition"
	WALStepOutputBound    WALRecordKind = "step_output_bound"
	WALCheckpoint         WALRecordKind = "checkpoint"
	WALWorkflowTerminated WALRecordKind = "workflow_terminated"
)

// WALRecord is one append-only log entry. Payload's shape depends on Kind:
// WorkflowStarted/WorkflowTerminated carry an ExecutionState; StepState
// Transition carries a StepState; StepOutputBound carries {step_id,
// output_name, value}; Checkpoint carries a Checkpoint.
type WALRecord struct {
	Sequence    uint64          `json:"sequence"`
	Kind        WALRecordKind   `json:"kind"`
	ExecutionID string          `json:"execution_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// WAL is an append-only, length-prefixed, fsync-before-ack log file. A
// single mutex around the append handle serializes writes, matching spec
// §5's "WAL: a single mutex around the append handle; writes serialize;
// fsync is inside the lock."
type WAL struct {
	mu   sync.Mutex
	file *os.File
	seq  uint64
}

// OpenWAL opens (creating if absent) the log file at path for appending,
// and primes the sequence counter by scanning any existing records.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, core.NewError("persistence.OpenWAL", core.KindCheckpointError, err)
	}
	w := &WAL{file: f}
	records, err := readAll(path)
	if err != nil {
		f.Close()
		return nil, core.NewError("persistence.OpenWAL", core.KindCheckpointError, err)
	}
	for _, r := range records {
		if r.Sequence > w.seq {
			w.seq = r.Sequence
		}
	}
	return w, nil
}

// Append writes one record, fsyncing before returning (spec §4.8: "each
// append fsyncs before acknowledging").
func (w *WAL) Append(kind WALRecordKind, executionID string, payload interface{}) (*WALRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.NewError("WAL.Append", core.KindCheckpointError, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	rec := &WALRecord{
		Sequence:    w.seq,
		Kind:        kind,
		ExecutionID: executionID,
		Timestamp:   time.Now(),
		Payload:     body,
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, core.NewError("WAL.Append", core.KindCheckpointError, err)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(raw)))
	if _, err := w.file.Write(lenBuf[:]); err != nil {
		return nil, core.NewError("WAL.Append", core.KindCheckpointError, err)
	}
	if _, err := w.file.Write(raw); err != nil {
		return nil, core.NewError("WAL.Append", core.KindCheckpointError, err)
	}
	if err := w.file.Sync(); err != nil {
		return nil, core.NewError("WAL.Append", core.KindCheckpointError, err)
	}
	return rec, nil
}

// Replay returns every record in the log in append order.
func (w *WAL) Replay() ([]*WALRecord, error) {
	w.mu.Lock()
	path := w.file.Name()
	w.mu.Unlock()
	return readAll(path)
}

// Truncate discards every record up to and including upToSeq, used after a
// checkpoint lands (spec §9's decided retention policy: truncate-on-
// checkpoint with one checkpoint's safety margin — callers pass the
// sequence of the checkpoint *before* the one just taken, never the
// latest, so a crash mid-checkpoint-write still has a WAL prefix to
// replay from).
func (w *WAL) Truncate(upToSeq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	records, err := readAll(w.file.Name())
	if err != nil {
		return core.NewError("WAL.Truncate", core.KindCheckpointError, err)
	}
	var keep []*WALRecord
	for _, r := range records {
		if r.Sequence > upToSeq {
			keep = append(keep, r)
		}
	}

	tmp := w.file.Name() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return core.NewError("WAL.Truncate", core.KindCheckpointError, err)
	}
	bw := bufio.NewWriter(f)
	for _, r := range keep {
		raw, err := json.Marshal(r)
		if err != nil {
			f.Close()
			return core.NewError("WAL.Truncate", core.KindCheckpointError, err)
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(raw)))
		bw.Write(lenBuf[:])
		bw.Write(raw)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return core.NewError("WAL.Truncate", core.KindCheckpointError, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return core.NewError("WAL.Truncate", core.KindCheckpointError, err)
	}
	f.Close()

	if err := w.file.Close(); err != nil {
		return core.NewError("WAL.Truncate", core.KindCheckpointError, err)
	}
	if err := os.Rename(tmp, w.file.Name()); err != nil {
		return core.NewError("WAL.Truncate", core.KindCheckpointError, err)
	}
	newFile, err := os.OpenFile(w.file.Name(), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return core.NewError("WAL.Truncate", core.KindCheckpointError, err)
	}
	w.file = newFile
	return nil
}

// Close closes the underlying file handle.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func readAll(path string) ([]*WALRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []*WALRecord
	r := bufio.NewReader(f)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("truncated WAL record: %w", err)
		}
		var rec WALRecord
		if err := json.Unmarshal(buf, &rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, nil
}
