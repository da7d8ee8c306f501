// Package jobstore implements the Job Store (spec.md §3 Job Record, §4.5
// Worker Runtime): the durable record of a worker invocation's progress,
// output, and error, shared between local and remote dispatch modes so a
// caller sees the same record regardless of where the worker actually ran.
package jobstore

import (
	"errors"
	"time"
)

// Status is a Job Record's lifecycle state (spec.md §3).
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether s is a terminal Job Record status, past which
// the record is immutable (spec.md §3 invariant).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// LogEntry is one append-only timestamped log line on a Job Record.
type LogEntry struct {
	Time time.Time `json:"time" bson:"time"`
	Text string    `json:"text" bson:"text"`
}

// WorkerError is a worker failure serialized onto a Job Record (spec.md
// §4.5 "Failure semantics").
type WorkerError struct {
	Message string `json:"message" bson:"message"`
	Name    string `json:"name,omitempty" bson:"name,omitempty"`
	Stack   string `json:"stack,omitempty" bson:"stack,omitempty"`
}

func (e *WorkerError) Error() string { return e.Message }

// Record is a Job Record (spec.md §3). Terminal status (Completed/Failed)
// is immutable once reached; ProgressPct is monotonic non-decreasing within
// a single status.
type Record struct {
	JobID           string          `json:"jobId" bson:"_id"`
	WorkerID        string          `json:"workerId" bson:"workerId"`
	Status          Status          `json:"status" bson:"status"`
	ProgressPct     int             `json:"progressPct" bson:"progressPct"`
	ProgressMessage string          `json:"progressMessage,omitempty" bson:"progressMessage,omitempty"`
	Logs            []LogEntry      `json:"logs,omitempty" bson:"logs,omitempty"`
	Input           []byte          `json:"input" bson:"input"`
	Output          []byte          `json:"output,omitempty" bson:"output,omitempty"`
	Error           *WorkerError    `json:"error,omitempty" bson:"error,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt" bson:"updatedAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	FinishedAt      *time.Time      `json:"finishedAt,omitempty" bson:"finishedAt,omitempty"`
}

// Clone returns a deep-enough copy of r for callers that must not observe
// later in-place mutation (the memory backend hands these out directly).
func (r *Record) Clone() *Record {
	cp := *r
	if r.Logs != nil {
		cp.Logs = append([]LogEntry(nil), r.Logs...)
	}
	if r.Output != nil {
		cp.Output = append([]byte(nil), r.Output...)
	}
	if r.Error != nil {
		e := *r.Error
		cp.Error = &e
	}
	if r.Metadata != nil {
		m := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			m[k] = v
		}
		cp.Metadata = m
	}
	return &cp
}

// Update is a partial mutation applied atomically to a Record by
// Store.Update (spec.md §4.5 "jobStore.update(partial)"). Nil fields are
// left unchanged. Status and Output, when both present, are applied in the
// same atomic unit so a reader never observes status=completed with a
// stale/empty output (spec.md §5 "Shared resources").
type Update struct {
	Status          *Status
	ProgressPct     *int
	ProgressMessage *string
	AppendLog       *string
	Output          []byte
	Error           *WorkerError
	Metadata        map[string]any
}

// QueueStepStatus mirrors Status for an individual Queue Job Record step.
type QueueStepStatus = Status

// QueueStep is one step of a Queue Job Record (spec.md §3).
type QueueStep struct {
	StepIndex   int             `json:"stepIndex" bson:"stepIndex"`
	WorkerID    string          `json:"workerId" bson:"workerId"`
	WorkerJobID string          `json:"workerJobId,omitempty" bson:"workerJobId,omitempty"`
	Status      QueueStepStatus `json:"status" bson:"status"`
	Input       []byte          `json:"input,omitempty" bson:"input,omitempty"`
	Output      []byte          `json:"output,omitempty" bson:"output,omitempty"`
	Error       *WorkerError    `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt   *time.Time      `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty" bson:"finishedAt,omitempty"`
}

// QueueRecord is a Queue Job Record (spec.md §3, §4.5 "Queue (multi-step
// worker chain)"). Status is derived: running if any step is running,
// completed if the last step completed, failed if any step failed.
type QueueRecord struct {
	QueueJobID string      `json:"queueJobId" bson:"_id"`
	QueueID    string      `json:"queueId" bson:"queueId"`
	Steps      []QueueStep `json:"steps" bson:"steps"`
	CreatedAt  time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt" bson:"updatedAt"`
}

// DerivedStatus computes the QueueRecord's overall status from its steps
// (spec.md §3 "queue status is derived").
func (q *QueueRecord) DerivedStatus() Status {
	if len(q.Steps) == 0 {
		return StatusQueued
	}
	anyRunning := false
	for _, s := range q.Steps {
		switch s.Status {
		case StatusFailed:
			return StatusFailed
		case StatusRunning:
			anyRunning = true
		}
	}
	if anyRunning {
		return StatusRunning
	}
	last := q.Steps[len(q.Steps)-1]
	if last.Status == StatusCompleted {
		return StatusCompleted
	}
	return StatusQueued
}

// ErrNotFound is returned by Store lookups for an unknown jobId/queueJobId.
var ErrNotFound = errors.New("jobstore: not found")

// ErrTerminal is returned by Update when the target Record is already in a
// terminal status (spec.md §3 "terminal status ... is immutable").
var ErrTerminal = errors.New("jobstore: record is terminal")
