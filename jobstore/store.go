package jobstore

import "context"

// Store is the Job Store port (spec.md §3, §4.5). Implementations MUST
// apply Update atomically per job: once Status transitions to a terminal
// value, Output (or Error) is visible to readers in that same update
// (spec.md §5 "Shared resources").
type Store interface {
	// Create inserts a new Record with status=queued. If a record with
	// jobID already exists, Create returns it unchanged rather than
	// creating a duplicate (spec.md §4.5 "Idempotency").
	Create(ctx context.Context, jobID, workerID string, input []byte, metadata map[string]any) (*Record, error)
	// Get returns the Record for jobID, or ErrNotFound.
	Get(ctx context.Context, jobID string) (*Record, error)
	// Update atomically merges upd into the Record for jobID. Returns
	// ErrTerminal if the record is already completed/failed and upd
	// attempts to change Status, Output, or Error.
	Update(ctx context.Context, jobID string, upd Update) (*Record, error)
}

// QueueStore is the Job Store port for multi-step worker queues
// (spec.md §4.5 "Queue (multi-step worker chain)").
type QueueStore interface {
	// CreateQueue inserts a new QueueRecord holding steps as given. If a
	// record with queueJobID already exists, CreateQueue returns it unchanged.
	CreateQueue(ctx context.Context, queueJobID, queueID string, steps []QueueStep) (*QueueRecord, error)
	// GetQueue returns the QueueRecord for queueJobID, or ErrNotFound.
	GetQueue(ctx context.Context, queueJobID string) (*QueueRecord, error)
	// UpdateStep atomically replaces step stepIndex's mutable fields.
	UpdateStep(ctx context.Context, queueJobID string, stepIndex int, status Status, output []byte, workerErr *WorkerError) (*QueueRecord, error)
	// SkipRemaining marks every still-queued step at or after fromIndex as
	// skipped, leaving steps in any other status unchanged,
	// implementing fail-fast queue termination (spec.md §4.5).
	SkipRemaining(ctx context.Context, queueJobID string, fromIndex int) (*QueueRecord, error)
}
