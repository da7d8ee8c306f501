// Package memstore is an in-memory Job Store, suitable for development,
// testing, and single-node deployments where persistence across restarts is
// not required (spec.md §9 "Job Store backends").
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/agentmesh/router/jobstore"
)

// Store is an in-memory implementation of jobstore.Store and
// jobstore.QueueStore. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	jobs   map[string]*jobstore.Record
	queues map[string]*jobstore.QueueRecord
}

var (
	_ jobstore.Store      = (*Store)(nil)
	_ jobstore.QueueStore = (*Store)(nil)
)

// New creates an empty in-memory Job Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]*jobstore.Record),
		queues: make(map[string]*jobstore.QueueRecord),
	}
}

// Create implements jobstore.Store.
func (s *Store) Create(ctx context.Context, jobID, workerID string, input []byte, metadata map[string]any) (*jobstore.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[jobID]; ok {
		return existing.Clone(), nil
	}
	now := time.Now()
	rec := &jobstore.Record{
		JobID:     jobID,
		WorkerID:  workerID,
		Status:    jobstore.StatusQueued,
		Input:     append([]byte(nil), input...),
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[jobID] = rec
	return rec.Clone(), nil
}

// Get implements jobstore.Store.
func (s *Store) Get(ctx context.Context, jobID string) (*jobstore.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, jobstore.ErrNotFound
	}
	return rec.Clone(), nil
}

// Update implements jobstore.Store, applying upd atomically under the
// Store's single mutex.
func (s *Store) Update(ctx context.Context, jobID string, upd jobstore.Update) (*jobstore.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, jobstore.ErrNotFound
	}
	changesTerminalFields := upd.Status != nil || upd.Output != nil || upd.Error != nil
	if rec.Status.Terminal() && changesTerminalFields {
		return nil, jobstore.ErrTerminal
	}

	now := time.Now()
	if upd.Status != nil {
		rec.Status = *upd.Status
		switch *upd.Status {
		case jobstore.StatusRunning:
			if rec.StartedAt == nil {
				rec.StartedAt = &now
			}
		case jobstore.StatusCompleted, jobstore.StatusFailed:
			rec.FinishedAt = &now
		}
	}
	if upd.ProgressPct != nil {
		rec.ProgressPct = *upd.ProgressPct
	}
	if upd.ProgressMessage != nil {
		rec.ProgressMessage = *upd.ProgressMessage
	}
	if upd.AppendLog != nil {
		rec.Logs = append(rec.Logs, jobstore.LogEntry{Time: now, Text: *upd.AppendLog})
	}
	if upd.Output != nil {
		rec.Output = append([]byte(nil), upd.Output...)
	}
	if upd.Error != nil {
		e := *upd.Error
		rec.Error = &e
	}
	if upd.Metadata != nil {
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any, len(upd.Metadata))
		}
		for k, v := range upd.Metadata {
			rec.Metadata[k] = v
		}
	}
	rec.UpdatedAt = now
	return rec.Clone(), nil
}

// CreateQueue implements jobstore.QueueStore.
func (s *Store) CreateQueue(ctx context.Context, queueJobID, queueID string, steps []jobstore.QueueStep) (*jobstore.QueueRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.queues[queueJobID]; ok {
		return cloneQueue(existing), nil
	}
	now := time.Now()
	q := &jobstore.QueueRecord{
		QueueJobID: queueJobID,
		QueueID:    queueID,
		Steps:      append([]jobstore.QueueStep(nil), steps...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.queues[queueJobID] = q
	return cloneQueue(q), nil
}

// GetQueue implements jobstore.QueueStore.
func (s *Store) GetQueue(ctx context.Context, queueJobID string) (*jobstore.QueueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[queueJobID]
	if !ok {
		return nil, jobstore.ErrNotFound
	}
	return cloneQueue(q), nil
}

// UpdateStep implements jobstore.QueueStore.
func (s *Store) UpdateStep(ctx context.Context, queueJobID string, stepIndex int, status jobstore.Status, output []byte, workerErr *jobstore.WorkerError) (*jobstore.QueueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[queueJobID]
	if !ok {
		return nil, jobstore.ErrNotFound
	}
	now := time.Now()
	for i := range q.Steps {
		if q.Steps[i].StepIndex != stepIndex {
			continue
		}
		q.Steps[i].Status = status
		if output != nil {
			q.Steps[i].Output = append([]byte(nil), output...)
		}
		if workerErr != nil {
			e := *workerErr
			q.Steps[i].Error = &e
		}
		switch status {
		case jobstore.StatusRunning:
			if q.Steps[i].StartedAt == nil {
				q.Steps[i].StartedAt = &now
			}
		case jobstore.StatusCompleted, jobstore.StatusFailed:
			q.Steps[i].FinishedAt = &now
		}
		break
	}
	q.UpdatedAt = now
	return cloneQueue(q), nil
}

// SkipRemaining implements jobstore.QueueStore.
func (s *Store) SkipRemaining(ctx context.Context, queueJobID string, fromIndex int) (*jobstore.QueueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[queueJobID]
	if !ok {
		return nil, jobstore.ErrNotFound
	}
	for i := range q.Steps {
		if q.Steps[i].StepIndex >= fromIndex && q.Steps[i].Status == jobstore.StatusQueued {
			q.Steps[i].Status = jobstore.StatusSkipped
		}
	}
	q.UpdatedAt = time.Now()
	return cloneQueue(q), nil
}

func cloneQueue(q *jobstore.QueueRecord) *jobstore.QueueRecord {
	cp := *q
	cp.Steps = append([]jobstore.QueueStep(nil), q.Steps...)
	return &cp
}
