// Package fsstore is a filesystem-backed Job Store: one JSON file per job,
// written atomically via a temp-file-then-rename so a concurrent reader
// never observes a partially written record (spec.md §9 "Job Store
// backends"). Suitable for single-node deployments wanting durability
// across restarts without a database dependency.
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentmesh/router/jobstore"
)

// Store persists one JSON file per job/queue job under dir.
type Store struct {
	dir string
	mu  sync.Mutex // serializes read-modify-write on a single job file
}

var (
	_ jobstore.Store      = (*Store)(nil)
	_ jobstore.QueueStore = (*Store)(nil)
)

// New constructs a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) jobPath(jobID string) string   { return filepath.Join(s.dir, "job-"+jobID+".json") }
func (s *Store) queuePath(queueID string) string { return filepath.Join(s.dir, "queue-"+queueID+".json") }

func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("fsstore: marshal %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("fsstore: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsstore: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsstore: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsstore: rename into %s: %w", path, err)
	}
	return nil
}

func readJSON[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, jobstore.ErrNotFound
		}
		return nil, fmt.Errorf("fsstore: read %s: %w", path, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("fsstore: decode %s: %w", path, err)
	}
	return &v, nil
}

// Create implements jobstore.Store.
func (s *Store) Create(ctx context.Context, jobID, workerID string, input []byte, metadata map[string]any) (*jobstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.jobPath(jobID)
	if rec, err := readJSON[jobstore.Record](path); err == nil {
		return rec, nil
	} else if err != jobstore.ErrNotFound {
		return nil, err
	}

	now := time.Now()
	rec := &jobstore.Record{
		JobID:     jobID,
		WorkerID:  workerID,
		Status:    jobstore.StatusQueued,
		Input:     input,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := writeAtomic(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get implements jobstore.Store.
func (s *Store) Get(ctx context.Context, jobID string) (*jobstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readJSON[jobstore.Record](s.jobPath(jobID))
}

// Update implements jobstore.Store.
func (s *Store) Update(ctx context.Context, jobID string, upd jobstore.Update) (*jobstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.jobPath(jobID)
	rec, err := readJSON[jobstore.Record](path)
	if err != nil {
		return nil, err
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
		rec.Output = upd.Output
	}
	if upd.Error != nil {
		rec.Error = upd.Error
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
	if err := writeAtomic(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateQueue implements jobstore.QueueStore.
func (s *Store) CreateQueue(ctx context.Context, queueJobID, queueID string, steps []jobstore.QueueStep) (*jobstore.QueueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.queuePath(queueJobID)
	if q, err := readJSON[jobstore.QueueRecord](path); err == nil {
		return q, nil
	} else if err != jobstore.ErrNotFound {
		return nil, err
	}
	now := time.Now()
	q := &jobstore.QueueRecord{QueueJobID: queueJobID, QueueID: queueID, Steps: steps, CreatedAt: now, UpdatedAt: now}
	if err := writeAtomic(path, q); err != nil {
		return nil, err
	}
	return q, nil
}

// GetQueue implements jobstore.QueueStore.
func (s *Store) GetQueue(ctx context.Context, queueJobID string) (*jobstore.QueueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readJSON[jobstore.QueueRecord](s.queuePath(queueJobID))
}

// UpdateStep implements jobstore.QueueStore.
func (s *Store) UpdateStep(ctx context.Context, queueJobID string, stepIndex int, status jobstore.Status, output []byte, workerErr *jobstore.WorkerError) (*jobstore.QueueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.queuePath(queueJobID)
	q, err := readJSON[jobstore.QueueRecord](path)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range q.Steps {
		if q.Steps[i].StepIndex != stepIndex {
			continue
		}
		q.Steps[i].Status = status
		if output != nil {
			q.Steps[i].Output = output
		}
		if workerErr != nil {
			q.Steps[i].Error = workerErr
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
	if err := writeAtomic(path, q); err != nil {
		return nil, err
	}
	return q, nil
}

// SkipRemaining implements jobstore.QueueStore.
func (s *Store) SkipRemaining(ctx context.Context, queueJobID string, fromIndex int) (*jobstore.QueueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.queuePath(queueJobID)
	q, err := readJSON[jobstore.QueueRecord](path)
	if err != nil {
		return nil, err
	}
	for i := range q.Steps {
		if q.Steps[i].StepIndex >= fromIndex && q.Steps[i].Status == jobstore.StatusQueued {
			q.Steps[i].Status = jobstore.StatusSkipped
		}
	}
	q.UpdatedAt = time.Now()
	if err := writeAtomic(path, q); err != nil {
		return nil, err
	}
	return q, nil
}
