// Package mongostore is a MongoDB-backed Job Store, the durable Job/Queue
// Job Record backend for production deployments (spec.md §9 "Job Store
// backends"). It persists records so queriers see them across restarts and
// across processes, which matters once worker dispatch moves to remote mode.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentmesh/router/jobstore"
)

// Store is a MongoDB implementation of jobstore.Store and
// jobstore.QueueStore.
type Store struct {
	jobs   *mongo.Collection
	queues *mongo.Collection
}

var (
	_ jobstore.Store      = (*Store)(nil)
	_ jobstore.QueueStore = (*Store)(nil)
)

// New creates a Store backed by the given job and queue-job collections.
func New(jobs, queues *mongo.Collection) *Store {
	return &Store{jobs: jobs, queues: queues}
}

// Create implements jobstore.Store, upserting only when no document with
// _id=jobID exists (spec.md §4.5 "Idempotency").
func (s *Store) Create(ctx context.Context, jobID, workerID string, input []byte, metadata map[string]any) (*jobstore.Record, error) {
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
	_, err := s.jobs.InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return s.Get(ctx, jobID)
		}
		return nil, fmt.Errorf("mongostore: create job %q: %w", jobID, err)
	}
	return rec, nil
}

// Get implements jobstore.Store.
func (s *Store) Get(ctx context.Context, jobID string) (*jobstore.Record, error) {
	var rec jobstore.Record
	err := s.jobs.FindOne(ctx, bson.M{"_id": jobID}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, jobstore.ErrNotFound
		}
		return nil, fmt.Errorf("mongostore: get job %q: %w", jobID, err)
	}
	return &rec, nil
}

// Update implements jobstore.Store. The status/terminal-immutability check
// is enforced by a filter clause (status not in completed/failed) combined
// with a follow-up read, made only when no document matched, to distinguish
// "already terminal" from "not found",
// keeping the write itself a single atomic FindOneAndUpdate.
func (s *Store) Update(ctx context.Context, jobID string, upd jobstore.Update) (*jobstore.Record, error) {
	now := time.Now()
	set := bson.M{"updatedAt": now}
	var push bson.M

	if upd.Status != nil {
		set["status"] = *upd.Status
		switch *upd.Status {
		case jobstore.StatusRunning:
			set["startedAt"] = now
		case jobstore.StatusCompleted, jobstore.StatusFailed:
			set["finishedAt"] = now
		}
	}
	if upd.ProgressPct != nil {
		set["progressPct"] = *upd.ProgressPct
	}
	if upd.ProgressMessage != nil {
		set["progressMessage"] = *upd.ProgressMessage
	}
	if upd.AppendLog != nil {
		push = bson.M{"logs": jobstore.LogEntry{Time: now, Text: *upd.AppendLog}}
	}
	if upd.Output != nil {
		set["output"] = upd.Output
	}
	if upd.Error != nil {
		set["error"] = upd.Error
	}
	for k, v := range upd.Metadata {
		set["metadata."+k] = v
	}

	changesTerminalFields := upd.Status != nil || upd.Output != nil || upd.Error != nil
	filter := bson.M{"_id": jobID}
	if changesTerminalFields {
		filter["status"] = bson.M{"$nin": bson.A{jobstore.StatusCompleted, jobstore.StatusFailed}}
	}
	update := bson.M{"$set": set}
	if push != nil {
		update["$push"] = push
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var rec jobstore.Record
	err := s.jobs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, getErr := s.Get(ctx, jobID); getErr == nil {
				return nil, jobstore.ErrTerminal
			}
			return nil, jobstore.ErrNotFound
		}
		return nil, fmt.Errorf("mongostore: update job %q: %w", jobID, err)
	}
	return &rec, nil
}

// CreateQueue implements jobstore.QueueStore.
func (s *Store) CreateQueue(ctx context.Context, queueJobID, queueID string, steps []jobstore.QueueStep) (*jobstore.QueueRecord, error) {
	now := time.Now()
	q := &jobstore.QueueRecord{QueueJobID: queueJobID, QueueID: queueID, Steps: steps, CreatedAt: now, UpdatedAt: now}
	_, err := s.queues.InsertOne(ctx, q)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return s.GetQueue(ctx, queueJobID)
		}
		return nil, fmt.Errorf("mongostore: create queue job %q: %w", queueJobID, err)
	}
	return q, nil
}

// GetQueue implements jobstore.QueueStore.
func (s *Store) GetQueue(ctx context.Context, queueJobID string) (*jobstore.QueueRecord, error) {
	var q jobstore.QueueRecord
	err := s.queues.FindOne(ctx, bson.M{"_id": queueJobID}).Decode(&q)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, jobstore.ErrNotFound
		}
		return nil, fmt.Errorf("mongostore: get queue job %q: %w", queueJobID, err)
	}
	return &q, nil
}

// UpdateStep implements jobstore.QueueStore, addressing the step by its
// positional index within the embedded steps array.
func (s *Store) UpdateStep(ctx context.Context, queueJobID string, stepIndex int, status jobstore.Status, output []byte, workerErr *jobstore.WorkerError) (*jobstore.QueueRecord, error) {
	now := time.Now()
	set := bson.M{
		"updatedAt":              now,
		fmt.Sprintf("steps.%d.status", stepIndex): status,
	}
	if output != nil {
		set[fmt.Sprintf("steps.%d.output", stepIndex)] = output
	}
	if workerErr != nil {
		set[fmt.Sprintf("steps.%d.error", stepIndex)] = workerErr
	}
	switch status {
	case jobstore.StatusRunning:
		set[fmt.Sprintf("steps.%d.startedAt", stepIndex)] = now
	case jobstore.StatusCompleted, jobstore.StatusFailed:
		set[fmt.Sprintf("steps.%d.finishedAt", stepIndex)] = now
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var q jobstore.QueueRecord
	err := s.queues.FindOneAndUpdate(ctx, bson.M{"_id": queueJobID}, bson.M{"$set": set}, opts).Decode(&q)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, jobstore.ErrNotFound
		}
		return nil, fmt.Errorf("mongostore: update queue %q step %d: %w", queueJobID, stepIndex, err)
	}
	return &q, nil
}

// SkipRemaining implements jobstore.QueueStore, marking every still-queued
// step at or after fromIndex as skipped (spec.md §4.5 "fail-fast").
func (s *Store) SkipRemaining(ctx context.Context, queueJobID string, fromIndex int) (*jobstore.QueueRecord, error) {
	q, err := s.GetQueue(ctx, queueJobID)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": time.Now()}
	for i := range q.Steps {
		if q.Steps[i].StepIndex >= fromIndex && q.Steps[i].Status == jobstore.StatusQueued {
			set[fmt.Sprintf("steps.%d.status", i)] = jobstore.StatusSkipped
		}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated jobstore.QueueRecord
	err = s.queues.FindOneAndUpdate(ctx, bson.M{"_id": queueJobID}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		return nil, fmt.Errorf("mongostore: skip remaining for queue %q: %w", queueJobID, err)
	}
	return &updated, nil
}
