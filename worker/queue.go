package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/router/jobstore"
)

// QueueStep is one step of a WorkerQueueConfig (spec.md §4.5 "Queue
// (multi-step worker chain)").
type QueueStep struct {
	WorkerID string
	// DelaySeconds, if > 0, is a durable wait applied after this step
	// before the next one runs (same semantics as an orchestration sleep).
	DelaySeconds int
	// MapInputFromPrev computes this step's input from the queue's
	// original input and every prior step's output. When nil, the
	// default is "use the previous step's output verbatim".
	MapInputFromPrev func(initialInput json.RawMessage, previousOutputs []json.RawMessage) (json.RawMessage, error)
}

// QueueConfig is a WorkerQueueConfig (spec.md §4.5).
type QueueConfig struct {
	ID       string
	Steps    []QueueStep
	Schedule string
}

// Queue runs a QueueConfig's steps in order against a Runtime, tracking
// progress in a jobstore.QueueStore (spec.md §4.5).
type Queue struct {
	Runtime *Runtime
	Store   jobstore.QueueStore
	Sleep   func(ctx context.Context, d time.Duration) error
}

// NewQueue constructs a Queue. When sleep is nil, time.Sleep gated on
// ctx.Done is used; callers driving queues from durable orchestration
// should supply the adapter's durable sleep instead.
func NewQueue(runtime *Runtime, store jobstore.QueueStore, sleep func(ctx context.Context, d time.Duration) error) *Queue {
	if sleep == nil {
		sleep = defaultSleep
	}
	return &Queue{Runtime: runtime, Store: store, Sleep: sleep}
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes cfg's steps against input, step 0 receiving input verbatim
// and each subsequent step receiving either the previous step's output or
// the result of its MapInputFromPrev (spec.md §4.5). A failed step
// terminates the queue fail-fast and marks remaining steps skipped.
func (q *Queue) Run(ctx context.Context, cfg QueueConfig, queueJobID string, input json.RawMessage) (*jobstore.QueueRecord, error) {
	if queueJobID == "" {
		queueJobID = uuid.NewString()
	}
	steps := make([]jobstore.QueueStep, len(cfg.Steps))
	for i, s := range cfg.Steps {
		steps[i] = jobstore.QueueStep{StepIndex: i, WorkerID: s.WorkerID, Status: jobstore.StatusQueued}
	}
	if _, err := q.Store.CreateQueue(ctx, queueJobID, cfg.ID, steps); err != nil {
		return nil, err
	}

	outputs := make([]json.RawMessage, 0, len(cfg.Steps))
	current := input
	for i, step := range cfg.Steps {
		if i > 0 {
			if step.MapInputFromPrev != nil {
				mapped, mapErr := step.MapInputFromPrev(input, outputs)
				if mapErr != nil {
					return q.failStep(ctx, queueJobID, i, mapErr)
				}
				current = mapped
			} else {
				current = outputs[len(outputs)-1]
			}
		}

		if _, err := q.Store.UpdateStep(ctx, queueJobID, i, jobstore.StatusRunning, nil, nil); err != nil {
			return nil, err
		}
		jobID := fmt.Sprintf("%s-step-%d", queueJobID, i)
		jobRec, dispatchErr := q.Runtime.Dispatch(ctx, step.WorkerID, current, DispatchOptions{Mode: ModeLocal, JobID: jobID})
		if dispatchErr != nil {
			return q.failStep(ctx, queueJobID, i, dispatchErr)
		}
		if jobRec.Status == jobstore.StatusFailed {
			var werr *jobstore.WorkerError
			if jobRec.Error != nil {
				e := *jobRec.Error
				werr = &e
			}
			if _, err := q.Store.UpdateStep(ctx, queueJobID, i, jobstore.StatusFailed, nil, werr); err != nil {
				return nil, err
			}
			return q.skipFrom(ctx, queueJobID, i+1)
		}
		if _, err := q.Store.UpdateStep(ctx, queueJobID, i, jobstore.StatusCompleted, jobRec.Output, nil); err != nil {
			return nil, err
		}
		outputs = append(outputs, jobRec.Output)

		if step.DelaySeconds > 0 && i < len(cfg.Steps)-1 {
			if err := q.Sleep(ctx, time.Duration(step.DelaySeconds)*time.Second); err != nil {
				return nil, err
			}
		}
	}
	return q.Store.GetQueue(ctx, queueJobID)
}

func (q *Queue) failStep(ctx context.Context, queueJobID string, stepIndex int, err error) (*jobstore.QueueRecord, error) {
	werr := &jobstore.WorkerError{Message: err.Error()}
	if _, uerr := q.Store.UpdateStep(ctx, queueJobID, stepIndex, jobstore.StatusFailed, nil, werr); uerr != nil {
		return nil, uerr
	}
	return q.skipFrom(ctx, queueJobID, stepIndex+1)
}

func (q *Queue) skipFrom(ctx context.Context, queueJobID string, fromIndex int) (*jobstore.QueueRecord, error) {
	return q.Store.SkipRemaining(ctx, queueJobID, fromIndex)
}
