package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentmesh/router/jobstore"
	"github.com/agentmesh/router/telemetry"
)

// Mode selects how Dispatch runs a worker (spec.md §4.5 "Dispatch").
type Mode string

const (
	// ModeLocal executes the handler in the current process, still
	// updating the Job Store as it would remotely, and returns once the
	// worker terminates.
	ModeLocal Mode = "local"
	// ModeRemote enqueues a dispatch message and returns immediately with
	// a queued Job Record.
	ModeRemote Mode = "remote"
)

// RemoteDispatcher enqueues a dispatch for out-of-process execution
// (spec.md §4.5 "remote mode"), implemented by worker/remotequeue against
// Pulse/Redis.
type RemoteDispatcher interface {
	Enqueue(ctx context.Context, workerID, jobID string, input json.RawMessage, webhookURL string) error
}

// WebhookPoster delivers the worker completion callback
// (spec.md §4.5 "posts a callback ... to that URL").
type WebhookPoster interface {
	Post(ctx context.Context, url string, payload CallbackPayload) error
}

// CallbackPayload is the webhook body a remote worker process posts back
// on completion (spec.md §4.5).
type CallbackPayload struct {
	JobID    string               `json:"jobId"`
	WorkerID string               `json:"workerId"`
	Status   jobstore.Status      `json:"status"`
	Output   json.RawMessage      `json:"output,omitempty"`
	Error    *jobstore.WorkerError `json:"error,omitempty"`
}

// DispatchOptions configures a single Dispatch call (spec.md §4.5).
type DispatchOptions struct {
	Mode       Mode
	WebhookURL string
	// JobID, when set, makes Dispatch idempotent: a second Dispatch with
	// the same JobID returns the existing Job Record instead of creating
	// a new one (spec.md §4.5 "Idempotency").
	JobID    string
	Metadata map[string]any
	// Async, when Mode is ModeLocal, runs the handler in a background
	// goroutine and returns the queued record immediately, implementing
	// dispatchWorker's await=false case (spec.md §4.5). Ignored for
	// ModeRemote, which is already non-blocking.
	Async bool
}

// Runtime ties a Registry, a jobstore.Store, and an optional remote
// dispatch transport together to implement the Worker Runtime
// (spec.md §4.5, §2 component F).
type Runtime struct {
	Registry *Registry
	Store    jobstore.Store
	Remote   RemoteDispatcher
	Webhook  WebhookPoster
	Limiter  *DispatchLimiter
	Logger   telemetry.Logger
	Metrics  telemetry.Metrics
}

// NewRuntime constructs a Runtime. logger/metrics may be nil, in which case
// no-op implementations are used.
func NewRuntime(registry *Registry, store jobstore.Store, logger telemetry.Logger, metrics telemetry.Metrics) *Runtime {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNopMetrics()
	}
	return &Runtime{Registry: registry, Store: store, Logger: logger, Metrics: metrics}
}

// Dispatch implements spec.md §4.5 "Dispatch". It validates input, creates
// a Job Record (or returns the existing one for an idempotent jobId), then
// executes the worker locally or enqueues it remotely.
func (r *Runtime) Dispatch(ctx context.Context, workerID string, input json.RawMessage, opts DispatchOptions) (*jobstore.Record, error) {
	w, ok := r.Registry.Get(workerID)
	if !ok {
		return nil, fmt.Errorf("worker: unknown worker %q", workerID)
	}
	if w.InputSchema != nil {
		if err := w.InputSchema.Validate(input); err != nil {
			return nil, fmt.Errorf("worker: input validation for %q: %w", workerID, err)
		}
	}

	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	rec, err := r.Store.Create(ctx, jobID, workerID, input, opts.Metadata)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() || rec.Status == jobstore.StatusRunning {
		// Idempotent replay: a record already exists and is past queued.
		return rec, nil
	}

	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx, workerID); err != nil {
			return nil, err
		}
	}

	switch opts.Mode {
	case ModeRemote:
		if r.Remote == nil {
			return nil, fmt.Errorf("worker: remote dispatch requested for %q but no RemoteDispatcher is configured", workerID)
		}
		if err := r.Remote.Enqueue(ctx, workerID, jobID, input, opts.WebhookURL); err != nil {
			if r.Limiter != nil {
				r.Limiter.Observe(workerID, ErrWorkerOverloaded)
			}
			return nil, err
		}
		if r.Limiter != nil {
			r.Limiter.Observe(workerID, nil)
		}
		return r.Store.Get(ctx, jobID)
	default:
		if opts.Async {
			go r.runLocal(context.WithoutCancel(ctx), w, jobID, input, opts.WebhookURL)
			return rec, nil
		}
		return r.runLocal(ctx, w, jobID, input, opts.WebhookURL)
	}
}

// runLocal executes w.Handler in the current process, updating the Job
// Store as dispatch would remotely (spec.md §4.5 "local mode").
func (r *Runtime) runLocal(ctx context.Context, w Worker, jobID string, input json.RawMessage, webhookURL string) (*jobstore.Record, error) {
	running := jobstore.StatusRunning
	if _, err := r.Store.Update(ctx, jobID, jobstore.Update{Status: &running}); err != nil {
		return nil, err
	}

	wc := &Context{JobID: jobID, WorkerID: w.ID, Logger: r.Logger.With("worker_id", w.ID, "job_id", jobID), std: ctx, runtime: r}
	output, handlerErr := w.Handler(wc, input)

	rec, err := r.finish(ctx, w, jobID, output, handlerErr)
	if err != nil {
		return nil, err
	}
	if webhookURL != "" && r.Webhook != nil {
		_ = r.postCallback(ctx, rec, webhookURL)
	}
	return rec, nil
}

func (r *Runtime) finish(ctx context.Context, w Worker, jobID string, output json.RawMessage, handlerErr error) (*jobstore.Record, error) {
	if handlerErr != nil {
		failed := jobstore.StatusFailed
		werr := &jobstore.WorkerError{Message: handlerErr.Error()}
		r.Metrics.IncCounter("worker_dispatch_failed_total", 1, "worker_id", w.ID)
		return r.Store.Update(ctx, jobID, jobstore.Update{Status: &failed, Error: werr})
	}
	if w.OutputSchema != nil {
		if err := w.OutputSchema.Validate(output); err != nil {
			failed := jobstore.StatusFailed
			werr := &jobstore.WorkerError{Message: err.Error()}
			return r.Store.Update(ctx, jobID, jobstore.Update{Status: &failed, Error: werr})
		}
	}
	completed := jobstore.StatusCompleted
	pct := 100
	r.Metrics.IncCounter("worker_dispatch_completed_total", 1, "worker_id", w.ID)
	return r.Store.Update(ctx, jobID, jobstore.Update{Status: &completed, Output: output, ProgressPct: &pct})
}

func (r *Runtime) postCallback(ctx context.Context, rec *jobstore.Record, webhookURL string) error {
	return r.Webhook.Post(ctx, webhookURL, CallbackPayload{
		JobID:    rec.JobID,
		WorkerID: rec.WorkerID,
		Status:   rec.Status,
		Output:   rec.Output,
		Error:    rec.Error,
	})
}

// HandleCallback mirrors a remote worker's webhook callback into the local
// Job Store (spec.md §4.5 "The callback handler is expected to mirror into
// the local Job Store").
func (r *Runtime) HandleCallback(ctx context.Context, p CallbackPayload) error {
	upd := jobstore.Update{Status: &p.Status}
	if p.Output != nil {
		upd.Output = p.Output
	}
	if p.Error != nil {
		upd.Error = p.Error
	}
	_, err := r.Store.Update(ctx, p.JobID, upd)
	return err
}

func (r *Runtime) updateProgress(ctx context.Context, jobID string, pct int, message string) error {
	_, err := r.Store.Update(ctx, jobID, jobstore.Update{ProgressPct: &pct, ProgressMessage: &message})
	return err
}

func (r *Runtime) appendLog(ctx context.Context, jobID string, text string) error {
	_, err := r.Store.Update(ctx, jobID, jobstore.Update{AppendLog: &text})
	return err
}

// dispatchChild implements Context.DispatchChild (spec.md §4.5
// "dispatchWorker(id, input, { await })"). A child dispatch always runs
// in-process; await=false returns the queued record while the handler
// keeps running in the background.
func (r *Runtime) dispatchChild(ctx context.Context, workerID string, input json.RawMessage, await bool) (*jobstore.Record, error) {
	return r.Dispatch(ctx, workerID, input, DispatchOptions{Mode: ModeLocal, Async: !await})
}
