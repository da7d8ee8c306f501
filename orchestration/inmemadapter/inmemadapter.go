// Package inmemadapter implements orchestration.Adapter entirely in
// process memory: development and self-hosted deployments that don't need
// a Temporal cluster. Every run keeps an append-only event log of its start,
// each hook wait, and its completion or failure, but unlike
// orchestration/temporaladapter a crashed process loses in-flight runs —
// this adapter does not replay, it only executes once, live. That mirrors
// the teacher's own in-memory engine, which documents the identical
// limitation ("not deterministic or replay-safe... should not be used for
// production workloads"); callers needing crash-safe durability must use
// temporaladapter.
package inmemadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/router/orchestration"
)

// Event is one entry of a run's append-only log, grounded on
// runtime/agent/engine/inmem/engine.go's event-recording idiom.
type Event struct {
	At      time.Time
	Kind    string
	Detail  string
}

type run struct {
	mu       sync.Mutex
	status   orchestration.RunState
	result   json.RawMessage
	err      error
	hook     *orchestration.HookWait
	hookCh   chan json.RawMessage
	events   []Event
	cancel   context.CancelFunc
}

// Adapter is an in-memory orchestration.Adapter.
type Adapter struct {
	mu   sync.Mutex
	runs map[string]*run
}

var _ orchestration.Adapter = (*Adapter)(nil)

// New constructs an empty Adapter.
func New() *Adapter {
	return &Adapter{runs: make(map[string]*run)}
}

// StartRun implements orchestration.Adapter.
func (a *Adapter) StartRun(ctx context.Context, cfg orchestration.Config, input json.RawMessage, fn func(orchestration.RunContext2) (json.RawMessage, error)) (string, error) {
	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{status: orchestration.RunPending, cancel: cancel}
	r.record("start", fmt.Sprintf("config=%s", cfg.ID))

	a.mu.Lock()
	a.runs[runID] = r
	a.mu.Unlock()

	go func() {
		r.mu.Lock()
		r.status = orchestration.RunRunning
		r.mu.Unlock()

		ec := &execContext{ctx: runCtx, runID: runID, sc: &orchestration.RunContext{Input: input, Steps: make(map[string]json.RawMessage)}}
		result, err := fn(ec)

		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.status = orchestration.RunFailed
			r.err = err
			r.record("fail", err.Error())
		} else {
			r.status = orchestration.RunCompleted
			r.result = result
			r.record("complete", "")
		}
	}()

	return runID, nil
}

// Status implements orchestration.Adapter.
func (a *Adapter) Status(ctx context.Context, runID string) (orchestration.RunStatus, error) {
	r, err := a.lookup(runID)
	if err != nil {
		return orchestration.RunStatus{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return orchestration.RunStatus{State: r.status, Result: r.result, Err: r.err, Hook: r.hook}, nil
}

// Resume implements orchestration.Adapter.
func (a *Adapter) Resume(ctx context.Context, runID, token string, payload json.RawMessage) error {
	r, err := a.lookup(runID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.hook == nil || r.hook.Token != token {
		r.mu.Unlock()
		return fmt.Errorf("%w: run %s token %s", orchestration.ErrInvalidHook, runID, token)
	}
	ch := r.hookCh
	r.hook = nil
	r.mu.Unlock()

	select {
	case ch <- payload:
		return nil
	default:
		return fmt.Errorf("%w: run %s token %s already delivered", orchestration.ErrInvalidHook, runID, token)
	}
}

// Sleep implements orchestration.Adapter with a real timer; holding no
// compute beyond the blocked goroutine.
func (a *Adapter) Sleep(ctx orchestration.RunExecContext, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Context().Done():
		return ctx.Context().Err()
	case <-t.C:
		return nil
	}
}

// AwaitHook implements orchestration.Adapter.
func (a *Adapter) AwaitHook(ctx orchestration.RunExecContext, stepID, token string, timeout time.Duration) (json.RawMessage, error) {
	r, err := a.lookup(ctx.RunID())
	if err != nil {
		return nil, err
	}
	ch := make(chan json.RawMessage, 1)
	r.mu.Lock()
	r.hook = &orchestration.HookWait{Token: token, StepID: stepID, Timeout: timeout}
	r.hookCh = ch
	r.status = orchestration.RunPaused
	r.record("await-hook", fmt.Sprintf("step=%s token=%s", stepID, token))
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-ch:
		r.mu.Lock()
		r.status = orchestration.RunRunning
		r.mu.Unlock()
		return payload, nil
	case <-timer.C:
		r.mu.Lock()
		r.hook = nil
		r.status = orchestration.RunRunning
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: step %s token %s", orchestration.ErrHookTimeout, stepID, token)
	case <-ctx.Context().Done():
		return nil, ctx.Context().Err()
	}
}

func (a *Adapter) lookup(runID string) (*run, error) {
	a.mu.Lock()
	r, ok := a.runs[runID]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: run %s", orchestration.ErrWorkflowNotFound, runID)
	}
	return r, nil
}

func (r *run) record(kind, detail string) {
	r.events = append(r.events, Event{At: time.Now().UTC(), Kind: kind, Detail: detail})
}

type execContext struct {
	ctx   context.Context
	runID string
	sc    *orchestration.RunContext
}

func (e *execContext) Context() context.Context            { return e.ctx }
func (e *execContext) RunID() string                       { return e.runID }
func (e *execContext) StepContext() *orchestration.RunContext { return e.sc }
