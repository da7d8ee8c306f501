// Package temporaladapter implements orchestration.Adapter on top of
// go.temporal.io/sdk, grounded on runtime/agent/engine/temporal/engine.go's
// client/worker wiring. A run is a Temporal workflow execution, so its
// history and status are held by Temporal; the step graph itself executes
// inside a single Temporal activity, and sleep/hook suspension within that
// activity uses the same in-process timer/channel mechanics as
// orchestration/inmemadapter. Each run's step-graph function is held in this
// process's memory, keyed by run id: an activity attempt on a worker process
// that did not start the run (for example after a restart) fails, so an
// in-flight run does not survive a worker restart. A full
// step-level-durable rendition (workflow.Sleep per sleep step,
// workflow.GetSignalChannel per hook step so an individual sleep/hook
// survives an activity-worker restart mid-wait, not just a workflow
// restart) would require lifting each Step into its own registered
// activity; that is a larger rearchitecture than this adapter undertakes,
// and is recorded as a known limitation rather than silently assumed away.
package temporaladapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/agentmesh/router/orchestration"
	"github.com/agentmesh/router/telemetry"
)

const (
	workflowName = "AgentMeshOrchestrationRun"
	activityName = "AgentMeshRunStepGraph"
)

// Options configures an Adapter.
type Options struct {
	// Client is the Temporal client used to start and query workflows.
	// Required.
	Client client.Client
	// TaskQueue is the queue the adapter's worker polls. Required.
	TaskQueue string
	// Logger emits adapter-level diagnostics. Defaults to a noop logger.
	Logger telemetry.Logger
}

// Adapter is a Temporal-backed orchestration.Adapter.
type Adapter struct {
	client    client.Client
	taskQueue string
	logger    telemetry.Logger
	w         worker.Worker

	mu      sync.Mutex
	runners map[string]func(orchestration.RunContext2) (json.RawMessage, error)
	hooks   map[hookKey]chan json.RawMessage
}

var _ orchestration.Adapter = (*Adapter)(nil)

// New constructs an Adapter and registers its workflow/activity on a
// Temporal worker for opts.TaskQueue. Call Start to begin polling.
func New(opts Options) (*Adapter, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("temporaladapter: client is required")
	}
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("temporaladapter: task queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	a := &Adapter{
		client:    opts.Client,
		taskQueue: opts.TaskQueue,
		logger:    logger,
		runners:   make(map[string]func(orchestration.RunContext2) (json.RawMessage, error)),
	}
	a.w = worker.New(opts.Client, opts.TaskQueue, worker.Options{})
	a.w.RegisterWorkflowWithOptions(a.runWorkflow, workflow.RegisterOptions{Name: workflowName})
	a.w.RegisterActivityWithOptions(a.runStepGraph, activity.RegisterOptions{Name: activityName})
	return a, nil
}

// Start begins polling opts.TaskQueue until ctx is canceled.
func (a *Adapter) Start(ctx context.Context) error {
	stop := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	return a.w.Run(stop)
}

// Stop gracefully shuts the adapter's worker down.
func (a *Adapter) Stop() {
	a.w.Stop()
}

// StartRun implements orchestration.Adapter.
func (a *Adapter) StartRun(ctx context.Context, cfg orchestration.Config, input json.RawMessage, fn func(orchestration.RunContext2) (json.RawMessage, error)) (string, error) {
	runID := fmt.Sprintf("%s-%d", cfg.ID, time.Now().UnixNano())
	a.mu.Lock()
	a.runners[runID] = fn
	a.mu.Unlock()

	we, err := a.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        runID,
		TaskQueue: a.taskQueue,
	}, workflowName, runID, input)
	if err != nil {
		a.mu.Lock()
		delete(a.runners, runID)
		a.mu.Unlock()
		return "", fmt.Errorf("%w: start %s: %v", orchestration.ErrAdapterFailure, cfg.ID, err)
	}
	return we.GetID(), nil
}

// runWorkflow is the Temporal workflow function: it delegates step
// execution to a single activity so the step graph's side effects (agent
// calls, worker dispatch) are retried by Temporal rather than re-run
// non-deterministically on workflow replay.
func (a *Adapter) runWorkflow(ctx workflow.Context, runID string, input json.RawMessage) (json.RawMessage, error) {
	ao := workflow.ActivityOptions{StartToCloseTimeout: 0}
	ctx = workflow.WithActivityOptions(ctx, ao)
	var result json.RawMessage
	err := workflow.ExecuteActivity(ctx, activityName, runID, input).Get(ctx, &result)
	return result, err
}

// runStepGraph is the Temporal activity that actually drives the step
// graph, looked up by runID from the Adapter's local registry.
func (a *Adapter) runStepGraph(ctx context.Context, runID string, input json.RawMessage) (json.RawMessage, error) {
	a.mu.Lock()
	fn := a.runners[runID]
	a.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("temporaladapter: no run function registered for %s (worker restarted before this activity attempt?)", runID)
	}
	ec := &execContext{ctx: ctx, runID: runID, sc: &orchestration.RunContext{Input: input, Steps: make(map[string]json.RawMessage)}}
	return fn(ec)
}

// Status implements orchestration.Adapter by querying Temporal's workflow
// execution status and describing completion/failure.
func (a *Adapter) Status(ctx context.Context, runID string) (orchestration.RunStatus, error) {
	desc, err := a.client.DescribeWorkflowExecution(ctx, runID, "")
	if err != nil {
		return orchestration.RunStatus{}, fmt.Errorf("%w: describe %s: %v", orchestration.ErrAdapterFailure, runID, err)
	}
	info := desc.WorkflowExecutionInfo
	switch info.GetStatus().String() {
	case "Running":
		return orchestration.RunStatus{State: orchestration.RunRunning}, nil
	case "Completed":
		we := a.client.GetWorkflow(ctx, runID, "")
		var result json.RawMessage
		if err := we.Get(ctx, &result); err != nil {
			return orchestration.RunStatus{State: orchestration.RunFailed, Err: err}, nil
		}
		return orchestration.RunStatus{State: orchestration.RunCompleted, Result: result}, nil
	case "Failed", "Terminated", "TimedOut", "Canceled":
		we := a.client.GetWorkflow(ctx, runID, "")
		var result json.RawMessage
		err := we.Get(ctx, &result)
		return orchestration.RunStatus{State: orchestration.RunFailed, Err: err}, nil
	default:
		return orchestration.RunStatus{State: orchestration.RunPending}, nil
	}
}

// Resume implements orchestration.Adapter without signaling the workflow:
// the payload is delivered to the in-flight activity through the local
// channel that AwaitHook registered under (runID, token) when it parked.
func (a *Adapter) Resume(ctx context.Context, runID, token string, payload json.RawMessage) error {
	a.mu.Lock()
	h, ok := a.hooks[hookKey{runID, token}]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: run %s token %s", orchestration.ErrInvalidHook, runID, token)
	}
	select {
	case h <- payload:
		return nil
	default:
		return fmt.Errorf("%w: run %s token %s already delivered", orchestration.ErrInvalidHook, runID, token)
	}
}

// Sleep implements orchestration.Adapter with a real timer inside the
// calling activity; the wait does not survive a worker restart (see the
// package doc).
func (a *Adapter) Sleep(ctx orchestration.RunExecContext, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	activity.RecordHeartbeat(ctx.Context())
	select {
	case <-ctx.Context().Done():
		return ctx.Context().Err()
	case <-t.C:
		return nil
	}
}

// AwaitHook implements orchestration.Adapter.
func (a *Adapter) AwaitHook(ctx orchestration.RunExecContext, stepID, token string, timeout time.Duration) (json.RawMessage, error) {
	key := hookKey{runID: ctx.RunID(), token: token}
	ch := make(chan json.RawMessage, 1)
	a.mu.Lock()
	if a.hooks == nil {
		a.hooks = make(map[hookKey]chan json.RawMessage)
	}
	a.hooks[key] = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.hooks, key)
		a.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case payload := <-ch:
		return payload, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: step %s token %s", orchestration.ErrHookTimeout, stepID, token)
	case <-ctx.Context().Done():
		return nil, ctx.Context().Err()
	}
}

type hookKey struct {
	runID string
	token string
}

type execContext struct {
	ctx   context.Context
	runID string
	sc    *orchestration.RunContext
}

func (e *execContext) Context() context.Context               { return e.ctx }
func (e *execContext) RunID() string                          { return e.runID }
func (e *execContext) StepContext() *orchestration.RunContext { return e.sc }
