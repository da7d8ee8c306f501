package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/agentmesh/router/jobstore"
	"github.com/agentmesh/router/router"
	"github.com/agentmesh/router/telemetry"
	"github.com/agentmesh/router/worker"
)

// RemoteWorkflowResolver resolves a StepWorkflow step whose target is not
// registered locally via RegisterWorkflow, dispatching it to another
// service deployment (orchestration/nexusremote implements this over Nexus).
type RemoteWorkflowResolver interface {
	ExecuteWorkflow(ctx context.Context, workflowID string, input json.RawMessage) (json.RawMessage, error)
}

// Orchestrator runs OrchestrationConfigs (spec.md §4.4) against a Router (for
// agent steps), a worker.Runtime (for worker steps), and a pluggable Adapter
// (for durable suspension and nested/named workflows). It holds no run state
// itself; all durable state lives behind the Adapter.
type Orchestrator struct {
	Router    *router.Router
	Workers   *worker.Runtime
	Adapter   Adapter
	Workflows map[string]Config
	// RemoteWorkflows, when set, is consulted for a StepWorkflow target not
	// found in Workflows before failing with ErrWorkflowNotFound.
	RemoteWorkflows RemoteWorkflowResolver
	Logger          telemetry.Logger
}

// NewOrchestrator constructs an Orchestrator with an empty Workflows map;
// named workflows are added later via RegisterWorkflow.
func NewOrchestrator(rtr *router.Router, workers *worker.Runtime, adapter Adapter, logger telemetry.Logger) *Orchestrator {
	return &Orchestrator{
		Router:    rtr,
		Workers:   workers,
		Adapter:   adapter,
		Workflows: make(map[string]Config),
		Logger:    logger,
	}
}

// RegisterWorkflow makes cfg callable from a StepWorkflow step naming cfg.ID.
func (o *Orchestrator) RegisterWorkflow(cfg Config) {
	o.Workflows[cfg.ID] = cfg
}

// Start begins a durable run of cfg against input and returns its runId
// immediately (spec.md §4.4).
func (o *Orchestrator) Start(ctx context.Context, cfg Config, input json.RawMessage) (string, error) {
	return o.Adapter.StartRun(ctx, cfg, input, func(rc RunContext2) (json.RawMessage, error) {
		return o.runConfig(rc, cfg)
	})
}

// Status returns a run's current status (spec.md §4.4 "Status query").
func (o *Orchestrator) Status(ctx context.Context, runID string) (RunStatus, error) {
	return o.Adapter.Status(ctx, runID)
}

// Resume delivers payload to a run parked on a hook step awaiting token
// (spec.md §4.4 point 3).
func (o *Orchestrator) Resume(ctx context.Context, runID, token string, payload json.RawMessage) error {
	return o.Adapter.Resume(ctx, runID, token, payload)
}

// runConfig executes cfg's step list in order, threading a RunContext
// through each step. It is called once for the top-level run and again,
// inline, for every nested StepWorkflow step.
func (o *Orchestrator) runConfig(rc RunContext2, cfg Config) (json.RawMessage, error) {
	sc := rc.StepContext()
	sc.RunID = rc.RunID()
	if sc.Steps == nil {
		sc.Steps = make(map[string]json.RawMessage)
	}
	if sc.Input == nil {
		sc.Input = rawOrNull(sc.Input)
	}

	ctx := rc.Context()
	if cfg.Options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Options.Timeout)
		defer cancel()
		rc = deadlineRunContext{RunContext2: rc, ctx: ctx}
	}

	var last json.RawMessage
	for i, step := range cfg.Steps {
		out, err := o.execStep(ctx, rc, &cfg, sc, step)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: run %s", ErrTimedOut, sc.RunID)
			}
			if cfg.Options.ContinueOnError {
				sc.Errors = append(sc.Errors, StepError{StepID: step.ID, Index: i, Error: err.Error()})
				continue
			}
			return nil, err
		}
		if out != nil {
			sc.Previous = out
			sc.All = append(sc.All, out)
			if step.ID != "" {
				sc.Steps[step.ID] = out
			}
			last = out
		}
	}
	return last, nil
}

func (o *Orchestrator) execStep(ctx context.Context, rc RunContext2, cfg *Config, sc *RunContext, step Step) (json.RawMessage, error) {
	switch step.Type {
	case StepAgent:
		return o.execAgent(ctx, sc, cfg, step)
	case StepWorker:
		return o.execWorker(ctx, sc, step)
	case StepWorkflow:
		return o.execWorkflow(rc, sc, step)
	case StepHook:
		return o.execHook(rc, cfg, sc, step)
	case StepSleep:
		return nil, o.execSleep(rc, step)
	case StepCondition:
		return o.execCondition(ctx, rc, cfg, sc, step)
	case StepParallel:
		return o.execParallel(ctx, rc, cfg, sc, step)
	default:
		return nil, fmt.Errorf("orchestration: unknown step type %q", step.Type)
	}
}

func (o *Orchestrator) execAgent(ctx context.Context, sc *RunContext, cfg *Config, step Step) (json.RawMessage, error) {
	input, err := resolveInput(sc, step)
	if err != nil {
		return nil, err
	}
	req := &router.Request{
		Path:      step.Agent,
		Messages:  cfg.Options.Messages,
		Params:    router.Params{"input": json.RawMessage(input)},
		SessionID: sc.RunID,
	}
	if step.ResolveAwait() {
		res, err := o.Router.ToAwaitResponse(ctx, step.Agent, req)
		if err != nil {
			return nil, err
		}
		if !res.OK {
			return nil, res.Error
		}
		return marshalResult(res)
	}
	if _, err := o.Router.Handle(ctx, step.Agent, req); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"status": "started"})
}

func (o *Orchestrator) execWorker(ctx context.Context, sc *RunContext, step Step) (json.RawMessage, error) {
	input, err := resolveInput(sc, step)
	if err != nil {
		return nil, err
	}
	rec, err := o.Workers.Dispatch(ctx, step.Worker, input, worker.DispatchOptions{
		Mode:  worker.ModeLocal,
		Async: !step.ResolveAwait(),
	})
	if err != nil {
		return nil, err
	}
	if rec.Status == jobstore.StatusFailed && step.ResolveAwait() {
		if rec.Error != nil {
			return nil, errors.New(rec.Error.Message)
		}
		return nil, fmt.Errorf("orchestration: worker %q failed", step.Worker)
	}
	if step.ResolveAwait() {
		return rec.Output, nil
	}
	return json.Marshal(map[string]string{"jobId": rec.JobID})
}

func (o *Orchestrator) execWorkflow(rc RunContext2, sc *RunContext, step Step) (json.RawMessage, error) {
	input, err := resolveInput(sc, step)
	if err != nil {
		return nil, err
	}
	nested, ok := o.Workflows[step.Workflow]
	if !ok {
		if o.RemoteWorkflows == nil {
			return nil, fmt.Errorf("%w: %q", ErrWorkflowNotFound, step.Workflow)
		}
		return o.RemoteWorkflows.ExecuteWorkflow(rc.Context(), step.Workflow, input)
	}
	nested.ID = step.Workflow
	nestedCtx := &RunContext{Input: input, Steps: make(map[string]json.RawMessage), RunID: sc.RunID}
	return o.runConfig(nestedRunContext{RunContext2: rc, sc: nestedCtx}, nested)
}

func (o *Orchestrator) execHook(rc RunContext2, cfg *Config, sc *RunContext, step Step) (json.RawMessage, error) {
	token := step.HookToken
	if step.HookTokenFn != nil {
		t, err := step.HookTokenFn(sc)
		if err != nil {
			return nil, err
		}
		token = t
	}
	timeout := step.HookTimeout
	if timeout == 0 {
		timeout = cfg.Options.HookTimeout
	}
	if timeout == 0 {
		timeout = DefaultHookTimeout
	}
	payload, err := o.Adapter.AwaitHook(rc, step.ID, token, timeout)
	if err != nil {
		return nil, err
	}
	if step.HookSchema != nil {
		if verr := step.HookSchema.Validate(payload); verr != nil {
			return nil, verr
		}
	}
	return payload, nil
}

func (o *Orchestrator) execSleep(rc RunContext2, step Step) error {
	d, err := ParseDuration(step.SleepDuration)
	if err != nil {
		return err
	}
	return o.Adapter.Sleep(rc, d)
}

func (o *Orchestrator) execCondition(ctx context.Context, rc RunContext2, cfg *Config, sc *RunContext, step Step) (json.RawMessage, error) {
	ok, err := step.If(sc)
	if err != nil {
		return nil, err
	}
	branch := step.Else
	if ok {
		branch = step.Then
	}
	var last json.RawMessage
	for _, sub := range branch {
		out, err := o.execStep(ctx, rc, cfg, sc, sub)
		if err != nil {
			return nil, err
		}
		if out != nil {
			sc.Previous = out
			sc.All = append(sc.All, out)
			if sub.ID != "" {
				sc.Steps[sub.ID] = out
			}
			last = out
		}
	}
	return last, nil
}

// execParallel fans step.Steps out concurrently and fans their outputs back
// in as a JSON array in declaration order (spec.md §4.4 "parallel"). Because
// the sub-steps run as real goroutines rather than through the Adapter's
// deterministic-replay machinery, parallel steps are only replay-safe when
// every sub-step is itself side-effect-free on retry (agent/worker steps
// already are, via their own idempotency); a parallel step containing a hook
// or sleep is not supported.
func (o *Orchestrator) execParallel(ctx context.Context, rc RunContext2, cfg *Config, sc *RunContext, step Step) (json.RawMessage, error) {
	outs := make([]json.RawMessage, len(step.Steps))
	errs := make([]error, len(step.Steps))
	var wg sync.WaitGroup
	for i, sub := range step.Steps {
		wg.Add(1)
		go func(i int, sub Step) {
			defer wg.Done()
			branchCtx := &RunContext{Input: sc.Input, Previous: sc.Previous, All: sc.All, Steps: sc.Steps, RunID: sc.RunID}
			out, err := o.execStep(ctx, rc, cfg, branchCtx, sub)
			outs[i] = out
			errs[i] = err
		}(i, sub)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(outs)
}

func resolveInput(sc *RunContext, step Step) (json.RawMessage, error) {
	if step.StaticInput != nil {
		return step.StaticInput, nil
	}
	if step.InputFn != nil {
		return step.InputFn(sc)
	}
	if sc.Previous != nil {
		return sc.Previous, nil
	}
	return sc.Input, nil
}

func marshalResult(res *router.AwaitResult) (json.RawMessage, error) {
	if res.Data != nil {
		return json.Marshal(res.Data)
	}
	return json.Marshal(map[string]string{"text": res.Text})
}

func rawOrNull(v json.RawMessage) json.RawMessage {
	if v == nil {
		return json.RawMessage("null")
	}
	return v
}

// deadlineRunContext replaces a RunContext2's Go context with one bounded by
// GlobalOptions.Timeout, so hook and sleep waits also end at the deadline.
type deadlineRunContext struct {
	RunContext2
	ctx context.Context
}

func (d deadlineRunContext) Context() context.Context { return d.ctx }

// nestedRunContext wraps a parent RunContext2 with a fresh StepContext for
// an inline-nested workflow step, while keeping the parent's durable
// execution identity (RunID, Context, Sleep/AwaitHook suspension).
type nestedRunContext struct {
	RunContext2
	sc *RunContext
}

func (n nestedRunContext) StepContext() *RunContext { return n.sc }
