// Package orchestration implements the Orchestration Engine (spec.md §4.4):
// a finite ordered step graph executed over a pluggable Durable Adapter
// Port, so the same step graph can run against an in-memory adapter for
// development or a Temporal-backed adapter for production without the core
// step-execution logic depending on either.
package orchestration

import (
	"encoding/json"
	"time"

	"github.com/agentmesh/router/router"
	"github.com/agentmesh/router/schema"
)

// StepType identifies a step's kind (spec.md §4.4).
type StepType string

const (
	StepAgent     StepType = "agent"
	StepWorker    StepType = "worker"
	StepWorkflow  StepType = "workflow"
	StepHook      StepType = "hook"
	StepSleep     StepType = "sleep"
	StepCondition StepType = "condition"
	StepParallel  StepType = "parallel"
)

// RunContext is passed to every step's Input/If function (spec.md §4.4
// "Running context"). Steps mutate through the orchestrator, not directly:
// Input/If functions must treat RunContext as read-only to keep replay
// deterministic.
type RunContext struct {
	// Input is the orchestration's top-level input.
	Input json.RawMessage
	// Steps holds the awaited output (or placeholder jobId/runId) of every
	// prior step that declared an Id, keyed by that Id.
	Steps map[string]json.RawMessage
	// Previous is the immediately preceding step's output, or nil for the
	// first step.
	Previous json.RawMessage
	// All holds every completed step's output in declaration order.
	All []json.RawMessage
	// RunID is the durable run identifier assigned by the Adapter Port.
	RunID string
	// Errors accumulates step failures recorded under continueOnError.
	Errors []StepError
}

// StepError records one step's failure when continueOnError is set
// (spec.md §4.4 "continueOnError").
type StepError struct {
	StepID string `json:"stepId,omitempty"`
	Index  int    `json:"index"`
	Error  string `json:"error"`
}

// InputFunc computes a step's input from the running context
// (spec.md §4.4). It must be deterministic for replay safety.
type InputFunc func(rc *RunContext) (json.RawMessage, error)

// ConditionFunc evaluates a condition step's branch (spec.md §4.4). It must
// be deterministic for replay safety.
type ConditionFunc func(rc *RunContext) (bool, error)

// Step is one node of an OrchestrationConfig's step graph (spec.md §4.4).
// Exactly the fields relevant to Type are read; the others are ignored.
type Step struct {
	Type StepType
	// ID names this step for later reference via RunContext.Steps. Optional.
	ID string

	// Agent/Worker/Workflow identify the target for the corresponding step
	// type.
	Agent    router.Path
	Worker   string
	Workflow string

	// Input is a static value (when StaticInput is non-nil) or computed via
	// InputFn against the running context.
	StaticInput json.RawMessage
	InputFn     InputFunc

	// Await defaults per step type per spec.md §4.4: true for agent and
	// workflow steps, false for worker steps. A zero Step leaves AwaitSet
	// false, meaning ResolveAwait falls back to that default.
	Await    bool
	AwaitSet bool

	// Hook step fields.
	HookToken    string
	HookTokenFn  func(rc *RunContext) (string, error)
	HookSchema   *schema.Schema
	HookTimeout  time.Duration

	// Sleep step field; accepts "Ns"|"Nm"|"Nh"|"Nd" or milliseconds via
	// ParseDuration (spec.md §4.4).
	SleepDuration string

	// Condition step fields.
	If   ConditionFunc
	Then []Step
	Else []Step

	// Parallel step field.
	Steps []Step
}

// ResolveAwait returns whether this step blocks on completion, applying the
// per-type default when the step did not explicitly set Await
// (spec.md §4.4).
func (s Step) ResolveAwait() bool {
	if s.AwaitSet {
		return s.Await
	}
	switch s.Type {
	case StepAgent, StepWorkflow:
		return true
	default:
		return false
	}
}

// GlobalOptions configures an orchestration run (spec.md §4.4).
type GlobalOptions struct {
	// BaseURL reaches agents over HTTP when the engine is decoupled from
	// the router process; empty means in-process invocation.
	BaseURL string
	// Messages seeds initial chat history passed to agent steps.
	Messages []router.Message
	// HookTimeout is the default timeout per hook step. Zero defaults to
	// 7 days (spec.md §4.4).
	HookTimeout time.Duration
	// ContinueOnError, when true, records step failures into
	// RunContext.Errors and proceeds instead of failing fast.
	ContinueOnError bool
	// Timeout bounds the overall orchestration; exceeding it fails the
	// run with ErrTimedOut.
	Timeout time.Duration
}

// DefaultHookTimeout is spec.md §4.4's default hookTimeout ("7d").
const DefaultHookTimeout = 7 * 24 * time.Hour

// Config is an OrchestrationConfig: a finite ordered list of steps
// (spec.md §4.4).
type Config struct {
	ID      string
	Steps   []Step
	Options GlobalOptions
}
