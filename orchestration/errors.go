package orchestration

import "errors"

// Sentinel errors completing spec.md §7's taxonomy for the Orchestration
// Engine. Matched via errors.Is, mirroring router's error taxonomy style.
var (
	// ErrInvalidHook indicates Resume was called with an unknown token, or
	// a token that was already consumed by a prior Resume.
	ErrInvalidHook = errors.New("orchestration: invalid hook token")
	// ErrHookTimeout indicates a hook step's timeout elapsed before Resume
	// was called.
	ErrHookTimeout = errors.New("orchestration: hook timeout")
	// ErrTimedOut indicates the run's overall GlobalOptions.Timeout elapsed.
	ErrTimedOut = errors.New("orchestration: timed out")
	// ErrWorkflowNotFound indicates a workflow step named a Config.ID not
	// registered with the Orchestrator.
	ErrWorkflowNotFound = errors.New("orchestration: workflow not found")
	// ErrAdapterFailure wraps a failure surfaced by the Adapter Port itself
	// (as opposed to a step's own handler failing).
	ErrAdapterFailure = errors.New("orchestration: adapter failure")
)
