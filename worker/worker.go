// Package worker implements the Worker Runtime (spec.md §4.5): typed worker
// registration, local/remote dispatch, webhook callback handling, and
// multi-step worker queues, all backed by a jobstore.Store so callers see a
// consistent Job Record regardless of where the worker actually executed.
package worker

import (
	"context"
	"encoding/json"

	"github.com/agentmesh/router/jobstore"
	"github.com/agentmesh/router/schema"
	"github.com/agentmesh/router/telemetry"
)

// Config is a worker's configuration record (spec.md §4.5).
type Config struct {
	// TimeoutSeconds is the worker's configured time budget for a single
	// invocation of Handler; the Runtime does not apply it to local runs.
	TimeoutSeconds int
	// MemorySizeMB documents the worker's expected memory footprint; the
	// Runtime does not enforce it directly but exposes it to remote
	// dispatch backends that provision worker processes accordingly.
	MemorySizeMB int
	// Schedule is an optional cron-like expression for recurring dispatch,
	// interpreted by whatever scheduler drives this worker's queue.
	Schedule string
}

// Handler is a worker's business logic. It returns the output payload or an
// error; the Runtime serializes either into the Job Record.
type Handler func(ctx *Context, input json.RawMessage) (json.RawMessage, error)

// Worker is a typed handler registered in a Registry (spec.md §4.5).
type Worker struct {
	ID           string
	InputSchema  *schema.Schema
	OutputSchema *schema.Schema
	Config       Config
	Handler      Handler
}

// Context is passed to a running Worker's Handler (spec.md §4.5).
type Context struct {
	JobID    string
	WorkerID string
	Logger   telemetry.Logger

	std     context.Context
	runtime *Runtime
}

// Context returns the Go context driving this invocation.
func (c *Context) Context() context.Context { return c.std }

// UpdateProgress merges partial progress fields into this job's Job Record
// (spec.md §4.5 "jobStore.update(partial)").
func (c *Context) UpdateProgress(pct int, message string) error {
	return c.runtime.updateProgress(c.std, c.JobID, pct, message)
}

// AppendLog appends one log entry to this job's Job Record.
func (c *Context) AppendLog(text string) error {
	return c.runtime.appendLog(c.std, c.JobID, text)
}

// DispatchChild spawns a child worker from inside a worker handler
// (spec.md §4.5 "dispatchWorker"). When await is true, DispatchChild blocks
// until the child reaches a terminal status and returns its Job Record.
func (c *Context) DispatchChild(workerID string, input json.RawMessage, await bool) (*jobstore.Record, error) {
	return c.runtime.dispatchChild(c.std, workerID, input, await)
}
