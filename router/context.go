package router

import (
	"context"

	"github.com/agentmesh/router/stream"
	"github.com/agentmesh/router/telemetry"
)

// Handler is a terminal agent handler registered at a path (spec.md §4.1).
// It receives a Context and may return a value, write Parts to ctx.Response,
// or both. Returning an error fails the invocation; the Router catches it at
// the `handle` boundary and never lets it escape to the caller.
type Handler func(ctx *Context) (any, error)

// Context is the per-invocation bundle passed to every middleware and
// terminal handler (spec.md §3 Context Object). It is NOT safe to retain
// across invocations: a new Context is constructed for every `handle` and
// every recursive `callAgent`.
type Context struct {
	// std is the Go context driving cancellation/deadlines for this
	// invocation. Dropping the stream on the caller side cancels this,
	// which the Router propagates into any in-flight callAgent (spec.md §5).
	std context.Context

	// Request is the inbound request. Middlewares may mutate it before the
	// terminal handler runs (spec.md §4.1).
	Request *Request
	// Response is the Stream this invocation writes Parts to.
	Response *stream.Stream
	// State is shared across the whole middleware chain and the terminal
	// handler for this invocation.
	State *State
	// Logger is scoped with path and session_id fields for this invocation.
	Logger telemetry.Logger

	router *Router
}

// Context returns the Go context driving this invocation, for passing to
// I/O calls (database queries, HTTP calls, durable adapter calls).
func (c *Context) Context() context.Context { return c.std }

// WithContext returns a shallow copy of c with its Go context replaced.
// Middlewares use this to attach deadlines/values before calling next.
func (c *Context) WithContext(std context.Context) *Context {
	cp := *c
	cp.std = std
	return &cp
}

// CallAgent invokes another agent from within a handler (spec.md §4.1). When
// opts.StreamToUI is true, the sub-agent's Parts are merged into c.Response
// in emission order and CallAgent returns once the sub-invocation completes.
// When false, the sub-invocation's stream stays isolated and CallAgent
// returns its materialized result instead.
func (c *Context) CallAgent(path Path, params Params, opts CallOptions) (*AwaitResult, error) {
	if opts.SessionID == "" && c.Request != nil {
		opts.SessionID = c.Request.SessionID
	}
	return c.router.callAgent(c.std, c.Response, path, params, opts)
}
