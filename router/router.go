// Package router implements the Router Runtime (spec.md §1.1, §4.1–§4.3): path
// registration, middleware chaining, request/response plumbing, the streamed
// message protocol, a tool registry derived from the route tree, and
// inter-agent calls.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/agentmesh/router/stream"
	"github.com/agentmesh/router/telemetry"
)

type (
	// CallOptions configures a CallAgent invocation (spec.md §4.1).
	CallOptions struct {
		// StreamToUI merges the sub-agent's Parts into the caller's Stream
		// when true. When false, the sub-invocation's stream is isolated and
		// CallAgent returns its materialized result.
		StreamToUI bool
		// Messages optionally forwards conversation history to the
		// sub-agent's Request, mirroring Orchestration's global `messages`
		// option (spec.md §4.4).
		Messages []Message
		// SessionID optionally overrides the sub-invocation's session id;
		// defaults to the caller's.
		SessionID string
	}

	// AwaitResult is CallAgent's return value when StreamToUI is false, or
	// ToAwaitResponse's materialized payload.
	AwaitResult struct {
		OK    bool
		Data  any
		Error error
		// Parts holds every Part the sub-invocation wrote, in emission
		// order. Text is the concatenation of its text Parts; Data is the
		// Output of its last tool-UI or data Part.
		Parts []stream.Part
		Text  string
	}

	// Router ties the Path Trie, Middleware Chain, Context Object, and Stream
	// together (spec.md §2 component E). A zero Router is not usable; use
	// New.
	Router struct {
		mu      sync.RWMutex
		root    *node
		started bool
		logger  telemetry.Logger
		tools   map[string]*node // id -> node, for uniqueness checks
	}
)

// New constructs an empty Router. An optional logger may be passed; without
// one (or with nil) the Router logs to a noop logger.
func New(logger ...telemetry.Logger) *Router {
	var l telemetry.Logger
	if len(logger) > 0 {
		l = logger[0]
	}
	if l == nil {
		l = telemetry.NewNopLogger()
	}
	return &Router{root: newNode("/"), logger: l, tools: make(map[string]*node)}
}

// Agent registers a terminal handler at path; sub-routers are attached with
// Mount instead. Registering twice at the same path with a different handler
// fails with ErrDuplicateRoute; re-registering the identical handler
// reference is a no-op (spec.md's "optional ergonomic concession").
func (r *Router) Agent(path Path, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("router: cannot register %q after the first request has been served", path)
	}
	n := r.root.descend(path.Segments())
	if n.handler != nil {
		if !sameHandler(n.handler, handler) {
			return duplicateRoutef("%q", path)
		}
		return nil
	}
	n.handler = handler
	return nil
}

// sameHandler compares two Handler values by their runtime function pointer,
// implementing the "identical handler reference" re-registration concession.
func sameHandler(a, b Handler) bool {
	return fmt.Sprintf("%p", a) == fmt.Sprintf("%p", b)
}

// Mount attaches every route registered on sub under path, so that
// sub's route "/x" becomes "<path>/x" on r (spec.md §4.1 "All subRouter
// routes are visible as <path><subPath>"). The sub-router's own middlewares
// travel with it; routes under path additionally inherit any middleware
// already registered on r at or above path.
func (r *Router) Mount(path Path, sub *Router) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("router: cannot mount %q after the first request has been served", path)
	}
	sub.mu.RLock()
	defer sub.mu.RUnlock()

	var mountErr error
	sub.root.walk(func(subNode *node) {
		if mountErr != nil {
			return
		}
		full := path.Join(subNode.path)
		target := r.root.descend(full.Segments())
		target.mws = append(target.mws, subNode.mws...)
		if subNode.handler != nil {
			if target.handler != nil && !sameHandler(target.handler, subNode.handler) {
				mountErr = duplicateRoutef("%q", full)
				return
			}
			target.handler = subNode.handler
		}
		if subNode.tool != nil {
			if err := r.registerTool(full, target, *subNode.tool); err != nil {
				mountErr = err
			}
		}
	})
	return mountErr
}

// Use registers a middleware scoped to the subtree rooted at path. Middlewares
// run in registration order, outermost first (spec.md §4.1).
func (r *Router) Use(path Path, mw Middleware) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("router: cannot register middleware on %q after the first request has been served", path)
	}
	n := r.root.descend(path.Segments())
	n.mws = append(n.mws, mw)
	return nil
}

// ActAsTool attaches descriptor to the node at path, making it enumerable by
// Registry and callable through AgentAsTool (spec.md §4.1).
func (r *Router) ActAsTool(path Path, descriptor ToolDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.root.descend(path.Segments())
	return r.registerTool(path, n, descriptor)
}

func (r *Router) registerTool(path Path, n *node, descriptor ToolDescriptor) error {
	descriptor.absolutePath = path.Normalize()
	descriptor.toolKey = deriveToolKey(path)
	if existing, ok := r.tools[descriptor.ID]; ok && existing != n {
		return duplicateToolf("%q", descriptor.ID)
	}
	n.tool = &descriptor
	r.tools[descriptor.ID] = n
	return nil
}

// Registry enumerates every registered tool and its absolute path
// (spec.md §4.1). Registry is injective on both id and toolKey
// (spec.md §8 invariant 2); a violation surfaces as ErrDuplicateToolID.
func (r *Router) Registry() ([]RegistryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []RegistryEntry
	keys := make(map[string]string) // toolKey -> id, for duplicate detection
	var walkErr error
	r.root.walk(func(n *node) {
		if n.tool == nil || walkErr != nil {
			return
		}
		if owner, ok := keys[n.tool.toolKey]; ok && owner != n.tool.ID {
			walkErr = duplicateToolf("toolKey %q shared by %q and %q", n.tool.toolKey, owner, n.tool.ID)
			return
		}
		keys[n.tool.toolKey] = n.tool.ID
		entries = append(entries, RegistryEntry{AbsolutePath: n.path, Descriptor: *n.tool})
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return entries, nil
}

// resolve walks the trie for path, per spec.md §4.1: ancestor middlewares in
// root-first registration order, plus the node's own middlewares, plus the
// terminal handler. It returns ErrNotFound when no terminal handler exists
// at the most specific matching node.
func (r *Router) resolve(path Path) (*node, []Middleware, error) {
	segs := path.Segments()
	target, chain := r.root.lookup(segs)
	if target == nil || target.handler == nil {
		return nil, nil, notFoundf("%q", path)
	}
	var mws []Middleware
	for _, n := range chain {
		mws = append(mws, n.mws...)
	}
	return target, mws, nil
}

// Handle executes the middleware chain and terminal handler for path,
// writing Parts to the returned Stream as they are produced. The caller
// consumes the Stream incrementally (spec.md §4.1). Handle never returns an
// error for handler/middleware failures; those surface as a PartError on the
// Stream (spec.md §4.1 failure semantics). Handle does return an error when
// path itself cannot be resolved, mirroring ErrNotFound before any Stream
// exists to report it on.
func (r *Router) Handle(ctx context.Context, path Path, req *Request) (*stream.Stream, error) {
	r.markStarted()
	target, mws, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	s := stream.New()
	go r.run(ctx, target, mws, req, s)
	return s, nil
}

// ToAwaitResponse executes path synchronously and materializes the Stream
// into a single AwaitResult once the chain returns (spec.md §4.1). A thrown
// failure is returned as an error record in the materialized payload, not as
// a Go error from ToAwaitResponse, unless path itself could not be resolved.
func (r *Router) ToAwaitResponse(ctx context.Context, path Path, req *Request) (*AwaitResult, error) {
	r.markStarted()
	target, mws, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	s := stream.New()
	r.run(ctx, target, mws, req, s)
	return materialize(s), nil
}

func (r *Router) markStarted() {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
}

// run drives the middleware chain + terminal handler for target against s,
// recovering panics and stream/context failures into a terminal PartError
// per spec.md §4.1.
func (r *Router) run(ctx context.Context, target *node, mws []Middleware, req *Request, s *stream.Stream) {
	messageID := uuid.NewString()
	_ = s.Start(ctx, messageID)

	state := NewState()
	rc := &Context{
		std:      ctx,
		Request:  req,
		Response: s,
		State:    state,
		Logger:   r.logger.With("path", string(target.path), "session_id", req.SessionID),
		router:   r,
	}

	result, err := r.safeRun(rc, target, mws)
	if err != nil {
		_ = s.Fail(ctx, messageID, err.Error(), "")
		return
	}
	if text, ok := result.(string); ok && text != "" {
		_ = s.WriteText(ctx, messageID, text)
	}
	_ = s.Finish(ctx, messageID)
}

func (r *Router) safeRun(rc *Context, target *node, mws []Middleware) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = handlerFailuref(string(target.path), fmt.Errorf("panic: %v", rec))
		}
	}()
	if rc.std.Err() != nil {
		return nil, ErrCancelled
	}
	return chain(target.path, rc, mws, func() (any, error) {
		if rc.std.Err() != nil {
			return nil, ErrCancelled
		}
		v, e := target.handler(rc)
		if e != nil {
			return nil, handlerFailuref(string(target.path), e)
		}
		return v, nil
	})
}

// callAgent is the shared implementation behind Context.CallAgent and the
// Router's own exported CallAgent. When
// parent is non-nil and opts.StreamToUI is true, the sub-invocation's Parts
// are merged into parent in emission order (spec.md §4.1).
func (r *Router) callAgent(ctx context.Context, parent *stream.Stream, path Path, params Params, opts CallOptions) (*AwaitResult, error) {
	r.markStarted()
	target, mws, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	childReq := &Request{
		Path:      path,
		Messages:  opts.Messages,
		Params:    params,
		SessionID: opts.SessionID,
	}
	sub := stream.New()

	if opts.StreamToUI {
		if parent == nil {
			return nil, fmt.Errorf("router: StreamToUI requires calling through Context.CallAgent")
		}
		sub.AddSink(stream.Merge(parent, sub))
	}

	r.run(ctx, target, mws, childReq, sub)
	return materialize(sub), nil
}

// CallAgent invokes path in isolation (StreamToUI must be false) from
// outside any handler.
func (r *Router) CallAgent(ctx context.Context, path Path, params Params, opts CallOptions) (*AwaitResult, error) {
	if opts.StreamToUI {
		return nil, fmt.Errorf("router: top-level CallAgent cannot merge into a caller Stream; use streamToUI=false")
	}
	return r.callAgent(ctx, nil, path, params, opts)
}

func materialize(s *stream.Stream) *AwaitResult {
	parts := s.Parts()
	out := &AwaitResult{OK: true, Parts: parts}
	var text string
	var data any
	for _, p := range parts {
		switch p.Type {
		case stream.PartText:
			text += p.Text
		case stream.PartError:
			out.OK = false
			out.Error = fmt.Errorf("%s", p.Error)
		case stream.PartToolUI, stream.PartData:
			data = p.Output
		}
	}
	out.Text = text
	if data != nil && out.Data == nil {
		out.Data = data
	}
	return out
}
