// Package nexusremote resolves a cross-service StepWorkflow step through a
// Nexus operation handle instead of in-process recursion, the "managed-
// service adapter" transport SPEC_FULL.md anticipates for a workflow owned
// by a different service deployment. The teacher's go.mod already declares
// github.com/nexus-rpc/sdk-go without importing it anywhere; this package
// gives it the home SPEC_FULL.md's domain stack assigns it.
package nexusremote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexus-rpc/sdk-go/nexus"

	"github.com/agentmesh/router/orchestration"
)

// Resolver resolves remote StepWorkflow targets through a Nexus endpoint. It
// implements orchestration.RemoteWorkflowResolver; assign it to an
// Orchestrator's RemoteWorkflows field to enable cross-service dispatch.
type Resolver struct {
	client  *nexus.HTTPClient
	service string
}

// Options configures a Resolver.
type Options struct {
	// BaseURL is the Nexus endpoint's base URL. Required.
	BaseURL string
	// Service names the Nexus service exposing orchestration operations.
	Service string
}

// New constructs a Resolver.
func New(opts Options) (*Resolver, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("nexusremote: base url is required")
	}
	c, err := nexus.NewHTTPClient(nexus.HTTPClientOptions{BaseURL: opts.BaseURL, Service: opts.Service})
	if err != nil {
		return nil, fmt.Errorf("nexusremote: new client: %w", err)
	}
	return &Resolver{client: c, service: opts.Service}, nil
}

// ExecuteWorkflow implements orchestration.RemoteWorkflowResolver: it starts
// a Nexus operation named workflowID with input and waits synchronously for
// its result, mirroring an awaited StepWorkflow's blocking semantics.
func (r *Resolver) ExecuteWorkflow(ctx context.Context, workflowID string, input json.RawMessage) (json.RawMessage, error) {
	result, err := nexus.ExecuteOperation(ctx, r.client, nexus.ExecuteOperationOptions{
		Operation: workflowID,
	}, input)
	if err != nil {
		return nil, fmt.Errorf("%w: nexus operation %q: %v", orchestration.ErrAdapterFailure, workflowID, err)
	}
	raw, ok := result.(json.RawMessage)
	if !ok {
		return json.Marshal(result)
	}
	return raw, nil
}
