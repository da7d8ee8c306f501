package router

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/agentmesh/router/schema"
)

// ToolMetadata carries display/organizational hints for a tool (spec.md §3).
type ToolMetadata struct {
	Icon     string
	Title    string
	Parent   string
	HideUI   bool
}

// ToolDescriptor is the metadata attached to a route node via ActAsTool,
// making it enumerable by Registry and callable through AgentAsTool
// (spec.md §3, §4.3).
type ToolDescriptor struct {
	// ID is the stable, globally unique identifier for this tool. Required.
	ID string
	// Name is a short human-facing name. Catalog search results fall back
	// to ID when it is empty; Registry returns it as given.
	Name string
	// Description documents the tool for LM consumption.
	Description string
	// InputSchema validates the tool's input payload.
	InputSchema *schema.Schema
	// OutputSchema optionally validates the tool's output payload.
	OutputSchema *schema.Schema
	Metadata     ToolMetadata

	// absolutePath and toolKey are populated by the Router at registration
	// time; they are not set by callers.
	absolutePath Path
	toolKey      string
}

// AbsolutePath returns the route path this tool is attached to.
func (d ToolDescriptor) AbsolutePath() Path { return d.absolutePath }

// ToolKey returns the path-derived slug used to key this tool in
// AgentAsTool's result map (spec.md §4.3).
func (d ToolDescriptor) ToolKey() string { return d.toolKey }

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// deriveToolKey implements spec.md §4.3: "the node's absolute path with
// leading slash removed and non-alphanumerics replaced by underscores".
func deriveToolKey(path Path) string {
	s := strings.TrimPrefix(string(path.Normalize()), "/")
	s = nonAlphanumeric.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// Tool is one entry returned by AgentAsTool: a callable view over an agent
// subtree, typed by input/output schemas (spec.md §4.3 glossary "Tool").
type Tool struct {
	Descriptor ToolDescriptor
	// Execute validates input, invokes the underlying agent with
	// streamToUI=true so its Parts are merged into the caller's Stream, and
	// validates/returns its result (spec.md §4.3 execute contract).
	Execute func(ctx *Context, input json.RawMessage) (json.RawMessage, error)
}

// RegistryEntry is one row of Router.Registry()'s flattened tool catalog.
type RegistryEntry struct {
	AbsolutePath Path
	Descriptor   ToolDescriptor
}
