// Package stream defines the typed message-part protocol written by agent
// handlers and consumed by callers of the router (spec.md §3 Response/Stream).
//
// A Stream is a lazy, append-only sequence of Parts. Parts are grouped into
// messages by the MessageID they carry; a reader reconstructs assistant
// messages by concatenating Parts in emission order. Streams always end in
// either a Finish or an Error part (spec.md §7 user-visible behavior).
package stream

import "encoding/json"

// PartType discriminates the kind of payload carried by a Part. New part
// kinds are added as typed variants rather than through inheritance, mirroring
// how the wider runtime tags its event variants by a string Type.
type PartType string

const (
	// PartStart is the sentinel marker written once at the beginning of a Stream.
	PartStart PartType = "start"
	// PartFinish is the terminal sentinel marker written once a Stream completes
	// successfully. A Stream emits exactly one of PartFinish or PartError.
	PartFinish PartType = "finish"
	// PartText carries a plain-text delta to be appended to the enclosing message.
	PartText PartType = "text"
	// PartTool carries a tool invocation marker. The concrete wire type is
	// "tool-<name>"; ToolName holds "<name>".
	PartTool PartType = "tool"
	// PartToolUI carries a UI-bearing tool result. The concrete wire type is
	// "tool-ui-<name>"; ToolName holds "<name>".
	PartToolUI PartType = "tool-ui"
	// PartData carries an arbitrary structured payload. The concrete wire type
	// is "data-<name>"; DataName holds "<name>".
	PartData PartType = "data"
	// PartMessageMetadata merges into the metadata of the enclosing assistant
	// message (live loader text, error strings, and similar out-of-band fields).
	PartMessageMetadata PartType = "message-metadata"
	// PartError is the terminal error payload. A Stream emits exactly one of
	// PartFinish or PartError.
	PartError PartType = "error"
)

// ToolState enumerates the lifecycle of a tool invocation marker (spec.md §3).
type ToolState string

const (
	ToolStateInputStreaming ToolState = "input-streaming"
	ToolStateInputAvailable ToolState = "input-available"
	ToolStateOutputAvailable ToolState = "output-available"
	ToolStateError           ToolState = "error"
)

// Part is a single typed unit written to a Stream. Every Part carries the id
// of the enclosing message so a reader can group parts into messages
// (spec.md §3: "Each part carries the enclosing message id").
type Part struct {
	// Type discriminates the part's payload kind.
	Type PartType `json:"type"`
	// MessageID identifies the assistant message this part belongs to. Parts
	// sharing a MessageID are concatenated/merged by the reader in emission
	// order.
	MessageID string `json:"messageId"`
	// ToolName is set for PartTool/PartToolUI and is the "<name>" suffix of the
	// wire type ("tool-<name>" / "tool-ui-<name>").
	ToolName string `json:"toolName,omitempty"`
	// ToolCallID correlates a PartTool's lifecycle transitions (input-streaming
	// through output-available/error) across multiple Parts.
	ToolCallID string `json:"toolCallId,omitempty"`
	// ToolState is set for PartTool parts and reports the invocation's current
	// lifecycle state.
	ToolState ToolState `json:"state,omitempty"`
	// DataName is set for PartData and is the "<name>" suffix of the wire type
	// ("data-<name>").
	DataName string `json:"dataName,omitempty"`
	// Text carries the payload for PartText deltas.
	Text string `json:"text,omitempty"`
	// Input carries the tool call's arguments (PartTool, state input-available
	// or later).
	Input json.RawMessage `json:"input,omitempty"`
	// Output carries the tool call's result or the PartToolUI/PartData payload.
	Output json.RawMessage `json:"output,omitempty"`
	// Metadata carries the fields to merge into the enclosing message's
	// metadata (PartMessageMetadata), for example a live "loader" string.
	Metadata map[string]any `json:"metadata,omitempty"`
	// Error carries the terminal error message (PartError). In development
	// mode implementations may additionally populate Stack.
	Error string `json:"error,omitempty"`
	// Stack is an optional stack trace attached to a PartError. Production
	// sinks should omit this field; it exists for local development only.
	Stack string `json:"stack,omitempty"`
}

// Text constructs a PartText part for messageID with the given delta.
func Text(messageID, text string) Part {
	return Part{Type: PartText, MessageID: messageID, Text: text}
}

// ToolCall constructs a PartTool part describing a transition in a tool
// call's lifecycle.
func ToolCall(messageID, toolName, toolCallID string, state ToolState, input, output json.RawMessage) Part {
	return Part{
		Type:       PartTool,
		MessageID:  messageID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		ToolState:  state,
		Input:      input,
		Output:     output,
	}
}

// ToolUI constructs a PartToolUI part carrying a UI-bearing tool result.
func ToolUI(messageID, toolName, toolCallID string, output json.RawMessage) Part {
	return Part{
		Type:       PartToolUI,
		MessageID:  messageID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		ToolState:  ToolStateOutputAvailable,
		Output:     output,
	}
}

// Data constructs a PartData part carrying an arbitrary structured payload.
func Data(messageID, dataName string, payload json.RawMessage) Part {
	return Part{Type: PartData, MessageID: messageID, DataName: dataName, Output: payload}
}

// MessageMetadata constructs a PartMessageMetadata part. The runtime merges
// Metadata into the enclosing assistant message's metadata rather than
// replacing it.
func MessageMetadata(messageID string, metadata map[string]any) Part {
	return Part{Type: PartMessageMetadata, MessageID: messageID, Metadata: metadata}
}

// Err constructs a terminal PartError part. stack is normally empty in
// production; pass it only when running in development mode.
func Err(messageID, message, stack string) Part {
	return Part{Type: PartError, MessageID: messageID, Error: message, Stack: stack}
}

// WireType returns the concrete wire-level type string for p, expanding the
// "tool-<name>"/"tool-ui-<name>"/"data-<name>" conventions from spec.md §3.
func (p Part) WireType() string {
	switch p.Type {
	case PartTool:
		return "tool-" + p.ToolName
	case PartToolUI:
		return "tool-ui-" + p.ToolName
	case PartData:
		return "data-" + p.DataName
	default:
		return string(p.Type)
	}
}
