package router

import (
	"context"
	"encoding/json"
	"fmt"
)

// AgentAsTool materializes the tool descriptor(s) at or beneath subPath into
// a mapping keyed by toolKey, suitable for feeding to a language-model tool
// loop (spec.md §4.1, §4.3). Each Tool's Execute performs the three steps
// spec.md §4.3 describes: validate input, CallAgent with streamToUI=true,
// validate/surface the output.
func (r *Router) AgentAsTool(subPath Path) (map[string]Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Tool)
	r.root.walk(func(n *node) {
		if n.tool == nil {
			return
		}
		if !n.path.HasPrefix(subPath) {
			return
		}
		descriptor := *n.tool
		absolutePath := n.path
		out[descriptor.toolKey] = Tool{
			Descriptor: descriptor,
			Execute: func(ctx *Context, input json.RawMessage) (json.RawMessage, error) {
				return r.executeTool(ctx, absolutePath, descriptor, input)
			},
		}
	})
	return out, nil
}

// executeTool implements the agentAsTool(subPath).<tool>.execute(input)
// contract (spec.md §4.3).
func (r *Router) executeTool(ctx *Context, path Path, descriptor ToolDescriptor, input json.RawMessage) (json.RawMessage, error) {
	if descriptor.InputSchema != nil {
		if err := descriptor.InputSchema.Validate(input); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
		}
	}

	var params Params
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("%w: input is not a JSON object: %v", ErrSchemaViolation, err)
		}
	}

	var result *AwaitResult
	var err error
	if ctx != nil {
		result, err = ctx.CallAgent(path, params, CallOptions{StreamToUI: true})
	} else {
		result, err = r.callAgent(context.Background(), nil, path, params, CallOptions{})
	}
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, result.Error
	}

	output, err := json.Marshal(result.Data)
	if err != nil {
		output = []byte(`"` + result.Text + `"`)
	}
	if descriptor.OutputSchema != nil {
		if err := descriptor.OutputSchema.Validate(output); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
		}
	}
	return output, nil
}
