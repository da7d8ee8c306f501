// Package schema wraps github.com/santhosh-tekuri/jsonschema/v6 to give the
// Router and Worker Runtime a single, total validation entry point for tool
// and worker input/output payloads (spec.md §9 "Dynamic schemas": "the spec
// requires only that validation is total and produces structured error
// reports").
package schema

import (
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	goa "goa.design/goa/v3/pkg"
)

type (
	// Schema is a compiled JSON Schema ready to validate JSON payloads.
	Schema struct {
		compiled *jsonschema.Schema
		raw      json.RawMessage
	}

	// Violation is one structured field-level validation failure, following
	// the same shape the teacher's Goa error-taxonomy layer produces for
	// field constraint violations, so SchemaViolation errors (spec.md §7)
	// carry machine-readable detail rather than just a message string.
	Violation struct {
		Field      string   `json:"field"`
		Constraint string   `json:"constraint"`
		Allowed    []string `json:"allowed,omitempty"`
		Message    string   `json:"message"`
	}

	// ValidationError is returned by Validate when a payload fails schema
	// checks. It implements error and exposes the structured Violations for
	// callers that want field-level detail instead of a flat message.
	ValidationError struct {
		Violations []Violation
	}
)

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "schema: validation failed"
	}
	return fmt.Sprintf("schema: validation failed: %s (%s)", e.Violations[0].Field, e.Violations[0].Constraint)
}

// Compile parses raw as a JSON Schema document and compiles it.
func Compile(raw json.RawMessage) (*Schema, error) {
	doc, err := asAny(raw)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return &Schema{compiled: compiled, raw: raw}, nil
}

// MustCompile is like Compile but panics on error. Intended for package-level
// schema literals at agent/worker registration time.
func MustCompile(raw json.RawMessage) *Schema {
	s, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func asAny(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("schema: invalid schema document: %w", err)
	}
	return v, nil
}

// Validate checks payload against s, returning a *ValidationError on
// failure. Validate is total: it never panics on malformed input, and a
// syntactically invalid payload surfaces as a ValidationError too.
func (s *Schema) Validate(payload json.RawMessage) error {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return &ValidationError{Violations: []Violation{{
			Field:      "",
			Constraint: goa.InvalidFieldType,
			Message:    fmt.Sprintf("payload is not valid JSON: %v", err),
		}}}
	}
	if err := s.compiled.Validate(v); err != nil {
		return &ValidationError{Violations: violationsFrom(err)}
	}
	return nil
}

// Raw returns the original JSON Schema document used to compile s.
func (s *Schema) Raw() json.RawMessage { return s.raw }

// violationsFrom flattens a jsonschema.ValidationError tree (it nests
// "Causes" for each failed subschema) into a flat list of field-level
// Violations.
func violationsFrom(err error) []Violation {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Violation{{Constraint: goa.InvalidFieldType, Message: err.Error()}}
	}
	var out []Violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := "/"
			if len(e.InstanceLocation) > 0 {
				field = "/" + joinJSONPointer(e.InstanceLocation)
			}
			out = append(out, Violation{
				Field:      field,
				Constraint: constraintName(e),
				Message:    e.Error(),
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

func joinJSONPointer(segs []string) string {
	s := ""
	for i, seg := range segs {
		if i > 0 {
			s += "/"
		}
		s += seg
	}
	return s
}

func constraintName(e *jsonschema.ValidationError) string {
	if e.ErrorKind == nil {
		return goa.InvalidFieldType
	}
	return fmt.Sprintf("%T", e.ErrorKind)
}
