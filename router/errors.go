package router

import (
	"errors"
	"fmt"
)

// Error codes implementing the taxonomy in spec.md §7. Each is a sentinel
// wrapped with context via fmt.Errorf("...: %w", ...) so callers can match
// with errors.Is while still getting a descriptive message.
var (
	// ErrNotFound indicates no handler exists at the resolved path.
	ErrNotFound = errors.New("router: not found")
	// ErrDuplicateRoute indicates Agent was called twice for the same path
	// with different handler references.
	ErrDuplicateRoute = errors.New("router: duplicate route")
	// ErrDuplicateToolID indicates two tool descriptors share an id or a
	// derived toolKey.
	ErrDuplicateToolID = errors.New("router: duplicate tool id")
	// ErrSchemaViolation indicates a tool input or output failed schema
	// validation.
	ErrSchemaViolation = errors.New("router: schema violation")
	// ErrMiddlewareReentry indicates a middleware invoked next() more than once.
	ErrMiddlewareReentry = errors.New("router: middleware called next more than once")
	// ErrHandlerFailure wraps a panic or error raised by a handler or
	// middleware; the underlying cause stays reachable through errors.Is
	// and errors.As.
	ErrHandlerFailure = errors.New("router: handler failure")
	// ErrCancelled indicates the caller canceled the context driving handle.
	ErrCancelled = errors.New("router: cancelled")
)

// notFoundf wraps ErrNotFound with a path-specific message.
func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// duplicateRoutef wraps ErrDuplicateRoute with a path-specific message.
func duplicateRoutef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrDuplicateRoute}, args...)...)
}

// duplicateToolf wraps ErrDuplicateToolID with an id-specific message.
func duplicateToolf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrDuplicateToolID}, args...)...)
}

// handlerFailuref wraps both ErrHandlerFailure and cause, so errors.Is and
// errors.As match either one.
func handlerFailuref(path string, cause error) error {
	return fmt.Errorf("%w at %q: %w", ErrHandlerFailure, path, cause)
}
