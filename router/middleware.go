package router

import "fmt"

// Next invokes the remainder of the middleware chain (and ultimately the
// terminal handler). A middleware MUST call Next exactly zero or one time
// (spec.md §4.2); calling it a second time is a protocol violation reported
// as ErrMiddlewareReentry.
type Next func() (any, error)

// Middleware wraps an agent chain. It may mutate ctx.Request and ctx.State
// before and after calling next, and may write to ctx.Response at any point.
// Returning without calling next short-circuits the remainder of the chain;
// any Parts already written are preserved (spec.md §4.2).
type Middleware func(ctx *Context, next Next) (any, error)

// guardedNext wraps a Next so a second invocation is reported as
// ErrMiddlewareReentry instead of silently re-running the remainder of the
// chain.
func guardedNext(path Path, next Next) Next {
	called := false
	return func() (any, error) {
		if called {
			return nil, fmt.Errorf("%w at %q", ErrMiddlewareReentry, path)
		}
		called = true
		return next()
	}
}

// chain composes mws (outermost first) around terminal, returning a single
// Next-shaped function that runs the whole thing when invoked.
func chain(path Path, ctx *Context, mws []Middleware, terminal Next) (any, error) {
	next := terminal
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		current := next
		guarded := guardedNext(path, current)
		next = func() (any, error) {
			return mw(ctx, guarded)
		}
	}
	return next()
}
