package router

// ContextLimit returns a Middleware truncating ctx.Request.Messages to its
// last n elements before calling next (spec.md §4.2 "Context limiter").
// Requests with fewer than n messages pass through unchanged.
func ContextLimit(n int) Middleware {
	return func(ctx *Context, next Next) (any, error) {
		if n > 0 && len(ctx.Request.Messages) > n {
			ctx.Request.Messages = ctx.Request.Messages[len(ctx.Request.Messages)-n:]
		}
		return next()
	}
}
