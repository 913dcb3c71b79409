// Package middleware provides composable middleware for request execution.
//
// A [Middleware] is a function that wraps the upstream dispatch of a
// request. Middleware are composed into a chain using [Chain] and applied
// around every dispatch. They are applied right-to-left: the first
// middleware in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs endpoint, tenant, duration, and outcome per dispatch
//   - [Recover] — catches panics and converts them to errors
//   - [Timeout] — cancels the dispatch context after the request's deadline
//   - [Tracing] — wraps the dispatch in an OpenTelemetry span
//   - [Metrics] — records per-dispatch duration and outcome counters
//   - [Scope] — injects the request's tenant/user identity into context
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, r *request.Request, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
