// Package middleware provides composable middleware around claim calls.
//
// A [Middleware] is a function that wraps a claim handler. Middleware are
// composed into a chain using [Chain] and applied to every ClaimJob call.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// The innermost handler records its result on the [Call] it is given, so
// middleware can inspect the outcome after next returns.
//
// # Built-in Middleware
//
//   - [Logging]: logs the worker, device, outcome and duration of each claim
//   - [Recover]: catches panics and converts them to errors
//   - [Timeout]: cancels the claim context after a configured duration
//   - [Tracing]: wraps the claim in an OpenTelemetry span
//   - [Metrics]: records claim duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, c *middleware.Call, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing, c.Outcome is set now
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
