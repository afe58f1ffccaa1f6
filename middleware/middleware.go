package middleware

import (
	"context"

	"github.com/DiOS-Analysis/Backend/id"
)

// Call describes one claim invocation. WorkerID and DeviceUDID are set by
// the caller; the result fields are filled by the terminal handler.
type Call struct {
	WorkerID   id.WorkerID
	DeviceUDID string

	// Outcome is the textual claim outcome ("resumed", "claimed",
	// "no_job_available"), empty when the claim failed.
	Outcome  string
	JobID    id.JobID
	Attempts int
}

// Handler is the terminal function that performs the claim.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the claim call and the next handler to
// call. Middleware MUST call next to continue the chain (unless
// short-circuiting on error).
type Middleware func(ctx context.Context, c *Call, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, c, prev)
			}
		}
		return h(ctx)
	}
}
