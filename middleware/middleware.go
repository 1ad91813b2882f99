// Package middleware provides composable middleware around processor
// invocation. Middleware wraps the call synchronously and can modify
// execution (recover from panics, log, enforce deadlines).
package middleware

import (
	"context"

	"github.com/siga-labs/txq/job"
)

// Handler is the terminal function that runs the processor.
type Handler func(ctx context.Context) job.Result

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the job being executed, and the next handler to
// call. Middleware MUST call next to continue the chain (unless
// short-circuiting with its own Result).
type Middleware func(ctx context.Context, j *job.Job, next Handler) job.Result

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) job.Result {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}
