package middleware

import (
	"context"
	"time"

	"github.com/siga-labs/txq/job"
)

// Timeout returns middleware that enforces an execution deadline per
// processor invocation. When the deadline is exceeded the context is
// cancelled and the processor is expected to return a retryable
// failure. d <= 0 disables the deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
