package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/siga-labs/txq/job"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics become retryable failures and are logged with a stack
// trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (res job.Result) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("processor panicked",
					slog.String("job_id", j.ID.String()),
					slog.String("entity", string(j.Entity)),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				res = job.RetryableFailure(fmt.Errorf("panic in %s processor: %v", j.Entity, r))
			}
		}()
		return next(ctx)
	}
}
