package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/siga-labs/txq/job"
)

// Logging returns middleware that logs processor start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		logger.Info("processing job",
			slog.String("job_id", j.ID.String()),
			slog.String("entity", string(j.Entity)),
			slog.String("operation", string(j.Operation)),
			slog.Int("attempt", j.Attempt),
		)

		start := time.Now()
		res := next(ctx)
		elapsed := time.Since(start)

		switch {
		case res.IsRetry():
			logger.Error("job failed",
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", res.ErrorMessage()),
			)
		case res.IsSkip():
			logger.Info("job skipped",
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("reason", res.Reason),
			)
		default:
			logger.Info("job completed",
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}
		return res
	}
}
