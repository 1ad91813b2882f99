// Package hook defines the extension points of the queue engine.
// Extensions are notified of lifecycle events (job enqueued, completed,
// skipped, dead-lettered) and can react to them for metrics, auditing
// or tracing.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/siga-labs/txq/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobEnqueued is called after a job is successfully admitted.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, queue string, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, queue string, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, queue string, j *job.Job, elapsed time.Duration) error
}

// JobSkipped is called when a job ends in a terminal skip.
type JobSkipped interface {
	OnJobSkipped(ctx context.Context, queue string, j *job.Job, reason string) error
}

// JobRetrying is called when a job fails but will run again.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, queue string, j *job.Job, attempt int, delay time.Duration) error
}

// JobDeadLettered is called when a job is moved to the dead-letter list.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, queue string, j *job.Job, cause string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
