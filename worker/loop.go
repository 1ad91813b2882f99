// Package worker provides the execution side of the queue: a Loop that
// claims and runs one job at a time through the full state machine, a
// Pool that holds a resizable set of loops for one queue, and a Host
// that owns all pools and supports live rescaling.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/siga-labs/txq/backlog"
	"github.com/siga-labs/txq/backoff"
	"github.com/siga-labs/txq/callback"
	"github.com/siga-labs/txq/dlq"
	"github.com/siga-labs/txq/hook"
	"github.com/siga-labs/txq/id"
	"github.com/siga-labs/txq/job"
	"github.com/siga-labs/txq/limiter"
	"github.com/siga-labs/txq/middleware"
	"github.com/siga-labs/txq/queue"
	"github.com/siga-labs/txq/reclaim"
	"github.com/siga-labs/txq/status"
)

// Idle intervals for the loop's two wait states.
const (
	pausedIdle = 500 * time.Millisecond
	pollIdle   = 200 * time.Millisecond
)

// Processor executes one job's business logic. processor.Router
// satisfies it.
type Processor interface {
	Process(ctx context.Context, j *job.Job) job.Result
}

// Deps bundles the collaborators every loop needs. The Host passes one
// Deps to all pools it creates.
type Deps struct {
	Backlog   backlog.Store
	Status    status.Store
	Limiter   *limiter.Limiter
	Reclaimer *reclaim.Reclaimer
	DLQ       *dlq.Service
	Callback  *callback.Sender
	Hooks     *hook.Registry
	Registry  *queue.Registry
	Logger    *slog.Logger
	// Middleware wraps every processor invocation. Optional.
	Middleware []middleware.Middleware
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Loop claims and executes jobs from one queue until its context is
// cancelled.
type Loop struct {
	id        id.ID
	queue     string
	processor Processor
	chain     middleware.Middleware
	deps      Deps
	logger    *slog.Logger
}

// NewLoop creates a loop bound to one queue and processor.
func NewLoop(queueName string, p Processor, deps Deps) *Loop {
	workerID := id.NewWorker()
	return &Loop{
		id:        workerID,
		queue:     queueName,
		processor: p,
		chain:     middleware.Chain(deps.Middleware...),
		deps:      deps,
		logger: deps.logger().With(
			slog.String("worker_id", workerID.String()),
			slog.String("queue", queueName),
		),
	}
}

// Run executes the loop until ctx is cancelled. The current job always
// reaches a durable state before the loop exits.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Debug("worker loop started")
	defer l.logger.Debug("worker loop stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		l.step(ctx)
	}
}

// step runs one iteration: wait out a pause, claim a slot, claim a job,
// and drive it to a durable state.
func (l *Loop) step(ctx context.Context) {
	paused, err := l.deps.Backlog.Paused(ctx, l.queue)
	if err != nil {
		l.logger.Error("paused check failed", slog.String("error", err.Error()))
		sleepCtx(ctx, pausedIdle)
		return
	}
	if paused {
		sleepCtx(ctx, pausedIdle)
		return
	}

	if err := l.deps.Limiter.Acquire(ctx, l.queue); err != nil {
		return
	}
	released := false
	release := func() {
		if !released {
			released = true
			l.deps.Limiter.Release(l.queue)
		}
	}
	defer release()

	desc, _ := l.deps.Registry.Get(l.queue)
	j, raw, err := l.deps.Backlog.TryDequeue(ctx, l.queue, desc.Priorities)
	if err != nil {
		l.logger.Error("dequeue failed", slog.String("error", err.Error()))
		release()
		sleepCtx(ctx, pollIdle)
		return
	}
	if j == nil {
		release()
		sleepCtx(ctx, pollIdle)
		return
	}

	if err := l.deps.Reclaimer.MarkInFlight(ctx, l.queue, raw); err != nil {
		l.logger.Error("in-flight mark failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if j.Deferred(time.Now()) {
		l.deferJob(ctx, j, raw, release)
		return
	}

	l.execute(ctx, j, raw, desc)
}

// deferJob puts a not-yet-due job straight back on its lane. The lease
// is never held across the wait: a deferral can outlast the visibility
// timeout, and an expired lease would let the reclaimer hand out a
// second copy of the job. The requeue lands before the ack, so a crash
// between the two leaves a duplicate for the idempotency guard rather
// than a lost job.
func (l *Loop) deferJob(ctx context.Context, j *job.Job, raw []byte, release func()) {
	bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.deps.Backlog.Enqueue(bg, l.queue, j); err != nil {
		// Lease kept; the reclaimer requeues the job once it expires.
		l.logger.Error("deferred requeue failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	l.ack(bg, j, raw)
	release()

	idle := time.Until(j.NotBefore)
	if idle > pollIdle {
		idle = pollIdle
	}
	sleepCtx(ctx, idle)
}

// execute drives one claimed job to a terminal or requeued state.
func (l *Loop) execute(ctx context.Context, j *job.Job, raw []byte, desc queue.Descriptor) {
	if err := l.deps.Status.UpdateState(ctx, j.ID, job.StateProcessing, j.Attempt, ""); err != nil {
		l.logger.Warn("status write failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	j.State = job.StateProcessing
	l.deps.Hooks.EmitJobStarted(ctx, l.queue, j)

	start := time.Now()
	res := l.chain(ctx, j, func(ctx context.Context) job.Result {
		return l.processor.Process(ctx, j)
	})
	elapsed := time.Since(start)

	switch {
	case res.IsSkip():
		l.finishSkipped(ctx, j, raw, res)
	case res.IsRetry():
		l.handleFailure(ctx, j, raw, desc, res)
	default:
		l.finishCompleted(ctx, j, raw, elapsed)
	}
}

// finishCompleted records terminal success. A failed OK callback does
// not revert completion.
func (l *Loop) finishCompleted(ctx context.Context, j *job.Job, raw []byte, elapsed time.Duration) {
	j.State = job.StateCompleted
	l.finalize(ctx, j, "")
	l.ack(ctx, j, raw)
	l.deps.Callback.Notify(ctx, j, callback.StatusOK, "")
	l.deps.Hooks.EmitJobCompleted(ctx, l.queue, j, elapsed)
}

// finishSkipped records a terminal skip. Skip is terminal regardless of
// notification success.
func (l *Loop) finishSkipped(ctx context.Context, j *job.Job, raw []byte, res job.Result) {
	j.State = job.StateSkipped
	j.LastError = res.ErrorMessage()
	l.finalize(ctx, j, res.ErrorMessage())
	l.ack(ctx, j, raw)
	l.deps.Callback.Notify(ctx, j, callback.StatusSkip, res.ErrorMessage())
	l.deps.Hooks.EmitJobSkipped(ctx, l.queue, j, res.Reason)
}

// handleFailure either schedules a requeue-based retry or dead-letters
// the job. The backoff is served by the backlog, not by this goroutine:
// the job goes back onto its lane with NotBefore pushed out, and the
// lease is acked only after the requeue lands, so the job is in a
// durable location at every instant and the retry survives a process
// restart.
func (l *Loop) handleFailure(ctx context.Context, j *job.Job, raw []byte, desc queue.Descriptor, res job.Result) {
	j.Attempt++
	j.LastError = res.ErrorMessage()

	maxRetries := j.EffectiveMaxRetries(desc.MaxRetries)
	if j.Attempt > maxRetries {
		l.deadLetter(ctx, j, raw, res)
		return
	}

	if err := l.deps.Status.UpdateState(ctx, j.ID, job.StateQueued, j.Attempt, res.ErrorMessage()); err != nil {
		l.logger.Warn("status write failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	delay := backoff.ForBase(desc.BaseBackoff).Delay(j.Attempt)
	l.deps.Hooks.EmitJobRetrying(ctx, l.queue, j, j.Attempt, delay)
	l.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.Int("attempt", j.Attempt),
		slog.Int("max_retries", maxRetries),
		slog.Duration("delay", delay),
		slog.String("error", res.ErrorMessage()),
	)

	// Requeue durably even when shutdown cancelled ctx mid-execution.
	bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	j.State = job.StateQueued
	j.NotBefore = time.Now().Add(delay)
	if err := l.deps.Backlog.Enqueue(bg, l.queue, j); err != nil {
		// Lease kept; the reclaimer requeues the job once it expires.
		l.logger.Error("retry requeue failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	l.ack(bg, j, raw)
}

// deadLetter records terminal failure. If the ERROR callback itself
// fails, the job is dead-lettered a second time so operators see the
// notification loss.
func (l *Loop) deadLetter(ctx context.Context, j *job.Job, raw []byte, res job.Result) {
	cause := res.ErrorMessage()
	if err := l.deps.DLQ.Send(ctx, l.queue, j, cause); err != nil {
		l.logger.Error("dead-letter send failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	j.State = job.StateError
	l.finalize(ctx, j, cause)
	l.ack(ctx, j, raw)
	l.deps.Hooks.EmitJobDeadLettered(ctx, l.queue, j, cause)

	if delivered, err := l.deps.Callback.Notify(ctx, j, callback.StatusError, cause); !delivered {
		failure := "error callback delivery failed"
		if err != nil {
			failure += ": " + err.Error()
		}
		if dlqErr := l.deps.DLQ.Send(ctx, l.queue, j, failure); dlqErr != nil {
			l.logger.Error("double dead-letter failed",
				slog.String("job_id", j.ID.String()),
				slog.String("error", dlqErr.Error()),
			)
		}
	}
}

// finalize writes the terminal status and completion stamp.
func (l *Loop) finalize(ctx context.Context, j *job.Job, errMsg string) {
	now := time.Now().UTC()
	j.FinalizedAt = &now
	if err := l.deps.Status.UpdateState(ctx, j.ID, j.State, j.Attempt, errMsg); err != nil {
		l.logger.Warn("status write failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	if err := l.deps.Status.MarkFinalized(ctx, j.ID, now); err != nil {
		l.logger.Warn("finalize stamp failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// ack releases the job's visibility lease.
func (l *Loop) ack(ctx context.Context, j *job.Job, raw []byte) {
	if err := l.deps.Reclaimer.Ack(ctx, l.queue, raw); err != nil {
		l.logger.Warn("in-flight ack failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
