// Package reclaim recovers jobs whose worker died mid-execution. A
// claimed job carries a visibility lease; when the lease expires without
// an ack, the reclaimer puts the job back on its original lane.
package reclaim

import (
	"context"
	"log/slog"
	"time"

	"github.com/siga-labs/txq/backlog"
	"github.com/siga-labs/txq/job"
)

// Visibility lease bounds. Leases shorter than the minimum would race
// normal execution and reclaim live jobs.
const (
	DefaultVisibility = 60 * time.Second
	MinVisibility     = 10 * time.Second
)

// Reclaimer manages visibility leases over the backlog's in-flight set.
type Reclaimer struct {
	store      backlog.Store
	visibility time.Duration
	priorities int
	logger     *slog.Logger
}

// Option configures the Reclaimer.
type Option func(*Reclaimer)

// WithVisibility sets the lease duration, floored at MinVisibility.
func WithVisibility(d time.Duration) Option {
	return func(r *Reclaimer) {
		if d <= 0 {
			return
		}
		if d < MinVisibility {
			d = MinVisibility
		}
		r.visibility = d
	}
}

// WithPriorities sets the lane count jobs are returned to.
func WithPriorities(n int) Option {
	return func(r *Reclaimer) {
		if n > 0 {
			r.priorities = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reclaimer) { r.logger = l }
}

// New creates a Reclaimer over the backlog store.
func New(store backlog.Store, opts ...Option) *Reclaimer {
	r := &Reclaimer{
		store:      store,
		visibility: DefaultVisibility,
		priorities: job.MaxPriority + 1,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Visibility returns the configured lease duration.
func (r *Reclaimer) Visibility() time.Duration { return r.visibility }

// MarkInFlight leases a claimed job until now + visibility.
func (r *Reclaimer) MarkInFlight(ctx context.Context, queue string, raw []byte) error {
	return r.store.MarkInFlight(ctx, queue, raw, time.Now().Add(r.visibility))
}

// Ack releases the lease after a durable exit.
func (r *Reclaimer) Ack(ctx context.Context, queue string, raw []byte) error {
	return r.store.AckInFlight(ctx, queue, raw)
}

// ReclaimExpired requeues every job whose lease has lapsed, back onto
// its original priority lane (the middle lane when the recorded value
// is out of range). Corrupt in-flight entries are removed and dropped.
// Returns the number of jobs requeued.
func (r *Reclaimer) ReclaimExpired(ctx context.Context, queue string) (int, error) {
	expired, err := r.store.ExpiredInFlight(ctx, queue, time.Now())
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, raw := range expired {
		if err := r.store.AckInFlight(ctx, queue, raw); err != nil {
			return reclaimed, err
		}

		j, decErr := job.Decode(raw)
		if decErr != nil {
			r.logger.Warn("dropping corrupt in-flight entry",
				slog.String("queue", queue),
				slog.String("error", decErr.Error()),
			)
			continue
		}

		priority := j.Priority
		if priority < job.MinPriority || priority >= r.priorities {
			priority = 1
		}
		if err := r.store.EnqueueRaw(ctx, queue, priority, raw); err != nil {
			return reclaimed, err
		}
		reclaimed++

		r.logger.Info("job reclaimed after lease expiry",
			slog.String("queue", queue),
			slog.String("job_id", j.ID.String()),
			slog.Int("priority", priority),
		)
	}
	return reclaimed, nil
}

// ListInFlight returns up to max leased jobs ordered by nearest expiry.
// Corrupt entries are skipped.
func (r *Reclaimer) ListInFlight(ctx context.Context, queue string, max int) ([]*job.Job, error) {
	raws, err := r.store.ListInFlight(ctx, queue, max)
	if err != nil {
		return nil, err
	}
	jobs := make([]*job.Job, 0, len(raws))
	for _, raw := range raws {
		j, err := job.Decode(raw)
		if err != nil {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// InFlightDepth returns the number of leased jobs.
func (r *Reclaimer) InFlightDepth(ctx context.Context, queue string) (int64, error) {
	return r.store.InFlightDepth(ctx, queue)
}
