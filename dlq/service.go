package dlq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siga-labs/txq"
	"github.com/siga-labs/txq/backlog"
	"github.com/siga-labs/txq/job"
)

// Enqueuer re-admits a replayed job through normal admission control.
// Satisfied by queue.Manager.
type Enqueuer interface {
	Enqueue(ctx context.Context, j *job.Job, requested string) (string, error)
}

// Service provides high-level dead-letter operations over the backlog's
// dead list.
type Service struct {
	store  backlog.Store
	enq    Enqueuer
	logger *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a dead-letter service. enq may be nil when point
// retry is not needed (Retry then returns an error).
func NewService(store backlog.Store, enq Enqueuer, opts ...Option) *Service {
	s := &Service{store: store, enq: enq, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Send captures a failed job as a dead-letter entry on the queue's
// dead list. The cause string is the final error or skip reason.
func (s *Service) Send(ctx context.Context, queue string, j *job.Job, cause string) error {
	raw, err := NewEntry(j, cause).Encode()
	if err != nil {
		return fmt.Errorf("txq/dlq: encode entry for %s: %w", j.ID, err)
	}
	if err := s.store.PushDead(ctx, queue, raw); err != nil {
		return err
	}
	s.logger.Warn("job dead-lettered",
		slog.String("queue", queue),
		slog.String("job_id", j.ID.String()),
		slog.String("entity", string(j.Entity)),
		slog.String("error", cause),
	)
	return nil
}

// List returns up to max entries, oldest first. Corrupt list elements
// are skipped.
func (s *Service) List(ctx context.Context, queue string, max int) ([]*Entry, error) {
	raws, err := s.store.ListDead(ctx, queue, max)
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, 0, len(raws))
	for _, raw := range raws {
		e, err := DecodeEntry(raw)
		if err != nil {
			s.logger.Warn("skipping corrupt dead-letter entry", slog.String("queue", queue))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Count returns the dead-letter list length.
func (s *Service) Count(ctx context.Context, queue string) (int64, error) {
	return s.store.DeadDepth(ctx, queue)
}

// Delete removes the entry for the given job id.
func (s *Service) Delete(ctx context.Context, queue string, jobID string) error {
	raw, err := s.store.RemoveDead(ctx, queue, jobID)
	if err != nil {
		return err
	}
	if raw == nil {
		return txq.ErrDeadEntryNotFound
	}
	return nil
}
