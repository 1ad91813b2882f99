package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/siga-labs/txq"
	"github.com/siga-labs/txq/job"
)

// Replay drains up to max entries back into the queue, oldest first.
// Replayed jobs land on the lowest-priority lane so a bulk replay never
// starves live traffic. Returns the number of jobs re-enqueued.
func (s *Service) Replay(ctx context.Context, queue string, max int) (int, error) {
	replayed := 0
	for replayed < max {
		raw, err := s.store.PopDead(ctx, queue)
		if err != nil {
			return replayed, err
		}
		if raw == nil {
			break
		}

		e, err := DecodeEntry(raw)
		if err != nil {
			// A corrupt entry cannot be rebuilt into a job; drop it.
			s.logger.Warn("dropping corrupt dead-letter entry during replay",
				slog.String("queue", queue))
			continue
		}

		j := e.Job()
		jraw, err := j.Encode()
		if err != nil {
			return replayed, err
		}
		if err := s.store.EnqueueRaw(ctx, queue, job.MaxPriority, jraw); err != nil {
			// Put the entry back so the failure loses nothing.
			if pushErr := s.store.PushDead(ctx, queue, raw); pushErr != nil {
				s.logger.Error("dead-letter entry lost during replay",
					slog.String("queue", queue),
					slog.String("job_id", e.JobID.String()),
					slog.String("error", pushErr.Error()),
				)
			}
			return replayed, err
		}
		replayed++
	}

	if replayed > 0 {
		s.logger.Info("dead-letter replay",
			slog.String("queue", queue),
			slog.Int("count", replayed),
		)
	}
	return replayed, nil
}

// Retry replays a single entry by job id at top priority, re-admitted
// through the Enqueuer so admission control and the status store see it.
func (s *Service) Retry(ctx context.Context, queue string, jobID string) (*job.Job, error) {
	if s.enq == nil {
		return nil, txq.ErrQueueNotFound
	}
	raw, err := s.store.RemoveDead(ctx, queue, jobID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, txq.ErrDeadEntryNotFound
	}

	e, err := DecodeEntry(raw)
	if err != nil {
		return nil, txq.ErrDeadEntryNotFound
	}

	j := e.Job()
	j.Priority = job.MinPriority
	j.NotBefore = time.Time{}
	if _, err := s.enq.Enqueue(ctx, j, queue); err != nil {
		// Admission refused; restore the entry.
		if pushErr := s.store.PushDead(ctx, queue, raw); pushErr != nil {
			s.logger.Error("dead-letter entry lost during retry",
				slog.String("queue", queue),
				slog.String("job_id", e.JobID.String()),
				slog.String("error", pushErr.Error()),
			)
		}
		return nil, err
	}
	return j, nil
}
