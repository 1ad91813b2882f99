package reclaim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// QueueNames supplies the queues to sweep. queue.Registry satisfies it.
type QueueNames interface {
	Names() []string
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// DefaultSweepSchedule runs a sweep every half visibility window.
const DefaultSweepSchedule = "@every 30s"

// Sweeper runs ReclaimExpired across all registered queues on a cron
// schedule.
type Sweeper struct {
	reclaimer *Reclaimer
	queues    QueueNames
	schedule  cronlib.Schedule
	logger    *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. expr is a cron expression or descriptor;
// empty uses DefaultSweepSchedule.
func NewSweeper(r *Reclaimer, queues QueueNames, expr string, logger *slog.Logger) (*Sweeper, error) {
	if expr == "" {
		expr = DefaultSweepSchedule
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		reclaimer: r,
		queues:    queues,
		schedule:  sched,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start launches the sweep goroutine.
func (s *Sweeper) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("reclaim sweeper started")
	return nil
}

// Stop signals the sweeper and waits for the goroutine to finish.
func (s *Sweeper) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("reclaim sweeper stopped")
	return nil
}

func (s *Sweeper) loop() {
	defer s.wg.Done()
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
		s.Sweep(context.Background())
	}
}

// Sweep runs one reclaim pass over every registered queue and returns
// the total number of jobs requeued.
func (s *Sweeper) Sweep(ctx context.Context) int {
	total := 0
	for _, queue := range s.queues.Names() {
		n, err := s.reclaimer.ReclaimExpired(ctx, queue)
		if err != nil {
			s.logger.Error("reclaim sweep error",
				slog.String("queue", queue),
				slog.String("error", err.Error()),
			)
			continue
		}
		total += n
	}
	return total
}
