// Package queue declares queues and admits jobs into them: routing
// (including the balanced round-robin pseudo queue), backpressure per
// the queue's reject policy, and the status-first write that makes a
// transaction visible before it is runnable.
package queue

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/siga-labs/txq"
	"github.com/siga-labs/txq/backlog"
	"github.com/siga-labs/txq/dlq"
	"github.com/siga-labs/txq/job"
	"github.com/siga-labs/txq/status"
)

// blockPollInterval is how often a blocked producer re-checks depth.
const blockPollInterval = 100 * time.Millisecond

// Manager routes jobs to queues and enforces admission control.
type Manager struct {
	registry *Registry
	backlog  backlog.Store
	status   status.Store
	logger   *slog.Logger

	// One monotonically increasing counter per distinct candidate set.
	rr sync.Map // string -> *atomic.Uint64
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager over the given stores and registry.
func NewManager(registry *Registry, bl backlog.Store, st status.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: registry,
		backlog:  bl,
		status:   st,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Registry returns the queue registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Enqueue admits a job. requested names a queue, or "" / "balanced" for
// round-robin over all registered queues except "default". The returned
// lane is the queue that accepted the job, or "dlq:{queue}" when the
// deadletter policy diverted it. The status record is written before
// the job becomes runnable, so a successful admission is always
// pollable.
func (m *Manager) Enqueue(ctx context.Context, j *job.Job, requested string) (string, error) {
	target := m.route(requested)
	desc, _ := m.registry.Get(target)

	if err := m.status.Add(ctx, target, j); err != nil {
		return "", err
	}

	if desc.MaxQueued > 0 {
		depth, err := m.backlog.Depth(ctx, target, desc.Priorities)
		if err != nil {
			return "", err
		}
		if depth >= desc.MaxQueued {
			switch desc.RejectPolicy {
			case PolicyDeadLetter:
				return m.divertToDead(ctx, target, j)
			case PolicyBlock:
				if err := m.waitForRoom(ctx, target, desc); err != nil {
					return "", err
				}
			default:
				m.logger.Warn("queue full, job rejected",
					slog.String("queue", target),
					slog.String("job_id", j.ID.String()),
					slog.Int64("backlog", depth),
				)
				return "", &txq.QueueFullError{Queue: target, Backlog: depth, Max: desc.MaxQueued}
			}
		}
	}

	if err := m.backlog.Enqueue(ctx, target, j); err != nil {
		return "", err
	}
	m.logger.Debug("job enqueued",
		slog.String("queue", target),
		slog.String("job_id", j.ID.String()),
		slog.String("entity", string(j.Entity)),
		slog.Int("priority", job.ClampPriority(j.Priority)),
	)
	return target, nil
}

// route resolves the requested queue name to a concrete target.
func (m *Manager) route(requested string) string {
	if requested != "" && requested != Balanced {
		return requested
	}

	var candidates []string
	for _, name := range m.registry.Names() {
		if name != DefaultQueue {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return DefaultQueue
	}
	sort.Strings(candidates)

	key := strings.Join(candidates, ",")
	c, _ := m.rr.LoadOrStore(key, new(atomic.Uint64))
	n := c.(*atomic.Uint64).Add(1) - 1
	return candidates[n%uint64(len(candidates))]
}

func (m *Manager) divertToDead(ctx context.Context, target string, j *job.Job) (string, error) {
	raw, err := dlq.NewEntry(j, "queue full, diverted by deadletter policy").Encode()
	if err != nil {
		return "", err
	}
	if err := m.backlog.PushDead(ctx, target, raw); err != nil {
		return "", err
	}
	if err := m.status.UpdateState(ctx, j.ID, job.StateError, j.Attempt, "queue full, dead-lettered"); err != nil {
		m.logger.Warn("status write failed for diverted job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return "dlq:" + target, nil
}

// waitForRoom polls depth until the backlog drops under the cap or ctx
// is done.
func (m *Manager) waitForRoom(ctx context.Context, target string, desc Descriptor) error {
	ticker := time.NewTicker(blockPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		depth, err := m.backlog.Depth(ctx, target, desc.Priorities)
		if err != nil {
			return err
		}
		if depth < desc.MaxQueued {
			return nil
		}
	}
}

// MoveTasks pops up to max jobs from one queue, highest lane first, and
// re-enqueues them on another, keeping each job's priority. Returns the
// number moved.
func (m *Manager) MoveTasks(ctx context.Context, from, to string, max int) (int, error) {
	fromDesc, _ := m.registry.Get(from)
	moved := 0
	for moved < max {
		j, raw, err := m.backlog.TryDequeue(ctx, from, fromDesc.Priorities)
		if err != nil {
			return moved, err
		}
		if j == nil {
			break
		}
		if err := m.backlog.EnqueueRaw(ctx, to, job.ClampPriority(j.Priority), raw); err != nil {
			return moved, err
		}
		moved++
	}
	if moved > 0 {
		m.logger.Info("tasks moved",
			slog.String("from", from),
			slog.String("to", to),
			slog.Int("count", moved),
		)
	}
	return moved, nil
}
