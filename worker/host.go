package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/siga-labs/txq"
	"github.com/siga-labs/txq/queue"
)

// Host owns one Pool per queue and supports live rescaling: queues can
// be added, scaled, removed, and rebalanced while the host runs.
type Host struct {
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	pools   map[string]*Pool
	running bool
}

// NewHost creates a Host over the shared dependencies.
func NewHost(deps Deps) *Host {
	return &Host{
		deps:   deps,
		logger: deps.logger(),
		pools:  make(map[string]*Pool),
	}
}

// Start creates a pool for every registered queue and scales it to the
// declared worker count. p becomes the processor for those pools.
func (h *Host) Start(ctx context.Context, p Processor) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil
	}
	h.ctx = ctx
	h.running = true

	for _, desc := range h.deps.Registry.List() {
		h.deps.Limiter.Configure(desc.Name, desc.MaxInFlight, desc.RateLimit, desc.RateBurst)
		pool := NewPool(ctx, desc.Name, p, h.deps)
		pool.SetConcurrency(desc.Workers)
		h.pools[desc.Name] = pool
	}

	h.logger.Info("worker host started", slog.Int("queues", len(h.pools)))
	return nil
}

// Stop drains every pool concurrently and clears host state.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	pools := h.pools
	h.pools = make(map[string]*Pool)
	h.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, pool := range pools {
		g.Go(func() error {
			pool.Stop()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	h.deps.Hooks.EmitShutdown(ctx)
	h.logger.Info("worker host stopped")
	return nil
}

// AddQueue declares a new queue and starts a pool for it.
func (h *Host) AddQueue(name string, workers int, p Processor) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return txq.ErrHostStopped
	}
	if _, exists := h.pools[name]; exists {
		return fmt.Errorf("%w: %s", txq.ErrQueueExists, name)
	}

	desc := h.deps.Registry.Register(queue.Descriptor{Name: name, Workers: workers})
	h.deps.Limiter.Configure(desc.Name, desc.MaxInFlight, desc.RateLimit, desc.RateBurst)

	pool := NewPool(h.ctx, name, p, h.deps)
	pool.SetConcurrency(desc.Workers)
	h.pools[name] = pool
	return nil
}

// ScaleQueue adjusts a live pool's concurrency.
func (h *Host) ScaleQueue(name string, workers int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	pool, ok := h.pools[name]
	if !ok {
		return fmt.Errorf("%w: %s", txq.ErrQueueNotFound, name)
	}
	pool.SetConcurrency(workers)

	if desc, ok := h.deps.Registry.Get(name); ok {
		desc.Workers = workers
		h.deps.Registry.Register(desc)
	}
	return nil
}

// RemoveQueue drains and deletes a pool and its declaration.
func (h *Host) RemoveQueue(name string) error {
	h.mu.Lock()
	pool, ok := h.pools[name]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", txq.ErrQueueNotFound, name)
	}
	delete(h.pools, name)
	h.mu.Unlock()

	pool.Stop()
	h.deps.Registry.Remove(name)
	return nil
}

// MigrateWorkers moves count loops from one queue's pool to another's.
func (h *Host) MigrateWorkers(from, to string, count int) error {
	if from == to {
		return fmt.Errorf("txq/worker: migrate source and target are both %q", from)
	}
	if count <= 0 {
		return fmt.Errorf("txq/worker: migrate count %d is not positive", count)
	}

	h.mu.Lock()
	src, ok := h.pools[from]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", txq.ErrQueueNotFound, from)
	}
	dst, ok := h.pools[to]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", txq.ErrQueueNotFound, to)
	}
	h.mu.Unlock()

	current := src.Concurrency()
	if count > current {
		return fmt.Errorf("txq/worker: cannot migrate %d workers, %q has %d", count, from, current)
	}

	src.SetConcurrency(current - count)
	dst.SetConcurrency(dst.Concurrency() + count)
	h.syncDescriptor(from, src.Concurrency())
	h.syncDescriptor(to, dst.Concurrency())
	return nil
}

// BalanceWorkers levels every pool to the mean concurrency. The
// remainder lands on the lexically first pools so the total is
// preserved.
func (h *Host) BalanceWorkers() {
	h.mu.Lock()
	pools := make([]*Pool, 0, len(h.pools))
	total := 0
	for _, pool := range h.pools {
		pools = append(pools, pool)
		total += pool.Concurrency()
	}
	h.mu.Unlock()

	if len(pools) == 0 {
		return
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Queue() < pools[j].Queue() })

	mean := total / len(pools)
	remainder := total % len(pools)
	for i, pool := range pools {
		n := mean
		if i < remainder {
			n++
		}
		pool.SetConcurrency(n)
		h.syncDescriptor(pool.Queue(), n)
	}
}

// ListQueues returns each queue's current concurrency.
func (h *Host) ListQueues() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.pools))
	for name, pool := range h.pools {
		out[name] = pool.Concurrency()
	}
	return out
}

// IsRunning reports whether the host started and at least one queue has
// workers.
func (h *Host) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return false
	}
	for _, pool := range h.pools {
		if pool.Concurrency() > 0 {
			return true
		}
	}
	return false
}

func (h *Host) syncDescriptor(name string, workers int) {
	if desc, ok := h.deps.Registry.Get(name); ok {
		desc.Workers = workers
		h.deps.Registry.Register(desc)
	}
}
