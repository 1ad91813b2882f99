// Package engine wires the txq subsystems into one runnable service:
// queue registry, admission manager, limiter, reclaimer, dead-letter
// service, callback sender, processor router, and the worker host.
//
// This package exists to sit above every subsystem package: the root
// txq package defines the sentinel errors the subsystems import, so it
// cannot import them back. The engine composes them and the application
// layer (cmd/txqd, api) talks to the Engine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/siga-labs/txq/academic"
	"github.com/siga-labs/txq/backlog"
	"github.com/siga-labs/txq/callback"
	"github.com/siga-labs/txq/dlq"
	"github.com/siga-labs/txq/hook"
	"github.com/siga-labs/txq/job"
	"github.com/siga-labs/txq/limiter"
	"github.com/siga-labs/txq/middleware"
	"github.com/siga-labs/txq/observability"
	"github.com/siga-labs/txq/processor"
	"github.com/siga-labs/txq/queue"
	"github.com/siga-labs/txq/reclaim"
	"github.com/siga-labs/txq/status"
	"github.com/siga-labs/txq/worker"
)

// Engine composes all subsystems over the shared stores. Create one
// with New, then Start it. The zero value is not usable.
type Engine struct {
	logger   *slog.Logger
	backlog  backlog.Store
	status   status.Store
	entities academic.Store

	registry  *queue.Registry
	limiter   *limiter.Limiter
	manager   *queue.Manager
	reclaimer *reclaim.Reclaimer
	sweeper   *reclaim.Sweeper
	dlq       *dlq.Service
	sender    *callback.Sender
	hooks     *hook.Registry
	metrics   *observability.MetricsExtension
	router    *processor.Router
	host      *worker.Host

	descriptors   []queue.Descriptor
	visibility    time.Duration
	sweepSchedule string
	jobTimeout    time.Duration
	extraMws      []middleware.Middleware
	extraExts     []hook.Extension

	mu      sync.Mutex
	running bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithQueues declares the queues the engine starts with. Descriptors
// are normalized on registration.
func WithQueues(descs ...queue.Descriptor) Option {
	return func(e *Engine) { e.descriptors = append(e.descriptors, descs...) }
}

// WithVisibility sets the in-flight lease duration.
func WithVisibility(d time.Duration) Option {
	return func(e *Engine) { e.visibility = d }
}

// WithSweepSchedule sets the reclaim sweep cron expression.
func WithSweepSchedule(expr string) Option {
	return func(e *Engine) { e.sweepSchedule = expr }
}

// WithCallbackSender replaces the default webhook sender.
func WithCallbackSender(s *callback.Sender) Option {
	return func(e *Engine) { e.sender = s }
}

// WithJobTimeout bounds each processor invocation. Zero disables the
// timeout middleware.
func WithJobTimeout(d time.Duration) Option {
	return func(e *Engine) { e.jobTimeout = d }
}

// WithMiddleware appends middleware inside the default chain
// (recover, logging, then these, then timeout).
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) { e.extraMws = append(e.extraMws, mws...) }
}

// WithExtension registers an additional lifecycle hook extension.
func WithExtension(exts ...hook.Extension) Option {
	return func(e *Engine) { e.extraExts = append(e.extraExts, exts...) }
}

// New builds an Engine over the three stores. The backlog store is the
// scheduling truth, the status store the observability record, and the
// entity store the transactional target the processors write to.
func New(bl backlog.Store, st status.Store, entities academic.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:   slog.Default(),
		backlog:  bl,
		status:   st,
		entities: entities,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.registry = queue.NewRegistry()
	e.registry.Register(queue.Descriptor{Name: queue.DefaultQueue})
	for _, desc := range e.descriptors {
		e.registry.Register(desc)
	}

	e.hooks = hook.NewRegistry(e.logger)
	e.metrics = observability.NewMetricsExtension()
	e.hooks.Register(e.metrics)
	for _, ext := range e.extraExts {
		e.hooks.Register(ext)
	}

	e.limiter = limiter.New()
	e.manager = queue.NewManager(e.registry, e.backlog, e.status, queue.WithLogger(e.logger))

	reclaimOpts := []reclaim.Option{reclaim.WithLogger(e.logger)}
	if e.visibility > 0 {
		reclaimOpts = append(reclaimOpts, reclaim.WithVisibility(e.visibility))
	}
	e.reclaimer = reclaim.New(e.backlog, reclaimOpts...)

	sweeper, err := reclaim.NewSweeper(e.reclaimer, e.registry, e.sweepSchedule, e.logger)
	if err != nil {
		return nil, fmt.Errorf("txq/engine: sweep schedule: %w", err)
	}
	e.sweeper = sweeper

	e.dlq = dlq.NewService(e.backlog, e.manager, dlq.WithLogger(e.logger))
	if e.sender == nil {
		e.sender = callback.NewSender(callback.WithLogger(e.logger))
	}
	e.router = processor.NewRouter(entities, processor.WithLogger(e.logger))

	mws := []middleware.Middleware{
		middleware.Recover(e.logger),
		middleware.Logging(e.logger),
	}
	mws = append(mws, e.extraMws...)
	if e.jobTimeout > 0 {
		mws = append(mws, middleware.Timeout(e.jobTimeout))
	}

	e.host = worker.NewHost(worker.Deps{
		Backlog:    e.backlog,
		Status:     e.status,
		Limiter:    e.limiter,
		Reclaimer:  e.reclaimer,
		DLQ:        e.dlq,
		Callback:   e.sender,
		Hooks:      e.hooks,
		Registry:   e.registry,
		Logger:     e.logger,
		Middleware: mws,
	})
	return e, nil
}

// Start launches the worker pools and the reclaim sweeper. ctx bounds
// the lifetime of every worker loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	for _, desc := range e.registry.List() {
		if desc.Paused {
			if err := e.backlog.SetPaused(ctx, desc.Name, true); err != nil {
				return fmt.Errorf("txq/engine: pause %s: %w", desc.Name, err)
			}
		}
	}
	if err := e.host.Start(ctx, e.router); err != nil {
		return err
	}
	if err := e.sweeper.Start(ctx); err != nil {
		return err
	}
	e.running = true
	e.logger.Info("engine started", slog.Int("queues", len(e.registry.Names())))
	return nil
}

// Stop drains the workers and stops the sweeper. Safe to call more
// than once.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false

	if err := e.sweeper.Stop(ctx); err != nil {
		e.logger.Warn("sweeper stop", slog.String("error", err.Error()))
	}
	err := e.host.Stop(ctx)
	e.hooks.EmitShutdown(ctx)
	return err
}

// Submit admits a job through the manager and emits the enqueued hook.
// requested names a queue, or "" / "balanced" for round-robin routing.
func (e *Engine) Submit(ctx context.Context, j *job.Job, requested string) (string, error) {
	lane, err := e.manager.Enqueue(ctx, j, requested)
	if err != nil {
		return "", err
	}
	e.hooks.EmitJobEnqueued(ctx, lane, j)
	return lane, nil
}

// PauseQueue stops dequeueing from the queue. Enqueues still land.
func (e *Engine) PauseQueue(ctx context.Context, name string) error {
	return e.backlog.SetPaused(ctx, name, true)
}

// ResumeQueue re-enables dequeueing.
func (e *Engine) ResumeQueue(ctx context.Context, name string) error {
	return e.backlog.SetPaused(ctx, name, false)
}

// QueueStats is one queue's point-in-time depth snapshot.
type QueueStats struct {
	Queue    string  `json:"queue"`
	Lanes    []int64 `json:"lanes"`
	Backlog  int64   `json:"backlog"`
	InFlight int64   `json:"inFlight"`
	Dead     int64   `json:"dead"`
	Paused   bool    `json:"paused"`
	Workers  int     `json:"workers"`
}

// Stats snapshots every registered queue.
func (e *Engine) Stats(ctx context.Context) ([]QueueStats, error) {
	workers := e.host.ListQueues()
	descs := e.registry.List()
	out := make([]QueueStats, 0, len(descs))
	for _, desc := range descs {
		s := QueueStats{Queue: desc.Name, Workers: workers[desc.Name]}

		lanes, err := e.backlog.LaneDepths(ctx, desc.Name, desc.Priorities)
		if err != nil {
			return nil, err
		}
		s.Lanes = lanes
		for _, n := range lanes {
			s.Backlog += n
		}
		if s.InFlight, err = e.backlog.InFlightDepth(ctx, desc.Name); err != nil {
			return nil, err
		}
		if s.Dead, err = e.backlog.DeadDepth(ctx, desc.Name); err != nil {
			return nil, err
		}
		if s.Paused, err = e.backlog.Paused(ctx, desc.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Manager returns the admission manager.
func (e *Engine) Manager() *queue.Manager { return e.manager }

// Host returns the worker host for scale and migrate operations.
func (e *Engine) Host() *worker.Host { return e.host }

// Router returns the processor router.
func (e *Engine) Router() *processor.Router { return e.router }

// DLQ returns the dead-letter service.
func (e *Engine) DLQ() *dlq.Service { return e.dlq }

// Reclaimer returns the visibility reclaimer.
func (e *Engine) Reclaimer() *reclaim.Reclaimer { return e.reclaimer }

// Sweeper returns the scheduled reclaim sweeper.
func (e *Engine) Sweeper() *reclaim.Sweeper { return e.sweeper }

// Registry returns the queue registry.
func (e *Engine) Registry() *queue.Registry { return e.registry }

// Backlog returns the backlog store.
func (e *Engine) Backlog() backlog.Store { return e.backlog }

// Status returns the status store.
func (e *Engine) Status() status.Store { return e.status }

// Hooks returns the lifecycle hook registry.
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Metrics returns the built-in Prometheus extension.
func (e *Engine) Metrics() *observability.MetricsExtension { return e.metrics }

// IsRunning reports whether the host is started with live workers.
func (e *Engine) IsRunning() bool { return e.host.IsRunning() }
