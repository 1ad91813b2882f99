// Package processor applies jobs to the academic store. A Router owns a
// static table from entity kind to processor, built once at startup; each
// processor implements idempotent CREATE / UPDATE / DELETE semantics and
// reports its outcome as a job.Result.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/siga-labs/txq"
	"github.com/siga-labs/txq/academic"
	"github.com/siga-labs/txq/job"
)

// Processor applies one job and classifies the outcome.
type Processor interface {
	Process(ctx context.Context, j *job.Job) job.Result
}

// Router dispatches jobs to the processor registered for their entity
// kind. The table is immutable after construction, so lookups need no
// locking.
type Router struct {
	table  map[string]Processor
	logger *slog.Logger
}

// RouterOption configures the Router.
type RouterOption func(*Router)

// WithLogger sets the logger passed down to every processor.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// NewRouter builds the full processor table over the given store.
func NewRouter(store academic.Store, opts ...RouterOption) *Router {
	r := &Router{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.table = map[string]Processor{
		job.EntityAula:               &aulaProcessor{store: store, logger: r.logger},
		job.EntityNivel:              &nivelProcessor{store: store, logger: r.logger},
		job.EntityMateria:            &materiaProcessor{store: store, logger: r.logger},
		job.EntityDocente:            &docenteProcessor{store: store, logger: r.logger},
		job.EntityEstudiante:         &estudianteProcessor{store: store, logger: r.logger},
		job.EntityPeriodoAcademico:   &periodoProcessor{store: store, logger: r.logger},
		job.EntityPlanDeEstudio:      &planProcessor{store: store, logger: r.logger},
		job.EntityGrupoMateria:       &grupoProcessor{store: store, logger: r.logger},
		job.EntityInscripcion:        &inscripcionProcessor{store: store, logger: r.logger},
		job.EntityDetalleInscripcion: &detalleProcessor{store: store, logger: r.logger},
	}
	return r
}

// Kinds returns the entity kinds the router can handle.
func (r *Router) Kinds() []string {
	kinds := make([]string, 0, len(r.table))
	for k := range r.table {
		kinds = append(kinds, k)
	}
	return kinds
}

// Process routes the job to its entity processor. An unknown kind is a
// retryable failure: a newer deployment may know the kind, and the job
// dead-letters once retries run out.
func (r *Router) Process(ctx context.Context, j *job.Job) job.Result {
	p, ok := r.table[j.Entity]
	if !ok {
		return job.RetryableFailure(fmt.Errorf("%w: %q", txq.ErrUnknownEntity, j.Entity))
	}
	res := p.Process(ctx, j)
	if res.IsSkip() {
		r.logger.Warn("job skipped",
			slog.String("job_id", j.ID.String()),
			slog.String("entity", j.Entity),
			slog.String("reason", res.Reason))
	}
	return res
}

// guarded short-circuits already-applied jobs and records the guard row
// after a successful apply. Two workers racing the same id both pass the
// check at worst once; the store's natural-key constraints make the
// second apply skip.
func guarded(ctx context.Context, store academic.Store, j *job.Job, apply func(ctx context.Context) job.Result) job.Result {
	done, err := store.IsProcessed(ctx, j.ID.String())
	if err != nil {
		return job.RetryableFailure(fmt.Errorf("txq/processor: idempotency check: %w", err))
	}
	if done {
		return job.Success()
	}

	res := apply(ctx)
	if res.Outcome == job.OutcomeSuccess {
		if err := store.MarkProcessed(ctx, j.ID.String()); err != nil {
			return job.RetryableFailure(fmt.Errorf("txq/processor: mark processed: %w", err))
		}
	}
	return res
}

// classifyStoreErr turns a store failure into a Result: constraint
// violations are terminal skips, anything else is transient.
func classifyStoreErr(op string, err error) job.Result {
	switch {
	case errors.Is(err, academic.ErrDuplicate):
		return job.NotFoundSkip(op + ": target already exists")
	case errors.Is(err, academic.ErrForeignKey):
		return job.InvalidSkip(op + ": operation violates a referential constraint")
	case errors.Is(err, academic.ErrNotFound):
		return job.NotFoundSkip(op + ": target does not exist")
	}
	return job.RetryableFailure(fmt.Errorf("txq/processor: %s: %w", op, err))
}
