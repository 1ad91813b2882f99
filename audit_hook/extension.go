package audithook

import (
	"context"
	"log/slog"
	"time"

	"github.com/siga-labs/txq/hook"
	"github.com/siga-labs/txq/job"
)

// Compile-time interface checks.
var (
	_ hook.Extension       = (*Extension)(nil)
	_ hook.JobEnqueued     = (*Extension)(nil)
	_ hook.JobStarted      = (*Extension)(nil)
	_ hook.JobCompleted    = (*Extension)(nil)
	_ hook.JobSkipped      = (*Extension)(nil)
	_ hook.JobRetrying     = (*Extension)(nil)
	_ hook.JobDeadLettered = (*Extension)(nil)
)

// Recorder is the interface audit backends implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// RecorderFunc adapts a plain function to a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// AuditEvent is one recorded lifecycle occurrence.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	At         time.Time      `json:"at"`
}

// Extension emits one audit event per job lifecycle hook.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension over the given Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit-hook" }

func (e *Extension) OnJobEnqueued(ctx context.Context, queue string, j *job.Job) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess, j, "", map[string]any{
		"queue":    queue,
		"priority": j.Priority,
	})
}

func (e *Extension) OnJobStarted(ctx context.Context, queue string, j *job.Job) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess, j, "", map[string]any{
		"queue":   queue,
		"attempt": j.Attempt,
	})
}

func (e *Extension) OnJobCompleted(ctx context.Context, queue string, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess, j, "", map[string]any{
		"queue":      queue,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

func (e *Extension) OnJobSkipped(ctx context.Context, queue string, j *job.Job, reason string) error {
	return e.record(ctx, ActionJobSkipped, SeverityWarning, OutcomeSuccess, j, reason, map[string]any{
		"queue": queue,
	})
}

func (e *Extension) OnJobRetrying(ctx context.Context, queue string, j *job.Job, attempt int, delay time.Duration) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure, j, j.LastError, map[string]any{
		"queue":    queue,
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	})
}

func (e *Extension) OnJobDeadLettered(ctx context.Context, queue string, j *job.Job, cause string) error {
	return e.record(ctx, ActionJobDeadLettered, SeverityCritical, OutcomeFailure, j, cause, map[string]any{
		"queue":   queue,
		"attempt": j.Attempt,
	})
}

func (e *Extension) record(ctx context.Context, action, severity, outcome string, j *job.Job, reason string, meta map[string]any) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}
	meta["entity"] = j.Entity
	meta["operation"] = string(j.Operation)

	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceJob,
		Category:   CategoryJob,
		ResourceID: j.ID.String(),
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		At:         time.Now().UTC(),
	}
	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Warn("audit record failed",
			slog.String("action", action),
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}
