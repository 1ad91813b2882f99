package audithook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/siga-labs/txq/job"
)

type captureRecorder struct {
	events []*AuditEvent
	err    error
}

func (c *captureRecorder) Record(_ context.Context, evt *AuditEvent) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, evt)
	return nil
}

func TestExtensionEmitsLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	rec := &captureRecorder{}
	ext := New(rec)
	j := job.New(job.OpUpdate, job.EntityMateria, nil)
	j.Attempt = 2

	if err := ext.OnJobEnqueued(ctx, "materias", j); err != nil {
		t.Fatalf("OnJobEnqueued: %v", err)
	}
	if err := ext.OnJobCompleted(ctx, "materias", j, 40*time.Millisecond); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}
	if err := ext.OnJobDeadLettered(ctx, "materias", j, "retries exhausted"); err != nil {
		t.Fatalf("OnJobDeadLettered: %v", err)
	}

	if len(rec.events) != 3 {
		t.Fatalf("recorded %d events, want 3", len(rec.events))
	}

	enq := rec.events[0]
	if enq.Action != ActionJobEnqueued || enq.ResourceID != j.ID.String() {
		t.Errorf("enqueued event = %+v", enq)
	}
	if enq.Metadata["entity"] != job.EntityMateria || enq.Metadata["queue"] != "materias" {
		t.Errorf("enqueued metadata = %v", enq.Metadata)
	}

	dead := rec.events[2]
	if dead.Severity != SeverityCritical || dead.Outcome != OutcomeFailure {
		t.Errorf("dead-letter event = %+v", dead)
	}
	if dead.Reason != "retries exhausted" {
		t.Errorf("dead-letter reason = %q", dead.Reason)
	}
}

func TestWithActionsFilters(t *testing.T) {
	ctx := context.Background()
	rec := &captureRecorder{}
	ext := New(rec, WithActions(ActionJobDeadLettered))
	j := job.New(job.OpCreate, job.EntityAula, nil)

	if err := ext.OnJobEnqueued(ctx, "default", j); err != nil {
		t.Fatalf("OnJobEnqueued: %v", err)
	}
	if err := ext.OnJobDeadLettered(ctx, "default", j, "boom"); err != nil {
		t.Fatalf("OnJobDeadLettered: %v", err)
	}

	if len(rec.events) != 1 || rec.events[0].Action != ActionJobDeadLettered {
		t.Fatalf("events = %+v, want only the dead-letter action", rec.events)
	}
}

func TestRecorderErrorPropagates(t *testing.T) {
	rec := &captureRecorder{err: errors.New("sink down")}
	ext := New(rec, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	j := job.New(job.OpDelete, job.EntityDocente, nil)

	if err := ext.OnJobStarted(context.Background(), "default", j); err == nil {
		t.Fatal("expected recorder error")
	}
}

func TestAllActionsCoversEveryHook(t *testing.T) {
	if got := len(AllActions()); got != 6 {
		t.Fatalf("AllActions = %d entries, want 6", got)
	}
}
