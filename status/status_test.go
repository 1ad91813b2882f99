package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/siga-labs/txq/id"
	"github.com/siga-labs/txq/job"
)

func TestAddAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	j := job.New(job.OpCreate, job.EntityAula, nil)
	if err := s.Add(ctx, "default", j); err != nil {
		t.Fatalf("Add: %v", err)
	}

	rec, err := s.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != job.StateQueued {
		t.Fatalf("state = %q, want queued", rec.State)
	}
	if rec.Queue != "default" || rec.Entity != job.EntityAula {
		t.Fatalf("record fields wrong: %+v", rec)
	}
	if rec.FinalizedAt != nil {
		t.Fatal("fresh record should not be finalized")
	}
}

func TestGet_Missing(t *testing.T) {
	s := NewMemory()
	if _, err := s.Get(context.Background(), id.NewTx()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateState(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	j := job.New(job.OpUpdate, job.EntityDocente, nil)
	s.Add(ctx, "default", j)

	if err := s.UpdateState(ctx, j.ID, job.StateError, 3, "deadlock detected"); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	rec, _ := s.Get(ctx, j.ID)
	if rec.State != job.StateError || rec.Attempt != 3 {
		t.Fatalf("state/attempt = %s/%d", rec.State, rec.Attempt)
	}
	if rec.LastError != "deadlock detected" {
		t.Fatalf("lastError = %q", rec.LastError)
	}
}

func TestUpdateState_CreatesMissingRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	txID := id.NewTx()

	if err := s.UpdateState(ctx, txID, job.StateProcessing, 1, ""); err != nil {
		t.Fatalf("UpdateState on missing record: %v", err)
	}
	rec, err := s.Get(ctx, txID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != job.StateProcessing {
		t.Fatalf("state = %q, want processing", rec.State)
	}
}

func TestMarkFinalized(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	j := job.New(job.OpDelete, job.EntityMateria, nil)
	s.Add(ctx, "default", j)
	s.UpdateState(ctx, j.ID, job.StateCompleted, 1, "")

	at := time.Now()
	if err := s.MarkFinalized(ctx, j.ID, at); err != nil {
		t.Fatalf("MarkFinalized: %v", err)
	}
	rec, _ := s.Get(ctx, j.ID)
	if rec.FinalizedAt == nil || !rec.FinalizedAt.Equal(at.UTC()) {
		t.Fatalf("finalizedAt = %v, want %v", rec.FinalizedAt, at.UTC())
	}

	if err := s.MarkFinalized(ctx, id.NewTx(), at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing record: err = %v, want ErrNotFound", err)
	}
}
