package reclaim

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/siga-labs/txq/backlog"
	"github.com/siga-labs/txq/job"
)

func TestMarkAndAck(t *testing.T) {
	ctx := context.Background()
	store := backlog.NewMemory()
	r := New(store, WithVisibility(time.Minute))

	j := job.New(job.OpCreate, job.EntityAula, nil)
	raw, _ := j.Encode()

	if err := r.MarkInFlight(ctx, "default", raw); err != nil {
		t.Fatalf("MarkInFlight: %v", err)
	}
	if n, _ := r.InFlightDepth(ctx, "default"); n != 1 {
		t.Fatalf("in-flight depth = %d, want 1", n)
	}

	if err := r.Ack(ctx, "default", raw); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if n, _ := r.InFlightDepth(ctx, "default"); n != 0 {
		t.Fatalf("in-flight depth after ack = %d, want 0", n)
	}
}

func TestReclaimExpired_OriginalPriority(t *testing.T) {
	ctx := context.Background()
	store := backlog.NewMemory()
	r := New(store)

	j := job.New(job.OpUpdate, job.EntityDocente, nil, job.WithPriority(0))
	raw, _ := j.Encode()
	store.MarkInFlight(ctx, "default", raw, time.Now().Add(-time.Second))

	n, err := r.ReclaimExpired(ctx, "default")
	if err != nil {
		t.Fatalf("ReclaimExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("reclaimed = %d, want 1", n)
	}

	depths, _ := store.LaneDepths(ctx, "default", 3)
	if depths[0] != 1 {
		t.Fatalf("lane depths = %v, want job back on lane 0", depths)
	}
	if d, _ := store.InFlightDepth(ctx, "default"); d != 0 {
		t.Fatal("reclaimed entry must leave the in-flight set")
	}
}

func TestReclaimExpired_OutOfRangePriorityGoesToMiddle(t *testing.T) {
	ctx := context.Background()
	store := backlog.NewMemory()
	r := New(store)

	j := job.New(job.OpCreate, job.EntityMateria, nil)
	j.Priority = 9
	raw, _ := j.Encode()
	store.MarkInFlight(ctx, "default", raw, time.Now().Add(-time.Second))

	if n, _ := r.ReclaimExpired(ctx, "default"); n != 1 {
		t.Fatal("expected one reclaim")
	}
	depths, _ := store.LaneDepths(ctx, "default", 3)
	if depths[1] != 1 {
		t.Fatalf("lane depths = %v, want out-of-range priority on lane 1", depths)
	}
}

func TestReclaimExpired_CorruptDropped(t *testing.T) {
	ctx := context.Background()
	store := backlog.NewMemory()
	r := New(store)

	store.MarkInFlight(ctx, "default", []byte("{broken"), time.Now().Add(-time.Second))

	n, err := r.ReclaimExpired(ctx, "default")
	if err != nil {
		t.Fatalf("ReclaimExpired: %v", err)
	}
	if n != 0 {
		t.Fatalf("reclaimed = %d, want 0 for corrupt entry", n)
	}
	if d, _ := store.InFlightDepth(ctx, "default"); d != 0 {
		t.Fatal("corrupt entry must be removed, not retried forever")
	}
	if depth, _ := store.Depth(ctx, "default", 3); depth != 0 {
		t.Fatal("corrupt entry must not be requeued")
	}
}

func TestReclaimExpired_LiveLeaseUntouched(t *testing.T) {
	ctx := context.Background()
	store := backlog.NewMemory()
	r := New(store)

	j := job.New(job.OpCreate, job.EntityNivel, nil)
	raw, _ := j.Encode()
	store.MarkInFlight(ctx, "default", raw, time.Now().Add(time.Minute))

	if n, _ := r.ReclaimExpired(ctx, "default"); n != 0 {
		t.Fatalf("reclaimed = %d, want 0 while lease is live", n)
	}
	if d, _ := store.InFlightDepth(ctx, "default"); d != 1 {
		t.Fatal("live lease must stay in flight")
	}
}

func TestListInFlight(t *testing.T) {
	ctx := context.Background()
	store := backlog.NewMemory()
	r := New(store)

	j := job.New(job.OpDelete, job.EntityEstudiante, nil)
	raw, _ := j.Encode()
	store.MarkInFlight(ctx, "default", raw, time.Now().Add(time.Minute))
	store.MarkInFlight(ctx, "default", []byte("{broken"), time.Now().Add(time.Minute))

	jobs, err := r.ListInFlight(ctx, "default", 10)
	if err != nil {
		t.Fatalf("ListInFlight: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID.String() != j.ID.String() {
		t.Fatalf("ListInFlight = %d entries, want the one decodable job", len(jobs))
	}
}

type staticQueues []string

func (s staticQueues) Names() []string { return s }

func TestSweeper_SweepAcrossQueues(t *testing.T) {
	ctx := context.Background()
	store := backlog.NewMemory()
	r := New(store)

	for _, q := range []string{"alpha", "beta"} {
		j := job.New(job.OpCreate, job.EntityAula, nil)
		raw, _ := j.Encode()
		store.MarkInFlight(ctx, q, raw, time.Now().Add(-time.Second))
	}

	s, err := NewSweeper(r, staticQueues{"alpha", "beta"}, "", slog.Default())
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	if total := s.Sweep(ctx); total != 2 {
		t.Fatalf("swept = %d, want 2", total)
	}
}

func TestSweeper_BadSchedule(t *testing.T) {
	if _, err := NewSweeper(New(backlog.NewMemory()), staticQueues{}, "not a schedule", nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	s, err := NewSweeper(New(backlog.NewMemory()), staticQueues{}, "@every 1h", nil)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan struct{})
	go func() {
		s.Stop(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
