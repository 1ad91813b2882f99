package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/siga-labs/txq"
	"github.com/siga-labs/txq/backlog"
	"github.com/siga-labs/txq/dlq"
	"github.com/siga-labs/txq/job"
	"github.com/siga-labs/txq/status"
)

func newTestManager(descs ...Descriptor) (*Manager, backlog.Store, status.Store) {
	reg := NewRegistry()
	for _, d := range descs {
		reg.Register(d)
	}
	bl := backlog.NewMemory()
	st := status.NewMemory()
	return NewManager(reg, bl, st), bl, st
}

func TestDescriptor_Normalize(t *testing.T) {
	d := Descriptor{Name: "inscripciones"}.Normalize()
	if d.Workers != 1 || d.Priorities != 3 || d.MaxInFlight != 50 {
		t.Fatalf("defaults wrong: %+v", d)
	}
	if d.RejectPolicy != PolicyReject || d.MaxRetries != 5 {
		t.Fatalf("defaults wrong: %+v", d)
	}
	if d.BaseBackoff != 300*time.Millisecond {
		t.Fatalf("base backoff = %v, want 300ms", d.BaseBackoff)
	}
	if d.MaxQueued != 0 {
		t.Fatalf("maxQueued = %d, want 0 (uncapped)", d.MaxQueued)
	}
}

func TestEnqueue_WritesStatusFirst(t *testing.T) {
	ctx := context.Background()
	m, bl, st := newTestManager(Descriptor{Name: "default"})

	j := job.New(job.OpCreate, job.EntityAula, nil)
	lane, err := m.Enqueue(ctx, j, "default")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if lane != "default" {
		t.Fatalf("lane = %q, want default", lane)
	}

	rec, err := st.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("status record missing after enqueue: %v", err)
	}
	if rec.State != job.StateQueued {
		t.Fatalf("state = %q, want queued", rec.State)
	}
	if depth, _ := bl.Depth(ctx, "default", 3); depth != 1 {
		t.Fatalf("depth = %d, want 1", depth)
	}
}

func TestRoute_ExplicitQueue(t *testing.T) {
	m, _, _ := newTestManager(Descriptor{Name: "inscripciones"})
	if got := m.route("inscripciones"); got != "inscripciones" {
		t.Fatalf("route = %q", got)
	}
	// Unregistered names pass through; the queue may be declared on
	// another host.
	if got := m.route("reportes"); got != "reportes" {
		t.Fatalf("route = %q", got)
	}
}

func TestRoute_BalancedRoundRobin(t *testing.T) {
	m, _, _ := newTestManager(
		Descriptor{Name: "default"},
		Descriptor{Name: "alpha"},
		Descriptor{Name: "beta"},
	)

	counts := map[string]int{}
	for i := 0; i < 6; i++ {
		counts[m.route(Balanced)]++
	}
	if counts["alpha"] != 3 || counts["beta"] != 3 {
		t.Fatalf("round robin uneven: %v", counts)
	}
	if counts["default"] != 0 {
		t.Fatal("balanced must exclude the default queue")
	}
}

func TestRoute_BalancedFallsBackToDefault(t *testing.T) {
	m, _, _ := newTestManager(Descriptor{Name: "default"})
	if got := m.route(""); got != DefaultQueue {
		t.Fatalf("route = %q, want default", got)
	}
}

func TestEnqueue_RejectPolicy(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(Descriptor{Name: "small", MaxQueued: 1, RejectPolicy: PolicyReject})

	if _, err := m.Enqueue(ctx, job.New(job.OpCreate, job.EntityAula, nil), "small"); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	_, err := m.Enqueue(ctx, job.New(job.OpCreate, job.EntityAula, nil), "small")
	var qf *txq.QueueFullError
	if !errors.As(err, &qf) {
		t.Fatalf("err = %v, want QueueFullError", err)
	}
	if qf.Queue != "small" || qf.Backlog != 1 || qf.Max != 1 {
		t.Fatalf("QueueFullError fields: %+v", qf)
	}
}

func TestEnqueue_DeadLetterPolicy(t *testing.T) {
	ctx := context.Background()
	m, bl, st := newTestManager(Descriptor{Name: "small", MaxQueued: 1, RejectPolicy: PolicyDeadLetter})

	m.Enqueue(ctx, job.New(job.OpCreate, job.EntityAula, nil), "small")

	j := job.New(job.OpCreate, job.EntityAula, nil)
	lane, err := m.Enqueue(ctx, j, "small")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if lane != "dlq:small" {
		t.Fatalf("lane = %q, want dlq:small", lane)
	}

	raws, _ := bl.ListDead(ctx, "small", 10)
	if len(raws) != 1 {
		t.Fatalf("dead list = %d entries, want 1", len(raws))
	}
	e, err := dlq.DecodeEntry(raws[0])
	if err != nil {
		t.Fatalf("decode dead entry: %v", err)
	}
	if e.JobID.String() != j.ID.String() {
		t.Fatalf("dead entry jobId = %s, want %s", e.JobID, j.ID)
	}

	rec, _ := st.Get(ctx, j.ID)
	if rec.State != job.StateError {
		t.Fatalf("status state = %q, want error", rec.State)
	}
}

func TestEnqueue_BlockPolicy(t *testing.T) {
	ctx := context.Background()
	m, bl, _ := newTestManager(Descriptor{Name: "small", MaxQueued: 1, RejectPolicy: PolicyBlock})

	m.Enqueue(ctx, job.New(job.OpCreate, job.EntityAula, nil), "small")

	done := make(chan error, 1)
	go func() {
		_, err := m.Enqueue(ctx, job.New(job.OpCreate, job.EntityAula, nil), "small")
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("block policy should wait for room")
	case <-time.After(50 * time.Millisecond):
	}

	// Drain one slot; the producer should get through.
	bl.TryDequeue(ctx, "small", 3)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked enqueue: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked producer never admitted")
	}
}

func TestEnqueue_BlockPolicyCancellable(t *testing.T) {
	m, _, _ := newTestManager(Descriptor{Name: "small", MaxQueued: 1, RejectPolicy: PolicyBlock})
	m.Enqueue(context.Background(), job.New(job.OpCreate, job.EntityAula, nil), "small")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Enqueue(ctx, job.New(job.OpCreate, job.EntityAula, nil), "small")
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled producer never returned")
	}
}

func TestMoveTasks(t *testing.T) {
	ctx := context.Background()
	m, bl, _ := newTestManager(Descriptor{Name: "from"}, Descriptor{Name: "to"})

	high := job.New(job.OpCreate, job.EntityMateria, nil, job.WithPriority(0))
	low := job.New(job.OpCreate, job.EntityMateria, nil, job.WithPriority(2))
	m.Enqueue(ctx, low, "from")
	m.Enqueue(ctx, high, "from")

	moved, err := m.MoveTasks(ctx, "from", "to", 10)
	if err != nil {
		t.Fatalf("MoveTasks: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d, want 2", moved)
	}
	if depth, _ := bl.Depth(ctx, "from", 3); depth != 0 {
		t.Fatalf("source depth = %d, want 0", depth)
	}

	depths, _ := bl.LaneDepths(ctx, "to", 3)
	if depths[0] != 1 || depths[2] != 1 {
		t.Fatalf("moved jobs lost their priorities: %v", depths)
	}
}
