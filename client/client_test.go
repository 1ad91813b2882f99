package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/siga-labs/txq"
	"github.com/siga-labs/txq/academic"
	"github.com/siga-labs/txq/api"
	"github.com/siga-labs/txq/backlog"
	"github.com/siga-labs/txq/engine"
	"github.com/siga-labs/txq/job"
	"github.com/siga-labs/txq/queue"
	"github.com/siga-labs/txq/status"
)

func newTestClient(t *testing.T, descs ...queue.Descriptor) (*Client, *engine.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng, err := engine.New(backlog.NewMemory(), status.NewMemory(), academic.NewMemory(),
		engine.WithLogger(logger),
		engine.WithQueues(descs...),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	srv := httptest.NewServer(api.New(eng, api.WithLogger(logger)).Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL), eng
}

func TestSubmitAndStatus(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, queue.Descriptor{Name: "aulas"})

	ack, err := c.Submit(ctx, Submission{
		Operation: job.OpCreate,
		Entity:    job.EntityAula,
		Payload:   []byte(`{"codigo":"A-1","capacidad":25}`),
		Queue:     "aulas",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ack.Queue != "aulas" || ack.State != job.StateQueued {
		t.Fatalf("ack = %+v", ack)
	}

	rec, err := c.Status(ctx, ack.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rec.State != job.StateQueued || rec.Entity != job.EntityAula {
		t.Errorf("record = %+v", rec)
	}
}

func TestSubmitFullQueue(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, queue.Descriptor{Name: "tight", MaxQueued: 1})

	sub := Submission{Operation: job.OpCreate, Entity: job.EntityAula, Queue: "tight"}
	if _, err := c.Submit(ctx, sub); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	_, err := c.Submit(ctx, sub)
	var full *txq.QueueFullError
	if !errors.As(err, &full) {
		t.Fatalf("second Submit err = %v, want QueueFullError", err)
	}
	if full.Queue != "tight" || full.Max != 1 {
		t.Errorf("QueueFullError = %+v", full)
	}
}

func TestSubmitValidationError(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Submit(context.Background(), Submission{Operation: "UPSERT", Entity: "Aula"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Fatalf("err = %v, want 400 APIError", err)
	}
}

func TestPauseAndStats(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, queue.Descriptor{Name: "batch"})

	if err := c.PauseQueue(ctx, "batch"); err != nil {
		t.Fatalf("PauseQueue: %v", err)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	var found bool
	for _, st := range stats {
		if st.Queue == "batch" {
			found = true
			if !st.Paused {
				t.Error("batch should be paused")
			}
		}
	}
	if !found {
		t.Fatalf("stats missing batch: %+v", stats)
	}

	if err := c.ResumeQueue(ctx, "batch"); err != nil {
		t.Fatalf("ResumeQueue: %v", err)
	}
}

func TestDLQRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, eng := newTestClient(t, queue.Descriptor{Name: "aulas"})

	j := job.New(job.OpCreate, job.EntityAula, []byte(`{"codigo":"A-1"}`))
	if err := eng.DLQ().Send(ctx, "aulas", j, "retries exhausted"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	count, err := c.CountDLQ(ctx, "aulas")
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	entries, err := c.ListDLQ(ctx, "aulas", 10)
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 || entries[0].JobID != j.ID {
		t.Fatalf("entries = %+v", entries)
	}

	retried, err := c.RetryDLQ(ctx, "aulas", j.ID)
	if err != nil {
		t.Fatalf("RetryDLQ: %v", err)
	}
	if retried.ID != j.ID || retried.Priority != job.MinPriority {
		t.Errorf("retried = %+v", retried)
	}

	if err := c.DeleteDLQ(ctx, "aulas", j.ID); err == nil {
		t.Fatal("DeleteDLQ after retry should report not found")
	}
}

func TestListQueues(t *testing.T) {
	c, _ := newTestClient(t, queue.Descriptor{Name: "aulas", Workers: 4})

	descs, err := c.ListQueues(context.Background())
	if err != nil {
		t.Fatalf("ListQueues: %v", err)
	}
	var found bool
	for _, d := range descs {
		if d.Name == "aulas" && d.Workers == 4 {
			found = true
		}
	}
	if !found {
		t.Fatalf("descriptors = %+v, want aulas with 4 workers", descs)
	}
}
