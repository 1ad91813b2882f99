package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siga-labs/txq/backlog"
	"github.com/siga-labs/txq/callback"
	"github.com/siga-labs/txq/dlq"
	"github.com/siga-labs/txq/hook"
	"github.com/siga-labs/txq/id"
	"github.com/siga-labs/txq/job"
	"github.com/siga-labs/txq/limiter"
	"github.com/siga-labs/txq/queue"
	"github.com/siga-labs/txq/reclaim"
	"github.com/siga-labs/txq/status"
)

type resultFunc func(ctx context.Context, j *job.Job) job.Result

func (f resultFunc) Process(ctx context.Context, j *job.Job) job.Result { return f(ctx, j) }

type testEnv struct {
	deps    Deps
	backlog backlog.Store
	status  status.Store
}

func newTestEnv(descs ...queue.Descriptor) *testEnv {
	reg := queue.NewRegistry()
	if len(descs) == 0 {
		descs = []queue.Descriptor{{Name: "default", BaseBackoff: time.Millisecond}}
	}
	for _, d := range descs {
		reg.Register(d)
	}
	bl := backlog.NewMemory()
	st := status.NewMemory()
	lim := limiter.New()
	return &testEnv{
		deps: Deps{
			Backlog:   bl,
			Status:    st,
			Limiter:   lim,
			Reclaimer: reclaim.New(bl),
			DLQ:       dlq.NewService(bl, nil),
			Callback:  callback.NewSender(),
			Hooks:     hook.NewRegistry(nil),
			Registry:  reg,
		},
		backlog: bl,
		status:  st,
	}
}

// runLoop drives a loop until check passes or the deadline expires.
func (e *testEnv) runLoop(t *testing.T, p Processor, check func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := NewLoop("default", p, e.deps)
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for !check() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("condition not reached before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func (e *testEnv) stateOf(t *testing.T, txID id.ID) job.State {
	t.Helper()
	rec, err := e.status.Get(context.Background(), txID)
	if err != nil {
		return ""
	}
	return rec.State
}

func TestLoop_Success(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	j := job.New(job.OpCreate, job.EntityAula, nil)
	e.status.Add(ctx, "default", j)
	e.backlog.Enqueue(ctx, "default", j)

	e.runLoop(t, resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		return job.Success()
	}), func() bool {
		return e.stateOf(t, j.ID) == job.StateCompleted
	})

	rec, _ := e.status.Get(ctx, j.ID)
	if rec.FinalizedAt == nil {
		t.Fatal("completed job must be finalized")
	}
	if n, _ := e.backlog.InFlightDepth(ctx, "default"); n != 0 {
		t.Fatal("completed job must leave the in-flight set")
	}
	if e.deps.Limiter.InFlight("default") != 0 {
		t.Fatal("slot must be released after completion")
	}
}

func TestLoop_Skip(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	j := job.New(job.OpUpdate, job.EntityMateria, nil)
	e.status.Add(ctx, "default", j)
	e.backlog.Enqueue(ctx, "default", j)

	e.runLoop(t, resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		return job.NotFoundSkip("Materia INF-999 no existe")
	}), func() bool {
		return e.stateOf(t, j.ID) == job.StateSkipped
	})

	rec, _ := e.status.Get(ctx, j.ID)
	if rec.LastError != "Materia INF-999 no existe" {
		t.Fatalf("lastError = %q", rec.LastError)
	}
	if rec.FinalizedAt == nil {
		t.Fatal("skip is terminal and must be finalized")
	}
	if n, _ := e.backlog.DeadDepth(ctx, "default"); n != 0 {
		t.Fatal("skips never dead-letter")
	}
}

func TestLoop_RetryThenSuccess(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	j := job.New(job.OpCreate, job.EntityDocente, nil)
	e.status.Add(ctx, "default", j)
	e.backlog.Enqueue(ctx, "default", j)

	var calls atomic.Int32
	e.runLoop(t, resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		if calls.Add(1) == 1 {
			return job.RetryableFailure(errors.New("deadlock detected"))
		}
		return job.Success()
	}), func() bool {
		return e.stateOf(t, j.ID) == job.StateCompleted
	})

	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	rec, _ := e.status.Get(ctx, j.ID)
	if rec.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", rec.Attempt)
	}
}

func TestLoop_RetriesExhaustedDeadLetters(t *testing.T) {
	e := newTestEnv(queue.Descriptor{Name: "default", MaxRetries: 2, BaseBackoff: time.Millisecond})
	ctx := context.Background()

	j := job.New(job.OpCreate, job.EntityEstudiante, nil)
	e.status.Add(ctx, "default", j)
	e.backlog.Enqueue(ctx, "default", j)

	e.runLoop(t, resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		return job.RetryableFailure(errors.New("connection broken"))
	}), func() bool {
		return e.stateOf(t, j.ID) == job.StateError
	})

	entries, _ := e.deps.DLQ.List(ctx, "default", 10)
	if len(entries) != 1 {
		t.Fatalf("dead entries = %d, want 1", len(entries))
	}
	if entries[0].JobID.String() != j.ID.String() || entries[0].Error != "connection broken" {
		t.Fatalf("dead entry = %+v", entries[0])
	}
	if entries[0].Attempt != 3 {
		t.Fatalf("dead entry attempt = %d, want 3 (max retries 2 exceeded)", entries[0].Attempt)
	}
}

func TestLoop_JobMaxRetriesOverridesQueue(t *testing.T) {
	e := newTestEnv(queue.Descriptor{Name: "default", MaxRetries: 5, BaseBackoff: time.Millisecond})
	ctx := context.Background()

	j := job.New(job.OpCreate, job.EntityNivel, nil, job.WithMaxRetries(1))
	e.status.Add(ctx, "default", j)
	e.backlog.Enqueue(ctx, "default", j)

	var calls atomic.Int32
	e.runLoop(t, resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		calls.Add(1)
		return job.RetryableFailure(errors.New("timeout"))
	}), func() bool {
		return e.stateOf(t, j.ID) == job.StateError
	})

	// Initial attempt plus one retry.
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestLoop_RetryBackoffKeepsJobDurable(t *testing.T) {
	e := newTestEnv(queue.Descriptor{Name: "default", MaxRetries: 3, BaseBackoff: 300 * time.Millisecond})
	ctx := context.Background()

	j := job.New(job.OpCreate, job.EntityMateria, nil)
	e.status.Add(ctx, "default", j)
	e.backlog.Enqueue(ctx, "default", j)

	var calls atomic.Int32
	e.runLoop(t, resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		if calls.Add(1) == 1 {
			return job.RetryableFailure(errors.New("timeout"))
		}
		return job.Success()
	}), func() bool {
		rec, err := e.status.Get(ctx, j.ID)
		if err != nil {
			return false
		}
		if rec.State == job.StateCompleted {
			return true
		}
		// Throughout the backoff the job must sit in a durable location:
		// either leased in-flight or parked on a lane, never only in the
		// worker's memory.
		if rec.Attempt == 1 {
			depth, _ := e.backlog.Depth(ctx, "default", 3)
			inflight, _ := e.backlog.InFlightDepth(ctx, "default")
			if depth+inflight == 0 {
				// Re-check to step over the instant between dequeue
				// and lease mark.
				time.Sleep(time.Millisecond)
				depth, _ = e.backlog.Depth(ctx, "default", 3)
				inflight, _ = e.backlog.InFlightDepth(ctx, "default")
				if depth+inflight == 0 {
					t.Error("job left every durable location during the backoff")
					return true
				}
			}
		}
		return false
	})

	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestLoop_DeferredJobReleasesLease(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	var calls atomic.Int32
	j := job.New(job.OpCreate, job.EntityAula, nil,
		job.WithNotBefore(time.Now().Add(300*time.Millisecond)))
	e.status.Add(ctx, "default", j)
	e.backlog.Enqueue(ctx, "default", j)

	// While the deferral runs, the job must be parked on its lane with no
	// live lease. A lease held across a long deferral would expire and
	// let a reclaim pass hand out a second copy.
	unleased := false
	e.runLoop(t, resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		calls.Add(1)
		return job.Success()
	}), func() bool {
		if !unleased && j.Deferred(time.Now()) {
			leases, _ := e.backlog.ExpiredInFlight(ctx, "default", time.Now().Add(time.Hour))
			depth, _ := e.backlog.Depth(ctx, "default", 3)
			if len(leases) == 0 && depth == 1 {
				unleased = true
			}
		}
		return e.stateOf(t, j.ID) == job.StateCompleted
	})

	if !unleased {
		t.Error("deferred job held its lease across the deferral window")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want exactly 1", calls.Load())
	}
	if depth, _ := e.backlog.Depth(ctx, "default", 3); depth != 0 {
		t.Fatalf("depth = %d, want 0 after completion", depth)
	}
}

func TestLoop_ErrorCallbackFailureDoubleDeadLetters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := newTestEnv(queue.Descriptor{Name: "default", MaxRetries: 1, BaseBackoff: time.Millisecond})
	ctx := context.Background()

	j := job.New(job.OpCreate, job.EntityAula, nil, job.WithCallback(srv.URL, "s3cr3t"))
	e.status.Add(ctx, "default", j)
	e.backlog.Enqueue(ctx, "default", j)

	e.runLoop(t, resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		return job.RetryableFailure(errors.New("boom"))
	}), func() bool {
		n, _ := e.deps.DLQ.Count(ctx, "default")
		return n == 2
	})

	entries, _ := e.deps.DLQ.List(ctx, "default", 10)
	if entries[0].Error == entries[1].Error {
		t.Fatal("second entry must record the callback failure, not the job error")
	}
}

func TestLoop_OKCallbackFailureSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := newTestEnv()
	ctx := context.Background()

	j := job.New(job.OpCreate, job.EntityAula, nil, job.WithCallback(srv.URL, "s3cr3t"))
	e.status.Add(ctx, "default", j)
	e.backlog.Enqueue(ctx, "default", j)

	e.runLoop(t, resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		return job.Success()
	}), func() bool {
		return e.stateOf(t, j.ID) == job.StateCompleted
	})

	if n, _ := e.deps.DLQ.Count(ctx, "default"); n != 0 {
		t.Fatal("failed OK callback must not dead-letter")
	}
}

func TestLoop_DeferredJobRequeued(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()

	var calls atomic.Int32
	j := job.New(job.OpCreate, job.EntityAula, nil,
		job.WithNotBefore(time.Now().Add(50*time.Millisecond)))
	e.status.Add(ctx, "default", j)
	e.backlog.Enqueue(ctx, "default", j)

	e.runLoop(t, resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		calls.Add(1)
		return job.Success()
	}), func() bool {
		return e.stateOf(t, j.ID) == job.StateCompleted
	})

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 (after the deferral elapsed)", calls.Load())
	}
}

func TestLoop_PausedQueueNoDequeue(t *testing.T) {
	e := newTestEnv()
	ctx := context.Background()
	e.backlog.SetPaused(ctx, "default", true)

	j := job.New(job.OpCreate, job.EntityAula, nil)
	e.status.Add(ctx, "default", j)
	e.backlog.Enqueue(ctx, "default", j)

	loopCtx, cancel := context.WithCancel(context.Background())
	loop := NewLoop("default", resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		t.Error("paused queue must not execute jobs")
		return job.Success()
	}), e.deps)
	done := make(chan struct{})
	go func() {
		loop.Run(loopCtx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if depth, _ := e.backlog.Depth(ctx, "default", 3); depth != 1 {
		t.Fatalf("depth = %d, job must stay queued while paused", depth)
	}
}

func TestPool_Resize(t *testing.T) {
	e := newTestEnv()
	p := NewPool(context.Background(), "default", resultFunc(func(ctx context.Context, j *job.Job) job.Result {
		return job.Success()
	}), e.deps)
	defer p.Stop()

	p.SetConcurrency(3)
	if got := p.Concurrency(); got != 3 {
		t.Fatalf("concurrency = %d, want 3", got)
	}
	p.SetConcurrency(1)
	if got := p.Concurrency(); got != 1 {
		t.Fatalf("concurrency = %d, want 1", got)
	}
	p.SetConcurrency(0)
	if got := p.Concurrency(); got != 0 {
		t.Fatalf("concurrency = %d, want 0 (paused, not deleted)", got)
	}
}

func newTestHost(t *testing.T, descs ...queue.Descriptor) (*Host, Processor) {
	t.Helper()
	e := newTestEnv(descs...)
	h := NewHost(e.deps)
	p := resultFunc(func(ctx context.Context, j *job.Job) job.Result { return job.Success() })
	if err := h.Start(context.Background(), p); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { h.Stop(context.Background()) })
	return h, p
}

func TestHost_StartListStop(t *testing.T) {
	h, _ := newTestHost(t,
		queue.Descriptor{Name: "default", Workers: 2},
		queue.Descriptor{Name: "inscripciones", Workers: 4},
	)

	queues := h.ListQueues()
	if queues["default"] != 2 || queues["inscripciones"] != 4 {
		t.Fatalf("queues = %v", queues)
	}
	if !h.IsRunning() {
		t.Fatal("host should be running")
	}

	if err := h.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.IsRunning() {
		t.Fatal("host should not report running after stop")
	}
}

func TestHost_AddScaleRemove(t *testing.T) {
	h, p := newTestHost(t, queue.Descriptor{Name: "default", Workers: 1})

	if err := h.AddQueue("reportes", 2, p); err != nil {
		t.Fatalf("AddQueue: %v", err)
	}
	if err := h.AddQueue("reportes", 2, p); err == nil {
		t.Fatal("duplicate AddQueue must fail")
	}

	if err := h.ScaleQueue("reportes", 5); err != nil {
		t.Fatalf("ScaleQueue: %v", err)
	}
	if h.ListQueues()["reportes"] != 5 {
		t.Fatalf("queues = %v", h.ListQueues())
	}
	if err := h.ScaleQueue("missing", 1); err == nil {
		t.Fatal("scaling a missing queue must fail")
	}

	if err := h.RemoveQueue("reportes"); err != nil {
		t.Fatalf("RemoveQueue: %v", err)
	}
	if _, ok := h.ListQueues()["reportes"]; ok {
		t.Fatal("removed queue still listed")
	}
}

func TestHost_MigrateWorkers(t *testing.T) {
	h, _ := newTestHost(t,
		queue.Descriptor{Name: "alpha", Workers: 4},
		queue.Descriptor{Name: "beta", Workers: 1},
	)

	if err := h.MigrateWorkers("alpha", "beta", 2); err != nil {
		t.Fatalf("MigrateWorkers: %v", err)
	}
	queues := h.ListQueues()
	if queues["alpha"] != 2 || queues["beta"] != 3 {
		t.Fatalf("queues after migrate = %v", queues)
	}

	if err := h.MigrateWorkers("alpha", "alpha", 1); err == nil {
		t.Fatal("migrating to the same queue must fail")
	}
	if err := h.MigrateWorkers("alpha", "beta", 99); err == nil {
		t.Fatal("migrating more workers than the source has must fail")
	}
}

func TestHost_BalanceWorkers(t *testing.T) {
	h, _ := newTestHost(t,
		queue.Descriptor{Name: "alpha", Workers: 6},
		queue.Descriptor{Name: "beta", Workers: 0},
	)

	h.BalanceWorkers()
	queues := h.ListQueues()
	if queues["alpha"]+queues["beta"] != 6 {
		t.Fatalf("balance must preserve the total: %v", queues)
	}
	if queues["alpha"] != 3 || queues["beta"] != 3 {
		t.Fatalf("queues after balance = %v", queues)
	}
}
