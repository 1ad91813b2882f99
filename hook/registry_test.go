package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/siga-labs/txq/hook"
	"github.com/siga-labs/txq/job"
)

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobEnqueued(_ context.Context, _ string, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobEnqueued")
	return nil
}

func (e *allHooksExt) OnJobStarted(_ context.Context, _ string, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobStarted")
	return nil
}

func (e *allHooksExt) OnJobCompleted(_ context.Context, _ string, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

func (e *allHooksExt) OnJobSkipped(_ context.Context, _ string, _ *job.Job, _ string) error {
	e.calls = append(e.calls, "OnJobSkipped")
	return nil
}

func (e *allHooksExt) OnJobRetrying(_ context.Context, _ string, _ *job.Job, _ int, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobRetrying")
	return nil
}

func (e *allHooksExt) OnJobDeadLettered(_ context.Context, _ string, _ *job.Job, _ string) error {
	e.calls = append(e.calls, "OnJobDeadLettered")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// startedOnlyExt implements a single hook.
type startedOnlyExt struct {
	started int
}

func (e *startedOnlyExt) Name() string { return "started-only" }

func (e *startedOnlyExt) OnJobStarted(_ context.Context, _ string, _ *job.Job) error {
	e.started++
	return nil
}

// failingExt returns an error from every hook it implements.
type failingExt struct{}

func (failingExt) Name() string { return "failing" }

func (failingExt) OnJobEnqueued(_ context.Context, _ string, _ *job.Job) error {
	return errors.New("hook exploded")
}

func TestRegistry_EmitsAllHooks(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	e := &allHooksExt{}
	r.Register(e)

	ctx := context.Background()
	j := job.New(job.OpCreate, job.EntityAula, nil)

	r.EmitJobEnqueued(ctx, "default", j)
	r.EmitJobStarted(ctx, "default", j)
	r.EmitJobCompleted(ctx, "default", j, time.Second)
	r.EmitJobSkipped(ctx, "default", j, "no existe")
	r.EmitJobRetrying(ctx, "default", j, 2, time.Second)
	r.EmitJobDeadLettered(ctx, "default", j, "boom")
	r.EmitShutdown(ctx)

	want := []string{
		"OnJobEnqueued", "OnJobStarted", "OnJobCompleted",
		"OnJobSkipped", "OnJobRetrying", "OnJobDeadLettered", "OnShutdown",
	}
	if len(e.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", e.calls, want)
	}
	for i := range want {
		if e.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, e.calls[i], want[i])
		}
	}
}

func TestRegistry_PartialExtension(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	e := &startedOnlyExt{}
	r.Register(e)

	ctx := context.Background()
	j := job.New(job.OpCreate, job.EntityAula, nil)

	// Emitting events the extension does not implement must be a no-op.
	r.EmitJobEnqueued(ctx, "default", j)
	r.EmitJobCompleted(ctx, "default", j, 0)
	r.EmitJobStarted(ctx, "default", j)
	r.EmitJobStarted(ctx, "default", j)

	if e.started != 2 {
		t.Fatalf("started = %d, want 2", e.started)
	}
}

func TestRegistry_HookErrorDoesNotPropagate(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	r.Register(failingExt{})
	second := &allHooksExt{}
	r.Register(second)

	// Must not panic, and later extensions still run.
	r.EmitJobEnqueued(context.Background(), "default", job.New(job.OpCreate, job.EntityAula, nil))

	if len(second.calls) != 1 || second.calls[0] != "OnJobEnqueued" {
		t.Fatalf("second extension calls = %v", second.calls)
	}
}

func TestRegistry_Extensions(t *testing.T) {
	r := hook.NewRegistry(nil)
	r.Register(&allHooksExt{})
	r.Register(&startedOnlyExt{})
	if got := len(r.Extensions()); got != 2 {
		t.Fatalf("extensions = %d, want 2", got)
	}
}
