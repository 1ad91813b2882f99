package limiter

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Configure("default", 2, 0, 0)

	if err := l.Acquire(ctx, "default"); err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	if err := l.Acquire(ctx, "default"); err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if got := l.InFlight("default"); got != 2 {
		t.Fatalf("in-flight = %d, want 2", got)
	}

	l.Release("default")
	if got := l.InFlight("default"); got != 1 {
		t.Fatalf("in-flight after release = %d, want 1", got)
	}
}

func TestAcquire_BlocksAtCapacity(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Configure("default", 1, 0, 0)
	l.Acquire(ctx, "default")

	acquired := make(chan struct{})
	go func() {
		l.Acquire(ctx, "default")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block at capacity 1")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release("default")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by release")
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l := New()
	l.Configure("default", 1, 0, 0)
	l.Acquire(context.Background(), "default")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Acquire(ctx, "default") }()

	cancel()
	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire did not return")
	}
	if got := l.InFlight("default"); got != 1 {
		t.Fatalf("in-flight = %d after cancelled acquire, want 1", got)
	}
}

// Cancellation must wake a blocked acquirer on its own, with no help
// from an unrelated release or resize. Repeated to cover the window
// between the waiter's context check and its wait.
func TestAcquire_CancelAloneWakesWaiter(t *testing.T) {
	l := New()
	l.Configure("default", 1, 0, 0)
	l.Acquire(context.Background(), "default")

	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() { errc <- l.Acquire(ctx, "default") }()

		cancel()
		select {
		case err := <-errc:
			if err == nil {
				t.Fatal("expected context error")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: cancelled acquire never returned", i)
		}
	}
	if got := l.InFlight("default"); got != 1 {
		t.Fatalf("in-flight = %d after cancelled acquires, want 1", got)
	}
}

func TestConfigure_GrowWakesWaiters(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Configure("default", 1, 0, 0)
	l.Acquire(ctx, "default")

	acquired := make(chan struct{})
	go func() {
		l.Acquire(ctx, "default")
		close(acquired)
	}()
	time.Sleep(20 * time.Millisecond)

	l.Configure("default", 2, 0, 0)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("grow did not wake the waiter")
	}
}

func TestConfigure_ShrinkTakesEffectOnRelease(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Configure("default", 3, 0, 0)
	for i := 0; i < 3; i++ {
		l.Acquire(ctx, "default")
	}

	l.Configure("default", 1, 0, 0)
	if got := l.InFlight("default"); got != 3 {
		t.Fatalf("shrink must not evict holders, in-flight = %d", got)
	}

	// Two releases bring usage to 1 == new cap; acquisition still blocks.
	l.Release("default")
	l.Release("default")

	acquired := make(chan struct{})
	go func() {
		l.Acquire(ctx, "default")
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("acquire should block at shrunk capacity")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release("default")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter not admitted after usage dropped under new cap")
	}
}

func TestUnconfiguredQueue_DefaultCapacity(t *testing.T) {
	l := New()
	if got := l.Capacity("adhoc"); got != DefaultMaxInFlight {
		t.Fatalf("capacity = %d, want %d", got, DefaultMaxInFlight)
	}
}

func TestRateLimit_Throttles(t *testing.T) {
	ctx := context.Background()
	l := New()
	// 20 per second, burst 1: the second acquire must wait roughly 50ms.
	l.Configure("default", 10, 20, 1)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx, "default"); err != nil {
				t.Errorf("Acquire: %v", err)
			}
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("two acquires in %v, bucket did not throttle", elapsed)
	}
}
