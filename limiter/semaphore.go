package limiter

import (
	"context"
	"sync"
)

// semaphore is a counting semaphore whose capacity can change while
// goroutines wait on it. golang.org/x/sync/semaphore fixes capacity at
// construction, which would force swapping instances under waiters, so
// slot accounting is done here with a mutex and condvar.
type semaphore struct {
	mu   sync.Mutex
	cond *sync.Cond
	cap  int
	used int
}

func newSemaphore(capacity int) *semaphore {
	s := &semaphore{cap: capacity}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// acquire blocks until used < cap or ctx is done. Context cancellation
// is observed via a watcher goroutine that broadcasts on the condvar.
// The watcher takes the mutex before broadcasting: the acquirer is then
// guaranteed to be either inside Wait or ahead of its ctx check, so the
// wakeup cannot fall between the check and the Wait.
func (s *semaphore) acquire(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.used >= s.cap {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.used++
	return nil
}

// release returns a slot and wakes one waiter. Releasing below zero is
// a caller bug and is clamped.
func (s *semaphore) release() {
	s.mu.Lock()
	if s.used > 0 {
		s.used--
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// resize changes capacity in place. Growing wakes waiters immediately;
// shrinking below the held count lets current holders finish and simply
// stops new acquisitions until usage drops under the new cap.
func (s *semaphore) resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	s.mu.Lock()
	s.cap = capacity
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *semaphore) held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func (s *semaphore) capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cap
}
