// Package limiter bounds per-queue concurrency and throughput. Each
// queue gets a resizable counting semaphore (max in-flight jobs) and an
// optional token bucket (jobs per second).
package limiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultMaxInFlight applies to queues never configured explicitly.
const DefaultMaxInFlight = 50

// Limiter hands out execution slots per queue.
type Limiter struct {
	mu     sync.Mutex
	queues map[string]*entry
}

type entry struct {
	sem    *semaphore
	bucket *rate.Limiter
}

// New creates an empty Limiter.
func New() *Limiter {
	return &Limiter{queues: make(map[string]*entry)}
}

// Configure sets the queue's limits. Capacity changes apply in place:
// waiters keep waiting on the same semaphore, and a shrink takes effect
// as held slots are released. rateLimit <= 0 disables the token bucket.
func (l *Limiter) Configure(queue string, maxInFlight int, rateLimit float64, burst int) {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.queues[queue]
	if !ok {
		e = &entry{sem: newSemaphore(maxInFlight)}
		l.queues[queue] = e
	} else {
		e.sem.resize(maxInFlight)
	}
	if rateLimit > 0 {
		if burst < 1 {
			burst = 1
		}
		e.bucket = rate.NewLimiter(rate.Limit(rateLimit), burst)
	} else {
		e.bucket = nil
	}
}

// Acquire blocks until a slot (and, when configured, a rate token) is
// available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, queue string) error {
	e := l.entry(queue)
	if err := e.sem.acquire(ctx); err != nil {
		return err
	}
	if b := e.bucket; b != nil {
		if err := b.Wait(ctx); err != nil {
			e.sem.release()
			return err
		}
	}
	return nil
}

// Release returns a slot to the queue.
func (l *Limiter) Release(queue string) {
	l.entry(queue).sem.release()
}

// InFlight returns the number of held slots for the queue.
func (l *Limiter) InFlight(queue string) int {
	return l.entry(queue).sem.held()
}

// Capacity returns the queue's current slot capacity.
func (l *Limiter) Capacity(queue string) int {
	return l.entry(queue).sem.capacity()
}

func (l *Limiter) entry(queue string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.queues[queue]
	if !ok {
		e = &entry{sem: newSemaphore(DefaultMaxInFlight)}
		l.queues[queue] = e
	}
	return e
}
