package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Pool owns a resizable set of loops for one queue. It is a set of loop
// instances, not a fixed thread count: scaling up spawns new loops and
// scaling down cancels the most recently added, which finish their
// current job before exiting.
type Pool struct {
	queue     string
	processor Processor
	deps      Deps
	logger    *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	loops   []context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// NewPool creates a pool for one queue. Loops start only through
// SetConcurrency.
func NewPool(ctx context.Context, queueName string, p Processor, deps Deps) *Pool {
	poolCtx, cancel := context.WithCancel(ctx)
	return &Pool{
		queue:     queueName,
		processor: p,
		deps:      deps,
		logger:    deps.logger().With(slog.String("queue", queueName)),
		ctx:       poolCtx,
		cancel:    cancel,
	}
}

// Queue returns the pool's queue name.
func (p *Pool) Queue() string { return p.queue }

// Concurrency returns the current number of loops.
func (p *Pool) Concurrency() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loops)
}

// SetConcurrency resizes the pool to n loops. Growing spawns loops;
// shrinking cancels the most recently added, which drain their current
// job. Zero pauses execution without deleting the queue.
func (p *Pool) SetConcurrency(n int) {
	if n < 0 {
		n = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	for len(p.loops) < n {
		loopCtx, cancel := context.WithCancel(p.ctx)
		p.loops = append(p.loops, cancel)
		loop := NewLoop(p.queue, p.processor, p.deps)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			loop.Run(loopCtx)
		}()
	}
	for len(p.loops) > n {
		last := len(p.loops) - 1
		p.loops[last]()
		p.loops = p.loops[:last]
	}

	p.logger.Info("pool resized", slog.Int("concurrency", n))
}

// Stop cancels every loop and waits for them to drain.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.loops = nil
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.logger.Info("pool stopped")
}
