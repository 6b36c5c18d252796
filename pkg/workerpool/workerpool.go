package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/anthanhphan/gosdk/logger"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Pool runs submitted jobs on a fixed number of workers draining a
// single shared FIFO queue. The queue is unbounded: Submit never
// blocks on a full queue, only on a cancelled context or a closed
// pool. Engine calls block a worker for the duration of their disk
// I/O, which is exactly what the pool exists to isolate.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup
}

// New creates a pool with the given number of workers. A non-positive
// count defaults to the number of logical CPUs.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// closed and drained
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(job)
	}
}

// run executes one job, containing any panic so the worker stays
// available for subsequent jobs. Callers that need the failure
// reported must recover inside the job and pass the result through
// their own completion channel; this recover is the pool boundary
// backstop.
func (p *Pool) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("Worker task panicked", "panic", r)
		}
	}()
	job()
}

// Submit enqueues a job in FIFO order.
func (p *Pool) Submit(ctx context.Context, job func()) error {
	if job == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queue = append(p.queue, job)
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

// Close stops accepting jobs. Already queued jobs still run.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Wait blocks until all workers have drained the queue and exited.
// Only meaningful after Close.
func (p *Pool) Wait() {
	p.wg.Wait()
}
