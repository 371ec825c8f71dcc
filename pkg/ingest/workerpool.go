package ingest

import (
	"context"
	"sync"
)

// Job is a unit of pool work. Its error is discarded by the pool; jobs that
// produce results deliver them, errors included, on their own channels.
type Job func(ctx context.Context) error

// WorkerPool runs jobs using a fixed number of goroutines. The Ingester uses
// it to normalize dictionary lines in parallel.
type WorkerPool struct {
	jobs    chan Job
	done    chan struct{}
	wg      sync.WaitGroup
	workers int

	// mu guards closed and the close of jobs; submitters hold it for reading
	// while they wait for queue space.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewWorkerPool returns an unstarted pool. queue <= 0 means twice the
// worker count.
func NewWorkerPool(workers, queue int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 2
	}
	return &WorkerPool{
		jobs:    make(chan Job, queue),
		done:    make(chan struct{}),
		workers: workers,
	}
}

// Start begins the worker goroutines. Workers drain queued jobs after Close
// and exit early when ctx is done.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					_ = job(ctx)
				}
			}
		}()
	}
}

// Submit enqueues a job, blocking while the queue is full. It returns
// ErrPoolClosed if the pool is closed before the job is accepted.
func (p *WorkerPool) Submit(job Job) error {
	return p.SubmitCtx(context.Background(), job)
}

// SubmitCtx is Submit that also gives up when ctx is done, returning ctx.Err().
func (p *WorkerPool) SubmitCtx(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new jobs, lets the workers finish the queue and waits for
// them. It is safe to call more than once.
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() {
		// Wake blocked submitters before taking the write lock they hold.
		close(p.done)
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

// ErrPoolClosed is returned by Submit once Close has been called.
var ErrPoolClosed = &PoolError{"worker pool closed"}

// PoolError is the error type of pool operations.
type PoolError struct{ msg string }

func (e *PoolError) Error() string { return e.msg }
