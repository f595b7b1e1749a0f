package syncer

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("syncer: worker pool is closed")

// Job is one unit of blocking work: a store read/write, a trie commit, a
// hash computation. Jobs run to completion once started; cancellation only
// makes the caller stop waiting for the result.
type Job func() (any, error)

// JobResult carries a finished job's value or error.
type JobResult struct {
	Value any
	Err   error
}

type poolJob struct {
	run    Job
	result chan JobResult
}

// WorkerPool runs blocking jobs on a fixed set of worker goroutines so an
// event-driven main loop never calls store or hash operations directly.
// Each submission gets its own result channel of capacity one, the
// bounded main-loop<->handler bus.
type WorkerPool struct {
	jobs chan poolJob
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewWorkerPool starts a pool of the given size over a bounded queue.
// Non-positive workers defaults to GOMAXPROCS; non-positive queueSize
// defaults to twice the worker count.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}
	p := &WorkerPool{jobs: make(chan poolJob, queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		value, err := j.run()
		j.result <- JobResult{Value: value, Err: err}
	}
}

// Submit enqueues job and returns the channel its result will arrive on.
// The channel has capacity one, so a worker never blocks on a caller that
// has stopped listening.
func (p *WorkerPool) Submit(job Job) (<-chan JobResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	result := make(chan JobResult, 1)
	p.jobs <- poolJob{run: job, result: result}
	return result, nil
}

// Do submits job and waits for either its result or ctx cancellation. On
// cancellation the job still runs to completion on its worker; the result
// is discarded.
func (p *WorkerPool) Do(ctx context.Context, job Job) (any, error) {
	result, err := p.Submit(job)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-result:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close drains the queue and waits for in-flight jobs to finish. Submit
// calls after Close fail with ErrPoolClosed.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
