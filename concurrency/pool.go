package concurrency

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

var (
	// ErrPoolStopped is returned when submitting to a pool that is shutting down.
	ErrPoolStopped = errors.New("pool is shutting down")
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("job queue is full")
)

// Job 任务接口
type Job interface {
	Execute() error
}

// JobFunc 函数式任务
type JobFunc func() error

// Execute 执行函数
func (f JobFunc) Execute() error {
	return f()
}

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithQueueSize sets the job queue capacity.
func WithQueueSize(n int) PoolOption {
	return func(p *WorkerPool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithErrorHandler receives errors returned (or panics raised) by jobs.
func WithErrorHandler(fn func(error)) PoolOption {
	return func(p *WorkerPool) {
		p.onError = fn
	}
}

// WorkerPool runs jobs on a fixed set of goroutines. Every job accepted by
// Submit or SubmitWait is executed exactly once, including jobs still queued
// when Stop is called.
type WorkerPool struct {
	size      int
	queueSize int
	jobQueue  chan Job
	onError   func(error)

	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWorkerPool 创建 Worker 池. A size <= 0 uses runtime.NumCPU().
func NewWorkerPool(size int, opts ...PoolOption) *WorkerPool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		size:      size,
		queueSize: 100,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.jobQueue = make(chan Job, p.queueSize)
	return p
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

// Start 启动 Worker 池. Calling Start more than once is a no-op.
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.size; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Submit enqueues job without blocking.
func (p *WorkerPool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return ErrPoolStopped
	default:
		return ErrQueueFull
	}
}

// SubmitWait enqueues job, blocking while the queue is full. It only blocks
// on queue space, never on the execution of the job itself.
func (p *WorkerPool) SubmitWait(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// Stop rejects new jobs, runs everything already queued and waits for the
// workers to exit or ctx to expire.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		// Unblock SubmitWait callers before taking the write lock.
		p.cancel()

		p.mu.Lock()
		p.stopped = true
		close(p.jobQueue)
		p.mu.Unlock()
	})

	// Make sure queued jobs are drained even if Start was never called.
	p.Start()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for workers to finish: %w", ctx.Err())
	}
}

// worker 工作协程
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		if err := p.execute(job); err != nil && p.onError != nil {
			p.onError(fmt.Errorf("worker %d: %w", id, err))
		}
	}
}

// execute runs job, converting a panic into an error so one bad job cannot
// take the worker down.
func (p *WorkerPool) execute(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Execute()
}
