// Package workerpool provides the bounded goroutine pool that runs uploads.
//
// A Pool limits how many uploads write to storage at once. When all workers
// are busy and the backlog is full, Submit returns ErrPoolFull immediately
// so the caller can reject or retry; SubmitWait blocks until a slot frees up
// or ctx is done.
//
//	pool := workerpool.New("uploads", 8)
//	defer pool.Shutdown()
//
//	if err := pool.Submit(func() { store(blob) }); errors.Is(err, workerpool.ErrPoolFull) {
//	    // answer 503, try later
//	}
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/shashiranjanraj/upbridge/pkg/logger"
	"github.com/shashiranjanraj/upbridge/pkg/metrics"
)

// ErrPoolFull is returned by Submit when the backlog is at capacity.
var ErrPoolFull = errors.New("workerpool: pool is full")

// ErrPoolClosed is returned by Submit after Shutdown has been called.
var ErrPoolClosed = errors.New("workerpool: pool is closed")

// Pool is a bounded goroutine pool.
type Pool struct {
	name    string
	tasks   chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	active  atomic.Int64
	pending atomic.Int64
}

// New creates a Pool with size workers and a backlog of twice that.
func New(name string, size int) *Pool {
	if size <= 0 {
		size = 1
	}

	p := &Pool{
		name:  name,
		tasks: make(chan func(), size*2),
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Name returns the pool name used in logs.
func (p *Pool) Name() string { return p.name }

// Active returns the number of tasks currently running.
func (p *Pool) Active() int64 { return p.active.Load() }

// Pending returns the number of tasks waiting in the backlog.
func (p *Pool) Pending() int64 { return p.pending.Load() }

// Submit enqueues task without blocking.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.PoolTasks.WithLabelValues("closed").Inc()
		return ErrPoolClosed
	}

	p.pending.Add(1)
	select {
	case p.tasks <- task:
		metrics.PoolTasks.WithLabelValues("accepted").Inc()
		return nil
	default:
		p.pending.Add(-1)
		metrics.PoolTasks.WithLabelValues("full").Inc()
		return ErrPoolFull
	}
}

// SubmitWait blocks until task is enqueued, the pool closes, or ctx is done.
func (p *Pool) SubmitWait(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.PoolTasks.WithLabelValues("closed").Inc()
		return ErrPoolClosed
	}

	p.pending.Add(1)
	select {
	case p.tasks <- task:
		metrics.PoolTasks.WithLabelValues("accepted").Inc()
		return nil
	case <-ctx.Done():
		p.pending.Add(-1)
		return fmt.Errorf("workerpool: submit: %w", ctx.Err())
	}
}

// Shutdown stops accepting tasks, waits for queued and running tasks to
// finish, and releases the workers. Safe to call multiple times.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		// Waits for in-progress SubmitWait calls to leave before closing.
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.pending.Add(-1)
		p.active.Add(1)
		p.safeRun(task)
		p.active.Add(-1)
	}
}

// safeRun keeps a panicking task from killing its worker.
func (p *Pool) safeRun(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.PoolTasks.WithLabelValues("panicked").Inc()
			logger.Error("workerpool: task panicked",
				"pool", p.name,
				"error", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
		}
	}()
	task()
}
