package async

import (
	"context"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers returns twice the number of logical CPUs.
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	return 2 * n
}

// Pool runs tasks with at most a fixed number executing at once. Submitted
// tasks never block the caller.
type Pool struct {
	size int
	sem  *semaphore.Weighted
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool running at most workers tasks at a time. Values
// below one select DefaultWorkers.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = DefaultWorkers()
	}
	return &Pool{size: workers, sem: semaphore.NewWeighted(int64(workers))}
}

// Size returns the concurrency bound.
func (p *Pool) Size() int { return p.size }

// Submit queues task. It reports false if the pool is closed.
func (p *Pool) Submit(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// Acquire only fails on context cancellation.
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)
		task()
	}()
	return true
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
