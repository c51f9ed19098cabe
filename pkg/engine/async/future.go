package async

import (
	"context"
	"sync"
	"sync/atomic"
)

// Outcome is the result of one async run.
type Outcome struct {
	Value string
	Err   error
}

// Future is the pending result of Scope.Run. It completes exactly once.
type Future struct {
	done   atomic.Bool
	mu     sync.Mutex
	ch     chan struct{}
	result Outcome
}

func newFuture() *Future {
	return &Future{ch: make(chan struct{})}
}

func (f *Future) complete(value string, err error) {
	if f.done.Load() {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done.Load() {
		return
	}
	f.result = Outcome{Value: value, Err: err}
	f.done.Store(true)
	close(f.ch)
}

// Done returns a channel closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.ch
}

// IsReady reports whether the result is available.
func (f *Future) IsReady() bool {
	return f.done.Load()
}

// Result returns the outcome if ready.
func (f *Future) Result() (Outcome, bool) {
	if !f.done.Load() {
		return Outcome{}, false
	}
	return f.result, true
}

// Await blocks until the run completes or ctx is done. Canceling ctx stops
// the wait only; the script keeps running.
func (f *Future) Await(ctx context.Context) (string, error) {
	select {
	case <-f.ch:
		return f.result.Value, f.result.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
