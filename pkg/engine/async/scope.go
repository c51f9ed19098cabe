package async

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nitely/v8-cffi/pkg/engine"
	"github.com/nitely/v8-cffi/pkg/metrics"
)

// Option configures a Scope or Machine.
type Option func(*config)

type config struct {
	workers int
	metrics *metrics.Collector
	logger  *slog.Logger
}

// WithWorkers bounds concurrent runs. The default is DefaultWorkers().
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithMetrics overrides the collector inherited from the environment.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *config) { c.metrics = m }
}

// WithLogger overrides the logger inherited from the scope.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Scope wraps an engine.Scope with a worker pool.
type Scope struct {
	scope    *engine.Scope
	workers  int
	ownsPool bool
	metrics  *metrics.Collector
	logger   *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	pool     *Pool
	pending  int
	inFlight int
	closed   bool
}

// New creates an async Scope around a fresh scope of m.
func New(m *engine.Machine, opts ...Option) *Scope {
	return Wrap(m.NewScope(), opts...)
}

// Wrap creates an async Scope around s with its own pool.
func Wrap(s *engine.Scope, opts ...Option) *Scope {
	a := wrap(s, nil, opts)
	a.ownsPool = true
	a.pool = NewPool(a.workers)
	return a
}

func wrap(s *engine.Scope, pool *Pool, opts []Option) *Scope {
	cfg := config{
		metrics: s.Machine().Environment().Metrics(),
		logger:  s.Logger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	a := &Scope{
		scope:   s,
		workers: cfg.workers,
		metrics: cfg.metrics,
		logger:  cfg.logger,
		pool:    pool,
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// SetUp sets up the wrapped scope and reopens the wrapper for work.
func (a *Scope) SetUp() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.scope.SetUp(); err != nil {
		return err
	}
	a.closed = false
	if a.pool == nil {
		a.pool = NewPool(a.workers)
	}
	return nil
}

// Run queues source for execution and returns immediately. A closed
// wrapper fails the future with ErrScopeNotAlive at once; queued work checks
// scope liveness again when a worker picks it up.
func (a *Scope) Run(source, identifier string) *Future {
	f := newFuture()

	a.mu.Lock()
	if a.closed || a.pool == nil {
		a.mu.Unlock()
		a.metrics.RecordRejected()
		f.complete("", engine.ErrScopeNotAlive)
		return f
	}
	a.pending++
	pool := a.pool
	a.mu.Unlock()

	task := uuid.New()
	if !pool.Submit(func() { a.execute(f, task, source, identifier) }) {
		a.mu.Lock()
		a.pending--
		a.cond.Broadcast()
		a.mu.Unlock()
		a.metrics.RecordRejected()
		f.complete("", engine.ErrScopeNotAlive)
	}
	return f
}

func (a *Scope) execute(f *Future, task uuid.UUID, source, identifier string) {
	a.mu.Lock()
	a.pending--
	a.inFlight++
	n := a.inFlight
	a.mu.Unlock()
	a.metrics.SetInFlight(n)

	defer func() {
		a.mu.Lock()
		a.inFlight--
		n := a.inFlight
		a.cond.Broadcast()
		a.mu.Unlock()
		a.metrics.SetInFlight(n)
	}()

	if !a.scope.IsAlive() {
		a.metrics.RecordRejected()
		a.logger.Debug("async: scope gone before run", "task", task.String())
		f.complete("", engine.ErrScopeNotAlive)
		return
	}

	out, err := a.scope.Run(source, identifier)
	f.complete(out, err)
}

// TearDown stops accepting work, waits for queued and running scripts to
// finish, then tears the wrapped scope down. If the scope cannot be torn
// down the wrapper accepts work again.
func (a *Scope) TearDown() error {
	a.mu.Lock()
	a.closed = true
	for a.pending > 0 || a.inFlight > 0 {
		a.cond.Wait()
	}
	var pool *Pool
	if a.ownsPool {
		pool, a.pool = a.pool, nil
	}
	a.mu.Unlock()

	if pool != nil {
		pool.Close()
	}

	if err := a.scope.TearDown(); err != nil {
		a.mu.Lock()
		a.closed = false
		if a.pool == nil {
			a.pool = NewPool(a.workers)
		}
		a.mu.Unlock()
		return err
	}
	a.logger.Debug("async: scope drained and torn down")
	return nil
}

// InFlight returns the number of scripts currently executing.
func (a *Scope) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight
}

// IsAlive reports whether the wrapped scope is alive.
func (a *Scope) IsAlive() bool { return a.scope.IsAlive() }

// Scope returns the wrapped scope.
func (a *Scope) Scope() *engine.Scope { return a.scope }
