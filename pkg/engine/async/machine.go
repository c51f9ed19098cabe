package async

import "github.com/nitely/v8-cffi/pkg/engine"

// Machine shares one worker pool among the async scopes it creates.
type Machine struct {
	*engine.Machine
	pool *Pool
	opts []Option
}

// NewMachine wraps m. Call Close once every scope is torn down.
func NewMachine(m *engine.Machine, opts ...Option) *Machine {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Machine{Machine: m, pool: NewPool(cfg.workers), opts: opts}
}

// NewScope creates an async Scope that runs on the shared pool.
func (m *Machine) NewScope(opts ...engine.ScopeOption) *Scope {
	return wrap(m.Machine.NewScope(opts...), m.pool, m.opts)
}

// Workers returns the shared pool's concurrency bound.
func (m *Machine) Workers() int { return m.pool.Size() }

// Close waits for queued work and shuts the shared pool down.
func (m *Machine) Close() {
	m.pool.Close()
}
