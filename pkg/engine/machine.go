package engine

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nitely/v8-cffi/pkg/native"
)

// Machine is an isolated interpreter instance inside an Environment. It can
// be set up and torn down any number of times while the environment is
// alive.
type Machine struct {
	env    *Environment
	id     uuid.UUID
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	handle native.Handle
}

func newMachine(env *Environment) *Machine {
	id := uuid.New()
	return &Machine{
		env:    env,
		id:     id,
		logger: env.logger.With("machine", id.String()),
	}
}

// SetUp creates the interpreter. The machine must be unset and the
// environment alive.
func (m *Machine) SetUp() (err error) {
	defer func() { m.env.metrics.RecordSetUp(ResourceMachine, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAlive {
		return violation(ResourceMachine, "set_up", m.state, "already set up")
	}
	if !m.env.IsAlive() {
		return violation(ResourceMachine, "set_up", m.state, "environment is not alive")
	}

	var h native.Handle
	if status := m.env.lib.VMNew(&h); status != native.StatusOK {
		m.logger.Warn("engine: machine init failed", "status", status)
		return MapStatus(status, "")
	}

	m.handle = h
	m.state = StateAlive
	m.logger.Debug("engine: machine set up")
	return nil
}

// TearDown releases the interpreter and returns the machine to unset. The
// machine must be alive and the environment alive.
func (m *Machine) TearDown() (err error) {
	defer func() { m.env.metrics.RecordTearDown(ResourceMachine, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAlive {
		return violation(ResourceMachine, "tear_down", m.state, "not alive")
	}
	if !m.env.IsAlive() {
		return violation(ResourceMachine, "tear_down", m.state, "environment is not alive")
	}

	m.env.lib.VMFree(m.handle)
	m.handle = 0
	m.state = StateUnset
	m.logger.Debug("engine: machine torn down")
	return nil
}

// IsAlive reports whether the machine is set up.
func (m *Machine) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateAlive
}

// Handle returns the native VM handle, or zero when unset. It exists for
// child scopes and adapters; callers should not free it.
func (m *Machine) Handle() native.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// ID identifies the machine in logs.
func (m *Machine) ID() uuid.UUID { return m.id }

// Environment returns the parent environment.
func (m *Machine) Environment() *Environment { return m.env }

// NewScope creates an unset Scope in this machine. The machine does not
// need to be alive yet.
func (m *Machine) NewScope(opts ...ScopeOption) *Scope {
	return newScope(m, opts...)
}
