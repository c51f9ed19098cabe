package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nitely/v8-cffi/pkg/native"
	"github.com/nitely/v8-cffi/pkg/storage"
)

// DefaultIdentifier names scripts run without an identifier.
const DefaultIdentifier = "<anonymous>"

// Scope is an isolated global namespace inside a Machine. Globals defined
// by one Run are visible to later runs in the same scope and to no other
// scope.
//
// Run may be called from several goroutines; the engine serializes
// execution per machine. SetUp and TearDown wait for runs in progress.
type Scope struct {
	machine *Machine
	id      uuid.UUID
	store   storage.FileStore
	logger  *slog.Logger

	mu     sync.RWMutex
	state  State
	handle native.Handle
}

func newScope(m *Machine, opts ...ScopeOption) *Scope {
	id := uuid.New()
	s := &Scope{
		machine: m,
		id:      id,
		store:   m.env.store,
		logger:  m.logger.With("scope", id.String()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetUp creates the native context. The scope must be unset and its
// machine alive.
func (s *Scope) SetUp() (err error) {
	defer func() { s.machine.env.metrics.RecordSetUp(ResourceScope, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateAlive {
		return violation(ResourceScope, "set_up", s.state, "already set up")
	}
	if !s.machine.IsAlive() {
		return violation(ResourceScope, "set_up", s.state, "machine is not alive")
	}

	var h native.Handle
	if status := s.machine.env.lib.ContextNew(&h, s.machine.Handle()); status != native.StatusOK {
		s.logger.Warn("engine: scope init failed", "status", status)
		return MapStatus(status, "")
	}

	s.handle = h
	s.state = StateAlive
	s.logger.Debug("engine: scope set up")
	return nil
}

// TearDown releases the native context and returns the scope to unset. The
// scope and its machine must be alive.
func (s *Scope) TearDown() (err error) {
	defer func() { s.machine.env.metrics.RecordTearDown(ResourceScope, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAlive {
		return violation(ResourceScope, "tear_down", s.state, "not alive")
	}
	if !s.machine.IsAlive() {
		return violation(ResourceScope, "tear_down", s.state, "machine is not alive")
	}

	s.machine.env.lib.ContextFree(s.handle)
	s.handle = 0
	s.state = StateUnset
	s.logger.Debug("engine: scope torn down")
	return nil
}

// IsAlive reports whether the scope is set up.
func (s *Scope) IsAlive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateAlive
}

// ID identifies the scope in logs.
func (s *Scope) ID() uuid.UUID { return s.id }

// Machine returns the parent machine.
func (s *Scope) Machine() *Machine { return s.machine }

// Logger returns the scope's logger.
func (s *Scope) Logger() *slog.Logger { return s.logger }

// Run executes source and returns its completion value coerced to a string.
// An empty identifier means DefaultIdentifier. Script failures return an
// *Error whose Message is the engine diagnostic.
func (s *Scope) Run(source, identifier string) (string, error) {
	if !utf8.ValidString(source) {
		return "", violation(ResourceScope, "run", s.currentState(), "source is not valid UTF-8")
	}
	if !utf8.ValidString(identifier) {
		return "", violation(ResourceScope, "run", s.currentState(), "identifier is not valid UTF-8")
	}
	return s.run([]byte(source), identifier)
}

// RunBytes is Run for UTF-8 encoded input.
func (s *Scope) RunBytes(source []byte, identifier string) (string, error) {
	if !utf8.Valid(source) {
		return "", violation(ResourceScope, "run", s.currentState(), "source is not valid UTF-8")
	}
	if !utf8.ValidString(identifier) {
		return "", violation(ResourceScope, "run", s.currentState(), "identifier is not valid UTF-8")
	}
	return s.run(source, identifier)
}

func (s *Scope) currentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scope) run(source []byte, identifier string) (out string, err error) {
	start := time.Now()
	defer func() { s.machine.env.metrics.RecordRun(Outcome(err), time.Since(start)) }()

	if identifier == "" {
		identifier = DefaultIdentifier
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateAlive {
		return "", ErrScopeNotAlive
	}

	lib := s.machine.env.lib
	result := outputBuffer{lib: lib}
	diag := outputBuffer{lib: lib}
	if err := result.acquire(); err != nil {
		return "", err
	}
	defer result.release()
	if err := diag.acquire(); err != nil {
		return "", err
	}
	defer diag.release()

	status := lib.RunScript(s.handle, source, []byte(identifier),
		&result.ptr, &result.n, &diag.ptr, &diag.n)
	if status != native.StatusOK {
		msg := strings.ToValidUTF8(string(diag.bytes()), "�")
		if status == native.StatusJSError {
			s.logger.Debug("engine: script error", "identifier", identifier)
		} else {
			s.logger.Warn("engine: run failed", "identifier", identifier, "status", status)
		}
		return "", MapStatus(status, msg)
	}

	b := result.bytes()
	if !utf8.Valid(b) {
		return "", &Error{Kind: KindUnknown, Status: status, Message: "result is not valid UTF-8"}
	}
	return string(b), nil
}

// LoadSources reads each path from the scope's store and runs it with the
// path as identifier, in order. It stops at the first failure and returns
// that error unchanged; earlier sources stay applied.
func (s *Scope) LoadSources(ctx context.Context, paths []string) error {
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, err := storage.ReadFile(ctx, s.store, path)
		if err != nil {
			return err
		}
		if _, err := s.RunBytes(src, path); err != nil {
			return err
		}
		s.logger.Debug("engine: source loaded", "path", path)
	}
	return nil
}
