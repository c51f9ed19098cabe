package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nitely/v8-cffi/pkg/metrics"
	"github.com/nitely/v8-cffi/pkg/native"
	"github.com/nitely/v8-cffi/pkg/storage"
)

// Environment is the process-wide engine platform. It can be set up once
// and torn down once; after teardown it is dead for good.
type Environment struct {
	lib native.Library

	nativesPath  string
	snapshotPath string
	natives      []byte
	snapshot     []byte
	blobsSet     bool

	store   storage.FileStore
	logger  *slog.Logger
	metrics *metrics.Collector

	mu     sync.Mutex
	state  State
	handle native.Handle
}

// NewEnvironment creates an unset Environment over lib.
func NewEnvironment(lib native.Library, opts ...Option) *Environment {
	e := &Environment{lib: lib}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = storage.OS()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// SetUp reads the startup blobs and initializes the platform.
//
// It fails with a ContractError if the environment is alive or dead. Blob
// read errors are returned unchanged. On any failure the state is left
// as it was.
func (e *Environment) SetUp(ctx context.Context) (err error) {
	defer func() { e.metrics.RecordSetUp(ResourceEnvironment, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateAlive:
		return violation(ResourceEnvironment, "set_up", e.state, "already set up")
	case StateDead:
		return violation(ResourceEnvironment, "set_up", e.state, "torn down environments cannot be set up again")
	}

	if !e.blobsSet {
		if e.natives, err = e.readBlob(ctx, e.nativesPath); err != nil {
			return err
		}
		if e.snapshot, err = e.readBlob(ctx, e.snapshotPath); err != nil {
			return err
		}
	}

	var h native.Handle
	if status := e.lib.PlatformNew(&h, e.natives, e.snapshot); status != native.StatusOK {
		e.logger.Warn("engine: platform init failed", "status", status)
		return MapStatus(status, "")
	}

	e.handle = h
	e.state = StateAlive
	e.logger.Debug("engine: environment set up",
		"natives_bytes", len(e.natives), "snapshot_bytes", len(e.snapshot))
	return nil
}

func (e *Environment) readBlob(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return storage.ReadFile(ctx, e.store, path)
}

// TearDown releases the platform. The environment becomes dead and can
// never be set up again.
func (e *Environment) TearDown() (err error) {
	defer func() { e.metrics.RecordTearDown(ResourceEnvironment, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateAlive {
		return violation(ResourceEnvironment, "tear_down", e.state, "not alive")
	}

	e.lib.PlatformFree(e.handle)
	e.handle = 0
	e.state = StateDead
	e.logger.Debug("engine: environment torn down")
	return nil
}

// State returns the current lifecycle state.
func (e *Environment) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsAlive reports whether the environment is set up.
func (e *Environment) IsAlive() bool { return e.State() == StateAlive }

// IsDead reports whether the environment has been torn down.
func (e *Environment) IsDead() bool { return e.State() == StateDead }

// NewMachine creates an unset Machine. The environment does not need to be
// alive yet.
func (e *Environment) NewMachine() *Machine {
	return newMachine(e)
}

// Library returns the native library the environment drives.
func (e *Environment) Library() native.Library { return e.lib }

// Logger returns the environment's logger.
func (e *Environment) Logger() *slog.Logger { return e.logger }

// Metrics returns the environment's metrics collector, which may be nil.
func (e *Environment) Metrics() *metrics.Collector { return e.metrics }
