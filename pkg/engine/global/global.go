// Package global keeps one process-wide Environment, Machine and Scope for
// callers that only need "run this script".
//
//	if err := global.SetUp(ctx, lib); err != nil {
//	    log.Fatal(err)
//	}
//	defer global.TearDown()
//
//	out, err := global.Run("1 + 1", "")
package global

import (
	"context"
	"errors"
	"sync"

	"github.com/nitely/v8-cffi/pkg/engine"
	"github.com/nitely/v8-cffi/pkg/native"
)

var (
	mu    sync.Mutex
	env   *engine.Environment
	vm    *engine.Machine
	scope *engine.Scope
	used  bool
)

// SetUp creates and sets up the global environment, machine and scope. The
// platform is initialized at most once per process: once it has come up,
// later calls fail with a contract violation even if the machine or scope
// failed and the environment was torn down.
func SetUp(ctx context.Context, lib native.Library, opts ...engine.Option) error {
	mu.Lock()
	defer mu.Unlock()

	if used {
		return &engine.ContractError{
			Resource: "global",
			Op:       "set_up",
			State:    engine.StateAlive,
			Reason:   "global scope can only be set up once",
		}
	}

	e := engine.NewEnvironment(lib, opts...)
	if err := e.SetUp(ctx); err != nil {
		return err
	}
	// The platform is up; from here on a failure leaves it dead.
	used = true
	m := e.NewMachine()
	if err := m.SetUp(); err != nil {
		return errors.Join(err, e.TearDown())
	}
	s := m.NewScope()
	if err := s.SetUp(); err != nil {
		return errors.Join(err, m.TearDown(), e.TearDown())
	}

	env, vm, scope = e, m, s
	return nil
}

// Scope returns the global scope.
func Scope() (*engine.Scope, error) {
	mu.Lock()
	defer mu.Unlock()
	if scope == nil {
		return nil, &engine.ContractError{
			Resource: "global",
			Op:       "scope",
			State:    engine.StateUnset,
			Reason:   "global scope is not set up",
		}
	}
	return scope, nil
}

// Run runs source in the global scope.
func Run(source, identifier string) (string, error) {
	s, err := Scope()
	if err != nil {
		return "", err
	}
	return s.Run(source, identifier)
}

// TearDown tears down the scope, machine and environment in that order.
// The environment is dead afterwards, so SetUp cannot be called again.
func TearDown() error {
	mu.Lock()
	defer mu.Unlock()
	if scope == nil {
		return &engine.ContractError{
			Resource: "global",
			Op:       "tear_down",
			State:    engine.StateUnset,
			Reason:   "global scope is not set up",
		}
	}
	err := errors.Join(scope.TearDown(), vm.TearDown(), env.TearDown())
	env, vm, scope = nil, nil, nil
	return err
}
