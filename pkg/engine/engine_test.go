package engine

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/nitely/v8-cffi/pkg/native"
	"github.com/nitely/v8-cffi/pkg/native/embedded"
	"github.com/nitely/v8-cffi/pkg/native/nativetest"
	"github.com/nitely/v8-cffi/pkg/storage"
)

// =============================================================================
// Helpers
// =============================================================================

func mustSetUpEnv(t *testing.T, lib native.Library, opts ...Option) *Environment {
	t.Helper()
	env := NewEnvironment(lib, opts...)
	if err := env.SetUp(context.Background()); err != nil {
		t.Fatalf("Environment.SetUp failed: %v", err)
	}
	return env
}

func mustSetUpScope(t *testing.T, lib native.Library, opts ...Option) (*Environment, *Machine, *Scope) {
	t.Helper()
	env := mustSetUpEnv(t, lib, opts...)
	vm := env.NewMachine()
	if err := vm.SetUp(); err != nil {
		t.Fatalf("Machine.SetUp failed: %v", err)
	}
	scope := vm.NewScope()
	if err := scope.SetUp(); err != nil {
		t.Fatalf("Scope.SetUp failed: %v", err)
	}
	return env, vm, scope
}

func isViolation(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce) && errors.Is(err, ErrContractViolation)
}

// =============================================================================
// Environment
// =============================================================================

func TestEnvironmentLifecycle(t *testing.T) {
	lib := nativetest.New()
	env := NewEnvironment(lib)

	if env.State() != StateUnset || env.IsAlive() || env.IsDead() {
		t.Fatalf("new environment state = %v", env.State())
	}
	if err := env.SetUp(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !env.IsAlive() || lib.Live(nativetest.KindPlatform) != 1 {
		t.Fatal("environment should be alive with one platform")
	}
	if err := env.TearDown(); err != nil {
		t.Fatal(err)
	}
	if !env.IsDead() || lib.Live(nativetest.KindPlatform) != 0 {
		t.Fatal("environment should be dead with no platform")
	}
}

func TestEnvironmentSetUpTwice(t *testing.T) {
	env := mustSetUpEnv(t, nativetest.New())
	if err := env.SetUp(context.Background()); !isViolation(err) {
		t.Errorf("second SetUp = %v, want contract violation", err)
	}
	if !env.IsAlive() {
		t.Error("environment should still be alive")
	}
}

func TestEnvironmentDeadForever(t *testing.T) {
	env := mustSetUpEnv(t, nativetest.New())
	env.TearDown()

	for i := 0; i < 3; i++ {
		if err := env.SetUp(context.Background()); !isViolation(err) {
			t.Fatalf("SetUp after teardown = %v, want contract violation", err)
		}
	}
	if err := env.TearDown(); !isViolation(err) {
		t.Errorf("TearDown of dead environment = %v, want contract violation", err)
	}
	if !env.IsDead() {
		t.Error("environment should stay dead")
	}
}

func TestEnvironmentTearDownUnset(t *testing.T) {
	env := NewEnvironment(nativetest.New())
	if err := env.TearDown(); !isViolation(err) {
		t.Errorf("TearDown of unset environment = %v, want contract violation", err)
	}
	if env.State() != StateUnset {
		t.Errorf("state = %v, want unset", env.State())
	}
}

func TestEnvironmentPlatformFailure(t *testing.T) {
	lib := nativetest.New()
	lib.PlatformStatus = native.StatusOutOfMemory
	env := NewEnvironment(lib)

	err := env.SetUp(context.Background())
	if !errors.Is(err, ErrMemory) {
		t.Fatalf("SetUp = %v, want ErrMemory", err)
	}
	if env.State() != StateUnset {
		t.Errorf("state after failed SetUp = %v, want unset", env.State())
	}

	lib.PlatformStatus = native.StatusOK
	if err := env.SetUp(context.Background()); err != nil {
		t.Errorf("SetUp retry failed: %v", err)
	}
}

func TestEnvironmentReadsBlobs(t *testing.T) {
	lib := nativetest.New()
	store := storage.NewMem(map[string]string{
		"blobs/natives_blob.bin":  "natives",
		"blobs/snapshot_blob.bin": "snapshot",
	})
	mustSetUpEnv(t, lib,
		WithStore(store),
		WithNativesPath("blobs/natives_blob.bin"),
		WithSnapshotPath("blobs/snapshot_blob.bin"))

	natives, snapshot := lib.Blobs()
	if string(natives) != "natives" || string(snapshot) != "snapshot" {
		t.Errorf("blobs = %q, %q", natives, snapshot)
	}
}

func TestEnvironmentMissingBlob(t *testing.T) {
	env := NewEnvironment(nativetest.New(),
		WithStore(storage.NewMem(nil)),
		WithNativesPath("missing.bin"))

	err := env.SetUp(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("SetUp = %v, want not-exist error", err)
	}
	if isViolation(err) {
		t.Error("I/O errors must not be wrapped as contract violations")
	}
	if env.State() != StateUnset {
		t.Errorf("state = %v, want unset", env.State())
	}
}

func TestEnvironmentWithBlobs(t *testing.T) {
	lib := nativetest.New()
	mustSetUpEnv(t, lib, WithBlobs([]byte("n"), []byte("s")), WithNativesPath("ignored"))
	natives, snapshot := lib.Blobs()
	if string(natives) != "n" || string(snapshot) != "s" {
		t.Errorf("blobs = %q, %q", natives, snapshot)
	}
}

// =============================================================================
// Machine
// =============================================================================

func TestMachineRequiresEnvironment(t *testing.T) {
	lib := nativetest.New()
	env := NewEnvironment(lib)
	vm := env.NewMachine()

	if err := vm.SetUp(); !isViolation(err) {
		t.Errorf("SetUp with unset environment = %v, want contract violation", err)
	}
	if lib.Live(nativetest.KindVM) != 0 {
		t.Error("no VM should be created")
	}
}

func TestMachineCycles(t *testing.T) {
	lib := nativetest.New()
	env := mustSetUpEnv(t, lib)
	vm := env.NewMachine()

	for i := 0; i < 5; i++ {
		if err := vm.SetUp(); err != nil {
			t.Fatalf("cycle %d SetUp: %v", i, err)
		}
		if !vm.IsAlive() || vm.Handle() == 0 {
			t.Fatalf("cycle %d: machine not alive", i)
		}
		if err := vm.TearDown(); err != nil {
			t.Fatalf("cycle %d TearDown: %v", i, err)
		}
		if vm.IsAlive() || vm.Handle() != 0 {
			t.Fatalf("cycle %d: machine still alive", i)
		}
	}
	if lib.Live(nativetest.KindVM) != 0 {
		t.Error("VM handles leaked")
	}
}

func TestMachineReentry(t *testing.T) {
	env := mustSetUpEnv(t, nativetest.New())
	vm := env.NewMachine()

	if err := vm.TearDown(); !isViolation(err) {
		t.Errorf("TearDown of unset machine = %v, want contract violation", err)
	}
	vm.SetUp()
	if err := vm.SetUp(); !isViolation(err) {
		t.Errorf("second SetUp = %v, want contract violation", err)
	}
	if !vm.IsAlive() {
		t.Error("failed SetUp must not change state")
	}
}

func TestMachineTearDownAfterEnvironment(t *testing.T) {
	env := mustSetUpEnv(t, nativetest.New())
	vm := env.NewMachine()
	vm.SetUp()
	env.TearDown()

	if err := vm.TearDown(); !isViolation(err) {
		t.Errorf("TearDown with dead environment = %v, want contract violation", err)
	}
}

func TestMachineVMFailure(t *testing.T) {
	lib := nativetest.New()
	env := mustSetUpEnv(t, lib)
	lib.VMStatus = native.StatusUnknownError

	vm := env.NewMachine()
	if err := vm.SetUp(); !errors.Is(err, ErrUnknown) {
		t.Errorf("SetUp = %v, want ErrUnknown", err)
	}
	if vm.IsAlive() {
		t.Error("machine should stay unset")
	}
}

func TestMachineIDs(t *testing.T) {
	env := NewEnvironment(nativetest.New())
	a, b := env.NewMachine(), env.NewMachine()
	if a.ID() == b.ID() {
		t.Error("machines should have distinct IDs")
	}
	if a.Environment() != env {
		t.Error("Environment() should return the parent")
	}
}

// =============================================================================
// Scope lifecycle
// =============================================================================

func TestScopeRequiresMachine(t *testing.T) {
	env := mustSetUpEnv(t, nativetest.New())
	vm := env.NewMachine()
	scope := vm.NewScope()

	if err := scope.SetUp(); !isViolation(err) {
		t.Errorf("SetUp with unset machine = %v, want contract violation", err)
	}
}

func TestScopeCycles(t *testing.T) {
	lib := nativetest.New()
	_, vm, scope := mustSetUpScope(t, lib)
	scope.TearDown()

	for i := 0; i < 4; i++ {
		if err := scope.SetUp(); err != nil {
			t.Fatalf("cycle %d SetUp: %v", i, err)
		}
		if _, err := scope.Run("1", ""); err != nil {
			t.Fatalf("cycle %d Run: %v", i, err)
		}
		if err := scope.TearDown(); err != nil {
			t.Fatalf("cycle %d TearDown: %v", i, err)
		}
	}
	if lib.Live(nativetest.KindContext) != 0 {
		t.Error("context handles leaked")
	}
	if scope.Machine() != vm {
		t.Error("Machine() should return the parent")
	}
}

func TestScopeReentry(t *testing.T) {
	_, _, scope := mustSetUpScope(t, nativetest.New())
	if err := scope.SetUp(); !isViolation(err) {
		t.Errorf("second SetUp = %v, want contract violation", err)
	}
	scope.TearDown()
	if err := scope.TearDown(); !isViolation(err) {
		t.Errorf("second TearDown = %v, want contract violation", err)
	}
}

func TestScopeTearDownAfterMachine(t *testing.T) {
	_, vm, scope := mustSetUpScope(t, nativetest.New())
	vm.TearDown()
	if err := scope.TearDown(); !isViolation(err) {
		t.Errorf("TearDown with unset machine = %v, want contract violation", err)
	}
}

func TestScopeContextFailure(t *testing.T) {
	lib := nativetest.New()
	env := mustSetUpEnv(t, lib)
	vm := env.NewMachine()
	vm.SetUp()
	lib.ContextStatus = native.StatusOutOfMemory

	scope := vm.NewScope()
	if err := scope.SetUp(); !errors.Is(err, ErrMemory) {
		t.Errorf("SetUp = %v, want ErrMemory", err)
	}
	if scope.IsAlive() {
		t.Error("scope should stay unset")
	}
}

func TestFullTeardownOrder(t *testing.T) {
	lib := nativetest.New()
	env, vm, scope := mustSetUpScope(t, lib)

	for _, step := range []func() error{scope.TearDown, vm.TearDown, env.TearDown} {
		if err := step(); err != nil {
			t.Fatal(err)
		}
	}
	for _, kind := range []nativetest.Kind{nativetest.KindPlatform, nativetest.KindVM, nativetest.KindContext} {
		if n := lib.Live(kind); n != 0 {
			t.Errorf("%d live handles of kind %d", n, kind)
		}
	}
}

// =============================================================================
// Embedded library
// =============================================================================

func TestEmbeddedLifecycle(t *testing.T) {
	env, vm, scope := mustSetUpScope(t, embedded.New())

	out, err := scope.Run("Math.max(10, 20);", "")
	if err != nil || out != "20" {
		t.Fatalf("Run = %q, %v", out, err)
	}

	scope.TearDown()
	vm.TearDown()
	if err := env.TearDown(); err != nil {
		t.Fatal(err)
	}
}

func TestEmbeddedMachineCycles(t *testing.T) {
	env := mustSetUpEnv(t, embedded.New())
	vm := env.NewMachine()
	for i := 0; i < 3; i++ {
		vm.SetUp()
		scope := vm.NewScope()
		scope.SetUp()
		if out, err := scope.Run("'cycle'", ""); err != nil || out != "cycle" {
			t.Fatalf("cycle %d: %q, %v", i, out, err)
		}
		scope.TearDown()
		vm.TearDown()
	}
}
