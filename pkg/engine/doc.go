// Package engine manages the lifecycle of an embedded script engine as three
// nested resources.
//
// # Tiers
//
//	Environment   process-wide platform; set up once, torn down once, then dead
//	  Machine     an isolated interpreter; may be set up and torn down repeatedly
//	    Scope     an isolated global namespace where scripts run
//
// A child's transitions require its parent to be alive. Creating a child
// object never does; only SetUp and TearDown check.
//
// # Basic Usage
//
//	lib, _ := native.Open("")
//	env := engine.NewEnvironment(lib)
//	if err := env.SetUp(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer env.TearDown()
//
//	vm := env.NewMachine()
//	vm.SetUp()
//	defer vm.TearDown()
//
//	scope := vm.NewScope()
//	scope.SetUp()
//	defer scope.TearDown()
//
//	out, err := scope.Run("Math.max(10, 20);", "")
//	// out == "20"
//
// # Errors
//
// Misuse of the lifecycle (setting up an alive resource, running in a torn
// down scope) returns a *ContractError matching ErrContractViolation.
// Engine failures return an *Error matching one of ErrMemory, ErrScript or
// ErrUnknown. Script errors carry the engine diagnostic verbatim:
//
//	<identifier>:<line>
//	    <source line>
//	    ^^^^
//	ReferenceError: baz is not defined
//	    at <anonymous>:1:1
//
// Teardown order is the caller's job: tear scopes down before their
// machine, and machines before the environment.
package engine
