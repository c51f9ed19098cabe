// Package async runs scripts on a bounded worker pool and drains in-flight
// work before a scope is torn down.
//
//	s := async.New(machine)
//	if err := s.SetUp(); err != nil {
//	    return err
//	}
//	f := s.Run("compute()", "job.js")
//	out, err := f.Await(ctx)
//	...
//	s.TearDown() // waits for every queued and running script
//
// Liveness is checked when a task starts, not when it is submitted: work
// that reaches a torn down scope fails with engine.ErrScopeNotAlive.
// Running scripts cannot be canceled; a context passed to Await only
// bounds the wait.
package async
