package engine

import (
	"errors"
	"fmt"

	"github.com/nitely/v8-cffi/pkg/metrics"
	"github.com/nitely/v8-cffi/pkg/native"
)

// Error categories. Use errors.Is to test an error's category.
var (
	ErrContractViolation = errors.New("engine: contract violation")
	ErrMemory            = errors.New("engine: out of memory")
	ErrScript            = errors.New("engine: script error")
	ErrUnknown           = errors.New("engine: unknown error")
)

// ErrScopeNotAlive is returned for work that reaches a scope after it was
// torn down.
var ErrScopeNotAlive = &ContractError{
	Resource: ResourceScope,
	Op:       "run",
	State:    StateUnset,
	Reason:   "scope is no longer alive",
}

// ContractError reports lifecycle misuse by the caller.
type ContractError struct {
	Resource string
	Op       string
	State    State
	Reason   string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("engine: %s %s: %s", e.Resource, e.Op, e.Reason)
}

func (e *ContractError) Unwrap() error { return ErrContractViolation }

// Is matches ErrScopeNotAlive by value so copies compare equal.
func (e *ContractError) Is(target error) bool {
	t, ok := target.(*ContractError)
	return ok && t != nil && *t == *e
}

func violation(resource, op string, state State, reason string) *ContractError {
	return &ContractError{Resource: resource, Op: op, State: state, Reason: reason}
}

// Kind is the category of an engine failure.
type Kind int

const (
	KindMemory Kind = iota + 1
	KindScript
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindMemory:
		return "MemoryError"
	case KindScript:
		return "ScriptError"
	default:
		return "UnknownError"
	}
}

// Error is a failure reported by the engine.
type Error struct {
	Kind   Kind
	Status native.Status
	// Message is the engine diagnostic for script errors, passed through
	// unchanged. It is empty for memory errors.
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindScript:
		return e.Message
	case KindMemory:
		return ErrMemory.Error()
	default:
		if e.Message != "" {
			return fmt.Sprintf("%s: %s", ErrUnknown, e.Message)
		}
		return fmt.Sprintf("%s (status %s)", ErrUnknown, e.Status)
	}
}

func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindScript:
		return ErrScript
	case KindMemory:
		return ErrMemory
	default:
		return ErrUnknown
	}
}

// MapStatus converts a native status code to an error. It returns nil for
// StatusOK. message is kept only for script errors. Codes outside the known
// set map to an unknown error.
func MapStatus(status native.Status, message string) error {
	switch status {
	case native.StatusOK:
		return nil
	case native.StatusOutOfMemory:
		return &Error{Kind: KindMemory, Status: status}
	case native.StatusJSError:
		return &Error{Kind: KindScript, Status: status, Message: message}
	default:
		return &Error{Kind: KindUnknown, Status: status}
	}
}

// IsRetryable reports whether err is a script error. Memory and unknown
// errors are not worth retrying with the same engine state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrScript)
}

// Outcome classifies err for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrScript):
		return metrics.OutcomeScript
	case errors.Is(err, ErrMemory):
		return metrics.OutcomeMemory
	case errors.Is(err, ErrContractViolation):
		return metrics.OutcomeContract
	default:
		return metrics.OutcomeUnknown
	}
}
