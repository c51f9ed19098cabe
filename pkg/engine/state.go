package engine

// State is the lifecycle state of a resource.
type State int32

const (
	// StateUnset means the resource has no native handle.
	StateUnset State = iota
	// StateAlive means the resource holds a live native handle.
	StateAlive
	// StateDead is terminal. Only an Environment can reach it.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateAlive:
		return "alive"
	case StateDead:
		return "dead"
	default:
		return "invalid"
	}
}

// Resource names used in errors, logs and metrics.
const (
	ResourceEnvironment = "environment"
	ResourceMachine     = "machine"
	ResourceScope       = "scope"
)
