package native

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultLibrary is the library opened when no name is given.
const DefaultLibrary = "embedded"

// ErrLibraryNotFound is returned by Open for an unregistered name.
var ErrLibraryNotFound = errors.New("native: library not registered")

// Factory creates a Library instance.
type Factory func() (Library, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a library available under name. It panics if name is
// already registered.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("native: library %s already registered", name))
	}
	factories[name] = factory
}

// Open creates a Library by name. An empty name selects DefaultLibrary.
func Open(name string) (Library, error) {
	if name == "" {
		name = DefaultLibrary
	}

	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, name)
	}
	return factory()
}

// Libraries returns the registered library names, sorted.
func Libraries() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
