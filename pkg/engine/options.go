package engine

import (
	"log/slog"

	"github.com/nitely/v8-cffi/pkg/metrics"
	"github.com/nitely/v8-cffi/pkg/storage"
)

// Option configures an Environment. Machines and scopes inherit the
// environment's logger, metrics and store.
type Option func(*Environment)

// WithNativesPath sets the natives blob path, read from the store at SetUp.
func WithNativesPath(path string) Option {
	return func(e *Environment) { e.nativesPath = path }
}

// WithSnapshotPath sets the snapshot blob path, read from the store at SetUp.
func WithSnapshotPath(path string) Option {
	return func(e *Environment) { e.snapshotPath = path }
}

// WithBlobs supplies both blob payloads directly. Paths are ignored when
// payloads are set.
func WithBlobs(natives, snapshot []byte) Option {
	return func(e *Environment) {
		e.natives, e.snapshot = natives, snapshot
		e.blobsSet = true
	}
}

// WithStore sets the store used for blobs and, by default, script sources.
// The default reads host paths.
func WithStore(store storage.FileStore) Option {
	return func(e *Environment) { e.store = store }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Environment) { e.logger = logger }
}

// WithMetrics records lifecycle and run metrics to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Environment) { e.metrics = c }
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithSourceStore sets the store LoadSources reads from.
func WithSourceStore(store storage.FileStore) ScopeOption {
	return func(s *Scope) { s.store = store }
}
