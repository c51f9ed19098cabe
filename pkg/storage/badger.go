package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// DB implements FileStore on an embedded BadgerDB. Each file is one key,
// so a staged set of sources and blobs lives in a single directory that
// can be copied between hosts.
type DB struct {
	db *badger.DB
}

// DBOptions configures a DB store.
type DBOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory keeps everything in memory (tests).
	InMemory bool

	// Logger receives badger warnings and errors. Nil means slog.Default().
	Logger *slog.Logger
}

// OpenDB opens or creates a BadgerDB-backed store.
func OpenDB(opts DBOptions) (*DB, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("storage: DBOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	return &DB{db: db}, nil
}

func dbKey(path string) []byte {
	return []byte(strings.TrimPrefix(path, "/"))
}

// Read returns the stored file. Missing keys wrap fs.ErrNotExist.
func (d *DB) Read(_ context.Context, path string) (io.ReadCloser, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(path))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(val)), nil
}

// Write buffers the file and commits it on Close.
func (d *DB) Write(_ context.Context, path string) (io.WriteCloser, error) {
	return &dbWriter{db: d.db, key: dbKey(path)}, nil
}

// Delete removes the file. Missing keys are not an error.
func (d *DB) Delete(_ context.Context, path string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dbKey(path))
	})
}

// Exists reports whether the file is stored.
func (d *DB) Exists(_ context.Context, path string) (bool, error) {
	err := d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(dbKey(path))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Close releases the database.
func (d *DB) Close() error {
	return d.db.Close()
}

type dbWriter struct {
	db     *badger.DB
	key    []byte
	buf    bytes.Buffer
	closed bool
}

func (w *dbWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fs.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *dbWriter) Close() error {
	if w.closed {
		return fs.ErrClosed
	}
	w.closed = true
	return w.db.Update(func(txn *badger.Txn) error {
		return txn.Set(w.key, w.buf.Bytes())
	})
}

// badgerLogger forwards badger warnings and errors to slog and drops
// info and debug chatter.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, v ...any)   { b.l.Error(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badger") }
func (b badgerLogger) Warningf(f string, v ...any) { b.l.Warn(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badger") }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}

var _ FileStore = (*DB)(nil)
