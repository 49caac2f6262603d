// Package db is the metadata store of a repository. It is a small
// key/value abstraction with exactly two implementations: badger for
// real repositories and a map based one for tests.
//
// Keys are paths of string components. The engine keeps block maps,
// generation metadata and bundle indexes here; the bulky block data
// itself lives in the backend.
package db

import "errors"

// ErrNoSuchKey is returned by Get when the key does not exist.
var ErrNoSuchKey = errors.New("this key does not exist")

// Batch models a transaction. All changes are applied atomically on
// Flush. Batch may be acquired recursively; changes hit the disk once
// Flush was called as often as Batch.
type Batch interface {
	// Put sets `val` at `key`.
	Put(val []byte, key ...string)

	// Erase removes `key`.
	Erase(key ...string)

	// Clear removes all keys below and including `key`.
	Clear(key ...string) error

	// Flush writes the batch.
	Flush() error

	// Rollback forgets all changes without applying them.
	Rollback()

	// HaveWrites returns true when the batch holds unflushed changes.
	HaveWrites() bool
}

// Database is a key/value store with string path keys.
type Database interface {
	// Get returns the value at `key`, or ErrNoSuchKey. While a batch
	// is open, Get sees the values put into it.
	Get(key ...string) ([]byte, error)

	// Keys calls `fn` for every key below `prefix`, in lexical
	// order. An error from `fn` stops the iteration and is returned.
	Keys(fn func(key []string) error, prefix ...string) error

	// Batch starts (or joins) a transaction.
	Batch() Batch

	// Close syncs and closes the store.
	Close() error
}
