package db

import (
	"sort"
	"strings"
)

// MemoryDatabase is a purely in memory database for tests.
type MemoryDatabase struct {
	data  map[string][]byte
	dirty bool
}

// NewMemoryDatabase allocates a new empty MemoryDatabase.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		data: make(map[string][]byte),
	}
}

// Batch returns the database itself; changes apply immediately.
func (mdb *MemoryDatabase) Batch() Batch {
	return mdb
}

// Flush is a no-op for a memory database.
func (mdb *MemoryDatabase) Flush() error {
	mdb.dirty = false
	return nil
}

// Rollback only resets the write marker. Changes were already
// applied; a memory database has no real transactions.
func (mdb *MemoryDatabase) Rollback() {
	mdb.dirty = false
}

// HaveWrites returns true when something was put since the last Flush.
func (mdb *MemoryDatabase) HaveWrites() bool {
	return mdb.dirty
}

// Get returns the value at `key`.
func (mdb *MemoryDatabase) Get(key ...string) ([]byte, error) {
	data, ok := mdb.data[strings.Join(key, "/")]
	if !ok {
		return nil, ErrNoSuchKey
	}

	return data, nil
}

// Put sets `key` to `val`.
func (mdb *MemoryDatabase) Put(val []byte, key ...string) {
	mdb.data[strings.Join(key, "/")] = val
	mdb.dirty = true
}

// Erase removes `key`.
func (mdb *MemoryDatabase) Erase(key ...string) {
	delete(mdb.data, strings.Join(key, "/"))
	mdb.dirty = true
}

// Clear removes all keys below and including `key`.
func (mdb *MemoryDatabase) Clear(key ...string) error {
	prefix := strings.Join(key, "/")
	for mapKey := range mdb.data {
		if strings.HasPrefix(mapKey, prefix) {
			delete(mdb.data, mapKey)
			mdb.dirty = true
		}
	}

	return nil
}

// Keys calls `fn` for all keys below `prefix` in lexical order.
func (mdb *MemoryDatabase) Keys(fn func(key []string) error, prefix ...string) error {
	keys := []string{}
	for key := range mdb.data {
		if hasComponentPrefix(strings.Split(key, "/"), prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	for _, key := range keys {
		if err := fn(strings.Split(key, "/")); err != nil {
			return err
		}
	}

	return nil
}

// Close is a no-op for a memory database.
func (mdb *MemoryDatabase) Close() error {
	return nil
}

// hasComponentPrefix matches whole key components, so the prefix
// ["a", "b"] matches "a/b/c" but not "a/bc".
func hasComponentPrefix(key, prefix []string) bool {
	if len(key) < len(prefix) {
		return false
	}

	for idx, component := range prefix {
		if key[idx] != component {
			return false
		}
	}

	return true
}
