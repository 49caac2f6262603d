package db

import (
	"strings"
	"sync"

	"github.com/dgraph-io/badger"
	log "github.com/sirupsen/logrus"
)

// BadgerDatabase is a Database powered by badger. It is the store
// used by real repositories.
type BadgerDatabase struct {
	mu         sync.Mutex
	db         *badger.DB
	txn        *badger.Txn
	refCount   int
	haveWrites bool
}

// NewBadgerDatabase opens (or creates) a badger database at `path`.
func NewBadgerDatabase(path string) (*BadgerDatabase, error) {
	opts := badger.DefaultOptions(path)

	// badger is very chatty on its default level.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerDatabase{
		db: db,
	}, nil
}

// view runs `fn` on the open batch transaction if there is one.
// Otherwise values put since the last flush would be invisible.
func (db *BadgerDatabase) view(fn func(txn *badger.Txn) error) error {
	if db.txn != nil {
		return fn(db.txn)
	}

	return db.db.View(fn)
}

// Get returns the value at `key`.
func (db *BadgerDatabase) Get(key ...string) ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var data []byte
	err := db.view(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(strings.Join(key, "/")))
		if err == badger.ErrKeyNotFound {
			return ErrNoSuchKey
		}

		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	return data, nil
}

// Keys calls `fn` for all keys below `prefix` in lexical order.
func (db *BadgerDatabase) Keys(fn func(key []string) error, prefix ...string) error {
	db.mu.Lock()

	keys := [][]string{}
	fullPrefix := []byte(strings.Join(prefix, "/"))

	err := db.view(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.IteratorOptions{})
		defer iter.Close()

		for iter.Seek(fullPrefix); iter.ValidForPrefix(fullPrefix); iter.Next() {
			splitKey := strings.Split(string(iter.Item().KeyCopy(nil)), "/")
			if hasComponentPrefix(splitKey, prefix) {
				keys = append(keys, splitKey)
			}
		}

		return nil
	})

	// Call fn without the lock held, it might want to Get().
	db.mu.Unlock()

	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := fn(key); err != nil {
			return err
		}
	}

	return nil
}

// Batch starts (or joins) a transaction.
func (db *BadgerDatabase) Batch() Batch {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.txn == nil {
		db.txn = db.db.NewTransaction(true)
	}

	db.refCount++
	return db
}

// Put sets `key` to `val` inside the open batch.
func (db *BadgerDatabase) Put(val []byte, key ...string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.txn.Set([]byte(strings.Join(key, "/")), val); err != nil {
		log.Errorf("badger: put failed: %v", err)
		return
	}

	db.haveWrites = true
}

// Erase removes `key` inside the open batch.
func (db *BadgerDatabase) Erase(key ...string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.txn.Delete([]byte(strings.Join(key, "/"))); err != nil {
		log.Errorf("badger: delete failed: %v", err)
		return
	}

	db.haveWrites = true
}

// Clear removes all keys below and including `key`.
func (db *BadgerDatabase) Clear(key ...string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	fullPrefix := []byte(strings.Join(key, "/"))

	// Collect first; deleting while iterating is not allowed.
	keys := [][]byte{}
	iter := db.txn.NewIterator(badger.IteratorOptions{})

	for iter.Seek(fullPrefix); iter.ValidForPrefix(fullPrefix); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}

	iter.Close()

	for _, fullKey := range keys {
		if err := db.txn.Delete(fullKey); err != nil {
			return err
		}

		db.haveWrites = true
	}

	return nil
}

// Flush commits the transaction once the last batch holder flushed.
func (db *BadgerDatabase) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.refCount--
	if db.refCount > 0 {
		return nil
	}

	if db.refCount < 0 {
		log.Errorf("badger: negative batch ref count: %d", db.refCount)
		db.refCount = 0
		return nil
	}

	defer db.txn.Discard()
	if err := db.txn.Commit(); err != nil {
		return err
	}

	db.txn = nil
	db.haveWrites = false
	return nil
}

// Rollback discards the transaction with everything in it.
func (db *BadgerDatabase) Rollback() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.refCount--
	if db.refCount > 0 {
		return
	}

	if db.refCount < 0 {
		log.Errorf("badger: negative batch ref count: %d", db.refCount)
	}

	db.txn.Discard()
	db.txn = nil
	db.haveWrites = false
	db.refCount = 0
}

// HaveWrites returns true when the open batch holds changes.
func (db *BadgerDatabase) HaveWrites() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.haveWrites
}

// Close discards any open transaction and closes the store.
func (db *BadgerDatabase) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	// With an open transaction Close() would deadlock:
	if db.txn != nil {
		db.txn.Discard()
		db.txn = nil
		db.haveWrites = false
		db.refCount = 0
	}

	if db.db != nil {
		oldDb := db.db
		db.db = nil
		if err := oldDb.Close(); err != nil {
			return err
		}
	}

	return nil
}
