// Package filelock guards filesystem resources against concurrent use
// by different processes via a pid lock file.
package filelock

import (
	"sync"

	"github.com/nightlyone/lockfile"
)

// ErrBusy is returned by TryAcquire when somebody else
// holds the lock already.
var ErrBusy = lockfile.ErrBusy

var (
	heldMu sync.Mutex
	held   = map[string]bool{}
)

// TryAcquire takes the lock at `lockPath` without blocking.
// The pid file alone would let the same process take a lock twice,
// so locks held by ourselves count as busy too. Stale locks of dead
// processes are cleaned up along the way. `lockPath` must be absolute.
func TryAcquire(lockPath string) error {
	heldMu.Lock()
	defer heldMu.Unlock()

	if held[lockPath] {
		return ErrBusy
	}

	lock, err := lockfile.New(lockPath)
	if err != nil {
		return err
	}

	if err := lock.TryLock(); err != nil {
		return err
	}

	held[lockPath] = true
	return nil
}

// Release removes the lock file at `lockPath`.
func Release(lockPath string) error {
	heldMu.Lock()
	defer heldMu.Unlock()

	lock, err := lockfile.New(lockPath)
	if err != nil {
		return err
	}

	if err := lock.Unlock(); err != nil {
		return err
	}

	delete(held, lockPath)
	return nil
}
