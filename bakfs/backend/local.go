package backend

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	e "github.com/pkg/errors"
)

// LocalBackend stores each bundle as one file below a root directory.
type LocalBackend struct {
	root string
}

// NewLocalBackend opens a local backend rooted at `root`, creating
// the directory when needed.
func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, e.Wrapf(err, "failed to create bundle root")
	}

	return &LocalBackend{root: root}, nil
}

func (lb *LocalBackend) bundlePath(id uint64) string {
	return filepath.Join(lb.root, fmt.Sprintf("%016x.bun", id))
}

// CreateBundle starts the new bundle `id`. An existing file of the
// same id can only be the leftover of a rolled back generation; its id
// was never committed, so it is safe to take over.
func (lb *LocalBackend) CreateBundle(id uint64) (BundleWriter, error) {
	fd, err := os.OpenFile(lb.bundlePath(id), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, e.Wrapf(err, "failed to create bundle %d", id)
	}

	return &localBundleWriter{fd: fd}, nil
}

// OpenBundle opens bundle `id` at physical offset `off`.
func (lb *LocalBackend) OpenBundle(id, off uint64) (io.ReadCloser, error) {
	fd, err := os.Open(lb.bundlePath(id))
	if err != nil {
		return nil, e.Wrapf(err, "failed to open bundle %d", id)
	}

	if _, err := fd.Seek(int64(off), io.SeekStart); err != nil {
		fd.Close()
		return nil, e.Wrapf(err, "failed to seek in bundle %d", id)
	}

	return fd, nil
}

type localBundleWriter struct {
	fd  *os.File
	off uint64
}

func (bw *localBundleWriter) Write(data []byte) (int, error) {
	n, err := bw.fd.Write(data)
	bw.off += uint64(n)
	return n, err
}

func (bw *localBundleWriter) Tell() uint64 {
	return bw.off
}

// Close syncs the bundle to disk. The caller commits its metadata
// only afterwards, so a crash never leaves metadata pointing at
// bytes that were not written.
func (bw *localBundleWriter) Close() error {
	if err := bw.fd.Sync(); err != nil {
		bw.fd.Close()
		return err
	}

	return bw.fd.Close()
}
