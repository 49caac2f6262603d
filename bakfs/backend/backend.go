// Package backend stores bundles, the payload files of a repository.
//
// A bundle is an append only blob of super block streams, created
// once and never rewritten. The backend deals with physical bytes
// only; the mapping from a stream's nominal offsets to physical
// positions is bookkeeping of the owner and lives in its database.
package backend

import "io"

// BundleWriter writes one bundle front to back.
type BundleWriter interface {
	io.Writer

	// Tell returns the physical offset the next Write lands at.
	Tell() uint64

	// Close makes the written data durable.
	Close() error
}

// Backend is the storage for bundles.
type Backend interface {
	// CreateBundle starts the new bundle `id`. Committed bundle ids
	// are never reused; an existing file of the same id can only be
	// the leftover of a rolled back generation and is overwritten.
	CreateBundle(id uint64) (BundleWriter, error)

	// OpenBundle opens bundle `id` for reading, positioned at the
	// physical offset `off`.
	OpenBundle(id, off uint64) (io.ReadCloser, error)
}
