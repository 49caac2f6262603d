package backend

import (
	"bytes"
	"fmt"
	"io"
)

// MemoryBackend keeps all bundles in memory. It is meant for tests.
type MemoryBackend struct {
	bundles map[uint64]*bytes.Buffer
}

// NewMemoryBackend allocates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		bundles: make(map[uint64]*bytes.Buffer),
	}
}

// CreateBundle starts the new bundle `id`. Leftovers of rolled back
// generations are taken over, like the local backend does.
func (mb *MemoryBackend) CreateBundle(id uint64) (BundleWriter, error) {
	buf := &bytes.Buffer{}
	mb.bundles[id] = buf
	return &memoryBundleWriter{buf: buf}, nil
}

// OpenBundle opens bundle `id` at physical offset `off`.
func (mb *MemoryBackend) OpenBundle(id, off uint64) (io.ReadCloser, error) {
	buf, ok := mb.bundles[id]
	if !ok {
		return nil, fmt.Errorf("no bundle %d", id)
	}

	data := buf.Bytes()
	if off > uint64(len(data)) {
		return nil, fmt.Errorf("offset %d beyond bundle %d", off, id)
	}

	return io.NopCloser(bytes.NewReader(data[off:])), nil
}

type memoryBundleWriter struct {
	buf *bytes.Buffer
}

func (bw *memoryBundleWriter) Write(data []byte) (int, error) {
	return bw.buf.Write(data)
}

func (bw *memoryBundleWriter) Tell() uint64 {
	return uint64(bw.buf.Len())
}

func (bw *memoryBundleWriter) Close() error {
	return nil
}
