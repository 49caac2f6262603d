package compress

import (
	"io"

	"github.com/sahib/skiff/util"
)

// maxChunkSize is the max. number of raw bytes going into one chunk.
const maxChunkSize = 64 * 1024

// Writer compresses the data written to it chunk by chunk and forwards
// the compressed chunks to the underlying writer.
type Writer struct {
	w    io.Writer
	algo Algorithm

	// Raw data collected until a full chunk can be flushed
	buf []byte
}

// NewWriter returns a writer that compresses everything written to it
// with the algorithm behind `algoType`.
func NewWriter(w io.Writer, algoType AlgorithmType) (*Writer, error) {
	algo, err := AlgorithmFromType(algoType)
	if err != nil {
		return nil, err
	}

	return &Writer{
		w:    w,
		algo: algo,
		buf:  make([]byte, 0, maxChunkSize),
	}, nil
}

func (zw *Writer) Write(buf []byte) (int, error) {
	written := len(buf)

	for len(buf) > 0 {
		n := maxChunkSize - len(zw.buf)
		if n > len(buf) {
			n = len(buf)
		}

		zw.buf = append(zw.buf, buf[:n]...)
		buf = buf[n:]

		// Only flush full chunks; the short one is written on Close.
		if len(zw.buf) == maxChunkSize {
			if err := zw.flushChunk(); err != nil {
				return 0, err
			}
		}
	}

	return written, nil
}

func (zw *Writer) flushChunk() error {
	zipData, err := zw.algo.Encode(zw.buf)
	if err != nil {
		return err
	}

	if err := util.WriteUvarint(zw.w, uint64(len(zipData))); err != nil {
		return err
	}

	if _, err := zw.w.Write(zipData); err != nil {
		return err
	}

	zw.buf = zw.buf[:0]
	return nil
}

// Close flushes the last, possibly shorter chunk. It does not close
// the underlying writer. Calling Close twice is a no-op.
func (zw *Writer) Close() error {
	if len(zw.buf) == 0 {
		return nil
	}

	return zw.flushChunk()
}
