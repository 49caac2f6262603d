package compress

import (
	"bytes"
	"errors"
	"io"

	"github.com/sahib/skiff/util"
)

// maxZipChunkSize bounds the compressed size of a single chunk, with
// headroom for algorithms that blow up incompressible data.
const maxZipChunkSize = maxChunkSize + maxChunkSize/2

var (
	// ErrChunkTooBig is returned when a chunk header announces more
	// data than maxZipChunkSize. It hints at a corrupt stream.
	ErrChunkTooBig = errors.New("compressed chunk exceeds max chunk size")
)

// Reader decompresses the stream produced by Writer.
type Reader struct {
	r    io.Reader
	algo Algorithm

	// Compressed chunk, reused between reads
	zipBuf []byte

	// Decompressed bytes not yet handed out
	backlog *bytes.Reader
}

// NewReader returns a reader that decompresses the stream in `r`.
// The algorithm has to match the one the stream was written with.
func NewReader(r io.Reader, algoType AlgorithmType) (*Reader, error) {
	algo, err := AlgorithmFromType(algoType)
	if err != nil {
		return nil, err
	}

	return &Reader{
		r:       r,
		algo:    algo,
		zipBuf:  make([]byte, maxZipChunkSize),
		backlog: bytes.NewReader(nil),
	}, nil
}

// Read decompresses chunk after chunk. If `buf` is too small to hold a
// whole chunk, the rest is cached for the next call.
func (zr *Reader) Read(buf []byte) (int, error) {
	readBytes := 0

	for readBytes < len(buf) {
		if zr.backlog.Len() == 0 {
			if err := zr.readChunk(); err != nil {
				if err == io.EOF && readBytes > 0 {
					return readBytes, nil
				}

				return readBytes, err
			}
		}

		n, _ := zr.backlog.Read(buf[readBytes:])
		readBytes += n
	}

	return readBytes, nil
}

// readChunk fills the backlog with the next decompressed chunk.
func (zr *Reader) readChunk() error {
	// A clean EOF at the header position is the end of the stream:
	zipLen, err := util.ReadUvarint(zr.r)
	if err != nil {
		return err
	}

	if zipLen > maxZipChunkSize {
		return ErrChunkTooBig
	}

	if _, err := io.ReadFull(zr.r, zr.zipBuf[:zipLen]); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}

		return err
	}

	data, err := zr.algo.Decode(zr.zipBuf[:zipLen])
	if err != nil {
		return err
	}

	// The backlog is fully drained before the next readChunk call,
	// so handing out a slice of zipBuf (AlgoNone) is fine.
	zr.backlog.Reset(data)
	return nil
}
