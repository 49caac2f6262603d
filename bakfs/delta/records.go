package delta

import (
	"fmt"
	"io"

	"github.com/sahib/skiff/util"
)

// RecordWriter writes the payload of one super block: a sequence of
// block records. Each record is a header varint `no<<1 | SIZE`
// followed by the block's raw bytes. The SIZE bit marks a record
// whose length differs from the full block size; an explicit size
// varint follows the header and the record is the super block's final
// one. A super block whose last block is full sized ends with a zero
// sentinel header instead, written by Close.
//
// Block ordinals are implicit: the writer numbers records from zero
// in write order.
type RecordWriter struct {
	w         io.Writer
	blockSize uint64
	counter   uint64
	sealed    bool
	closed    bool
}

// NewRecordWriter returns a writer for one super block's records.
// `blockSize` must match the block size of the containing backup.
func NewRecordWriter(w io.Writer, blockSize uint64) *RecordWriter {
	if blockSize == 0 {
		panic("bug: record writer with zero block size")
	}

	return &RecordWriter{
		w:         w,
		blockSize: blockSize,
	}
}

// WriteBlock appends one block record. A block shorter than the block
// size seals the super block; no further blocks may follow it.
func (rw *RecordWriter) WriteBlock(data []byte) error {
	if rw.sealed || rw.closed {
		panic("bug: block written after the final record")
	}

	size := uint64(len(data))
	if size == 0 || size > rw.blockSize {
		panic(fmt.Sprintf("bug: record of %d bytes with block size %d", size, rw.blockSize))
	}

	header := rw.counter << 1
	if size != rw.blockSize {
		header |= 1
		rw.sealed = true
	}

	if err := util.WriteUvarint(rw.w, header); err != nil {
		return err
	}

	if rw.sealed {
		if err := util.WriteUvarint(rw.w, size); err != nil {
			return err
		}
	}

	if _, err := rw.w.Write(data); err != nil {
		return err
	}

	rw.counter++
	return nil
}

// Close terminates the record sequence. If the super block was not
// already sealed by a short final block, a zero sentinel is written
// so a reader can tell the end without relying on stream boundaries.
// Close never closes the underlying writer.
func (rw *RecordWriter) Close() error {
	if rw.closed {
		return nil
	}

	rw.closed = true
	if rw.sealed || rw.counter == 0 {
		return nil
	}

	return util.WriteUvarint(rw.w, 0)
}
