// Package chunk implements the framing layer of skiff.
//
// A chunked stream is a sequence of frames, each prefixed with its
// payload length as uvarint. A zero length frame terminates the stream:
//
// [[SIZE][PAYLOAD]]...[0]
//
// The framing exists so several independent streams can live back to
// back in a single bundle file. The reader consumes the varint header
// byte by byte and never reads past the terminator, so the underlying
// reader is left positioned exactly at the start of the next stream.
package chunk

import (
	"errors"
	"io"

	"github.com/sahib/skiff/util"
)

// MaxFrameSize is the max. number of payload bytes in a single frame.
// Larger writes are split over several frames.
const MaxFrameSize = 64 * 1024

var (
	// ErrFrameTooBig is returned when a frame header announces more
	// payload than MaxFrameSize. It hints at a corrupt or foreign stream.
	ErrFrameTooBig = errors.New("frame exceeds max frame size")

	// ErrMissingTerminator is returned when the underlying stream ends
	// before the zero frame was seen.
	ErrMissingTerminator = errors.New("stream ended before chunk terminator")
)

// Writer wraps everything written to it into frames.
type Writer struct {
	w      io.Writer
	closed bool
}

// NewWriter returns a writer that frames all writes onto `w`.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write sends `buf` as one or more frames to the underlying writer.
// Empty writes produce no frame, since a zero sized frame would
// terminate the stream early.
func (cw *Writer) Write(buf []byte) (int, error) {
	written := 0
	for len(buf) > 0 {
		n := len(buf)
		if n > MaxFrameSize {
			n = MaxFrameSize
		}

		if err := util.WriteUvarint(cw.w, uint64(n)); err != nil {
			return written, err
		}

		if _, err := cw.w.Write(buf[:n]); err != nil {
			return written, err
		}

		written += n
		buf = buf[n:]
	}

	return written, nil
}

// Close writes the terminating zero frame. It does not close the
// underlying writer; more streams may follow in the same file.
// Calling Close twice is a no-op.
func (cw *Writer) Close() error {
	if cw.closed {
		return nil
	}

	cw.closed = true
	return util.WriteUvarint(cw.w, 0)
}

// Reader undoes the framing of Writer. Read returns io.EOF once the
// terminator was seen.
type Reader struct {
	r       io.Reader
	frame   []byte
	backlog []byte
	done    bool
}

// NewReader returns a reader that unframes the stream in `r`.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// readFrame pulls the next frame into the backlog.
// It returns io.EOF when the terminator was read.
func (cr *Reader) readFrame() error {
	size, err := util.ReadUvarint(cr.r)
	if err == io.EOF {
		// A well formed stream always closes with a zero frame.
		return ErrMissingTerminator
	}

	if err != nil {
		return err
	}

	if size == 0 {
		cr.done = true
		return io.EOF
	}

	if size > MaxFrameSize {
		return ErrFrameTooBig
	}

	if cr.frame == nil {
		cr.frame = make([]byte, MaxFrameSize)
	}

	if _, err := io.ReadFull(cr.r, cr.frame[:size]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return ErrMissingTerminator
		}

		return err
	}

	cr.backlog = cr.frame[:size]
	return nil
}

func (cr *Reader) Read(buf []byte) (int, error) {
	if cr.done {
		return 0, io.EOF
	}

	if len(cr.backlog) == 0 {
		if err := cr.readFrame(); err != nil {
			return 0, err
		}
	}

	n := copy(buf, cr.backlog)
	cr.backlog = cr.backlog[n:]
	return n, nil
}

// Close drains all frames up to and including the terminator, leaving
// the underlying reader at the start of the following stream. It does
// not close the underlying reader.
func (cr *Reader) Close() error {
	for !cr.done {
		err := cr.readFrame()
		if err == io.EOF {
			break
		}

		if err != nil {
			return err
		}

		cr.backlog = nil
	}

	return nil
}
