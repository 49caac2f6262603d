package util

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrVarintOverflow is returned when a read number does not fit in 64 bit.
var ErrVarintOverflow = errors.New("varint overflows a 64-bit integer")

// WriteUvarint writes `v` as unsigned LEB128 to `w`.
func WriteUvarint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

// ReadUvarint reads a single unsigned LEB128 number from `r`.
//
// It reads byte by byte and consumes nothing beyond the number itself.
// That property matters: varints are often embedded in framed streams
// where reading ahead would eat the next frame.
func ReadUvarint(r io.Reader) (uint64, error) {
	var x uint64
	var s uint
	var buf [1]byte

	for i := 0; ; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if i > 0 && err == io.EOF {
				// Number started, but was cut off.
				err = io.ErrUnexpectedEOF
			}

			return 0, err
		}

		b := buf[0]
		if i == binary.MaxVarintLen64-1 && b > 1 {
			return 0, ErrVarintOverflow
		}

		if b < 0x80 {
			return x | uint64(b)<<s, nil
		}

		x |= uint64(b&0x7f) << s
		s += 7
	}
}

// ZigZag folds a signed number into an unsigned one so that values with
// a small absolute value stay small when varint encoded.
func ZigZag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// UnZigZag is the inverse of ZigZag.
func UnZigZag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// WriteVarint writes `v` zigzag folded to `w`.
func WriteVarint(w io.Writer, v int64) error {
	return WriteUvarint(w, ZigZag(v))
}

// ReadVarint reads a zigzag folded number from `r`.
func ReadVarint(r io.Reader) (int64, error) {
	u, err := ReadUvarint(r)
	if err != nil {
		return 0, err
	}

	return UnZigZag(u), nil
}
