package blockmap

import (
	"errors"
	"fmt"
	"io"

	"github.com/sahib/skiff/util"
)

// ErrVersion is returned when the version bit, or any flag this
// implementation does not know about, is set. The caller should
// surface it as corrupt (or too new) backup metadata.
var ErrVersion = errors.New("unsupported block map version")

// Decode reads a map written by Encode back from `r`. Block size and
// checksum width have to match the ones used for encoding; both are
// fixed per repository and travel in the generation metadata.
//
// Unlike Encode, which panics on bad input, Decode returns errors:
// its input comes from storage and may be damaged by the world.
// Truncated input surfaces as io.ErrUnexpectedEOF; io.EOF is only
// returned for completely empty input.
func Decode(r io.Reader, blockSize uint64, sumSize int) (Map, error) {
	if blockSize == 0 {
		panic("bug: zero block size")
	}

	flags, err := util.ReadUvarint(r)
	if err != nil {
		return nil, err
	}

	if flags & ^uint64(flagEqual) != 0 {
		return nil, ErrVersion
	}

	dec := &decoder{
		r:         r,
		blockSize: blockSize,
		sumSize:   sumSize,
		equal:     flags&flagEqual != 0,
		seen:      map[uint64]*refState{},
	}

	return dec.decode()
}

type decoder struct {
	r         io.Reader
	blockSize uint64
	sumSize   int
	equal     bool

	seen map[uint64]*refState

	// Size delta chain state, mirroring the encoder.
	prevSize uint64
	sizedOne bool

	m Map
}

// uvarint reads the next varint, turning a clean EOF into
// io.ErrUnexpectedEOF; inside the stream EOF always means truncation.
func (dec *decoder) uvarint() (uint64, error) {
	v, err := util.ReadUvarint(dec.r)
	if err == io.EOF {
		return 0, io.ErrUnexpectedEOF
	}

	return v, err
}

func (dec *decoder) decode() (Map, error) {
	for {
		head, err := dec.uvarint()
		if err != nil {
			return nil, err
		}

		if err := dec.occurrence(head); err != nil {
			return nil, err
		}

		if head&refBitLast != 0 {
			return dec.m, nil
		}
	}
}

func (dec *decoder) occurrence(head uint64) error {
	ref := head >> refShift

	state, ok := dec.seen[ref]
	if !ok {
		return dec.firstOccurrence(ref, head)
	}

	if head&refBitContinue != 0 {
		return dec.continuation(ref, state, head)
	}

	// Fresh super block of an already known reference; it starts at
	// the cached end, plus a gap when one was encoded.
	offset := state.offset + state.size
	if head&refBitOffGap != 0 {
		gap, err := dec.uvarint()
		if err != nil {
			return err
		}

		offset += gap
	}

	return dec.superBlocks(ref, state, offset, 0)
}

func (dec *decoder) firstOccurrence(ref, head uint64) error {
	var bundle, offset uint64
	var err error

	if head&refBitBundle != 0 {
		if bundle, err = dec.uvarint(); err != nil {
			return err
		}
	}

	if head&refBitOffset != 0 {
		if offset, err = dec.uvarint(); err != nil {
			return err
		}
	}

	// The size class announces the reference's super block size; the
	// first super block entry has to agree with it.
	classSize := uint64(0)
	if !dec.equal {
		sizeClass, err := dec.uvarint()
		if err != nil {
			return err
		}

		classSize = (sizeClass + 1) * dec.blockSize
	}

	state := &refState{bundle: bundle}
	dec.seen[ref] = state

	return dec.superBlocks(ref, state, offset, classSize)
}

func (dec *decoder) continuation(ref uint64, state *refState, head uint64) error {
	// The continued super block reuses the cached offset and size;
	// only its block runs follow.
	if dec.equal {
		return fmt.Errorf("continuation of a block sized super block")
	}

	if err := dec.blockRun(ref, state, state.offset, state.size, true); err != nil {
		return err
	}

	if head&refBitContLast != 0 {
		return nil
	}

	// Fresh super blocks follow the continued run:
	return dec.superBlocks(ref, state, state.offset+state.size, 0)
}

// superBlocks decodes the (rest of the) occurrence's super block
// entries. `offset` is where the first of them sits; every further
// one starts at the end of its predecessor. A non-zero `classSize`
// is checked against the first decoded size.
func (dec *decoder) superBlocks(ref uint64, state *refState, offset, classSize uint64) error {
	for {
		entry, err := dec.uvarint()
		if err != nil {
			return err
		}

		size := dec.blockSize
		if !dec.equal {
			if size, err = dec.size(entry >> 1); err != nil {
				return err
			}
		}

		if classSize != 0 && size != classSize {
			return fmt.Errorf(
				"super block size %d contradicts size class %d",
				size, classSize,
			)
		}
		classSize = 0

		if err := dec.blockRun(ref, state, offset, size, false); err != nil {
			return err
		}

		if entry&sbBitLast != 0 {
			return nil
		}

		offset += size
	}
}

// size undoes sizeField of the encoder: the first size of the stream
// is a literal block count, everything after a zigzag delta to the
// previously decoded size.
func (dec *decoder) size(sizeField uint64) (uint64, error) {
	if !dec.sizedOne {
		dec.sizedOne = true
		dec.prevSize = sizeField * dec.blockSize
	} else {
		size := int64(dec.prevSize) + util.UnZigZag(sizeField)*int64(dec.blockSize)
		if size < 0 {
			return 0, fmt.Errorf("size delta yields negative super block size")
		}

		dec.prevSize = uint64(size)
	}

	if dec.prevSize == 0 {
		return 0, fmt.Errorf("super block of size zero")
	}

	return dec.prevSize, nil
}

func (dec *decoder) blockRun(ref uint64, state *refState, offset, size uint64, continued bool) error {
	counter := uint64(0)
	if continued {
		counter = state.counter
	}

	count := uint64(1)
	if !dec.equal {
		total, err := dec.uvarint()
		if err != nil {
			return err
		}

		count = (total >> 1) + 1
		if total&blkBitGap != 0 {
			gap, err := dec.uvarint()
			if err != nil {
				return err
			}

			counter += gap
		}
	}

	if counter+count > size/dec.blockSize {
		return fmt.Errorf(
			"block run of %d ordinals overflows a %d block super block",
			counter+count, size/dec.blockSize,
		)
	}

	for no := counter; no < counter+count; no++ {
		sum := make([]byte, dec.sumSize)
		if _, err := io.ReadFull(dec.r, sum); err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}

			return err
		}

		dec.m = append(dec.m, Item{
			Block:     no,
			Reference: ref,
			Bundle:    state.bundle,
			Offset:    offset,
			Size:      size,
			Checksum:  sum,
		})
	}

	state.offset = offset
	state.size = size
	state.counter = counter + count
	return nil
}
