package blockmap

import (
	"errors"
	"fmt"
	"io"

	"github.com/sahib/skiff/util"
)

// ErrEmpty is returned when an empty map is encoded. Files without
// content have no map at all, only metadata.
var ErrEmpty = errors.New("refusing to encode an empty block map")

// Encode writes `m` to `w`.
//
// The stream starts with a flags varint (version and the "equal" bit,
// the latter set when every super block spans exactly one block).
// After that the map is cut into occurrences: maximal runs of map
// positions owned by one reference. Every occurrence starts with a
// head varint `reference<<3 | bits`:
//
//   - On the reference's first occurrence the bits announce an
//     optional bundle id and an optional stream offset; a size class
//     varint `size/blockSize - 1` follows unless "equal" is set.
//   - Later occurrences either continue the reference's cached super
//     block (reusing its offset and size without re-encoding them) or
//     start a fresh one, optionally after an offset gap varint.
//
// A super block entry is `sizeField<<1 | last`. The very first size
// of the stream is literal (in block units), every following one is
// the zigzag delta to the previously encoded size; deltas run across
// references, since neighbouring super blocks tend to be equally
// sized. Unless "equal" is set, a block total `count-1<<1 | hasGap`
// (plus the ordinal gap, if any) follows, then `count` raw checksums.
// Super blocks after the first of an occurrence start where the
// previous one ended, so their offsets are not encoded at all.
//
// Encode panics when `m` is inconsistent (sizes that are no positive
// multiple of the block size, items of one super block disagreeing
// about offset, size or bundle, ordinals or offsets running
// backwards). Such maps cannot come out of the backup writer or
// Decode, so hitting this is a bug in the producer, not bad input.
func Encode(w io.Writer, m Map, blockSize uint64) error {
	if len(m) == 0 {
		return ErrEmpty
	}

	if blockSize == 0 {
		panic("bug: zero block size")
	}

	enc := &encoder{
		w:         w,
		blockSize: blockSize,
		equal:     allBlockSized(m, blockSize),
		seen:      map[uint64]*refState{},
	}

	enc.validate(m)
	return enc.encode(m)
}

type encoder struct {
	w         io.Writer
	blockSize uint64
	equal     bool

	// Per reference cache, keyed by reference id, scoped to one pass.
	seen map[uint64]*refState

	// Size delta chain state: the last explicitly encoded super block
	// size. Continued super blocks do not advance it.
	prevSize uint64
	sizedOne bool
}

func allBlockSized(m Map, blockSize uint64) bool {
	for idx := range m {
		if m[idx].Size != blockSize {
			return false
		}
	}

	return true
}

// validate panics on the per item inconsistencies that can be caught
// without walking the occurrence structure. Everything structural
// (offset monotony, ordinal order, bundle constancy) is asserted
// while encoding.
func (enc *encoder) validate(m Map) {
	sumSize := len(m[0].Checksum)
	for idx := range m {
		item := &m[idx]
		if len(item.Checksum) != sumSize {
			panic(fmt.Sprintf(
				"bug: checksum width changes at position %d: %d != %d",
				idx, len(item.Checksum), sumSize,
			))
		}

		if item.Size == 0 || item.Size%enc.blockSize != 0 {
			panic(fmt.Sprintf(
				"bug: super block size %d is no positive multiple of %d",
				item.Size, enc.blockSize,
			))
		}

		if item.Block >= item.Size/enc.blockSize {
			panic(fmt.Sprintf(
				"bug: block ordinal %d outside its %d block super block",
				item.Block, item.Size/enc.blockSize,
			))
		}
	}
}

func (enc *encoder) encode(m Map) error {
	flags := uint64(0)
	if enc.equal {
		flags |= flagEqual
	}

	if err := util.WriteUvarint(enc.w, flags); err != nil {
		return err
	}

	for start := 0; start < len(m); {
		end := start + 1
		for end < len(m) && m[end].Reference == m[start].Reference {
			end++
		}

		if err := enc.occurrence(m[start:end], end == len(m)); err != nil {
			return err
		}

		start = end
	}

	return nil
}

func (enc *encoder) occurrence(items Map, occLast bool) error {
	first := &items[0]
	ref := first.Reference

	head := ref << refShift
	if occLast {
		head |= refBitLast
	}

	state, ok := enc.seen[ref]
	if !ok {
		// First occurrence: introduce bundle, offset and size class.
		if first.Bundle != 0 {
			head |= refBitBundle
		}

		if first.Offset != 0 {
			head |= refBitOffset
		}

		if err := util.WriteUvarint(enc.w, head); err != nil {
			return err
		}

		if first.Bundle != 0 {
			if err := util.WriteUvarint(enc.w, first.Bundle); err != nil {
				return err
			}
		}

		if first.Offset != 0 {
			if err := util.WriteUvarint(enc.w, first.Offset); err != nil {
				return err
			}
		}

		if !enc.equal {
			sizeClass := first.Size/enc.blockSize - 1
			if err := util.WriteUvarint(enc.w, sizeClass); err != nil {
				return err
			}
		}

		state = &refState{bundle: first.Bundle}
		enc.seen[ref] = state

		return enc.superBlocks(items, state, first.Offset)
	}

	if first.Offset == state.offset {
		// Continuation of the cached super block.
		if enc.equal || state.size == enc.blockSize {
			panic("bug: continuation of a block sized super block")
		}

		if first.Size != state.size {
			panic(fmt.Sprintf(
				"bug: continued super block changed size: %d != %d",
				first.Size, state.size,
			))
		}

		contEnd := 1
		for contEnd < len(items) && items[contEnd].Offset == first.Offset {
			contEnd++
		}

		head |= refBitContinue
		if contEnd == len(items) {
			head |= refBitContLast
		}

		if err := util.WriteUvarint(enc.w, head); err != nil {
			return err
		}

		if err := enc.blockRun(items[:contEnd], state, true); err != nil {
			return err
		}

		if contEnd == len(items) {
			return nil
		}

		return enc.superBlocks(items[contEnd:], state, state.offset+state.size)
	}

	// Later occurrence at a fresh super block. The offset may only
	// move forward; the gap to the cached end is encoded when set.
	end := state.offset + state.size
	if first.Offset < end {
		panic(fmt.Sprintf(
			"bug: offset of reference %d runs backwards: %d < %d",
			ref, first.Offset, end,
		))
	}

	gap := first.Offset - end
	if gap > 0 {
		head |= refBitOffGap
	}

	if err := util.WriteUvarint(enc.w, head); err != nil {
		return err
	}

	if gap > 0 {
		if err := util.WriteUvarint(enc.w, gap); err != nil {
			return err
		}
	}

	return enc.superBlocks(items, state, first.Offset)
}

// superBlocks encodes the (rest of the) occurrence as a sequence of
// fresh super blocks. `offset` is where the first of them has to sit.
func (enc *encoder) superBlocks(items Map, state *refState, offset uint64) error {
	for start := 0; start < len(items); {
		sb := &items[start]
		if sb.Offset != offset {
			panic(fmt.Sprintf(
				"bug: super block at %d, expected %d: occurrence not contiguous",
				sb.Offset, offset,
			))
		}

		end := start + 1
		for end < len(items) && items[end].Offset == sb.Offset {
			end++
		}

		entry := uint64(0)
		if !enc.equal {
			entry = enc.sizeField(sb.Size) << 1
		}

		if end == len(items) {
			entry |= sbBitLast
		}

		if err := util.WriteUvarint(enc.w, entry); err != nil {
			return err
		}

		state.offset = sb.Offset
		state.size = sb.Size
		state.counter = 0

		if err := enc.blockRun(items[start:end], state, false); err != nil {
			return err
		}

		offset = sb.Offset + sb.Size
		start = end
	}

	return nil
}

// sizeField yields the wire form of a super block size: the literal
// block count for the stream's first size, the zigzagged delta to the
// previously encoded size afterwards.
func (enc *encoder) sizeField(size uint64) uint64 {
	if !enc.sizedOne {
		enc.sizedOne = true
		enc.prevSize = size
		return size / enc.blockSize
	}

	delta := (int64(size) - int64(enc.prevSize)) / int64(enc.blockSize)
	enc.prevSize = size
	return util.ZigZag(delta)
}

// blockRun encodes one run of blocks of the current super block: the
// block total with an optional leading ordinal gap, then the raw
// checksums. `continued` keeps the ordinal counter of the cached
// super block instead of starting at zero.
func (enc *encoder) blockRun(items Map, state *refState, continued bool) error {
	if !continued {
		state.counter = 0
	}

	first := &items[0]
	if first.Block < state.counter {
		panic(fmt.Sprintf(
			"bug: block ordinal %d runs backwards (counter %d)",
			first.Block, state.counter,
		))
	}

	for idx := 1; idx < len(items); idx++ {
		if items[idx].Block != items[idx-1].Block+1 {
			panic(fmt.Sprintf(
				"bug: block ordinals not consecutive: %d after %d",
				items[idx].Block, items[idx-1].Block,
			))
		}

		if items[idx].Size != first.Size || items[idx].Bundle != first.Bundle {
			panic("bug: items of one super block disagree about size or bundle")
		}
	}

	if first.Bundle != state.bundle {
		panic(fmt.Sprintf(
			"bug: bundle changed within reference %d: %d != %d",
			first.Reference, first.Bundle, state.bundle,
		))
	}

	count := uint64(len(items))
	gap := first.Block - state.counter

	if last := first.Block + count; last > first.Size/enc.blockSize {
		panic(fmt.Sprintf(
			"bug: %d blocks do not fit a %d block super block",
			last, first.Size/enc.blockSize,
		))
	}

	if !enc.equal {
		total := (count - 1) << 1
		if gap > 0 {
			total |= blkBitGap
		}

		if err := util.WriteUvarint(enc.w, total); err != nil {
			return err
		}

		if gap > 0 {
			if err := util.WriteUvarint(enc.w, gap); err != nil {
				return err
			}
		}
	}

	for idx := range items {
		if _, err := enc.w.Write(items[idx].Checksum); err != nil {
			return err
		}
	}

	state.counter = first.Block + count
	return nil
}
