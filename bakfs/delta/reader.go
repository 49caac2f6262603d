package delta

import (
	"fmt"
	"io"

	"github.com/sahib/skiff/bakfs/mio"
	"github.com/sahib/skiff/util"
	"github.com/sahib/skiff/util/hashlib"
)

// RestoredBlock is one block pulled out of a read, ready to be
// written to the destination file.
type RestoredBlock struct {
	// Offset in the destination file.
	Offset uint64

	// Data is the block's content. It is owned by the caller.
	Data []byte
}

// Reader walks one read of a delta, surfacing wanted blocks one by
// one. The zero value is ready to use. A Reader holds position state
// between calls; after a read is exhausted it resets itself and can
// be reused for the next read.
type Reader struct {
	sbIdx   int
	blkIdx  int
	counter uint64
	sub     *mio.Reader
}

// Next returns the next wanted block of `rd`, pulling records from
// `src`. `src` must be positioned at the read's start on the first
// call and is consumed up to the end of the read's last super block.
// When the read is exhausted, Next returns (nil, nil) and the Reader
// is ready for another read. Restored blocks are verified against
// their planned checksum unless the delta was built with
// hashlib.None.
func (r *Reader) Next(d *Delta, rd *Read, src io.Reader) (*RestoredBlock, error) {
	for {
		if r.sbIdx >= len(rd.SuperBlocks) {
			r.sbIdx = 0
			return nil, nil
		}

		sb := &rd.SuperBlocks[r.sbIdx]

		if r.sub == nil {
			sub, err := mio.NewReader(src, d.stream)
			if err != nil {
				return nil, err
			}

			r.sub = sub
			r.counter = 0
			r.blkIdx = 0
		}

		header, err := util.ReadUvarint(r.sub)
		if err == io.EOF {
			// The sub stream ended at a record boundary; the super
			// block is done.
			if err := r.endSuperBlock(sb); err != nil {
				return nil, err
			}

			continue
		}

		if err != nil {
			return nil, err
		}

		if header == 0 && r.counter > 0 {
			// End of super block sentinel.
			if err := r.endSuperBlock(sb); err != nil {
				return nil, err
			}

			continue
		}

		no := header >> 1
		size := d.blockSize
		final := header&1 != 0

		if final {
			size, err = util.ReadUvarint(r.sub)
			if err != nil {
				return nil, unexpectEOF(err)
			}
		}

		if no != r.counter {
			return nil, fmt.Errorf("corrupt super block: record %d where %d was expected", no, r.counter)
		}

		r.counter++

		if r.blkIdx >= len(sb.Blocks) || sb.Blocks[r.blkIdx].No != no {
			// Not wanted. Records are self describing, so the data
			// can be skipped without looking at it.
			if _, err := io.CopyN(io.Discard, r.sub, int64(size)); err != nil {
				return nil, unexpectEOF(err)
			}

			if final {
				if err := r.endSuperBlock(sb); err != nil {
					return nil, err
				}
			}

			continue
		}

		block := &sb.Blocks[r.blkIdx]

		data := make([]byte, size)
		if _, err := io.ReadFull(r.sub, data); err != nil {
			return nil, unexpectEOF(err)
		}

		if d.sum != hashlib.None {
			if !hashlib.Equal(hashlib.Sum(d.sum, data), block.Checksum) {
				return nil, fmt.Errorf(
					"checksum mismatch in block %d of read at %d",
					no, rd.Offset,
				)
			}
		}

		r.blkIdx++

		if final || r.blkIdx >= len(sb.Blocks) {
			if err := r.endSuperBlock(sb); err != nil {
				return nil, err
			}
		}

		return &RestoredBlock{
			Offset: block.Offset,
			Data:   data,
		}, nil
	}
}

// endSuperBlock closes the current sub stream, leaving `src` at the
// next super block, and advances to it. A super block may only end
// once all of its wanted blocks were surfaced.
func (r *Reader) endSuperBlock(sb *SuperBlock) error {
	if r.blkIdx < len(sb.Blocks) {
		return fmt.Errorf(
			"corrupt super block: ended with %d of %d wanted blocks missing",
			len(sb.Blocks)-r.blkIdx, len(sb.Blocks),
		)
	}

	if err := r.sub.Close(); err != nil {
		return err
	}

	r.sub = nil
	r.sbIdx++
	r.counter = 0
	r.blkIdx = 0
	return nil
}

func unexpectEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}

	return err
}
