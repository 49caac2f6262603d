// Package delta computes and executes restore plans.
//
// Build diffs a block map against the checksums of a prior state and
// compiles the changed blocks into an ordered plan of reads against
// the stored backup streams. The Reader then walks one read at a
// time, pulling exactly the wanted blocks out of the super block
// record streams. Between them sits the record format: the payload of
// every super block is a sequence of block records written by
// RecordWriter and consumed by the Reader.
package delta

import (
	"sort"

	"github.com/sahib/skiff/bakfs/blockmap"
	"github.com/sahib/skiff/bakfs/mio"
	"github.com/sahib/skiff/util/hashlib"
)

// Block is one wanted block inside a super block.
type Block struct {
	// No is the block's ordinal inside its super block.
	No uint64

	// Offset is the block's target offset in the destination file.
	Offset uint64

	// Checksum is the expected digest of the block's content.
	Checksum []byte
}

// SuperBlock is one super block a read passes through, with the
// blocks wanted from it.
type SuperBlock struct {
	// Size is the super block's span in the stored stream.
	Size uint64

	// Blocks are the wanted blocks, ascending by ordinal. Ordinals
	// may have holes; unwanted records are skipped while reading.
	Blocks []Block
}

// Read is one contiguous stretch of stored stream to fetch: super
// blocks that sit directly behind each other and all contain wanted
// blocks. Reads never span reference or bundle boundaries.
type Read struct {
	// Reference is the generation that stores this stretch.
	Reference uint64

	// Bundle is the bundle holding that generation's stream.
	Bundle uint64

	// Offset is the stretch's start in the stored stream.
	Offset uint64

	// Size is the sum of the super block sizes of this read.
	Size uint64

	// SuperBlocks in stream order.
	SuperBlocks []SuperBlock
}

// Delta is the complete restore plan for one file.
type Delta struct {
	// Reads, ordered by descending reference: newer generations are
	// fetched first. The order matters only for I/O batching; which
	// reference owns a position was already decided by the map.
	Reads []Read

	blockSize uint64
	stream    mio.StreamConfig
	sum       hashlib.Kind
}

// BlockCount returns the total number of blocks the plan restores.
func (d *Delta) BlockCount() int {
	count := 0
	for idxRead := range d.Reads {
		for idxSB := range d.Reads[idxRead].SuperBlocks {
			count += len(d.Reads[idxRead].SuperBlocks[idxSB].Blocks)
		}
	}

	return count
}

// Build compiles the restore plan: every position of `m` whose
// checksum differs from `prior` at the same position (or that has no
// prior entry at all) becomes a wanted block. Wanted blocks are
// grouped by reference, ordered by descending reference, and merged
// into reads of directly adjacent super blocks. Positions whose
// checksum matches are not read at all.
//
// `prior` is the destination's current per block checksum list; for a
// restore from scratch it is empty and every block is wanted.
// `stream` and `sum` are the stream settings of the file's backup
// chain; the Reader later uses them to open sub streams and to verify
// restored blocks.
func Build(m blockmap.Map, prior [][]byte, blockSize uint64, stream mio.StreamConfig, sum hashlib.Kind) (*Delta, error) {
	if err := stream.Validate(); err != nil {
		return nil, err
	}

	if !sum.IsValid() {
		return nil, hashlib.ErrBadKind
	}

	d := &Delta{
		blockSize: blockSize,
		stream:    stream,
		sum:       sum,
	}

	// Group the changed positions by reference, keeping position
	// order inside every group.
	groups := map[uint64][]int{}
	refs := []uint64{}

	for pos := range m {
		if pos < len(prior) && hashlib.Equal(m[pos].Checksum, prior[pos]) {
			continue
		}

		ref := m[pos].Reference
		if _, ok := groups[ref]; !ok {
			refs = append(refs, ref)
		}

		groups[ref] = append(groups[ref], pos)
	}

	// Newest references first. This orders I/O only; precedence of
	// overlapping data was resolved when the map was built.
	sort.Slice(refs, func(i, j int) bool {
		return refs[i] > refs[j]
	})

	for _, ref := range refs {
		d.appendGroup(m, groups[ref], blockSize)
	}

	return d, nil
}

// appendGroup cuts one reference's wanted positions into reads and
// super blocks. A new read starts whenever the containing super block
// is not the previous one and does not start where the previous one
// ends; a new super block starts whenever the offset changes.
func (d *Delta) appendGroup(m blockmap.Map, positions []int, blockSize uint64) {
	var read *Read
	var sb *SuperBlock
	var prev *blockmap.Item

	for _, pos := range positions {
		item := &m[pos]

		adjacent := prev != nil &&
			prev.Bundle == item.Bundle &&
			(prev.Offset == item.Offset || prev.Offset+prev.Size == item.Offset)

		if !adjacent {
			d.Reads = append(d.Reads, Read{
				Reference: item.Reference,
				Bundle:    item.Bundle,
				Offset:    item.Offset,
			})
			read = &d.Reads[len(d.Reads)-1]
			sb = nil
		}

		if sb == nil || prev.Offset != item.Offset {
			read.SuperBlocks = append(read.SuperBlocks, SuperBlock{
				Size: item.Size,
			})
			sb = &read.SuperBlocks[len(read.SuperBlocks)-1]
			read.Size += item.Size
		}

		sb.Blocks = append(sb.Blocks, Block{
			No:       item.Block,
			Offset:   uint64(pos) * blockSize,
			Checksum: item.Checksum,
		})

		prev = item
	}
}
