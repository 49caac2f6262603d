// Package blockmap implements the persisted block map of a file.
//
// A block map records, for every fixed size block of a file, which
// backup generation ("reference") stores the block's current content,
// where the containing super block lives inside that generation's
// stored stream, and the block's checksum. The map is all the
// metadata needed to rebuild a file from a chain of incremental
// backups.
//
// The wire format is a hand rolled varint format that exploits how
// maps look in practice: long runs of one reference, super blocks of
// mostly equal sizes, and block ordinals counting up without holes.
// See Encode and Decode for the exact layout.
package blockmap

// Item is the bookkeeping record of a single block.
type Item struct {
	// Block is the block's ordinal inside its super block. The first
	// block a super block stores has ordinal 0. Ordinals of one super
	// block ascend with the target position, but may have holes where
	// a newer reference superseded single blocks.
	Block uint64

	// Reference is the id of the generation storing the block.
	Reference uint64

	// Bundle is the bundle holding that generation's stream, 0 if none.
	Bundle uint64

	// Offset is the start of the containing super block in the
	// generation's stored stream.
	Offset uint64

	// Size is the span of the containing super block in that stream.
	// Always a positive multiple of the block size; a short final
	// block still counts as a whole one.
	Size uint64

	// Checksum is the digest of the block's content. All checksums
	// of one map have the same width.
	Checksum []byte
}

// Map is a file's complete block map: one item per block, ordered by
// position. The item at index i describes the block at byte offset
// i*blockSize of the file.
type Map []Item

// Checksums returns the per position checksum list of `m`. This is
// the prior state ("delta map") used for change detection against a
// later state of the file.
func (m Map) Checksums() [][]byte {
	sums := make([][]byte, len(m))
	for idx := range m {
		sums[idx] = m[idx].Checksum
	}

	return sums
}

// refState is the per reference cache used during one encode or
// decode pass. Bundle, current super block offset/size and the block
// ordinal counter are recorded once and reused by later occurrences
// of the same reference.
type refState struct {
	bundle  uint64
	offset  uint64 // offset of the reference's current super block
	size    uint64 // size of the reference's current super block
	counter uint64 // ordinal after the current super block's last run
}

// Wire format constants. The reference head packs the reference id
// shifted by refShift over three flag bits; the meaning of the upper
// two depends on whether the reference was seen before in the stream.
const (
	flagVersion = 0x1
	flagEqual   = 0x2

	refShift       = 3
	refBitLast     = 0x1 // the stream's final occurrence
	refBitBundle   = 0x2 // first occurrence: bundle id follows
	refBitContinue = 0x2 // later occurrence: continues the cached super block
	refBitOffset   = 0x4 // first occurrence: offset follows
	refBitOffGap   = 0x4 // later occurrence: offset gap follows
	refBitContLast = 0x4 // continuation: no further super blocks follow

	sbBitLast = 0x1 // the occurrence's final super block
	blkBitGap = 0x1 // leading block ordinals were skipped
)
