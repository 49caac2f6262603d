// Package bakfs implements incremental, block based file backups.
//
// A file is cut into fixed size blocks. Every backup produces a new
// generation: the blocks that changed since the previous generation
// are grouped into super blocks and written, as one stream per super
// block, into a fresh bundle in the backend. A block map per
// generation remembers for every block position which generation's
// super block holds its current content. Restoring diffs the map
// against the restore target and fetches only the blocks the target
// does not already have.
package bakfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/sahib/skiff/bakfs/backend"
	"github.com/sahib/skiff/bakfs/db"
	"github.com/sahib/skiff/bakfs/mio"
	"github.com/sahib/skiff/util/hashlib"
)

var (
	// ErrNoChanges is returned by Backup when the file did not change
	// since its last generation. No new generation is written then.
	ErrNoChanges = errors.New("no changes since the last generation")

	// ErrNoSuchFile is returned when a file has no generations yet.
	ErrNoSuchFile = errors.New("no generations for this file")

	// ErrNoSuchGeneration is returned when a generation number does
	// not exist for a file.
	ErrNoSuchGeneration = errors.New("no such generation")

	// ErrSettingsChanged is returned by Backup when the configured
	// settings do not match the file's existing backup chain. All
	// generations of one file share block size and stream settings.
	ErrSettingsChanged = errors.New("settings differ from the file's backup chain")
)

// Options bundle the settings of a filesystem.
type Options struct {
	// BlockSize is the size of one block in bytes.
	BlockSize uint64

	// SuperBlockBlocks caps how many blocks one super block holds.
	SuperBlockBlocks uint64

	// Stream decides how super block streams are stored.
	Stream mio.StreamConfig

	// Checksum is the digest kind for block checksums.
	Checksum hashlib.Kind
}

// Validate tells you if the options can drive a filesystem.
func (o Options) Validate() error {
	if o.BlockSize == 0 {
		return fmt.Errorf("block size may not be zero")
	}

	if o.SuperBlockBlocks == 0 {
		return fmt.Errorf("super blocks need room for at least one block")
	}

	if o.Checksum == hashlib.None {
		// Change detection compares block checksums; without them
		// every backup would look like the first one.
		return fmt.Errorf("checksum kind %q cannot drive change detection", o.Checksum)
	}

	if !o.Checksum.IsValid() {
		return hashlib.ErrBadKind
	}

	return o.Stream.Validate()
}

// FS is the backup engine over a metadata database and a bundle
// backend. It is safe for concurrent use.
type FS struct {
	mu   sync.Mutex
	kv   db.Database
	bk   backend.Backend
	opts Options
}

// New creates a filesystem over `kv` and `bk`.
func New(kv db.Database, bk backend.Backend, opts Options) (*FS, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &FS{
		kv:   kv,
		bk:   bk,
		opts: opts,
	}, nil
}

// PathID derives the database identity of a file path.
func PathID(path string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(path))
}

// numKey formats a number so keys sort numerically in lexical order.
func numKey(v uint64) string {
	return fmt.Sprintf("%020d", v)
}

func encodeNum(v uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, v)
	return buf[:n]
}

func decodeNum(data []byte) (uint64, error) {
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, fmt.Errorf("corrupt number value")
	}

	return v, nil
}

// latestGen returns the newest generation number of `id`.
func (fs *FS) latestGen(id string) (uint64, error) {
	data, err := fs.kv.Get("gens", id)
	if err == db.ErrNoSuchKey {
		return 0, ErrNoSuchFile
	}

	if err != nil {
		return 0, err
	}

	return decodeNum(data)
}

// loadMeta returns the metadata record of one generation of `id`.
func (fs *FS) loadMeta(id string, gen uint64) (*Meta, error) {
	data, err := fs.kv.Get("meta", id, numKey(gen))
	if err == db.ErrNoSuchKey {
		return nil, ErrNoSuchGeneration
	}

	if err != nil {
		return nil, err
	}

	meta, err := decodeMeta(data)
	if err != nil {
		return nil, err
	}

	meta.Gen = gen
	return meta, nil
}
