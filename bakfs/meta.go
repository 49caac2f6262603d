package bakfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sahib/skiff/bakfs/mio/compress"
	"github.com/sahib/skiff/bakfs/mio/encrypt"
	"github.com/sahib/skiff/util"
	"github.com/sahib/skiff/util/hashlib"
)

// ErrMetaVersion is returned when a metadata record was written by a
// newer version of this software.
var ErrMetaVersion = errors.New("unsupported metadata version")

const metaVersion = 0

// Meta describes one generation of a file. It carries everything a
// restore needs besides the block map: the file's size, the stream
// settings of the backup chain and a bit of bookkeeping.
type Meta struct {
	// Gen is the generation number. It is not part of the record;
	// it derives from the key the record is stored under.
	Gen uint64

	// FileSize is the file's byte size at backup time.
	FileSize uint64

	// BlockSize used to cut the file into blocks.
	BlockSize uint64

	// SuperBlockBlocks caps the number of blocks per super block.
	SuperBlockBlocks uint64

	// Cipher and Zip are the stream settings of the chain.
	Cipher encrypt.Cipher
	Zip    compress.AlgorithmType

	// Checksum is the digest kind of the block checksums.
	Checksum hashlib.Kind

	// CreatedAt is the time the generation was committed.
	CreatedAt time.Time

	// Path the file was backed up from.
	Path string
}

func (m *Meta) encode() []byte {
	buf := &bytes.Buffer{}

	// Writing to a bytes.Buffer cannot fail:
	util.WriteUvarint(buf, metaVersion)
	util.WriteUvarint(buf, m.FileSize)
	util.WriteUvarint(buf, m.BlockSize)
	util.WriteUvarint(buf, m.SuperBlockBlocks)
	util.WriteUvarint(buf, uint64(m.Cipher))
	util.WriteUvarint(buf, uint64(m.Zip))
	util.WriteUvarint(buf, uint64(m.Checksum))
	util.WriteUvarint(buf, uint64(m.CreatedAt.UnixNano()))
	util.WriteUvarint(buf, uint64(len(m.Path)))
	buf.WriteString(m.Path)

	return buf.Bytes()
}

func decodeMeta(data []byte) (*Meta, error) {
	buf := bytes.NewReader(data)

	fields := make([]uint64, 9)
	for idx := range fields {
		field, err := util.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("corrupt metadata record: %v", err)
		}

		fields[idx] = field
	}

	if fields[0] != metaVersion {
		return nil, ErrMetaVersion
	}

	path := make([]byte, fields[8])
	if _, err := io.ReadFull(buf, path); err != nil {
		return nil, fmt.Errorf("corrupt metadata record: %v", err)
	}

	meta := &Meta{
		FileSize:         fields[1],
		BlockSize:        fields[2],
		SuperBlockBlocks: fields[3],
		Cipher:           encrypt.Cipher(fields[4]),
		Zip:              compress.AlgorithmType(fields[5]),
		Checksum:         hashlib.Kind(fields[6]),
		CreatedAt:        time.Unix(0, int64(fields[7])),
		Path:             string(path),
	}

	if !meta.Cipher.IsValid() || !meta.Zip.IsValid() || !meta.Checksum.IsValid() {
		return nil, fmt.Errorf("corrupt metadata record: bad stream settings")
	}

	return meta, nil
}

// sameSettings tells you if a new generation written with `opts`
// would continue this generation's chain seamlessly.
func (m *Meta) sameSettings(opts Options) bool {
	return m.BlockSize == opts.BlockSize &&
		m.SuperBlockBlocks == opts.SuperBlockBlocks &&
		m.Cipher == opts.Stream.Cipher &&
		m.Zip == opts.Stream.Zip &&
		m.Checksum == opts.Checksum
}
