package bakfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	e "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sahib/skiff/bakfs/blockmap"
	"github.com/sahib/skiff/bakfs/db"
	"github.com/sahib/skiff/bakfs/delta"
	"github.com/sahib/skiff/bakfs/mio"
	"github.com/sahib/skiff/util/hashlib"
)

// Restore brings the file at `dstPath` to the state of generation
// `gen` of `path`. Blocks the destination already has are left alone;
// only differing blocks are fetched from the backend.
func (fs *FS) Restore(path string, gen uint64, dstPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	meta, m, err := fs.loadGeneration(path, gen)
	if err != nil {
		return err
	}

	absDst, err := filepath.Abs(dstPath)
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(absDst, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return e.Wrap(err, "failed to open restore target")
	}

	defer dst.Close()

	if meta.FileSize == 0 {
		return dst.Truncate(0)
	}

	if m == nil {
		return fmt.Errorf("generation %d has no block map", gen)
	}

	prior, err := blockSums(dst, meta.BlockSize, meta.Checksum)
	if err != nil {
		return e.Wrap(err, "failed to checksum restore target")
	}

	d, err := delta.Build(m, prior, meta.BlockSize, fs.chainStream(meta), meta.Checksum)
	if err != nil {
		return err
	}

	log.Debugf(
		"restore of %s to %s: %d blocks in %d reads",
		path, dstPath, d.BlockCount(), len(d.Reads),
	)

	rdr := &delta.Reader{}
	for idx := range d.Reads {
		if err := fs.restoreRead(d, &d.Reads[idx], rdr, dst); err != nil {
			return err
		}
	}

	if err := dst.Truncate(int64(meta.FileSize)); err != nil {
		return err
	}

	return dst.Sync()
}

// restoreRead executes one read of the plan against the backend.
func (fs *FS) restoreRead(d *delta.Delta, rd *delta.Read, rdr *delta.Reader, dst *os.File) error {
	physData, err := fs.kv.Get("bundle", numKey(rd.Bundle), numKey(rd.Offset))
	if err == db.ErrNoSuchKey {
		return fmt.Errorf("bundle %d has no super block at %d", rd.Bundle, rd.Offset)
	}

	if err != nil {
		return err
	}

	physOff, err := decodeNum(physData)
	if err != nil {
		return err
	}

	src, err := fs.bk.OpenBundle(rd.Bundle, physOff)
	if err != nil {
		return err
	}

	defer src.Close()

	for {
		block, err := rdr.Next(d, rd, src)
		if err != nil {
			return err
		}

		if block == nil {
			return nil
		}

		if _, err := dst.WriteAt(block.Data, int64(block.Offset)); err != nil {
			return e.Wrap(err, "failed to write restored block")
		}
	}
}

// Diff plans what a restore of the latest generation onto the current
// content of `path` would fetch. An empty plan means the file matches
// its latest backup.
func (fs *FS) Diff(path string) (*delta.Delta, *Meta, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}

	id := PathID(absPath)
	gen, err := fs.latestGen(id)
	if err != nil {
		return nil, nil, err
	}

	meta, m, err := fs.loadGeneration(path, gen)
	if err != nil {
		return nil, nil, err
	}

	prior := [][]byte{}
	fd, err := os.Open(absPath)
	switch {
	case err == nil:
		prior, err = blockSums(fd, meta.BlockSize, meta.Checksum)
		fd.Close()
		if err != nil {
			return nil, nil, err
		}
	case os.IsNotExist(err):
		// A missing file diffs like an empty one.
	default:
		return nil, nil, err
	}

	if m == nil {
		// Latest generation is an empty file.
		return &delta.Delta{}, meta, nil
	}

	d, err := delta.Build(m, prior, meta.BlockSize, fs.chainStream(meta), meta.Checksum)
	if err != nil {
		return nil, nil, err
	}

	return d, meta, nil
}

// Generations lists all generations of `path`, oldest first.
func (fs *FS) Generations(path string) ([]*Meta, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	id := PathID(absPath)

	metas := []*Meta{}
	err = fs.kv.Keys(func(key []string) error {
		if len(key) != 3 {
			return fmt.Errorf("malformed metadata key: %v", key)
		}

		gen, err := strconv.ParseUint(key[2], 10, 64)
		if err != nil {
			return fmt.Errorf("malformed generation in key: %v", key)
		}

		meta, err := fs.loadMeta(id, gen)
		if err != nil {
			return err
		}

		metas = append(metas, meta)
		return nil
	}, "meta", id)

	if err != nil {
		return nil, err
	}

	if len(metas) == 0 {
		return nil, ErrNoSuchFile
	}

	return metas, nil
}

// loadGeneration fetches metadata and block map of one generation.
func (fs *FS) loadGeneration(path string, gen uint64) (*Meta, blockmap.Map, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}

	id := PathID(absPath)

	if _, err := fs.latestGen(id); err != nil {
		return nil, nil, err
	}

	meta, err := fs.loadMeta(id, gen)
	if err != nil {
		return nil, nil, err
	}

	m, err := fs.loadMap(id, gen, meta.BlockSize, meta.Checksum.Size())
	if err != nil {
		return nil, nil, err
	}

	return meta, m, nil
}

// chainStream builds the stream config of a chain: settings from the
// generation's metadata, the key from the repository.
func (fs *FS) chainStream(meta *Meta) mio.StreamConfig {
	return mio.StreamConfig{
		Cipher: meta.Cipher,
		Key:    fs.opts.Stream.Key,
		Zip:    meta.Zip,
	}
}

// blockSums digests `r` block by block.
func blockSums(r io.Reader, blockSize uint64, kind hashlib.Kind) ([][]byte, error) {
	sums := [][]byte{}
	buf := make([]byte, blockSize)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			sums = append(sums, hashlib.Sum(kind, buf[:n]))
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return sums, nil
		}

		if err != nil {
			return nil, err
		}
	}
}
