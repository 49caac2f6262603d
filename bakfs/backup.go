package bakfs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	e "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sahib/skiff/bakfs/backend"
	"github.com/sahib/skiff/bakfs/blockmap"
	"github.com/sahib/skiff/bakfs/db"
	"github.com/sahib/skiff/bakfs/delta"
	"github.com/sahib/skiff/bakfs/mio"
	"github.com/sahib/skiff/util/hashlib"
)

// Backup writes a new generation of the file at `path`. The file is
// read exactly once; blocks whose checksum differs from the latest
// generation are written as super blocks into one new bundle. When
// nothing differs, no generation is written and ErrNoChanges is
// returned.
func (fs *FS) Backup(path string) (*Meta, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	id := PathID(absPath)

	var prevMap blockmap.Map
	var newGen uint64
	hasPrev := false

	prevGen, err := fs.latestGen(id)
	switch err {
	case nil:
		prevMeta, err := fs.loadMeta(id, prevGen)
		if err != nil {
			return nil, err
		}

		if !prevMeta.sameSettings(fs.opts) {
			return nil, e.Wrapf(ErrSettingsChanged, "generation %d", prevGen)
		}

		prevMap, err = fs.loadMap(id, prevGen, fs.opts.BlockSize, fs.opts.Checksum.Size())
		if err != nil {
			return nil, err
		}

		hasPrev = true
		newGen = prevGen + 1
	case ErrNoSuchFile:
		// First generation of this file.
	default:
		return nil, err
	}

	fd, err := os.Open(absPath)
	if err != nil {
		return nil, e.Wrap(err, "failed to open source")
	}

	defer fd.Close()

	batch := fs.kv.Batch()
	meta, err := fs.backup(batch, fd, id, absPath, newGen, hasPrev, prevMap)
	if err != nil {
		batch.Rollback()
		return nil, err
	}

	if err := batch.Flush(); err != nil {
		return nil, err
	}

	return meta, nil
}

func (fs *FS) backup(
	batch db.Batch,
	src io.Reader,
	id, path string,
	gen uint64,
	hasPrev bool,
	prevMap blockmap.Map,
) (*Meta, error) {
	gw := &genWriter{
		fs:    fs,
		batch: batch,
		gen:   gen,
	}

	buf := make([]byte, fs.opts.BlockSize)
	var fileSize uint64
	pos := 0
	changed := 0

	for {
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			block := buf[:n]
			sum := hashlib.Sum(fs.opts.Checksum, block)
			fileSize += uint64(n)

			if pos < len(prevMap) && hashlib.Equal(sum, prevMap[pos].Checksum) {
				if cerr := gw.carry(prevMap[pos]); cerr != nil {
					return nil, cerr
				}
			} else {
				changed++
				if aerr := gw.add(block, sum); aerr != nil {
					return nil, aerr
				}
			}

			pos++
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}

		if err != nil {
			return nil, e.Wrap(err, "failed to read source")
		}
	}

	if hasPrev && changed == 0 && pos == len(prevMap) {
		return nil, ErrNoChanges
	}

	if err := gw.finish(); err != nil {
		return nil, err
	}

	if len(gw.m) > 0 {
		mapBuf := &bytes.Buffer{}
		if err := blockmap.Encode(mapBuf, gw.m, fs.opts.BlockSize); err != nil {
			return nil, err
		}

		batch.Put(mapBuf.Bytes(), "maps", id, numKey(gen))
	}

	meta := &Meta{
		Gen:              gen,
		FileSize:         fileSize,
		BlockSize:        fs.opts.BlockSize,
		SuperBlockBlocks: fs.opts.SuperBlockBlocks,
		Cipher:           fs.opts.Stream.Cipher,
		Zip:              fs.opts.Stream.Zip,
		Checksum:         fs.opts.Checksum,
		CreatedAt:        time.Now(),
		Path:             path,
	}

	batch.Put(meta.encode(), "meta", id, numKey(gen))
	batch.Put(encodeNum(gen), "gens", id)

	log.Debugf(
		"backup of %s: generation %d with %d of %d blocks changed",
		path, gen, changed, pos,
	)

	return meta, nil
}

// loadMap returns one generation's block map, or nil when the
// generation has none (empty files store no map).
func (fs *FS) loadMap(id string, gen uint64, blockSize uint64, sumSize int) (blockmap.Map, error) {
	data, err := fs.kv.Get("maps", id, numKey(gen))
	if err == db.ErrNoSuchKey {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return blockmap.Decode(bytes.NewReader(data), blockSize, sumSize)
}

// genWriter buffers runs of changed blocks and writes them out as
// super blocks, one stream each, into this generation's bundle. The
// bundle is claimed lazily with the first super block.
type genWriter struct {
	fs    *FS
	batch db.Batch
	gen   uint64

	bundleID uint64
	bw       backend.BundleWriter
	plainOff uint64

	runData []byte
	runSums [][]byte

	m blockmap.Map
}

// add buffers one changed block. A full run is written out directly.
func (gw *genWriter) add(block, sum []byte) error {
	gw.runData = append(gw.runData, block...)
	gw.runSums = append(gw.runSums, sum)

	if uint64(len(gw.runSums)) >= gw.fs.opts.SuperBlockBlocks {
		return gw.flush()
	}

	return nil
}

// carry takes an unchanged block over from the previous generation.
// It breaks the current run; runs only hold consecutive blocks.
func (gw *genWriter) carry(item blockmap.Item) error {
	if err := gw.flush(); err != nil {
		return err
	}

	gw.m = append(gw.m, item)
	return nil
}

func (gw *genWriter) flush() error {
	if len(gw.runSums) == 0 {
		return nil
	}

	if gw.bw == nil {
		if err := gw.claimBundle(); err != nil {
			return err
		}
	}

	// Remember where this super block starts physically. The read
	// side looks the position up by the nominal offset.
	gw.batch.Put(
		encodeNum(gw.bw.Tell()),
		"bundle", numKey(gw.bundleID), numKey(gw.plainOff),
	)

	sub, err := mio.NewWriter(gw.bw, gw.fs.opts.Stream)
	if err != nil {
		return err
	}

	blockSize := gw.fs.opts.BlockSize
	rw := delta.NewRecordWriter(sub, blockSize)

	for idx := range gw.runSums {
		lo := uint64(idx) * blockSize
		hi := lo + blockSize
		if hi > uint64(len(gw.runData)) {
			hi = uint64(len(gw.runData))
		}

		if err := rw.WriteBlock(gw.runData[lo:hi]); err != nil {
			return err
		}
	}

	if err := rw.Close(); err != nil {
		return err
	}

	if err := sub.Close(); err != nil {
		return err
	}

	// Super blocks span their nominal size, also when the last
	// block came up short at the end of the file.
	sbSize := uint64(len(gw.runSums)) * blockSize

	for idx, sum := range gw.runSums {
		gw.m = append(gw.m, blockmap.Item{
			Block:     uint64(idx),
			Reference: gw.gen,
			Bundle:    gw.bundleID,
			Offset:    gw.plainOff,
			Size:      sbSize,
			Checksum:  sum,
		})
	}

	gw.plainOff += sbSize
	gw.runData = nil
	gw.runSums = nil
	return nil
}

// claimBundle reserves the next repository wide bundle id and opens
// the bundle for writing.
func (gw *genWriter) claimBundle() error {
	nextData, err := gw.fs.kv.Get("bundles", "next")
	switch err {
	case nil:
		if gw.bundleID, err = decodeNum(nextData); err != nil {
			return err
		}
	case db.ErrNoSuchKey:
		gw.bundleID = 0
	default:
		return err
	}

	gw.batch.Put(encodeNum(gw.bundleID+1), "bundles", "next")

	bw, err := gw.fs.bk.CreateBundle(gw.bundleID)
	if err != nil {
		return err
	}

	gw.bw = bw
	return nil
}

// finish writes the last run and makes the bundle durable.
func (gw *genWriter) finish() error {
	if err := gw.flush(); err != nil {
		return err
	}

	if gw.bw != nil {
		return gw.bw.Close()
	}

	return nil
}
