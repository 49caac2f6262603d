package bakfs

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	e "github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/sahib/skiff/bakfs/backend"
	"github.com/sahib/skiff/bakfs/db"
	"github.com/sahib/skiff/bakfs/mio"
	"github.com/sahib/skiff/bakfs/mio/compress"
	"github.com/sahib/skiff/bakfs/mio/encrypt"
	"github.com/sahib/skiff/util/hashlib"
	"github.com/sahib/skiff/util/testutil"
)

func testOptions() Options {
	return Options{
		BlockSize:        64,
		SuperBlockBlocks: 4,
		Stream: mio.StreamConfig{
			Zip: compress.AlgoSnappy,
		},
		Checksum: hashlib.XXHash64,
	}
}

func withFS(t *testing.T, opts Options, fn func(fs *FS, dir string)) {
	dir, err := ioutil.TempDir("", "skiff-bakfs-")
	require.Nil(t, err)
	defer testutil.Remover(t, dir)

	fs, err := New(db.NewMemoryDatabase(), backend.NewMemoryBackend(), opts)
	require.Nil(t, err)
	fn(fs, dir)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	withFS(t, testOptions(), func(fs *FS, dir string) {
		src := filepath.Join(dir, "src")
		v0 := testutil.CreateRandomDummyBuf(653, 1)
		require.Nil(t, ioutil.WriteFile(src, v0, 0600))

		meta0, err := fs.Backup(src)
		require.Nil(t, err)
		require.Equal(t, uint64(0), meta0.Gen)
		require.Equal(t, uint64(653), meta0.FileSize)

		// Overwrite one block in the middle and grow the file:
		v1 := append([]byte{}, v0...)
		copy(v1[3*64:4*64], bytes.Repeat([]byte{0xaa}, 64))
		v1 = append(v1, testutil.CreateRandomDummyBuf(130, 2)...)
		require.Nil(t, ioutil.WriteFile(src, v1, 0600))

		meta1, err := fs.Backup(src)
		require.Nil(t, err)
		require.Equal(t, uint64(1), meta1.Gen)
		require.Equal(t, uint64(783), meta1.FileSize)

		dst1 := filepath.Join(dir, "dst1")
		require.Nil(t, fs.Restore(src, 1, dst1))

		got, err := ioutil.ReadFile(dst1)
		require.Nil(t, err)
		require.Equal(t, v1, got)

		// Older generations stay restorable:
		dst0 := filepath.Join(dir, "dst0")
		require.Nil(t, fs.Restore(src, 0, dst0))

		got, err = ioutil.ReadFile(dst0)
		require.Nil(t, err)
		require.Equal(t, v0, got)
	})
}

func TestBackupNoChanges(t *testing.T) {
	withFS(t, testOptions(), func(fs *FS, dir string) {
		src := filepath.Join(dir, "src")
		require.Nil(t, ioutil.WriteFile(src, testutil.CreateDummyBuf(300), 0600))

		_, err := fs.Backup(src)
		require.Nil(t, err)

		_, err = fs.Backup(src)
		require.Equal(t, ErrNoChanges, err)

		gens, err := fs.Generations(src)
		require.Nil(t, err)
		require.Len(t, gens, 1)
	})
}

func TestBackupEmptyFile(t *testing.T) {
	withFS(t, testOptions(), func(fs *FS, dir string) {
		src := filepath.Join(dir, "src")
		require.Nil(t, ioutil.WriteFile(src, []byte{}, 0600))

		meta, err := fs.Backup(src)
		require.Nil(t, err)
		require.Equal(t, uint64(0), meta.FileSize)

		_, err = fs.Backup(src)
		require.Equal(t, ErrNoChanges, err)

		// Restoring an empty generation truncates leftovers:
		dst := filepath.Join(dir, "dst")
		require.Nil(t, ioutil.WriteFile(dst, []byte("leftover"), 0600))
		require.Nil(t, fs.Restore(src, 0, dst))

		got, err := ioutil.ReadFile(dst)
		require.Nil(t, err)
		require.Empty(t, got)

		// The file may grow in a later generation:
		content := testutil.CreateRandomDummyBuf(100, 3)
		require.Nil(t, ioutil.WriteFile(src, content, 0600))

		meta, err = fs.Backup(src)
		require.Nil(t, err)
		require.Equal(t, uint64(1), meta.Gen)

		require.Nil(t, fs.Restore(src, 1, dst))
		got, err = ioutil.ReadFile(dst)
		require.Nil(t, err)
		require.Equal(t, content, got)
	})
}

type countingBackend struct {
	backend.Backend
	opens int
}

func (cb *countingBackend) OpenBundle(id, off uint64) (io.ReadCloser, error) {
	cb.opens++
	return cb.Backend.OpenBundle(id, off)
}

func TestRestoreFetchesOnlyChangedBlocks(t *testing.T) {
	dir, err := ioutil.TempDir("", "skiff-bakfs-")
	require.Nil(t, err)
	defer testutil.Remover(t, dir)

	cb := &countingBackend{Backend: backend.NewMemoryBackend()}
	fs, err := New(db.NewMemoryDatabase(), cb, testOptions())
	require.Nil(t, err)

	src := filepath.Join(dir, "src")
	v0 := testutil.CreateRandomDummyBuf(512, 1)
	require.Nil(t, ioutil.WriteFile(src, v0, 0600))

	_, err = fs.Backup(src)
	require.Nil(t, err)

	// The destination already has the old state:
	dst := filepath.Join(dir, "dst")
	require.Nil(t, ioutil.WriteFile(dst, v0, 0600))

	v1 := append([]byte{}, v0...)
	copy(v1[2*64:3*64], bytes.Repeat([]byte{0xbb}, 64))
	require.Nil(t, ioutil.WriteFile(src, v1, 0600))

	_, err = fs.Backup(src)
	require.Nil(t, err)

	cb.opens = 0
	require.Nil(t, fs.Restore(src, 1, dst))

	// Only the one changed super block had to be fetched:
	require.Equal(t, 1, cb.opens)

	got, err := ioutil.ReadFile(dst)
	require.Nil(t, err)
	require.Equal(t, v1, got)
}

func TestBackupSettingsChanged(t *testing.T) {
	dir, err := ioutil.TempDir("", "skiff-bakfs-")
	require.Nil(t, err)
	defer testutil.Remover(t, dir)

	kv := db.NewMemoryDatabase()
	bk := backend.NewMemoryBackend()

	fs1, err := New(kv, bk, testOptions())
	require.Nil(t, err)

	src := filepath.Join(dir, "src")
	require.Nil(t, ioutil.WriteFile(src, testutil.CreateDummyBuf(300), 0600))

	_, err = fs1.Backup(src)
	require.Nil(t, err)

	opts := testOptions()
	opts.BlockSize = 128

	fs2, err := New(kv, bk, opts)
	require.Nil(t, err)

	_, err = fs2.Backup(src)
	require.Equal(t, ErrSettingsChanged, e.Cause(err))
}

func TestBackupShrink(t *testing.T) {
	withFS(t, testOptions(), func(fs *FS, dir string) {
		src := filepath.Join(dir, "src")
		v0 := testutil.CreateRandomDummyBuf(512, 1)
		require.Nil(t, ioutil.WriteFile(src, v0, 0600))

		_, err := fs.Backup(src)
		require.Nil(t, err)

		// Shrink to a block boundary; no block changes content:
		require.Nil(t, ioutil.WriteFile(src, v0[:256], 0600))

		meta, err := fs.Backup(src)
		require.Nil(t, err)
		require.Equal(t, uint64(1), meta.Gen)
		require.Equal(t, uint64(256), meta.FileSize)

		// Shrink into the middle of a block:
		require.Nil(t, ioutil.WriteFile(src, v0[:200], 0600))

		meta, err = fs.Backup(src)
		require.Nil(t, err)
		require.Equal(t, uint64(2), meta.Gen)

		for gen, want := range map[uint64][]byte{
			0: v0,
			1: v0[:256],
			2: v0[:200],
		} {
			dst := filepath.Join(dir, "dst")
			require.Nil(t, fs.Restore(src, gen, dst))

			got, err := ioutil.ReadFile(dst)
			require.Nil(t, err)
			require.Equal(t, want, got, "generation %d", gen)
		}
	})
}

func TestDiff(t *testing.T) {
	withFS(t, testOptions(), func(fs *FS, dir string) {
		src := filepath.Join(dir, "src")
		v0 := testutil.CreateRandomDummyBuf(320, 1)
		require.Nil(t, ioutil.WriteFile(src, v0, 0600))

		_, err := fs.Backup(src)
		require.Nil(t, err)

		d, meta, err := fs.Diff(src)
		require.Nil(t, err)
		require.Equal(t, uint64(0), meta.Gen)
		require.Equal(t, 0, d.BlockCount())

		v1 := append([]byte{}, v0...)
		copy(v1[64:128], bytes.Repeat([]byte{0xcc}, 64))
		require.Nil(t, ioutil.WriteFile(src, v1, 0600))

		d, _, err = fs.Diff(src)
		require.Nil(t, err)
		require.Equal(t, 1, d.BlockCount())

		// A deleted file diffs like an empty one:
		require.Nil(t, os.Remove(src))

		d, _, err = fs.Diff(src)
		require.Nil(t, err)
		require.Equal(t, 5, d.BlockCount())
	})
}

func TestRestoreUnknown(t *testing.T) {
	withFS(t, testOptions(), func(fs *FS, dir string) {
		dst := filepath.Join(dir, "dst")
		err := fs.Restore(filepath.Join(dir, "nope"), 0, dst)
		require.Equal(t, ErrNoSuchFile, err)

		src := filepath.Join(dir, "src")
		require.Nil(t, ioutil.WriteFile(src, testutil.CreateDummyBuf(100), 0600))

		_, err = fs.Backup(src)
		require.Nil(t, err)

		err = fs.Restore(src, 5, dst)
		require.Equal(t, ErrNoSuchGeneration, err)
	})
}

func TestGenerations(t *testing.T) {
	withFS(t, testOptions(), func(fs *FS, dir string) {
		src := filepath.Join(dir, "src")

		for idx := 0; idx < 3; idx++ {
			content := testutil.CreateRandomDummyBuf(300, int64(idx))
			require.Nil(t, ioutil.WriteFile(src, content, 0600))

			_, err := fs.Backup(src)
			require.Nil(t, err)
		}

		gens, err := fs.Generations(src)
		require.Nil(t, err)
		require.Len(t, gens, 3)

		absSrc, err := filepath.Abs(src)
		require.Nil(t, err)

		for idx, meta := range gens {
			require.Equal(t, uint64(idx), meta.Gen)
			require.Equal(t, absSrc, meta.Path)
			require.Equal(t, uint64(64), meta.BlockSize)
		}

		_, err = fs.Generations(filepath.Join(dir, "nope"))
		require.Equal(t, ErrNoSuchFile, err)
	})
}

func TestFullStack(t *testing.T) {
	dir, err := ioutil.TempDir("", "skiff-bakfs-")
	require.Nil(t, err)
	defer testutil.Remover(t, dir)

	kv, err := db.NewBadgerDatabase(filepath.Join(dir, "meta"))
	require.Nil(t, err)

	bk, err := backend.NewLocalBackend(filepath.Join(dir, "bundles"))
	require.Nil(t, err)

	opts := Options{
		BlockSize:        1024,
		SuperBlockBlocks: 8,
		Stream: mio.StreamConfig{
			Cipher: encrypt.CipherChaCha20,
			Key:    bytes.Repeat([]byte{0x2a}, encrypt.KeySize),
			Zip:    compress.AlgoZstd,
		},
		Checksum: hashlib.Blake2b256,
	}

	fs, err := New(kv, bk, opts)
	require.Nil(t, err)

	src := filepath.Join(dir, "src")
	v0 := testutil.CreateRandomDummyBuf(10*1024+77, 1)
	require.Nil(t, ioutil.WriteFile(src, v0, 0600))

	_, err = fs.Backup(src)
	require.Nil(t, err)

	v1 := append([]byte{}, v0...)
	copy(v1[5*1024:6*1024], bytes.Repeat([]byte{0xdd}, 1024))
	require.Nil(t, ioutil.WriteFile(src, v1, 0600))

	_, err = fs.Backup(src)
	require.Nil(t, err)

	for gen, want := range map[uint64][]byte{0: v0, 1: v1} {
		dst := filepath.Join(dir, "dst")
		require.Nil(t, fs.Restore(src, gen, dst))

		got, err := ioutil.ReadFile(dst)
		require.Nil(t, err)
		require.Equal(t, want, got, "generation %d", gen)
	}

	require.Nil(t, kv.Close())
}

func TestMetaRoundTrip(t *testing.T) {
	meta := &Meta{
		FileSize:         1234,
		BlockSize:        64,
		SuperBlockBlocks: 4,
		Cipher:           encrypt.CipherAES256GCM,
		Zip:              compress.AlgoLZ4,
		Checksum:         hashlib.SHA3256,
		CreatedAt:        time.Unix(0, 1234567890),
		Path:             "/some/path",
	}

	back, err := decodeMeta(meta.encode())
	require.Nil(t, err)
	require.Equal(t, meta, back)

	_, err = decodeMeta(nil)
	require.NotNil(t, err)

	_, err = decodeMeta([]byte{0x01})
	require.NotNil(t, err)

	// A record claiming a newer version:
	_, err = decodeMeta([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0})
	require.Equal(t, ErrMetaVersion, err)
}

func TestPathID(t *testing.T) {
	require.Len(t, PathID("/a/b"), 16)
	require.Equal(t, PathID("/a/b"), PathID("/a/b"))
	require.NotEqual(t, PathID("/a/b"), PathID("/a/c"))
}
