package repo

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sahib/skiff/util/testutil"
)

func withRepo(t *testing.T, password string, fn func(rp *Repository, dir string)) {
	dir, err := ioutil.TempDir("", "skiff-repo-")
	require.Nil(t, err)
	defer testutil.Remover(t, dir)

	base := filepath.Join(dir, "repo")
	require.Nil(t, Init(base, password))

	rp, err := Open(base, password)
	require.Nil(t, err)

	fn(rp, dir)
	require.Nil(t, rp.Close())
}

func TestInitLayout(t *testing.T) {
	withRepo(t, "katzenwald", func(rp *Repository, dir string) {
		for _, sub := range []string{"state", "bundles"} {
			info, err := os.Stat(filepath.Join(rp.BaseFolder, sub))
			require.Nil(t, err)
			require.True(t, info.IsDir())
		}

		require.True(t, IsInitialized(rp.BaseFolder))
		require.False(t, IsInitialized(dir))
		require.NotEmpty(t, rp.Config.String("data.key_salt"))
		require.NotEmpty(t, rp.Config.String("data.key_check"))
	})
}

func TestInitRefusesNonEmpty(t *testing.T) {
	dir, err := ioutil.TempDir("", "skiff-repo-")
	require.Nil(t, err)
	defer testutil.Remover(t, dir)

	junkPath := filepath.Join(dir, "junk")
	require.Nil(t, ioutil.WriteFile(junkPath, []byte("x"), 0600))
	require.NotNil(t, Init(dir, "pwd"))
}

func TestOpenWrongPassword(t *testing.T) {
	dir, err := ioutil.TempDir("", "skiff-repo-")
	require.Nil(t, err)
	defer testutil.Remover(t, dir)

	base := filepath.Join(dir, "repo")
	require.Nil(t, Init(base, "right"))

	_, err = Open(base, "wrong")
	require.Equal(t, ErrBadPassword, err)
}

func TestOpenNoRepo(t *testing.T) {
	dir, err := ioutil.TempDir("", "skiff-repo-")
	require.Nil(t, err)
	defer testutil.Remover(t, dir)

	_, err = Open(filepath.Join(dir, "nope"), "pwd")
	require.NotNil(t, err)
}

func TestBackupRestoreThroughRepo(t *testing.T) {
	withRepo(t, "katzenwald", func(rp *Repository, dir string) {
		src := filepath.Join(dir, "src")
		data := testutil.CreateDummyBuf(3*16*1024 + 123)
		require.Nil(t, ioutil.WriteFile(src, data, 0600))

		meta, err := rp.FS.Backup(src)
		require.Nil(t, err)
		require.Equal(t, uint64(len(data)), meta.FileSize)

		dst := filepath.Join(dir, "dst")
		require.Nil(t, rp.FS.Restore(src, 0, dst))

		got, err := ioutil.ReadFile(dst)
		require.Nil(t, err)
		require.Equal(t, data, got)
	})
}

func TestReopen(t *testing.T) {
	dir, err := ioutil.TempDir("", "skiff-repo-")
	require.Nil(t, err)
	defer testutil.Remover(t, dir)

	base := filepath.Join(dir, "repo")
	require.Nil(t, Init(base, "pwd"))

	src := filepath.Join(dir, "src")
	data := testutil.CreateRandomDummyBuf(2*16*1024, 3)
	require.Nil(t, ioutil.WriteFile(src, data, 0600))

	rp, err := Open(base, "pwd")
	require.Nil(t, err)

	_, err = rp.FS.Backup(src)
	require.Nil(t, err)
	require.Nil(t, rp.Close())

	// A fresh open has to see the generation written above:
	rp, err = Open(base, "pwd")
	require.Nil(t, err)

	metas, err := rp.FS.Generations(src)
	require.Nil(t, err)
	require.Len(t, metas, 1)

	dst := filepath.Join(dir, "dst")
	require.Nil(t, rp.FS.Restore(src, 0, dst))

	got, err := ioutil.ReadFile(dst)
	require.Nil(t, err)
	require.Equal(t, data, got)
	require.Nil(t, rp.Close())
}

func TestConfigRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "skiff-repo-")
	require.Nil(t, err)
	defer testutil.Remover(t, dir)

	base := filepath.Join(dir, "repo")
	require.Nil(t, Init(base, "pwd"))

	cfg, err := OpenConfig(base)
	require.Nil(t, err)
	require.Nil(t, cfg.SetString("data.compress", "zstd"))
	require.Nil(t, SaveConfig(base, cfg))

	cfg, err = OpenConfig(base)
	require.Nil(t, err)
	require.Equal(t, "zstd", cfg.String("data.compress"))
}

func TestOpenLocked(t *testing.T) {
	withRepo(t, "pwd", func(rp *Repository, dir string) {
		_, err := Open(rp.BaseFolder, "pwd")
		require.Equal(t, ErrLocked, err)
	})
}
