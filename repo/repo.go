// Package repo handles the on-disk layout of a skiff repository.
//
// A repository is a directory that looks like this:
//
//	config.yml   settings, migrated on open (see the defaults package)
//	state/       metadata database with maps, metadata and bundle index
//	bundles/     bundle files written by the backend
//
// The data key never touches the disk. It is derived from the password
// with scrypt and a per-repository salt from the config; a digest of
// the derived key is kept in the config to catch wrong passwords before
// they produce undecryptable bundles.
package repo

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	e "github.com/pkg/errors"
	"github.com/sahib/config"
	log "github.com/sirupsen/logrus"

	"github.com/sahib/skiff/bakfs"
	"github.com/sahib/skiff/bakfs/backend"
	"github.com/sahib/skiff/bakfs/db"
	"github.com/sahib/skiff/bakfs/mio"
	"github.com/sahib/skiff/bakfs/mio/compress"
	"github.com/sahib/skiff/bakfs/mio/encrypt"
	"github.com/sahib/skiff/defaults"
	"github.com/sahib/skiff/util"
	"github.com/sahib/skiff/util/filelock"
	"github.com/sahib/skiff/util/hashlib"
)

// ErrBadPassword is returned by Open when the password does not match
// the one the repository was initialized with.
var ErrBadPassword = errors.New("wrong password")

// ErrLocked is returned by Open when another process has the
// repository open already.
var ErrLocked = errors.New("repository is locked by another process")

const (
	dataKeySize = 32
	keySaltSize = 32
)

// Repository ties the backup engine to a directory on disk.
type Repository struct {
	// BaseFolder is the absolute path to the repository root.
	BaseFolder string

	// Config holds the validated settings of this repository.
	Config *config.Config

	// FS is the backup engine operating on this repository.
	FS *bakfs.FS

	kv       db.Database
	lockPath string
}

func isEmpty(name string) (bool, error) {
	fd, err := os.Open(name)
	if err != nil {
		return false, err
	}

	defer util.Closer(fd)

	_, err = fd.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}

	// Either not empty or error, suits both cases:
	return false, err
}

// IsInitialized tells you if `baseFolder` looks like a repository.
func IsInitialized(baseFolder string) bool {
	_, err := os.Stat(filepath.Join(baseFolder, "config.yml"))
	return err == nil
}

// Init creates an empty repository in `baseFolder`. The folder is
// created when missing and has to be empty otherwise.
func Init(baseFolder, password string) error {
	baseFolder, err := filepath.Abs(baseFolder)
	if err != nil {
		return err
	}

	info, err := os.Stat(baseFolder)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(baseFolder, 0700); err != nil {
			return e.Wrapf(err, "failed to create %s", baseFolder)
		}
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("`%s` is not a directory", baseFolder)
	default:
		empty, err := isEmpty(baseFolder)
		if err != nil {
			return err
		}

		if !empty {
			return fmt.Errorf("`%s` is not empty", baseFolder)
		}
	}

	for _, folder := range []string{"state", "bundles"} {
		absFolder := filepath.Join(baseFolder, folder)
		if err := os.Mkdir(absFolder, 0700); err != nil {
			return e.Wrapf(err, "failed to create dir: %v", absFolder)
		}
	}

	cfg, err := config.Open(nil, defaults.DefaultsV0, config.StrictnessPanic)
	if err != nil {
		return err
	}

	salt := make([]byte, keySaltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}

	if err := cfg.SetString("data.key_salt", hex.EncodeToString(salt)); err != nil {
		return err
	}

	key, err := util.DeriveKey([]byte(password), salt, dataKeySize)
	if err != nil {
		return err
	}

	check := hashlib.Sum(hashlib.Blake2b256, key)
	if err := cfg.SetString("data.key_check", hex.EncodeToString(check)); err != nil {
		return err
	}

	log.Debugf("initialized repository at %s", baseFolder)
	return SaveConfig(baseFolder, cfg)
}

// OpenConfig loads only the config of the repository at `baseFolder`.
// Use it for things that do not need the password protected parts.
func OpenConfig(baseFolder string) (*config.Config, error) {
	baseFolder, err := filepath.Abs(baseFolder)
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(baseFolder, "config.yml")
	cfg, err := defaults.OpenMigratedConfig(configPath)
	if err != nil {
		return nil, e.Wrapf(err, "no repository at %s", baseFolder)
	}

	return cfg, nil
}

// SaveConfig writes `cfg` back to the repository at `baseFolder`.
func SaveConfig(baseFolder string, cfg *config.Config) error {
	configPath := filepath.Join(baseFolder, "config.yml")
	fd, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if err := cfg.Save(config.NewYamlEncoder(fd)); err != nil {
		fd.Close()
		return err
	}

	return fd.Close()
}

// Open loads the repository at `baseFolder` and unlocks it with
// `password`. The caller owns the result and has to Close it.
func Open(baseFolder, password string) (*Repository, error) {
	baseFolder, err := filepath.Abs(baseFolder)
	if err != nil {
		return nil, err
	}

	cfg, err := OpenConfig(baseFolder)
	if err != nil {
		return nil, err
	}

	opts, err := optionsFromConfig(cfg, password)
	if err != nil {
		return nil, err
	}

	lockPath := filepath.Join(baseFolder, "repo.lock")
	if err := filelock.TryAcquire(lockPath); err != nil {
		if err == filelock.ErrBusy {
			return nil, ErrLocked
		}

		return nil, e.Wrap(err, "failed to lock repository")
	}

	kv, err := db.NewBadgerDatabase(filepath.Join(baseFolder, "state"))
	if err != nil {
		filelock.Release(lockPath)
		return nil, e.Wrap(err, "failed to open state database")
	}

	bk, err := backend.NewLocalBackend(filepath.Join(baseFolder, "bundles"))
	if err != nil {
		kv.Close()
		filelock.Release(lockPath)
		return nil, err
	}

	fs, err := bakfs.New(kv, bk, opts)
	if err != nil {
		kv.Close()
		filelock.Release(lockPath)
		return nil, err
	}

	return &Repository{
		BaseFolder: baseFolder,
		Config:     cfg,
		FS:         fs,
		kv:         kv,
		lockPath:   lockPath,
	}, nil
}

// optionsFromConfig translates the config into engine options,
// deriving and checking the data key along the way.
func optionsFromConfig(cfg *config.Config, password string) (bakfs.Options, error) {
	opts := bakfs.Options{}

	cipher, err := encrypt.FromString(cfg.String("data.cipher"))
	if err != nil {
		return opts, err
	}

	zip, err := compress.AlgoFromString(cfg.String("data.compress"))
	if err != nil {
		return opts, err
	}

	kind, err := hashlib.FromString(cfg.String("data.checksum"))
	if err != nil {
		return opts, err
	}

	var key []byte
	if cipher != encrypt.CipherNone {
		salt, err := hex.DecodeString(cfg.String("data.key_salt"))
		if err != nil || len(salt) == 0 {
			return opts, fmt.Errorf("corrupt key salt in config")
		}

		key, err = util.DeriveKey([]byte(password), salt, dataKeySize)
		if err != nil {
			return opts, err
		}

		if check := cfg.String("data.key_check"); check != "" {
			sum := hashlib.Sum(hashlib.Blake2b256, key)
			if check != hex.EncodeToString(sum) {
				return opts, ErrBadPassword
			}
		}
	}

	opts.BlockSize = uint64(cfg.Int("fs.block_size"))
	opts.SuperBlockBlocks = uint64(cfg.Int("fs.super_block_blocks"))
	opts.Checksum = kind
	opts.Stream = mio.StreamConfig{
		Cipher: cipher,
		Key:    key,
		Zip:    zip,
	}

	return opts, nil
}

// Close releases the repository's state database.
func (rp *Repository) Close() error {
	err := rp.kv.Close()
	if lockErr := filelock.Release(rp.lockPath); lockErr != nil && err == nil {
		err = lockErr
	}

	return err
}
