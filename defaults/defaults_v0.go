package defaults

import (
	"github.com/sahib/config"

	"github.com/sahib/skiff/bakfs/mio/compress"
	"github.com/sahib/skiff/bakfs/mio/encrypt"
	"github.com/sahib/skiff/util/hashlib"
)

// DefaultsV0 is the default config validation for skiff.
var DefaultsV0 = config.DefaultMapping{
	"fs": config.DefaultMapping{
		"block_size": config.DefaultEntry{
			Default:      16 * 1024,
			NeedsRestart: false,
			Docs: `Size of one block in bytes.

  Change detection works per block: a single changed byte stores
  block_size bytes in the next generation. Smaller blocks make finer
  deltas but larger block maps. All generations of a file share the
  block size it was first backed up with.
`,
			Validator: config.IntRangeValidator(512, 128*1024*1024),
		},
		"super_block_blocks": config.DefaultEntry{
			Default:      64,
			NeedsRestart: false,
			Docs:         "How many blocks one super block holds at most.",
			Validator:    config.IntRangeValidator(1, 1024*1024),
		},
	},
	"data": config.DefaultMapping{
		"cipher": config.DefaultEntry{
			Default:      "chacha20",
			NeedsRestart: false,
			Docs:         "What cipher to encrypt bundle data with.",
			Validator:    config.EnumValidator(encrypt.Names()...),
		},
		"compress": config.DefaultEntry{
			Default:      "snappy",
			NeedsRestart: false,
			Docs:         "What algorithm to compress bundle data with.",
			Validator:    config.EnumValidator(compress.Names()...),
		},
		"checksum": config.DefaultEntry{
			Default:      "xxhash64",
			NeedsRestart: false,
			Docs: `What digest to checksum blocks with.

  xxhash64 is fast and fine against accidental corruption. Pick one of
  the cryptographic digests if the bundle storage is not trusted.
`,
			Validator: config.EnumValidator(hashlib.Names()...),
		},
		"key_salt": config.DefaultEntry{
			Default:      "",
			NeedsRestart: false,
			Docs:         "Hex encoded salt for the data key derivation. Generated at init.",
		},
		"key_check": config.DefaultEntry{
			Default:      "",
			NeedsRestart: false,
			Docs:         "Hex encoded digest of the derived data key. Catches wrong passwords early.",
		},
	},
	"repo": config.DefaultMapping{
		"version": config.DefaultEntry{
			Default:      0,
			NeedsRestart: true,
			Docs:         "Layout version of this repository.",
		},
		"password_command": config.DefaultEntry{
			Default:      "",
			NeedsRestart: false,
			Docs:         "If set, the repo password is taken from stdout of this command.",
		},
	},
}
