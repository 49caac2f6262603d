// Package hashlib provides the digest functions used for block checksums.
//
// Checksums are stored as raw fixed width bytes. The width is implied by
// the digest kind, which travels out of band in the owner's metadata.
package hashlib

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Kind is an enumeration of the supported digest functions.
type Kind uint16

const (
	// None disables checksums entirely.
	None Kind = iota

	// XXHash64 is a fast, non cryptographic 8 byte digest.
	XXHash64

	// Blake2b256 is a cryptographic 32 byte digest.
	Blake2b256

	// SHA3256 is a cryptographic 32 byte digest.
	SHA3256
)

// ErrBadKind is returned when a kind name or value is not known.
var ErrBadKind = errors.New("invalid digest kind")

var kindToString = map[Kind]string{
	None:       "none",
	XXHash64:   "xxhash64",
	Blake2b256: "blake2b256",
	SHA3256:    "sha3-256",
}

var stringToKind = map[string]Kind{
	"none":       None,
	"xxhash64":   XXHash64,
	"blake2b256": Blake2b256,
	"sha3-256":   SHA3256,
}

var kindToSize = map[Kind]int{
	None:       0,
	XXHash64:   8,
	Blake2b256: 32,
	SHA3256:    32,
}

// IsValid returns true if `k` is a known digest kind.
func (k Kind) IsValid() bool {
	_, ok := kindToString[k]
	return ok
}

// Size returns the digest width in bytes. None has a width of zero.
func (k Kind) Size() int {
	return kindToSize[k]
}

func (k Kind) String() string {
	name, ok := kindToString[k]
	if !ok {
		return "unknown digest"
	}

	return name
}

// FromString converts a digest name to a Kind.
func FromString(s string) (Kind, error) {
	kind, ok := stringToKind[s]
	if !ok {
		return 0, ErrBadKind
	}

	return kind, nil
}

// Names returns the names of all valid kinds.
// Useful for building config validation.
func Names() []string {
	return []string{"none", "xxhash64", "blake2b256", "sha3-256"}
}

// Sum digests `data` with the algorithm behind `k`.
// For None a nil slice is returned.
func Sum(k Kind, data []byte) []byte {
	switch k {
	case None:
		return nil
	case XXHash64:
		sum := make([]byte, 8)
		binary.BigEndian.PutUint64(sum, xxhash.Sum64(data))
		return sum
	case Blake2b256:
		sum := blake2b.Sum256(data)
		return sum[:]
	case SHA3256:
		sum := sha3.Sum256(data)
		return sum[:]
	default:
		panic(ErrBadKind)
	}
}

// Equal returns true if both digests are equal.
// Nil digests are considered equal.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// Hex formats a digest for display.
func Hex(sum []byte) string {
	if len(sum) == 0 {
		return "<none>"
	}

	return hex.EncodeToString(sum)
}
