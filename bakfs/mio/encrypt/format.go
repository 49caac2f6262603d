// Package encrypt implements the encryption layer of skiff.
// The stream format looks like this:
//
// [SALT][[NONCE][SEALED PAYLOAD]]...
//
// SALT is SaltSize random bytes, drawn fresh for every stream. The key
// handed to NewWriter never seals data itself; each stream seals with
// a subkey derived from key and salt. One repository key may therefore
// protect any number of streams: the (subkey, nonce) pairs stay unique
// as long as the salts do.
//
// NONCE is aead.NonceSize() bytes big. Its first 8 bytes hold the
// running block number in little endian; it is checked on decryption.
// SEALED PAYLOAD holds up to MaxBlockSize plaintext bytes plus the MAC
// of the AEAD in use (16 bytes for poly1305). Only the last block of a
// stream may be shorter.
//
// There is no further header. Cipher and key are stream settings that
// skiff keeps in the metadata of each generation, so storing them again
// in front of every super block would only waste space.
package encrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	chacha "golang.org/x/crypto/chacha20poly1305"
)

// Cipher selects the AEAD used to seal a stream.
type Cipher uint16

const (
	// CipherNone disables encryption. NewWriter and NewReader refuse
	// it; callers are expected to leave the layer out entirely.
	CipherNone = Cipher(iota)

	// CipherChaCha20 selects ChaCha20-Poly1305.
	// A good choice if your CPU does not support the AES-NI instruction set.
	CipherChaCha20

	// CipherAES256GCM selects AES256 in GCM mode.
	// This should be fast on modern CPUs.
	CipherAES256GCM
)

const (
	// KeySize is the number of bytes expected in an encryption key.
	KeySize = 32

	// SaltSize is the number of salt bytes in front of each stream.
	SaltSize = 16

	// MaxBlockSize is the max. number of plaintext bytes per block.
	MaxBlockSize = 64 * 1024
)

var (
	// ErrBadCipher is returned for an unsupported/unknown cipher.
	ErrBadCipher = errors.New("invalid cipher type")

	// ErrNoCipher is returned when a stream is built with CipherNone.
	ErrNoCipher = errors.New("refusing to build an encryption layer without cipher")

	cipherToString = map[Cipher]string{
		CipherNone:      "none",
		CipherChaCha20:  "chacha20",
		CipherAES256GCM: "aes256gcm",
	}

	stringToCipher = map[string]Cipher{
		"none":      CipherNone,
		"chacha20":  CipherChaCha20,
		"aes256gcm": CipherAES256GCM,
	}
)

// IsValid tells you if `c` is a cipher this package knows about.
func (c Cipher) IsValid() bool {
	_, ok := cipherToString[c]
	return ok
}

func (c Cipher) String() string {
	if s, ok := cipherToString[c]; ok {
		return s
	}

	return "unknown cipher"
}

// FromString converts a cipher name to a Cipher.
func FromString(s string) (Cipher, error) {
	c, ok := stringToCipher[s]
	if !ok {
		return 0, ErrBadCipher
	}

	return c, nil
}

// Names returns the valid cipher names, suitable for docs.
func Names() []string {
	return []string{"none", "chacha20", "aes256gcm"}
}

func checkKeySize(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("key size must be %d bytes, not %d", KeySize, len(key))
	}

	return nil
}

// deriveStreamKey mixes the caller's key with a stream's salt into the
// subkey that actually seals the stream.
func deriveStreamKey(key, salt []byte) []byte {
	// blake2b only errors on oversized keys; KeySize is fine.
	mac, err := blake2b.New256(key)
	if err != nil {
		panic("bug: " + err.Error())
	}

	mac.Write(salt)
	return mac.Sum(nil)
}

func createAEADWorker(ct Cipher, key []byte) (cipher.AEAD, error) {
	switch ct {
	case CipherChaCha20:
		return chacha.New(key)
	case CipherAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("no such cipher type: %d", ct)
	}
}

type aeadCommon struct {
	// Nonce that forms the first aead.NonceSize() bytes of each block
	nonce []byte

	// For more information, see:
	// https://en.wikipedia.org/wiki/Authenticated_encryption
	aead cipher.AEAD

	// Buffer for encrypted data (MaxBlockSize + overhead)
	encBuf []byte
}

func (c *aeadCommon) initAeadCommon(key []byte, ct Cipher) error {
	if err := checkKeySize(key); err != nil {
		return err
	}

	aead, err := createAEADWorker(ct, key)
	if err != nil {
		return err
	}

	c.encBuf = make([]byte, 0, MaxBlockSize+aead.Overhead())
	c.nonce = make([]byte, aead.NonceSize())
	c.aead = aead
	return nil
}
