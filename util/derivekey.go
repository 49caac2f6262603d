package util

import (
	"golang.org/x/crypto/scrypt"
)

// DeriveKey derives a key of `keySize` bytes from `pwd` and `salt`.
// The same inputs always yield the same key.
func DeriveKey(pwd, salt []byte, keySize int) ([]byte, error) {
	// Parameters might need to be adjusted in the future:
	// https://godoc.org/golang.org/x/crypto/scrypt
	return scrypt.Key(pwd, salt, 16384, 8, 1, keySize)
}
