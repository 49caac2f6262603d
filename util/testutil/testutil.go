// Package testutil implements utilities for writing tests.
package testutil

import (
	"math/rand"
	"os"
	"testing"
)

// CreateDummyBuf creates a byte slice that is `size` big.
// It's filled with the repeating numbers [0...254].
func CreateDummyBuf(size int64) []byte {
	buf := make([]byte, size)

	for i := int64(0); i < size; i++ {
		// Be evil and stripe the data:
		buf[i] = byte(i % 255)
	}

	return buf
}

// CreateRandomDummyBuf creates a slice of `size` pseudo random bytes.
// The same `seed` always produces the same data.
func CreateRandomDummyBuf(size, seed int64) []byte {
	src := rand.NewSource(seed)
	buf := make([]byte, size)

	for i := int64(0); i < size; i++ {
		buf[i] = byte(src.Int63() % 256)
	}

	return buf
}

// Remover removes all files in paths recursively and errors when it fails.
// It is no error if there's nothing to delete. It's useful in defer statements.
func Remover(t *testing.T, paths ...string) {
	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil {
			t.Errorf("removing temp directory failed: %v", err)
		}
	}
}
