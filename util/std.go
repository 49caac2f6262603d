// Utility functions that would not hurt the simplicity of Go
// if they would be in the builtins/stdlib.
package util

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// Min returns the minimum of a and b.
func Min(a, b int) int {
	if a < b {
		return a
	}

	return b
}

// Max returns the maximum of a and b.
func Max(a, b int) int {
	if a < b {
		return b
	}

	return a
}

// Clamp limits x to the range [lo, hi]
func Clamp(x, lo, hi int) int {
	return Max(lo, Min(x, hi))
}

// UMin64 is like Min but for uint64
func UMin64(a, b uint64) uint64 {
	if a < b {
		return a
	}

	return b
}

// UMax64 is like Max but for uint64
func UMax64(a, b uint64) uint64 {
	if a < b {
		return b
	}

	return a
}

// Closer closes `c` and logs a potential error.
// Useful in defers where the error would be swallowed otherwise.
func Closer(c io.Closer) {
	if err := c.Close(); err != nil {
		log.Warningf("failed to close %v: %v", c, err)
	}
}
