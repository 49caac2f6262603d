// Package mio (short for memory input/output) implements the layered io
// stack of skiff. This includes currently three major parts:
//
// - chunk    - Length prefixed framing, so several streams can share a file.
// - encrypt  - Encryption and decryption with exchangeable AEADs.
// - compress - Chunked compression with exchangeable algorithms.
//
// This package itself contains utils that stack those on top of each other
// in an already usable fashion. Which layers a stream consists of is decided
// by a StreamConfig; the same config has to be used for writing and reading.
package mio
