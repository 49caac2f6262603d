package encrypt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Reader decrypts an encrypted stream block by block.
type Reader struct {
	r io.Reader

	aeadCommon

	// Key and cipher, held until the salt arrives
	key []byte
	ct  Cipher

	// Caches decrypted bytes of the current block
	backlog *bytes.Reader

	// Buffer for decrypted data (MaxBlockSize big)
	decBuf []byte

	// Next expected block number
	blockNo uint64
}

// NewReader returns a new Reader which decrypts the stream in `r`.
// Cipher and key have to match the ones the stream was written with.
func NewReader(r io.Reader, key []byte, ct Cipher) (*Reader, error) {
	if ct == CipherNone {
		return nil, ErrNoCipher
	}

	if err := checkKeySize(key); err != nil {
		return nil, err
	}

	return &Reader{
		r:       r,
		key:     key,
		ct:      ct,
		backlog: bytes.NewReader(nil),
		decBuf:  make([]byte, 0, MaxBlockSize),
	}, nil
}

// Read decrypts block after block. If `buf` is too small to hold a
// whole block, the rest is cached for the next call.
func (er *Reader) Read(buf []byte) (int, error) {
	readBytes := 0

	for readBytes < len(buf) {
		if er.backlog.Len() == 0 {
			if err := er.readBlock(); err != nil {
				if err == io.EOF && readBytes > 0 {
					return readBytes, nil
				}

				return readBytes, err
			}
		}

		n, _ := er.backlog.Read(buf[readBytes:])
		readBytes += n
	}

	return readBytes, nil
}

// readBlock fills the backlog with the next decrypted block.
func (er *Reader) readBlock() error {
	if er.aead == nil {
		// First block; the salt sits in front of it. A clean EOF
		// here is an empty stream.
		salt := make([]byte, SaltSize)
		if _, err := io.ReadFull(er.r, salt); err != nil {
			return err
		}

		if err := er.initAeadCommon(deriveStreamKey(er.key, salt), er.ct); err != nil {
			return err
		}
	}

	// A clean EOF at the nonce position is the end of the stream:
	if _, err := io.ReadFull(er.r, er.nonce); err != nil {
		return err
	}

	blockNo := binary.LittleEndian.Uint64(er.nonce[:8])
	if blockNo != er.blockNo {
		return fmt.Errorf("bad block number: got %d, want %d", blockNo, er.blockNo)
	}

	// Read the whole block; only the last one may be shorter.
	maxEncSize := MaxBlockSize + er.aead.Overhead()
	n, err := io.ReadAtLeast(er.r, er.encBuf[:maxEncSize], maxEncSize)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}

	er.decBuf, err = er.aead.Open(er.decBuf[:0], er.nonce, er.encBuf[:n], nil)
	if err != nil {
		return err
	}

	er.blockNo++
	er.backlog.Reset(er.decBuf)
	return nil
}

// Decrypt is a utility function which decrypts the data from source
// with key and writes the resulting decrypted data to dest.
func Decrypt(key []byte, source io.Reader, dest io.Writer, ct Cipher) (int64, error) {
	layer, err := NewReader(source, key, ct)
	if err != nil {
		return 0, err
	}

	return io.Copy(dest, layer)
}
