package encrypt

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer encrypts the data written to it block by block and forwards
// the sealed blocks to the underlying writer.
type Writer struct {
	w io.Writer

	aeadCommon

	// Plaintext collected until a full block can be sealed
	buf []byte

	// Running block number, encoded into the nonce of each block
	blockNo uint64
}

// NewWriter returns a new Writer which encrypts data with a
// certain key and cipher. The key is required to be KeySize bytes
// long. The stream's salt is written to `w` right away.
func NewWriter(w io.Writer, key []byte, ct Cipher) (*Writer, error) {
	if ct == CipherNone {
		return nil, ErrNoCipher
	}

	if err := checkKeySize(key); err != nil {
		return nil, err
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to read stream salt: %v", err)
	}

	ew := &Writer{
		w:   w,
		buf: make([]byte, 0, MaxBlockSize),
	}

	if err := ew.initAeadCommon(deriveStreamKey(key, salt), ct); err != nil {
		return nil, err
	}

	if _, err := w.Write(salt); err != nil {
		return nil, err
	}

	return ew, nil
}

func (ew *Writer) Write(buf []byte) (int, error) {
	written := len(buf)

	for len(buf) > 0 {
		n := MaxBlockSize - len(ew.buf)
		if n > len(buf) {
			n = len(buf)
		}

		ew.buf = append(ew.buf, buf[:n]...)
		buf = buf[n:]

		// Only flush full blocks; the short one is written on Close.
		if len(ew.buf) == MaxBlockSize {
			if err := ew.flushBlock(); err != nil {
				return 0, err
			}
		}
	}

	return written, nil
}

func (ew *Writer) flushBlock() error {
	binary.LittleEndian.PutUint64(ew.nonce[:8], ew.blockNo)

	if _, err := ew.w.Write(ew.nonce); err != nil {
		return err
	}

	sealed := ew.aead.Seal(ew.encBuf[:0], ew.nonce, ew.buf, nil)
	if _, err := ew.w.Write(sealed); err != nil {
		return err
	}

	ew.blockNo++
	ew.buf = ew.buf[:0]
	return nil
}

// Close seals the last, possibly shorter block. It does not close the
// underlying writer. Calling Close twice is a no-op.
func (ew *Writer) Close() error {
	if len(ew.buf) == 0 {
		return nil
	}

	return ew.flushBlock()
}

// Encrypt is a utility function which encrypts the data from source
// with key and writes the resulting encrypted data to dest.
func Encrypt(key []byte, source io.Reader, dest io.Writer, ct Cipher) (int64, error) {
	layer, err := NewWriter(dest, key, ct)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(layer, source)
	if err != nil {
		return n, err
	}

	return n, layer.Close()
}
