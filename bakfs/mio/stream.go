package mio

import (
	"fmt"
	"io"

	"github.com/sahib/skiff/bakfs/mio/chunk"
	"github.com/sahib/skiff/bakfs/mio/compress"
	"github.com/sahib/skiff/bakfs/mio/encrypt"
)

// StreamConfig bundles the settings that decide how a stream is stored.
// All generations of one file share the same config; it is persisted
// as part of each generation's metadata.
type StreamConfig struct {
	// Cipher used for encryption. CipherNone leaves the layer out.
	Cipher encrypt.Cipher

	// Key for Cipher. Must be encrypt.KeySize bytes when a cipher is set.
	Key []byte

	// Zip is the compression algorithm. AlgoNone leaves the layer out.
	Zip compress.AlgorithmType
}

// Validate tells you if the config can build a stream.
func (cfg StreamConfig) Validate() error {
	if !cfg.Cipher.IsValid() {
		return encrypt.ErrBadCipher
	}

	if !cfg.Zip.IsValid() {
		return compress.ErrBadAlgo
	}

	if cfg.Cipher != encrypt.CipherNone && len(cfg.Key) != encrypt.KeySize {
		return fmt.Errorf("cipher %s needs a %d byte key", cfg.Cipher, encrypt.KeySize)
	}

	return nil
}

// Writer writes one stream. Closing it finalizes the stream, but
// leaves the underlying writer open; more streams may follow there.
type Writer struct {
	io.Writer
	closers []io.Closer
}

// NewWriter stacks the layers selected by `cfg` on top of `w`:
//
//	data -> [compress] -> [encrypt] -> chunk -> w
func NewWriter(w io.Writer, cfg StreamConfig) (*Writer, error) {
	cw := chunk.NewWriter(w)

	var top io.Writer = cw
	closers := []io.Closer{cw}

	if cfg.Cipher != encrypt.CipherNone {
		ew, err := encrypt.NewWriter(top, cfg.Key, cfg.Cipher)
		if err != nil {
			return nil, err
		}

		closers = append(closers, ew)
		top = ew
	}

	if cfg.Zip != compress.AlgoNone {
		zw, err := compress.NewWriter(top, cfg.Zip)
		if err != nil {
			return nil, err
		}

		closers = append(closers, zw)
		top = zw
	}

	return &Writer{
		Writer:  top,
		closers: closers,
	}, nil
}

// Close finalizes the stream. It has to be called, otherwise the
// stream misses its terminator and the layers lose buffered data.
func (w *Writer) Close() error {
	// Close in inverse order; each Close may still flush data
	// into the layer below it.
	for idx := len(w.closers) - 1; idx >= 0; idx-- {
		if err := w.closers[idx].Close(); err != nil {
			return err
		}
	}

	return nil
}

// Reader reads one stream back:
//
//	r -> chunk -> [decrypt] -> [decompress] -> data
//
// Read returns io.EOF at the end of this stream, not at the end of `r`.
type Reader struct {
	io.Reader
	chunkReader *chunk.Reader
}

// NewReader undoes the layers selected by `cfg`. The config has to
// match the one the stream was written with.
func NewReader(r io.Reader, cfg StreamConfig) (*Reader, error) {
	cr := chunk.NewReader(r)

	var top io.Reader = cr

	if cfg.Cipher != encrypt.CipherNone {
		er, err := encrypt.NewReader(top, cfg.Key, cfg.Cipher)
		if err != nil {
			return nil, err
		}

		top = er
	}

	if cfg.Zip != compress.AlgoNone {
		zr, err := compress.NewReader(top, cfg.Zip)
		if err != nil {
			return nil, err
		}

		top = zr
	}

	return &Reader{
		Reader:      top,
		chunkReader: cr,
	}, nil
}

// Close skips over whatever is left of the stream, leaving the
// underlying reader at the start of the next one. It does not close
// the underlying reader.
func (r *Reader) Close() error {
	return r.chunkReader.Close()
}
