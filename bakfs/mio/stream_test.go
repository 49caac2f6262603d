package mio

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/sahib/skiff/bakfs/mio/compress"
	"github.com/sahib/skiff/bakfs/mio/encrypt"
	"github.com/sahib/skiff/util/testutil"
	"github.com/stretchr/testify/require"
)

var testKey = bytes.Repeat([]byte{0x2a}, encrypt.KeySize)

func testConfigs() []StreamConfig {
	ciphers := []encrypt.Cipher{
		encrypt.CipherNone,
		encrypt.CipherChaCha20,
		encrypt.CipherAES256GCM,
	}

	zips := []compress.AlgorithmType{
		compress.AlgoNone,
		compress.AlgoSnappy,
		compress.AlgoLZ4,
		compress.AlgoZstd,
	}

	cfgs := []StreamConfig{}
	for _, cipher := range ciphers {
		for _, zip := range zips {
			cfgs = append(cfgs, StreamConfig{
				Cipher: cipher,
				Key:    testKey,
				Zip:    zip,
			})
		}
	}

	return cfgs
}

func TestWriteAndRead(t *testing.T) {
	sizes := []int64{0, 1, 4096, 64*1024 + 1, 256*1024 + 13}

	for _, cfg := range testConfigs() {
		for _, size := range sizes {
			name := fmt.Sprintf("%s-%s-%d", cfg.Cipher, cfg.Zip, size)
			t.Run(name, func(t *testing.T) {
				data := testutil.CreateDummyBuf(size)
				buf := &bytes.Buffer{}

				w, err := NewWriter(buf, cfg)
				require.Nil(t, err)

				n, err := w.Write(data)
				require.Nil(t, err)
				require.Equal(t, len(data), n)
				require.Nil(t, w.Close())

				r, err := NewReader(buf, cfg)
				require.Nil(t, err)

				got, err := io.ReadAll(r)
				require.Nil(t, err)
				require.True(t, bytes.Equal(data, got))
			})
		}
	}
}

func TestBackToBackStreams(t *testing.T) {
	// Several streams in one file is the normal case for bundles;
	// reading one stream must leave the reader at the next one.
	cfg := StreamConfig{
		Cipher: encrypt.CipherChaCha20,
		Key:    testKey,
		Zip:    compress.AlgoSnappy,
	}

	payloads := [][]byte{
		testutil.CreateDummyBuf(128 * 1024),
		[]byte("tiny"),
		testutil.CreateRandomDummyBuf(64*1024+7, 42),
	}

	buf := &bytes.Buffer{}
	for _, data := range payloads {
		w, err := NewWriter(buf, cfg)
		require.Nil(t, err)

		_, err = w.Write(data)
		require.Nil(t, err)
		require.Nil(t, w.Close())
	}

	for _, want := range payloads {
		r, err := NewReader(buf, cfg)
		require.Nil(t, err)

		got, err := io.ReadAll(r)
		require.Nil(t, err)
		require.True(t, bytes.Equal(want, got))
	}
}

func TestCloseSkipsToNextStream(t *testing.T) {
	cfg := StreamConfig{
		Cipher: encrypt.CipherAES256GCM,
		Key:    testKey,
		Zip:    compress.AlgoZstd,
	}

	first := testutil.CreateDummyBuf(300 * 1024)
	second := []byte("and now for something completely different")

	buf := &bytes.Buffer{}
	for _, data := range [][]byte{first, second} {
		w, err := NewWriter(buf, cfg)
		require.Nil(t, err)

		_, err = w.Write(data)
		require.Nil(t, err)
		require.Nil(t, w.Close())
	}

	// Read only a token amount of the first stream:
	r, err := NewReader(buf, cfg)
	require.Nil(t, err)

	peek := make([]byte, 10)
	_, err = io.ReadFull(r, peek)
	require.Nil(t, err)
	require.Equal(t, first[:10], peek)
	require.Nil(t, r.Close())

	r, err = NewReader(buf, cfg)
	require.Nil(t, err)

	got, err := io.ReadAll(r)
	require.Nil(t, err)
	require.Equal(t, second, got)
}

func TestWrongKey(t *testing.T) {
	cfg := StreamConfig{
		Cipher: encrypt.CipherChaCha20,
		Key:    testKey,
		Zip:    compress.AlgoNone,
	}

	buf := &bytes.Buffer{}
	w, err := NewWriter(buf, cfg)
	require.Nil(t, err)

	_, err = w.Write([]byte("secret"))
	require.Nil(t, err)
	require.Nil(t, w.Close())

	cfg.Key = bytes.Repeat([]byte{0x66}, encrypt.KeySize)
	r, err := NewReader(buf, cfg)
	require.Nil(t, err)

	_, err = io.ReadAll(r)
	require.NotNil(t, err)
}

func TestValidate(t *testing.T) {
	cfg := StreamConfig{
		Cipher: encrypt.CipherChaCha20,
		Key:    testKey,
		Zip:    compress.AlgoSnappy,
	}
	require.Nil(t, cfg.Validate())

	cfg.Key = []byte("short")
	require.NotNil(t, cfg.Validate())

	cfg = StreamConfig{Cipher: encrypt.Cipher(99)}
	require.Equal(t, encrypt.ErrBadCipher, cfg.Validate())

	cfg = StreamConfig{Zip: compress.AlgorithmType(99)}
	require.Equal(t, compress.ErrBadAlgo, cfg.Validate())
}

func BenchmarkWriteAndRead(b *testing.B) {
	data := testutil.CreateDummyBuf(1024 * 1024)

	for _, cfg := range testConfigs() {
		name := fmt.Sprintf("%s-%s", cfg.Cipher, cfg.Zip)
		b.Run(name, func(b *testing.B) {
			b.SetBytes(int64(len(data)))

			for n := 0; n < b.N; n++ {
				buf := &bytes.Buffer{}

				w, err := NewWriter(buf, cfg)
				if err != nil {
					b.Fatal(err)
				}

				if _, err := w.Write(data); err != nil {
					b.Fatal(err)
				}

				if err := w.Close(); err != nil {
					b.Fatal(err)
				}

				r, err := NewReader(buf, cfg)
				if err != nil {
					b.Fatal(err)
				}

				if _, err := io.Copy(io.Discard, r); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
