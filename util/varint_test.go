package util

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUvarintRoundtrip(t *testing.T) {
	values := []uint64{
		0, 1, 2, 127, 128, 129,
		16383, 16384, 16385,
		1<<32 - 1, 1 << 32,
		1<<64 - 1,
	}

	for _, v := range values {
		buf := &bytes.Buffer{}
		require.NoError(t, WriteUvarint(buf, v))

		got, err := ReadUvarint(buf)
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, 0, buf.Len())
	}
}

func TestUvarintDoesNotOverread(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteUvarint(buf, 300))
	buf.WriteByte(0xff)

	_, err := ReadUvarint(buf)
	require.NoError(t, err)

	// The byte behind the number must still be there:
	require.Equal(t, []byte{0xff}, buf.Bytes())
}

func TestUvarintTruncated(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteUvarint(buf, 1<<32))

	cut := bytes.NewReader(buf.Bytes()[:2])
	_, err := ReadUvarint(cut)
	require.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestUvarintEmpty(t *testing.T) {
	_, err := ReadUvarint(bytes.NewReader(nil))
	require.Equal(t, io.EOF, err)
}

func TestUvarintOverflow(t *testing.T) {
	junk := bytes.Repeat([]byte{0xff}, 10)
	_, err := ReadUvarint(bytes.NewReader(junk))
	require.Equal(t, ErrVarintOverflow, err)
}

func TestZigZag(t *testing.T) {
	values := []int64{0, -1, 1, -2, 2, 63, -64, 1 << 40, -(1 << 40), -1 << 63}
	for _, v := range values {
		require.Equal(t, v, UnZigZag(ZigZag(v)))
	}

	// Small absolute values need to stay small:
	require.Equal(t, uint64(1), ZigZag(-1))
	require.Equal(t, uint64(2), ZigZag(1))
}

func TestVarintRoundtrip(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteVarint(buf, -12345))

	got, err := ReadVarint(buf)
	require.NoError(t, err)
	require.Equal(t, int64(-12345), got)
}
