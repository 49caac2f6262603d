package chunk

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/sahib/skiff/util"
	"github.com/sahib/skiff/util/testutil"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRead(t *testing.T) {
	sizes := []int64{
		0, 1, 255, 4096,
		MaxFrameSize - 1,
		MaxFrameSize,
		MaxFrameSize + 1,
		3*MaxFrameSize + 17,
	}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("%d", size), func(t *testing.T) {
			data := testutil.CreateDummyBuf(size)
			buf := &bytes.Buffer{}

			cw := NewWriter(buf)
			n, err := cw.Write(data)
			require.Nil(t, err)
			require.Equal(t, len(data), n)
			require.Nil(t, cw.Close())

			got, err := io.ReadAll(NewReader(buf))
			require.Nil(t, err)
			require.Equal(t, data, got)
		})
	}
}

func TestBackToBackStreams(t *testing.T) {
	first := testutil.CreateDummyBuf(MaxFrameSize + 123)
	second := []byte("second stream")

	buf := &bytes.Buffer{}
	for _, data := range [][]byte{first, second} {
		cw := NewWriter(buf)
		_, err := cw.Write(data)
		require.Nil(t, err)
		require.Nil(t, cw.Close())
	}

	// Reading the first stream must stop at its terminator,
	// leaving the second stream intact.
	gotFirst, err := io.ReadAll(NewReader(buf))
	require.Nil(t, err)
	require.Equal(t, first, gotFirst)

	gotSecond, err := io.ReadAll(NewReader(buf))
	require.Nil(t, err)
	require.Equal(t, second, gotSecond)
}

func TestCloseSkipsRest(t *testing.T) {
	first := testutil.CreateDummyBuf(4 * MaxFrameSize)
	second := []byte("do not eat me")

	buf := &bytes.Buffer{}
	for _, data := range [][]byte{first, second} {
		cw := NewWriter(buf)
		_, err := cw.Write(data)
		require.Nil(t, err)
		require.Nil(t, cw.Close())
	}

	// Only peek at the first stream, then close it:
	cr := NewReader(buf)
	peek := make([]byte, 10)
	_, err := io.ReadFull(cr, peek)
	require.Nil(t, err)
	require.Equal(t, first[:10], peek)
	require.Nil(t, cr.Close())

	gotSecond, err := io.ReadAll(NewReader(buf))
	require.Nil(t, err)
	require.Equal(t, second, gotSecond)
}

func TestMissingTerminator(t *testing.T) {
	buf := &bytes.Buffer{}
	cw := NewWriter(buf)
	_, err := cw.Write([]byte("no terminator follows"))
	require.Nil(t, err)

	// Note: no Close() here.
	_, err = io.ReadAll(NewReader(buf))
	require.Equal(t, ErrMissingTerminator, err)
}

func TestTruncatedFrame(t *testing.T) {
	buf := &bytes.Buffer{}
	require.Nil(t, util.WriteUvarint(buf, 100))
	buf.Write([]byte("way too short"))

	_, err := io.ReadAll(NewReader(buf))
	require.Equal(t, ErrMissingTerminator, err)
}

func TestFrameTooBig(t *testing.T) {
	buf := &bytes.Buffer{}
	require.Nil(t, util.WriteUvarint(buf, MaxFrameSize+1))

	_, err := io.ReadAll(NewReader(buf))
	require.Equal(t, ErrFrameTooBig, err)
}

func TestEmptyWriteProducesNoFrame(t *testing.T) {
	buf := &bytes.Buffer{}
	cw := NewWriter(buf)

	n, err := cw.Write(nil)
	require.Nil(t, err)
	require.Equal(t, 0, n)
	require.Nil(t, cw.Close())

	// Only the terminator should be left:
	require.Equal(t, []byte{0}, buf.Bytes())
}

func TestDoubleClose(t *testing.T) {
	buf := &bytes.Buffer{}
	cw := NewWriter(buf)
	require.Nil(t, cw.Close())
	require.Nil(t, cw.Close())
	require.Equal(t, []byte{0}, buf.Bytes())
}
