package compress

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
		maxChunkSize - 1,
		maxChunkSize,
		maxChunkSize + 1,
		3*maxChunkSize + 17,
	}

	for algoType := range AlgoMap {
		for _, size := range sizes {
			t.Run(fmt.Sprintf("%s-%d", algoType, size), func(t *testing.T) {
				testWriteAndRead(t, algoType, testutil.CreateDummyBuf(size))
			})
		}
	}
}

func TestWriteAndReadRandom(t *testing.T) {
	// Random data does not compress; chunks stay near maxZipChunkSize.
	for algoType := range AlgoMap {
		t.Run(algoType.String(), func(t *testing.T) {
			data := testutil.CreateRandomDummyBuf(2*maxChunkSize+42, 3)
			testWriteAndRead(t, algoType, data)
		})
	}
}

func testWriteAndRead(t *testing.T, algoType AlgorithmType, data []byte) {
	zipStream := &bytes.Buffer{}

	zw, err := NewWriter(zipStream, algoType)
	require.Nil(t, err)

	n, err := zw.Write(data)
	require.Nil(t, err)
	require.Equal(t, len(data), n)
	require.Nil(t, zw.Close())

	zr, err := NewReader(zipStream, algoType)
	require.Nil(t, err)

	got, err := io.ReadAll(zr)
	require.Nil(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestBadAlgo(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, AlgorithmType(255))
	require.Equal(t, ErrBadAlgo, err)

	_, err = NewReader(&bytes.Buffer{}, AlgorithmType(255))
	require.Equal(t, ErrBadAlgo, err)
}

func TestAlgoFromString(t *testing.T) {
	for _, name := range Names() {
		algoType, err := AlgoFromString(name)
		require.Nil(t, err)
		require.Equal(t, name, AlgoToString(algoType))
	}

	_, err := AlgoFromString("bzip2")
	require.Equal(t, ErrBadAlgo, err)
}

func TestChunkTooBig(t *testing.T) {
	buf := &bytes.Buffer{}
	require.Nil(t, util.WriteUvarint(buf, maxZipChunkSize+1))

	zr, err := NewReader(buf, AlgoSnappy)
	require.Nil(t, err)

	_, err = io.ReadAll(zr)
	require.Equal(t, ErrChunkTooBig, err)
}

func TestTruncatedChunk(t *testing.T) {
	zipStream := &bytes.Buffer{}

	zw, err := NewWriter(zipStream, AlgoSnappy)
	require.Nil(t, err)

	_, err = zw.Write(testutil.CreateDummyBuf(maxChunkSize))
	require.Nil(t, err)
	require.Nil(t, zw.Close())

	// Cut off the tail of the last chunk:
	cut := zipStream.Bytes()
	cut = cut[:len(cut)-10]

	zr, err := NewReader(bytes.NewReader(cut), AlgoSnappy)
	require.Nil(t, err)

	_, err = io.ReadAll(zr)
	require.Equal(t, io.ErrUnexpectedEOF, err)
}
