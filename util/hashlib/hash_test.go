package hashlib

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindFromString(t *testing.T) {
	for _, name := range Names() {
		kind, err := FromString(name)
		require.Nil(t, err)
		require.Equal(t, name, kind.String())
	}

	_, err := FromString("not-a-checksum")
	require.Equal(t, ErrBadKind, err)
}

func TestSumSize(t *testing.T) {
	data := []byte("hello world")

	for _, name := range Names() {
		kind, err := FromString(name)
		require.Nil(t, err)

		sum := Sum(kind, data)
		require.Equal(t, kind.Size(), len(sum))
	}
}

func TestSumIsDeterministic(t *testing.T) {
	a := Sum(XXHash64, []byte("same input"))
	b := Sum(XXHash64, []byte("same input"))
	c := Sum(XXHash64, []byte("other input"))

	require.True(t, Equal(a, b))
	require.False(t, Equal(a, c))
}

func TestSumNone(t *testing.T) {
	require.Nil(t, Sum(None, []byte("anything")))
	require.Equal(t, 0, None.Size())
	require.True(t, Equal(nil, nil))
}

func TestHex(t *testing.T) {
	require.Equal(t, "<none>", Hex(nil))
	require.Equal(t, "01ff", Hex([]byte{0x01, 0xff}))
}
