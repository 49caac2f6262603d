package pwutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadPasswordFromHelper(t *testing.T) {
	pwd, err := ReadPasswordFromHelper("/tmp", "echo my-secret")
	require.Nil(t, err)
	require.Equal(t, "my-secret", pwd)
}

func TestReadPasswordFromHelperFailing(t *testing.T) {
	_, err := ReadPasswordFromHelper("/tmp", "exit 1")
	require.NotNil(t, err)
}
