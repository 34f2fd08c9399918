package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneSlice(t *testing.T) {
	require := require.New(t)

	buf := []byte("12 0 3\r\n")
	clone := CloneSlice(buf, 0)
	require.Equal(buf, clone)

	buf[0] = 'x'
	require.Equal(byte('1'), clone[0])

	padded := CloneSlice([]uint64{1, 2}, 4)
	require.Equal([]uint64{1, 2, 0, 0}, padded)

	require.Empty(CloneSlice([]int(nil), 0))
}
