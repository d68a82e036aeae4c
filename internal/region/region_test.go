//go:build unix

package region

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapUnmap(t *testing.T) {
	mem, err := Map(64 * 1024)
	require.NoError(t, err)
	require.Len(t, mem, 64*1024)

	// The mapping must be writable end to end.
	for i := range mem {
		mem[i] = byte(i)
	}
	for i := range mem {
		require.Equal(t, byte(i), mem[i])
	}

	require.NoError(t, Unmap(mem))
}
