// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPow2(t *testing.T) {
	for _, v := range []uint64{1, 2, 4, 8, 64, 128, 4096, 1 << 40} {
		require.True(t, isPow2(v), "%d", v)
	}
	for _, v := range []uint64{0, 3, 5, 6, 7, 24, 100, 1<<40 + 1} {
		require.False(t, isPow2(v), "%d", v)
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct {
		addr, alignment, want uintptr
	}{
		{0, 4, 0},
		{1, 4, 4},
		{4, 4, 4},
		{5, 4, 8},
		{17, 8, 24},
		{128, 128, 128},
		{129, 128, 256},
	}
	for _, c := range cases {
		require.Equal(t, c.want, alignUp(c.addr, c.alignment),
			"alignUp(%d, %d)", c.addr, c.alignment)
	}
}

func TestPadLength(t *testing.T) {
	// Every padded length is a descriptor multiple with room for the
	// payload plus the footer sentinel.
	for _, n := range []uint64{0, 1, 4, 19, 64, 100, 932, 4096} {
		padded := padLength(n)
		require.Zero(t, padded%FreeBlockOverhead, "padLength(%d)", n)
		require.GreaterOrEqual(t, padded, n+FooterOverhead, "padLength(%d)", n)
		require.Less(t, padded, n+FooterOverhead+FreeBlockOverhead,
			"padLength(%d)", n)
	}
}

// The carve arithmetic relies on the header footprint being compatible with
// the default alignment and the descriptor alignment.
func TestRecordLayout(t *testing.T) {
	require.Zero(t, HeaderOverhead%DefaultAlignment)
	require.Zero(t, uint64(freeBlockAlign)&(uint64(freeBlockAlign)-1))
	require.GreaterOrEqual(t, HeaderOverhead, FreeBlockOverhead)
}
