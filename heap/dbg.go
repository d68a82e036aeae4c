// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package heap

import (
	"github.com/intuitivelabs/slog"
)

// DumpStatus will write current status information in the log
func (h *Heap) DumpStatus() {
	const lev = slog.LDBG
	const prefix = "heap_status "

	if !Log.L(lev) {
		return
	}
	Log.LLog(lev, 0, prefix, "(%p):\n", h)
	if h == nil {
		return
	}
	Log.LLog(lev, 0, prefix, "region= %#x..%#x size= %d strategy= %s\n",
		h.base, h.base+uintptr(h.length), h.length, h.strategy)
	Log.LLog(lev, 0, prefix, "live= %d total= %d"+
		" failed allocs= %d failed frees= %d\n",
		h.allocations, h.totalAllocations,
		h.failedAllocations, h.failedFrees)

	Log.LLog(lev, 0, prefix, "dumping the free list:\n")
	i := 0
	freeBytes := uint64(0)
	for b := h.root; b != nil; b = b.next {
		Log.LLog(lev, 0, prefix, "   %3d.    block=%#x size=%d\n",
			i, b.addr(), b.size)
		freeBytes += b.size
		i++
	}
	Log.LLog(lev, 0, prefix, "free blocks= %d free bytes= %d\n",
		i, freeBytes)
	Log.LLog(lev, 0, prefix, "-----------------------------\n")
}
