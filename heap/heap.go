// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package heap implements a fixed-region allocator: all bookkeeping lives
// inside a single caller supplied byte region and no memory is ever
// requested from the operating system.
//
// A Heap carves variable size, variable alignment allocations out of its
// region using an address ordered free list. Each live allocation carries
// an in-band header (sentinel "ALOC") in front of the payload and a footer
// sentinel ("COLA") behind it; each free span starts with an in-band
// descriptor that doubles as a list node. Freed blocks are coalesced with
// their physical neighbours so a fully drained heap always collapses back
// to one free block.
//
// A Heap is not safe for concurrent use; wrap it in a SyncHeap or an
// external lock when sharing it between goroutines.
package heap

import (
	"sync/atomic"
	"unsafe"
)

const NAME = "heap"

// allocationID is shared by every heap in the process so ids stay unique
// across heaps allocating from different goroutines.
var allocationID uint64

// heapID hands out the per heap identity stored in allocation headers.
var heapID uint64

// Heap manages a single contiguous byte region handed over at Init. The
// zero value is an uninitialised heap: every allocation fails with nil and
// every release of a non-nil pointer fails with false until Init succeeds.
//
// A Heap must not be copied after Init.
type Heap struct {
	root     *freeBlock // lowest addressed free block, nil when exhausted
	base     uintptr
	length   uint64
	id       uint64
	strategy Strategy

	allocations       uint64
	totalAllocations  uint64
	failedAllocations uint64
	failedFrees       uint64

	mem []byte // keeps the region alive for the heap's lifetime
}

// Init prepares the heap for use with the default first-fit strategy.
// It returns true on success and false otherwise.
func (h *Heap) Init(mem []byte) bool {
	return h.InitStrategy(mem, DefaultStrategy)
}

// InitStrategy prepares the heap for use by the application. The region
// must be at least one free-block descriptor long and its base address
// must be aligned for a descriptor. A heap initialises exactly once; a
// second call fails and leaves the heap untouched.
// It returns true on success and false otherwise.
func (h *Heap) InitStrategy(mem []byte, strategy Strategy) bool {
	if h.base != 0 {
		ERR("init: %s\n", EvAlreadyInitialized)
		return false
	}
	if len(mem) == 0 {
		ERR("init: %s: no memory region\n", EvBadConfig)
		return false
	}
	if uint64(len(mem)) < FreeBlockOverhead {
		ERR("init: %s: region of %d bytes cannot hold a free block\n",
			EvBadConfig, len(mem))
		return false
	}
	if strategy != StrategyFirst && strategy != StrategySmallest {
		ERR("init: %s: strategy %d\n", EvBadConfig, strategy)
		return false
	}

	addr := uintptr(unsafe.Pointer(&mem[0]))
	if addr&(freeBlockAlign-1) != 0 {
		ERR("init: %s: region base %#x not aligned to %d\n",
			EvBadConfig, addr, freeBlockAlign)
		return false
	}

	root := blockAt(addr)
	root.size = uint64(len(mem))
	root.prev = nil
	root.next = nil

	h.root = root
	h.base = addr
	h.length = uint64(len(mem))
	h.id = atomic.AddUint64(&heapID, 1)
	h.strategy = strategy
	h.mem = mem
	return true
}

// Alloc allocates size bytes at the default alignment and returns the
// payload address, or nil if the request could not be satisfied.
func (h *Heap) Alloc(size uint64) unsafe.Pointer {
	return h.allocate(size, DefaultAlignment, false, "", 0)
}

// AllocAligned allocates size bytes aligned to alignment, which must be a
// power of two no larger than MaximumAlignment.
func (h *Heap) AllocAligned(size, alignment uint64) unsafe.Pointer {
	return h.allocate(size, alignment, false, "", 0)
}

// AllocArray is the array flavoured Alloc; the matching release must go
// through FreeArray.
func (h *Heap) AllocArray(size uint64) unsafe.Pointer {
	return h.allocate(size, DefaultAlignment, true, "", 0)
}

// AllocArrayAligned is the array flavoured AllocAligned.
func (h *Heap) AllocArrayAligned(size, alignment uint64) unsafe.Pointer {
	return h.allocate(size, alignment, true, "", 0)
}

// AllocTraced allocates like AllocAligned/AllocArrayAligned and records the
// call site in the allocation header for diagnostic dumps.
func (h *Heap) AllocTraced(size, alignment uint64, isArray bool,
	file string, line int) unsafe.Pointer {
	return h.allocate(size, alignment, isArray, file, line)
}

// Free releases a pointer previously returned by one of the non-array
// allocators. Freeing nil always succeeds.
func (h *Heap) Free(p unsafe.Pointer) bool {
	return h.deallocate(p, false)
}

// FreeArray releases a pointer previously returned by one of the array
// allocators.
func (h *Heap) FreeArray(p unsafe.Pointer) bool {
	return h.deallocate(p, true)
}

// FreeTraced releases like Free/FreeArray; the file/line arguments only
// serve the caller's own diagnostics and are passed through to the log on
// failure.
func (h *Heap) FreeTraced(p unsafe.Pointer, isArray bool,
	file string, line int) bool {
	ok := h.deallocate(p, isArray)
	if !ok && ERRon() {
		ERR("free: failed release requested at %s:%d\n", file, line)
	}
	return ok
}

// Size returns the length in bytes of the managed region.
func (h *Heap) Size() uint64 { return h.length }

// Allocations returns the number of currently live allocations.
func (h *Heap) Allocations() uint64 { return h.allocations }

// TotalAllocations returns the number of successful allocations made over
// the heap's lifetime.
func (h *Heap) TotalAllocations() uint64 { return h.totalAllocations }

// FailedAllocations returns the number of allocation requests the heap
// could not satisfy.
func (h *Heap) FailedAllocations() uint64 { return h.failedAllocations }

// FailedFrees returns the number of rejected release attempts.
func (h *Heap) FailedFrees() uint64 { return h.failedFrees }

// Strategy returns the active free block selection strategy, or
// StrategyInvalid before initialisation.
func (h *Heap) Strategy() Strategy { return h.strategy }

// allocate is the single allocation path behind the public Alloc variants.
// On failure it returns nil and bumps the failed allocation counter.
func (h *Heap) allocate(dataLength, alignment uint64, isArray bool,
	file string, line int) unsafe.Pointer {
	if alignment < DefaultAlignment {
		alignment = DefaultAlignment
	}

	if !isPow2(alignment) {
		ERR("alloc: %s: alignment %d\n", EvAlignmentNotPow2, alignment)
		h.failedAllocations++
		return nil
	}
	if alignment > MaximumAlignment {
		ERR("alloc: %s: alignment %d exceeds %d\n",
			EvAlignmentTooLarge, alignment, MaximumAlignment)
		h.failedAllocations++
		return nil
	}

	// The padded footprint keeps the block tail at a spot where a new
	// free-block descriptor can live; the footer sentinel fits in the
	// padding.
	length := padLength(dataLength)

	block := h.findFree(length, alignment)
	if block == nil {
		if ERRon() {
			ERR("alloc: %s: %d bytes, alignment %d\n",
				EvOutOfMemory, dataLength, alignment)
		}
		h.failedAllocations++
		return nil
	}

	alloc := h.consume(block, length, alignment)

	alloc.id = atomic.AddUint64(&allocationID, 1)
	alloc.size = dataLength
	alloc.isArray = isArray
	alloc.file = file
	alloc.line = uint64(line)

	writeSentinel(alloc.payload()+uintptr(dataLength), footerSentinel)

	h.allocations++
	h.totalAllocations++

	return unsafe.Pointer(alloc.payload())
}

// consume carves an allocation of length payload bytes out of block and
// re-links the free list around the remainder, if one survives.
// length must already be padded.
func (h *Heap) consume(block *freeBlock, length, alignment uint64) *allocation {
	raw := block.addr()
	end := raw + uintptr(block.size)

	aligned := alignUp(raw+headerSize, uintptr(alignment))
	blockLength := uint64(aligned-raw) + length
	remaining := uint64(end - (aligned + uintptr(length)))

	// A tail no larger than a header could never host a future allocation,
	// so it is folded into this one instead of being left stranded.
	if remaining <= uint64(headerSize) {
		blockLength += remaining
		remaining = 0
	}

	prev := block.prev
	next := block.next

	if remaining > 0 {
		// The remainder takes over the consumed block's list links.
		rest := blockAt(aligned + uintptr(length))
		rest.size = remaining
		rest.prev = prev
		rest.next = next

		if prev != nil {
			prev.next = rest
		} else {
			h.root = rest
		}
		if next != nil {
			next.prev = rest
		}
	} else {
		if prev != nil {
			prev.next = next
		} else {
			h.root = next
		}
		if next != nil {
			next.prev = prev
		}
	}

	alloc := headerAt(aligned - headerSize)
	alloc.owner = h.id
	alloc.addr = raw
	alloc.blockSize = blockLength
	alloc.sentinel = headerSentinel
	return alloc
}

// deallocate validates and releases a payload pointer. It returns true on
// success; failures leave the heap untouched apart from the failed free
// counter.
func (h *Heap) deallocate(p unsafe.Pointer, isArray bool) bool {
	// Releasing nil is always successful.
	if p == nil {
		if WARNon() {
			WARN("free(nil) called\n")
		}
		return true
	}
	if h.base == 0 {
		return false
	}

	start := uintptr(p)
	alloc := headerAt(start - headerSize)

	lower := h.base
	upper := h.base + uintptr(h.length)

	blockStart := alloc.addr
	blockEnd := blockStart + uintptr(alloc.blockSize)

	if blockStart < lower || blockStart > upper ||
		blockEnd < lower || blockEnd > upper {
		ERR("free: %s: block %#x..%#x outside region %#x..%#x\n",
			EvOutOfBounds, blockStart, blockEnd, lower, upper)
		h.failedFrees++
		return false
	}

	if alloc.owner != h.id {
		ERR("free: %s: pointer %p belongs to heap %d, not %d\n",
			EvWrongHeap, p, alloc.owner, h.id)
		h.failedFrees++
		return false
	}

	if alloc.sentinel != headerSentinel {
		// The block is released anyway; the damage already happened.
		ERR("free: %s: header sentinel %q at %p\n",
			EvCorruptHeader, alloc.sentinel[:], p)
	}

	footer := start + uintptr(alloc.size)
	if footer+footerSize > blockEnd {
		ERR("free: %s: footer of %p lies past the block end\n",
			EvCorruptFooter, p)
	} else if got := readSentinel(footer); got != footerSentinel {
		ERR("free: %s: footer sentinel %q at %p\n",
			EvCorruptFooter, got[:], p)
	}

	if alloc.isArray != isArray {
		ERR("free: %s: pointer %p allocated with isArray=%t\n",
			EvArrayMismatch, p, alloc.isArray)
		h.failedFrees++
		return false
	}

	blockSize := alloc.blockSize

	// Zero the header so a double release trips the checks above.
	*alloc = allocation{}

	block := blockAt(blockStart)
	block.size = blockSize
	block.prev = nil
	block.next = nil

	h.insertFreeBlock(block)
	h.gatherMemory(block)

	h.allocations--
	return true
}

// insertFreeBlock splices a detached block into the free list, keeping the
// list strictly sorted by ascending address.
func (h *Heap) insertFreeBlock(block *freeBlock) {
	if block.prev != nil || block.next != nil {
		PANIC("BUG: inserting a still linked free block %#x\n", block.addr())
		return
	}

	for search := h.root; search != nil; search = search.next {
		if block.addr() < search.addr() {
			block.next = search
			block.prev = search.prev

			if search.prev != nil {
				search.prev.next = block
			} else {
				h.root = block
			}

			search.prev = block
			return
		}

		if search.next == nil {
			// Tail of the list.
			block.prev = search
			search.next = block
			return
		}
	}

	h.root = block
}

// gatherMemory merges block with physically adjacent free neighbours. The
// successor is folded in first so the predecessor comparison sees the
// grown block. It returns the block holding the gathered span.
func (h *Heap) gatherMemory(block *freeBlock) *freeBlock {
	blockStart := block.addr()
	blockEnd := blockStart + uintptr(block.size)

	if next := block.next; next != nil && blockEnd == next.addr() {
		block.size += next.size
		block.next = next.next

		if block.next != nil {
			block.next.prev = block
		}
	}

	if prev := block.prev; prev != nil &&
		prev.addr()+uintptr(prev.size) == blockStart {
		prev.size += block.size
		prev.next = block.next

		if block.next != nil {
			block.next.prev = prev
		}

		block = prev
	}

	return block
}
