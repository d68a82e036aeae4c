// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package heap

import (
	"unsafe"
)

// allocation is the in-band header written immediately before every payload
// handed out by a heap. It is reconstructed from the payload pointer on
// release and zeroed once the block returns to the free list.
type allocation struct {
	owner     uint64  // id of the owning heap, compared on release
	size      uint64  // payload size as requested by the caller
	blockSize uint64  // total block size from addr, absorbed tail included
	id        uint64  // process wide allocation id
	addr      uintptr // start of the block the header was carved from
	file      string  // call site source file, may be empty
	line      uint64
	isArray  bool
	sentinel [4]byte // canary used for detecting header corruption
}

// freeBlock is the in-band descriptor at the start of every free span.
// Its own address is the span's start address; prev/next keep the spans on
// an address ordered doubly linked list.
type freeBlock struct {
	size uint64 // span size, descriptor included
	prev *freeBlock
	next *freeBlock
}

const headerSize = unsafe.Sizeof(allocation{})
const freeBlockSize = unsafe.Sizeof(freeBlock{})
const freeBlockAlign = unsafe.Alignof(freeBlock{})
const footerSize = uintptr(len(footerSentinel))

// Per block overheads, exported so integrators can size their regions.
const (
	HeaderOverhead    = uint64(headerSize)
	FooterOverhead    = uint64(footerSize)
	FreeBlockOverhead = uint64(freeBlockSize)
)

// Alignment limits applied to every allocation request. Requests below
// DefaultAlignment are raised to it, requests above MaximumAlignment fail.
const (
	DefaultAlignment uint64 = 4
	MaximumAlignment uint64 = 128
)

var headerSentinel = [4]byte{'A', 'L', 'O', 'C'}
var footerSentinel = [4]byte{'C', 'O', 'L', 'A'}

// isPow2 returns true if value is a power of two.
func isPow2(value uint64) bool {
	return value != 0 && value&(value-1) == 0
}

// alignUp rounds addr up to the next multiple of alignment.
// alignment must be a power of two.
func alignUp(addr uintptr, alignment uintptr) uintptr {
	return (addr + alignment - 1) &^ (alignment - 1)
}

// padLength rounds a requested payload length up to a multiple of the
// free-block descriptor size so the block tail always lands where a new
// descriptor can be written. The footer sentinel rides in the padding.
func padLength(n uint64) uint64 {
	return (n + uint64(footerSize) + uint64(freeBlockSize) - 1) /
		uint64(freeBlockSize) * uint64(freeBlockSize)
}

// addr returns the start address of the free span described by b.
func (b *freeBlock) addr() uintptr {
	return uintptr(unsafe.Pointer(b))
}

// blockAt reinterprets the bytes at addr as a free-block descriptor.
func blockAt(addr uintptr) *freeBlock {
	return (*freeBlock)(unsafe.Pointer(addr))
}

// headerAt reinterprets the bytes at addr as an allocation header.
func headerAt(addr uintptr) *allocation {
	return (*allocation)(unsafe.Pointer(addr))
}

// payload returns the address handed to the caller for this allocation.
func (a *allocation) payload() uintptr {
	return uintptr(unsafe.Pointer(a)) + headerSize
}

// writeSentinel stores a 4 byte marker at addr.
func writeSentinel(addr uintptr, s [4]byte) {
	*(*[4]byte)(unsafe.Pointer(addr)) = s
}

// readSentinel loads a 4 byte marker from addr.
func readSentinel(addr uintptr) [4]byte {
	return *(*[4]byte)(unsafe.Pointer(addr))
}
