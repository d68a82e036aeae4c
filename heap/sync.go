// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package heap

import (
	"sync"
	"unsafe"
)

// SyncHeap serialises access to a Heap with one big lock so a single heap
// can be shared between goroutines. The embedded heap keeps its
// single-threaded semantics; every exported method takes the lock around
// the matching Heap call.
type SyncHeap struct {
	bigLock sync.Mutex
	heap    Heap
}

func (s *SyncHeap) lock() {
	s.bigLock.Lock()
}
func (s *SyncHeap) unlock() {
	s.bigLock.Unlock()
}

// Init prepares the heap with the default first-fit strategy.
func (s *SyncHeap) Init(mem []byte) bool {
	s.lock()
	ok := s.heap.Init(mem)
	s.unlock()
	return ok
}

// InitStrategy prepares the heap with the given strategy.
func (s *SyncHeap) InitStrategy(mem []byte, strategy Strategy) bool {
	s.lock()
	ok := s.heap.InitStrategy(mem, strategy)
	s.unlock()
	return ok
}

// Alloc is the locking version of Heap.Alloc.
func (s *SyncHeap) Alloc(size uint64) unsafe.Pointer {
	s.lock()
	p := s.heap.Alloc(size)
	s.unlock()
	return p
}

// AllocAligned is the locking version of Heap.AllocAligned.
func (s *SyncHeap) AllocAligned(size, alignment uint64) unsafe.Pointer {
	s.lock()
	p := s.heap.AllocAligned(size, alignment)
	s.unlock()
	return p
}

// AllocArray is the locking version of Heap.AllocArray.
func (s *SyncHeap) AllocArray(size uint64) unsafe.Pointer {
	s.lock()
	p := s.heap.AllocArray(size)
	s.unlock()
	return p
}

// AllocArrayAligned is the locking version of Heap.AllocArrayAligned.
func (s *SyncHeap) AllocArrayAligned(size, alignment uint64) unsafe.Pointer {
	s.lock()
	p := s.heap.AllocArrayAligned(size, alignment)
	s.unlock()
	return p
}

// Free is the locking version of Heap.Free.
func (s *SyncHeap) Free(p unsafe.Pointer) bool {
	s.lock()
	ok := s.heap.Free(p)
	s.unlock()
	return ok
}

// FreeArray is the locking version of Heap.FreeArray.
func (s *SyncHeap) FreeArray(p unsafe.Pointer) bool {
	s.lock()
	ok := s.heap.FreeArray(p)
	s.unlock()
	return ok
}

// Size returns the length in bytes of the managed region.
func (s *SyncHeap) Size() uint64 {
	s.lock()
	n := s.heap.Size()
	s.unlock()
	return n
}

// Allocations returns the number of currently live allocations.
func (s *SyncHeap) Allocations() uint64 {
	s.lock()
	n := s.heap.Allocations()
	s.unlock()
	return n
}

// TotalAllocations returns the number of successful allocations made over
// the heap's lifetime.
func (s *SyncHeap) TotalAllocations() uint64 {
	s.lock()
	n := s.heap.TotalAllocations()
	s.unlock()
	return n
}

// FailedAllocations returns the number of allocation requests the heap
// could not satisfy.
func (s *SyncHeap) FailedAllocations() uint64 {
	s.lock()
	n := s.heap.FailedAllocations()
	s.unlock()
	return n
}

// FailedFrees returns the number of rejected release attempts.
func (s *SyncHeap) FailedFrees() uint64 {
	s.lock()
	n := s.heap.FailedFrees()
	s.unlock()
	return n
}

// Strategy returns the active free block selection strategy.
func (s *SyncHeap) Strategy() Strategy {
	s.lock()
	st := s.heap.Strategy()
	s.unlock()
	return st
}

// DumpStatus is the locking version of Heap.DumpStatus.
func (s *SyncHeap) DumpStatus() {
	s.lock()
	s.heap.DumpStatus()
	s.unlock()
}
