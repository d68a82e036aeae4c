//go:build unix

// Package region obtains raw byte regions from the operating system for
// hosts that want to hand a heap a pool carved straight out of OS memory
// instead of a Go allocated slice. The heap itself never calls this; the
// caller owns the mapping and must release it after the heap is gone.
package region

import (
	"golang.org/x/sys/unix"
)

// Map returns an anonymous, page aligned read/write mapping of size bytes.
func Map(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
}

// Unmap releases a mapping returned by Map.
func Unmap(mem []byte) error {
	return unix.Munmap(mem)
}
