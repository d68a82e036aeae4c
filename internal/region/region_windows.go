//go:build windows

package region

import "errors"

var ErrNotSupported = errors.New("region: mmap not supported on windows")

func Map(size int) ([]byte, error) {
	return nil, ErrNotSupported
}

func Unmap(mem []byte) error {
	return nil
}
