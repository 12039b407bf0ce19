//go:build !tcc || !cgo

package ffi

import (
	"fmt"
	"os"
)

// OpenLibrary opens a shared library. This build can only report whether
// the file exists.
func OpenLibrary(path string) (Library, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &FileNotFoundError{Path: path, Err: err}
	}
	return nil, fmt.Errorf("%s: %w", path, ErrNativeUnavailable)
}
