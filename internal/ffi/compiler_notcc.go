//go:build !tcc || !cgo

package ffi

import (
	"fmt"

	"github.com/funvibe/loom/internal/config"
)

func newTCCCompiler() (Compiler, error) {
	return nil, fmt.Errorf("%s backend: %w", config.BackendTCC, ErrNativeUnavailable)
}
