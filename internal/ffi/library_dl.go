//go:build tcc && cgo

package ffi

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"os"
	"unsafe"
)

type dlLibrary struct {
	path   string
	handle unsafe.Pointer
}

// OpenLibrary opens a shared library with dlopen.
func OpenLibrary(path string) (Library, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &FileNotFoundError{Path: path, Err: err}
	}
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	h := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if h == nil {
		return nil, &FileNotFoundError{Path: path, Err: errors.New(C.GoString(C.dlerror()))}
	}
	log.Debugf("opened %s", path)
	return &dlLibrary{path: path, handle: h}, nil
}

func (l *dlLibrary) Name() string { return l.path }

func (l *dlLibrary) Lookup(name string) (Symbol, bool) {
	if l.handle == nil {
		return Symbol{}, false
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	p := C.dlsym(l.handle, cname)
	if p == nil {
		return Symbol{}, false
	}
	return Symbol{Name: name, Addr: uintptr(p)}, true
}

func (l *dlLibrary) Close() error {
	if l.handle == nil {
		return nil
	}
	rc := C.dlclose(l.handle)
	l.handle = nil
	if rc != 0 {
		return errors.New(C.GoString(C.dlerror()))
	}
	return nil
}
