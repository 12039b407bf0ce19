//go:build tcc && cgo

package ffi

/*
#cgo LDFLAGS: -ltcc -ldl -lm
#include <stdlib.h>
#include <libtcc.h>

typedef unsigned long long lm_value;

lm_value lm_invoke(void* fn, lm_value* args);
void lm_add_runtime_symbols(TCCState* s);
int lm_relocate(TCCState* s);
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/funvibe/loom/internal/config"
)

// activeHeap serves the runtime callbacks of generated code. Calls into
// native code happen on the VM thread only, one at a time.
var activeHeap *Heap

// TCCCompiler compiles the generated source in memory with libtcc and
// resolves it against a native library.
type TCCCompiler struct{}

func newTCCCompiler() (Compiler, error) {
	return &TCCCompiler{}, nil
}

func (c *TCCCompiler) Name() string { return config.BackendTCC }

// Allocator keeps heap objects in C memory so generated code may hold
// pointers into them.
func (c *TCCCompiler) Allocator() Allocator { return cAllocator{} }

type tccModule struct {
	state   *C.TCCState
	entries map[string]EntryFunc
}

func (m *tccModule) Entry(name string) (EntryFunc, bool) {
	fn, ok := m.entries[name]
	return fn, ok && m.state != nil
}

func (m *tccModule) Close() error {
	if m.state != nil {
		C.tcc_delete(m.state)
		m.state = nil
	}
	m.entries = nil
	return nil
}

func (c *TCCCompiler) Compile(req *CompileRequest) (Module, error) {
	for _, e := range req.Entries {
		if e.Accessor == nil && e.Target.Addr == 0 {
			return nil, invalidIn(e.Name, "the %s backend needs a native library symbol", c.Name())
		}
	}

	s := C.tcc_new()
	if s == nil {
		panic("ffi: tcc_new failed")
	}
	opts := C.CString("-nostdlib")
	C.tcc_set_options(s, opts)
	C.free(unsafe.Pointer(opts))
	C.tcc_set_output_type(s, C.TCC_OUTPUT_MEMORY)

	text := C.CString(req.Source.Text)
	defer C.free(unsafe.Pointer(text))
	if C.tcc_compile_string(s, text) != 0 {
		C.tcc_delete(s)
		panic(fmt.Sprintf("ffi: generated source %s does not compile", req.Source.Fingerprint))
	}

	C.lm_add_runtime_symbols(s)
	for name, addr := range req.Intrinsics {
		addSymbol(s, name, addr)
	}
	for _, e := range req.Entries {
		if e.Accessor == nil {
			addSymbol(s, e.Target.Name, e.Target.Addr)
		}
	}
	if C.lm_relocate(s) < 0 {
		C.tcc_delete(s)
		panic(fmt.Sprintf("ffi: relocating generated source %s failed", req.Source.Fingerprint))
	}

	mod := &tccModule{state: s, entries: make(map[string]EntryFunc, len(req.Entries))}
	for _, e := range req.Entries {
		name := C.CString(e.Symbol)
		fn := C.tcc_get_symbol(s, name)
		C.free(unsafe.Pointer(name))
		if fn == nil {
			panic(fmt.Sprintf("ffi: generated source has no symbol %s", e.Symbol))
		}
		mod.entries[e.Name] = invoker(req.Heap, fn)
	}
	log.Debugf("tcc backend: compiled %d bytes, %d entries", len(req.Source.Text), len(mod.entries))
	return mod, nil
}

func addSymbol(s *C.TCCState, name string, addr uintptr) {
	cname := C.CString(name)
	C.tcc_add_symbol(s, cname, unsafe.Pointer(addr))
	C.free(unsafe.Pointer(cname))
}

func invoker(heap *Heap, fn unsafe.Pointer) EntryFunc {
	return func(args []uint64) (uint64, error) {
		prev := activeHeap
		activeHeap = heap
		defer func() { activeHeap = prev }()

		var argp *C.lm_value
		if len(args) > 0 {
			argp = (*C.lm_value)(unsafe.Pointer(&args[0]))
		}
		return uint64(C.lm_invoke(fn, argp)), nil
	}
}

type cAllocator struct{}

func (cAllocator) Words(n int) []uint64 {
	p := C.calloc(C.size_t(n+1), 8)
	return unsafe.Slice((*uint64)(p), n+1)[:n]
}

func (cAllocator) Bytes(n int) []byte {
	p := C.calloc(C.size_t(n+1), 1)
	return unsafe.Slice((*byte)(p), n+1)[:n]
}

func (cAllocator) FreeWords(w []uint64) { C.free(unsafe.Pointer(unsafe.SliceData(w))) }
func (cAllocator) FreeBytes(b []byte)   { C.free(unsafe.Pointer(unsafe.SliceData(b))) }

//export lmRelease
func lmRelease(v C.lm_value) {
	activeHeap.Release(uint64(v))
}

//export lmRawPtr
func lmRawPtr(v C.lm_value) unsafe.Pointer {
	b := uint64(v)
	if KindOf(b) != KindObject {
		return nil
	}
	e, ok := activeHeap.entries[UnboxObject(b)]
	if !ok {
		return nil
	}
	switch e.kind {
	case entryPointer:
		return unsafe.Pointer(e.addr)
	case entryString:
		return unsafe.Pointer(unsafe.SliceData(e.str))
	default:
		return unsafe.Pointer(unsafe.SliceData(e.slots))
	}
}

//export lmAllocObject
func lmAllocObject(n C.int) C.lm_value {
	return C.lm_value(activeHeap.AllocObject(int(n)))
}

//export lmAllocList
func lmAllocList(n C.int) C.lm_value {
	return C.lm_value(activeHeap.AllocList(int(n)))
}

//export lmAllocPtr
func lmAllocPtr(p unsafe.Pointer) C.lm_value {
	return C.lm_value(activeHeap.AllocPointer(uintptr(p)))
}

//export lmAllocStr
func lmAllocStr(s *C.char) C.lm_value {
	return C.lm_value(activeHeap.AllocString(C.GoString(s)))
}
