package ffi

import (
	"fmt"
	"reflect"

	"github.com/funvibe/loom/internal/config"
)

// EntryFunc is a compiled trampoline. Arguments and result are boxed words
// whose objects live in the request's heap.
type EntryFunc func(args []uint64) (uint64, error)

// Entry is one callable the compiled module must provide.
type Entry struct {
	// Name is the exposed name; Symbol is the generated C symbol.
	Name   string
	Symbol string
	// Target is the library function; unset for struct accessors.
	Target   Symbol
	Args     []Descriptor
	Ret      Descriptor
	Receiver bool
	// Accessor is the struct read by a ptrTo entry.
	Accessor *StructLayout
}

func (e *Entry) shape() string {
	b := &boundFunc{Decl: &FuncDecl{Args: e.Args, Ret: e.Ret}, Receiver: e.Receiver}
	return b.nativeKey()
}

// CompileRequest is everything a backend needs to produce callable code.
type CompileRequest struct {
	Source  *GeneratedSource
	Library Library
	Heap    *Heap
	Entries []*Entry
	Layouts []*StructLayout
	// Intrinsics are runtime helpers the generated code may reference,
	// resolved before relocation.
	Intrinsics map[string]uintptr
}

func (r *CompileRequest) layout(name string) *StructLayout {
	for _, l := range r.Layouts {
		if l.Name == name {
			return l
		}
	}
	panic(fmt.Sprintf("ffi: layout %s missing from request", name))
}

// Module is compiled code. Close frees it; entries must not be called
// afterwards.
type Module interface {
	Entry(name string) (EntryFunc, bool)
	Close() error
}

// Compiler turns a request into a Module. Failing to compile generated
// source is a generator bug and panics; errors are reserved for requests the
// backend cannot serve.
type Compiler interface {
	Name() string
	Compile(req *CompileRequest) (Module, error)
}

// NewCompiler returns the backend with the given name.
func NewCompiler(backend string) (Compiler, error) {
	switch backend {
	case "", config.BackendTable:
		return &TableCompiler{}, nil
	case config.BackendTCC:
		return newTCCCompiler()
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}

// TableCompiler binds Go library functions through a table of prebuilt
// marshalling frames instead of compiling the generated source. Entries with
// the same native shape and Go function type share one frame.
type TableCompiler struct{}

func (c *TableCompiler) Name() string { return config.BackendTable }

type frameKey struct {
	shape string
	typ   reflect.Type
}

type tableModule struct {
	entries map[string]EntryFunc
	frames  int
	closed  bool
}

func (m *tableModule) Entry(name string) (EntryFunc, bool) {
	fn, ok := m.entries[name]
	if !ok || m.closed {
		return nil, false
	}
	return fn, true
}

func (m *tableModule) Close() error {
	m.closed = true
	m.entries = nil
	return nil
}

func (c *TableCompiler) Compile(req *CompileRequest) (Module, error) {
	conv := &goConverter{heap: req.Heap, layout: req.layout}
	frames := make(map[frameKey]*frame)
	mod := &tableModule{entries: make(map[string]EntryFunc, len(req.Entries))}

	for _, e := range req.Entries {
		if e.Accessor != nil {
			mod.entries[e.Name] = accessorEntry(req.Heap, e, req.layout)
			continue
		}
		if !e.Target.Func.IsValid() {
			return nil, invalidIn(e.Name, "the %s backend needs a Go library symbol", c.Name())
		}
		key := frameKey{shape: e.shape(), typ: e.Target.Func.Type()}
		fr, ok := frames[key]
		if !ok {
			var err error
			fr, err = conv.newFrame(e, e.Target.Func.Type())
			if err != nil {
				return nil, err
			}
			frames[key] = fr
		}
		mod.entries[e.Name] = fr.bind(e.Name, e.Target.Func)
	}
	mod.frames = len(frames)
	log.Debugf("table backend: %d entries, %d frames", len(mod.entries), mod.frames)
	return mod, nil
}

// accessorEntry reads a struct from the raw address in its pointer argument.
func accessorEntry(heap *Heap, e *Entry, layout func(string) *StructLayout) EntryFunc {
	index := 0
	if e.Receiver {
		index = 1
	}
	return func(args []uint64) (uint64, error) {
		if len(args) != index+1 {
			return 0, fmt.Errorf("%s: expected 1 argument, got %d", e.Name, len(args)-index)
		}
		addr, err := heap.PointerAt(args[index])
		if err != nil {
			return 0, fmt.Errorf("%s: %w", e.Name, err)
		}
		if addr == 0 {
			return 0, fmt.Errorf("%s: nil pointer", e.Name)
		}
		return readBoxed(heap, StructRef{Name: e.Accessor.Name}, addr, layout), nil
	}
}
