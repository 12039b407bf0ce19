package ffi

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/funvibe/loom/internal/config"
	"github.com/funvibe/loom/internal/typesystem"
	"github.com/funvibe/loom/internal/vm"
)

// Options configures a Binder.
type Options struct {
	// Mode is config.BindModeMap (default) or config.BindModeType.
	Mode string
	// Compiler defaults to the table backend.
	Compiler Compiler
	// Signatures receives the signatures of bound functions. A fresh table
	// is used when nil.
	Signatures *typesystem.Signatures
	// Cache defaults to an in-memory cache.
	Cache *SourceCache
	// Intrinsics are extra symbols made available to generated code.
	Intrinsics map[string]uintptr
}

// Binder turns binding requests into VM callables. A Binder belongs to one
// VM and must be used from its thread only.
type Binder struct {
	mode       string
	compiler   Compiler
	sigs       *typesystem.Signatures
	cache      *SourceCache
	heap       *Heap
	intrinsics map[string]uintptr
}

func NewBinder(opts Options) *Binder {
	b := &Binder{
		mode:       opts.Mode,
		compiler:   opts.Compiler,
		sigs:       opts.Signatures,
		cache:      opts.Cache,
		intrinsics: opts.Intrinsics,
	}
	if b.mode == "" {
		b.mode = config.BindModeMap
	}
	if b.compiler == nil {
		b.compiler = &TableCompiler{}
	}
	if b.sigs == nil {
		b.sigs = typesystem.NewSignatures()
	}
	if b.cache == nil {
		b.cache = NewSourceCache("")
	}
	var mem Allocator
	if p, ok := b.compiler.(interface{ Allocator() Allocator }); ok {
		mem = p.Allocator()
	}
	b.heap = NewHeap(mem)
	return b
}

func (b *Binder) Signatures() *typesystem.Signatures { return b.sigs }
func (b *Binder) Cache() *SourceCache               { return b.cache }
func (b *Binder) Heap() *Heap                       { return b.heap }

// Binding is the result of a successful Bind.
type Binding struct {
	// Value is a *vm.Map (map mode) or a *vm.TypeValue (type mode).
	Value  vm.Value
	Handle *Handle
	Source *GeneratedSource

	// Functions are the exposed callables in declaration order, accessors
	// last. Types are the checker types of the bound structs.
	Functions []*vm.NativeFunction
	Types     []*typesystem.TStruct
}

// Bind validates decls against lib, generates and compiles the glue and
// exposes one callable per function plus one ptrTo accessor per struct.
// Every callable holds a reference on the returned handle; the module and
// the library are released with the last one.
func (b *Binder) Bind(lib Library, decls []Decl) (*Binding, error) {
	if len(decls) == 0 {
		return nil, invalidf("no declarations")
	}
	p, err := validate(decls, lib)
	if err != nil {
		return nil, err
	}
	receiver := b.mode == config.BindModeType
	funcs := buildSignatures(p, receiver, b.sigs)

	src, err := b.source(p, decls, receiver)
	if err != nil {
		return nil, err
	}

	var entries []*Entry
	for i, f := range funcs {
		entries = append(entries, &Entry{
			Name:     f.Decl.Sym,
			Symbol:   src.Trampolines[i].Symbol,
			Target:   f.Symbol,
			Args:     f.Decl.Args,
			Ret:      f.Decl.Ret,
			Receiver: receiver,
		})
	}
	layouts := p.layouts()
	for i, l := range layouts {
		t := src.Trampolines[len(funcs)+i]
		entries = append(entries, &Entry{
			Name:     t.Name,
			Symbol:   t.Symbol,
			Args:     []Descriptor{VoidPtr},
			Ret:      StructRef{Name: l.Name},
			Receiver: receiver,
			Accessor: l,
		})
	}

	mod, err := b.compiler.Compile(&CompileRequest{
		Source:     src,
		Library:    lib,
		Heap:       b.heap,
		Entries:    entries,
		Layouts:    layouts,
		Intrinsics: b.intrinsics,
	})
	if err != nil {
		return nil, err
	}

	handle := newHandle(mod, lib)
	m := &marshaller{plan: p, heap: b.heap}
	callables := make([]*vm.NativeFunction, 0, len(entries))
	for i, e := range entries {
		fn, ok := mod.Entry(e.Name)
		if !ok {
			panic(fmt.Sprintf("ffi: %s backend produced no entry for %s", b.compiler.Name(), e.Name))
		}
		var sig typesystem.TFunc
		if e.Accessor != nil {
			sig = accessorSignature(e.Accessor, receiver)
		} else {
			sig = funcs[i].Signature.Type
		}
		handle.Retain()
		callables = append(callables, &vm.NativeFunction{
			Name:      e.Name,
			Signature: sig,
			Fn:        b.callable(m, e, fn),
			Owner:     handle,
		})
	}

	binding := &Binding{Handle: handle, Source: src, Functions: callables}
	for _, l := range layouts {
		binding.Types = append(binding.Types, l.Type)
	}
	if receiver {
		tv := vm.NewTypeValue("native_" + handle.ID.String()[:8])
		for _, c := range callables {
			tv.AddMethod(c)
		}
		binding.Value = vm.ObjVal(tv)
	} else {
		out := vm.NewMap()
		for _, c := range callables {
			out.Set(c.Name, vm.ObjVal(c))
		}
		binding.Value = vm.ObjVal(out)
	}
	log.Infof("bound %d functions and %d structs from %s (%s backend, handle %s)",
		len(funcs), len(layouts), lib.Name(), b.compiler.Name(), handle.ID)
	return binding, nil
}

func (b *Binder) source(p *plan, decls []Decl, receiver bool) (*GeneratedSource, error) {
	key, err := Fingerprint(decls, receiver)
	if err != nil {
		return nil, err
	}
	if src, ok := b.cache.Lookup(key); ok {
		log.Debugf("reusing binding source %s", key)
		return src, nil
	}
	src, err := generate(p, collectArrays(p), receiver)
	if err != nil {
		return nil, err
	}
	if err := b.cache.Store(key, src); err != nil {
		log.Warningf("caching binding source: %s", err)
	}
	return src, nil
}

// callable adapts a trampoline to the VM calling convention. Boxed objects
// allocated for the call are released when it returns.
func (b *Binder) callable(m *marshaller, e *Entry, fn EntryFunc) vm.NativeFunc {
	offset := 0
	if e.Receiver {
		offset = 1
	}
	return func(args []vm.Value) (vm.Value, error) {
		if len(args) != len(e.Args)+offset {
			return vm.NoneVal(), &typesystem.ArityMismatchError{Want: len(e.Args) + offset, Got: len(args)}
		}
		mark := b.heap.Mark()
		defer b.heap.ReleaseSince(mark)

		words := make([]uint64, len(args))
		if e.Receiver {
			words[0] = BoxedNone
		}
		for i, d := range e.Args {
			w, err := m.box(d, args[i+offset])
			if err != nil {
				return vm.NoneVal(), fmt.Errorf("%s: argument %d: %w", e.Name, i+1, err)
			}
			words[i+offset] = w
		}
		res, err := fn(words)
		if err != nil {
			return vm.NoneVal(), err
		}
		v, err := m.unbox(e.Ret, res)
		if err != nil {
			return vm.NoneVal(), fmt.Errorf("%s: result: %w", e.Name, err)
		}
		return v, nil
	}
}

// Handle is the compiled module and library shared by every callable of one
// binding. It is reference counted and freed with its last reference.
type Handle struct {
	ID       uuid.UUID
	refs     int
	module   Module
	lib      Library
	released bool
}

func newHandle(mod Module, lib Library) *Handle {
	return &Handle{ID: uuid.New(), module: mod, lib: lib}
}

func (h *Handle) Retain() { h.refs++ }

// Release drops one reference. The last one closes the module and the
// library.
func (h *Handle) Release() error {
	if h.released {
		return nil
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	h.released = true
	log.Debugf("releasing native handle %s", h.ID)
	err := h.module.Close()
	if cerr := h.lib.Close(); err == nil {
		err = cerr
	}
	return err
}

func (h *Handle) Refs() int      { return h.refs }
func (h *Handle) Released() bool { return h.released }
