package ffi

import (
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/funvibe/loom/internal/typesystem"
)

// StructLayout is a validated native struct with its C layout.
type StructLayout struct {
	Name   string
	Fields []FieldDecl
	// Offsets are byte offsets of each field on LP64 targets.
	Offsets []uintptr
	Size    uintptr
	Align   uintptr
	// Type is the checker type for values of this struct.
	Type *typesystem.TStruct
}

// Field returns the index of the named field.
func (l *StructLayout) Field(name string) (int, bool) {
	for i, f := range l.Fields {
		if fieldName(f, i) == name {
			return i, true
		}
	}
	return 0, false
}

// plan is a validated binding request.
type plan struct {
	// structs maps struct name to *StructLayout in declaration order.
	structs *linkedhashmap.Map
	funcs   []*FuncDecl
	symbols map[string]Symbol
	library string
}

func (p *plan) layouts() []*StructLayout {
	vals := p.structs.Values()
	out := make([]*StructLayout, len(vals))
	for i, v := range vals {
		out[i] = v.(*StructLayout)
	}
	return out
}

func (p *plan) layout(name string) (*StructLayout, bool) {
	v, ok := p.structs.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*StructLayout), true
}

// validate checks every declaration. Struct fields may only reference
// structs declared before them; function descriptors may reference any
// struct in the request. When lib is nil, symbol lookup is skipped.
func validate(decls []Decl, lib Library) (*plan, error) {
	p := &plan{
		structs: linkedhashmap.New(),
		symbols: make(map[string]Symbol),
	}
	if lib != nil {
		p.library = lib.Name()
	}
	seenFuncs := make(map[string]bool)

	for i, d := range decls {
		switch d := d.(type) {
		case *StructDecl:
			if d.Type == "" || !isIdent(d.Type) {
				return nil, invalidIn(fmt.Sprintf("decls[%d]", i), "bad struct name %q", d.Type)
			}
			if _, isPrim := LookupPrim(d.Type); isPrim {
				return nil, invalidIn(d.Type, "struct name shadows a primitive tag")
			}
			if _, dup := p.structs.Get(d.Type); dup {
				return nil, invalidIn(d.Type, "struct declared twice")
			}
			if len(d.Fields) == 0 {
				return nil, invalidIn(d.Type, "struct has no fields")
			}
			seenNames := make(map[string]bool)
			for j, f := range d.Fields {
				if err := p.checkDescriptor(f.Type, false); err != nil {
					return nil, invalidIn(d.Type, "field %d: %s", j, reason(err))
				}
				name := fieldName(f, j)
				if seenNames[name] {
					return nil, invalidIn(d.Type, "duplicate field %s", name)
				}
				seenNames[name] = true
			}
			p.structs.Put(d.Type, p.newLayout(d))
		case *FuncDecl:
			if d.Sym == "" || !isIdent(d.Sym) {
				return nil, invalidIn(fmt.Sprintf("decls[%d]", i), "bad symbol name %q", d.Sym)
			}
			if seenFuncs[d.Sym] {
				return nil, invalidIn(d.Sym, "function declared twice")
			}
			seenFuncs[d.Sym] = true
			if lib != nil {
				sym, ok := lib.Lookup(d.Sym)
				if !ok {
					return nil, &MissingSymbolError{Name: d.Sym, Library: lib.Name()}
				}
				p.symbols[d.Sym] = sym
			}
			fd := *d
			if fd.Ret == nil {
				fd.Ret = Void
			}
			p.funcs = append(p.funcs, &fd)
		case nil:
			return nil, invalidIn(fmt.Sprintf("decls[%d]", i), "nil declaration")
		default:
			panic(fmt.Sprintf("ffi: unhandled declaration %T", d))
		}
	}

	// Function descriptors see every struct, so they are checked last.
	for _, f := range p.funcs {
		for j, a := range f.Args {
			if err := p.checkDescriptor(a, false); err != nil {
				return nil, invalidIn(f.Sym, "args[%d]: %s", j, reason(err))
			}
		}
		if err := p.checkDescriptor(f.Ret, true); err != nil {
			return nil, invalidIn(f.Sym, "ret: %s", reason(err))
		}
	}
	return p, nil
}

func (p *plan) checkDescriptor(d Descriptor, allowVoid bool) error {
	switch d := d.(type) {
	case PrimDesc:
		if int(d.Prim) < 0 || int(d.Prim) >= len(prims) {
			return invalidf("unsupported primitive tag %d", int(d.Prim))
		}
		if d.Prim == PrimVoid && !allowVoid {
			return invalidf("void is only valid as a return type")
		}
		return nil
	case StructRef:
		if _, ok := p.structs.Get(d.Name); !ok {
			return invalidf("undeclared struct %s", d.Name)
		}
		return nil
	case ArrayDesc:
		if d.Len <= 0 {
			return invalidf("array length must be positive, got %d", d.Len)
		}
		if d.Elem == nil {
			return invalidf("array without element type")
		}
		return p.checkDescriptor(d.Elem, false)
	case nil:
		return invalidf("missing descriptor")
	}
	panic(fmt.Sprintf("ffi: unhandled descriptor %T", d))
}

func (p *plan) newLayout(d *StructDecl) *StructLayout {
	l := &StructLayout{
		Name:    d.Type,
		Fields:  d.Fields,
		Offsets: make([]uintptr, len(d.Fields)),
		Align:   1,
	}
	var off uintptr
	fields := make([]typesystem.Field, len(d.Fields))
	for i, f := range d.Fields {
		size, align := p.sizeOf(f.Type)
		off = alignUp(off, align)
		l.Offsets[i] = off
		off += size
		if align > l.Align {
			l.Align = align
		}
		fields[i] = typesystem.Field{Name: fieldName(f, i), Type: p.checkerType(f.Type)}
	}
	l.Size = alignUp(off, l.Align)
	l.Type = &typesystem.TStruct{Name: d.Type, Fields: fields, Native: true, Library: p.library}
	return l
}

func (p *plan) sizeOf(d Descriptor) (size, align uintptr) {
	switch d := d.(type) {
	case PrimDesc:
		s := d.Prim.Size()
		return s, s
	case StructRef:
		l, _ := p.layout(d.Name)
		return l.Size, l.Align
	case ArrayDesc:
		s, a := p.sizeOf(d.Elem)
		return s * uintptr(d.Len), a
	}
	panic(fmt.Sprintf("ffi: unhandled descriptor %T", d))
}

func alignUp(n, align uintptr) uintptr {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// checkerType maps a descriptor onto the type the checker sees.
func (p *plan) checkerType(d Descriptor) typesystem.Type {
	switch d := d.(type) {
	case PrimDesc:
		switch {
		case d.Prim == PrimBool:
			return typesystem.Bool
		case d.Prim.IsInteger():
			return typesystem.Int
		case d.Prim.IsFloat():
			return typesystem.Float
		case d.Prim == PrimCharPtr:
			return typesystem.String
		case d.Prim == PrimVoidPtr:
			return typesystem.Pointer
		case d.Prim == PrimVoid:
			return typesystem.None
		}
	case StructRef:
		l, _ := p.layout(d.Name)
		return l.Type
	case ArrayDesc:
		return typesystem.TArray{Elem: p.checkerType(d.Elem), Len: d.Len}
	}
	panic(fmt.Sprintf("ffi: unhandled descriptor %T", d))
}
