package ffi

import (
	"fmt"
	"strings"

	"github.com/funvibe/loom/internal/vm"
)

// Decl is one entry of a binding request: a *FuncDecl or a *StructDecl.
type Decl interface {
	DeclName() string
	decl()
}

// FuncDecl binds the exported native function Sym.
type FuncDecl struct {
	Sym  string
	Args []Descriptor
	Ret  Descriptor
}

func (d *FuncDecl) DeclName() string { return d.Sym }
func (d *FuncDecl) decl()            {}

// FieldDecl is a struct member. Unnamed fields are called f0, f1, ...
type FieldDecl struct {
	Name string
	Type Descriptor
}

// StructDecl declares a native struct. Field order is the native layout
// order.
type StructDecl struct {
	Type   string
	Fields []FieldDecl
}

func (d *StructDecl) DeclName() string { return d.Type }
func (d *StructDecl) decl()            {}

// Func is shorthand for building a function declaration.
func Func(sym string, ret Descriptor, args ...Descriptor) *FuncDecl {
	return &FuncDecl{Sym: sym, Args: args, Ret: ret}
}

// NewStruct builds a struct declaration.
func NewStruct(name string, fields ...FieldDecl) *StructDecl {
	return &StructDecl{Type: name, Fields: fields}
}

// F builds a named field.
func F(name string, d Descriptor) FieldDecl {
	return FieldDecl{Name: name, Type: d}
}

func fieldName(f FieldDecl, i int) string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("f%d", i)
}

// DeclsFromValue reads a binding request handed over by a script: a list of
// maps, each either {sym, args, ret} or {type, fields}. Fields may be a list
// of descriptors or a map from field name to descriptor. A descriptor is a
// string (primitive tag or struct name), a type value, or a map {elem, n}.
func DeclsFromValue(v vm.Value) ([]Decl, error) {
	list, ok := v.Obj.(*vm.List)
	if !v.IsObj() || !ok {
		return nil, invalidf("declarations must be a list, got %s", v.RuntimeType())
	}
	out := make([]Decl, 0, list.Len())
	for i, e := range list.Elems {
		m, ok := e.Obj.(*vm.Map)
		if !e.IsObj() || !ok {
			return nil, invalidIn(fmt.Sprintf("decls[%d]", i), "expected a map, got %s", e.RuntimeType())
		}
		d, err := declFromMap(m, i)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func declFromMap(m *vm.Map, i int) (Decl, error) {
	where := fmt.Sprintf("decls[%d]", i)
	sym, hasSym := m.Get("sym")
	typ, hasType := m.Get("type")
	switch {
	case hasSym && hasType:
		return nil, invalidIn(where, "sym and type are mutually exclusive")
	case hasSym:
		name, ok := stringOf(sym)
		if !ok || name == "" {
			return nil, invalidIn(where, "sym must be a non-empty string")
		}
		fd := &FuncDecl{Sym: name, Ret: Void}
		if args, ok := m.Get("args"); ok {
			l, ok := args.Obj.(*vm.List)
			if !args.IsObj() || !ok {
				return nil, invalidIn(name, "args must be a list")
			}
			for j, a := range l.Elems {
				d, err := descriptorFromValue(a)
				if err != nil {
					return nil, invalidIn(name, "args[%d]: %s", j, reason(err))
				}
				fd.Args = append(fd.Args, d)
			}
		}
		if ret, ok := m.Get("ret"); ok {
			d, err := descriptorFromValue(ret)
			if err != nil {
				return nil, invalidIn(name, "ret: %s", reason(err))
			}
			fd.Ret = d
		}
		return fd, nil
	case hasType:
		name, ok := typeNameOf(typ)
		if !ok || name == "" {
			return nil, invalidIn(where, "type must be a name or a type value")
		}
		sd := &StructDecl{Type: name}
		fields, ok := m.Get("fields")
		if !ok {
			return nil, invalidIn(name, "fields are required")
		}
		switch f := fields.Obj.(type) {
		case *vm.List:
			for j, e := range f.Elems {
				d, err := descriptorFromValue(e)
				if err != nil {
					return nil, invalidIn(name, "fields[%d]: %s", j, reason(err))
				}
				sd.Fields = append(sd.Fields, FieldDecl{Type: d})
			}
		case *vm.Map:
			for _, k := range f.Keys() {
				e, _ := f.Get(k)
				d, err := descriptorFromValue(e)
				if err != nil {
					return nil, invalidIn(name, "field %s: %s", k, reason(err))
				}
				sd.Fields = append(sd.Fields, FieldDecl{Name: k, Type: d})
			}
		default:
			return nil, invalidIn(name, "fields must be a list or a map")
		}
		return sd, nil
	}
	return nil, invalidIn(where, "expected sym or type")
}

func descriptorFromValue(v vm.Value) (Descriptor, error) {
	if s, ok := stringOf(v); ok {
		return ParseDescriptor(s)
	}
	switch o := v.Obj.(type) {
	case *vm.TypeValue:
		return StructRef{Name: o.Name}, nil
	case *vm.Map:
		elemVal, ok := o.Get("elem")
		if !ok {
			return nil, invalidf("array descriptor needs elem")
		}
		elem, err := descriptorFromValue(elemVal)
		if err != nil {
			return nil, err
		}
		n, ok := o.Get("n")
		if !ok || !n.IsInt() {
			return nil, invalidf("array descriptor needs an integer n")
		}
		if n.AsInt() <= 0 {
			return nil, invalidf("array length must be positive, got %d", n.AsInt())
		}
		return ArrayDesc{Elem: elem, Len: int(n.AsInt())}, nil
	}
	return nil, invalidf("unsupported descriptor %s", v.Inspect())
}

func stringOf(v vm.Value) (string, bool) {
	if !v.IsObj() {
		return "", false
	}
	s, ok := v.Obj.(*vm.String)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func typeNameOf(v vm.Value) (string, bool) {
	if s, ok := stringOf(v); ok {
		return strings.TrimSpace(s), true
	}
	if t, ok := v.Obj.(*vm.TypeValue); v.IsObj() && ok {
		return t.Name, true
	}
	return "", false
}

func reason(err error) string {
	if ie, ok := err.(*InvalidArgumentError); ok {
		return ie.Reason
	}
	return err.Error()
}
