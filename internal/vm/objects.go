package vm

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/funvibe/loom/internal/typesystem"
)

type ObjectType string

const (
	StringObj   ObjectType = "STRING"
	ListObj     ObjectType = "LIST"
	MapObj      ObjectType = "MAP"
	InstanceObj ObjectType = "INSTANCE"
	PointerObj  ObjectType = "POINTER"
	NativeObj   ObjectType = "NATIVE_FUNCTION"
	TypeObj     ObjectType = "TYPE"
)

// Object is a heap value. The implementations in this package are the
// complete set.
type Object interface {
	Type() ObjectType
	Inspect() string
	RuntimeType() typesystem.Type
	object()
}

type String struct {
	Value string
}

func (s *String) Type() ObjectType             { return StringObj }
func (s *String) Inspect() string              { return s.Value }
func (s *String) RuntimeType() typesystem.Type { return typesystem.String }
func (s *String) object()                      {}

// List is a sequence of values.
type List struct {
	Elems []Value
}

func NewList(elems ...Value) *List {
	return &List{Elems: elems}
}

func (l *List) Type() ObjectType { return ListObj }
func (l *List) Inspect() string {
	parts := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		parts[i] = e.Inspect()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (l *List) RuntimeType() typesystem.Type {
	var elem typesystem.Type
	for _, e := range l.Elems {
		elem = typesystem.CommonType(elem, e.RuntimeType())
	}
	if elem == nil {
		elem = typesystem.Any
	}
	return typesystem.TList{Elem: elem}
}
func (l *List) object() {}

func (l *List) Len() int { return len(l.Elems) }

// Map is a string-keyed map that iterates in insertion order.
type Map struct {
	entries *linkedhashmap.Map
}

func NewMap() *Map {
	return &Map{entries: linkedhashmap.New()}
}

func (m *Map) Set(key string, v Value) {
	m.entries.Put(key, v)
}

func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.entries.Get(key)
	if !ok {
		return NoneVal(), false
	}
	return v.(Value), true
}

func (m *Map) Len() int {
	return m.entries.Size()
}

// Keys returns keys in insertion order.
func (m *Map) Keys() []string {
	keys := m.entries.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.(string)
	}
	return out
}

// Values returns values in insertion order.
func (m *Map) Values() []Value {
	vals := m.entries.Values()
	out := make([]Value, len(vals))
	for i, v := range vals {
		out[i] = v.(Value)
	}
	return out
}

func (m *Map) Type() ObjectType { return MapObj }
func (m *Map) Inspect() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range m.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		v, _ := m.Get(k)
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(v.Inspect())
	}
	sb.WriteString("}")
	return sb.String()
}
func (m *Map) RuntimeType() typesystem.Type {
	var elem typesystem.Type
	for _, v := range m.Values() {
		elem = typesystem.CommonType(elem, v.RuntimeType())
	}
	if elem == nil {
		elem = typesystem.Any
	}
	return typesystem.TMap{KeyType: typesystem.String, ValueType: elem}
}
func (m *Map) object() {}

// Instance is a struct value: its fields in declaration order.
type Instance struct {
	Struct *typesystem.TStruct
	Fields []Value
}

func (o *Instance) Type() ObjectType { return InstanceObj }
func (o *Instance) Inspect() string {
	var sb strings.Builder
	sb.WriteString(o.Struct.String())
	sb.WriteString("{")
	for i, f := range o.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		if i < len(o.Struct.Fields) {
			sb.WriteString(o.Struct.Fields[i].Name)
			sb.WriteString(": ")
		}
		sb.WriteString(f.Inspect())
	}
	sb.WriteString("}")
	return sb.String()
}
func (o *Instance) RuntimeType() typesystem.Type { return o.Struct }
func (o *Instance) object()                      {}

// Field returns the named field.
func (o *Instance) Field(name string) (Value, bool) {
	for i, f := range o.Struct.Fields {
		if f.Name == name && i < len(o.Fields) {
			return o.Fields[i], true
		}
	}
	return NoneVal(), false
}

// Pointer is a raw native address tracked by the heap.
type Pointer struct {
	Addr uintptr
}

func (p *Pointer) Type() ObjectType             { return PointerObj }
func (p *Pointer) Inspect() string              { return fmt.Sprintf("<pointer 0x%x>", p.Addr) }
func (p *Pointer) RuntimeType() typesystem.Type { return typesystem.Pointer }
func (p *Pointer) object()                      {}

func objectsEqual(a, b Object) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type() != b.Type() {
		return false
	}
	switch x := a.(type) {
	case *String:
		return x.Value == b.(*String).Value
	case *List:
		y := b.(*List)
		if len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !x.Elems[i].Equals(y.Elems[i]) {
				return false
			}
		}
		return true
	case *Map:
		y := b.(*Map)
		if x.Len() != y.Len() {
			return false
		}
		for _, k := range x.Keys() {
			xv, _ := x.Get(k)
			yv, ok := y.Get(k)
			if !ok || !xv.Equals(yv) {
				return false
			}
		}
		return true
	case *Instance:
		y := b.(*Instance)
		if !typesystem.Equal(x.Struct, y.Struct) || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if !x.Fields[i].Equals(y.Fields[i]) {
				return false
			}
		}
		return true
	case *Pointer:
		return x.Addr == b.(*Pointer).Addr
	}
	return a == b
}
