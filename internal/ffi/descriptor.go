// Package ffi generates native bindings from declarative descriptions.
//
// A binding request is an ordered list of function and struct declarations.
// The package validates it against a library, builds checker signatures,
// emits C glue source, compiles it with a backend and exposes the result as
// VM callables that share one reference-counted handle.
package ffi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("loom.ffi")

// Prim is a primitive native type tag.
type Prim int

const (
	PrimBool Prim = iota
	PrimChar
	PrimUChar
	PrimShort
	PrimUShort
	PrimInt
	PrimUInt
	PrimLong
	PrimULong
	PrimUSize
	PrimFloat
	PrimDouble
	PrimCharPtr
	PrimVoidPtr
	PrimVoid
)

type primInfo struct {
	name  string
	ctype string
	size  uintptr
}

var prims = [...]primInfo{
	PrimBool:    {"bool", "_Bool", 1},
	PrimChar:    {"char", "char", 1},
	PrimUChar:   {"uchar", "unsigned char", 1},
	PrimShort:   {"short", "short", 2},
	PrimUShort:  {"ushort", "unsigned short", 2},
	PrimInt:     {"int", "int", 4},
	PrimUInt:    {"uint", "unsigned int", 4},
	PrimLong:    {"long", "long long", 8},
	PrimULong:   {"ulong", "unsigned long long", 8},
	PrimUSize:   {"usize", "lm_usize", 8},
	PrimFloat:   {"float", "float", 4},
	PrimDouble:  {"double", "double", 8},
	PrimCharPtr: {"charPtr", "char*", 8},
	PrimVoidPtr: {"voidPtr", "void*", 8},
	PrimVoid:    {"void", "void", 0},
}

var primByName = func() map[string]Prim {
	m := make(map[string]Prim, len(prims))
	for p, info := range prims {
		m[info.name] = Prim(p)
	}
	return m
}()

// LookupPrim returns the primitive with the given tag.
func LookupPrim(name string) (Prim, bool) {
	p, ok := primByName[name]
	return p, ok
}

func (p Prim) String() string {
	if int(p) >= 0 && int(p) < len(prims) {
		return prims[p].name
	}
	return "prim(" + strconv.Itoa(int(p)) + ")"
}

// CType is the C spelling used in generated source.
func (p Prim) CType() string { return prims[p].ctype }

// Size is the storage size on LP64 targets.
func (p Prim) Size() uintptr { return prims[p].size }

func (p Prim) IsInteger() bool {
	return p >= PrimChar && p <= PrimUSize
}

func (p Prim) IsFloat() bool {
	return p == PrimFloat || p == PrimDouble
}

func (p Prim) IsSigned() bool {
	switch p {
	case PrimChar, PrimShort, PrimInt, PrimLong:
		return true
	}
	return false
}

// Descriptor describes a native type without native code. The set of
// implementations is closed: PrimDesc, StructRef and ArrayDesc.
type Descriptor interface {
	// String is the textual notation: a primitive tag, a struct name or an
	// element followed by dimensions ("int[4]", "double[4][2]").
	String() string
	descriptor()
}

// PrimDesc is a primitive tag.
type PrimDesc struct {
	Prim Prim
}

func (d PrimDesc) String() string { return d.Prim.String() }
func (d PrimDesc) descriptor()    {}

// StructRef refers to a declared native struct by name.
type StructRef struct {
	Name string
}

func (d StructRef) String() string { return d.Name }
func (d StructRef) descriptor()    {}

// ArrayDesc is a fixed-size array of Len elements.
type ArrayDesc struct {
	Elem Descriptor
	Len  int
}

func (d ArrayDesc) String() string {
	base, dims := flatten(d)
	var sb strings.Builder
	sb.WriteString(base.String())
	for _, n := range dims {
		sb.WriteString("[")
		sb.WriteString(strconv.Itoa(n))
		sb.WriteString("]")
	}
	return sb.String()
}

func (d ArrayDesc) descriptor() {}

// flatten returns the innermost non-array element and the dimensions from
// the outermost array inward.
func flatten(d Descriptor) (Descriptor, []int) {
	var dims []int
	for {
		a, ok := d.(ArrayDesc)
		if !ok {
			return d, dims
		}
		dims = append(dims, a.Len)
		d = a.Elem
	}
}

// stride is the number of base elements one element of d occupies.
func stride(d Descriptor) int {
	_, dims := flatten(d)
	n := 1
	for _, k := range dims {
		n *= k
	}
	return n
}

// Prim constructors for the common tags.
var (
	Bool    Descriptor = PrimDesc{PrimBool}
	Char    Descriptor = PrimDesc{PrimChar}
	UChar   Descriptor = PrimDesc{PrimUChar}
	Short   Descriptor = PrimDesc{PrimShort}
	UShort  Descriptor = PrimDesc{PrimUShort}
	Int     Descriptor = PrimDesc{PrimInt}
	UInt    Descriptor = PrimDesc{PrimUInt}
	Long    Descriptor = PrimDesc{PrimLong}
	ULong   Descriptor = PrimDesc{PrimULong}
	USize   Descriptor = PrimDesc{PrimUSize}
	Float   Descriptor = PrimDesc{PrimFloat}
	Double  Descriptor = PrimDesc{PrimDouble}
	CharPtr Descriptor = PrimDesc{PrimCharPtr}
	VoidPtr Descriptor = PrimDesc{PrimVoidPtr}
	Void    Descriptor = PrimDesc{PrimVoid}
)

// Array returns an array descriptor.
func Array(elem Descriptor, n int) Descriptor {
	return ArrayDesc{Elem: elem, Len: n}
}

// Struct returns a struct reference.
func Struct(name string) Descriptor {
	return StructRef{Name: name}
}

// ParseDescriptor reads the textual notation. Names that are not primitive
// tags are taken as struct references; whether they are declared is checked
// during validation.
func ParseDescriptor(s string) (Descriptor, error) {
	s = strings.TrimSpace(s)
	base := s
	var dims []int
	if i := strings.IndexByte(s, '['); i >= 0 {
		base = strings.TrimSpace(s[:i])
		rest := s[i:]
		for rest != "" {
			if rest[0] != '[' {
				return nil, invalidf("descriptor %q: unexpected %q", s, rest)
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, invalidf("descriptor %q: missing ]", s)
			}
			n, err := strconv.Atoi(strings.TrimSpace(rest[1:end]))
			if err != nil {
				return nil, invalidf("descriptor %q: bad length %q", s, rest[1:end])
			}
			if n <= 0 {
				return nil, invalidf("descriptor %q: length must be positive", s)
			}
			dims = append(dims, n)
			rest = rest[end+1:]
		}
	}
	if base == "" {
		return nil, invalidf("empty descriptor")
	}
	if !isIdent(base) {
		return nil, invalidf("descriptor %q: %q is not a type name", s, base)
	}
	var d Descriptor
	if p, ok := LookupPrim(base); ok {
		d = PrimDesc{Prim: p}
	} else {
		d = StructRef{Name: base}
	}
	for i := len(dims) - 1; i >= 0; i-- {
		d = ArrayDesc{Elem: d, Len: dims[i]}
	}
	return d, nil
}

// MustParseDescriptor is ParseDescriptor for literals known to be valid.
func MustParseDescriptor(s string) Descriptor {
	d, err := ParseDescriptor(s)
	if err != nil {
		panic(fmt.Sprintf("ffi: %v", err))
	}
	return d
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

// mangle turns a descriptor into a C identifier fragment.
func mangle(d Descriptor) string {
	base, dims := flatten(d)
	var sb strings.Builder
	sb.WriteString(base.String())
	for i := len(dims) - 1; i >= 0; i-- {
		sb.WriteString("_")
		sb.WriteString(strconv.Itoa(dims[i]))
	}
	return sb.String()
}
