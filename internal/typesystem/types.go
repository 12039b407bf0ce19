package typesystem

import (
	"strconv"
	"strings"

	"github.com/funvibe/loom/internal/config"
)

// Type is the interface for all types in our system. The set of
// implementations is closed; switch statements over Type list every case.
type Type interface {
	String() string
	// Key is a canonical structural encoding. Two types are identical iff
	// their keys are equal; nominal types encode their qualified name only.
	Key() string
	typeNode()
}

type PrimKind int

const (
	PrimInt PrimKind = iota
	PrimFloat
	PrimBool
	PrimString
	PrimPointer
	PrimNone
	PrimAny
)

var primNames = [...]string{
	PrimInt:     config.IntTypeName,
	PrimFloat:   config.FloatTypeName,
	PrimBool:    config.BoolTypeName,
	PrimString:  config.StringTypeName,
	PrimPointer: config.PointerTypeName,
	PrimNone:    config.NoneTypeName,
	PrimAny:     config.AnyTypeName,
}

func (k PrimKind) String() string {
	if int(k) < len(primNames) {
		return primNames[k]
	}
	return "prim(" + strconv.Itoa(int(k)) + ")"
}

// TPrim is a built-in scalar type.
type TPrim struct {
	Kind PrimKind
}

func (t TPrim) String() string { return t.Kind.String() }
func (t TPrim) Key() string    { return t.Kind.String() }
func (t TPrim) typeNode()      {}

var (
	Int     = TPrim{Kind: PrimInt}
	Float   = TPrim{Kind: PrimFloat}
	Bool    = TPrim{Kind: PrimBool}
	String  = TPrim{Kind: PrimString}
	Pointer = TPrim{Kind: PrimPointer}
	None    = TPrim{Kind: PrimNone}
	Any     = TPrim{Kind: PrimAny}
)

// Prims lists every primitive, in declaration order of the prelude.
var Prims = []TPrim{Int, Float, Bool, String, Pointer, None, Any}

// TFunc is a function signature. Identity is structural.
type TFunc struct {
	Params   []Type
	Variadic bool // last param absorbs trailing args
	Result   Type
}

func (t TFunc) String() string {
	var sb strings.Builder
	sb.WriteString("fn(")
	for i, p := range t.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		if t.Variadic && i == len(t.Params)-1 {
			sb.WriteString("...")
		}
		sb.WriteString(typeString(p))
	}
	sb.WriteString(") -> ")
	sb.WriteString(typeString(t.Result))
	return sb.String()
}

func (t TFunc) Key() string {
	var sb strings.Builder
	sb.WriteString("fn(")
	for i, p := range t.Params {
		if i > 0 {
			sb.WriteByte(',')
		}
		if t.Variadic && i == len(t.Params)-1 {
			sb.WriteString("...")
		}
		sb.WriteString(typeKey(p))
	}
	sb.WriteString(")")
	sb.WriteString(typeKey(t.Result))
	return sb.String()
}

func (t TFunc) typeNode() {}

// Field is a named struct member.
type Field struct {
	Name string
	Type Type
}

// TStruct is a nominal record. Fields are filled in after the declaration is
// scanned, which is why it is always handled by pointer.
type TStruct struct {
	Name   string
	Module string
	Fields []Field
	// Native marks structs synthesized from native struct declarations.
	// Library names the native library that declared them, so equally named
	// structs from different libraries stay distinct.
	Native  bool
	Library string
}

func (t *TStruct) String() string {
	if t.Module == "" {
		return t.Name
	}
	return t.Module + "." + t.Name
}

func (t *TStruct) Key() string {
	if t.Native {
		return "cstruct:" + t.Library + "." + t.Name
	}
	return "struct:" + t.Module + "." + t.Name
}

func (t *TStruct) typeNode() {}

// Field returns the named field.
func (t *TStruct) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// TUnion is a choice between variants.
type TUnion struct {
	Variants []Type
}

func (t TUnion) String() string {
	parts := make([]string, len(t.Variants))
	for i, v := range t.Variants {
		parts[i] = typeString(v)
	}
	return strings.Join(parts, " | ")
}

func (t TUnion) Key() string {
	parts := make([]string, len(t.Variants))
	for i, v := range t.Variants {
		parts[i] = typeKey(v)
	}
	return "union(" + strings.Join(parts, "|") + ")"
}

func (t TUnion) typeNode() {}

type TList struct {
	Elem Type
}

func (t TList) String() string { return "List<" + typeString(t.Elem) + ">" }
func (t TList) Key() string    { return "list(" + typeKey(t.Elem) + ")" }
func (t TList) typeNode()      {}

type TMap struct {
	KeyType   Type
	ValueType Type
}

func (t TMap) String() string {
	return "Map<" + typeString(t.KeyType) + ", " + typeString(t.ValueType) + ">"
}
func (t TMap) Key() string {
	return "map(" + typeKey(t.KeyType) + "," + typeKey(t.ValueType) + ")"
}
func (t TMap) typeNode()   {}

// TPtr is a typed pointer.
type TPtr struct {
	Elem Type
}

func (t TPtr) String() string { return "*" + typeString(t.Elem) }
func (t TPtr) Key() string    { return "ptr(" + typeKey(t.Elem) + ")" }
func (t TPtr) typeNode()      {}

// TArray is a fixed-size array; only identical element type and length match.
type TArray struct {
	Elem Type
	Len  int
}

func (t TArray) String() string { return "[" + strconv.Itoa(t.Len) + "]" + typeString(t.Elem) }
func (t TArray) Key() string {
	return "array(" + typeKey(t.Elem) + "," + strconv.Itoa(t.Len) + ")"
}
func (t TArray) typeNode() {}

// TDeferred stands for a declared type that has not been resolved yet.
// Checking treats it like any so one unresolved name reports one error.
type TDeferred struct {
	Name string
}

func (t TDeferred) String() string { return "pending(" + t.Name + ")" }
func (t TDeferred) Key() string    { return "pending:" + t.Name }
func (t TDeferred) typeNode()      {}

// TModule is the type of a module symbol.
type TModule struct {
	Name string
}

func (t TModule) String() string { return "module " + t.Name }
func (t TModule) Key() string    { return "module:" + t.Name }
func (t TModule) typeNode()      {}

// TTypeRef is the type of a type symbol used in expression position.
type TTypeRef struct {
	Of Type
}

func (t TTypeRef) String() string { return "type " + typeString(t.Of) }
func (t TTypeRef) Key() string    { return "type(" + typeKey(t.Of) + ")" }
func (t TTypeRef) typeNode()      {}

func typeString(t Type) string {
	if t == nil {
		return config.AnyTypeName
	}
	return t.String()
}

func typeKey(t Type) string {
	if t == nil {
		return config.AnyTypeName
	}
	return t.Key()
}

// Equal reports type identity.
func Equal(a, b Type) bool {
	return typeKey(a) == typeKey(b)
}
