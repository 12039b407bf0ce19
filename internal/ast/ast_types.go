package ast

import (
	"github.com/funvibe/loom/internal/token"
)

// TypeExpr is a type as written in source.
type TypeExpr interface {
	Node
	typeNode()
}

// NamedType references a type by name, optionally qualified by an import
// alias (`geo.Point`).
type NamedType struct {
	At     token.Position
	Module string
	Name   string
}

func (t *NamedType) Pos() token.Position { return t.At }
func (t *NamedType) typeNode()           {}

// QualifiedName returns "Module.Name" or just "Name".
func (t *NamedType) QualifiedName() string {
	if t.Module == "" {
		return t.Name
	}
	return t.Module + "." + t.Name
}

type ListType struct {
	At   token.Position
	Elem TypeExpr
}

func (t *ListType) Pos() token.Position { return t.At }
func (t *ListType) typeNode()           {}

type MapType struct {
	At    token.Position
	Key   TypeExpr
	Value TypeExpr
}

func (t *MapType) Pos() token.Position { return t.At }
func (t *MapType) typeNode()           {}

type PointerType struct {
	At   token.Position
	Elem TypeExpr
}

func (t *PointerType) Pos() token.Position { return t.At }
func (t *PointerType) typeNode()           {}

// ArrayType is a fixed-size array `[N]Elem`.
type ArrayType struct {
	At   token.Position
	Elem TypeExpr
	Len  int
}

func (t *ArrayType) Pos() token.Position { return t.At }
func (t *ArrayType) typeNode()           {}

type FuncType struct {
	At       token.Position
	Params   []TypeExpr
	Variadic bool
	Result   TypeExpr
}

func (t *FuncType) Pos() token.Position { return t.At }
func (t *FuncType) typeNode()           {}

type FieldDecl struct {
	At   token.Position
	Name string
	Type TypeExpr
}

// StructType is the body of a struct declaration. Field order is layout order.
type StructType struct {
	At     token.Position
	Fields []*FieldDecl
}

func (t *StructType) Pos() token.Position { return t.At }
func (t *StructType) typeNode()           {}

// UnionType is a choice between variant types.
type UnionType struct {
	At       token.Position
	Variants []TypeExpr
}

func (t *UnionType) Pos() token.Position { return t.At }
func (t *UnionType) typeNode()           {}
