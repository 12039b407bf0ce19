package ast

import (
	"github.com/funvibe/loom/internal/token"
)

// Identifier is a bare name reference.
type Identifier struct {
	At   token.Position
	Name string
}

func (e *Identifier) Pos() token.Position { return e.At }
func (e *Identifier) expressionNode()     {}

// SelectorExpr is `X.Sel`: a qualified module member when X names an
// imported module, a struct field access otherwise.
type SelectorExpr struct {
	At  token.Position
	X   Expression
	Sel string
}

func (e *SelectorExpr) Pos() token.Position { return e.At }
func (e *SelectorExpr) expressionNode()     {}

type IntegerLiteral struct {
	At    token.Position
	Value int64
}

func (e *IntegerLiteral) Pos() token.Position { return e.At }
func (e *IntegerLiteral) expressionNode()     {}

type FloatLiteral struct {
	At    token.Position
	Value float64
}

func (e *FloatLiteral) Pos() token.Position { return e.At }
func (e *FloatLiteral) expressionNode()     {}

type StringLiteral struct {
	At    token.Position
	Value string
}

func (e *StringLiteral) Pos() token.Position { return e.At }
func (e *StringLiteral) expressionNode()     {}

type BooleanLiteral struct {
	At    token.Position
	Value bool
}

func (e *BooleanLiteral) Pos() token.Position { return e.At }
func (e *BooleanLiteral) expressionNode()     {}

type NoneLiteral struct {
	At token.Position
}

func (e *NoneLiteral) Pos() token.Position { return e.At }
func (e *NoneLiteral) expressionNode()     {}

// CallExpr is a call `Fn(Args...)`.
type CallExpr struct {
	At   token.Position
	Fn   Expression
	Args []Expression
}

func (e *CallExpr) Pos() token.Position { return e.At }
func (e *CallExpr) expressionNode()     {}

// BinaryExpr covers arithmetic (+ - * / %), comparison (== != < <= > >=)
// and logical (and, or) operators.
type BinaryExpr struct {
	At    token.Position
	Op    string
	Left  Expression
	Right Expression
}

func (e *BinaryExpr) Pos() token.Position { return e.At }
func (e *BinaryExpr) expressionNode()     {}

// UnaryExpr covers `-x` and `not x`.
type UnaryExpr struct {
	At token.Position
	Op string
	X  Expression
}

func (e *UnaryExpr) Pos() token.Position { return e.At }
func (e *UnaryExpr) expressionNode()     {}

type ListLiteral struct {
	At    token.Position
	Elems []Expression
}

func (e *ListLiteral) Pos() token.Position { return e.At }
func (e *ListLiteral) expressionNode()     {}

type MapEntry struct {
	Key   Expression
	Value Expression
}

type MapLiteral struct {
	At      token.Position
	Entries []MapEntry
}

func (e *MapLiteral) Pos() token.Position { return e.At }
func (e *MapLiteral) expressionNode()     {}

type FieldInit struct {
	At    token.Position
	Name  string
	Value Expression
}

// StructLiteral constructs a value of a declared struct type.
type StructLiteral struct {
	At     token.Position
	Type   *NamedType
	Fields []FieldInit
}

func (e *StructLiteral) Pos() token.Position { return e.At }
func (e *StructLiteral) expressionNode()     {}

// IndexExpr is `X[Index]` on lists, maps and arrays.
type IndexExpr struct {
	At    token.Position
	X     Expression
	Index Expression
}

func (e *IndexExpr) Pos() token.Position { return e.At }
func (e *IndexExpr) expressionNode()     {}
