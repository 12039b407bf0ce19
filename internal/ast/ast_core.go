// Package ast defines the syntax tree handed to the compilation pipeline by
// the parser. The pipeline never mutates the tree; resolution results live in
// the symbol table and the analyzer's type map.
package ast

import (
	"github.com/funvibe/loom/internal/token"
)

// Node is the base interface for all AST nodes.
type Node interface {
	Pos() token.Position
}

// Statement is a Node that represents a statement or a top-level declaration.
type Statement interface {
	Node
	statementNode()
}

// Expression is a Node that represents an expression.
type Expression interface {
	Node
	expressionNode()
}

// Program is the root node of one source file.
type Program struct {
	File    string
	Imports []*ImportDecl
	Decls   []Statement
}

func (p *Program) Pos() token.Position { return token.Position{File: p.File} }

// ImportDecl represents `import "path"` or `import "path" as alias`.
// Without an alias the module is bound under the last path segment of the
// specifier (without extension).
type ImportDecl struct {
	At        token.Position
	Specifier string
	Alias     string
}

func (d *ImportDecl) Pos() token.Position { return d.At }
func (d *ImportDecl) statementNode()      {}

// VarDecl is a variable declaration. At module level it is a module variable
// whose initializer participates in initialization ordering.
type VarDecl struct {
	At       token.Position
	Name     string
	Exported bool
	Type     TypeExpr // Optional
	Value    Expression
}

func (d *VarDecl) Pos() token.Position { return d.At }
func (d *VarDecl) statementNode()      {}

// Param is a function parameter. A nil Type means `any`.
type Param struct {
	At   token.Position
	Name string
	Type TypeExpr
}

// FuncDecl is a function declaration. When Variadic is set the last parameter
// absorbs any number of trailing arguments of its type.
type FuncDecl struct {
	At       token.Position
	Name     string
	Exported bool
	Params   []*Param
	Variadic bool
	Result   TypeExpr // nil means the function returns any
	Body     []Statement
}

func (d *FuncDecl) Pos() token.Position { return d.At }
func (d *FuncDecl) statementNode()      {}

// TypeDecl declares a named type. Def is a *StructType for nominal records,
// a *UnionType for choice types, or any other TypeExpr for an alias.
type TypeDecl struct {
	At       token.Position
	Name     string
	Exported bool
	Def      TypeExpr
}

func (d *TypeDecl) Pos() token.Position { return d.At }
func (d *TypeDecl) statementNode()      {}

// ExpressionStatement wraps an expression evaluated for effect.
type ExpressionStatement struct {
	At   token.Position
	Expr Expression
}

func (s *ExpressionStatement) Pos() token.Position { return s.At }
func (s *ExpressionStatement) statementNode()      {}

// LetStatement introduces a local variable inside a function body.
type LetStatement struct {
	At    token.Position
	Name  string
	Type  TypeExpr
	Value Expression
}

func (s *LetStatement) Pos() token.Position { return s.At }
func (s *LetStatement) statementNode()      {}

// AssignStatement assigns to an existing variable or field.
type AssignStatement struct {
	At     token.Position
	Target Expression
	Value  Expression
}

func (s *AssignStatement) Pos() token.Position { return s.At }
func (s *AssignStatement) statementNode()      {}

// ReturnStatement returns from the enclosing function. Value may be nil.
type ReturnStatement struct {
	At    token.Position
	Value Expression
}

func (s *ReturnStatement) Pos() token.Position { return s.At }
func (s *ReturnStatement) statementNode()      {}

// IfStatement is a conditional with an optional else branch.
type IfStatement struct {
	At   token.Position
	Cond Expression
	Then []Statement
	Else []Statement
}

func (s *IfStatement) Pos() token.Position { return s.At }
func (s *IfStatement) statementNode()      {}
