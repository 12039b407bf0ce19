package symbols

import (
	"fmt"

	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/token"
	"github.com/funvibe/loom/internal/typesystem"
)

// SymbolID is the unique id of a symbol within its table.
type SymbolID int

// NoSymbol is returned alongside errors.
const NoSymbol SymbolID = -1

type Kind int

const (
	VariableSymbol Kind = iota
	FunctionSymbol
	TypeSymbol
	ModuleSymbol
	FieldSymbol
)

func (k Kind) String() string {
	switch k {
	case VariableSymbol:
		return "variable"
	case FunctionSymbol:
		return "function"
	case TypeSymbol:
		return "type"
	case ModuleSymbol:
		return "module"
	case FieldSymbol:
		return "field"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Visibility int

const (
	Private Visibility = iota
	Exported
)

func (v Visibility) String() string {
	if v == Exported {
		return "exported"
	}
	return "private"
}

// Symbol is one declaration. Its Type starts as nil (deferred) during
// declaration scanning and is filled in once the declaration is resolved.
type Symbol struct {
	ID         SymbolID
	Name       string
	Module     string // owning module
	Kind       Kind
	Type       typesystem.Type
	Visibility Visibility
	Pos        token.Position

	// Decls holds the declaring nodes. Functions declared several times keep
	// one node per overload, in source order.
	Decls []ast.Node

	// Overloads are the resolved signatures of a function symbol. Type is the
	// first overload.
	Overloads []typesystem.TFunc

	// Target is the module a module symbol refers to. Import aliases are
	// module symbols whose name differs from their target.
	Target string

	// Parent links a field symbol to its struct's type symbol, Members links
	// a type symbol to its fields.
	Parent  SymbolID
	Members []SymbolID

	// Local marks symbols declared in function or block scopes.
	Local bool
}

// QualifiedName returns module.name, or the bare name for locals and prelude
// symbols.
func (s *Symbol) QualifiedName() string {
	if s.Local || s.Module == "" {
		return s.Name
	}
	return s.Module + "." + s.Name
}

// Decl returns the first declaring node, or nil.
func (s *Symbol) Decl() ast.Node {
	if len(s.Decls) == 0 {
		return nil
	}
	return s.Decls[0]
}

// IsResolved reports whether the symbol's type is known.
func (s *Symbol) IsResolved() bool {
	if s.Type == nil {
		return false
	}
	_, deferred := s.Type.(typesystem.TDeferred)
	return !deferred
}

func (s *Symbol) IsExported() bool {
	return s.Visibility == Exported
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s %s", s.Kind, s.QualifiedName())
}
