package symbols

import (
	"fmt"

	"github.com/funvibe/loom/internal/token"
)

// DuplicateSymbolError is returned when a name is declared twice in the same
// scope, or a function overload repeats an existing signature.
type DuplicateSymbolError struct {
	Name     string
	Module   string
	Pos      token.Position
	Previous token.Position
}

func (e *DuplicateSymbolError) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("%s is already declared", e.Name)
	}
	return fmt.Sprintf("%s is already declared in module %s", e.Name, e.Module)
}

// UnresolvedSymbolError is returned when a reference matches no declaration.
type UnresolvedSymbolError struct {
	Name   string
	From   string
	Pos    token.Position
	Reason string
}

func (e *UnresolvedSymbolError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unresolved symbol %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("unresolved symbol %s", e.Name)
}
