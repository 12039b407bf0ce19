package symbols

import (
	"github.com/funvibe/loom/internal/token"
	"github.com/funvibe/loom/internal/typesystem"
)

// DeclareModule declares a module symbol in module's scope that links to
// target. For `import "b" as bee` name is "bee" and target is "b". Importing
// the same target twice under one name is accepted and returns the existing
// symbol.
func (t *Table) DeclareModule(module, name, target string, pos token.Position) (SymbolID, error) {
	scope := t.ModuleScope(module)
	if prev, ok := scope.FindLocal(name); ok {
		if prev.Kind == ModuleSymbol && prev.Target == target {
			return prev.ID, nil
		}
		return NoSymbol, &DuplicateSymbolError{Name: name, Module: module, Pos: pos, Previous: prev.Pos}
	}
	id, err := scope.Declare(name, ModuleSymbol, pos)
	if err != nil {
		return NoSymbol, err
	}
	sym := t.symbols[id]
	sym.Target = target
	sym.Type = typesystem.TModule{Name: target}
	return id, nil
}

// IsAlias reports whether sym is a module symbol renamed on import.
func (s *Symbol) IsAlias() bool {
	return s.Kind == ModuleSymbol && s.Target != s.Name
}

// Imports returns the module symbols declared in module, in import order.
func (t *Table) Imports(module string) []*Symbol {
	var out []*Symbol
	for _, sym := range t.ModuleSymbols(module) {
		if sym.Kind == ModuleSymbol {
			out = append(out, sym)
		}
	}
	return out
}
