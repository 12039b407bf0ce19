package symbols

import (
	"fmt"
	"strings"

	"github.com/funvibe/loom/internal/token"
)

// Resolve finds the declaration a qualified name refers to from the top
// level of module from. Resolution is only complete once every reachable
// module has been scanned.
func (t *Table) Resolve(from, qualified string, pos token.Position) (SymbolID, error) {
	scope, ok := t.modules[from]
	if !ok {
		return NoSymbol, &UnresolvedSymbolError{Name: qualified, From: from, Pos: pos, Reason: fmt.Sprintf("module %s is not loaded", from)}
	}
	return t.ResolveIn(scope, qualified, pos)
}

// ResolveIn resolves a possibly qualified name starting at scope. The first
// segment is looked up through the scope chain; further segments select
// exported members of modules or fields of types.
func (t *Table) ResolveIn(scope *Scope, qualified string, pos token.Position) (SymbolID, error) {
	parts := strings.Split(qualified, ".")
	sym, ok := scope.Find(parts[0])
	if !ok {
		return NoSymbol, &UnresolvedSymbolError{Name: qualified, From: scope.module, Pos: pos}
	}
	for _, part := range parts[1:] {
		next, err := t.member(sym, part, scope.module)
		if err != nil {
			return NoSymbol, &UnresolvedSymbolError{Name: qualified, From: scope.module, Pos: pos, Reason: err.Error()}
		}
		sym = next
	}
	return sym.ID, nil
}

// Member selects name inside sym as seen from module from.
func (t *Table) Member(sym *Symbol, name, from string) (*Symbol, error) {
	return t.member(sym, name, from)
}

func (t *Table) member(sym *Symbol, name, from string) (*Symbol, error) {
	switch sym.Kind {
	case ModuleSymbol:
		target, ok := t.modules[sym.Target]
		if !ok {
			return nil, fmt.Errorf("module %s is not loaded", sym.Target)
		}
		m, ok := target.FindLocal(name)
		if !ok {
			return nil, fmt.Errorf("module %s has no member %s", sym.Target, name)
		}
		if !m.IsExported() && m.Module != from {
			return nil, fmt.Errorf("%s is not exported by module %s", name, sym.Target)
		}
		return m, nil
	case TypeSymbol:
		for _, id := range sym.Members {
			if f := t.symbols[id]; f.Name == name {
				return f, nil
			}
		}
		return nil, fmt.Errorf("type %s has no field %s", sym.Name, name)
	case VariableSymbol, FunctionSymbol, FieldSymbol:
		return nil, fmt.Errorf("%s %s has no members", sym.Kind, sym.Name)
	}
	return nil, fmt.Errorf("unknown symbol kind %s", sym.Kind)
}
