package symbols

import (
	"github.com/funvibe/loom/internal/token"
	"github.com/funvibe/loom/internal/typesystem"
)

// HostMember is a name provided by the embedder rather than by source: a
// function (typesystem.TFunc), a struct type (*typesystem.TStruct) or a
// value of any other type.
type HostMember struct {
	Name string
	Type typesystem.Type
}

// DeclareHost declares module with the given exported members and makes it
// reachable from every module through a prelude symbol of the same name, so
// no import is needed.
func (t *Table) DeclareHost(module string, members []HostMember) error {
	pos := token.Position{File: module}
	if prev, ok := t.prelude.FindLocal(module); ok {
		return &DuplicateSymbolError{Name: module, Pos: pos, Previous: prev.Pos}
	}
	scope := t.ModuleScope(module)
	for _, m := range members {
		var (
			id  SymbolID
			err error
		)
		switch typ := m.Type.(type) {
		case typesystem.TFunc:
			if id, err = scope.Declare(m.Name, FunctionSymbol, pos); err == nil {
				err = t.AddOverload(id, typ, pos)
			}
		case *typesystem.TStruct:
			if id, err = scope.Declare(m.Name, TypeSymbol, pos); err == nil {
				t.symbols[id].Type = typ
				t.symbols[id].Visibility = Exported
				for _, f := range typ.Fields {
					if _, err = t.DeclareField(id, f.Name, f.Type, pos); err != nil {
						break
					}
				}
			}
		default:
			if id, err = scope.Declare(m.Name, VariableSymbol, pos); err == nil {
				t.symbols[id].Type = typ
			}
		}
		if err != nil {
			return err
		}
		t.symbols[id].Visibility = Exported
	}

	id, err := t.prelude.Declare(module, ModuleSymbol, pos)
	if err != nil {
		return err
	}
	sym := t.symbols[id]
	sym.Target = module
	sym.Type = typesystem.TModule{Name: module}
	sym.Visibility = Exported
	log.Debugf("host module %s: %d members", module, len(members))
	return nil
}
