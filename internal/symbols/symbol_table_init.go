package symbols

import (
	"github.com/funvibe/loom/internal/config"
	"github.com/funvibe/loom/internal/typesystem"
)

func preludeModule() string {
	return config.PreludeModuleName
}

// initBuiltins populates the prelude. Every table gets its own copy so
// sessions never share mutable state.
func (t *Table) initBuiltins() {
	p := t.prelude
	for _, prim := range typesystem.Prims {
		p.define(&Symbol{
			Name:       prim.String(),
			Module:     config.PreludeModuleName,
			Kind:       TypeSymbol,
			Type:       prim,
			Visibility: Exported,
		})
	}

	builtin := func(name string, fn typesystem.TFunc) {
		p.define(&Symbol{
			Name:       name,
			Module:     config.PreludeModuleName,
			Kind:       FunctionSymbol,
			Type:       fn,
			Overloads:  []typesystem.TFunc{fn},
			Visibility: Exported,
		})
	}
	// print(...any) -> none
	builtin(config.PrintFuncName, typesystem.TFunc{
		Params:   []typesystem.Type{typesystem.Any},
		Variadic: true,
		Result:   typesystem.None,
	})
	builtin(config.LenFuncName, typesystem.TFunc{
		Params: []typesystem.Type{typesystem.Any},
		Result: typesystem.Int,
	})
	builtin(config.StrFuncName, typesystem.TFunc{
		Params: []typesystem.Type{typesystem.Any},
		Result: typesystem.String,
	})
}
