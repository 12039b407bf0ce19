package analyzer

import (
	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/typesystem"
)

// ScanDeclarations collects the top-level names of every unit without
// resolving any type. All units are scanned before anything is resolved, so
// forward references and mutual imports between modules are legal.
func (a *Analyzer) ScanDeclarations(units []*Unit) {
	a.units = append(a.units, units...)
	for _, u := range units {
		a.table.ModuleScope(u.Module)
	}
	for _, u := range units {
		a.declareImports(u)
		for _, stmt := range u.Program.Decls {
			a.scanDecl(u.Module, stmt)
		}
	}
	log.Debugf("scanned %d modules", len(units))
}

func (a *Analyzer) scanDecl(module string, stmt ast.Statement) {
	switch d := stmt.(type) {
	case *ast.VarDecl:
		id, err := a.table.Declare(module, d.Name, symbols.VariableSymbol, d.At)
		if err != nil {
			a.reportSymbolError(err, d.At)
			return
		}
		sym := a.table.Symbol(id)
		sym.Visibility = visibility(d.Exported)
		sym.Type = typesystem.TDeferred{Name: sym.QualifiedName()}
		sym.Decls = []ast.Node{d}
		a.declOf[d] = id
		a.varDecls[id] = d
		a.vars = append(a.vars, id)

	case *ast.FuncDecl:
		id, fresh, err := a.table.DeclareFunction(module, d.Name, d.At, d)
		if err != nil {
			a.reportSymbolError(err, d.At)
			return
		}
		a.declOf[d] = id
		if fresh {
			sym := a.table.Symbol(id)
			sym.Visibility = visibility(d.Exported)
			sym.Type = typesystem.TDeferred{Name: sym.QualifiedName()}
			a.funcs = append(a.funcs, id)
		}

	case *ast.TypeDecl:
		id, err := a.table.Declare(module, d.Name, symbols.TypeSymbol, d.At)
		if err != nil {
			a.reportSymbolError(err, d.At)
			return
		}
		sym := a.table.Symbol(id)
		sym.Visibility = visibility(d.Exported)
		sym.Decls = []ast.Node{d}
		if _, ok := d.Def.(*ast.StructType); ok {
			// Nominal: the type exists before its fields are known.
			sym.Type = &typesystem.TStruct{Name: d.Name, Module: module}
		} else {
			sym.Type = typesystem.TDeferred{Name: sym.QualifiedName()}
		}
		a.declOf[d] = id
		a.types = append(a.types, id)

	case *ast.ExpressionStatement:
		// Module initialization expression; checked with the bodies.

	default:
		log.Warningf("%s: ignoring top-level %T", stmt.Pos(), stmt)
	}
}
