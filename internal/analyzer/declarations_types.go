package analyzer

import (
	"fmt"

	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/typesystem"
)

// ResolveHeaders resolves everything that does not need expression
// inference: type declarations, struct fields, function signatures and the
// annotated types of module variables.
func (a *Analyzer) ResolveHeaders() {
	for _, id := range a.types {
		sym := a.table.Symbol(id)
		a.typeOfTypeSymbol(sym)
		if st, ok := sym.Type.(*typesystem.TStruct); ok {
			a.resolveStructFields(sym, st)
		}
	}

	for _, id := range a.funcs {
		sym := a.table.Symbol(id)
		scope := a.table.ModuleScope(sym.Module)
		for _, node := range sym.Decls {
			decl := node.(*ast.FuncDecl)
			sig := a.funcSignature(decl, scope)
			a.sigOf[decl] = sig
			if err := a.table.AddOverload(id, sig, decl.At); err != nil {
				a.reportSymbolError(err, decl.At)
				continue
			}
			a.sigs.Intern(sig)
		}
	}

	for _, id := range a.vars {
		decl := a.varDecls[id]
		if decl.Type == nil {
			continue
		}
		sym := a.table.Symbol(id)
		sym.Type = a.resolveTypeExpr(decl.Type, a.table.ModuleScope(sym.Module))
		a.varState[id] = resolved
	}
}

func (a *Analyzer) resolveStructFields(sym *symbols.Symbol, st *typesystem.TStruct) {
	decl := sym.Decl().(*ast.TypeDecl)
	def := decl.Def.(*ast.StructType)
	scope := a.table.ModuleScope(sym.Module)
	for _, f := range def.Fields {
		ft := a.resolveTypeExpr(f.Type, scope)
		if _, err := a.table.DeclareField(sym.ID, f.Name, ft, f.At); err != nil {
			a.reportSymbolError(err, f.At)
			continue
		}
		st.Fields = append(st.Fields, typesystem.Field{Name: f.Name, Type: ft})
	}
}

func (a *Analyzer) funcSignature(decl *ast.FuncDecl, scope *symbols.Scope) typesystem.TFunc {
	sig := typesystem.TFunc{
		Params:   make([]typesystem.Type, len(decl.Params)),
		Variadic: decl.Variadic && len(decl.Params) > 0,
		Result:   a.resolveTypeExpr(decl.Result, scope),
	}
	for i, p := range decl.Params {
		sig.Params[i] = a.resolveTypeExpr(p.Type, scope)
	}
	return sig
}

// typeOfTypeSymbol returns the type a type symbol denotes, resolving aliases
// on first use.
func (a *Analyzer) typeOfTypeSymbol(sym *symbols.Symbol) typesystem.Type {
	switch a.typeState[sym.ID] {
	case resolving:
		a.addError(diagnostics.NewError(diagnostics.ErrD004, sym.Pos,
			"type %s refers to itself", sym.QualifiedName()))
		return typesystem.Any
	case resolved:
		return sym.Type
	}
	if sym.IsResolved() {
		return sym.Type
	}
	decl, ok := sym.Decl().(*ast.TypeDecl)
	if !ok {
		return typesystem.Any
	}
	a.typeState[sym.ID] = resolving
	t := a.resolveTypeExpr(decl.Def, a.table.ModuleScope(sym.Module))
	sym.Type = t
	a.typeState[sym.ID] = resolved
	return t
}

// resolveTypeExpr converts a written type to a Type. Unknown names are
// reported and resolve to any so one mistake yields one error.
func (a *Analyzer) resolveTypeExpr(te ast.TypeExpr, scope *symbols.Scope) typesystem.Type {
	switch t := te.(type) {
	case nil:
		return typesystem.Any
	case *ast.NamedType:
		id, err := a.table.ResolveIn(scope, t.QualifiedName(), t.At)
		if err != nil {
			a.reportSymbolError(err, t.At)
			return typesystem.Any
		}
		sym := a.table.Symbol(id)
		if sym.Kind != symbols.TypeSymbol {
			a.reportSymbolError(&symbols.UnresolvedSymbolError{
				Name:   t.QualifiedName(),
				From:   scope.Module(),
				Pos:    t.At,
				Reason: fmt.Sprintf("%s is not a type", sym),
			}, t.At)
			return typesystem.Any
		}
		a.refs[t] = id
		return a.typeOfTypeSymbol(sym)
	case *ast.ListType:
		return typesystem.TList{Elem: a.resolveTypeExpr(t.Elem, scope)}
	case *ast.MapType:
		return typesystem.TMap{
			KeyType:   a.resolveTypeExpr(t.Key, scope),
			ValueType: a.resolveTypeExpr(t.Value, scope),
		}
	case *ast.PointerType:
		return typesystem.TPtr{Elem: a.resolveTypeExpr(t.Elem, scope)}
	case *ast.ArrayType:
		return typesystem.TArray{Elem: a.resolveTypeExpr(t.Elem, scope), Len: t.Len}
	case *ast.FuncType:
		fn := typesystem.TFunc{
			Params:   make([]typesystem.Type, len(t.Params)),
			Variadic: t.Variadic && len(t.Params) > 0,
			Result:   a.resolveTypeExpr(t.Result, scope),
		}
		for i, p := range t.Params {
			fn.Params[i] = a.resolveTypeExpr(p, scope)
		}
		return fn
	case *ast.StructType:
		a.anon++
		st := &typesystem.TStruct{Name: fmt.Sprintf("struct#%d", a.anon), Module: scope.Module()}
		for _, f := range t.Fields {
			st.Fields = append(st.Fields, typesystem.Field{Name: f.Name, Type: a.resolveTypeExpr(f.Type, scope)})
		}
		return st
	case *ast.UnionType:
		variants := make([]typesystem.Type, len(t.Variants))
		for i, v := range t.Variants {
			variants[i] = a.resolveTypeExpr(v, scope)
		}
		return typesystem.Union(variants...)
	}
	panic(fmt.Sprintf("unhandled type expression %T", te))
}
