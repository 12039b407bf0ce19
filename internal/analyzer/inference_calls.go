package analyzer

import (
	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/typesystem"
)

func (a *Analyzer) inferCall(e *ast.CallExpr, scope *symbols.Scope) typesystem.Type {
	ft := a.infer(e.Fn, scope)
	args := make([]typesystem.Type, len(e.Args))
	for i, arg := range e.Args {
		args[i] = a.infer(arg, scope)
	}

	// Calls of declared functions go through overload selection.
	if id, ok := a.refs[e.Fn]; ok {
		if sym := a.table.Symbol(id); sym.Kind == symbols.FunctionSymbol && len(sym.Overloads) > 0 {
			idx, res, err := typesystem.SelectOverload(sym.Overloads, args, e.At)
			if err != nil {
				a.reportCallError(err, e)
				return resultOf(sym.Overloads[0])
			}
			if sig, ok := a.sigs.Lookup(sym.Overloads[idx]); ok {
				a.Calls[e] = sig
			}
			return res
		}
	}

	switch t := ft.(type) {
	case typesystem.TFunc:
		res, err := typesystem.CheckCall(t, args, e.At)
		if err != nil {
			a.reportCallError(err, e)
			return resultOf(t)
		}
		return res
	case typesystem.TTypeRef:
		// Conversion: T(x).
		if len(args) != 1 {
			a.reportTypeError(&typesystem.ArityMismatchError{Want: 1, Got: len(args), Pos: e.At}, e.At)
		} else if !typesystem.Convertible(t.Of, args[0]) {
			a.reportCallError(&typesystem.TypeMismatchError{Expected: t.Of, Actual: args[0], Pos: e.At, Index: 0}, e)
		}
		return t.Of
	}
	if typesystem.IsDynamic(ft) {
		return typesystem.Any
	}
	a.reportTypeError(&typesystem.NotCallableError{Type: ft, Pos: e.At}, e.At)
	return typesystem.Any
}

// reportCallError places argument mismatches on the offending argument.
func (a *Analyzer) reportCallError(err error, e *ast.CallExpr) {
	if tm, ok := err.(*typesystem.TypeMismatchError); ok && tm.Index >= 0 && tm.Index < len(e.Args) {
		tm.Pos = e.Args[tm.Index].Pos()
		d := diagnostics.Wrap(diagnostics.ErrT001, tm.Pos, tm)
		d.WithNote(e.At, "in call to %s", calleeName(e.Fn))
		a.addError(d)
		return
	}
	a.reportTypeError(err, e.At)
}

func calleeName(fn ast.Expression) string {
	switch f := fn.(type) {
	case *ast.Identifier:
		return f.Name
	case *ast.SelectorExpr:
		return calleeName(f.X) + "." + f.Sel
	}
	return "function"
}

func resultOf(fn typesystem.TFunc) typesystem.Type {
	if fn.Result == nil {
		return typesystem.None
	}
	return fn.Result
}
