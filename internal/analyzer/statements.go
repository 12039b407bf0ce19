package analyzer

import (
	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/typesystem"
)

// CheckBodies infers module variable types, checks annotated initializers,
// function bodies and module initialization expressions.
func (a *Analyzer) CheckBodies() {
	for _, u := range a.units {
		scope := a.table.ModuleScope(u.Module)
		for _, stmt := range u.Program.Decls {
			switch d := stmt.(type) {
			case *ast.VarDecl:
				id, ok := a.declOf[d]
				if !ok {
					continue
				}
				sym := a.table.Symbol(id)
				declared := a.varType(sym)
				if d.Type != nil && d.Value != nil {
					vt := a.infer(d.Value, scope)
					if !typesystem.Assignable(declared, vt) {
						a.reportTypeError(typesystem.NewTypeMismatchError(declared, vt, d.Value.Pos()), d.At)
					}
				}
			case *ast.FuncDecl:
				sig, ok := a.sigOf[d]
				if !ok {
					continue
				}
				a.checkFunction(d, sig, scope)
			case *ast.ExpressionStatement:
				a.infer(d.Expr, scope)
			}
		}
	}
}

func (a *Analyzer) checkFunction(decl *ast.FuncDecl, sig typesystem.TFunc, outer *symbols.Scope) {
	scope := symbols.NewEnclosedScope(outer, symbols.ScopeFunction)
	for i, p := range decl.Params {
		id, err := scope.Declare(p.Name, symbols.VariableSymbol, p.At)
		if err != nil {
			a.reportSymbolError(err, p.At)
			continue
		}
		pt := sig.Params[i]
		if sig.Variadic && i == len(decl.Params)-1 {
			pt = typesystem.TList{Elem: pt}
		}
		a.table.Symbol(id).Type = pt
	}
	a.checkBlock(decl.Body, scope, resultOf(sig))
}

func (a *Analyzer) checkBlock(body []ast.Statement, scope *symbols.Scope, result typesystem.Type) {
	for _, stmt := range body {
		a.checkStatement(stmt, scope, result)
	}
}

func (a *Analyzer) checkStatement(stmt ast.Statement, scope *symbols.Scope, result typesystem.Type) {
	switch s := stmt.(type) {
	case *ast.ExpressionStatement:
		a.infer(s.Expr, scope)

	case *ast.LetStatement:
		t := a.infer(s.Value, scope)
		if s.Type != nil {
			declared := a.resolveTypeExpr(s.Type, scope)
			if s.Value != nil && !typesystem.Assignable(declared, t) {
				a.reportTypeError(typesystem.NewTypeMismatchError(declared, t, s.Value.Pos()), s.At)
			}
			t = declared
		}
		id, err := scope.Declare(s.Name, symbols.VariableSymbol, s.At)
		if err != nil {
			a.reportSymbolError(err, s.At)
			return
		}
		a.table.Symbol(id).Type = t

	case *ast.AssignStatement:
		tt := a.infer(s.Target, scope)
		if id, ok := a.refs[s.Target]; ok {
			if sym := a.table.Symbol(id); sym.Kind != symbols.VariableSymbol && sym.Kind != symbols.FieldSymbol {
				a.errorf(diagnostics.ErrT001, s.At, "cannot assign to %s", sym)
				return
			}
		}
		vt := a.infer(s.Value, scope)
		if !typesystem.Assignable(tt, vt) {
			a.reportTypeError(typesystem.NewTypeMismatchError(tt, vt, s.Value.Pos()), s.At)
		}

	case *ast.ReturnStatement:
		vt := a.infer(s.Value, scope)
		if !typesystem.Assignable(result, vt) {
			pos := s.At
			if s.Value != nil {
				pos = s.Value.Pos()
			}
			a.reportTypeError(typesystem.NewTypeMismatchError(result, vt, pos), s.At)
		}

	case *ast.IfStatement:
		ct := a.infer(s.Cond, scope)
		if !typesystem.Assignable(typesystem.Bool, ct) {
			a.reportTypeError(typesystem.NewTypeMismatchError(typesystem.Bool, ct, s.Cond.Pos()), s.At)
		}
		a.checkBlock(s.Then, symbols.NewEnclosedScope(scope, symbols.ScopeBlock), result)
		if s.Else != nil {
			a.checkBlock(s.Else, symbols.NewEnclosedScope(scope, symbols.ScopeBlock), result)
		}

	default:
		log.Warningf("%s: ignoring %T in function body", stmt.Pos(), stmt)
	}
}
