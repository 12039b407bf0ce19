package analyzer

import (
	"fmt"

	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/typesystem"
)

// InferType returns the type of expr evaluated in scope. Problems are
// recorded as diagnostics; the returned type is then the best guess, often
// any.
func (a *Analyzer) InferType(expr ast.Expression, scope *symbols.Scope) typesystem.Type {
	return a.infer(expr, scope)
}

func (a *Analyzer) infer(expr ast.Expression, scope *symbols.Scope) typesystem.Type {
	if expr == nil {
		return typesystem.None
	}
	if t, ok := a.TypeMap[expr]; ok {
		return t
	}
	t := a.inferNode(expr, scope)
	if t == nil {
		t = typesystem.Any
	}
	a.TypeMap[expr] = t
	return t
}

func (a *Analyzer) inferNode(expr ast.Expression, scope *symbols.Scope) typesystem.Type {
	switch e := expr.(type) {
	case *ast.IntegerLiteral:
		return typesystem.Int
	case *ast.FloatLiteral:
		return typesystem.Float
	case *ast.StringLiteral:
		return typesystem.String
	case *ast.BooleanLiteral:
		return typesystem.Bool
	case *ast.NoneLiteral:
		return typesystem.None

	case *ast.Identifier:
		sym, ok := scope.Find(e.Name)
		if !ok {
			a.reportSymbolError(&symbols.UnresolvedSymbolError{Name: e.Name, From: scope.Module(), Pos: e.At}, e.At)
			return typesystem.Any
		}
		a.refs[e] = sym.ID
		return a.symbolType(sym)

	case *ast.SelectorExpr:
		return a.inferSelector(e, scope)

	case *ast.CallExpr:
		return a.inferCall(e, scope)

	case *ast.BinaryExpr:
		return a.inferBinary(e, scope)

	case *ast.UnaryExpr:
		xt := a.infer(e.X, scope)
		switch e.Op {
		case "-":
			if typesystem.IsDynamic(xt) || isNumeric(xt) {
				return xt
			}
			a.reportTypeError(typesystem.NewTypeMismatchError(typesystem.Float, xt, e.X.Pos()), e.At)
		case "not":
			if !typesystem.Assignable(typesystem.Bool, xt) {
				a.reportTypeError(typesystem.NewTypeMismatchError(typesystem.Bool, xt, e.X.Pos()), e.At)
			}
			return typesystem.Bool
		default:
			a.errorf(diagnostics.ErrT001, e.At, "unknown unary operator %s", e.Op)
		}
		return typesystem.Any

	case *ast.ListLiteral:
		var elem typesystem.Type
		for _, el := range e.Elems {
			elem = typesystem.CommonType(elem, a.infer(el, scope))
		}
		if elem == nil {
			elem = typesystem.Any
		}
		return typesystem.TList{Elem: elem}

	case *ast.MapLiteral:
		var kt, vt typesystem.Type
		for _, entry := range e.Entries {
			kt = typesystem.CommonType(kt, a.infer(entry.Key, scope))
			vt = typesystem.CommonType(vt, a.infer(entry.Value, scope))
		}
		if kt == nil {
			kt = typesystem.Any
		}
		if vt == nil {
			vt = typesystem.Any
		}
		return typesystem.TMap{KeyType: kt, ValueType: vt}

	case *ast.StructLiteral:
		return a.inferStructLiteral(e, scope)

	case *ast.IndexExpr:
		return a.inferIndex(e, scope)
	}
	panic(fmt.Sprintf("unhandled expression %T", expr))
}

// symbolType is the type of a name used in expression position.
func (a *Analyzer) symbolType(sym *symbols.Symbol) typesystem.Type {
	switch sym.Kind {
	case symbols.VariableSymbol:
		if sym.Local {
			return sym.Type
		}
		return a.varType(sym)
	case symbols.FunctionSymbol:
		return sym.Type
	case symbols.TypeSymbol:
		return typesystem.TTypeRef{Of: a.typeOfTypeSymbol(sym)}
	case symbols.ModuleSymbol, symbols.FieldSymbol:
		return sym.Type
	}
	panic(fmt.Sprintf("unhandled symbol kind %s", sym.Kind))
}

// varType returns a module variable's type, inferring it from the
// initializer on first use. A variable reached again while its own
// initializer is being inferred is part of a cycle; it is typed any here and
// the cycle is reported by the initializer ordering.
func (a *Analyzer) varType(sym *symbols.Symbol) typesystem.Type {
	switch a.varState[sym.ID] {
	case resolved:
		return sym.Type
	case resolving:
		return typesystem.Any
	}
	decl, ok := a.varDecls[sym.ID]
	if !ok {
		return sym.Type
	}
	a.varState[sym.ID] = resolving
	t := a.infer(decl.Value, a.table.ModuleScope(sym.Module))
	sym.Type = t
	a.varState[sym.ID] = resolved
	return t
}

func (a *Analyzer) inferSelector(e *ast.SelectorExpr, scope *symbols.Scope) typesystem.Type {
	if id, ok := e.X.(*ast.Identifier); ok {
		if sym, found := scope.Find(id.Name); found && sym.Kind == symbols.ModuleSymbol {
			a.refs[id] = sym.ID
			a.TypeMap[id] = sym.Type
			m, err := a.table.Member(sym, e.Sel, scope.Module())
			if err != nil {
				a.reportSymbolError(&symbols.UnresolvedSymbolError{
					Name:   id.Name + "." + e.Sel,
					From:   scope.Module(),
					Pos:    e.At,
					Reason: err.Error(),
				}, e.At)
				return typesystem.Any
			}
			a.refs[e] = m.ID
			return a.symbolType(m)
		}
	}

	xt := a.infer(e.X, scope)
	if typesystem.IsDynamic(xt) {
		return typesystem.Any
	}
	if p, ok := xt.(typesystem.TPtr); ok {
		xt = p.Elem
	}
	if st, ok := xt.(*typesystem.TStruct); ok {
		if f, ok := st.Field(e.Sel); ok {
			return f.Type
		}
	}
	a.errorf(diagnostics.ErrT004, e.At, "type %s has no field %s", xt, e.Sel)
	return typesystem.Any
}

func (a *Analyzer) inferStructLiteral(e *ast.StructLiteral, scope *symbols.Scope) typesystem.Type {
	t := a.resolveTypeExpr(e.Type, scope)
	st, ok := t.(*typesystem.TStruct)
	if !ok {
		if !typesystem.IsDynamic(t) {
			a.errorf(diagnostics.ErrT001, e.At, "%s is not a struct type", t)
		}
		for _, fi := range e.Fields {
			a.infer(fi.Value, scope)
		}
		return typesystem.Any
	}
	for _, fi := range e.Fields {
		vt := a.infer(fi.Value, scope)
		f, ok := st.Field(fi.Name)
		if !ok {
			a.errorf(diagnostics.ErrT004, fi.At, "type %s has no field %s", st, fi.Name)
			continue
		}
		if !typesystem.Assignable(f.Type, vt) {
			a.reportTypeError(typesystem.NewTypeMismatchError(f.Type, vt, fi.Value.Pos()), fi.At)
		}
	}
	return st
}

func (a *Analyzer) inferIndex(e *ast.IndexExpr, scope *symbols.Scope) typesystem.Type {
	xt := a.infer(e.X, scope)
	it := a.infer(e.Index, scope)
	wantInt := func() {
		if !typesystem.Assignable(typesystem.Int, it) {
			a.reportTypeError(typesystem.NewTypeMismatchError(typesystem.Int, it, e.Index.Pos()), e.At)
		}
	}
	switch t := xt.(type) {
	case typesystem.TList:
		wantInt()
		return t.Elem
	case typesystem.TArray:
		wantInt()
		return t.Elem
	case typesystem.TPtr:
		wantInt()
		return t.Elem
	case typesystem.TMap:
		if !typesystem.Assignable(t.KeyType, it) {
			a.reportTypeError(typesystem.NewTypeMismatchError(t.KeyType, it, e.Index.Pos()), e.At)
		}
		return t.ValueType
	}
	if typesystem.Equal(xt, typesystem.String) {
		wantInt()
		return typesystem.String
	}
	if typesystem.IsDynamic(xt) {
		return typesystem.Any
	}
	a.errorf(diagnostics.ErrT001, e.At, "cannot index %s", xt)
	return typesystem.Any
}

func (a *Analyzer) inferBinary(e *ast.BinaryExpr, scope *symbols.Scope) typesystem.Type {
	lt := a.infer(e.Left, scope)
	rt := a.infer(e.Right, scope)
	dynamic := typesystem.IsDynamic(lt) || typesystem.IsDynamic(rt)

	switch e.Op {
	case "+", "-", "*", "/", "%":
		if e.Op == "+" && typesystem.Equal(lt, typesystem.String) && typesystem.Equal(rt, typesystem.String) {
			return typesystem.String
		}
		if dynamic {
			return typesystem.Any
		}
		if !isNumeric(lt) {
			a.reportTypeError(typesystem.NewTypeMismatchError(typesystem.Float, lt, e.Left.Pos()), e.At)
			return typesystem.Any
		}
		if !isNumeric(rt) {
			a.reportTypeError(typesystem.NewTypeMismatchError(lt, rt, e.Right.Pos()), e.At)
			return typesystem.Any
		}
		if typesystem.Equal(lt, typesystem.Int) && typesystem.Equal(rt, typesystem.Int) {
			return typesystem.Int
		}
		return typesystem.Float

	case "==", "!=":
		return typesystem.Bool

	case "<", "<=", ">", ">=":
		ordered := (isNumeric(lt) && isNumeric(rt)) ||
			(typesystem.Equal(lt, typesystem.String) && typesystem.Equal(rt, typesystem.String))
		if !dynamic && !ordered {
			a.reportTypeError(typesystem.NewTypeMismatchError(lt, rt, e.Right.Pos()), e.At)
		}
		return typesystem.Bool

	case "and", "or":
		if !typesystem.Assignable(typesystem.Bool, lt) {
			a.reportTypeError(typesystem.NewTypeMismatchError(typesystem.Bool, lt, e.Left.Pos()), e.At)
		}
		if !typesystem.Assignable(typesystem.Bool, rt) {
			a.reportTypeError(typesystem.NewTypeMismatchError(typesystem.Bool, rt, e.Right.Pos()), e.At)
		}
		return typesystem.Bool
	}
	a.errorf(diagnostics.ErrT001, e.At, "unknown operator %s", e.Op)
	return typesystem.Any
}

func isNumeric(t typesystem.Type) bool {
	return typesystem.Equal(t, typesystem.Int) || typesystem.Equal(t, typesystem.Float)
}
