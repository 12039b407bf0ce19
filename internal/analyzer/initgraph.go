package analyzer

import (
	"errors"

	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/initorder"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/token"
)

// OrderInitializers builds the initializer dependency graph over all module
// variables and computes their initialization order. A variable depends on
// every module variable its initializer reads, directly or through the
// bodies of the module functions it refers to. Cycles among functions are
// fine; a cycle among variables is reported as D003.
func (a *Analyzer) OrderInitializers() {
	g := initorder.NewGraph()
	byName := make(map[string]*symbols.Symbol, len(a.vars))
	for _, id := range a.vars {
		sym := a.table.Symbol(id)
		byName[sym.QualifiedName()] = sym
		g.AddNode(sym.QualifiedName())
	}
	for _, id := range a.vars {
		sym := a.table.Symbol(id)
		for _, dep := range a.initializerReads(id) {
			g.AddEdge(sym.QualifiedName(), a.table.Symbol(dep).QualifiedName())
		}
	}

	names, err := initorder.ComputeOrder(g)
	if err != nil {
		var cycle *initorder.CircularInitializerError
		if !errors.As(err, &cycle) {
			a.addError(diagnostics.Wrap(diagnostics.ErrD003, token.Position{}, err))
			return
		}
		a.reportCycle(cycle, byName)
		return
	}

	a.Order = make([]*symbols.Symbol, len(names))
	for i, name := range names {
		a.Order[i] = byName[name]
	}
	log.Debugf("initialization order: %v", names)
}

func (a *Analyzer) reportCycle(cycle *initorder.CircularInitializerError, byName map[string]*symbols.Symbol) {
	first := byName[cycle.Cycle[0]]
	d := diagnostics.Wrap(diagnostics.ErrD003, first.Pos, cycle)
	for i, name := range cycle.Cycle {
		next := cycle.Cycle[(i+1)%len(cycle.Cycle)]
		d.WithNote(byName[name].Pos, "%s reads %s", name, next)
	}
	a.addError(d)
}

// initializerReads returns the module variables that variable id's
// initializer reads, in first-reference order.
func (a *Analyzer) initializerReads(id symbols.SymbolID) []symbols.SymbolID {
	decl, ok := a.varDecls[id]
	if !ok || decl.Value == nil {
		return nil
	}
	var deps []symbols.SymbolID
	seenVars := make(map[symbols.SymbolID]bool)
	seenFuncs := make(map[symbols.SymbolID]bool)

	var visit func(ref symbols.SymbolID)
	visit = func(ref symbols.SymbolID) {
		sym := a.table.Symbol(ref)
		switch sym.Kind {
		case symbols.VariableSymbol:
			if sym.Local || seenVars[ref] {
				return
			}
			if _, declared := a.varDecls[ref]; !declared {
				return
			}
			seenVars[ref] = true
			deps = append(deps, ref)
		case symbols.FunctionSymbol:
			if seenFuncs[ref] {
				return
			}
			seenFuncs[ref] = true
			for _, node := range sym.Decls {
				if fn, ok := node.(*ast.FuncDecl); ok {
					a.walkStatements(fn.Body, visit)
				}
			}
		}
	}
	a.walkExpr(decl.Value, visit)
	return deps
}

// walkExpr reports every symbol that a resolved name inside expr refers to.
func (a *Analyzer) walkExpr(expr ast.Expression, visit func(symbols.SymbolID)) {
	if expr == nil {
		return
	}
	if id, ok := a.refs[expr]; ok {
		visit(id)
	}
	switch e := expr.(type) {
	case *ast.SelectorExpr:
		if _, qualified := a.refs[e]; !qualified {
			a.walkExpr(e.X, visit)
		}
	case *ast.CallExpr:
		a.walkExpr(e.Fn, visit)
		for _, arg := range e.Args {
			a.walkExpr(arg, visit)
		}
	case *ast.BinaryExpr:
		a.walkExpr(e.Left, visit)
		a.walkExpr(e.Right, visit)
	case *ast.UnaryExpr:
		a.walkExpr(e.X, visit)
	case *ast.ListLiteral:
		for _, el := range e.Elems {
			a.walkExpr(el, visit)
		}
	case *ast.MapLiteral:
		for _, entry := range e.Entries {
			a.walkExpr(entry.Key, visit)
			a.walkExpr(entry.Value, visit)
		}
	case *ast.StructLiteral:
		for _, f := range e.Fields {
			a.walkExpr(f.Value, visit)
		}
	case *ast.IndexExpr:
		a.walkExpr(e.X, visit)
		a.walkExpr(e.Index, visit)
	}
}

func (a *Analyzer) walkStatements(body []ast.Statement, visit func(symbols.SymbolID)) {
	for _, stmt := range body {
		switch s := stmt.(type) {
		case *ast.ExpressionStatement:
			a.walkExpr(s.Expr, visit)
		case *ast.LetStatement:
			a.walkExpr(s.Value, visit)
		case *ast.AssignStatement:
			a.walkExpr(s.Target, visit)
			a.walkExpr(s.Value, visit)
		case *ast.ReturnStatement:
			a.walkExpr(s.Value, visit)
		case *ast.IfStatement:
			a.walkExpr(s.Cond, visit)
			a.walkStatements(s.Then, visit)
			a.walkStatements(s.Else, visit)
		}
	}
}
