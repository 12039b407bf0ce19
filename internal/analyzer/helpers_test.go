package analyzer

import (
	"strings"
	"testing"

	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/token"
)

// Tests build syntax trees by hand; the parser lives outside this module.

type fixture struct {
	file string
	line int
}

func newFixture(file string) *fixture {
	return &fixture{file: file}
}

// at returns a position on a fresh line.
func (f *fixture) at() token.Position {
	f.line++
	return token.Position{File: f.file, Line: f.line, Column: 1}
}

func (f *fixture) col(c int) token.Position {
	return token.Position{File: f.file, Line: f.line, Column: c}
}

func (f *fixture) ident(name string) *ast.Identifier {
	return &ast.Identifier{At: f.col(10), Name: name}
}

func (f *fixture) sel(x, name string) *ast.SelectorExpr {
	return &ast.SelectorExpr{At: f.col(10), X: &ast.Identifier{At: f.col(10), Name: x}, Sel: name}
}

func (f *fixture) num(v int64) *ast.IntegerLiteral {
	return &ast.IntegerLiteral{At: f.col(20), Value: v}
}

func (f *fixture) str(v string) *ast.StringLiteral {
	return &ast.StringLiteral{At: f.col(20), Value: v}
}

func (f *fixture) call(fn ast.Expression, args ...ast.Expression) *ast.CallExpr {
	return &ast.CallExpr{At: f.col(5), Fn: fn, Args: args}
}

func (f *fixture) binary(op string, l, r ast.Expression) *ast.BinaryExpr {
	return &ast.BinaryExpr{At: f.col(15), Op: op, Left: l, Right: r}
}

func named(name string) *ast.NamedType {
	return &ast.NamedType{Name: name}
}

func (f *fixture) varDecl(name string, value ast.Expression) *ast.VarDecl {
	return &ast.VarDecl{At: f.at(), Name: name, Exported: true, Value: value}
}

func (f *fixture) funcDecl(name string, params []*ast.Param, result ast.TypeExpr, body ...ast.Statement) *ast.FuncDecl {
	return &ast.FuncDecl{At: f.at(), Name: name, Exported: true, Params: params, Result: result, Body: body}
}

func (f *fixture) param(name, typ string) *ast.Param {
	p := &ast.Param{At: f.col(3), Name: name}
	if typ != "" {
		p.Type = named(typ)
	}
	return p
}

func (f *fixture) ret(v ast.Expression) *ast.ReturnStatement {
	return &ast.ReturnStatement{At: f.at(), Value: v}
}

func (f *fixture) expr(e ast.Expression) *ast.ExpressionStatement {
	return &ast.ExpressionStatement{At: f.at(), Expr: e}
}

// unit builds a module from declarations. imports maps binding specifiers to
// target module names, e.g. {"./b": "B"}.
func (f *fixture) unit(module string, imports map[string]string, decls ...ast.Statement) *Unit {
	u := &Unit{Module: module, Program: &ast.Program{File: f.file, Decls: decls}}
	for path, target := range imports {
		decl := &ast.ImportDecl{At: f.at(), Specifier: path}
		u.Program.Imports = append(u.Program.Imports, decl)
		u.Imports = append(u.Imports, Binding{Decl: decl, Target: target})
	}
	return u
}

func analyzeUnits(units ...*Unit) (*Analyzer, error) {
	a := New(symbols.NewTable(), nil)
	err := a.Analyze(units)
	return a, err
}

// expectAnalyzerError asserts that at least one error with the given code is produced.
func expectAnalyzerError(t *testing.T, code diagnostics.ErrorCode, units ...*Unit) *diagnostics.DiagnosticError {
	t.Helper()
	_, err := analyzeUnits(units...)
	if err == nil {
		t.Fatalf("expected error %s, but got none", code)
	}
	errs, ok := err.(*diagnostics.Errors)
	if !ok {
		t.Fatalf("expected *diagnostics.Errors, got %T", err)
	}
	for _, d := range errs.List {
		if d.Code == code {
			return d
		}
	}
	t.Fatalf("expected error %s, got:\n%s", code, diagnostics.Report(err))
	return nil
}

// expectAnalyzerErrorContains asserts an error with the given code whose message contains substr.
func expectAnalyzerErrorContains(t *testing.T, code diagnostics.ErrorCode, substr string, units ...*Unit) *diagnostics.DiagnosticError {
	t.Helper()
	d := expectAnalyzerError(t, code, units...)
	if !strings.Contains(d.Error(), substr) {
		t.Errorf("expected error message to contain %q, got: %s", substr, d.Error())
	}
	return d
}

// expectNoAnalyzerErrors asserts that analysis produces no errors.
func expectNoAnalyzerErrors(t *testing.T, units ...*Unit) *Analyzer {
	t.Helper()
	a, err := analyzeUnits(units...)
	if err != nil {
		t.Fatalf("expected no errors, got:\n%s", diagnostics.Report(err))
	}
	return a
}

func orderNames(a *Analyzer) []string {
	out := make([]string, len(a.Order))
	for i, sym := range a.Order {
		out[i] = sym.QualifiedName()
	}
	return out
}

func posAt(line, col int) token.Position {
	return token.Position{File: "main.loom", Line: line, Column: col}
}
