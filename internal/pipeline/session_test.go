package pipeline

import (
	"reflect"
	"strings"
	"testing"

	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/config"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/token"
	"github.com/funvibe/loom/internal/typesystem"
)

func offlineSettings() *config.Settings {
	s := config.DefaultSettings()
	allow := false
	s.Remote.Allow = &allow
	return s
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(offlineSettings(), nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func pos(file string, line int) token.Position {
	return token.Position{File: file, Line: line, Column: 1}
}

// program builds `import path...` followed by `var name = <module>.<member>`
// style declarations.
func program(file string, imports []string, decls ...ast.Statement) *ast.Program {
	p := &ast.Program{File: file, Decls: decls}
	for i, path := range imports {
		p.Imports = append(p.Imports, &ast.ImportDecl{At: pos(file, i+1), Specifier: path})
	}
	return p
}

func varOf(file string, line int, name string, value ast.Expression) *ast.VarDecl {
	return &ast.VarDecl{At: pos(file, line), Name: name, Exported: true, Value: value}
}

func member(file string, line int, module, name string) *ast.SelectorExpr {
	return &ast.SelectorExpr{
		At:  pos(file, line),
		X:   &ast.Identifier{At: pos(file, line), Name: module},
		Sel: name,
	}
}

func TestCompileOrdersAcrossModules(t *testing.T) {
	s := newTestSession(t)
	s.AddProgram("main", program("main", []string{"util"},
		varOf("main", 5, "total", &ast.BinaryExpr{
			At: pos("main", 5), Op: "+",
			Left:  member("main", 5, "util", "base"),
			Right: &ast.IntegerLiteral{At: pos("main", 5), Value: 1},
		}),
	))
	s.AddProgram("util", program("util", nil,
		varOf("util", 1, "base", &ast.IntegerLiteral{At: pos("util", 1), Value: 41}),
	))

	res, err := s.Compile("main")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var names []string
	for _, sym := range res.Order {
		names = append(names, sym.QualifiedName())
	}
	if want := []string{"util.base", "main.total"}; !reflect.DeepEqual(names, want) {
		t.Errorf("order = %v, want %v", names, want)
	}
	if len(res.Modules) != 2 || res.Root.Name != "main" {
		t.Errorf("unexpected modules: %v", res.Modules)
	}
	if res.SessionID != s.ID {
		t.Errorf("result carries session %s, want %s", res.SessionID, s.ID)
	}
}

func TestCompileReportsCircularInitializer(t *testing.T) {
	s := newTestSession(t)
	s.AddProgram("a", program("a.loom", []string{"b"}, varOf("a.loom", 3, "x", member("a.loom", 3, "b", "y"))))
	s.AddProgram("b", program("b.loom", []string{"a"}, varOf("b.loom", 3, "y", member("b.loom", 3, "a", "x"))))

	_, err := s.Compile("a")
	if !diagnostics.HasCode(err, diagnostics.ErrD003) {
		t.Fatalf("expected D003, got %v", err)
	}
	report := diagnostics.Report(err)
	for _, name := range []string{"a.x", "b.y"} {
		if !strings.Contains(report, name) {
			t.Errorf("report does not name %s:\n%s", name, report)
		}
	}
}

func TestCompileMissingImport(t *testing.T) {
	s := newTestSession(t)
	s.AddProgram("main", program("main.loom", []string{"./nowhere"}))

	_, err := s.Compile("main")
	if !diagnostics.HasCode(err, diagnostics.ErrM001) {
		t.Fatalf("expected M001, got %v", err)
	}
	if !strings.Contains(diagnostics.Report(err), "main.loom:1:1") {
		t.Errorf("expected the import location in the report:\n%s", diagnostics.Report(err))
	}
}

func TestSessionUsableAfterFailure(t *testing.T) {
	s := newTestSession(t)
	s.AddProgram("bad", program("bad.loom", nil,
		varOf("bad.loom", 1, "v", &ast.Identifier{At: pos("bad.loom", 1), Name: "missing"}),
	))
	s.AddProgram("good", program("good.loom", nil,
		varOf("good.loom", 1, "v", &ast.IntegerLiteral{At: pos("good.loom", 1), Value: 1}),
	))

	if _, err := s.Compile("bad"); !diagnostics.HasCode(err, diagnostics.ErrD002) {
		t.Fatalf("expected D002, got %v", err)
	}
	res, err := s.Compile("good")
	if err != nil {
		t.Fatalf("second compile: %v", err)
	}
	if res.Table.HasModule("bad") {
		t.Errorf("symbols from the failed compile survived the reset")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	a := newTestSession(t)
	b := newTestSession(t)
	if a.ID == b.ID {
		t.Fatalf("sessions share id %s", a.ID)
	}
	if a.Table == b.Table || a.Signatures == b.Signatures {
		t.Fatalf("sessions share compilation state")
	}
}

func TestCompileSeesHostModules(t *testing.T) {
	s := newTestSession(t)
	scale := typesystem.TFunc{Params: []typesystem.Type{typesystem.Float}, Result: typesystem.Float}
	if err := s.AddHost("native", []symbols.HostMember{{Name: "scale", Type: scale}}); err != nil {
		t.Fatalf("AddHost: %v", err)
	}
	if err := s.AddHost("native", nil); err == nil {
		t.Errorf("registering a host twice must fail")
	}
	call := func(arg ast.Expression) *ast.CallExpr {
		return &ast.CallExpr{At: pos("main", 1), Fn: member("main", 1, "native", "scale"), Args: []ast.Expression{arg}}
	}
	s.AddProgram("main", program("main", nil,
		varOf("main", 1, "scaled", call(&ast.FloatLiteral{At: pos("main", 1), Value: 2})),
	))
	s.AddProgram("bad", program("bad", nil,
		varOf("bad", 1, "scaled", call(&ast.StringLiteral{At: pos("bad", 1), Value: "x"})),
	))

	// Compiling twice re-declares the host in the fresh table.
	for i := 0; i < 2; i++ {
		res, err := s.Compile("main")
		if err != nil {
			t.Fatalf("Compile #%d: %v", i+1, err)
		}
		sym, ok := res.Table.ModuleScope("main").FindLocal("scaled")
		if !ok || sym.Type != typesystem.Float {
			t.Errorf("scaled = %v", sym)
		}
		if _, ok := res.Signatures.Lookup(scale); !ok {
			t.Errorf("host signature not interned")
		}
	}
	if _, err := s.Compile("bad"); !diagnostics.HasCode(err, diagnostics.ErrT001) {
		t.Errorf("err = %v, want T001", err)
	}

	s.RemoveHost("native")
	if _, err := s.Compile("main"); !diagnostics.HasCode(err, diagnostics.ErrD002) {
		t.Errorf("err = %v, want D002 once the host is removed", err)
	}
}
