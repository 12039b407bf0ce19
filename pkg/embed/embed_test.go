package loom_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/config"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/ffi"
	"github.com/funvibe/loom/internal/token"
	"github.com/funvibe/loom/internal/vm"
	loom "github.com/funvibe/loom/pkg/embed"
)

// Point is the Go side of the native Point struct.
type Point struct {
	X, Y float64
}

func geometry() *ffi.GoLibrary {
	return ffi.NewGoLibrary("geom").
		MustRegister("distance", func(a, b Point) float64 {
			return math.Hypot(a.X-b.X, a.Y-b.Y)
		}).
		MustRegister("midpoint", func(a, b Point) Point {
			return Point{(a.X + b.X) / 2, (a.Y + b.Y) / 2}
		}).
		MustRegister("scale", func(x float64) float64 { return 2 * x })
}

func geometryDecls() []ffi.Decl {
	return []ffi.Decl{
		ffi.NewStruct("Point", ffi.F("x", ffi.Double), ffi.F("y", ffi.Double)),
		ffi.Func("distance", ffi.Double, ffi.Struct("Point"), ffi.Struct("Point")),
		ffi.Func("midpoint", ffi.Struct("Point"), ffi.Struct("Point"), ffi.Struct("Point")),
		ffi.Func("scale", ffi.Double, ffi.Double),
	}
}

func offline() *config.Settings {
	s := config.DefaultSettings()
	allow := false
	s.Remote.Allow = &allow
	return s
}

func newRuntime(t *testing.T, settings *config.Settings) *loom.Runtime {
	t.Helper()
	rt, err := loom.New(loom.Options{Settings: settings})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func at(file string, line int) token.Position {
	return token.Position{File: file, Line: line, Column: 1}
}

// scaleProgram is `var y = geom.scale(arg)`.
func scaleProgram(file string, arg ast.Expression) *ast.Program {
	call := &ast.CallExpr{
		At:   at(file, 1),
		Fn:   &ast.SelectorExpr{At: at(file, 1), X: &ast.Identifier{At: at(file, 1), Name: "geom"}, Sel: "scale"},
		Args: []ast.Expression{arg},
	}
	return &ast.Program{File: file, Decls: []ast.Statement{
		&ast.VarDecl{At: at(file, 1), Name: "y", Exported: true, Value: call},
	}}
}

func TestEmbedAPI(t *testing.T) {
	rt := newRuntime(t, offline())

	// 1. Bind a library
	if _, err := rt.Bind("geom", geometry(), geometryDecls()); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	// 2. Call with Go values standing for native structs
	d, err := rt.Call("geom.distance", Point{0, 0}, map[string]float64{"x": 3, "y": 4})
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if d != 5.0 {
		t.Errorf("distance = %v, want 5", d)
	}

	// 3. Decode a struct result
	var mid Point
	if err := rt.CallInto(&mid, "geom.midpoint", Point{0, 0}, &Point{4, 2}); err != nil {
		t.Fatalf("midpoint: %v", err)
	}
	if mid != (Point{2, 1}) {
		t.Errorf("midpoint = %+v", mid)
	}
	res, err := rt.Call("geom.midpoint", Point{0, 0}, Point{2, 2})
	if err != nil {
		t.Fatalf("midpoint: %v", err)
	}
	if m, ok := res.(map[string]interface{}); !ok || m["x"] != 1.0 {
		t.Errorf("midpoint as map = %#v", res)
	}

	// 4. Errors
	if _, err := rt.Call("geom.distance", Point{}); err == nil {
		t.Errorf("expected an arity error")
	}
	if _, err := rt.Call("geom.nope"); err == nil {
		t.Errorf("expected an unknown function error")
	}
	if _, err := rt.Bind("geom", geometry(), geometryDecls()); err == nil {
		t.Errorf("binding a name twice must fail")
	}
}

func TestCompileAgainstBinding(t *testing.T) {
	rt := newRuntime(t, offline())
	rt.AddProgram("main", scaleProgram("main", &ast.FloatLiteral{At: at("main", 1), Value: 1.5}))
	rt.AddProgram("bad", scaleProgram("bad", &ast.StringLiteral{At: at("bad", 1), Value: "x"}))

	if _, err := rt.Compile("main"); !diagnostics.HasCode(err, diagnostics.ErrD002) {
		t.Fatalf("err = %v, want D002 before geom is bound", err)
	}

	if _, err := rt.Bind("geom", geometry(), geometryDecls()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	res, err := rt.Compile("main")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(res.Order) != 1 || res.Order[0].QualifiedName() != "main.y" {
		t.Errorf("order = %v", res.Order)
	}
	if _, err := rt.Compile("bad"); !diagnostics.HasCode(err, diagnostics.ErrT001) {
		t.Errorf("err = %v, want T001", err)
	}

	if err := rt.Release("geom"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := rt.Compile("main"); !diagnostics.HasCode(err, diagnostics.ErrD002) {
		t.Errorf("err = %v, want D002 after release", err)
	}
}

func TestBindReportsDiagnostics(t *testing.T) {
	rt := newRuntime(t, offline())
	decls := append(geometryDecls(), ffi.Func("foo", ffi.Void))

	_, err := rt.Bind("geom", geometry(), decls)
	if !diagnostics.HasCode(err, diagnostics.ErrB001) {
		t.Fatalf("err = %v, want B001", err)
	}
	if !errors.Is(err, ffi.ErrMissingSymbol) {
		t.Errorf("diagnostic does not wrap the missing symbol error")
	}
	if _, ok := rt.Get("geom"); ok {
		t.Errorf("a failed bind must not register a value")
	}

	_, err = rt.Bind("bad", geometry(), []ffi.Decl{ffi.Func("scale", ffi.Double, ffi.Struct("Missing"))})
	if !diagnostics.HasCode(err, diagnostics.ErrB002) {
		t.Errorf("err = %v, want B002", err)
	}
}

func TestReleaseFreesHandle(t *testing.T) {
	rt := newRuntime(t, offline())
	lib := geometry()
	v, err := rt.Bind("geom", lib, geometryDecls())
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	b, _ := rt.Binding("geom")

	// A callable kept by the host outlives the binding's registration.
	m := v.Obj.(*vm.Map)
	kept, _ := m.Get("scale")
	if err := rt.Release("geom"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !b.Handle.Released() || !lib.Closed() {
		t.Errorf("handle still open after releasing every callable")
	}
	if _, err := kept.Obj.(*vm.NativeFunction).Call(vm.FloatVal(1)); err == nil {
		t.Errorf("released callable still callable")
	}
	if _, err := rt.Call("geom.scale", 1.0); err == nil {
		t.Errorf("released binding still reachable")
	}
}

func TestRuntimeFromSettingsDir(t *testing.T) {
	dir := t.TempDir()
	settings := "remote:\n  allow: false\nbindings:\n  mode: type\n"
	if err := os.WriteFile(filepath.Join(dir, "loom.yaml"), []byte(settings), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "scripts")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	rt, err := loom.NewFromDir(sub, nil)
	if err != nil {
		t.Fatalf("NewFromDir: %v", err)
	}
	defer rt.Close()
	if rt.Settings().Bindings.Mode != config.BindModeType {
		t.Fatalf("mode = %q", rt.Settings().Bindings.Mode)
	}

	v, err := rt.Bind("geom", geometry(), geometryDecls())
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, ok := v.Obj.(*vm.TypeValue); !ok {
		t.Fatalf("type mode bound %s", v.Inspect())
	}
	got, err := rt.Call("geom.scale", 21)
	if err != nil {
		t.Fatalf("scale: %v", err)
	}
	if got != 42.0 {
		t.Errorf("scale = %v", got)
	}
}

func TestBindFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geom.yaml")
	yaml := `
library: ./libgeom.so
mode: type
decls:
  - type: Point
    fields:
      - {name: x, type: double}
      - {name: y, type: double}
  - sym: distance
    args: [Point, Point]
    ret: double
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	rt := newRuntime(t, offline())

	// Without a library at the named path the file cannot be bound.
	if _, err := rt.BindFile("native", path, nil); !diagnostics.HasCode(err, diagnostics.ErrB003) {
		t.Errorf("err = %v, want B003", err)
	}

	v, err := rt.BindFile("geom", path, geometry())
	if err != nil {
		t.Fatalf("BindFile: %v", err)
	}
	if _, ok := v.Obj.(*vm.TypeValue); !ok {
		t.Errorf("file mode ignored: %s", v.Inspect())
	}
	d, err := rt.Call("geom.distance", Point{1, 1}, Point{4, 5})
	if err != nil || d != 5.0 {
		t.Errorf("distance = %v, %v", d, err)
	}
}

func TestMarshallerRoundTrip(t *testing.T) {
	m := loom.NewMarshaller()
	in := map[string]interface{}{
		"name":   "loom",
		"count":  3,
		"ratio":  0.5,
		"tags":   []string{"a", "b"},
		"nested": map[string]int{"k": 1},
	}
	v, err := m.ToValue(in)
	if err != nil {
		t.Fatalf("ToValue: %v", err)
	}
	if keys := v.Obj.(*vm.Map).Keys(); keys[0] != "count" || keys[4] != "tags" {
		t.Errorf("keys not sorted: %v", keys)
	}

	var out struct {
		Name   string
		Count  int64
		Ratio  float32
		Tags   []string
		Nested map[string]int
	}
	// Maps decode into maps; go through a generic value for the struct.
	back, err := m.FromValue(v, nil)
	if err != nil {
		t.Fatalf("FromValue: %v", err)
	}
	g := back.(map[string]interface{})
	out.Name = g["name"].(string)
	if out.Name != "loom" || g["count"] != 3 {
		t.Errorf("round trip = %#v", g)
	}
	if err := m.Decode(vm.IntVal(7), &out.Count); err != nil || out.Count != 7 {
		t.Errorf("Decode int64 = %d, %v", out.Count, err)
	}
	if err := m.Decode(vm.FloatVal(0.25), &out.Ratio); err != nil || out.Ratio != 0.25 {
		t.Errorf("Decode float32 = %v, %v", out.Ratio, err)
	}
	tags, _ := m.ToValue([]string{"x", "y"})
	if err := m.Decode(tags, &out.Tags); err != nil || len(out.Tags) != 2 || out.Tags[1] != "y" {
		t.Errorf("Decode []string = %v, %v", out.Tags, err)
	}
	nested, _ := m.ToValue(map[string]int{"k": 1})
	if err := m.Decode(nested, &out.Nested); err != nil || out.Nested["k"] != 1 {
		t.Errorf("Decode map = %v, %v", out.Nested, err)
	}
	if err := m.Decode(vm.IntVal(1), out); err == nil {
		t.Errorf("decoding into a non-pointer must fail")
	}
}
