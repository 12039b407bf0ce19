package ffi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/loom/internal/config"
)

const geometryYAML = `
library: ./libgeom.so
decls:
  - type: Point
    fields:
      - {name: x, type: double}
      - {name: y, type: double}
  - type: Pair
    fields: [int, "int[2]"]
  - sym: distance
    args: [Point, Point]
    ret: double
  - sym: reverse
    args: [{elem: int, n: 4}]
    ret: int[4]
  - sym: reset
`

func TestParseBindingFile_Valid(t *testing.T) {
	bf, err := ParseBindingFile([]byte(geometryYAML), "geom.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bf.Mode != config.BindModeMap {
		t.Errorf("mode = %q, want %s", bf.Mode, config.BindModeMap)
	}
	decls := bf.Declarations()
	if len(decls) != 5 {
		t.Fatalf("expected 5 decls, got %d", len(decls))
	}

	point, ok := decls[0].(*StructDecl)
	if !ok || point.Type != "Point" || len(point.Fields) != 2 {
		t.Fatalf("decls[0] = %#v", decls[0])
	}
	if point.Fields[1].Name != "y" || point.Fields[1].Type != Double {
		t.Errorf("Point.y = %#v", point.Fields[1])
	}

	pair := decls[1].(*StructDecl)
	if pair.Fields[0].Name != "" || pair.Fields[1].Type != Array(Int, 2) {
		t.Errorf("Pair fields = %#v", pair.Fields)
	}

	reverse := decls[3].(*FuncDecl)
	if reverse.Args[0] != Array(Int, 4) || reverse.Ret != Array(Int, 4) {
		t.Errorf("reverse = %#v", reverse)
	}
	if reset := decls[4].(*FuncDecl); reset.Ret != Void || len(reset.Args) != 0 {
		t.Errorf("reset = %#v", reset)
	}

	// The parsed request is valid as a whole.
	if _, err := GenerateSource(decls, false); err != nil {
		t.Errorf("GenerateSource: %v", err)
	}
}

func TestParseBindingFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no decls", "library: x.so\n", "no decls defined"},
		{"bad mode", "mode: class\ndecls: [{sym: f}]\n", "unknown mode"},
		{"sym and type", "decls: [{sym: f, type: T, fields: [int]}]\n", "mutually exclusive"},
		{"neither", "decls: [{args: [int]}]\n", "one of sym or type"},
		{"fields on sym", "decls: [{sym: f, fields: [int]}]\n", "only valid with type"},
		{"args on type", "decls: [{type: T, fields: [int], ret: int}]\n", "only valid with sym"},
		{"empty struct", "decls: [{type: T}]\n", "has no fields"},
		{"bad descriptor", "decls: [{sym: f, ret: \"int[0]\"}]\n", "length must be positive"},
		{"array without elem", "decls: [{sym: f, args: [{n: 2}]}]\n", "needs elem"},
		{"array without length", "decls: [{sym: f, args: [{elem: int}]}]\n", "must be positive"},
		{"sequence descriptor", "decls: [{sym: f, ret: [int]}]\n", "expected a descriptor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBindingFile([]byte(tt.yaml), "bad.yaml")
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestParseBindingFile_UndeclaredStructPassesShapeCheck(t *testing.T) {
	// References are resolved against the whole request at bind time.
	bf, err := ParseBindingFile([]byte("decls: [{sym: f, args: [Missing]}]\n"), "late.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := GenerateSource(bf.Declarations(), false); err == nil {
		t.Errorf("undeclared struct was not rejected at generation")
	}
}

func TestLoadBindingFile_ResolvesLibrary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geom.yaml")
	if err := os.WriteFile(path, []byte(geometryYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	bf, err := LoadBindingFile(path)
	if err != nil {
		t.Fatalf("LoadBindingFile: %v", err)
	}
	if got, want := bf.LibraryPath(), filepath.Join(bf.Dir, "libgeom.so"); got != want {
		t.Errorf("LibraryPath = %q, want %q", got, want)
	}

	if _, err := LoadBindingFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}

func TestBindingFile_MarshalRoundTrip(t *testing.T) {
	bf, err := ParseBindingFile([]byte(geometryYAML), "geom.yaml")
	if err != nil {
		t.Fatal(err)
	}
	out, err := yaml.Marshal(bf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), "ret: int[4]") {
		t.Errorf("array descriptor not written in bracket notation:\n%s", out)
	}
	back, err := ParseBindingFile(out, "round.yaml")
	if err != nil {
		t.Fatalf("re-parse: %v\n%s", err, out)
	}
	a, _ := Fingerprint(bf.Declarations(), false)
	b, _ := Fingerprint(back.Declarations(), false)
	if a != b {
		t.Errorf("fingerprint changed after a round trip")
	}
}
