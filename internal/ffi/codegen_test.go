package ffi

import (
	"errors"
	"strings"
	"testing"
)

func geometryDecls() []Decl {
	return []Decl{
		NewStruct("Point", F("x", Double), F("y", Double)),
		Func("distance", Double, Struct("Point"), Struct("Point")),
	}
}

func TestGenerateSourceOrder(t *testing.T) {
	decls := []Decl{
		NewStruct("Point", F("x", Double), F("y", Double)),
		NewStruct("Path", F("pts", Array(Struct("Point"), 3)), F("closed", Bool)),
		Func("distance", Double, Struct("Point"), Struct("Point")),
		Func("reverse", Array(Int, 4), Array(Int, 4)),
		Func("reset", Void),
	}
	src, err := GenerateSource(decls, false)
	if err != nil {
		t.Fatalf("GenerateSource: %v", err)
	}
	text := src.Text

	// Each marker must appear after the previous one.
	order := []string{
		"extern lm_value lm_alloc_object(int n);",
		"struct Point {\n\tdouble x;\n\tdouble y;\n};",
		"struct Path {\n\tstruct Point pts[3];\n\t_Bool closed;\n};",
		"static void lm_to_arr_Point_3(lm_value v, struct Point* out);",
		"static struct Point lm_to_Point(lm_value v) {",
		"static lm_value lm_deref_Point(lm_value p) {",
		"static struct Path lm_to_Path(lm_value v) {",
		"static void lm_to_arr_Point_3(lm_value v, struct Point* out) {",
		"static lm_value lm_from_arr_int_4(int* in) {",
		"extern double distance(struct Point, struct Point);",
		"lm_value lm_tramp_distance(lm_value* args) {",
		"extern int* reverse(int*);",
		"extern void reset(void);",
		"lm_value lm_tramp_ptrToPoint(lm_value* args) {",
	}
	pos := 0
	for _, marker := range order {
		i := strings.Index(text[pos:], marker)
		if i < 0 {
			t.Fatalf("missing or out of order: %q\n%s", marker, text)
		}
		pos += i + len(marker)
	}

	for _, want := range []string{
		"\tstruct Point a0 = lm_to_Point(args[0]);\n",
		"\tint a0[4];\n\tlm_to_arr_int_4(args[0], a0);\n",
		"\tint* r = reverse(a0);\n\treturn lm_from_arr_int_4(r);\n",
		"\treset();\n\treturn LM_NONE;\n",
		"\tlm_to_arr_Point_3(slots[0], (struct Point*)s.pts);\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("source does not contain %q", want)
		}
	}

	var names []string
	for _, tr := range src.Trampolines {
		names = append(names, tr.Name)
	}
	if got := strings.Join(names, ","); got != "distance,reverse,reset,ptrToPoint,ptrToPath" {
		t.Errorf("trampolines = %s", got)
	}
}

func TestGenerateSourceReceiverSlot(t *testing.T) {
	src, err := GenerateSource(geometryDecls(), true)
	if err != nil {
		t.Fatalf("GenerateSource: %v", err)
	}
	for _, want := range []string{
		"struct Point a0 = lm_to_Point(args[1]);",
		"struct Point a1 = lm_to_Point(args[2]);",
		"return lm_deref_Point(args[1]);",
	} {
		if !strings.Contains(src.Text, want) {
			t.Errorf("receiver source does not contain %q", want)
		}
	}
}

func TestArrayRoutinesAreDeduplicated(t *testing.T) {
	decls := []Decl{
		NewStruct("Buf", F("a", Array(Int, 4)), F("b", Array(Int, 4)), F("grid", Array(Array(Int, 4), 2))),
		Func("sum", Int, Array(Int, 4)),
		Func("fill", Array(Int, 4), Int),
		Func("grid", Array(Array(Int, 4), 2), Array(Array(Int, 4), 2)),
		Func("small", Int, Array(Int, 2)),
	}
	p, err := validate(decls, nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	arrays := collectArrays(p)
	var keys []string
	for _, a := range arrays {
		keys = append(keys, a.Ident)
	}
	if got := strings.Join(keys, ","); got != "int_4,int_4_2,int_2" {
		t.Fatalf("array routines = %s", got)
	}

	// Collecting twice yields the same set.
	if again := collectArrays(p); len(again) != len(arrays) {
		t.Errorf("second collection found %d routines", len(again))
	}

	src, err := generate(p, arrays, false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if n := strings.Count(src.Text, "static void lm_to_arr_int_4(lm_value v, int* out) {"); n != 1 {
		t.Errorf("int[4] routine defined %d times", n)
	}
	if n := strings.Count(src.Text, "static lm_value lm_from_arr_int_4(int* in) {"); n != 1 {
		t.Errorf("int[4] boxing routine defined %d times", n)
	}
	if !strings.Contains(src.Text, "lm_to_arr_int_4(slots[i], out + i * 4);") {
		t.Errorf("nested array does not recurse into the element routine")
	}
	if src.Arrays != 3 {
		t.Errorf("Arrays = %d", src.Arrays)
	}
}

func TestValidateRejectsBeforeEmission(t *testing.T) {
	tests := []struct {
		name  string
		decls []Decl
		want  string
	}{
		{"undeclared struct argument", []Decl{Func("f", Void, Struct("Missing"))}, "undeclared struct Missing"},
		{"undeclared struct return", []Decl{Func("f", Struct("Missing"))}, "undeclared struct Missing"},
		{"undeclared array element", []Decl{Func("f", Void, Array(Struct("Missing"), 2))}, "undeclared struct Missing"},
		{"struct used before declaration", []Decl{
			NewStruct("Line", F("a", Struct("Point"))),
			NewStruct("Point", F("x", Double)),
		}, "undeclared struct Point"},
		{"void field", []Decl{NewStruct("S", F("v", Void))}, "void is only valid as a return type"},
		{"void argument", []Decl{Func("f", Int, Void)}, "void is only valid as a return type"},
		{"zero length array", []Decl{Func("f", Void, ArrayDesc{Elem: Int, Len: 0})}, "length must be positive"},
		{"bad primitive", []Decl{Func("f", PrimDesc{Prim: Prim(99)})}, "unsupported primitive tag"},
		{"duplicate struct", []Decl{NewStruct("S", F("a", Int)), NewStruct("S", F("a", Int))}, "struct declared twice"},
		{"duplicate function", []Decl{Func("f", Void), Func("f", Void)}, "function declared twice"},
		{"empty struct", []Decl{NewStruct("S")}, "struct has no fields"},
		{"duplicate field", []Decl{NewStruct("S", F("a", Int), F("a", Int))}, "duplicate field a"},
		{"primitive struct name", []Decl{NewStruct("int", F("a", Int))}, "shadows a primitive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := GenerateSource(tt.decls, false)
			if src != nil {
				t.Errorf("source emitted for an invalid request")
			}
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("err = %v, want invalid argument", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestStructLayout(t *testing.T) {
	decls := []Decl{
		NewStruct("Mixed", F("c", Char), F("d", Double), F("i", Int), F("s", Short)),
		NewStruct("Outer", F("tag", UChar), F("m", Struct("Mixed")), F("xs", Array(Short, 3))),
	}
	p, err := validate(decls, nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	mixed, _ := p.layout("Mixed")
	if got := mixed.Offsets; got[0] != 0 || got[1] != 8 || got[2] != 16 || got[3] != 20 {
		t.Errorf("Mixed offsets = %v", got)
	}
	if mixed.Size != 24 || mixed.Align != 8 {
		t.Errorf("Mixed size/align = %d/%d", mixed.Size, mixed.Align)
	}
	outer, _ := p.layout("Outer")
	if got := outer.Offsets; got[0] != 0 || got[1] != 8 || got[2] != 32 {
		t.Errorf("Outer offsets = %v", got)
	}
	if outer.Size != 40 {
		t.Errorf("Outer size = %d", outer.Size)
	}
	if !outer.Type.Native || outer.Type.Fields[1].Type != mixed.Type {
		t.Errorf("Outer checker type = %s", outer.Type)
	}
}
