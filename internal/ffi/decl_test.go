package ffi

import (
	"errors"
	"strings"
	"testing"

	"github.com/funvibe/loom/internal/vm"
)

func mapOf(kv ...interface{}) vm.Value {
	m := vm.NewMap()
	for i := 0; i < len(kv); i += 2 {
		var v vm.Value
		switch x := kv[i+1].(type) {
		case string:
			v = vm.StringVal(x)
		case int:
			v = vm.IntVal(int64(x))
		case vm.Value:
			v = x
		}
		m.Set(kv[i].(string), v)
	}
	return vm.ObjVal(m)
}

func listOf(vals ...vm.Value) vm.Value {
	return vm.ObjVal(vm.NewList(vals...))
}

func strs(ss ...string) vm.Value {
	vals := make([]vm.Value, len(ss))
	for i, s := range ss {
		vals[i] = vm.StringVal(s)
	}
	return listOf(vals...)
}

func TestDeclsFromValue(t *testing.T) {
	pointType := vm.ObjVal(vm.NewTypeValue("Point"))
	v := listOf(
		mapOf("type", "Point", "fields", mapOf("x", "double", "y", "double")),
		mapOf("type", "Pair", "fields", strs("int", "long")),
		mapOf("sym", "distance", "args", listOf(pointType, vm.StringVal("Point")), "ret", "double"),
		mapOf("sym", "fill", "args", listOf(mapOf("elem", "int", "n", 4)), "ret", "int[4]"),
		mapOf("sym", "reset"),
	)
	decls, err := DeclsFromValue(v)
	if err != nil {
		t.Fatalf("DeclsFromValue: %v", err)
	}
	if len(decls) != 5 {
		t.Fatalf("got %d decls", len(decls))
	}

	point := decls[0].(*StructDecl)
	if point.Fields[0].Name != "x" || point.Fields[1].Name != "y" || point.Fields[1].Type != Double {
		t.Errorf("Point = %#v", point)
	}
	pair := decls[1].(*StructDecl)
	if pair.Fields[0].Name != "" || pair.Fields[1].Type != Long {
		t.Errorf("Pair = %#v", pair)
	}
	distance := decls[2].(*FuncDecl)
	if distance.Args[0] != Struct("Point") || distance.Args[1] != Struct("Point") || distance.Ret != Double {
		t.Errorf("distance = %#v", distance)
	}
	if fill := decls[3].(*FuncDecl); fill.Args[0] != Array(Int, 4) || fill.Ret != Array(Int, 4) {
		t.Errorf("fill = %#v", fill)
	}
	if reset := decls[4].(*FuncDecl); reset.Ret != Void {
		t.Errorf("reset returns %s, want void", reset.Ret)
	}

	// Unnamed fields get positional names in the generated struct.
	src, err := GenerateSource(decls, false)
	if err != nil {
		t.Fatalf("GenerateSource: %v", err)
	}
	if !strings.Contains(src.Text, "struct Pair {\n\tint f0;\n\tlong long f1;\n};") {
		t.Errorf("positional field names missing:\n%s", src.Text)
	}
}

func TestDeclsFromValueErrors(t *testing.T) {
	tests := []struct {
		name string
		in   vm.Value
		want string
	}{
		{"not a list", vm.IntVal(3), "must be a list"},
		{"not a map", listOf(vm.StringVal("f")), "expected a map"},
		{"both keys", listOf(mapOf("sym", "f", "type", "T")), "mutually exclusive"},
		{"neither key", listOf(mapOf("ret", "int")), "expected sym or type"},
		{"empty sym", listOf(mapOf("sym", "")), "non-empty string"},
		{"args not a list", listOf(mapOf("sym", "f", "args", "int")), "args must be a list"},
		{"bad arg", listOf(mapOf("sym", "f", "args", strs("int[x]"))), "args[0]"},
		{"bad ret", listOf(mapOf("sym", "f", "ret", 3)), "unsupported descriptor"},
		{"missing fields", listOf(mapOf("type", "T")), "fields are required"},
		{"fields not a collection", listOf(mapOf("type", "T", "fields", "int")), "list or a map"},
		{"array without n", listOf(mapOf("sym", "f", "ret", mapOf("elem", "int"))), "integer n"},
		{"array with zero n", listOf(mapOf("sym", "f", "ret", mapOf("elem", "int", "n", 0))), "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeclsFromValue(tt.in)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("err = %v, want invalid argument", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestDeclBuilders(t *testing.T) {
	fd := Func("scale", Double, Double, Int)
	if fd.DeclName() != "scale" || len(fd.Args) != 2 || fd.Args[1] != Int {
		t.Errorf("Func = %#v", fd)
	}
	sd := NewStruct("V", F("a", Int), F("", Int))
	if sd.DeclName() != "V" || fieldName(sd.Fields[1], 1) != "f1" || fieldName(sd.Fields[0], 0) != "a" {
		t.Errorf("NewStruct = %#v", sd)
	}
}
