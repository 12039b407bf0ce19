package vm

import (
	"testing"

	"github.com/funvibe/loom/internal/typesystem"
)

type countingOwner struct {
	refs     int
	released bool
}

func (c *countingOwner) Retain() { c.refs++ }
func (c *countingOwner) Release() error {
	c.refs--
	if c.refs == 0 {
		c.released = true
	}
	return nil
}

func TestValueEquality(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"ints", IntVal(3), IntVal(3), true},
		{"int float", IntVal(3), FloatVal(3), true},
		{"float int", FloatVal(2.5), IntVal(2), false},
		{"bools", BoolVal(true), BoolVal(false), false},
		{"none", NoneVal(), NoneVal(), true},
		{"strings", StringVal("a"), StringVal("a"), true},
		{"lists", ObjVal(NewList(IntVal(1), IntVal(2))), ObjVal(NewList(IntVal(1), IntVal(2))), true},
		{"list lengths", ObjVal(NewList(IntVal(1))), ObjVal(NewList(IntVal(1), IntVal(2))), false},
		{"none vs int", NoneVal(), IntVal(0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equals(tt.b); got != tt.want {
				t.Errorf("%s == %s: got %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMapKeepsInsertionOrder(t *testing.T) {
	m := NewMap()
	m.Set("zeta", IntVal(1))
	m.Set("alpha", IntVal(2))
	m.Set("mid", IntVal(3))
	m.Set("zeta", IntVal(4))

	keys := m.Keys()
	if len(keys) != 3 || keys[0] != "zeta" || keys[1] != "alpha" || keys[2] != "mid" {
		t.Fatalf("keys = %v", keys)
	}
	if v, _ := m.Get("zeta"); v.AsInt() != 4 {
		t.Errorf("zeta = %s", v)
	}
	if m.Inspect() != "{zeta: 4, alpha: 2, mid: 3}" {
		t.Errorf("Inspect = %s", m.Inspect())
	}
}

func TestInstanceFields(t *testing.T) {
	point := &typesystem.TStruct{Name: "Point", Native: true, Fields: []typesystem.Field{
		{Name: "x", Type: typesystem.Float},
		{Name: "y", Type: typesystem.Float},
	}}
	p := &Instance{Struct: point, Fields: []Value{FloatVal(1), FloatVal(2)}}
	if y, ok := p.Field("y"); !ok || y.AsFloat() != 2 {
		t.Errorf("y = %s, %v", y, ok)
	}
	if _, ok := p.Field("z"); ok {
		t.Errorf("unexpected field z")
	}
	if p.Inspect() != "Point{x: 1, y: 2}" {
		t.Errorf("Inspect = %s", p.Inspect())
	}
}

func TestReleaseDropsEveryReference(t *testing.T) {
	owner := &countingOwner{}
	sig := typesystem.TFunc{Params: []typesystem.Type{typesystem.Int}, Result: typesystem.Int}
	newFn := func(name string) *NativeFunction {
		owner.Retain()
		return &NativeFunction{Name: name, Signature: sig, Owner: owner, Fn: func(args []Value) (Value, error) {
			return IntVal(args[0].AsInt() * 2), nil
		}}
	}

	m := NewMap()
	m.Set("double", ObjVal(newFn("double")))
	m.Set("twice", ObjVal(newFn("twice")))
	kept := newFn("kept")

	if err := Release(ObjVal(m)); err != nil {
		t.Fatal(err)
	}
	if owner.released || owner.refs != 1 {
		t.Fatalf("owner released early: refs=%d", owner.refs)
	}
	if v, err := kept.Call(IntVal(21)); err != nil || v.AsInt() != 42 {
		t.Fatalf("kept(21) = %s, %v", v, err)
	}
	kept.Release()
	kept.Release()
	if !owner.released || owner.refs != 0 {
		t.Fatalf("owner not released: refs=%d", owner.refs)
	}
	if _, err := kept.Call(IntVal(1)); err == nil {
		t.Errorf("expected an error calling a released function")
	}
}

func TestNativeFunctionArity(t *testing.T) {
	fn := &NativeFunction{
		Name:      "f",
		Signature: typesystem.TFunc{Params: []typesystem.Type{typesystem.Int}},
		Fn:        func(args []Value) (Value, error) { return NoneVal(), nil },
	}
	if _, err := fn.Call(); err == nil {
		t.Errorf("expected arity error")
	}
}

func TestTypeValueInvokePassesReceiver(t *testing.T) {
	tv := NewTypeValue("lib")
	tv.AddMethod(&NativeFunction{
		Name:      "first",
		Signature: typesystem.TFunc{Params: []typesystem.Type{typesystem.Any, typesystem.Int}, Result: typesystem.Int},
		Fn: func(args []Value) (Value, error) {
			if !args[0].IsObj() {
				t.Errorf("receiver missing: %v", args)
			}
			return args[1], nil
		},
	})
	v, err := tv.Invoke("first", ObjVal(tv), IntVal(7))
	if err != nil || v.AsInt() != 7 {
		t.Fatalf("Invoke = %s, %v", v, err)
	}
	if _, err := tv.Invoke("missing", ObjVal(tv)); err == nil {
		t.Errorf("expected an error for an unknown method")
	}
}
