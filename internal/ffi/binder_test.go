package ffi

import (
	"errors"
	"math"
	"runtime"
	"testing"
	"unsafe"

	"github.com/funvibe/loom/internal/config"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/token"
	"github.com/funvibe/loom/internal/typesystem"
	"github.com/funvibe/loom/internal/vm"
)

type point struct {
	X, Y float64
}

type countingCompiler struct {
	TableCompiler
	calls int
}

func (c *countingCompiler) Compile(req *CompileRequest) (Module, error) {
	c.calls++
	return c.TableCompiler.Compile(req)
}

func geometryLibrary() *GoLibrary {
	return NewGoLibrary("geom").
		MustRegister("distance", func(a, b point) float64 {
			return math.Hypot(a.X-b.X, a.Y-b.Y)
		}).
		MustRegister("midpoint", func(a, b point) point {
			return point{(a.X + b.X) / 2, (a.Y + b.Y) / 2}
		})
}

func bindMap(t *testing.T, b *Binder, lib Library, decls []Decl) (*Binding, *vm.Map) {
	t.Helper()
	binding, err := b.Bind(lib, decls)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	m, ok := binding.Value.Obj.(*vm.Map)
	if !ok {
		t.Fatalf("binding value is %s, want a map", binding.Value.Inspect())
	}
	return binding, m
}

func callable(t *testing.T, m *vm.Map, name string) *vm.NativeFunction {
	t.Helper()
	v, ok := m.Get(name)
	if !ok {
		t.Fatalf("binding has no %s (keys %v)", name, m.Keys())
	}
	fn, ok := v.Obj.(*vm.NativeFunction)
	if !ok {
		t.Fatalf("%s is %s, not a native function", name, v.Inspect())
	}
	return fn
}

// structType returns the checker type of a bound struct from its accessor.
func structType(t *testing.T, m *vm.Map, name string) *typesystem.TStruct {
	t.Helper()
	acc := callable(t, m, config.PtrToPrefix+name)
	st, ok := acc.Signature.Result.(*typesystem.TStruct)
	if !ok {
		t.Fatalf("accessor result is %s", acc.Signature.Result)
	}
	return st
}

func instance(st *typesystem.TStruct, fields ...vm.Value) vm.Value {
	return vm.ObjVal(&vm.Instance{Struct: st, Fields: fields})
}

func TestBindDistance(t *testing.T) {
	_, m := bindMap(t, NewBinder(Options{}), geometryLibrary(), []Decl{
		NewStruct("Point", F("x", Double), F("y", Double)),
		Func("distance", Double, Struct("Point"), Struct("Point")),
	})
	pt := structType(t, m, "Point")
	distance := callable(t, m, "distance")

	got, err := distance.Call(
		instance(pt, vm.FloatVal(0), vm.FloatVal(0)),
		instance(pt, vm.FloatVal(3), vm.FloatVal(4)),
	)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if !got.IsFloat() || got.AsFloat() != 5 {
		t.Errorf("distance = %s, want 5", got)
	}

	// Integer coordinates widen to double.
	got, err = distance.Call(
		instance(pt, vm.IntVal(1), vm.IntVal(1)),
		instance(pt, vm.FloatVal(4), vm.FloatVal(5)),
	)
	if err != nil || got.AsFloat() != 5 {
		t.Errorf("distance with ints = %s, %v", got, err)
	}
}

func TestBindRejectsOtherStructType(t *testing.T) {
	b := NewBinder(Options{})
	_, m := bindMap(t, b, geometryLibrary(), []Decl{
		NewStruct("Point", F("x", Double), F("y", Double)),
		NewStruct("Size", F("w", Double), F("h", Double)),
		Func("distance", Double, Struct("Point"), Struct("Point")),
	})
	size := structType(t, m, "Size")
	distance := callable(t, m, "distance")

	_, err := distance.Call(
		instance(size, vm.FloatVal(0), vm.FloatVal(0)),
		instance(size, vm.FloatVal(3), vm.FloatVal(4)),
	)
	var tm *typesystem.TypeMismatchError
	if !errors.As(err, &tm) {
		t.Fatalf("err = %v, want a type mismatch", err)
	}

	// Point declared by another library is a different type.
	other := NewGoLibrary("plot").MustRegister("distance", func(a, b point) float64 { return 0 })
	_, om := bindMap(t, b, other, []Decl{
		NewStruct("Point", F("x", Double), F("y", Double)),
		Func("distance", Double, Struct("Point"), Struct("Point")),
	})
	foreign := structType(t, om, "Point")
	if _, err := distance.Call(
		instance(foreign, vm.FloatVal(0), vm.FloatVal(0)),
		instance(foreign, vm.FloatVal(3), vm.FloatVal(4)),
	); !errors.As(err, &tm) {
		t.Errorf("err = %v, want a type mismatch for a foreign Point", err)
	}
}

func TestBindLeavesDeclsUntouched(t *testing.T) {
	lib := NewGoLibrary("misc").MustRegister("reset", func() {})
	reset := &FuncDecl{Sym: "reset"}
	_, m := bindMap(t, NewBinder(Options{}), lib, []Decl{reset})
	if reset.Ret != nil {
		t.Errorf("Bind filled in the caller's Ret: %v", reset.Ret)
	}
	got, err := callable(t, m, "reset").Call()
	if err != nil || !got.IsNone() {
		t.Errorf("reset = %s, %v", got, err)
	}
}

func TestBindStructResult(t *testing.T) {
	_, m := bindMap(t, NewBinder(Options{}), geometryLibrary(), []Decl{
		NewStruct("Point", F("x", Double), F("y", Double)),
		Func("midpoint", Struct("Point"), Struct("Point"), Struct("Point")),
	})
	pt := structType(t, m, "Point")
	got, err := callable(t, m, "midpoint").Call(
		instance(pt, vm.FloatVal(0), vm.FloatVal(2)),
		instance(pt, vm.FloatVal(4), vm.FloatVal(6)),
	)
	if err != nil {
		t.Fatalf("midpoint: %v", err)
	}
	inst, ok := got.Obj.(*vm.Instance)
	if !ok || inst.Struct != pt {
		t.Fatalf("midpoint = %s, want a Point", got.Inspect())
	}
	if x, _ := inst.Field("x"); x.AsFloat() != 2 {
		t.Errorf("x = %s", x)
	}
	if y, _ := inst.Field("y"); y.AsFloat() != 4 {
		t.Errorf("y = %s", y)
	}
}

func TestBindMissingSymbol(t *testing.T) {
	compiler := &countingCompiler{}
	b := NewBinder(Options{Compiler: compiler})
	decls := []Decl{
		Func("distance", Double, Double),
		Func("foo", Void),
	}
	lib := NewGoLibrary("geom").MustRegister("distance", func(float64) float64 { return 0 })

	binding, err := b.Bind(lib, decls)
	if binding != nil {
		t.Fatalf("got a binding for a library without foo")
	}
	if !errors.Is(err, ErrMissingSymbol) {
		t.Fatalf("err = %v, want missing symbol", err)
	}
	var missing *MissingSymbolError
	if !errors.As(err, &missing) || missing.Name != "foo" || missing.Library != "geom" {
		t.Errorf("err = %#v", err)
	}
	if compiler.calls != 0 {
		t.Errorf("compiler ran %d times", compiler.calls)
	}
	key, _ := Fingerprint(decls, false)
	if _, ok := b.Cache().Lookup(key); ok {
		t.Errorf("source was generated for a failed request")
	}

	diag := Diagnostic(err, token.Position{File: "main.loom", Line: 3, Column: 1})
	if diag.Code != diagnostics.ErrB001 {
		t.Errorf("diagnostic code = %s", diag.Code)
	}
}

func TestBindInvalidArgument(t *testing.T) {
	compiler := &countingCompiler{}
	_, err := NewBinder(Options{Compiler: compiler}).Bind(geometryLibrary(), []Decl{
		Func("distance", Double, Struct("Point"), Struct("Point")),
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
	if compiler.calls != 0 {
		t.Errorf("compiler ran for an invalid request")
	}
	if Diagnostic(err, token.Position{}).Code != diagnostics.ErrB002 {
		t.Errorf("undeclared struct must map to B002")
	}
}

func TestBindGoSignatureMismatch(t *testing.T) {
	lib := NewGoLibrary("bad").
		MustRegister("twice", func(x int64) int64 { return 2 * x })
	_, err := NewBinder(Options{}).Bind(lib, []Decl{Func("twice", Int, Int)})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}

func TestBindArrayReversedInPlace(t *testing.T) {
	lib := NewGoLibrary("arrays").
		MustRegister("reverse", func(a []int32) []int32 {
			for i, j := 0, len(a)-1; i < j; i, j = i+1, j-1 {
				a[i], a[j] = a[j], a[i]
			}
			return a
		}).
		MustRegister("reverse_ptr", func(a *[4]int32) *[4]int32 {
			a[0], a[1], a[2], a[3] = a[3], a[2], a[1], a[0]
			return a
		})
	_, m := bindMap(t, NewBinder(Options{}), lib, []Decl{
		Func("reverse", Array(Int, 4), Array(Int, 4)),
		Func("reverse_ptr", Array(Int, 4), Array(Int, 4)),
	})

	for _, name := range []string{"reverse", "reverse_ptr"} {
		t.Run(name, func(t *testing.T) {
			in := vm.NewList(vm.IntVal(1), vm.IntVal(2), vm.IntVal(3), vm.IntVal(4))
			got, err := callable(t, m, name).Call(vm.ObjVal(in))
			if err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			want := vm.ObjVal(vm.NewList(vm.IntVal(4), vm.IntVal(3), vm.IntVal(2), vm.IntVal(1)))
			if !got.Equals(want) {
				t.Errorf("%s = %s, want %s", name, got, want)
			}
			if in.Elems[0].AsInt() != 1 {
				t.Errorf("argument list was modified: %s", in.Inspect())
			}
		})
	}

	_, err := callable(t, m, "reverse").Call(vm.ObjVal(vm.NewList(vm.IntVal(1))))
	if err == nil {
		t.Errorf("a short list must be rejected")
	}
}

type allPrims struct {
	B   bool
	C   int8
	UC  uint8
	S   int16
	US  uint16
	I   int32
	U   uint32
	L   int64
	UL  uint64
	Z   uintptr
	F   float32
	D   float64
	Str string
	P   uintptr
}

func TestStructRoundTrip(t *testing.T) {
	lib := NewGoLibrary("echo").MustRegister("echo", func(v allPrims) allPrims { return v })
	fields := []FieldDecl{
		F("b", Bool), F("c", Char), F("uc", UChar), F("s", Short), F("us", UShort),
		F("i", Int), F("u", UInt), F("l", Long), F("ul", ULong), F("z", USize),
		F("f", Float), F("d", Double), F("str", CharPtr), F("p", VoidPtr),
	}
	_, m := bindMap(t, NewBinder(Options{}), lib, []Decl{
		NewStruct("All", fields...),
		Func("echo", Struct("All"), Struct("All")),
	})
	st := structType(t, m, "All")
	in := instance(st,
		vm.BoolVal(true), vm.IntVal(-7), vm.IntVal(200), vm.IntVal(-300), vm.IntVal(60000),
		vm.IntVal(-70000), vm.IntVal(4000000000), vm.IntVal(-1<<40), vm.IntVal(1<<40), vm.IntVal(4096),
		vm.FloatVal(1.5), vm.FloatVal(-2.75), vm.StringVal("hello"), vm.ObjVal(&vm.Pointer{Addr: 0xdead0}),
	)
	got, err := callable(t, m, "echo").Call(in)
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	want := in.Obj.(*vm.Instance)
	inst := got.Obj.(*vm.Instance)
	for i, f := range want.Fields {
		if !inst.Fields[i].Equals(f) {
			t.Errorf("field %s = %s, want %s", st.Fields[i].Name, inst.Fields[i], f)
		}
	}
}

func TestHandleReleasedWithLastCallable(t *testing.T) {
	lib := geometryLibrary()
	binding, m := bindMap(t, NewBinder(Options{}), lib, []Decl{
		NewStruct("Point", F("x", Double), F("y", Double)),
		Func("distance", Double, Struct("Point"), Struct("Point")),
		Func("midpoint", Struct("Point"), Struct("Point"), Struct("Point")),
	})
	h := binding.Handle
	if h.Refs() != 3 {
		t.Fatalf("refs = %d, want 3 (two functions and one accessor)", h.Refs())
	}

	distance := callable(t, m, "distance")
	if err := distance.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := distance.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if h.Refs() != 2 || h.Released() || lib.Closed() {
		t.Fatalf("handle released too early: refs=%d", h.Refs())
	}
	if _, err := distance.Call(vm.NoneVal(), vm.NoneVal()); err == nil {
		t.Errorf("a released function must not be callable")
	}

	if err := vm.Release(binding.Value); err != nil {
		t.Fatalf("vm.Release: %v", err)
	}
	if !h.Released() || !lib.Closed() {
		t.Errorf("handle not released after the last callable")
	}
}

func TestBindTypeMode(t *testing.T) {
	b := NewBinder(Options{Mode: config.BindModeType})
	binding, err := b.Bind(geometryLibrary(), []Decl{
		NewStruct("Point", F("x", Double), F("y", Double)),
		Func("distance", Double, Struct("Point"), Struct("Point")),
	})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	tv, ok := binding.Value.Obj.(*vm.TypeValue)
	if !ok {
		t.Fatalf("binding value is %s, want a type", binding.Value.Inspect())
	}
	var names []string
	for _, m := range tv.Methods() {
		names = append(names, m.Name)
	}
	if len(names) != 2 || names[0] != "distance" || names[1] != "ptrToPoint" {
		t.Fatalf("methods = %v", names)
	}
	dist, _ := tv.Method("distance")
	if len(dist.Signature.Params) != 3 || dist.Signature.Params[0] != typesystem.Any {
		t.Errorf("method signature = %s, want a receiver slot", dist.Signature)
	}
	pt := dist.Signature.Params[1].(*typesystem.TStruct)

	got, err := tv.Invoke("distance", binding.Value,
		instance(pt, vm.FloatVal(1), vm.FloatVal(1)),
		instance(pt, vm.FloatVal(1), vm.FloatVal(3)))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got.AsFloat() != 2 {
		t.Errorf("distance = %s", got)
	}
	if binding.Handle.Refs() != 2 {
		t.Errorf("refs = %d", binding.Handle.Refs())
	}
}

type mixed struct {
	C int8
	D float64
	I int32
	S int16
}

func TestPtrToAccessorReadsNativeMemory(t *testing.T) {
	lib := NewGoLibrary("mem")
	_, m := bindMap(t, NewBinder(Options{}), lib, []Decl{
		NewStruct("Mixed", F("c", Char), F("d", Double), F("i", Int), F("s", Short)),
	})
	value := &mixed{C: -3, D: 2.5, I: 1 << 20, S: -12}
	ptr := vm.ObjVal(&vm.Pointer{Addr: uintptr(unsafe.Pointer(value))})
	got, err := callable(t, m, "ptrToMixed").Call(ptr)
	runtime.KeepAlive(value)
	if err != nil {
		t.Fatalf("ptrToMixed: %v", err)
	}
	inst := got.Obj.(*vm.Instance)
	want := []vm.Value{vm.IntVal(-3), vm.FloatVal(2.5), vm.IntVal(1 << 20), vm.IntVal(-12)}
	for i, w := range want {
		if !inst.Fields[i].Equals(w) {
			t.Errorf("field %d = %s, want %s", i, inst.Fields[i], w)
		}
	}

	if _, err := callable(t, m, "ptrToMixed").Call(vm.ObjVal(&vm.Pointer{})); err == nil {
		t.Errorf("a nil pointer must be rejected")
	}
}

func TestIdenticalSignaturesShareRecords(t *testing.T) {
	lib := NewGoLibrary("math").
		MustRegister("add", func(a, b float64) float64 { return a + b }).
		MustRegister("sub", func(a, b float64) float64 { return a - b }).
		MustRegister("neg", func(a float64) float64 { return -a })
	b := NewBinder(Options{})
	binding, m := bindMap(t, b, lib, []Decl{
		Func("add", Double, Double, Double),
		Func("sub", Double, Double, Double),
		Func("neg", Double, Double),
	})
	if b.Signatures().Len() != 2 {
		t.Errorf("interned %d signatures, want 2", b.Signatures().Len())
	}
	if mod := binding.Handle.module.(*tableModule); mod.frames != 2 {
		t.Errorf("built %d frames, want 2", mod.frames)
	}
	got, err := callable(t, m, "sub").Call(vm.FloatVal(5), vm.FloatVal(3))
	if err != nil || got.AsFloat() != 2 {
		t.Errorf("sub = %s, %v", got, err)
	}
}

func TestBindReusesCachedSource(t *testing.T) {
	b := NewBinder(Options{})
	decls := []Decl{
		NewStruct("Point", F("x", Double), F("y", Double)),
		Func("distance", Double, Struct("Point"), Struct("Point")),
	}
	first, err := b.Bind(geometryLibrary(), decls)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	second, err := b.Bind(geometryLibrary(), decls)
	if err != nil {
		t.Fatalf("second Bind: %v", err)
	}
	if first.Source != second.Source || b.Cache().Hits() != 1 {
		t.Errorf("source was regenerated (hits %d)", b.Cache().Hits())
	}
	if first.Handle == second.Handle || first.Handle.ID == second.Handle.ID {
		t.Errorf("bindings share a handle")
	}

	typed := NewBinder(Options{Mode: config.BindModeType, Cache: b.Cache()})
	third, err := typed.Bind(geometryLibrary(), decls)
	if err != nil {
		t.Fatalf("typed Bind: %v", err)
	}
	if third.Source.Fingerprint == first.Source.Fingerprint {
		t.Errorf("map and type mode share a fingerprint")
	}
}

func TestCallChecksArguments(t *testing.T) {
	_, m := bindMap(t, NewBinder(Options{}), geometryLibrary(), []Decl{
		NewStruct("Point", F("x", Double), F("y", Double)),
		Func("distance", Double, Struct("Point"), Struct("Point")),
	})
	distance := callable(t, m, "distance")

	_, err := distance.Call(vm.NoneVal())
	var arity *typesystem.ArityMismatchError
	if !errors.As(err, &arity) {
		t.Errorf("err = %v, want arity mismatch", err)
	}

	_, err = distance.Call(vm.IntVal(1), vm.IntVal(2))
	var mismatch *typesystem.TypeMismatchError
	if !errors.As(err, &mismatch) {
		t.Errorf("err = %v, want type mismatch", err)
	}
}

func TestHeapIsReleasedAfterEachCall(t *testing.T) {
	b := NewBinder(Options{})
	_, m := bindMap(t, b, geometryLibrary(), []Decl{
		NewStruct("Point", F("x", Double), F("y", Double)),
		Func("midpoint", Struct("Point"), Struct("Point"), Struct("Point")),
	})
	pt := structType(t, m, "Point")
	for i := 0; i < 3; i++ {
		if _, err := callable(t, m, "midpoint").Call(
			instance(pt, vm.FloatVal(0), vm.FloatVal(0)),
			instance(pt, vm.FloatVal(2), vm.FloatVal(2)),
		); err != nil {
			t.Fatalf("midpoint: %v", err)
		}
	}
	if b.Heap().Len() != 0 {
		t.Errorf("%d heap handles leaked", b.Heap().Len())
	}
}
