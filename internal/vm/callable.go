package vm

import (
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/funvibe/loom/internal/typesystem"
)

// Releaser is a reference-counted resource shared by several values, such as
// a compiled native module. Retain and Release run on the VM thread only.
type Releaser interface {
	Retain()
	Release() error
}

// NativeFunc is the Go signature of a callable implemented outside the VM.
type NativeFunc func(args []Value) (Value, error)

// NativeFunction is a VM-callable value backed by native code. Each exposed
// function holds one reference on Owner; releasing the function drops it.
type NativeFunction struct {
	Name      string
	Signature typesystem.TFunc
	Fn        NativeFunc
	Owner     Releaser

	released bool
}

func (f *NativeFunction) Type() ObjectType             { return NativeObj }
func (f *NativeFunction) Inspect() string              { return "<native " + f.Name + ">" }
func (f *NativeFunction) RuntimeType() typesystem.Type { return f.Signature }
func (f *NativeFunction) object()                      {}

// Call checks the argument count and invokes the function.
func (f *NativeFunction) Call(args ...Value) (Value, error) {
	if f.released {
		return NoneVal(), fmt.Errorf("%s: called after release", f.Name)
	}
	if want := len(f.Signature.Params); !f.Signature.Variadic && len(args) != want {
		return NoneVal(), &typesystem.ArityMismatchError{Want: want, Got: len(args)}
	}
	return f.Fn(args)
}

// Release drops this function's reference on its owner. Releasing twice is
// a no-op.
func (f *NativeFunction) Release() error {
	if f.released {
		return nil
	}
	f.released = true
	if f.Owner == nil {
		return nil
	}
	return f.Owner.Release()
}

// TypeValue is a synthesized type whose methods take the receiver as their
// first argument.
type TypeValue struct {
	Name    string
	methods *linkedhashmap.Map
}

func NewTypeValue(name string) *TypeValue {
	return &TypeValue{Name: name, methods: linkedhashmap.New()}
}

func (t *TypeValue) Type() ObjectType             { return TypeObj }
func (t *TypeValue) Inspect() string              { return "<type " + t.Name + ">" }
func (t *TypeValue) RuntimeType() typesystem.Type { return typesystem.TTypeRef{Of: typesystem.Any} }
func (t *TypeValue) object()                      {}

func (t *TypeValue) AddMethod(fn *NativeFunction) {
	t.methods.Put(fn.Name, fn)
}

func (t *TypeValue) Method(name string) (*NativeFunction, bool) {
	v, ok := t.methods.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*NativeFunction), true
}

// Methods returns methods in declaration order.
func (t *TypeValue) Methods() []*NativeFunction {
	vals := t.methods.Values()
	out := make([]*NativeFunction, len(vals))
	for i, v := range vals {
		out[i] = v.(*NativeFunction)
	}
	return out
}

// Invoke calls method name with receiver prepended to args.
func (t *TypeValue) Invoke(name string, receiver Value, args ...Value) (Value, error) {
	fn, ok := t.Method(name)
	if !ok {
		return NoneVal(), fmt.Errorf("type %s has no method %s", t.Name, name)
	}
	return fn.Call(append([]Value{receiver}, args...)...)
}

// Release drops the references held by v: a native function's own reference,
// or those of every function in a map, list or type value.
func Release(v Value) error {
	if v.Type != ValObj {
		return nil
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	switch o := v.Obj.(type) {
	case *NativeFunction:
		keep(o.Release())
	case *Map:
		for _, e := range o.Values() {
			keep(Release(e))
		}
	case *List:
		for _, e := range o.Elems {
			keep(Release(e))
		}
	case *TypeValue:
		for _, m := range o.Methods() {
			keep(m.Release())
		}
	}
	return firstErr
}
