package ffi

import (
	"fmt"
	"reflect"
	"sort"
)

// Symbol is an exported function found in a Library. Native libraries set
// Addr; Go libraries set Func.
type Symbol struct {
	Name string
	Addr uintptr
	Func reflect.Value
}

// Library is a set of exported functions bindings are generated against.
type Library interface {
	Name() string
	Lookup(name string) (Symbol, bool)
	Close() error
}

// GoLibrary is a library whose symbols are Go functions. Parameters and
// results use the Go type matching each descriptor:
//
//	bool bool, char int8, uchar uint8, short int16, ushort uint16,
//	int int32, uint uint32, long int64, ulong uint64, usize uintptr,
//	float float32, double float64, charPtr string, voidPtr uintptr,
//	struct a Go struct with matching fields, T[n] a [n]T array (or a
//	[]T slice / *[n]T pointer in parameters and results, where arrays
//	decay to pointers).
type GoLibrary struct {
	name   string
	funcs  map[string]reflect.Value
	closed bool
}

func NewGoLibrary(name string) *GoLibrary {
	return &GoLibrary{name: name, funcs: make(map[string]reflect.Value)}
}

// Register exports fn under name.
func (l *GoLibrary) Register(name string, fn interface{}) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("%s: %s is a %T, not a function", l.name, name, fn)
	}
	if v.Type().NumOut() > 1 {
		return fmt.Errorf("%s: %s returns %d values", l.name, name, v.Type().NumOut())
	}
	if v.Type().IsVariadic() {
		return fmt.Errorf("%s: %s is variadic", l.name, name)
	}
	l.funcs[name] = v
	return nil
}

// MustRegister is Register for use in initialization code.
func (l *GoLibrary) MustRegister(name string, fn interface{}) *GoLibrary {
	if err := l.Register(name, fn); err != nil {
		panic(err)
	}
	return l
}

func (l *GoLibrary) Name() string { return l.name }

func (l *GoLibrary) Lookup(name string) (Symbol, bool) {
	fn, ok := l.funcs[name]
	if !ok || l.closed {
		return Symbol{}, false
	}
	return Symbol{Name: name, Func: fn}, true
}

// Symbols lists exported names, sorted.
func (l *GoLibrary) Symbols() []string {
	out := make([]string, 0, len(l.funcs))
	for name := range l.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (l *GoLibrary) Close() error {
	l.closed = true
	return nil
}

// Closed reports whether Close was called.
func (l *GoLibrary) Closed() bool { return l.closed }
