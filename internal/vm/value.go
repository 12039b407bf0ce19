// Package vm defines the runtime values exchanged with the VM executor. The
// executor itself lives outside this module; native bindings produce and
// consume these values.
package vm

import (
	"fmt"
	"math"

	"github.com/funvibe/loom/internal/typesystem"
)

// ValueType identifies the type of value stored in the Value struct
type ValueType uint8

const (
	ValNone ValueType = iota
	ValInt
	ValFloat
	ValBool
	ValObj // String, List, Map, Instance, Pointer, NativeFunction, TypeValue
)

func (t ValueType) String() string {
	switch t {
	case ValNone:
		return "none"
	case ValInt:
		return "int"
	case ValFloat:
		return "float"
	case ValBool:
		return "bool"
	case ValObj:
		return "object"
	}
	return fmt.Sprintf("value(%d)", uint8(t))
}

// Value is a stack-allocated tagged union. Integers are full 64-bit here;
// narrowing to the 48-bit boxed form happens only at the native boundary.
type Value struct {
	Type ValueType
	Data uint64 // int64 bits, float64 bits, or bool (0/1)
	Obj  Object
}

// Constructors

func NoneVal() Value {
	return Value{Type: ValNone}
}

func IntVal(v int64) Value {
	return Value{Type: ValInt, Data: uint64(v)}
}

func FloatVal(v float64) Value {
	return Value{Type: ValFloat, Data: math.Float64bits(v)}
}

func BoolVal(v bool) Value {
	var data uint64
	if v {
		data = 1
	}
	return Value{Type: ValBool, Data: data}
}

func ObjVal(o Object) Value {
	if o == nil {
		return NoneVal()
	}
	return Value{Type: ValObj, Obj: o}
}

func StringVal(s string) Value {
	return ObjVal(&String{Value: s})
}

// Accessors

func (v Value) AsInt() int64 {
	return int64(v.Data)
}

func (v Value) AsFloat() float64 {
	return math.Float64frombits(v.Data)
}

func (v Value) AsBool() bool {
	return v.Data == 1
}

// AsNumber returns ints and floats as float64.
func (v Value) AsNumber() (float64, bool) {
	switch v.Type {
	case ValInt:
		return float64(v.AsInt()), true
	case ValFloat:
		return v.AsFloat(), true
	}
	return 0, false
}

// Type checking helpers

func (v Value) IsInt() bool   { return v.Type == ValInt }
func (v Value) IsFloat() bool { return v.Type == ValFloat }
func (v Value) IsBool() bool  { return v.Type == ValBool }
func (v Value) IsNone() bool  { return v.Type == ValNone }
func (v Value) IsObj() bool   { return v.Type == ValObj }

// Equals compares values; ints and floats compare numerically.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		if v.Type == ValInt && other.Type == ValFloat {
			return float64(v.AsInt()) == other.AsFloat()
		}
		if v.Type == ValFloat && other.Type == ValInt {
			return v.AsFloat() == float64(other.AsInt())
		}
		return false
	}
	switch v.Type {
	case ValInt, ValBool:
		return v.Data == other.Data
	case ValFloat:
		return v.AsFloat() == other.AsFloat()
	case ValNone:
		return true
	case ValObj:
		return objectsEqual(v.Obj, other.Obj)
	}
	return false
}

// Inspect returns string representation
func (v Value) Inspect() string {
	switch v.Type {
	case ValInt:
		return fmt.Sprintf("%d", int64(v.Data))
	case ValFloat:
		return fmt.Sprintf("%g", math.Float64frombits(v.Data))
	case ValBool:
		return fmt.Sprintf("%t", v.Data == 1)
	case ValNone:
		return "none"
	case ValObj:
		if v.Obj != nil {
			return v.Obj.Inspect()
		}
		return "<nil obj>"
	}
	return "<?>"
}

func (v Value) String() string {
	return v.Inspect()
}

// RuntimeType returns the static type that describes v.
func (v Value) RuntimeType() typesystem.Type {
	switch v.Type {
	case ValInt:
		return typesystem.Int
	case ValFloat:
		return typesystem.Float
	case ValBool:
		return typesystem.Bool
	case ValNone:
		return typesystem.None
	case ValObj:
		if v.Obj != nil {
			return v.Obj.RuntimeType()
		}
	}
	return typesystem.Any
}
