package loom

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/funvibe/loom/internal/typesystem"
	"github.com/funvibe/loom/internal/vm"
)

// Marshaller handles conversion between Go and runtime values.
type Marshaller struct{}

func NewMarshaller() *Marshaller {
	return &Marshaller{}
}

var (
	valueType     = reflect.TypeOf(vm.Value{})
	interfaceType = reflect.TypeOf((*interface{})(nil)).Elem()
)

// ToValue converts a Go value to a runtime value. Structs become maps of
// their exported fields; use ToTyped when the expected type is known.
func (m *Marshaller) ToValue(val interface{}) (vm.Value, error) {
	if val == nil {
		return vm.NoneVal(), nil
	}
	if v, ok := val.(vm.Value); ok {
		return v, nil
	}
	if o, ok := val.(vm.Object); ok {
		return vm.ObjVal(o), nil
	}

	v := reflect.ValueOf(val)
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return vm.NoneVal(), nil
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return vm.IntVal(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return vm.IntVal(int64(v.Uint())), nil
	case reflect.Uintptr:
		return vm.ObjVal(&vm.Pointer{Addr: uintptr(v.Uint())}), nil
	case reflect.UnsafePointer:
		return vm.ObjVal(&vm.Pointer{Addr: uintptr(v.UnsafePointer())}), nil
	case reflect.Float32, reflect.Float64:
		return vm.FloatVal(v.Float()), nil
	case reflect.Bool:
		return vm.BoolVal(v.Bool()), nil
	case reflect.String:
		return vm.StringVal(v.String()), nil
	case reflect.Slice, reflect.Array:
		return m.sliceToList(v)
	case reflect.Map:
		return m.goMapToMap(v)
	case reflect.Struct:
		return m.structToMap(v)
	case reflect.Ptr:
		if v.IsNil() {
			return vm.NoneVal(), nil
		}
		return m.ToValue(v.Elem().Interface())
	}
	return vm.NoneVal(), fmt.Errorf("unsupported Go type %s", v.Type())
}

// ToTyped converts val to a value of type t. Go structs and string-keyed
// maps become instances of a struct type, matching fields by name without
// regard to case.
func (m *Marshaller) ToTyped(val interface{}, t typesystem.Type) (vm.Value, error) {
	switch t := t.(type) {
	case *typesystem.TStruct:
		return m.toInstance(val, t)
	case typesystem.TArray:
		v := reflect.ValueOf(val)
		if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			break
		}
		elems := make([]vm.Value, v.Len())
		for i := range elems {
			e, err := m.ToTyped(v.Index(i).Interface(), t.Elem)
			if err != nil {
				return vm.NoneVal(), fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = e
		}
		return vm.ObjVal(vm.NewList(elems...)), nil
	}
	return m.ToValue(val)
}

func (m *Marshaller) toInstance(val interface{}, st *typesystem.TStruct) (vm.Value, error) {
	if v, ok := val.(vm.Value); ok {
		return v, nil
	}
	fields := make([]vm.Value, len(st.Fields))
	v := reflect.Indirect(reflect.ValueOf(val))
	switch v.Kind() {
	case reflect.Struct:
		for i, f := range st.Fields {
			fv := v.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, f.Name) })
			if !fv.IsValid() {
				return vm.NoneVal(), fmt.Errorf("%s: Go type %s has no field %s", st, v.Type(), f.Name)
			}
			if err := m.setField(fields, i, fv, f); err != nil {
				return vm.NoneVal(), fmt.Errorf("%s: %w", st, err)
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return vm.NoneVal(), fmt.Errorf("%s: map keys must be strings", st)
		}
		for i, f := range st.Fields {
			fv := v.MapIndex(reflect.ValueOf(f.Name).Convert(v.Type().Key()))
			if !fv.IsValid() {
				return vm.NoneVal(), fmt.Errorf("%s: missing field %s", st, f.Name)
			}
			if err := m.setField(fields, i, fv, f); err != nil {
				return vm.NoneVal(), fmt.Errorf("%s: %w", st, err)
			}
		}
	default:
		return vm.NoneVal(), fmt.Errorf("cannot convert %T to %s", val, st)
	}
	return vm.ObjVal(&vm.Instance{Struct: st, Fields: fields}), nil
}

func (m *Marshaller) setField(fields []vm.Value, i int, fv reflect.Value, f typesystem.Field) error {
	v, err := m.ToTyped(fv.Interface(), f.Type)
	if err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}
	fields[i] = v
	return nil
}

// FromValue converts a runtime value to a Go value. targetType is optional;
// if provided, tries to convert to that type.
func (m *Marshaller) FromValue(v vm.Value, targetType reflect.Type) (interface{}, error) {
	if targetType == valueType {
		return v, nil
	}
	switch v.Type {
	case vm.ValNone:
		return nil, nil
	case vm.ValInt:
		if targetType != nil {
			switch targetType.Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
				reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
				reflect.Float32, reflect.Float64:
				return reflect.ValueOf(v.AsInt()).Convert(targetType).Interface(), nil
			}
		}
		return int(v.AsInt()), nil // Default to int
	case vm.ValFloat:
		if targetType != nil && targetType.Kind() == reflect.Float32 {
			return float32(v.AsFloat()), nil
		}
		return v.AsFloat(), nil
	case vm.ValBool:
		return v.AsBool(), nil
	}

	switch o := v.Obj.(type) {
	case *vm.String:
		return o.Value, nil
	case *vm.List:
		return m.listToSlice(o, targetType)
	case *vm.Map:
		return m.mapToGoMap(o, targetType)
	case *vm.Instance:
		if isStructType(targetType) {
			return m.instanceToStruct(o, targetType)
		}
		return m.instanceToMap(o)
	case *vm.Pointer:
		return o.Addr, nil
	case *vm.NativeFunction, *vm.TypeValue:
		return o, nil
	}
	return nil, fmt.Errorf("unsupported type for conversion: %s", v.RuntimeType())
}

// Decode converts v into the value out points to.
func (m *Marshaller) Decode(v vm.Value, out interface{}) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", out)
	}
	val, err := m.FromValue(v, rv.Elem().Type())
	if err != nil {
		return err
	}
	ev, err := assignable(val, rv.Elem().Type())
	if err != nil {
		return err
	}
	rv.Elem().Set(ev)
	return nil
}

func (m *Marshaller) sliceToList(v reflect.Value) (vm.Value, error) {
	elements := make([]vm.Value, v.Len())
	for i := 0; i < v.Len(); i++ {
		val, err := m.ToValue(v.Index(i).Interface())
		if err != nil {
			return vm.NoneVal(), err
		}
		elements[i] = val
	}
	return vm.ObjVal(vm.NewList(elements...)), nil
}

func (m *Marshaller) goMapToMap(v reflect.Value) (vm.Value, error) {
	if v.Type().Key().Kind() != reflect.String {
		return vm.NoneVal(), fmt.Errorf("map keys must be strings, got %s", v.Type().Key())
	}
	keys := make([]string, 0, v.Len())
	for _, k := range v.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	result := vm.NewMap()
	for _, k := range keys {
		val, err := m.ToValue(v.MapIndex(reflect.ValueOf(k).Convert(v.Type().Key())).Interface())
		if err != nil {
			return vm.NoneVal(), fmt.Errorf("map value %s: %w", k, err)
		}
		result.Set(k, val)
	}
	return vm.ObjVal(result), nil
}

func (m *Marshaller) structToMap(v reflect.Value) (vm.Value, error) {
	result := vm.NewMap()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" { // Skip unexported fields
			continue
		}
		val, err := m.ToValue(v.Field(i).Interface())
		if err != nil {
			return vm.NoneVal(), err
		}
		result.Set(field.Name, val)
	}
	return vm.ObjVal(result), nil
}

func (m *Marshaller) listToSlice(l *vm.List, targetType reflect.Type) (interface{}, error) {
	// If targetType is nil, default to []interface{}
	elemType := interfaceType
	if targetType != nil && targetType.Kind() == reflect.Slice {
		elemType = targetType.Elem()
	}

	slice := reflect.MakeSlice(reflect.SliceOf(elemType), 0, l.Len())
	for _, el := range l.Elems {
		val, err := m.FromValue(el, elemType)
		if err != nil {
			return nil, err
		}
		rv, err := assignable(val, elemType)
		if err != nil {
			return nil, err
		}
		slice = reflect.Append(slice, rv)
	}
	return slice.Interface(), nil
}

func (m *Marshaller) mapToGoMap(vmap *vm.Map, targetType reflect.Type) (interface{}, error) {
	valType := interfaceType
	mapType := reflect.TypeOf(map[string]interface{}{})
	if targetType != nil && targetType.Kind() == reflect.Map && targetType.Key().Kind() == reflect.String {
		mapType = targetType
		valType = targetType.Elem()
	}
	result := reflect.MakeMapWithSize(mapType, vmap.Len())
	for _, k := range vmap.Keys() {
		item, _ := vmap.Get(k)
		val, err := m.FromValue(item, valType)
		if err != nil {
			return nil, fmt.Errorf("map value %s: %w", k, err)
		}
		vv, err := assignable(val, valType)
		if err != nil {
			return nil, fmt.Errorf("map value %s: %w", k, err)
		}
		result.SetMapIndex(reflect.ValueOf(k).Convert(mapType.Key()), vv)
	}
	return result.Interface(), nil
}

func (m *Marshaller) instanceToMap(inst *vm.Instance) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(inst.Fields))
	for i, f := range inst.Struct.Fields {
		val, err := m.FromValue(inst.Fields[i], nil)
		if err != nil {
			return nil, err
		}
		result[f.Name] = val
	}
	return result, nil
}

func (m *Marshaller) instanceToStruct(inst *vm.Instance, targetType reflect.Type) (interface{}, error) {
	ptr := targetType.Kind() == reflect.Ptr
	st := targetType
	if ptr {
		st = targetType.Elem()
	}
	out := reflect.New(st).Elem()
	for i, f := range inst.Struct.Fields {
		fv := out.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, f.Name) })
		if !fv.IsValid() || !fv.CanSet() {
			continue
		}
		val, err := m.FromValue(inst.Fields[i], fv.Type())
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		rv, err := assignable(val, fv.Type())
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		fv.Set(rv)
	}
	if ptr {
		return out.Addr().Interface(), nil
	}
	return out.Interface(), nil
}

func isStructType(t reflect.Type) bool {
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

// assignable returns val as a reflect.Value of type t.
func assignable(val interface{}, t reflect.Type) (reflect.Value, error) {
	if val == nil {
		// Handle nil for pointers/interfaces
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(val)
	switch {
	case rv.Type().AssignableTo(t):
		return rv, nil
	case rv.Type().ConvertibleTo(t):
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", rv.Type(), t)
}
