package ffi

import (
	"fmt"
	"math"

	"github.com/funvibe/loom/internal/token"
	"github.com/funvibe/loom/internal/typesystem"
	"github.com/funvibe/loom/internal/vm"
)

// marshaller converts VM values to boxed words and back, guided by
// descriptors. It runs on the VM side of a trampoline call.
type marshaller struct {
	plan *plan
	heap *Heap
}

func (m *marshaller) mismatch(d Descriptor, v vm.Value) error {
	return typesystem.NewTypeMismatchError(m.plan.checkerType(d), v.RuntimeType(), token.Position{})
}

func (m *marshaller) box(d Descriptor, v vm.Value) (uint64, error) {
	switch d := d.(type) {
	case PrimDesc:
		return m.boxPrim(d, v)
	case StructRef:
		l, _ := m.plan.layout(d.Name)
		inst, ok := v.Obj.(*vm.Instance)
		if !v.IsObj() || !ok || len(inst.Fields) != len(l.Fields) || !typesystem.Equal(inst.Struct, l.Type) {
			return 0, m.mismatch(d, v)
		}
		obj := m.heap.AllocObject(len(l.Fields))
		slots, _ := m.heap.Slots(obj)
		for i, f := range l.Fields {
			b, err := m.box(f.Type, inst.Fields[i])
			if err != nil {
				return 0, fmt.Errorf("field %s: %w", fieldName(f, i), err)
			}
			slots[i] = b
		}
		return obj, nil
	case ArrayDesc:
		list, ok := v.Obj.(*vm.List)
		if !v.IsObj() || !ok {
			return 0, m.mismatch(d, v)
		}
		if list.Len() != d.Len {
			return 0, fmt.Errorf("expected %d elements, got %d", d.Len, list.Len())
		}
		obj := m.heap.AllocList(d.Len)
		slots, _ := m.heap.Slots(obj)
		for i, e := range list.Elems {
			b, err := m.box(d.Elem, e)
			if err != nil {
				return 0, fmt.Errorf("element %d: %w", i, err)
			}
			slots[i] = b
		}
		return obj, nil
	}
	panic(fmt.Sprintf("ffi: unhandled descriptor %T", d))
}

func (m *marshaller) boxPrim(d PrimDesc, v vm.Value) (uint64, error) {
	switch {
	case d.Prim == PrimBool:
		if !v.IsBool() {
			return 0, m.mismatch(d, v)
		}
		return BoxBool(v.AsBool()), nil
	case d.Prim.IsInteger():
		if !v.IsInt() {
			return 0, m.mismatch(d, v)
		}
		return BoxInt(v.AsInt()), nil
	case d.Prim.IsFloat():
		f, ok := v.AsNumber()
		if !ok {
			return 0, m.mismatch(d, v)
		}
		if d.Prim == PrimFloat {
			f = float64(float32(f))
		}
		return BoxFloat(f), nil
	case d.Prim == PrimCharPtr:
		s, ok := stringOf(v)
		if !ok {
			return 0, m.mismatch(d, v)
		}
		return m.heap.AllocString(s), nil
	case d.Prim == PrimVoidPtr:
		if v.IsNone() {
			return m.heap.AllocPointer(0), nil
		}
		p, ok := v.Obj.(*vm.Pointer)
		if !v.IsObj() || !ok {
			return 0, m.mismatch(d, v)
		}
		return m.heap.AllocPointer(p.Addr), nil
	case d.Prim == PrimVoid:
		return BoxedNone, nil
	}
	panic(fmt.Sprintf("ffi: unhandled primitive %s", d.Prim))
}

func (m *marshaller) unbox(d Descriptor, b uint64) (vm.Value, error) {
	switch d := d.(type) {
	case PrimDesc:
		return m.unboxPrim(d, b)
	case StructRef:
		l, _ := m.plan.layout(d.Name)
		slots, err := m.heap.Slots(b)
		if err != nil {
			return vm.NoneVal(), err
		}
		if len(slots) != len(l.Fields) {
			return vm.NoneVal(), fmt.Errorf("%s: expected %d fields, got %d", l.Name, len(l.Fields), len(slots))
		}
		inst := &vm.Instance{Struct: l.Type, Fields: make([]vm.Value, len(slots))}
		for i, f := range l.Fields {
			v, err := m.unbox(f.Type, slots[i])
			if err != nil {
				return vm.NoneVal(), fmt.Errorf("%s.%s: %w", l.Name, fieldName(f, i), err)
			}
			inst.Fields[i] = v
		}
		return vm.ObjVal(inst), nil
	case ArrayDesc:
		slots, err := m.heap.Slots(b)
		if err != nil {
			return vm.NoneVal(), err
		}
		if len(slots) != d.Len {
			return vm.NoneVal(), fmt.Errorf("expected %d elements, got %d", d.Len, len(slots))
		}
		elems := make([]vm.Value, d.Len)
		for i, s := range slots {
			v, err := m.unbox(d.Elem, s)
			if err != nil {
				return vm.NoneVal(), fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = v
		}
		return vm.ObjVal(vm.NewList(elems...)), nil
	}
	panic(fmt.Sprintf("ffi: unhandled descriptor %T", d))
}

func (m *marshaller) unboxPrim(d PrimDesc, b uint64) (vm.Value, error) {
	switch {
	case d.Prim == PrimVoid:
		return vm.NoneVal(), nil
	case d.Prim == PrimBool:
		if KindOf(b) != KindBool {
			return vm.NoneVal(), fmt.Errorf("expected a boxed bool, got %s", KindOf(b))
		}
		return vm.BoolVal(UnboxBool(b)), nil
	case d.Prim.IsInteger():
		if KindOf(b) != KindInt {
			return vm.NoneVal(), fmt.Errorf("expected a boxed int, got %s", KindOf(b))
		}
		if d.Prim.IsSigned() {
			return vm.IntVal(UnboxInt(b)), nil
		}
		return vm.IntVal(int64(UnboxUint(b))), nil
	case d.Prim.IsFloat():
		if KindOf(b) != KindFloat {
			return vm.NoneVal(), fmt.Errorf("expected a boxed float, got %s", KindOf(b))
		}
		f := UnboxFloat(b)
		if d.Prim == PrimFloat && !math.IsNaN(f) {
			f = float64(float32(f))
		}
		return vm.FloatVal(f), nil
	case d.Prim == PrimCharPtr:
		s, err := m.heap.StringAt(b)
		if err != nil {
			return vm.NoneVal(), err
		}
		return vm.StringVal(s), nil
	case d.Prim == PrimVoidPtr:
		addr, err := m.heap.PointerAt(b)
		if err != nil {
			return vm.NoneVal(), err
		}
		return vm.ObjVal(&vm.Pointer{Addr: addr}), nil
	}
	panic(fmt.Sprintf("ffi: unhandled primitive %s", d.Prim))
}
