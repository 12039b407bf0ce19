package ffi

import (
	"fmt"
	"math"
	"unsafe"
)

// readBoxed reads a value of descriptor d stored at addr in native layout
// and boxes it. The address comes from a pointer value handed out by native
// code, so this is the one place the package dereferences foreign memory.
func readBoxed(heap *Heap, d Descriptor, addr uintptr, layout func(string) *StructLayout) uint64 {
	p := unsafe.Pointer(addr)
	switch d := d.(type) {
	case PrimDesc:
		switch d.Prim {
		case PrimBool:
			return BoxBool(*(*byte)(p) != 0)
		case PrimChar:
			return BoxInt(int64(*(*int8)(p)))
		case PrimUChar:
			return BoxInt(int64(*(*uint8)(p)))
		case PrimShort:
			return BoxInt(int64(*(*int16)(p)))
		case PrimUShort:
			return BoxInt(int64(*(*uint16)(p)))
		case PrimInt:
			return BoxInt(int64(*(*int32)(p)))
		case PrimUInt:
			return BoxInt(int64(*(*uint32)(p)))
		case PrimLong, PrimULong:
			return BoxInt(*(*int64)(p))
		case PrimUSize:
			return BoxInt(int64(*(*uintptr)(p)))
		case PrimFloat:
			return BoxFloat(float64(*(*float32)(p)))
		case PrimDouble:
			return BoxFloat(math.Float64frombits(*(*uint64)(p)))
		case PrimCharPtr:
			return heap.AllocString(cString(*(*uintptr)(p)))
		case PrimVoidPtr:
			return heap.AllocPointer(*(*uintptr)(p))
		}
	case StructRef:
		l := layout(d.Name)
		obj := heap.AllocObject(len(l.Fields))
		slots, _ := heap.Slots(obj)
		for i, f := range l.Fields {
			slots[i] = readBoxed(heap, f.Type, addr+l.Offsets[i], layout)
		}
		return obj
	case ArrayDesc:
		size := elemSize(d.Elem, layout)
		list := heap.AllocList(d.Len)
		slots, _ := heap.Slots(list)
		for i := 0; i < d.Len; i++ {
			slots[i] = readBoxed(heap, d.Elem, addr+uintptr(i)*size, layout)
		}
		return list
	}
	panic(fmt.Sprintf("ffi: cannot read %s from memory", d))
}

func elemSize(d Descriptor, layout func(string) *StructLayout) uintptr {
	switch d := d.(type) {
	case PrimDesc:
		return d.Prim.Size()
	case StructRef:
		return layout(d.Name).Size
	case ArrayDesc:
		return elemSize(d.Elem, layout) * uintptr(d.Len)
	}
	panic(fmt.Sprintf("ffi: unhandled descriptor %T", d))
}

// cString copies a NUL-terminated string. A zero address reads as "".
func cString(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Pointer(addr + uintptr(n))) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
}
