package ffi

import (
	"fmt"
	"reflect"
)

type decoder func(b uint64) (reflect.Value, error)
type encoder func(v reflect.Value) (uint64, error)

// goConverter builds decoders and encoders between boxed words and Go
// values of the types a GoLibrary function declares.
type goConverter struct {
	heap   *Heap
	layout func(name string) *StructLayout
}

// frame is the marshalling plan for one native shape and Go function type.
type frame struct {
	args     []decoder
	ret      encoder // nil for void
	receiver bool
}

var primKinds = [...]reflect.Kind{
	PrimBool:    reflect.Bool,
	PrimChar:    reflect.Int8,
	PrimUChar:   reflect.Uint8,
	PrimShort:   reflect.Int16,
	PrimUShort:  reflect.Uint16,
	PrimInt:     reflect.Int32,
	PrimUInt:    reflect.Uint32,
	PrimLong:    reflect.Int64,
	PrimULong:   reflect.Uint64,
	PrimUSize:   reflect.Uintptr,
	PrimFloat:   reflect.Float32,
	PrimDouble:  reflect.Float64,
	PrimCharPtr: reflect.String,
	PrimVoidPtr: reflect.Uintptr,
}

func (c *goConverter) newFrame(e *Entry, fn reflect.Type) (*frame, error) {
	if fn.NumIn() != len(e.Args) {
		return nil, invalidIn(e.Name, "Go function takes %d arguments, declared %d", fn.NumIn(), len(e.Args))
	}
	fr := &frame{receiver: e.Receiver}
	for i, a := range e.Args {
		dec, err := c.decoder(a, fn.In(i), true)
		if err != nil {
			return nil, invalidIn(e.Name, "args[%d]: %v", i, err)
		}
		fr.args = append(fr.args, dec)
	}
	if p, ok := e.Ret.(PrimDesc); ok && p.Prim == PrimVoid {
		if fn.NumOut() != 0 {
			return nil, invalidIn(e.Name, "declared void but Go function returns %s", fn.Out(0))
		}
		return fr, nil
	}
	if fn.NumOut() != 1 {
		return nil, invalidIn(e.Name, "declared %s but Go function returns nothing", e.Ret)
	}
	enc, err := c.encoder(e.Ret, fn.Out(0), true)
	if err != nil {
		return nil, invalidIn(e.Name, "ret: %v", err)
	}
	fr.ret = enc
	return fr, nil
}

// bind returns the trampoline calling fn through this frame.
func (fr *frame) bind(name string, fn reflect.Value) EntryFunc {
	offset := 0
	if fr.receiver {
		offset = 1
	}
	return func(args []uint64) (result uint64, err error) {
		if len(args) != len(fr.args)+offset {
			return 0, fmt.Errorf("%s: expected %d arguments, got %d", name, len(fr.args), len(args)-offset)
		}
		in := make([]reflect.Value, len(fr.args))
		for i, dec := range fr.args {
			v, err := dec(args[i+offset])
			if err != nil {
				return 0, fmt.Errorf("%s: argument %d: %w", name, i, err)
			}
			in[i] = v
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: native call panicked: %v", name, r)
			}
		}()
		out := fn.Call(in)
		if fr.ret == nil {
			return BoxedNone, nil
		}
		return fr.ret(out[0])
	}
}

// decoder converts boxed words of descriptor d into Go values of type t.
// Arrays in parameter position may also be slices or pointers to arrays.
func (c *goConverter) decoder(d Descriptor, t reflect.Type, param bool) (decoder, error) {
	switch d := d.(type) {
	case PrimDesc:
		if d.Prim == PrimVoid || t.Kind() != primKinds[d.Prim] {
			return nil, fmt.Errorf("Go type %s does not match %s", t, d)
		}
		return c.primDecoder(d.Prim, t), nil
	case StructRef:
		l := c.layout(d.Name)
		fields, err := c.structFields(l, t)
		if err != nil {
			return nil, err
		}
		decs := make([]decoder, len(fields))
		for i, f := range l.Fields {
			if decs[i], err = c.decoder(f.Type, t.Field(fields[i]).Type, false); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", l.Name, fieldName(f, i), err)
			}
		}
		return func(b uint64) (reflect.Value, error) {
			slots, err := c.heap.Slots(b)
			if err != nil {
				return reflect.Value{}, err
			}
			if len(slots) != len(decs) {
				return reflect.Value{}, fmt.Errorf("%s: expected %d fields, got %d", l.Name, len(decs), len(slots))
			}
			out := reflect.New(t).Elem()
			for i, dec := range decs {
				v, err := dec(slots[i])
				if err != nil {
					return reflect.Value{}, err
				}
				out.Field(fields[i]).Set(v)
			}
			return out, nil
		}, nil
	case ArrayDesc:
		kind, elemType, err := arrayShape(d, t, param)
		if err != nil {
			return nil, err
		}
		dec, err := c.decoder(d.Elem, elemType, false)
		if err != nil {
			return nil, err
		}
		return func(b uint64) (reflect.Value, error) {
			slots, err := c.heap.Slots(b)
			if err != nil {
				return reflect.Value{}, err
			}
			if len(slots) != d.Len {
				return reflect.Value{}, fmt.Errorf("expected %d elements, got %d", d.Len, len(slots))
			}
			var out, elems reflect.Value
			switch kind {
			case reflect.Array:
				out = reflect.New(t).Elem()
				elems = out
			case reflect.Slice:
				out = reflect.MakeSlice(t, d.Len, d.Len)
				elems = out
			case reflect.Ptr:
				out = reflect.New(t.Elem())
				elems = out.Elem()
			}
			for i, s := range slots {
				v, err := dec(s)
				if err != nil {
					return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
				}
				elems.Index(i).Set(v)
			}
			return out, nil
		}, nil
	}
	panic(fmt.Sprintf("ffi: unhandled descriptor %T", d))
}

func (c *goConverter) primDecoder(p Prim, t reflect.Type) decoder {
	return func(b uint64) (reflect.Value, error) {
		out := reflect.New(t).Elem()
		switch {
		case p == PrimBool:
			if KindOf(b) != KindBool {
				return out, fmt.Errorf("expected a boxed bool, got %s", KindOf(b))
			}
			out.SetBool(UnboxBool(b))
		case p.IsInteger():
			if KindOf(b) != KindInt {
				return out, fmt.Errorf("expected a boxed int, got %s", KindOf(b))
			}
			if p.IsSigned() {
				out.SetInt(UnboxInt(b))
			} else {
				out.SetUint(UnboxUint(b))
			}
		case p.IsFloat():
			if KindOf(b) != KindFloat {
				return out, fmt.Errorf("expected a boxed float, got %s", KindOf(b))
			}
			out.SetFloat(UnboxFloat(b))
		case p == PrimCharPtr:
			s, err := c.heap.StringAt(b)
			if err != nil {
				return out, err
			}
			out.SetString(s)
		case p == PrimVoidPtr:
			addr, err := c.heap.PointerAt(b)
			if err != nil {
				return out, err
			}
			out.SetUint(uint64(addr))
		}
		return out, nil
	}
}

// encoder converts Go values of type t into boxed words of descriptor d.
func (c *goConverter) encoder(d Descriptor, t reflect.Type, param bool) (encoder, error) {
	switch d := d.(type) {
	case PrimDesc:
		if d.Prim == PrimVoid || t.Kind() != primKinds[d.Prim] {
			return nil, fmt.Errorf("Go type %s does not match %s", t, d)
		}
		return c.primEncoder(d.Prim), nil
	case StructRef:
		l := c.layout(d.Name)
		fields, err := c.structFields(l, t)
		if err != nil {
			return nil, err
		}
		encs := make([]encoder, len(fields))
		for i, f := range l.Fields {
			if encs[i], err = c.encoder(f.Type, t.Field(fields[i]).Type, false); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", l.Name, fieldName(f, i), err)
			}
		}
		return func(v reflect.Value) (uint64, error) {
			obj := c.heap.AllocObject(len(encs))
			slots, _ := c.heap.Slots(obj)
			for i, enc := range encs {
				b, err := enc(v.Field(fields[i]))
				if err != nil {
					return 0, err
				}
				slots[i] = b
			}
			return obj, nil
		}, nil
	case ArrayDesc:
		kind, elemType, err := arrayShape(d, t, param)
		if err != nil {
			return nil, err
		}
		enc, err := c.encoder(d.Elem, elemType, false)
		if err != nil {
			return nil, err
		}
		return func(v reflect.Value) (uint64, error) {
			switch kind {
			case reflect.Ptr:
				if v.IsNil() {
					return 0, fmt.Errorf("nil array pointer")
				}
				v = v.Elem()
			case reflect.Slice:
				if v.Len() < d.Len {
					return 0, fmt.Errorf("expected %d elements, got %d", d.Len, v.Len())
				}
			}
			list := c.heap.AllocList(d.Len)
			slots, _ := c.heap.Slots(list)
			for i := 0; i < d.Len; i++ {
				b, err := enc(v.Index(i))
				if err != nil {
					return 0, fmt.Errorf("element %d: %w", i, err)
				}
				slots[i] = b
			}
			return list, nil
		}, nil
	}
	panic(fmt.Sprintf("ffi: unhandled descriptor %T", d))
}

func (c *goConverter) primEncoder(p Prim) encoder {
	return func(v reflect.Value) (uint64, error) {
		switch {
		case p == PrimBool:
			return BoxBool(v.Bool()), nil
		case p.IsInteger() && p.IsSigned():
			return BoxInt(v.Int()), nil
		case p.IsInteger():
			return BoxInt(int64(v.Uint())), nil
		case p.IsFloat():
			return BoxFloat(v.Float()), nil
		case p == PrimCharPtr:
			return c.heap.AllocString(v.String()), nil
		case p == PrimVoidPtr:
			return c.heap.AllocPointer(uintptr(v.Uint())), nil
		}
		panic(fmt.Sprintf("ffi: unhandled primitive %s", p))
	}
}

// structFields maps layout fields onto the exported fields of t, in order.
func (c *goConverter) structFields(l *StructLayout, t reflect.Type) ([]int, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("Go type %s does not match struct %s", t, l.Name)
	}
	var idx []int
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			idx = append(idx, i)
		}
	}
	if len(idx) != len(l.Fields) {
		return nil, fmt.Errorf("Go type %s has %d exported fields, struct %s has %d", t, len(idx), l.Name, len(l.Fields))
	}
	return idx, nil
}

// arrayShape checks t against an array descriptor. Struct members and
// nested elements must be Go arrays; parameters and results may decay.
func arrayShape(d ArrayDesc, t reflect.Type, param bool) (reflect.Kind, reflect.Type, error) {
	switch t.Kind() {
	case reflect.Array:
		if t.Len() != d.Len {
			return 0, nil, fmt.Errorf("Go type %s does not match %s", t, d)
		}
		return reflect.Array, t.Elem(), nil
	case reflect.Slice:
		if param {
			return reflect.Slice, t.Elem(), nil
		}
	case reflect.Ptr:
		if param && t.Elem().Kind() == reflect.Array && t.Elem().Len() == d.Len {
			return reflect.Ptr, t.Elem().Elem(), nil
		}
	}
	return 0, nil, fmt.Errorf("Go type %s does not match %s", t, d)
}
