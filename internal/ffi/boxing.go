package ffi

import "math"

// Boxed values crossing the native boundary are 64-bit NaN-boxed words.
// Internally the VM uses vm.Value; this encoding exists only for generated
// trampolines and the heap callbacks they call.
const (
	TaggedMask  uint64 = 0x7FFC000000000000
	IntTag      uint64 = 0x7FFD000000000000
	ObjectTag   uint64 = 0xFFFC000000000000
	PayloadMask uint64 = 0x0000FFFFFFFFFFFF
	tagMask     uint64 = 0xFFFF000000000000

	BoxedNone  uint64 = TaggedMask
	BoxedFalse uint64 = 0x7FFC000100000000
	BoxedTrue  uint64 = 0x7FFC000100000001
)

// BoxInt keeps the low 48 bits of v.
func BoxInt(v int64) uint64 {
	return IntTag | (uint64(v) & PayloadMask)
}

// UnboxInt sign-extends the 48-bit payload.
func UnboxInt(b uint64) int64 {
	return int64((b&PayloadMask)<<16) >> 16
}

// UnboxUint zero-extends the 48-bit payload.
func UnboxUint(b uint64) uint64 {
	return b & PayloadMask
}

// BoxFloat stores the bit pattern of v. Single-precision values are widened
// by the caller.
func BoxFloat(v float64) uint64 {
	return math.Float64bits(v)
}

func UnboxFloat(b uint64) float64 {
	return math.Float64frombits(b)
}

func BoxBool(v bool) uint64 {
	if v {
		return BoxedTrue
	}
	return BoxedFalse
}

func UnboxBool(b uint64) bool {
	return b == BoxedTrue
}

// BoxObject tags a heap handle.
func BoxObject(handle uint64) uint64 {
	return ObjectTag | (handle & PayloadMask)
}

func UnboxObject(b uint64) uint64 {
	return b & PayloadMask
}

// BoxedKind classifies a boxed word.
type BoxedKind int

const (
	KindFloat BoxedKind = iota
	KindInt
	KindBool
	KindNone
	KindObject
)

func (k BoxedKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindNone:
		return "none"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// KindOf reports which kind of value b encodes. Any word that is not tagged
// is a float.
func KindOf(b uint64) BoxedKind {
	switch {
	case b == BoxedNone:
		return KindNone
	case b == BoxedTrue, b == BoxedFalse:
		return KindBool
	case b&tagMask == IntTag:
		return KindInt
	case b&tagMask == ObjectTag:
		return KindObject
	}
	return KindFloat
}
