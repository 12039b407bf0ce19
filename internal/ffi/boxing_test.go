package ffi

import (
	"math"
	"testing"
)

func TestBoxIntBits(t *testing.T) {
	tests := []struct {
		in   int64
		bits uint64
		back int64
	}{
		{0, 0x7FFD000000000000, 0},
		{1, 0x7FFD000000000001, 1},
		{-1, 0x7FFDFFFFFFFFFFFF, -1},
		{1<<47 - 1, 0x7FFD7FFFFFFFFFFF, 1<<47 - 1},
		// Only the low 48 bits survive.
		{1 << 47, 0x7FFD800000000000, -(1 << 47)},
		{1 << 48, 0x7FFD000000000000, 0},
	}
	for _, tt := range tests {
		got := BoxInt(tt.in)
		if got != tt.bits {
			t.Errorf("BoxInt(%d) = %#x, want %#x", tt.in, got, tt.bits)
		}
		if back := UnboxInt(got); back != tt.back {
			t.Errorf("UnboxInt(%#x) = %d, want %d", got, back, tt.back)
		}
		if KindOf(got) != KindInt {
			t.Errorf("KindOf(%#x) = %s", got, KindOf(got))
		}
	}
	if got := UnboxUint(BoxInt(-1)); got != PayloadMask {
		t.Errorf("UnboxUint(-1) = %#x", got)
	}
}

func TestBoxFloatKeepsBits(t *testing.T) {
	for _, f := range []float64{0, 1.5, -2.25, math.Inf(1), math.MaxFloat64, math.SmallestNonzeroFloat64} {
		b := BoxFloat(f)
		if b != math.Float64bits(f) {
			t.Errorf("BoxFloat(%v) = %#x", f, b)
		}
		if KindOf(b) != KindFloat {
			t.Errorf("KindOf(BoxFloat(%v)) = %s", f, KindOf(b))
		}
		if UnboxFloat(b) != f {
			t.Errorf("UnboxFloat(BoxFloat(%v)) = %v", f, UnboxFloat(b))
		}
	}
	if KindOf(BoxFloat(math.NaN())) != KindFloat {
		t.Errorf("a canonical NaN must read as a float")
	}
}

func TestBoxSentinels(t *testing.T) {
	if BoxBool(true) != 0x7FFC000100000001 || BoxBool(false) != 0x7FFC000100000000 {
		t.Errorf("bool sentinels: %#x %#x", BoxBool(true), BoxBool(false))
	}
	if !UnboxBool(BoxedTrue) || UnboxBool(BoxedFalse) {
		t.Errorf("UnboxBool")
	}
	tests := []struct {
		bits uint64
		kind BoxedKind
	}{
		{BoxedNone, KindNone},
		{BoxedTrue, KindBool},
		{BoxedFalse, KindBool},
		{BoxObject(7), KindObject},
		{BoxInt(7), KindInt},
	}
	for _, tt := range tests {
		if got := KindOf(tt.bits); got != tt.kind {
			t.Errorf("KindOf(%#x) = %s, want %s", tt.bits, got, tt.kind)
		}
	}
	if UnboxObject(BoxObject(42)) != 42 {
		t.Errorf("object handle did not round-trip")
	}
}

func TestHeapReleaseSince(t *testing.T) {
	h := NewHeap(nil)
	keep := h.AllocString("kept")
	mark := h.Mark()
	h.AllocList(3)
	h.AllocPointer(0x1000)
	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3", h.Len())
	}
	h.ReleaseSince(mark)
	if h.Len() != 1 {
		t.Fatalf("Len after release = %d, want 1", h.Len())
	}
	if s, err := h.StringAt(keep); err != nil || s != "kept" {
		t.Errorf("StringAt = %q, %v", s, err)
	}
	if _, err := h.PointerAt(keep); err == nil {
		t.Errorf("a string handle must not read as a pointer")
	}
}
