package ffi

import (
	"fmt"
)

// Allocator provides the memory behind staged heap objects. Native backends
// need memory the C side may hold on to; the default uses Go slices.
type Allocator interface {
	Words(n int) []uint64
	Bytes(n int) []byte
	FreeWords(w []uint64)
	FreeBytes(b []byte)
}

type goAllocator struct{}

func (goAllocator) Words(n int) []uint64 { return make([]uint64, n) }
func (goAllocator) Bytes(n int) []byte   { return make([]byte, n) }
func (goAllocator) FreeWords([]uint64)   {}
func (goAllocator) FreeBytes([]byte)     {}

type entryKind int

const (
	entryObject entryKind = iota
	entryList
	entryString
	entryPointer
)

func (k entryKind) String() string {
	switch k {
	case entryObject:
		return "object"
	case entryList:
		return "list"
	case entryString:
		return "string"
	case entryPointer:
		return "pointer"
	}
	return "unknown"
}

type entry struct {
	kind  entryKind
	slots []uint64
	str   []byte // NUL-terminated
	addr  uintptr
}

// Heap is the handle table behind boxed object words. Trampolines exchange
// structs, arrays, strings and pointers as handles into it; the callbacks
// the generated source declares in its preamble are its methods.
type Heap struct {
	entries map[uint64]*entry
	next    uint64
	mem     Allocator
}

func NewHeap(mem Allocator) *Heap {
	if mem == nil {
		mem = goAllocator{}
	}
	return &Heap{entries: make(map[uint64]*entry), next: 1, mem: mem}
}

func (h *Heap) put(e *entry) uint64 {
	handle := h.next
	h.next++
	h.entries[handle] = e
	return BoxObject(handle)
}

// AllocObject allocates an object with n value slots.
func (h *Heap) AllocObject(n int) uint64 {
	return h.put(&entry{kind: entryObject, slots: h.fill(n)})
}

// AllocList allocates a list of n elements.
func (h *Heap) AllocList(n int) uint64 {
	return h.put(&entry{kind: entryList, slots: h.fill(n)})
}

// AllocString copies s into NUL-terminated storage.
func (h *Heap) AllocString(s string) uint64 {
	buf := h.mem.Bytes(len(s) + 1)
	copy(buf, s)
	buf[len(s)] = 0
	return h.put(&entry{kind: entryString, str: buf})
}

// AllocPointer wraps a raw native address.
func (h *Heap) AllocPointer(addr uintptr) uint64 {
	return h.put(&entry{kind: entryPointer, addr: addr})
}

func (h *Heap) fill(n int) []uint64 {
	w := h.mem.Words(n)
	for i := range w {
		w[i] = BoxedNone
	}
	return w
}

func (h *Heap) lookup(b uint64, want entryKind) (*entry, error) {
	if KindOf(b) != KindObject {
		return nil, fmt.Errorf("expected a boxed %s, got %s", want, KindOf(b))
	}
	e, ok := h.entries[UnboxObject(b)]
	if !ok {
		return nil, fmt.Errorf("dangling handle %d", UnboxObject(b))
	}
	if e.kind != want {
		return nil, fmt.Errorf("expected a boxed %s, got %s", want, e.kind)
	}
	return e, nil
}

// Slots returns the value slots of an object or list.
func (h *Heap) Slots(b uint64) ([]uint64, error) {
	if KindOf(b) == KindObject {
		if e, ok := h.entries[UnboxObject(b)]; ok && (e.kind == entryObject || e.kind == entryList) {
			return e.slots, nil
		}
	}
	return nil, fmt.Errorf("expected a boxed object or list, got %s", KindOf(b))
}

// StringAt returns the string behind a boxed string handle.
func (h *Heap) StringAt(b uint64) (string, error) {
	e, err := h.lookup(b, entryString)
	if err != nil {
		return "", err
	}
	return string(e.str[:len(e.str)-1]), nil
}

// PointerAt returns the address behind a boxed pointer handle.
func (h *Heap) PointerAt(b uint64) (uintptr, error) {
	e, err := h.lookup(b, entryPointer)
	if err != nil {
		return 0, err
	}
	return e.addr, nil
}

// Release frees the handle in b. Non-object words are ignored.
func (h *Heap) Release(b uint64) {
	if KindOf(b) != KindObject {
		return
	}
	handle := UnboxObject(b)
	e, ok := h.entries[handle]
	if !ok {
		return
	}
	delete(h.entries, handle)
	if e.slots != nil {
		h.mem.FreeWords(e.slots)
	}
	if e.str != nil {
		h.mem.FreeBytes(e.str)
	}
}

// Mark returns a position for ReleaseSince.
func (h *Heap) Mark() uint64 {
	return h.next
}

// ReleaseSince frees every handle allocated after mark.
func (h *Heap) ReleaseSince(mark uint64) {
	for handle := mark; handle < h.next; handle++ {
		h.Release(BoxObject(handle))
	}
}

// Len is the number of live handles.
func (h *Heap) Len() int {
	return len(h.entries)
}
