package ffi

import (
	"strconv"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// arrayRoutine is one deduplicated array conversion pair.
type arrayRoutine struct {
	Desc ArrayDesc
	// Key is the canonical (element name, length) key.
	Key string
	// Ident names the pair in generated source.
	Ident string
}

func arrayKey(a ArrayDesc) string {
	return a.Elem.String() + "#" + strconv.Itoa(a.Len)
}

// collectArrays walks every argument, return and struct field and returns
// one routine per distinct (element, length) key. Inner arrays are
// registered before the arrays containing them.
func collectArrays(p *plan) []*arrayRoutine {
	seen := linkedhashmap.New()
	var visit func(d Descriptor)
	visit = func(d Descriptor) {
		a, ok := d.(ArrayDesc)
		if !ok {
			return
		}
		visit(a.Elem)
		key := arrayKey(a)
		if _, dup := seen.Get(key); dup {
			return
		}
		seen.Put(key, &arrayRoutine{Desc: a, Key: key, Ident: mangle(a)})
	}
	for _, l := range p.layouts() {
		for _, f := range l.Fields {
			visit(f.Type)
		}
	}
	for _, f := range p.funcs {
		for _, a := range f.Args {
			visit(a)
		}
		visit(f.Ret)
	}
	vals := seen.Values()
	out := make([]*arrayRoutine, len(vals))
	for i, v := range vals {
		out[i] = v.(*arrayRoutine)
	}
	return out
}
