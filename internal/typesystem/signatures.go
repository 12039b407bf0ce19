package typesystem

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Signature is an interned function type.
type Signature struct {
	ID   int
	Type TFunc
	Key  string
}

// Signatures interns function types so identical signatures share one
// record. Iteration follows first-intern order.
type Signatures struct {
	byKey *linkedhashmap.Map
}

func NewSignatures() *Signatures {
	return &Signatures{byKey: linkedhashmap.New()}
}

// Intern returns the canonical record for fn, creating it on first use.
func (s *Signatures) Intern(fn TFunc) *Signature {
	key := fn.Key()
	if v, ok := s.byKey.Get(key); ok {
		return v.(*Signature)
	}
	sig := &Signature{ID: s.byKey.Size(), Type: fn, Key: key}
	s.byKey.Put(key, sig)
	return sig
}

// Lookup finds an interned signature without creating one.
func (s *Signatures) Lookup(fn TFunc) (*Signature, bool) {
	v, ok := s.byKey.Get(fn.Key())
	if !ok {
		return nil, false
	}
	return v.(*Signature), true
}

func (s *Signatures) Len() int {
	return s.byKey.Size()
}

// All returns interned signatures in interning order.
func (s *Signatures) All() []*Signature {
	vals := s.byKey.Values()
	out := make([]*Signature, len(vals))
	for i, v := range vals {
		out[i] = v.(*Signature)
	}
	return out
}
