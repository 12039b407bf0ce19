package typesystem

import "github.com/funvibe/loom/internal/token"

// IsDynamic reports whether t disables static checking: any, unknown (nil)
// and types whose declaration has not been resolved.
func IsDynamic(t Type) bool {
	switch t := t.(type) {
	case nil:
		return true
	case TPrim:
		return t.Kind == PrimAny
	case TDeferred:
		return true
	}
	return false
}

// Assignable reports whether a value of type from may be stored where to is
// expected. The language coercions are: int widens to float, any is
// assignable both ways, a union accepts any of its variants, and a raw
// pointer converts to and from typed pointers. Structs are nominal and
// arrays only match an identical array type.
func Assignable(to, from Type) bool {
	if IsDynamic(to) || IsDynamic(from) {
		return true
	}
	if Equal(to, from) {
		return true
	}

	// A union source fits only if every variant does.
	if u, ok := from.(TUnion); ok {
		for _, v := range u.Variants {
			if !Assignable(to, v) {
				return false
			}
		}
		return true
	}

	switch to := to.(type) {
	case TPrim:
		if to.Kind == PrimFloat {
			if p, ok := from.(TPrim); ok && p.Kind == PrimInt {
				return true
			}
		}
		if to.Kind == PrimPointer {
			_, ok := from.(TPtr)
			return ok
		}
		return false
	case TUnion:
		for _, v := range to.Variants {
			if Assignable(v, from) {
				return true
			}
		}
		return false
	case TPtr:
		if p, ok := from.(TPrim); ok && p.Kind == PrimPointer {
			return true
		}
		if fp, ok := from.(TPtr); ok {
			return Equal(to.Elem, fp.Elem) || IsDynamic(to.Elem) || IsDynamic(fp.Elem)
		}
		return false
	case TList:
		fl, ok := from.(TList)
		return ok && Assignable(to.Elem, fl.Elem)
	case TMap:
		fm, ok := from.(TMap)
		return ok && Assignable(to.KeyType, fm.KeyType) && Assignable(to.ValueType, fm.ValueType)
	case TFunc:
		ff, ok := from.(TFunc)
		return ok && funcAssignable(to, ff)
	}
	// *TStruct, TArray, TModule, TTypeRef: identity only, handled above.
	return false
}

// Convertible reports whether T(x) accepts an x of type from. Besides
// assignment, numbers convert between int and float in both directions.
func Convertible(to, from Type) bool {
	if Assignable(to, from) {
		return true
	}
	return isNumber(to) && isNumber(from)
}

func isNumber(t Type) bool {
	p, ok := t.(TPrim)
	return ok && (p.Kind == PrimInt || p.Kind == PrimFloat)
}

func funcAssignable(to, from TFunc) bool {
	if len(to.Params) != len(from.Params) || to.Variadic != from.Variadic {
		return false
	}
	for i := range to.Params {
		// contravariant parameters
		if !Assignable(from.Params[i], to.Params[i]) {
			return false
		}
	}
	return Assignable(to.Result, from.Result)
}

// CheckCall verifies args against fn and returns the call's result type.
func CheckCall(fn TFunc, args []Type, pos token.Position) (Type, error) {
	n := len(fn.Params)
	if fn.Variadic {
		if len(args) < n-1 {
			return nil, &ArityMismatchError{Want: n - 1, Got: len(args), Variadic: true, Pos: pos}
		}
	} else if len(args) != n {
		return nil, &ArityMismatchError{Want: n, Got: len(args), Pos: pos}
	}

	for i, arg := range args {
		var want Type
		if fn.Variadic && i >= n-1 {
			want = fn.Params[n-1]
		} else {
			want = fn.Params[i]
		}
		if !Assignable(want, arg) {
			return nil, &TypeMismatchError{Expected: want, Actual: arg, Pos: pos, Index: i}
		}
	}
	if fn.Result == nil {
		return None, nil
	}
	return fn.Result, nil
}

// SelectOverload picks the first candidate that accepts args. When none does,
// the error from the first candidate is returned.
func SelectOverload(candidates []TFunc, args []Type, pos token.Position) (int, Type, error) {
	var firstErr error
	for i, c := range candidates {
		res, err := CheckCall(c, args, pos)
		if err == nil {
			return i, res, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = &NotCallableError{Pos: pos}
	}
	return -1, nil, firstErr
}

// CommonType returns the type of a collection holding a and b: their shared
// type when one is assignable to the other, otherwise a union.
func CommonType(a, b Type) Type {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case Equal(a, b):
		return a
	case Equal(a, Int) && Equal(b, Float), Equal(a, Float) && Equal(b, Int):
		return Float
	case Assignable(a, b):
		return a
	case Assignable(b, a):
		return b
	}
	return Union(a, b)
}

// Union flattens nested unions and drops duplicate variants.
func Union(types ...Type) Type {
	var variants []Type
	seen := make(map[string]bool)
	var add func(t Type)
	add = func(t Type) {
		if u, ok := t.(TUnion); ok {
			for _, v := range u.Variants {
				add(v)
			}
			return
		}
		k := typeKey(t)
		if seen[k] {
			return
		}
		seen[k] = true
		variants = append(variants, t)
	}
	for _, t := range types {
		add(t)
	}
	if len(variants) == 1 {
		return variants[0]
	}
	return TUnion{Variants: variants}
}
