package ffi

import (
	"strings"

	"github.com/funvibe/loom/internal/typesystem"
)

// boundFunc is a validated function with its checker signature.
type boundFunc struct {
	Decl      *FuncDecl
	Symbol    Symbol
	Signature *typesystem.Signature
	// Receiver is set when the function is exposed as a method; the first
	// VM argument is then the receiver and is not passed to native code.
	Receiver bool
}

// nativeKey identifies the native calling shape of a declaration. Functions
// with equal keys share one marshalling frame.
func (b *boundFunc) nativeKey() string {
	var sb strings.Builder
	if b.Receiver {
		sb.WriteString("self;")
	}
	sb.WriteString("(")
	for i, a := range b.Decl.Args {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(a.String())
	}
	sb.WriteString(")")
	sb.WriteString(b.Decl.Ret.String())
	return sb.String()
}

// buildSignatures builds one checker signature per function and interns it,
// so identical declarations share one signature record.
func buildSignatures(p *plan, receiver bool, sigs *typesystem.Signatures) []*boundFunc {
	out := make([]*boundFunc, 0, len(p.funcs))
	for _, f := range p.funcs {
		params := make([]typesystem.Type, 0, len(f.Args)+1)
		if receiver {
			params = append(params, typesystem.Any)
		}
		for _, a := range f.Args {
			params = append(params, p.checkerType(a))
		}
		fn := typesystem.TFunc{Params: params, Result: p.checkerType(f.Ret)}
		out = append(out, &boundFunc{
			Decl:      f,
			Symbol:    p.symbols[f.Sym],
			Signature: sigs.Intern(fn),
			Receiver:  receiver,
		})
	}
	return out
}

// accessorSignature is the signature of the ptrTo accessor of l.
func accessorSignature(l *StructLayout, receiver bool) typesystem.TFunc {
	params := []typesystem.Type{typesystem.Pointer}
	if receiver {
		params = append([]typesystem.Type{typesystem.Any}, params...)
	}
	return typesystem.TFunc{Params: params, Result: l.Type}
}
