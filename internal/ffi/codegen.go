package ffi

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/funvibe/loom/internal/config"
)

// GeneratedSource is the C glue for one binding request.
type GeneratedSource struct {
	// Fingerprint identifies the request the source was generated from.
	Fingerprint string
	Text        string
	// Trampolines lists the exported trampoline symbols by binding name,
	// in exposure order.
	Trampolines []Trampoline
	Arrays      int
}

// Trampoline names one generated entry point.
type Trampoline struct {
	// Name is the name exposed to scripts: the native symbol or
	// ptrTo<Type>.
	Name string
	// Symbol is the C symbol of the trampoline.
	Symbol string
}

const (
	trampolinePrefix = "lm_tramp_"
	codegenVersion   = "v1"
)

// GenerateSource validates decls without a library and emits the glue
// source. It is what a build tool uses to inspect or vendor the generated
// code.
func GenerateSource(decls []Decl, receiver bool) (*GeneratedSource, error) {
	p, err := validate(decls, nil)
	if err != nil {
		return nil, err
	}
	return generate(p, collectArrays(p), receiver)
}

// generate emits the source in declaration-before-use order: preamble,
// struct definitions, array forward declarations, struct converters, array
// routines, then one extern declaration and trampoline per function.
func generate(p *plan, arrays []*arrayRoutine, receiver bool) (*GeneratedSource, error) {
	g := &cgen{plan: p, receiver: receiver}
	data := sourceData{Version: codegenVersion}

	for _, l := range p.layouts() {
		data.Structs = append(data.Structs, g.structDef(l))
		data.Converters = append(data.Converters, g.structConverters(l))
	}
	for _, a := range arrays {
		data.ArrayDecls = append(data.ArrayDecls, g.arrayDecls(a))
		data.ArrayRoutines = append(data.ArrayRoutines, g.arrayRoutines(a))
	}

	out := &GeneratedSource{Arrays: len(arrays)}
	for _, f := range p.funcs {
		sym := trampolinePrefix + f.Sym
		data.Functions = append(data.Functions, g.function(f, sym))
		out.Trampolines = append(out.Trampolines, Trampoline{Name: f.Sym, Symbol: sym})
	}
	for _, l := range p.layouts() {
		name := accessorName(l)
		sym := trampolinePrefix + name
		data.Functions = append(data.Functions, g.accessor(l, sym))
		out.Trampolines = append(out.Trampolines, Trampoline{Name: name, Symbol: sym})
	}

	text, err := render(data)
	if err != nil {
		return nil, err
	}
	out.Text = text
	log.Debugf("generated %d bytes of binding source (%d functions, %d structs, %d arrays)",
		len(text), len(p.funcs), p.structs.Size(), len(arrays))
	return out, nil
}

type sourceData struct {
	Version       string
	Structs       []string
	ArrayDecls    []string
	Converters    []string
	ArrayRoutines []string
	Functions     []string
}

func render(data sourceData) (string, error) {
	tmpl, err := template.New("binding").Parse(sourceTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}

type cgen struct {
	plan     *plan
	receiver bool
}

// baseCType is the C type of the innermost element of d.
func (g *cgen) baseCType(d Descriptor) string {
	base, _ := flatten(d)
	switch b := base.(type) {
	case PrimDesc:
		return b.Prim.CType()
	case StructRef:
		return "struct " + b.Name
	}
	panic(fmt.Sprintf("ffi: unhandled descriptor %T", base))
}

// declarator renders "T name[d1][d2]".
func (g *cgen) declarator(d Descriptor, name string) string {
	_, dims := flatten(d)
	var sb strings.Builder
	sb.WriteString(g.baseCType(d))
	sb.WriteString(" ")
	sb.WriteString(name)
	for _, n := range dims {
		fmt.Fprintf(&sb, "[%d]", n)
	}
	return sb.String()
}

// paramCType is the type a descriptor has in a native signature: arrays
// decay to a pointer to their base element.
func (g *cgen) paramCType(d Descriptor) string {
	if _, ok := d.(ArrayDesc); ok {
		return g.baseCType(d) + "*"
	}
	return g.baseCType(d)
}

// toNative is an expression converting the boxed value src to d. Arrays are
// handled by the callers because they need a destination buffer.
func (g *cgen) toNative(d Descriptor, src string) string {
	switch d := d.(type) {
	case PrimDesc:
		switch {
		case d.Prim == PrimBool:
			return "(_Bool)lm_unbox_bool(" + src + ")"
		case d.Prim.IsInteger() && d.Prim.IsSigned():
			return "(" + d.Prim.CType() + ")lm_unbox_int(" + src + ")"
		case d.Prim.IsInteger():
			return "(" + d.Prim.CType() + ")lm_unbox_uint(" + src + ")"
		case d.Prim.IsFloat():
			return "(" + d.Prim.CType() + ")lm_unbox_double(" + src + ")"
		case d.Prim == PrimCharPtr:
			return "(char*)lm_raw_ptr(" + src + ")"
		case d.Prim == PrimVoidPtr:
			return "lm_raw_ptr(" + src + ")"
		}
	case StructRef:
		return "lm_to_" + d.Name + "(" + src + ")"
	}
	panic(fmt.Sprintf("ffi: no native conversion for %s", d))
}

// fromNative is an expression boxing the native expression expr of type d.
func (g *cgen) fromNative(d Descriptor, expr string) string {
	switch d := d.(type) {
	case PrimDesc:
		switch {
		case d.Prim == PrimBool:
			return "lm_box_bool(" + expr + ")"
		case d.Prim.IsInteger():
			return "lm_box_int((long long)(" + expr + "))"
		case d.Prim.IsFloat():
			return "lm_box_double((double)(" + expr + "))"
		case d.Prim == PrimCharPtr:
			return "lm_alloc_str(" + expr + ")"
		case d.Prim == PrimVoidPtr:
			return "lm_alloc_ptr(" + expr + ")"
		case d.Prim == PrimVoid:
			return "LM_NONE"
		}
	case StructRef:
		return "lm_from_" + d.Name + "(" + expr + ")"
	case ArrayDesc:
		return "lm_from_arr_" + mangle(d) + "(" + expr + ")"
	}
	panic(fmt.Sprintf("ffi: no boxing for %s", d))
}

func (g *cgen) structDef(l *StructLayout) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "struct %s {\n", l.Name)
	for i, f := range l.Fields {
		fmt.Fprintf(&sb, "\t%s;\n", g.declarator(f.Type, fieldName(f, i)))
	}
	sb.WriteString("};\n")
	return sb.String()
}

func (g *cgen) structConverters(l *StructLayout) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "static struct %s lm_to_%s(lm_value v) {\n", l.Name, l.Name)
	fmt.Fprintf(&sb, "\tstruct %s s;\n", l.Name)
	sb.WriteString("\tlm_value* slots = (lm_value*)lm_raw_ptr(v);\n")
	for i, f := range l.Fields {
		name := fieldName(f, i)
		if a, ok := f.Type.(ArrayDesc); ok {
			fmt.Fprintf(&sb, "\tlm_to_arr_%s(slots[%d], (%s*)s.%s);\n", mangle(a), i, g.baseCType(a), name)
			continue
		}
		fmt.Fprintf(&sb, "\ts.%s = %s;\n", name, g.toNative(f.Type, fmt.Sprintf("slots[%d]", i)))
	}
	sb.WriteString("\treturn s;\n}\n\n")

	fmt.Fprintf(&sb, "static lm_value lm_from_%s(struct %s s) {\n", l.Name, l.Name)
	fmt.Fprintf(&sb, "\tlm_value v = lm_alloc_object(%d);\n", len(l.Fields))
	sb.WriteString("\tlm_value* slots = (lm_value*)lm_raw_ptr(v);\n")
	for i, f := range l.Fields {
		name := fieldName(f, i)
		expr := "s." + name
		if a, ok := f.Type.(ArrayDesc); ok {
			expr = fmt.Sprintf("(%s*)s.%s", g.baseCType(a), name)
		}
		fmt.Fprintf(&sb, "\tslots[%d] = %s;\n", i, g.fromNative(f.Type, expr))
	}
	sb.WriteString("\treturn v;\n}\n\n")

	fmt.Fprintf(&sb, "static lm_value lm_deref_%s(lm_value p) {\n", l.Name)
	fmt.Fprintf(&sb, "\treturn lm_from_%s(*(struct %s*)lm_raw_ptr(p));\n}\n", l.Name, l.Name)
	return sb.String()
}

func (g *cgen) arrayDecls(a *arrayRoutine) string {
	base := g.baseCType(a.Desc)
	return fmt.Sprintf("static void lm_to_arr_%s(lm_value v, %s* out);\nstatic lm_value lm_from_arr_%s(%s* in);\n",
		a.Ident, base, a.Ident, base)
}

func (g *cgen) arrayRoutines(a *arrayRoutine) string {
	base := g.baseCType(a.Desc)
	n := a.Desc.Len
	var sb strings.Builder

	fmt.Fprintf(&sb, "static void lm_to_arr_%s(lm_value v, %s* out) {\n", a.Ident, base)
	sb.WriteString("\tlm_value* slots = (lm_value*)lm_raw_ptr(v);\n\tint i;\n")
	fmt.Fprintf(&sb, "\tfor (i = 0; i < %d; i++) {\n", n)
	if inner, ok := a.Desc.Elem.(ArrayDesc); ok {
		fmt.Fprintf(&sb, "\t\tlm_to_arr_%s(slots[i], out + i * %d);\n", mangle(inner), stride(inner))
	} else {
		fmt.Fprintf(&sb, "\t\tout[i] = %s;\n", g.toNative(a.Desc.Elem, "slots[i]"))
	}
	sb.WriteString("\t}\n}\n\n")

	fmt.Fprintf(&sb, "static lm_value lm_from_arr_%s(%s* in) {\n", a.Ident, base)
	fmt.Fprintf(&sb, "\tlm_value v = lm_alloc_list(%d);\n", n)
	sb.WriteString("\tlm_value* slots = (lm_value*)lm_raw_ptr(v);\n\tint i;\n")
	fmt.Fprintf(&sb, "\tfor (i = 0; i < %d; i++) {\n", n)
	if inner, ok := a.Desc.Elem.(ArrayDesc); ok {
		fmt.Fprintf(&sb, "\t\tslots[i] = lm_from_arr_%s(in + i * %d);\n", mangle(inner), stride(inner))
	} else {
		fmt.Fprintf(&sb, "\t\tslots[i] = %s;\n", g.fromNative(a.Desc.Elem, "in[i]"))
	}
	sb.WriteString("\t}\n\treturn v;\n}\n")
	return sb.String()
}

func (g *cgen) function(f *FuncDecl, sym string) string {
	var sb strings.Builder

	params := make([]string, len(f.Args))
	for i, a := range f.Args {
		params[i] = g.paramCType(a)
	}
	paramList := "void"
	if len(params) > 0 {
		paramList = strings.Join(params, ", ")
	}
	ret := g.paramCType(f.Ret)
	fmt.Fprintf(&sb, "extern %s %s(%s);\n\n", ret, f.Sym, paramList)

	fmt.Fprintf(&sb, "lm_value %s(lm_value* args) {\n", sym)
	offset := 0
	if g.receiver {
		offset = 1
	}
	var body strings.Builder
	callArgs := make([]string, len(f.Args))
	for i, a := range f.Args {
		local := fmt.Sprintf("a%d", i)
		src := fmt.Sprintf("args[%d]", i+offset)
		callArgs[i] = local
		if arr, ok := a.(ArrayDesc); ok {
			fmt.Fprintf(&body, "%s %s[%d];\n", g.baseCType(arr), local, stride(arr))
			fmt.Fprintf(&body, "lm_to_arr_%s(%s, %s);\n", mangle(arr), src, local)
			continue
		}
		fmt.Fprintf(&body, "%s %s = %s;\n", g.baseCType(a), local, g.toNative(a, src))
	}
	call := fmt.Sprintf("%s(%s)", f.Sym, strings.Join(callArgs, ", "))
	if p, ok := f.Ret.(PrimDesc); ok && p.Prim == PrimVoid {
		fmt.Fprintf(&body, "%s;\nreturn LM_NONE;\n", call)
	} else {
		fmt.Fprintf(&body, "%s r = %s;\n", ret, call)
		fmt.Fprintf(&body, "return %s;\n", g.fromNative(f.Ret, "r"))
	}
	sb.WriteString(indentCode(body.String(), "\t"))
	sb.WriteString("}\n")
	return sb.String()
}

func (g *cgen) accessor(l *StructLayout, sym string) string {
	index := 0
	if g.receiver {
		index = 1
	}
	return fmt.Sprintf("lm_value %s(lm_value* args) {\n\treturn lm_deref_%s(args[%d]);\n}\n", sym, l.Name, index)
}

func accessorName(l *StructLayout) string {
	return config.PtrToPrefix + l.Name
}

// indentCode adds a prefix to each line of code.
func indentCode(code, prefix string) string {
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	var result strings.Builder
	for i, line := range lines {
		if i > 0 {
			result.WriteString("\n")
		}
		if line != "" {
			result.WriteString(prefix)
			result.WriteString(line)
		}
	}
	result.WriteString("\n")
	return result.String()
}

const sourceTemplate = `/* Code generated by loom bindgen {{.Version}}. DO NOT EDIT. */
typedef unsigned long long lm_value;
typedef unsigned long lm_usize;
typedef union { lm_value bits; double d; } lm_word;

#define LM_NONE    0x7FFC000000000000ULL
#define LM_FALSE   0x7FFC000100000000ULL
#define LM_TRUE    0x7FFC000100000001ULL
#define LM_INT_TAG 0x7FFD000000000000ULL
#define LM_PAYLOAD 0x0000FFFFFFFFFFFFULL

extern void lm_release(lm_value v);
extern void* lm_raw_ptr(lm_value v);
extern lm_value lm_alloc_object(int n);
extern lm_value lm_alloc_list(int n);
extern lm_value lm_alloc_ptr(void* p);
extern lm_value lm_alloc_str(const char* s);

static lm_value lm_box_int(long long v) { return LM_INT_TAG | ((lm_value)v & LM_PAYLOAD); }
static long long lm_unbox_int(lm_value v) { return ((long long)((v & LM_PAYLOAD) << 16)) >> 16; }
static unsigned long long lm_unbox_uint(lm_value v) { return v & LM_PAYLOAD; }
static lm_value lm_box_double(double d) { lm_word w; w.d = d; return w.bits; }
static double lm_unbox_double(lm_value v) { lm_word w; w.bits = v; return w.d; }
static lm_value lm_box_bool(int b) { return b ? LM_TRUE : LM_FALSE; }
static int lm_unbox_bool(lm_value v) { return v == LM_TRUE; }
{{- range .Structs}}

{{.}}
{{- end}}
{{- if .ArrayDecls}}
{{range .ArrayDecls}}
{{.}}
{{- end}}
{{- end}}
{{- range .Converters}}

{{.}}
{{- end}}
{{- range .ArrayRoutines}}

{{.}}
{{- end}}
{{- range .Functions}}

{{.}}
{{- end}}
`
