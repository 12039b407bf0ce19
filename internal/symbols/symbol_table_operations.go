package symbols

import (
	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/token"
	"github.com/funvibe/loom/internal/typesystem"
)

type ScopeType int

const (
	ScopePrelude  ScopeType = iota // Built-in symbols
	ScopeModule                    // Module top-level
	ScopeFunction
	ScopeBlock
)

// Scope maps names to symbols and chains to an outer scope.
type Scope struct {
	table     *Table
	module    string
	scopeType ScopeType
	store     map[string]SymbolID
	order     []SymbolID
	outer     *Scope
}

// ModuleScope returns the top-level scope of module, creating it on first use.
func (t *Table) ModuleScope(module string) *Scope {
	if s, ok := t.modules[module]; ok {
		return s
	}
	s := &Scope{
		table:     t,
		module:    module,
		scopeType: ScopeModule,
		store:     make(map[string]SymbolID),
		outer:     t.prelude,
	}
	t.modules[module] = s
	t.order = append(t.order, module)
	return s
}

// HasModule reports whether module has a scope.
func (t *Table) HasModule(module string) bool {
	_, ok := t.modules[module]
	return ok
}

// Modules returns module names in registration order.
func (t *Table) Modules() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// NewEnclosedScope opens a function or block scope inside outer.
func NewEnclosedScope(outer *Scope, scopeType ScopeType) *Scope {
	return &Scope{
		table:     outer.table,
		module:    outer.module,
		scopeType: scopeType,
		store:     make(map[string]SymbolID),
		outer:     outer,
	}
}

func (s *Scope) Outer() *Scope {
	return s.outer
}

func (s *Scope) Module() string {
	return s.module
}

func (s *Scope) Type() ScopeType {
	return s.scopeType
}

func (s *Scope) IsModuleScope() bool {
	return s.scopeType == ScopeModule
}

func (s *Scope) define(sym *Symbol) SymbolID {
	sym.Parent = NoSymbol
	id := s.table.newSymbol(sym)
	s.store[sym.Name] = id
	s.order = append(s.order, id)
	return id
}

// Declare adds name to this scope. It fails with *DuplicateSymbolError when
// the name already exists in this scope; outer scopes may be shadowed.
func (s *Scope) Declare(name string, kind Kind, pos token.Position) (SymbolID, error) {
	if prev, ok := s.store[name]; ok {
		return NoSymbol, &DuplicateSymbolError{
			Name:     name,
			Module:   s.module,
			Pos:      pos,
			Previous: s.table.symbols[prev].Pos,
		}
	}
	return s.define(&Symbol{
		Name:   name,
		Module: s.module,
		Kind:   kind,
		Pos:    pos,
		Local:  s.scopeType == ScopeFunction || s.scopeType == ScopeBlock,
	}), nil
}

// Declare adds a top-level symbol to module.
func (t *Table) Declare(module, name string, kind Kind, pos token.Position) (SymbolID, error) {
	return t.ModuleScope(module).Declare(name, kind, pos)
}

// DeclareFunction declares a function or, when a function with the same name
// already exists in the module, records another declaration on it. The
// returned bool is true for a fresh symbol. Signatures are compared later by
// AddOverload once parameter types are resolved.
func (t *Table) DeclareFunction(module, name string, pos token.Position, decl ast.Node) (SymbolID, bool, error) {
	scope := t.ModuleScope(module)
	if prev, ok := scope.store[name]; ok {
		sym := t.symbols[prev]
		if sym.Kind != FunctionSymbol {
			return NoSymbol, false, &DuplicateSymbolError{Name: name, Module: module, Pos: pos, Previous: sym.Pos}
		}
		sym.Decls = append(sym.Decls, decl)
		return prev, false, nil
	}
	id, err := scope.Declare(name, FunctionSymbol, pos)
	if err != nil {
		return NoSymbol, false, err
	}
	t.symbols[id].Decls = []ast.Node{decl}
	return id, true, nil
}

// AddOverload attaches a resolved signature to a function symbol. A
// signature identical to an existing overload is a duplicate declaration.
func (t *Table) AddOverload(id SymbolID, fn typesystem.TFunc, pos token.Position) error {
	sym := t.symbols[id]
	for _, o := range sym.Overloads {
		if typesystem.Equal(o, fn) {
			return &DuplicateSymbolError{Name: sym.Name, Module: sym.Module, Pos: pos, Previous: sym.Pos}
		}
	}
	sym.Overloads = append(sym.Overloads, fn)
	if len(sym.Overloads) == 1 {
		sym.Type = fn
	} else {
		log.Debugf("overload %d of %s: %s", len(sym.Overloads), sym.QualifiedName(), fn)
	}
	return nil
}

// DeclareField adds a field symbol under the type symbol owner.
func (t *Table) DeclareField(owner SymbolID, name string, typ typesystem.Type, pos token.Position) (SymbolID, error) {
	parent := t.symbols[owner]
	for _, m := range parent.Members {
		if prev := t.symbols[m]; prev.Name == name {
			return NoSymbol, &DuplicateSymbolError{Name: parent.Name + "." + name, Module: parent.Module, Pos: pos, Previous: prev.Pos}
		}
	}
	id := t.newSymbol(&Symbol{
		Name:       name,
		Module:     parent.Module,
		Kind:       FieldSymbol,
		Type:       typ,
		Visibility: parent.Visibility,
		Pos:        pos,
		Parent:     owner,
	})
	parent.Members = append(parent.Members, id)
	return id, nil
}

// FindWithScope returns the symbol and the scope where it was defined.
func (s *Scope) FindWithScope(name string) (*Symbol, *Scope, bool) {
	if id, ok := s.store[name]; ok {
		return s.table.symbols[id], s, true
	}
	if s.outer != nil {
		return s.outer.FindWithScope(name)
	}
	return nil, nil, false
}

func (s *Scope) Find(name string) (*Symbol, bool) {
	sym, _, ok := s.FindWithScope(name)
	return sym, ok
}

// FindLocal looks only at this scope.
func (s *Scope) FindLocal(name string) (*Symbol, bool) {
	id, ok := s.store[name]
	if !ok {
		return nil, false
	}
	return s.table.symbols[id], true
}

// Symbols returns this scope's symbols in declaration order.
func (s *Scope) Symbols() []*Symbol {
	out := make([]*Symbol, len(s.order))
	for i, id := range s.order {
		out[i] = s.table.symbols[id]
	}
	return out
}

// ModuleSymbols returns the top-level symbols of module in declaration order.
func (t *Table) ModuleSymbols(module string) []*Symbol {
	s, ok := t.modules[module]
	if !ok {
		return nil
	}
	return s.Symbols()
}

// ModuleVariables returns module-level variables in declaration order.
func (t *Table) ModuleVariables(module string) []*Symbol {
	var out []*Symbol
	for _, sym := range t.ModuleSymbols(module) {
		if sym.Kind == VariableSymbol {
			out = append(out, sym)
		}
	}
	return out
}

// GetAllNames returns all names visible from s (for error suggestions).
func (s *Scope) GetAllNames() []string {
	seen := make(map[string]bool)
	var names []string
	for sc := s; sc != nil; sc = sc.outer {
		for _, id := range sc.order {
			name := sc.table.symbols[id].Name
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
