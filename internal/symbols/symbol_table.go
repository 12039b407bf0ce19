// symbols/symbol_table.go - Symbol table entry point
//
// The table is split into focused files:
// - symbol_table_core.go: Symbol, kinds, visibility
// - symbol_table_init.go: per-table prelude
// - symbol_table_operations.go: scopes, declare, lookup
// - symbol_table_resolution.go: qualified name resolution
// - symbol_table_aliases.go: module symbols and import aliases
// - symbol_table_host.go: modules provided by the embedder
// - errors.go: DuplicateSymbolError, UnresolvedSymbolError

package symbols

import (
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("loom.symbols")

// Table owns every symbol of one compilation session. Symbols are addressed
// by SymbolID; module scopes hang off a prelude scope private to the table.
type Table struct {
	symbols []*Symbol
	prelude *Scope
	modules map[string]*Scope
	order   []string // module names in registration order
}

// NewTable creates an empty table with its own prelude.
func NewTable() *Table {
	t := &Table{modules: make(map[string]*Scope)}
	t.prelude = &Scope{table: t, module: preludeModule(), scopeType: ScopePrelude, store: make(map[string]SymbolID)}
	t.initBuiltins()
	return t
}

// Symbol returns the symbol with the given id. It panics on ids the table
// never issued.
func (t *Table) Symbol(id SymbolID) *Symbol {
	return t.symbols[id]
}

// Len returns the number of symbols issued so far, prelude included.
func (t *Table) Len() int {
	return len(t.symbols)
}

// Prelude returns the built-in scope.
func (t *Table) Prelude() *Scope {
	return t.prelude
}

func (t *Table) newSymbol(sym *Symbol) SymbolID {
	sym.ID = SymbolID(len(t.symbols))
	t.symbols = append(t.symbols, sym)
	return sym.ID
}
