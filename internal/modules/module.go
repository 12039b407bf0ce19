package modules

import (
	"fmt"

	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/token"
)

// ModuleID is the canonical identity of a module: an absolute file path, a
// URL, or "mem:<name>" for in-memory sources.
type ModuleID string

type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Import is an edge of the load graph.
type Import struct {
	Decl   *ast.ImportDecl
	Target ModuleID
}

// Module is one compilation unit in the load graph.
type Module struct {
	ID     ModuleID
	Name   string // namespace used in the symbol table, unique per graph
	Origin string // path or URL the source came from
	State  LoadState
	Remote bool

	Program *ast.Program
	Imports []Import

	// Err is set when State is Failed.
	Err error

	resolver  Resolver
	specifier string
	// importedAt is where the module was first requested.
	importedAt token.Position
	importer   ModuleID
}

// ImportedAt returns the import that first requested the module and the
// requesting module. Root modules return an invalid position.
func (m *Module) ImportedAt() (token.Position, ModuleID) {
	return m.importedAt, m.importer
}

// Dependencies returns the ids of imported modules in import order.
func (m *Module) Dependencies() []ModuleID {
	out := make([]ModuleID, 0, len(m.Imports))
	for _, imp := range m.Imports {
		out = append(out, imp.Target)
	}
	return out
}

func (m *Module) String() string {
	return fmt.Sprintf("%s (%s, %s)", m.Name, m.ID, m.State)
}

// Source is what a loader produces: either text for the parser, or a
// program that was already parsed by the embedder.
type Source struct {
	Text    string
	Program *ast.Program
}

// Parser is the external parser collaborator.
type Parser interface {
	Parse(file, text string) (*ast.Program, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(file, text string) (*ast.Program, error)

func (f ParserFunc) Parse(file, text string) (*ast.Program, error) {
	return f(file, text)
}
