package analyzer

import (
	"fmt"
	"path"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/config"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/token"
	"github.com/funvibe/loom/internal/typesystem"
)

var log = commonlog.GetLogger("loom.analyzer")

// Unit is one loaded module handed to the analyzer.
type Unit struct {
	Module  string // namespace name in the symbol table
	Program *ast.Program
	Imports []Binding
}

// Binding connects an import declaration to the module it loaded.
type Binding struct {
	Decl   *ast.ImportDecl
	Target string // namespace name of the imported module
}

// Analyzer performs semantic analysis over a set of modules sharing one
// symbol table.
type Analyzer struct {
	table   *symbols.Table
	sigs    *typesystem.Signatures
	TypeMap map[ast.Node]typesystem.Type

	units []*Unit

	// declaration bookkeeping filled by ScanDeclarations
	declOf   map[ast.Node]symbols.SymbolID
	varDecls map[symbols.SymbolID]*ast.VarDecl
	funcs    []symbols.SymbolID
	types    []symbols.SymbolID
	vars     []symbols.SymbolID // module-level, in declaration order

	sigOf     map[*ast.FuncDecl]typesystem.TFunc
	typeState map[symbols.SymbolID]resolveState
	varState  map[symbols.SymbolID]resolveState
	anon      int

	// refs maps identifier and selector nodes to the symbol they resolved to.
	// The initializer graph is built from it after bodies are checked.
	refs map[ast.Node]symbols.SymbolID

	// Calls records the interned signature selected for each call of a
	// declared function.
	Calls map[*ast.CallExpr]*typesystem.Signature

	Order []*symbols.Symbol // initialization order, set by OrderInitializers

	errorSet map[string]bool // Key: "file:line:col:code" for deduplication
	errors   diagnostics.List
}

type resolveState int

const (
	unresolved resolveState = iota
	resolving
	resolved
)

// New creates an analyzer over table. sigs may be shared with the native
// binding generator so identical signatures intern to one record.
func New(table *symbols.Table, sigs *typesystem.Signatures) *Analyzer {
	if sigs == nil {
		sigs = typesystem.NewSignatures()
	}
	return &Analyzer{
		table:     table,
		sigs:      sigs,
		TypeMap:   make(map[ast.Node]typesystem.Type),
		declOf:    make(map[ast.Node]symbols.SymbolID),
		varDecls:  make(map[symbols.SymbolID]*ast.VarDecl),
		sigOf:     make(map[*ast.FuncDecl]typesystem.TFunc),
		typeState: make(map[symbols.SymbolID]resolveState),
		varState:  make(map[symbols.SymbolID]resolveState),
		refs:      make(map[ast.Node]symbols.SymbolID),
		Calls:     make(map[*ast.CallExpr]*typesystem.Signature),
		errorSet:  make(map[string]bool),
	}
}

func (a *Analyzer) Table() *symbols.Table {
	return a.table
}

func (a *Analyzer) Signatures() *typesystem.Signatures {
	return a.sigs
}

// Analyze runs every pass: declaration scanning of all units, header
// resolution, body checking and initializer ordering. Diagnostics from all
// passes are collected; the returned error is a *diagnostics.Errors.
func (a *Analyzer) Analyze(units []*Unit) error {
	a.ScanDeclarations(units)
	a.ResolveHeaders()
	a.CheckBodies()
	a.OrderInitializers()
	log.Debugf("analyzed %d modules: %d variables, %d functions, %d types, %d diagnostics",
		len(units), len(a.vars), len(a.funcs), len(a.types), a.errors.Len())
	return a.Err()
}

// Err returns the collected diagnostics, or nil.
func (a *Analyzer) Err() error {
	return a.errors.Err()
}

// addError adds an error, deduplicating by position and code.
func (a *Analyzer) addError(err *diagnostics.DiagnosticError) {
	key := fmt.Sprintf("%s:%d:%d:%s", err.Pos.File, err.Pos.Line, err.Pos.Column, err.Code)
	if a.errorSet[key] {
		return
	}
	a.errorSet[key] = true
	a.errors.Add(err)
}

func (a *Analyzer) errorf(code diagnostics.ErrorCode, pos token.Position, format string, args ...interface{}) *diagnostics.DiagnosticError {
	d := diagnostics.NewError(code, pos, format, args...)
	a.addError(d)
	return d
}

// reportSymbolError turns symbol table errors into diagnostics.
func (a *Analyzer) reportSymbolError(err error, pos token.Position) {
	switch e := err.(type) {
	case *symbols.DuplicateSymbolError:
		d := diagnostics.Wrap(diagnostics.ErrD001, pos, e)
		if e.Previous.IsValid() {
			d.WithNote(e.Previous, "previous declaration of %s", e.Name)
		}
		a.addError(d)
	case *symbols.UnresolvedSymbolError:
		a.addError(diagnostics.Wrap(diagnostics.ErrD002, pos, e))
	default:
		a.addError(diagnostics.Wrap(diagnostics.ErrD002, pos, err))
	}
}

// reportTypeError turns checker errors into diagnostics.
func (a *Analyzer) reportTypeError(err error, pos token.Position) {
	switch e := err.(type) {
	case *typesystem.TypeMismatchError:
		if e.Pos.IsValid() {
			pos = e.Pos
		}
		a.addError(diagnostics.Wrap(diagnostics.ErrT001, pos, e))
	case *typesystem.ArityMismatchError:
		a.addError(diagnostics.Wrap(diagnostics.ErrT002, pos, e))
	case *typesystem.NotCallableError:
		a.addError(diagnostics.Wrap(diagnostics.ErrT003, pos, e))
	default:
		a.addError(diagnostics.Wrap(diagnostics.ErrT001, pos, err))
	}
}

// bindingName is the name an import is bound under: the alias, or the last
// path segment of the specifier without its source extension.
func bindingName(decl *ast.ImportDecl) string {
	if decl.Alias != "" {
		return decl.Alias
	}
	base := path.Base(strings.TrimRight(decl.Specifier, "/"))
	for _, ext := range config.SourceFileExtensions {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

func visibility(exported bool) symbols.Visibility {
	if exported {
		return symbols.Exported
	}
	return symbols.Private
}
