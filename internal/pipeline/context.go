package pipeline

import (
	"github.com/funvibe/loom/internal/analyzer"
	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/modules"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/token"
	"github.com/funvibe/loom/internal/typesystem"
)

// PipelineContext carries one compilation through the stages.
type PipelineContext struct {
	Session *Session
	Root    string // specifier of the root module

	RootModule *modules.Module
	Units      []*analyzer.Unit

	TypeMap map[ast.Node]typesystem.Type
	Order   []*symbols.Symbol

	Errors diagnostics.List
}

func NewPipelineContext(s *Session, root string) *PipelineContext {
	return &PipelineContext{Session: s, Root: root}
}

// AddError records err as a diagnostic. A *diagnostics.Errors is flattened.
func (ctx *PipelineContext) AddError(err error) {
	switch e := err.(type) {
	case nil:
	case *diagnostics.Errors:
		for _, d := range e.List {
			ctx.Errors.Add(d)
		}
	case *diagnostics.DiagnosticError:
		ctx.Errors.Add(e)
	default:
		// Only the loader produces unstructured errors.
		ctx.Errors.Add(diagnostics.Wrap(diagnostics.ErrM004, token.Position{File: ctx.Root}, err))
	}
}

func (ctx *PipelineContext) Failed() bool {
	return ctx.Errors.Len() > 0
}
