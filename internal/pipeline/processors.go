package pipeline

import (
	"github.com/funvibe/loom/internal/analyzer"
)

// LoaderProcessor loads the root module and everything it imports.
type LoaderProcessor struct{}

func (lp *LoaderProcessor) Process(ctx *PipelineContext) *PipelineContext {
	g := ctx.Session.Graph
	root, err := g.LoadAll(ctx.Root)
	ctx.RootModule = root
	if err != nil {
		ctx.AddError(err)
	}
	log.Debugf("session %s: %d modules reachable from %s", ctx.Session.ID, g.Len(), ctx.Root)
	return ctx
}

// UnitBuilderProcessor turns loaded modules into analyzer units, in load
// order, with imports bound to module namespace names.
type UnitBuilderProcessor struct{}

func (ub *UnitBuilderProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Failed() {
		return ctx
	}
	g := ctx.Session.Graph
	for _, m := range g.Modules() {
		u := &analyzer.Unit{Module: m.Name, Program: m.Program}
		for _, imp := range m.Imports {
			target, ok := g.Module(imp.Target)
			if !ok {
				continue
			}
			u.Imports = append(u.Imports, analyzer.Binding{Decl: imp.Decl, Target: target.Name})
		}
		ctx.Units = append(ctx.Units, u)
	}
	return ctx
}

// SemanticAnalyzerProcessor runs declaration scanning, resolution, type
// checking and initializer ordering over all units together.
type SemanticAnalyzerProcessor struct{}

func (sap *SemanticAnalyzerProcessor) Process(ctx *PipelineContext) *PipelineContext {
	// Analyzing a partial graph only produces follow-on errors.
	if ctx.Failed() || len(ctx.Units) == 0 {
		return ctx
	}
	a := analyzer.New(ctx.Session.Table, ctx.Session.Signatures)
	if err := a.Analyze(ctx.Units); err != nil {
		ctx.AddError(err)
	}
	ctx.TypeMap = a.TypeMap
	ctx.Order = a.Order
	return ctx
}

// DefaultPipeline is the full compile: load, build units, analyze.
func DefaultPipeline() *Pipeline {
	return New(
		&LoaderProcessor{},
		&UnitBuilderProcessor{},
		&SemanticAnalyzerProcessor{},
	)
}
