package modules

import (
	"fmt"
	"sort"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/tliron/commonlog"

	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/token"
)

var log = commonlog.GetLogger("loom.modules")

// Graph is the module load graph of one compilation session.
type Graph struct {
	parser    Parser
	resolvers []Resolver

	modules map[ModuleID]*Module
	order   []*Module // discovery order, breadth-first from the roots
	names   map[string]ModuleID
	queued  map[ModuleID]bool
}

// NewGraph creates a graph that parses text sources with parser and
// consults resolvers by priority.
func NewGraph(parser Parser, resolvers ...Resolver) *Graph {
	g := &Graph{parser: parser}
	for _, r := range resolvers {
		g.AddResolver(r)
	}
	g.Reset()
	return g
}

// AddResolver adds a resolver to the chain.
func (g *Graph) AddResolver(r Resolver) {
	g.resolvers = append(g.resolvers, r)
	sort.SliceStable(g.resolvers, func(i, j int) bool {
		return g.resolvers[i].Priority() < g.resolvers[j].Priority()
	})
}

// Reset forgets every module. Resolvers and parser are kept.
func (g *Graph) Reset() {
	g.modules = make(map[ModuleID]*Module)
	g.order = nil
	g.names = make(map[string]ModuleID)
	g.queued = make(map[ModuleID]bool)
}

func (g *Graph) Module(id ModuleID) (*Module, bool) {
	m, ok := g.modules[id]
	return m, ok
}

// ModuleByName finds a module by its namespace name.
func (g *Graph) ModuleByName(name string) (*Module, bool) {
	id, ok := g.names[name]
	if !ok {
		return nil, false
	}
	return g.modules[id], true
}

// Modules returns all modules in breadth-first discovery order.
func (g *Graph) Modules() []*Module {
	out := make([]*Module, len(g.order))
	copy(out, g.order)
	return out
}

func (g *Graph) Len() int {
	return len(g.order)
}

func (g *Graph) resolve(specifier string, from *Module) (Resolved, Resolver, error) {
	var firstErr error
	for _, r := range g.resolvers {
		if !r.CanResolve(specifier, from) {
			continue
		}
		res, err := r.Resolve(specifier, from)
		if err == nil {
			return res, r, nil
		}
		log.Debugf("resolver %T failed for %q: %v", r, specifier, err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = &ModuleNotFoundError{Specifier: specifier}
	}
	return Resolved{}, nil, firstErr
}

// ImportModule resolves specifier as imported by from at pos and registers
// the module in the graph without loading it. Failures are *ImportError
// values carrying the import location.
func (g *Graph) ImportModule(specifier string, from *Module, pos token.Position) (ModuleID, error) {
	var fromID ModuleID
	if from != nil {
		fromID = from.ID
	}
	res, r, err := g.resolve(specifier, from)
	if err != nil {
		return "", &ImportError{Specifier: specifier, From: fromID, Pos: pos, Err: err}
	}
	if m, ok := g.modules[res.ID]; ok {
		return m.ID, nil
	}

	m := &Module{
		ID:         res.ID,
		Name:       g.uniqueName(moduleName(res.Origin)),
		Origin:     res.Origin,
		Remote:     isURL(res.Origin),
		specifier:  specifier,
		resolver:   r,
		importedAt: pos,
		importer:   fromID,
	}
	g.modules[m.ID] = m
	g.names[m.Name] = m.ID
	g.order = append(g.order, m)
	log.Debugf("registered module %s as %s", m.ID, m.Name)
	return m.ID, nil
}

func (g *Graph) uniqueName(base string) string {
	name := base
	for i := 2; ; i++ {
		if _, taken := g.names[name]; !taken {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}

// LoadAll loads root and everything it transitively imports, breadth-first.
// Every module reachable from root is Loaded or Failed on return. Failures
// do not stop the walk; they are returned together as diagnostics located at
// the import that requested the failing module.
func (g *Graph) LoadAll(root string) (*Module, error) {
	var errs diagnostics.List

	rootID, err := g.ImportModule(root, nil, token.Position{})
	if err != nil {
		errs.Add(err.(*ImportError).Diagnostic())
		return nil, errs.Err()
	}

	queue := linkedlistqueue.New()
	g.enqueue(queue, rootID)

	for !queue.Empty() {
		v, _ := queue.Dequeue()
		m := g.modules[v.(ModuleID)]
		if m.State != Unloaded {
			continue
		}
		if err := g.load(m); err != nil {
			pos, importer := m.ImportedAt()
			ie := &ImportError{Specifier: m.specifier, From: importer, Pos: pos, Err: err}
			errs.Add(ie.Diagnostic())
			continue
		}

		for _, decl := range m.Program.Imports {
			depID, err := g.ImportModule(decl.Specifier, m, decl.At)
			if err != nil {
				errs.Add(err.(*ImportError).Diagnostic())
				continue
			}
			m.Imports = append(m.Imports, Import{Decl: decl, Target: depID})
			if g.modules[depID].State == Unloaded {
				g.enqueue(queue, depID)
			}
		}
	}

	return g.modules[rootID], errs.Err()
}

func (g *Graph) enqueue(q *linkedlistqueue.Queue, id ModuleID) {
	if g.queued[id] {
		return
	}
	g.queued[id] = true
	q.Enqueue(id)
}

func (g *Graph) load(m *Module) error {
	m.State = Loading
	src, err := m.resolver.Load(m.ID)
	if err != nil {
		return g.fail(m, err)
	}

	prog := src.Program
	if prog == nil {
		if g.parser == nil {
			return g.fail(m, &ParseError{Module: m.ID, Err: fmt.Errorf("no parser configured")})
		}
		prog, err = g.parser.Parse(m.Origin, src.Text)
		if err != nil {
			return g.fail(m, &ParseError{Module: m.ID, Err: err})
		}
		if prog == nil {
			return g.fail(m, &ParseError{Module: m.ID, Err: fmt.Errorf("parser returned no program")})
		}
	}
	if prog.File == "" {
		prog.File = m.Origin
	}
	m.Program = prog
	m.State = Loaded
	log.Debugf("loaded module %s (%d imports, %d declarations)", m.Name, len(prog.Imports), len(prog.Decls))
	return nil
}

func (g *Graph) fail(m *Module, err error) error {
	m.State = Failed
	m.Err = err
	return err
}
