package pipeline

import (
	"fmt"
	"os"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/google/uuid"

	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/config"
	"github.com/funvibe/loom/internal/modules"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/typesystem"
)

// Session is the per-runtime compilation state. Nothing in the compiler is
// global: two sessions never share symbols, modules or signatures.
type Session struct {
	ID       uuid.UUID
	Settings *config.Settings

	Table      *symbols.Table
	Graph      *modules.Graph
	Signatures *typesystem.Signatures

	// Memory serves sources registered by the embedder. It is always the
	// first resolver consulted.
	Memory *modules.MemoryResolver

	cache *modules.SourceCache
	hosts *linkedhashmap.Map // module name -> []symbols.HostMember
}

// NewSession creates a session. A nil settings uses the defaults. The
// parser turns source text into syntax trees; it may be nil when every
// module is registered pre-parsed.
func NewSession(settings *config.Settings, parser modules.Parser) (*Session, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	s := &Session{
		ID:       uuid.New(),
		Settings: settings,
		Memory:   modules.NewMemoryResolver(),
		hosts:    linkedhashmap.New(),
	}

	baseDir := settings.Dir
	if baseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			baseDir = wd
		}
	}
	resolvers := []modules.Resolver{
		s.Memory,
		modules.NewFileResolver(baseDir, settings.ResolvedRoots()...),
	}
	if settings.RemoteAllowed() {
		if path := settings.ResolvedCachePath(); path != "" {
			cache, err := modules.OpenSourceCache(path)
			if err != nil {
				return nil, fmt.Errorf("opening module cache: %w", err)
			}
			s.cache = cache
		}
		resolvers = append(resolvers, modules.NewHTTPResolver(settings.RemoteTimeout(), s.cache))
	}

	s.Graph = modules.NewGraph(parser, resolvers...)
	s.Reset()
	log.Infof("session %s created (remote=%t)", s.ID, settings.RemoteAllowed())
	return s, nil
}

// Reset invalidates all compilation state so the next Compile starts from
// scratch. Registered memory sources, host modules and resolvers are kept.
func (s *Session) Reset() {
	s.Table = symbols.NewTable()
	s.Signatures = typesystem.NewSignatures()
	s.Graph.Reset()
	it := s.hosts.Iterator()
	for it.Next() {
		members := it.Value().([]symbols.HostMember)
		if err := s.Table.DeclareHost(it.Key().(string), members); err != nil {
			// AddHost already declared the same members successfully.
			panic(fmt.Sprintf("redeclaring host module %s: %v", it.Key(), err))
		}
		for _, m := range members {
			if fn, ok := m.Type.(typesystem.TFunc); ok {
				s.Signatures.Intern(fn)
			}
		}
	}
}

// AddHost registers a module provided by the embedder. Its members are
// visible to every compiled module as name.member without an import.
func (s *Session) AddHost(name string, members []symbols.HostMember) error {
	if _, ok := s.hosts.Get(name); ok {
		return &symbols.DuplicateSymbolError{Name: name}
	}
	if err := symbols.NewTable().DeclareHost(name, members); err != nil {
		return err
	}
	s.hosts.Put(name, members)
	return nil
}

// RemoveHost drops a host module registered with AddHost.
func (s *Session) RemoveHost(name string) {
	s.hosts.Remove(name)
}

// Hosts returns the registered host module names in registration order.
func (s *Session) Hosts() []string {
	out := make([]string, 0, s.hosts.Size())
	for _, k := range s.hosts.Keys() {
		out = append(out, k.(string))
	}
	return out
}

// AddSource registers an in-memory module under name.
func (s *Session) AddSource(name, text string) {
	s.Memory.AddText(name, text)
}

// AddProgram registers an already parsed in-memory module under name.
func (s *Session) AddProgram(name string, prog *ast.Program) {
	s.Memory.Add(name, modules.Source{Program: prog})
}

// Close releases the source cache.
func (s *Session) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

// Result is a successfully compiled unit.
type Result struct {
	SessionID  uuid.UUID
	Root       *modules.Module
	Modules    []*modules.Module
	Table      *symbols.Table
	TypeMap    map[ast.Node]typesystem.Type
	Signatures *typesystem.Signatures
	// Order lists module variables in initialization order.
	Order []*symbols.Symbol
}

// Compile loads root and everything it imports, analyzes the whole graph and
// computes the initialization order. Any previous compilation state is
// discarded first, so a failed compile leaves the session usable. The error
// is a *diagnostics.Errors.
func (s *Session) Compile(root string) (*Result, error) {
	s.Reset()
	ctx := DefaultPipeline().Run(NewPipelineContext(s, root))
	if err := ctx.Errors.Err(); err != nil {
		log.Debugf("session %s: compile of %s failed with %d diagnostics", s.ID, root, ctx.Errors.Len())
		return nil, err
	}
	return &Result{
		SessionID:  s.ID,
		Root:       ctx.RootModule,
		Modules:    s.Graph.Modules(),
		Table:      s.Table,
		TypeMap:    ctx.TypeMap,
		Signatures: s.Signatures,
		Order:      ctx.Order,
	}, nil
}
