// Package loom is the embedding API: it compiles module graphs and binds
// native libraries into a single runtime.
package loom

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/funvibe/loom/internal/ast"
	"github.com/funvibe/loom/internal/config"
	"github.com/funvibe/loom/internal/ffi"
	"github.com/funvibe/loom/internal/modules"
	"github.com/funvibe/loom/internal/pipeline"
	"github.com/funvibe/loom/internal/symbols"
	"github.com/funvibe/loom/internal/token"
	"github.com/funvibe/loom/internal/typesystem"
	"github.com/funvibe/loom/internal/vm"
)

var log = commonlog.GetLogger("loom.embed")

// Runtime wraps a compilation session and the native binder and provides a
// high-level embedding API. A Runtime is not safe for concurrent use.
type Runtime struct {
	settings   *config.Settings
	session    *pipeline.Session
	compiler   ffi.Compiler
	cache      *ffi.SourceCache
	binders    map[string]*ffi.Binder // by binding mode
	marshaller *Marshaller
	bindings   map[string]*ffi.Binding
}

// Options configures New. Zero values select the defaults.
type Options struct {
	Settings *config.Settings
	// Parser turns module source text into syntax trees. It may be nil when
	// every module is added with AddProgram.
	Parser modules.Parser
	// Compiler overrides the backend named by Settings.Bindings.Backend.
	Compiler ffi.Compiler
}

// New creates a runtime.
func New(opts Options) (*Runtime, error) {
	settings := opts.Settings
	if settings == nil {
		settings = config.DefaultSettings()
	}
	session, err := pipeline.NewSession(settings, opts.Parser)
	if err != nil {
		return nil, err
	}
	compiler := opts.Compiler
	if compiler == nil {
		if compiler, err = ffi.NewCompiler(settings.Bindings.Backend); err != nil {
			session.Close()
			return nil, err
		}
	}
	return &Runtime{
		settings:   settings,
		session:    session,
		compiler:   compiler,
		cache:      ffi.NewSourceCache(""),
		binders:    make(map[string]*ffi.Binder),
		marshaller: NewMarshaller(),
		bindings:   make(map[string]*ffi.Binding),
	}, nil
}

// NewFromDir creates a runtime configured by the nearest loom.yaml,
// loom.yml or loom.toml at or above dir, and sets up logging from it.
func NewFromDir(dir string, parser modules.Parser) (*Runtime, error) {
	settings := config.DefaultSettings()
	path, err := config.FindSettings(dir)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if settings, err = config.LoadSettings(path); err != nil {
			return nil, err
		}
		log.Debugf("using settings %s", path)
	} else {
		settings.Dir = dir
	}
	config.ConfigureLogging(settings.Log)
	return New(Options{Settings: settings, Parser: parser})
}

func (r *Runtime) Settings() *config.Settings { return r.settings }

// Session exposes the underlying compilation session.
func (r *Runtime) Session() *pipeline.Session { return r.session }

// AddSource registers an in-memory module.
func (r *Runtime) AddSource(name, text string) {
	r.session.AddSource(name, text)
}

// AddProgram registers an already parsed in-memory module.
func (r *Runtime) AddProgram(name string, prog *ast.Program) {
	r.session.AddProgram(name, prog)
}

// Compile loads, analyzes and orders root and everything it imports. Bound
// libraries are visible to the compiled modules as name.member. The error
// is a *diagnostics.Errors; the runtime stays usable after a failure.
func (r *Runtime) Compile(root string) (*pipeline.Result, error) {
	return r.session.Compile(root)
}

func (r *Runtime) binder(mode string) *ffi.Binder {
	if mode == "" {
		mode = r.settings.Bindings.Mode
	}
	b, ok := r.binders[mode]
	if !ok {
		b = ffi.NewBinder(ffi.Options{Mode: mode, Compiler: r.compiler, Cache: r.cache})
		r.binders[mode] = b
	}
	return b
}

// Bind binds decls against lib and registers the result under name, both as
// a value reachable with Get and Call and as a host module for Compile.
// Failures are *diagnostics.DiagnosticError values carrying the B001..B003
// codes; the ffi sentinel errors still match with errors.Is.
func (r *Runtime) Bind(name string, lib ffi.Library, decls []ffi.Decl) (vm.Value, error) {
	return r.bind(name, lib, decls, "")
}

// BindFile binds the declarations of a binding yaml file. A nil lib opens
// the library the file names.
func (r *Runtime) BindFile(name, path string, lib ffi.Library) (vm.Value, error) {
	bf, err := ffi.LoadBindingFile(path)
	if err != nil {
		return vm.NoneVal(), err
	}
	if lib == nil {
		if lib, err = ffi.OpenLibrary(bf.LibraryPath()); err != nil {
			return vm.NoneVal(), ffi.Diagnostic(err, token.Position{File: path})
		}
	}
	return r.bind(name, lib, bf.Declarations(), bf.Mode)
}

func (r *Runtime) bind(name string, lib ffi.Library, decls []ffi.Decl, mode string) (vm.Value, error) {
	pos := token.Position{File: name}
	if _, ok := r.bindings[name]; ok {
		return vm.NoneVal(), fmt.Errorf("%s is already bound", name)
	}
	b := r.binder(mode)
	binding, err := b.Bind(lib, decls)
	if err != nil {
		return vm.NoneVal(), ffi.Diagnostic(err, pos)
	}
	if err := r.session.AddHost(name, hostMembers(binding)); err != nil {
		vm.Release(binding.Value)
		return vm.NoneVal(), err
	}
	r.bindings[name] = binding
	log.Infof("bound %s (%d callables, handle %s)", name, len(binding.Functions), binding.Handle.ID)
	return binding.Value, nil
}

func hostMembers(b *ffi.Binding) []symbols.HostMember {
	var out []symbols.HostMember
	for _, t := range b.Types {
		out = append(out, symbols.HostMember{Name: t.Name, Type: t})
	}
	for _, fn := range b.Functions {
		out = append(out, symbols.HostMember{Name: fn.Name, Type: fn.Signature})
	}
	return out
}

// Get returns the value bound under name.
func (r *Runtime) Get(name string) (vm.Value, bool) {
	b, ok := r.bindings[name]
	if !ok {
		return vm.NoneVal(), false
	}
	return b.Value, true
}

// Binding returns the binding registered under name.
func (r *Runtime) Binding(name string) (*ffi.Binding, bool) {
	b, ok := r.bindings[name]
	return b, ok
}

// Call calls a bound function by "binding.function" with Go arguments.
// Arguments are converted against the function's parameter types, so Go
// structs and maps can stand for native structs. Type-mode bindings receive
// the bound type value as their first argument.
func (r *Runtime) Call(qualified string, args ...interface{}) (interface{}, error) {
	result, err := r.call(qualified, args)
	if err != nil {
		return nil, err
	}
	return r.marshaller.FromValue(result, nil)
}

// CallInto is Call with the result converted into out, which must be a
// non-nil pointer.
func (r *Runtime) CallInto(out interface{}, qualified string, args ...interface{}) error {
	result, err := r.call(qualified, args)
	if err != nil {
		return err
	}
	return r.marshaller.Decode(result, out)
}

func (r *Runtime) call(qualified string, args []interface{}) (vm.Value, error) {
	name, fnName, ok := strings.Cut(qualified, ".")
	if !ok {
		return vm.NoneVal(), fmt.Errorf("%s: expected binding.function", qualified)
	}
	b, ok := r.bindings[name]
	if !ok {
		return vm.NoneVal(), fmt.Errorf("binding '%s' not found", name)
	}
	var fn *vm.NativeFunction
	for _, f := range b.Functions {
		if f.Name == fnName {
			fn = f
			break
		}
	}
	if fn == nil {
		return vm.NoneVal(), fmt.Errorf("function '%s' not found in %s", fnName, name)
	}

	params := fn.Signature.Params
	var values []vm.Value
	if _, isType := b.Value.Obj.(*vm.TypeValue); isType {
		values = append(values, b.Value)
		params = params[1:]
	}
	if len(args) != len(params) {
		return vm.NoneVal(), &typesystem.ArityMismatchError{Want: len(params), Got: len(args)}
	}
	for i, arg := range args {
		v, err := r.marshaller.ToTyped(arg, params[i])
		if err != nil {
			return vm.NoneVal(), fmt.Errorf("argument %d conversion failed: %w", i, err)
		}
		values = append(values, v)
	}
	return fn.Call(values...)
}

// Release drops the binding registered under name. Its native handle is
// freed once no callable obtained from it is still referenced.
func (r *Runtime) Release(name string) error {
	b, ok := r.bindings[name]
	if !ok {
		return fmt.Errorf("binding '%s' not found", name)
	}
	delete(r.bindings, name)
	r.session.RemoveHost(name)
	return vm.Release(b.Value)
}

// Close releases every binding and the session.
func (r *Runtime) Close() error {
	var errs []error
	for name := range r.bindings {
		errs = append(errs, r.Release(name))
	}
	errs = append(errs, r.session.Close())
	return errors.Join(errs...)
}
