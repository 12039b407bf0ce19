package modules

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/funvibe/loom/internal/config"
)

// Resolved is a resolver's answer for a specifier.
type Resolved struct {
	ID     ModuleID
	Origin string
}

// Resolver locates modules for specifiers and loads their source. Resolvers
// are consulted in priority order (lower first); the first one that accepts
// a specifier decides.
type Resolver interface {
	Priority() int
	CanResolve(specifier string, from *Module) bool
	Resolve(specifier string, from *Module) (Resolved, error)
	Load(id ModuleID) (Source, error)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isRelative(s string) bool {
	return strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}

// moduleName derives a namespace name from a module origin: the base name
// without its source extension.
func moduleName(origin string) string {
	origin = strings.TrimPrefix(origin, memPrefix)
	base := path.Base(filepath.ToSlash(origin))
	for _, ext := range config.SourceFileExtensions {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// MemoryResolver serves modules registered by the embedder.
type MemoryResolver struct {
	sources map[string]Source
}

const memPrefix = "mem:"

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{sources: make(map[string]Source)}
}

// Add registers source under name. Importing name resolves to it.
func (r *MemoryResolver) Add(name string, src Source) {
	r.sources[name] = src
}

// AddText is a shorthand for Add with source text.
func (r *MemoryResolver) AddText(name, text string) {
	r.sources[name] = Source{Text: text}
}

func (r *MemoryResolver) Priority() int { return 0 }

func (r *MemoryResolver) CanResolve(specifier string, from *Module) bool {
	_, ok := r.sources[specifier]
	return ok
}

func (r *MemoryResolver) Resolve(specifier string, from *Module) (Resolved, error) {
	if _, ok := r.sources[specifier]; !ok {
		return Resolved{}, &ModuleNotFoundError{Specifier: specifier}
	}
	return Resolved{ID: ModuleID(memPrefix + specifier), Origin: memPrefix + specifier}, nil
}

func (r *MemoryResolver) Load(id ModuleID) (Source, error) {
	src, ok := r.sources[strings.TrimPrefix(string(id), memPrefix)]
	if !ok {
		return Source{}, &ModuleNotFoundError{Specifier: string(id)}
	}
	return src, nil
}

// FileResolver finds modules on disk. Relative specifiers are resolved
// against the importing file's directory; bare specifiers are tried there
// first and then in each root.
type FileResolver struct {
	BaseDir string // used for root modules; defaults to the working directory
	Roots   []string
}

func NewFileResolver(baseDir string, roots ...string) *FileResolver {
	return &FileResolver{BaseDir: baseDir, Roots: roots}
}

func (r *FileResolver) Priority() int { return 10 }

func (r *FileResolver) CanResolve(specifier string, from *Module) bool {
	if isURL(specifier) {
		return false
	}
	// Relative imports inside remote modules stay remote.
	return from == nil || !from.Remote || !isRelative(specifier)
}

func (r *FileResolver) baseDir(from *Module) string {
	if from != nil && !from.Remote && !strings.HasPrefix(from.Origin, memPrefix) {
		return filepath.Dir(from.Origin)
	}
	if r.BaseDir != "" {
		return r.BaseDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func (r *FileResolver) Resolve(specifier string, from *Module) (Resolved, error) {
	var candidates []string
	if filepath.IsAbs(specifier) {
		candidates = []string{specifier}
	} else {
		candidates = []string{filepath.Join(r.baseDir(from), specifier)}
		if !isRelative(specifier) {
			for _, root := range r.Roots {
				candidates = append(candidates, filepath.Join(root, specifier))
			}
		}
	}

	for _, c := range candidates {
		if file, ok := findSourceFile(c); ok {
			abs, err := filepath.Abs(file)
			if err != nil {
				return Resolved{}, fmt.Errorf("resolving %s: %w", file, err)
			}
			return Resolved{ID: ModuleID(abs), Origin: abs}, nil
		}
	}
	return Resolved{}, &ModuleNotFoundError{Specifier: specifier, Searched: candidates}
}

func (r *FileResolver) Load(id ModuleID) (Source, error) {
	data, err := os.ReadFile(string(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Source{}, &ModuleNotFoundError{Specifier: string(id)}
		}
		return Source{}, err
	}
	return Source{Text: string(data)}, nil
}

// findSourceFile maps a candidate path to a source file: the path itself,
// the path with a recognized extension, or the entry file of a directory.
func findSourceFile(p string) (string, bool) {
	info, err := os.Stat(p)
	if err == nil && !info.IsDir() {
		return p, true
	}
	for _, ext := range config.SourceFileExtensions {
		if fi, err := os.Stat(p + ext); err == nil && !fi.IsDir() {
			return p + ext, true
		}
	}
	if err == nil && info.IsDir() {
		entry := filepath.Join(p, filepath.Base(p)+detectPackageExtension(p))
		if fi, err := os.Stat(entry); err == nil && !fi.IsDir() {
			return entry, true
		}
	}
	return "", false
}

// detectPackageExtension determines which extension a directory module uses:
// the extension of dirname/dirname.ext if present, else the first recognized
// extension found in the directory.
func detectPackageExtension(dirPath string) string {
	dirName := filepath.Base(dirPath)
	files, err := os.ReadDir(dirPath)
	if err != nil {
		return config.SourceFileExt
	}
	for _, ext := range config.SourceFileExtensions {
		for _, f := range files {
			if !f.IsDir() && f.Name() == dirName+ext {
				return ext
			}
		}
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		for _, ext := range config.SourceFileExtensions {
			if strings.HasSuffix(f.Name(), ext) {
				return ext
			}
		}
	}
	return config.SourceFileExt
}
