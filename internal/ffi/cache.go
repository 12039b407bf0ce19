package ffi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// SourceCache reuses generated source for identical binding requests. The
// key covers the declarations, the exposure mode and the generator version,
// so output from an older generator is never served.
type SourceCache struct {
	// dir persists entries as <dir>/bind-<key>.c when set.
	dir     string
	entries map[string]*GeneratedSource
	hits    int
}

// NewSourceCache creates a cache. An empty dir keeps entries in memory only.
func NewSourceCache(dir string) *SourceCache {
	return &SourceCache{dir: dir, entries: make(map[string]*GeneratedSource)}
}

type wireField struct {
	Name string `cbor:"1,keyasint"`
	Type string `cbor:"2,keyasint"`
}

type wireDecl struct {
	Sym    string      `cbor:"1,keyasint,omitempty"`
	Args   []string    `cbor:"2,keyasint,omitempty"`
	Ret    string      `cbor:"3,keyasint,omitempty"`
	Type   string      `cbor:"4,keyasint,omitempty"`
	Fields []wireField `cbor:"5,keyasint,omitempty"`
}

type wireRequest struct {
	Version  string     `cbor:"1,keyasint"`
	Receiver bool       `cbor:"2,keyasint"`
	Decls    []wireDecl `cbor:"3,keyasint"`
}

var canonical = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Fingerprint computes the cache key of a validated request.
func Fingerprint(decls []Decl, receiver bool) (string, error) {
	req := wireRequest{Version: codegenVersion, Receiver: receiver}
	for _, d := range decls {
		switch d := d.(type) {
		case *FuncDecl:
			w := wireDecl{Sym: d.Sym, Ret: Void.String()}
			if d.Ret != nil {
				w.Ret = d.Ret.String()
			}
			for _, a := range d.Args {
				w.Args = append(w.Args, a.String())
			}
			req.Decls = append(req.Decls, w)
		case *StructDecl:
			w := wireDecl{Type: d.Type}
			for i, f := range d.Fields {
				w.Fields = append(w.Fields, wireField{Name: fieldName(f, i), Type: f.Type.String()})
			}
			req.Decls = append(req.Decls, w)
		}
	}
	data, err := canonical.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding binding request: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}

// Lookup returns the cached source for key.
func (c *SourceCache) Lookup(key string) (*GeneratedSource, bool) {
	src, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return src, ok
}

// Store records src under key and writes it to the cache directory.
func (c *SourceCache) Store(key string, src *GeneratedSource) error {
	src.Fingerprint = key
	c.entries[key] = src
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	if err := os.WriteFile(c.Path(key), []byte(src.Text), 0o644); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// Path is the file an entry is persisted to.
func (c *SourceCache) Path(key string) string {
	return filepath.Join(c.dir, "bind-"+key+".c")
}

// Hits counts successful lookups.
func (c *SourceCache) Hits() int { return c.hits }

// Clean drops every entry and removes the cache directory.
func (c *SourceCache) Clean() error {
	c.entries = make(map[string]*GeneratedSource)
	if c.dir == "" {
		return nil
	}
	return os.RemoveAll(c.dir)
}
