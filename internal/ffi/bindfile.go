package ffi

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/loom/internal/config"
)

// BindingFile is a binding request written as yaml:
//
//	library: ./libgeom.so
//	mode: map
//	decls:
//	  - type: Point
//	    fields:
//	      - {name: x, type: double}
//	      - {name: y, type: double}
//	  - sym: distance
//	    args: [Point, Point]
//	    ret: double
//	  - sym: reverse
//	    args: [{elem: int, n: 4}]
//	    ret: int[4]
type BindingFile struct {
	// Library is the shared library path, relative to the file.
	Library string `yaml:"library,omitempty"`

	// Mode is "map" (default) or "type".
	Mode string `yaml:"mode,omitempty"`

	Decls []DeclSpec `yaml:"decls"`

	// Dir is the directory the file was loaded from.
	Dir string `yaml:"-"`
}

// DeclSpec is one yaml declaration. Exactly one of Sym and Type is set.
type DeclSpec struct {
	Sym  string           `yaml:"sym,omitempty"`
	Args []DescriptorSpec `yaml:"args,omitempty"`
	Ret  *DescriptorSpec  `yaml:"ret,omitempty"`

	Type   string      `yaml:"type,omitempty"`
	Fields []FieldSpec `yaml:"fields,omitempty"`
}

// DescriptorSpec decodes a descriptor from a scalar ("int[4]", "Point") or
// a mapping {elem, n}.
type DescriptorSpec struct {
	Descriptor Descriptor
}

func (d *DescriptorSpec) UnmarshalYAML(node *yaml.Node) error {
	desc, err := descriptorFromNode(node)
	if err != nil {
		return err
	}
	d.Descriptor = desc
	return nil
}

func (d DescriptorSpec) MarshalYAML() (interface{}, error) {
	if d.Descriptor == nil {
		return nil, nil
	}
	return d.Descriptor.String(), nil
}

// FieldSpec decodes a struct field from a bare descriptor or a mapping
// {name, type}.
type FieldSpec struct {
	Name string
	Type Descriptor
}

func (f *FieldSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var raw struct {
			Name string    `yaml:"name"`
			Type yaml.Node `yaml:"type"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		if raw.Type.Kind != 0 {
			desc, err := descriptorFromNode(&raw.Type)
			if err != nil {
				return err
			}
			f.Name = raw.Name
			f.Type = desc
			return nil
		}
	}
	desc, err := descriptorFromNode(node)
	if err != nil {
		return err
	}
	f.Type = desc
	return nil
}

func (f FieldSpec) MarshalYAML() (interface{}, error) {
	if f.Name == "" {
		return f.Type.String(), nil
	}
	return map[string]string{"name": f.Name, "type": f.Type.String()}, nil
}

func descriptorFromNode(node *yaml.Node) (Descriptor, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return ParseDescriptor(node.Value)
	case yaml.MappingNode:
		var raw struct {
			Elem yaml.Node `yaml:"elem"`
			N    int       `yaml:"n"`
		}
		if err := node.Decode(&raw); err != nil {
			return nil, err
		}
		if raw.Elem.Kind == 0 {
			return nil, fmt.Errorf("line %d: array descriptor needs elem", node.Line)
		}
		if raw.N <= 0 {
			return nil, fmt.Errorf("line %d: array length must be positive", node.Line)
		}
		elem, err := descriptorFromNode(&raw.Elem)
		if err != nil {
			return nil, err
		}
		return ArrayDesc{Elem: elem, Len: raw.N}, nil
	}
	return nil, fmt.Errorf("line %d: expected a descriptor", node.Line)
}

// LoadBindingFile reads and parses a binding yaml file.
func LoadBindingFile(path string) (*BindingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading binding file %s: %w", path, err)
	}
	bf, err := ParseBindingFile(data, path)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
		bf.Dir = abs
	}
	return bf, nil
}

// ParseBindingFile parses binding yaml content. The path argument is used
// only for error messages.
func ParseBindingFile(data []byte, path string) (*BindingFile, error) {
	var bf BindingFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := bf.validate(path); err != nil {
		return nil, err
	}
	bf.setDefaults()
	return &bf, nil
}

// validate checks the file shape. Descriptor references are checked later,
// against the whole request.
func (bf *BindingFile) validate(path string) error {
	if len(bf.Decls) == 0 {
		return fmt.Errorf("%s: no decls defined", path)
	}
	switch bf.Mode {
	case "", config.BindModeMap, config.BindModeType:
	default:
		return fmt.Errorf("%s: mode: unknown mode %q (want %s or %s)", path, bf.Mode, config.BindModeMap, config.BindModeType)
	}
	for i, d := range bf.Decls {
		switch {
		case d.Sym != "" && d.Type != "":
			return fmt.Errorf("%s: decls[%d]: sym and type are mutually exclusive", path, i)
		case d.Sym == "" && d.Type == "":
			return fmt.Errorf("%s: decls[%d]: one of sym or type is required", path, i)
		case d.Sym != "" && len(d.Fields) > 0:
			return fmt.Errorf("%s: decls[%d]: fields are only valid with type", path, i)
		case d.Type != "" && (len(d.Args) > 0 || d.Ret != nil):
			return fmt.Errorf("%s: decls[%d]: args and ret are only valid with sym", path, i)
		case d.Type != "" && len(d.Fields) == 0:
			return fmt.Errorf("%s: decls[%d]: struct %s has no fields", path, i, d.Type)
		}
	}
	return nil
}

func (bf *BindingFile) setDefaults() {
	if bf.Mode == "" {
		bf.Mode = config.BindModeMap
	}
	for i := range bf.Decls {
		if bf.Decls[i].Sym != "" && bf.Decls[i].Ret == nil {
			bf.Decls[i].Ret = &DescriptorSpec{Descriptor: Void}
		}
	}
}

// LibraryPath returns Library resolved against the file's directory.
func (bf *BindingFile) LibraryPath() string {
	if bf.Library == "" || filepath.IsAbs(bf.Library) || bf.Dir == "" {
		return bf.Library
	}
	return filepath.Join(bf.Dir, bf.Library)
}

// Declarations converts the file into a binding request.
func (bf *BindingFile) Declarations() []Decl {
	out := make([]Decl, 0, len(bf.Decls))
	for _, d := range bf.Decls {
		if d.Sym != "" {
			fd := &FuncDecl{Sym: d.Sym, Ret: Void}
			for _, a := range d.Args {
				fd.Args = append(fd.Args, a.Descriptor)
			}
			if d.Ret != nil {
				fd.Ret = d.Ret.Descriptor
			}
			out = append(out, fd)
			continue
		}
		sd := &StructDecl{Type: d.Type}
		for _, f := range d.Fields {
			sd.Fields = append(sd.Fields, FieldDecl{Name: f.Name, Type: f.Type})
		}
		out = append(out, sd)
	}
	return out
}
