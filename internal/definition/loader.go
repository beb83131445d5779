// Package definition loads interface descriptor tables from YAML files,
// validates them, and provides a lookup registry with atomic pointer swap.
//
// A descriptor file holds one interface per YAML document. Method keys other
// than name, args, and arity are tags, kept in file order:
//
//	interface: Users
//	methods:
//	  - name: List
//	    POST: /users/list
//	    args: [name]
//	  - name: Create
//	    POST: /users/create
//	    body: json
package definition

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/callwire/internal/describe"
	"github.com/pitabwire/callwire/model"
)

// Loader reads descriptor files and computes SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new descriptor Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll loads every path. Directories are scanned recursively for *.yaml
// and *.yml files.
func (l *Loader) LoadAll(paths []string) ([]model.InterfaceDescriptor, error) {
	var descs []model.InterfaceDescriptor

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("definition: %w", err)
		}
		if !info.IsDir() {
			loaded, err := l.LoadFile(root)
			if err != nil {
				return nil, err
			}
			descs = append(descs, loaded...)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			loaded, err := l.LoadFile(path)
			if err != nil {
				return err
			}
			descs = append(descs, loaded...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("definition: scanning directory %s: %w", root, err)
		}
	}

	return descs, nil
}

// LoadFile parses every document of a descriptor file and stamps each
// descriptor with the file checksum and path.
func (l *Loader) LoadFile(path string) ([]model.InterfaceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("definition: reading %s: %w", path, err)
	}
	descs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("definition: parsing %s: %w", path, err)
	}

	checksum := fmt.Sprintf("%x", sha256.Sum256(data))
	for i := range descs {
		descs[i].Checksum = checksum
		descs[i].SourceFile = path
	}
	return descs, nil
}

// Parse decodes descriptor documents from YAML.
func Parse(data []byte) ([]model.InterfaceDescriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var descs []model.InterfaceDescriptor
	for {
		var doc document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if doc.Interface == "" && len(doc.Methods) == 0 {
			continue
		}
		desc := model.InterfaceDescriptor{Name: doc.Interface}
		for _, m := range doc.Methods {
			md := model.MethodDescriptor(m)
			md.Interface = doc.Interface
			desc.Methods = append(desc.Methods, md)
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

type document struct {
	Interface string       `yaml:"interface"`
	Methods   []methodNode `yaml:"methods"`
}

// methodNode decodes a method mapping, keeping tag keys in file order.
type methodNode model.MethodDescriptor

func (m *methodNode) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: method must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "name":
			m.Name = value.Value
		case "arity":
			if err := value.Decode(&m.Arity); err != nil {
				return fmt.Errorf("line %d: arity: %w", value.Line, err)
			}
		case model.ArgsKey:
			args, err := decodeArgs(value)
			if err != nil {
				return err
			}
			m.Args = args
		case "tags":
			var tags []model.Tag
			if err := value.Decode(&tags); err != nil {
				return fmt.Errorf("line %d: tags: %w", value.Line, err)
			}
			m.Tags = append(m.Tags, tags...)
		default:
			if value.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: tag %q must have a scalar value", value.Line, key.Value)
			}
			m.Tags = append(m.Tags, model.Tag{Kind: model.TagKind(key.Value), Value: value.Value})
		}
	}
	return nil
}

// decodeArgs accepts a sequence of names or a comma separated string.
func decodeArgs(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return describe.SplitArgs(node.Value), nil
	case yaml.SequenceNode:
		args := make([]string, len(node.Content))
		for i, n := range node.Content {
			if n.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: args entries must be scalars", n.Line)
			}
			args[i] = strings.TrimSpace(n.Value)
		}
		return args, nil
	}
	return nil, fmt.Errorf("line %d: args must be a list or a comma separated string", node.Line)
}
