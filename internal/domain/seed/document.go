// Package seed builds surfaces from declarative files.
//
// A seed file names a surface and the nodes under its root:
//
//	uri: ui://inbox
//	nodes:
//	  - element: ul
//	    properties: {count: 2}
//	    children:
//	      - element: li
//	        children: [{text: first}]
//
// YAML, TOML and JSON carry the same shape.
package seed

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported seed format")
	ErrInvalidDocument   = errors.New("invalid seed document")
)

// Document describes one surface
type Document struct {
	URI   string `json:"uri" yaml:"uri" toml:"uri"`
	Nodes []Node `json:"nodes" yaml:"nodes" toml:"nodes"`

	// Path is the file the document came from
	Path string `json:"-" yaml:"-" toml:"-"`
}

// Node is an element or a text node
type Node struct {
	Element    string         `json:"element,omitempty" yaml:"element,omitempty" toml:"element,omitempty"`
	Text       *string        `json:"text,omitempty" yaml:"text,omitempty" toml:"text,omitempty"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty" toml:"properties,omitempty"`
	Children   []Node         `json:"children,omitempty" yaml:"children,omitempty" toml:"children,omitempty"`
}

// PropertyNames returns property names in the order they are applied.
// Map order is lost in every format, so names are sorted.
func (n Node) PropertyNames() []string {
	names := make([]string, 0, len(n.Properties))
	for name := range n.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of nodes in the subtree
func (n Node) Count() int {
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// Parse decodes a seed document, choosing the format by file extension
func Parse(path string, data []byte) (*Document, error) {
	doc := &Document{Path: path}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, doc)
	case ".toml":
		err = toml.Unmarshal(data, doc)
	case ".json":
		err = sonic.Unmarshal(data, doc)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// Validate checks that the document names a surface and that every node is
// exactly one of element or text
func Validate(doc *Document) error {
	var errs []error
	if strings.TrimSpace(doc.URI) == "" {
		errs = append(errs, errors.New("uri is required"))
	}
	for i, n := range doc.Nodes {
		errs = append(errs, validateNode(n, fmt.Sprintf("nodes[%d]", i))...)
	}
	if len(errs) == 0 {
		return nil
	}

	name := doc.Path
	if name == "" {
		name = doc.URI
	}
	return fmt.Errorf("%s: %w: %w", name, ErrInvalidDocument, errors.Join(errs...))
}

func validateNode(n Node, at string) []error {
	var errs []error
	switch {
	case n.Element != "" && n.Text != nil:
		errs = append(errs, fmt.Errorf("%s: element and text are exclusive", at))
	case n.Element == "" && n.Text == nil:
		errs = append(errs, fmt.Errorf("%s: element or text is required", at))
	case n.Text != nil && (len(n.Properties) > 0 || len(n.Children) > 0):
		errs = append(errs, fmt.Errorf("%s: text nodes take no properties or children", at))
	}
	for i, c := range n.Children {
		errs = append(errs, validateNode(c, fmt.Sprintf("%s.children[%d]", at, i))...)
	}
	return errs
}
