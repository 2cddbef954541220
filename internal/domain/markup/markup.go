// Package markup converts between HTML fragments and surface trees.
//
// Typed properties travel as plain attributes with a data-type-<name>
// companion naming the codec hint, so a number or a JSON object survives a
// render and re-import.
package markup

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/GriffinCanCode/remotedom/internal/domain/codec"
	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
)

var ErrEmptyFragment = errors.New("fragment has no content")

// Importer sanitises and parses HTML into surface nodes
type Importer struct {
	policy *bluemonday.Policy
}

// NewImporter returns an importer using the UGC policy with data attributes
// allowed
func NewImporter() *Importer {
	p := bluemonday.UGCPolicy()
	p.AllowDataAttributes()
	return &Importer{policy: p}
}

// Sanitize returns the fragment with disallowed markup removed
func (im *Importer) Sanitize(fragment string) string {
	return im.policy.Sanitize(fragment)
}

// Import parses fragment and appends its top-level nodes to parent. Nodes
// are built detached first so clients receive one insert per top-level
// node. Whitespace-only text is dropped.
func (im *Importer) Import(s *surface.Surface, parent tree.NodeID, fragment string) ([]tree.NodeID, error) {
	if _, err := s.Type(parent); err != nil {
		return nil, err
	}

	nodes, err := parseFragment(im.Sanitize(fragment))
	if err != nil {
		return nil, err
	}

	var built []tree.NodeID
	for _, n := range nodes {
		id, ok, err := build(s, n)
		if err != nil {
			return nil, err
		}
		if ok {
			built = append(built, id)
		}
	}
	if len(built) == 0 {
		return nil, ErrEmptyFragment
	}

	for _, id := range built {
		if err := s.AppendChild(parent, id); err != nil {
			return nil, err
		}
	}
	return built, nil
}

func parseFragment(fragment string) ([]*html.Node, error) {
	context := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return nodes, nil
}

// build creates the detached subtree for n. ok is false for nodes that
// have no tree equivalent.
func build(s *surface.Surface, n *html.Node) (tree.NodeID, bool, error) {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return "", false, nil
		}
		return s.CreateText(n.Data), true, nil

	case html.ElementNode:
		id := s.CreateElement(n.Data)

		hints := make(map[string]codec.Hint)
		for _, a := range n.Attr {
			if name, ok := strings.CutPrefix(a.Key, codec.HintAttributePrefix); ok {
				hints[name] = codec.ParseHint(a.Val)
			}
		}
		for _, a := range n.Attr {
			if strings.HasPrefix(a.Key, codec.HintAttributePrefix) {
				continue
			}
			if err := s.SetProperty(id, a.Key, codec.Decode(a.Val, hints[a.Key])); err != nil {
				return "", false, err
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			child, ok, err := build(s, c)
			if err != nil {
				return "", false, err
			}
			if ok {
				if err := s.AppendChild(id, child); err != nil {
					return "", false, err
				}
			}
		}
		return id, true, nil

	default:
		return "", false, nil
	}
}

// Render writes a snapshot as HTML
func Render(snap *tree.Snapshot) (string, error) {
	if snap == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, toHTML(snap)); err != nil {
		return "", fmt.Errorf("render %s: %w", snap.ID, err)
	}
	return buf.String(), nil
}

// RenderChildren renders only the children of snap, which is how a
// surface root is embedded into a page
func RenderChildren(snap *tree.Snapshot) (string, error) {
	if snap == nil {
		return "", nil
	}
	var buf bytes.Buffer
	for _, c := range snap.Children {
		if err := html.Render(&buf, toHTML(c)); err != nil {
			return "", fmt.Errorf("render %s: %w", c.ID, err)
		}
	}
	return buf.String(), nil
}

func toHTML(snap *tree.Snapshot) *html.Node {
	n := toHTMLNode(snap)
	for _, c := range snap.Children {
		n.AppendChild(toHTML(c))
	}
	return n
}

// toHTMLNode converts snap without its children
func toHTMLNode(snap *tree.Snapshot) *html.Node {
	if snap.Type == tree.TextNode {
		return &html.Node{Type: html.TextNode, Data: snap.Data}
	}

	n := &html.Node{
		Type:     html.ElementNode,
		Data:     snap.Element,
		DataAtom: atom.Lookup([]byte(snap.Element)),
	}

	var hinted []html.Attribute
	for _, p := range snap.Properties {
		value, hint := codec.Encode(p.Value)
		n.Attr = append(n.Attr, html.Attribute{Key: p.Name, Val: value})
		if hint != codec.HintString {
			hinted = append(hinted, html.Attribute{Key: codec.HintAttribute(p.Name), Val: string(hint)})
		}
	}
	// Companions follow the plain attributes
	n.Attr = append(n.Attr, hinted...)
	return n
}
