package markup

import (
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
)

var ErrInvalidQuery = errors.New("invalid query")

// Match is one node found in a surface
type Match struct {
	ID      tree.NodeID   `json:"id"`
	Type    tree.NodeType `json:"type"`
	Element string        `json:"element,omitempty"`
	Text    string        `json:"text"`
	HTML    string        `json:"html"`
}

// document is a snapshot converted to HTML nodes, remembering which
// snapshot each node came from
type document struct {
	root   *html.Node
	source map[*html.Node]*tree.Snapshot
}

func newDocument(snap *tree.Snapshot) *document {
	d := &document{source: make(map[*html.Node]*tree.Snapshot)}
	d.root = d.convert(snap)
	return d
}

func (d *document) convert(snap *tree.Snapshot) *html.Node {
	n := toHTMLNode(snap)
	d.source[n] = snap
	for _, c := range snap.Children {
		n.AppendChild(d.convert(c))
	}
	return n
}

func (d *document) matches(nodes []*html.Node) ([]Match, error) {
	out := make([]Match, 0, len(nodes))
	for _, n := range nodes {
		snap, ok := d.source[n]
		if !ok {
			continue
		}
		rendered, err := Render(snap)
		if err != nil {
			return nil, err
		}
		m := Match{
			ID:   snap.ID,
			Type: snap.Type,
			Text: htmlquery.InnerText(n),
			HTML: rendered,
		}
		if snap.Type == tree.ElementNode {
			m.Element = snap.Element
		}
		out = append(out, m)
	}
	return out, nil
}

// QuerySelector returns the elements under snap matching a CSS selector,
// in document order. snap itself can match.
func QuerySelector(snap *tree.Snapshot, selector string) ([]Match, error) {
	if snap == nil {
		return nil, nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	d := newDocument(snap)
	doc := goquery.NewDocumentFromNode(d.root)
	found := doc.FindMatcher(sel).Nodes
	if sel.Match(d.root) {
		found = append([]*html.Node{d.root}, found...)
	}
	return d.matches(found)
}

// QueryXPath returns the nodes under snap selected by an XPath expression.
// Text nodes can be selected with text().
func QueryXPath(snap *tree.Snapshot, expr string) ([]Match, error) {
	if snap == nil {
		return nil, nil
	}
	d := newDocument(snap)
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return d.matches(nodes)
}
