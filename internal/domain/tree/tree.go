package tree

import (
	"fmt"

	"github.com/GriffinCanCode/remotedom/internal/domain/codec"
	"github.com/GriffinCanCode/remotedom/internal/shared/id"
)

// attribute is a property stored in its encoded form
type attribute struct {
	name  string
	value string
	hint  codec.Hint
}

type node struct {
	id       NodeID
	typ      NodeType
	tag      string
	attrs    []attribute
	text     string
	children []*node
	parent   *node
}

// Tree is an addressable DOM subset: elements with a tag, ordered
// properties and ordered children, and text nodes. A Tree is not safe for
// concurrent use.
type Tree struct {
	nodes    map[NodeID]*node
	root     *node
	observer Observer
	newID    func() NodeID
}

// Option configures a Tree
type Option func(*Tree)

// WithIDs replaces the node id source
func WithIDs(next func() NodeID) Option {
	return func(t *Tree) {
		t.newID = next
	}
}

// New creates a tree with an empty root. obs may be nil.
func New(obs Observer, opts ...Option) *Tree {
	t := &Tree{
		observer: obs,
		newID: func() NodeID {
			return NodeID(id.NewNodeID())
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Reset()
	return t
}

// Reset drops every node and recreates the root
func (t *Tree) Reset() {
	t.root = &node{id: RootID, typ: ElementNode, tag: RootTag}
	t.nodes = map[NodeID]*node{RootID: t.root}
}

// Root returns the root id
func (t *Tree) Root() NodeID {
	return t.root.id
}

// Len returns the number of nodes held by the tree, attached or not
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Contains reports whether id names a live node
func (t *Tree) Contains(nodeID NodeID) bool {
	_, ok := t.nodes[nodeID]
	return ok
}

// CreateElement allocates a detached element
func (t *Tree) CreateElement(tag string) NodeID {
	n := &node{id: t.newID(), typ: ElementNode, tag: tag}
	t.nodes[n.id] = n
	return n.id
}

// CreateText allocates a detached text node
func (t *Tree) CreateText(text string) NodeID {
	n := &node{id: t.newID(), typ: TextNode, text: text}
	t.nodes[n.id] = n
	return n.id
}

// SetProperty encodes value and stores it under name, keeping the position
// of an existing property.
func (t *Tree) SetProperty(nodeID NodeID, name string, value any) error {
	n, err := t.element(nodeID)
	if err != nil {
		return err
	}

	encoded, hint := codec.Encode(value)
	replaced := false
	for i := range n.attrs {
		if n.attrs[i].name == name {
			n.attrs[i].value = encoded
			n.attrs[i].hint = hint
			replaced = true
			break
		}
	}
	if !replaced {
		n.attrs = append(n.attrs, attribute{name: name, value: encoded, hint: hint})
	}

	if t.observer != nil && t.connected(n) {
		t.observer.UpdateProperty(n.id, name, encoded, hint)
	}
	return nil
}

// Property returns the decoded value of a property
func (t *Tree) Property(nodeID NodeID, name string) (any, bool, error) {
	n, err := t.element(nodeID)
	if err != nil {
		return nil, false, err
	}
	for _, a := range n.attrs {
		if a.name == name {
			return codec.Decode(a.value, a.hint), true, nil
		}
	}
	return nil, false, nil
}

// AppendChild appends child at the end of parent's children
func (t *Tree) AppendChild(parentID, childID NodeID) error {
	parent, err := t.element(parentID)
	if err != nil {
		return err
	}
	child, err := t.lookup(childID)
	if err != nil {
		return err
	}
	index := len(parent.children)
	if child.parent == parent {
		index--
	}
	return t.insert(parent, child, index)
}

// InsertChild inserts child at index, shifting later children right.
// index may equal the number of children.
func (t *Tree) InsertChild(parentID, childID NodeID, index int) error {
	parent, err := t.element(parentID)
	if err != nil {
		return err
	}
	child, err := t.lookup(childID)
	if err != nil {
		return err
	}
	limit := len(parent.children)
	if child.parent == parent {
		limit--
	}
	if index < 0 || index > limit {
		return fmt.Errorf("insert %s at %d of %d: %w", childID, index, limit, ErrIndexOutOfRange)
	}
	return t.insert(parent, child, index)
}

func (t *Tree) insert(parent, child *node, index int) error {
	if child == t.root {
		return fmt.Errorf("root cannot be a child: %w", ErrHierarchy)
	}
	for p := parent; p != nil; p = p.parent {
		if p == child {
			return fmt.Errorf("%s is an ancestor of %s: %w", child.id, parent.id, ErrHierarchy)
		}
	}

	// Moving a node detaches it first, like the DOM does
	if child.parent != nil {
		t.detach(child.parent, indexOf(child.parent, child))
	}

	parent.children = append(parent.children, nil)
	copy(parent.children[index+1:], parent.children[index:])
	parent.children[index] = child
	child.parent = parent

	if t.observer != nil && t.connected(parent) {
		t.observer.InsertChild(parent.id, t.serialize(child), index)
	}
	return nil
}

// RemoveChild removes the child at index and releases its subtree.
// An index out of range is an invariant violation and panics.
func (t *Tree) RemoveChild(parentID NodeID, index int) error {
	parent, err := t.element(parentID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(parent.children) {
		panic(fmt.Sprintf("tree: remove child %d of %s with %d children", index, parentID, len(parent.children)))
	}
	removed := t.detach(parent, index)
	t.release(removed)
	return nil
}

// RemoveNode detaches a node from its parent, if any, and releases it
func (t *Tree) RemoveNode(nodeID NodeID) error {
	n, err := t.lookup(nodeID)
	if err != nil {
		return err
	}
	if n == t.root {
		return fmt.Errorf("root cannot be removed: %w", ErrHierarchy)
	}
	if n.parent != nil {
		t.detach(n.parent, indexOf(n.parent, n))
	}
	t.release(n)
	return nil
}

func (t *Tree) detach(parent *node, index int) *node {
	child := parent.children[index]
	parent.children = append(parent.children[:index], parent.children[index+1:]...)
	child.parent = nil

	if t.observer != nil && t.connected(parent) {
		t.observer.RemoveChild(parent.id, index)
	}
	return child
}

func (t *Tree) release(n *node) {
	delete(t.nodes, n.id)
	for _, c := range n.children {
		t.release(c)
	}
}

// ReleaseDetached drops every node that does not hang off the root and
// returns how many were dropped. Ids of released nodes stop resolving.
func (t *Tree) ReleaseDetached() int {
	live := make(map[NodeID]struct{}, len(t.nodes))
	var mark func(n *node)
	mark = func(n *node) {
		live[n.id] = struct{}{}
		for _, c := range n.children {
			mark(c)
		}
	}
	mark(t.root)

	released := 0
	for nodeID := range t.nodes {
		if _, ok := live[nodeID]; !ok {
			delete(t.nodes, nodeID)
			released++
		}
	}
	return released
}

// UpdateText replaces the content of a text node
func (t *Tree) UpdateText(nodeID NodeID, text string) error {
	n, err := t.lookup(nodeID)
	if err != nil {
		return err
	}
	if n.typ != TextNode {
		return fmt.Errorf("update text of %s: %w", nodeID, ErrNotText)
	}
	n.text = text

	if t.observer != nil && t.connected(n) {
		t.observer.UpdateText(n.id, text)
	}
	return nil
}

// Children returns the ids of an element's children in order
func (t *Tree) Children(nodeID NodeID) ([]NodeID, error) {
	n, err := t.element(nodeID)
	if err != nil {
		return nil, err
	}
	ids := make([]NodeID, len(n.children))
	for i, c := range n.children {
		ids[i] = c.id
	}
	return ids, nil
}

// Parent returns the parent id, or "" for detached nodes and the root
func (t *Tree) Parent(nodeID NodeID) (NodeID, error) {
	n, err := t.lookup(nodeID)
	if err != nil {
		return "", err
	}
	if n.parent == nil {
		return "", nil
	}
	return n.parent.id, nil
}

// Type returns the node type of a node
func (t *Tree) Type(nodeID NodeID) (NodeType, error) {
	n, err := t.lookup(nodeID)
	if err != nil {
		return 0, err
	}
	return n.typ, nil
}

// Serialize snapshots a node and its subtree with re-hydrated properties
func (t *Tree) Serialize(nodeID NodeID) (*Snapshot, error) {
	n, err := t.lookup(nodeID)
	if err != nil {
		return nil, err
	}
	return t.serialize(n), nil
}

func (t *Tree) serialize(n *node) *Snapshot {
	if n.typ == TextNode {
		return &Snapshot{ID: n.id, Type: TextNode, Data: n.text}
	}

	snap := &Snapshot{
		ID:         n.id,
		Type:       ElementNode,
		Element:    n.tag,
		Properties: make(Properties, 0, len(n.attrs)),
	}
	for _, a := range n.attrs {
		snap.Properties = append(snap.Properties, Property{
			Name:  a.name,
			Value: codec.Decode(a.value, a.hint),
		})
	}
	if len(n.children) > 0 {
		snap.Children = make([]*Snapshot, len(n.children))
		for i, c := range n.children {
			snap.Children[i] = t.serialize(c)
		}
	}
	return snap
}

func (t *Tree) lookup(nodeID NodeID) (*node, error) {
	n, ok := t.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", nodeID, ErrNodeNotFound)
	}
	return n, nil
}

func (t *Tree) element(nodeID NodeID) (*node, error) {
	n, err := t.lookup(nodeID)
	if err != nil {
		return nil, err
	}
	if n.typ != ElementNode {
		return nil, fmt.Errorf("%s: %w", nodeID, ErrNotElement)
	}
	return n, nil
}

// connected reports whether n hangs off the root
func (t *Tree) connected(n *node) bool {
	for ; n != nil; n = n.parent {
		if n == t.root {
			return true
		}
	}
	return false
}

func indexOf(parent *node, child *node) int {
	for i, c := range parent.children {
		if c == child {
			return i
		}
	}
	return -1
}
