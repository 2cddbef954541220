package tree

import (
	"bytes"
	"errors"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/remotedom/internal/domain/codec"
)

var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrNotElement      = errors.New("node is not an element")
	ErrNotText         = errors.New("node is not a text node")
	ErrHierarchy       = errors.New("invalid hierarchy")
	ErrIndexOutOfRange = errors.New("child index out of range")
)

// NodeID addresses a node within one tree
type NodeID string

// RootID is the fixed id of every tree's root element
const RootID NodeID = "~"

// RootTag is the tag name of the root element
const RootTag = "remote-root"

// NodeType follows DOM node type numbering
type NodeType int

const (
	ElementNode NodeType = 1
	TextNode    NodeType = 3
)

// String returns the string representation of the node type
func (t NodeType) String() string {
	switch t {
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	default:
		return "unknown"
	}
}

// Observer receives the four mutation callbacks for nodes connected to the
// root. Implementations must not call back into the tree.
type Observer interface {
	InsertChild(parent NodeID, child *Snapshot, index int)
	RemoveChild(parent NodeID, index int)
	UpdateText(node NodeID, text string)
	UpdateProperty(node NodeID, name, value string, hint codec.Hint)
}

// Property is a re-hydrated name/value pair
type Property struct {
	Name  string
	Value any
}

// Properties keeps property insertion order on the wire
type Properties []Property

// Get returns the value of a property by name
func (p Properties) Get(name string) (any, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Value, true
		}
	}
	return nil, false
}

// MarshalJSON writes a JSON object whose keys follow insertion order.
// Non-finite numbers are written as null.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, prop := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := sonic.Marshal(prop.Name)
		if err != nil {
			return nil, err
		}
		val, err := sonic.Marshal(codec.JSONValue(prop.Value))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Snapshot is the serialized form of a node and its subtree
type Snapshot struct {
	ID         NodeID
	Type       NodeType
	Element    string
	Properties Properties
	Children   []*Snapshot
	Data       string
}

type elementJSON struct {
	ID         NodeID      `json:"id"`
	Type       NodeType    `json:"type"`
	Element    string      `json:"element"`
	Properties Properties  `json:"properties"`
	Children   []*Snapshot `json:"children,omitempty"`
}

type textJSON struct {
	ID   NodeID   `json:"id"`
	Type NodeType `json:"type"`
	Data string   `json:"data"`
}

// MarshalJSON emits the element or text shape. Elements without children
// omit the children key entirely.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	if s.Type == TextNode {
		return sonic.Marshal(textJSON{ID: s.ID, Type: s.Type, Data: s.Data})
	}
	props := s.Properties
	if props == nil {
		props = Properties{}
	}
	return sonic.Marshal(elementJSON{
		ID:         s.ID,
		Type:       s.Type,
		Element:    s.Element,
		Properties: props,
		Children:   s.Children,
	})
}

// Count returns the number of nodes in the snapshot
func (s *Snapshot) Count() int {
	n := 1
	for _, c := range s.Children {
		n += c.Count()
	}
	return n
}
