// Package mutation defines the records and messages a surface sends to its
// clients.
package mutation

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/remotedom/internal/domain/codec"
	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
)

// Kind identifies a mutation record. The numeric values are part of the
// wire format.
type Kind int

const (
	KindInsertChild Kind = iota
	KindRemoveChild
	KindUpdateText
	KindUpdateProperty
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindInsertChild:
		return "insert_child"
	case KindRemoveChild:
		return "remove_child"
	case KindUpdateText:
		return "update_text"
	case KindUpdateProperty:
		return "update_property"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Record is one tree edit. Only the fields of its Kind are meaningful.
type Record struct {
	Kind   Kind
	Target tree.NodeID
	Child  *tree.Snapshot
	Index  int
	Text   string
	Name   string
	Value  string
	Hint   codec.Hint
}

// InsertChild records child inserted under parent at index
func InsertChild(parent tree.NodeID, child *tree.Snapshot, index int) Record {
	return Record{Kind: KindInsertChild, Target: parent, Child: child, Index: index}
}

// RemoveChild records the removal of parent's child at index
func RemoveChild(parent tree.NodeID, index int) Record {
	return Record{Kind: KindRemoveChild, Target: parent, Index: index}
}

// UpdateText records new text content
func UpdateText(node tree.NodeID, text string) Record {
	return Record{Kind: KindUpdateText, Target: node, Text: text}
}

// UpdateProperty records an encoded property value and its hint
func UpdateProperty(node tree.NodeID, name, value string, hint codec.Hint) Record {
	return Record{Kind: KindUpdateProperty, Target: node, Name: name, Value: value, Hint: hint}
}

// Tuple returns the positional wire form of the record
func (r Record) Tuple() []any {
	switch r.Kind {
	case KindInsertChild:
		return []any{int(r.Kind), r.Target, r.Child, r.Index}
	case KindRemoveChild:
		return []any{int(r.Kind), r.Target, r.Index}
	case KindUpdateText:
		return []any{int(r.Kind), r.Target, r.Text}
	case KindUpdateProperty:
		return []any{int(r.Kind), r.Target, r.Name, r.Value, string(r.Hint)}
	default:
		return nil
	}
}

// MarshalJSON encodes the record as a fixed-shape array
func (r Record) MarshalJSON() ([]byte, error) {
	tuple := r.Tuple()
	if tuple == nil {
		return nil, fmt.Errorf("mutation: unknown kind %d", int(r.Kind))
	}
	return sonic.Marshal(tuple)
}

// Type names an outbound message
type Type string

const (
	TypeMutate Type = "mutate"
	TypeCall   Type = "call"
)

// Message is sent from a surface to its clients
type Message struct {
	Type      Type
	URI       string
	Mutations []Record

	ID     string
	Method string
	Args   []any
}

type mutateJSON struct {
	Type      Type     `json:"type"`
	Mutations []Record `json:"mutations"`
	URI       string   `json:"uri,omitempty"`
}

type callJSON struct {
	Type   Type   `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Args   []any  `json:"args"`
	URI    string `json:"uri,omitempty"`
}

// NewMutate builds a mutate message
func NewMutate(uri string, records []Record) *Message {
	return &Message{Type: TypeMutate, URI: uri, Mutations: records}
}

// NewCall builds a call message
func NewCall(uri, id, method string, args []any) *Message {
	return &Message{Type: TypeCall, URI: uri, ID: id, Method: method, Args: args}
}

// MarshalJSON emits only the keys of the message's type
func (m *Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case TypeMutate:
		records := m.Mutations
		if records == nil {
			records = []Record{}
		}
		return sonic.Marshal(mutateJSON{Type: m.Type, Mutations: records, URI: m.URI})
	case TypeCall:
		args := m.Args
		if args == nil {
			args = []any{}
		}
		args = codec.JSONValue(args).([]any)
		return sonic.Marshal(callJSON{Type: m.Type, ID: m.ID, Method: m.Method, Args: args, URI: m.URI})
	default:
		return nil, fmt.Errorf("mutation: unknown message type %q", m.Type)
	}
}

// Encode serialises a message for the wire
func Encode(m *Message) ([]byte, error) {
	return sonic.Marshal(m)
}
