package surface

import (
	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
)

// Root returns the root node id
func (s *Surface) Root() tree.NodeID {
	return tree.RootID
}

// CreateElement allocates a detached element
func (s *Surface) CreateElement(tag string) tree.NodeID {
	var id tree.NodeID
	_ = s.edit(func(t *tree.Tree) error {
		id = t.CreateElement(tag)
		return nil
	})
	return id
}

// CreateText allocates a detached text node
func (s *Surface) CreateText(text string) tree.NodeID {
	var id tree.NodeID
	_ = s.edit(func(t *tree.Tree) error {
		id = t.CreateText(text)
		return nil
	})
	return id
}

// SetProperty sets a typed property
func (s *Surface) SetProperty(id tree.NodeID, name string, value any) error {
	return s.edit(func(t *tree.Tree) error {
		return t.SetProperty(id, name, value)
	})
}

// AppendChild appends child to parent
func (s *Surface) AppendChild(parent, child tree.NodeID) error {
	return s.edit(func(t *tree.Tree) error {
		return t.AppendChild(parent, child)
	})
}

// InsertChild inserts child into parent at index
func (s *Surface) InsertChild(parent, child tree.NodeID, index int) error {
	return s.edit(func(t *tree.Tree) error {
		return t.InsertChild(parent, child, index)
	})
}

// RemoveChild removes parent's child at index. An index out of range panics.
func (s *Surface) RemoveChild(parent tree.NodeID, index int) error {
	return s.edit(func(t *tree.Tree) error {
		return t.RemoveChild(parent, index)
	})
}

// RemoveNode detaches and releases a node
func (s *Surface) RemoveNode(id tree.NodeID) error {
	return s.edit(func(t *tree.Tree) error {
		return t.RemoveNode(id)
	})
}

// ReleaseDetached drops nodes that were never attached or have been
// detached from the root. It records no mutations.
func (s *Surface) ReleaseDetached() int {
	var n int
	s.read(func(t *tree.Tree) {
		n = t.ReleaseDetached()
	})
	return n
}

// UpdateText replaces a text node's content
func (s *Surface) UpdateText(id tree.NodeID, text string) error {
	return s.edit(func(t *tree.Tree) error {
		return t.UpdateText(id, text)
	})
}

// Serialize snapshots a node without touching the batch or history
func (s *Surface) Serialize(id tree.NodeID) (*tree.Snapshot, error) {
	var (
		snap *tree.Snapshot
		err  error
	)
	s.read(func(t *tree.Tree) {
		snap, err = t.Serialize(id)
	})
	return snap, err
}

// Snapshot serialises the whole tree
func (s *Surface) Snapshot() *tree.Snapshot {
	snap, _ := s.Serialize(tree.RootID)
	return snap
}

// Property returns a decoded property value
func (s *Surface) Property(id tree.NodeID, name string) (any, bool, error) {
	var (
		v   any
		ok  bool
		err error
	)
	s.read(func(t *tree.Tree) {
		v, ok, err = t.Property(id, name)
	})
	return v, ok, err
}

// Children returns an element's child ids
func (s *Surface) Children(id tree.NodeID) ([]tree.NodeID, error) {
	var (
		ids []tree.NodeID
		err error
	)
	s.read(func(t *tree.Tree) {
		ids, err = t.Children(id)
	})
	return ids, err
}

// Parent returns a node's parent id
func (s *Surface) Parent(id tree.NodeID) (tree.NodeID, error) {
	var (
		parent tree.NodeID
		err    error
	)
	s.read(func(t *tree.Tree) {
		parent, err = t.Parent(id)
	})
	return parent, err
}

// Type returns a node's type
func (s *Surface) Type(id tree.NodeID) (tree.NodeType, error) {
	var (
		typ tree.NodeType
		err error
	)
	s.read(func(t *tree.Tree) {
		typ, err = t.Type(id)
	})
	return typ, err
}

// Contains reports whether id names a live node
func (s *Surface) Contains(id tree.NodeID) bool {
	var ok bool
	s.read(func(t *tree.Tree) {
		ok = t.Contains(id)
	})
	return ok
}

// Len returns the number of nodes in the tree
func (s *Surface) Len() int {
	var n int
	s.read(func(t *tree.Tree) {
		n = t.Len()
	})
	return n
}
