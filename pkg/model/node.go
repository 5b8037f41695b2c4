package model

import (
	"fmt"
	"strconv"

	"github.com/ossia-go/paramtree/pkg/value"
)

// Node is a handle to a point in a device's tree. The zero Node is invalid.
type Node struct {
	t   *tree
	idx int32
	gen uint32
}

// Valid reports whether the node still exists.
func (n Node) Valid() bool {
	if n.t == nil {
		return false
	}
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	_, ok := n.t.lookup(n)
	return ok
}

// IsRoot reports whether n is the root of its device.
func (n Node) IsRoot() bool {
	return n.t != nil && n.idx == rootIndex
}

// Device returns the device owning the node.
func (n Node) Device() *Device {
	if n.t == nil {
		return nil
	}
	return n.t.dev
}

// Name returns the node name. The root has an empty name.
func (n Node) Name() string {
	if n.t == nil {
		return ""
	}
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	s, ok := n.t.lookup(n)
	if !ok {
		return ""
	}
	return s.name
}

// Address returns the "/"-joined path of the node from the root.
func (n Node) Address() string {
	if n.t == nil {
		return ""
	}
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	if _, ok := n.t.lookup(n); !ok {
		return ""
	}
	return n.t.address(n.idx)
}

// String implements fmt.Stringer.
func (n Node) String() string {
	if a := n.Address(); a != "" {
		return a
	}
	return "<removed>"
}

// Parent returns the parent node. The root has none.
func (n Node) Parent() (Node, bool) {
	if n.t == nil {
		return Node{}, false
	}
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	s, ok := n.t.lookup(n)
	if !ok || s.parent < 0 {
		return Node{}, false
	}
	return n.t.handle(s.parent), true
}

// Children returns the children in creation order.
func (n Node) Children() []Node {
	if n.t == nil {
		return nil
	}
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	s, ok := n.t.lookup(n)
	if !ok {
		return nil
	}
	out := make([]Node, len(s.children))
	for i, c := range s.children {
		out[i] = n.t.handle(c)
	}
	return out
}

// ChildCount returns the number of children.
func (n Node) ChildCount() int {
	if n.t == nil {
		return 0
	}
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	s, ok := n.t.lookup(n)
	if !ok {
		return 0
	}
	return len(s.children)
}

// Child returns the i-th child in creation order.
func (n Node) Child(i int) (Node, bool) {
	if n.t == nil {
		return Node{}, false
	}
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	s, ok := n.t.lookup(n)
	if !ok || i < 0 || i >= len(s.children) {
		return Node{}, false
	}
	return n.t.handle(s.children[i]), true
}

// FindChild returns the direct child with the given name.
func (n Node) FindChild(name string) (Node, bool) {
	if n.t == nil {
		return Node{}, false
	}
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	s, ok := n.t.lookup(n)
	if !ok {
		return Node{}, false
	}
	c, ok := s.index[name]
	if !ok {
		return Node{}, false
	}
	return n.t.handle(c), true
}

// Find resolves a path relative to n, or from the root when path starts
// with "/". Missing segments yield false.
func (n Node) Find(path string) (Node, bool) {
	if n.t == nil {
		return Node{}, false
	}
	segs, abs, err := splitPath(path)
	if err != nil {
		return Node{}, false
	}
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	if _, ok := n.t.lookup(n); !ok {
		return Node{}, false
	}
	start := n.idx
	if abs {
		start = rootIndex
	}
	idx, ok := n.t.resolve(start, segs)
	if !ok {
		return Node{}, false
	}
	return n.t.handle(idx), true
}

// AddChild creates a direct child. An existing child with the same name
// fails with ErrDuplicateName.
func (n Node) AddChild(name string) (Node, error) {
	if err := ValidateName(name); err != nil {
		return Node{}, err
	}
	return n.create([]string{name}, n, true)
}

// CreateChild creates the node at path, creating missing intermediate
// nodes. Existing intermediates are reused; an existing leaf fails with
// ErrDuplicateName.
func (n Node) CreateChild(path string) (Node, error) {
	segs, start, err := n.parsePath(path)
	if err != nil {
		return Node{}, err
	}
	return n.create(segs, start, true)
}

// FindOrCreate returns the node at path, creating it and any missing
// intermediates when needed.
func (n Node) FindOrCreate(path string) (Node, error) {
	segs, start, err := n.parsePath(path)
	if err != nil {
		return Node{}, err
	}
	return n.create(segs, start, false)
}

func (n Node) parsePath(path string) ([]string, Node, error) {
	if n.t == nil {
		return nil, Node{}, ErrRemoved
	}
	segs, abs, err := splitPath(path)
	if err != nil {
		return nil, Node{}, err
	}
	if len(segs) == 0 {
		return nil, Node{}, fmt.Errorf("%w: empty path", ErrInvalidName)
	}
	start := n
	if abs {
		start = n.t.root()
	}
	return segs, start, nil
}

func (n Node) create(segs []string, start Node, exclusive bool) (Node, error) {
	if n.t == nil {
		return Node{}, ErrRemoved
	}
	t := n.t
	t.structMu.Lock()
	defer t.structMu.Unlock()

	leaf, created, err := t.ensure(start, segs, exclusive)
	t.dev.nodesCreated(created)
	if err != nil {
		return Node{}, err
	}
	return leaf, nil
}

// RemoveChild removes the direct child with the given name and its subtree.
func (n Node) RemoveChild(name string) error {
	c, ok := n.FindChild(name)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, n.Address(), name)
	}
	return c.Remove()
}

// Remove detaches n and its subtree from the tree. For every removed node,
// children first, ParameterDeleting fires (if it has a parameter) and then
// NodeRemoving, all before anything is detached. The root cannot be removed.
func (n Node) Remove() error {
	if n.t == nil {
		return ErrRemoved
	}
	if n.IsRoot() {
		return fmt.Errorf("%w: cannot remove the root node", ErrUnsupported)
	}
	t := n.t
	t.structMu.Lock()
	defer t.structMu.Unlock()

	t.mu.RLock()
	if _, ok := t.lookup(n); !ok {
		t.mu.RUnlock()
		return ErrRemoved
	}
	order := t.collect(n.idx)
	nodes := make([]Node, len(order))
	params := make([]*Parameter, len(order))
	for i, idx := range order {
		nodes[i] = t.handle(idx)
		params[i] = t.slots[idx].param
	}
	t.mu.RUnlock()

	for i, node := range nodes {
		if params[i] != nil {
			t.dev.parameterDeleting(params[i])
		}
		t.dev.nodeRemoving(node)
	}

	t.mu.Lock()
	removed := t.release(n.idx)
	count := t.count
	t.mu.Unlock()

	for _, p := range removed {
		p.detach()
	}
	t.dev.metrics.SetNodes(count)
	return nil
}

// CreateParameter attaches a new parameter of type typ. A node holds at
// most one parameter.
func (n Node) CreateParameter(typ value.Type) (*Parameter, error) {
	if n.t == nil {
		return nil, ErrRemoved
	}
	t := n.t
	t.structMu.Lock()
	defer t.structMu.Unlock()

	t.mu.Lock()
	s, ok := t.lookup(n)
	if !ok {
		t.mu.Unlock()
		return nil, ErrRemoved
	}
	if s.param != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s already has a parameter", ErrDuplicateName, t.address(n.idx))
	}
	p := newParameter(n, typ)
	s.param = p
	t.mu.Unlock()

	t.dev.parameterCreated(p)
	return p, nil
}

// Parameter returns the parameter attached to n.
func (n Node) Parameter() (*Parameter, bool) {
	if n.t == nil {
		return nil, false
	}
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	s, ok := n.t.lookup(n)
	if !ok || s.param == nil {
		return nil, false
	}
	return s.param, true
}

// RemoveParameter detaches the parameter of n, firing ParameterDeleting
// first. It is a no-op when n has no parameter.
func (n Node) RemoveParameter() error {
	if n.t == nil {
		return ErrRemoved
	}
	t := n.t
	t.structMu.Lock()
	defer t.structMu.Unlock()

	p, ok := n.Parameter()
	if !ok {
		if !n.Valid() {
			return ErrRemoved
		}
		return nil
	}
	t.dev.parameterDeleting(p)

	t.mu.Lock()
	if s, ok := t.lookup(n); ok {
		s.param = nil
	}
	t.mu.Unlock()

	p.detach()
	return nil
}

// Split fans a list or vector parameter out into child parameters named
// "0", "1", ... holding one element each. Missing children and parameters
// are created with the element's type; element values are written with
// SetValue.
func (p *Parameter) Split() ([]*Parameter, error) {
	v := p.Value()
	if v.Type() != value.TypeList && v.Type().Arity() == 0 {
		return nil, fmt.Errorf("%w: cannot split %s parameter", ErrUnsupported, v.Type())
	}
	elems, err := v.ToList()
	if err != nil {
		return nil, err
	}
	out := make([]*Parameter, 0, len(elems))
	for i, e := range elems {
		child, err := p.node.FindOrCreate(strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		cp, ok := child.Parameter()
		if !ok {
			if cp, err = child.CreateParameter(e.Type()); err != nil {
				return nil, err
			}
		}
		if err := cp.SetValue(e); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, cp)
	}
	return out, nil
}
