package model

import (
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// slot is one arena entry. A slot is reused after removal with a bumped
// generation.
type slot struct {
	gen      uint32
	live     bool
	name     string
	parent   int32
	children []int32
	index    map[string]int32
	param    *Parameter
	meta     metadata
}

// tree is the node arena of one device.
type tree struct {
	dev *Device

	// structMu serializes structural mutation. Tree callbacks run with
	// structMu held and mu released, so they may read the tree.
	structMu sync.Mutex

	mu    sync.RWMutex
	slots []slot
	free  []int32
	count int
}

// The root slot is never released, so its generation never changes.
const (
	rootIndex = 0
	rootGen   = 1
)

func newTree(dev *Device) *tree {
	return &tree{
		dev:   dev,
		slots: []slot{{gen: rootGen, live: true, parent: -1}},
		count: 1,
	}
}

// root needs no lock; it never touches the slots.
func (t *tree) root() Node {
	return Node{t: t, idx: rootIndex, gen: rootGen}
}

// lookup returns the slot for n. Caller holds t.mu.
func (t *tree) lookup(n Node) (*slot, bool) {
	if n.t != t || n.idx < 0 || int(n.idx) >= len(t.slots) {
		return nil, false
	}
	s := &t.slots[n.idx]
	if !s.live || s.gen != n.gen {
		return nil, false
	}
	return s, true
}

// handle returns the node for idx. Caller holds t.mu.
func (t *tree) handle(idx int32) Node {
	return Node{t: t, idx: idx, gen: t.slots[idx].gen}
}

// alloc attaches a new child to parent. Caller holds t.mu for writing.
func (t *tree) alloc(parent int32, name string) int32 {
	var idx int32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
		gen := t.slots[idx].gen
		t.slots[idx] = slot{gen: gen, live: true, name: name, parent: parent}
	} else {
		idx = int32(len(t.slots))
		t.slots = append(t.slots, slot{gen: 1, live: true, name: name, parent: parent})
	}
	p := &t.slots[parent]
	if p.index == nil {
		p.index = make(map[string]int32)
	}
	p.index[name] = idx
	p.children = append(p.children, idx)
	t.count++
	return idx
}

// release detaches the subtree rooted at idx. Caller holds t.mu for writing.
func (t *tree) release(idx int32) []*Parameter {
	var params []*Parameter
	s := &t.slots[idx]
	if s.parent >= 0 {
		p := &t.slots[s.parent]
		delete(p.index, s.name)
		for i, c := range p.children {
			if c == idx {
				p.children = append(p.children[:i:i], p.children[i+1:]...)
				break
			}
		}
	}
	var walk func(i int32)
	walk = func(i int32) {
		sl := &t.slots[i]
		for _, c := range sl.children {
			walk(c)
		}
		if sl.param != nil {
			params = append(params, sl.param)
		}
		gen := sl.gen + 1
		t.slots[i] = slot{gen: gen, parent: -1}
		t.free = append(t.free, i)
		t.count--
	}
	walk(idx)
	return params
}

// collect returns the subtree rooted at idx, children before parents.
// Caller holds t.mu.
func (t *tree) collect(idx int32) []int32 {
	var out []int32
	var walk func(i int32)
	walk = func(i int32) {
		for _, c := range t.slots[i].children {
			walk(c)
		}
		out = append(out, i)
	}
	walk(idx)
	return out
}

// ensure walks segs from start, creating missing nodes. When exclusive is
// set an existing leaf fails with ErrDuplicateName. Caller holds structMu.
func (t *tree) ensure(start Node, segs []string, exclusive bool) (Node, []Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.lookup(start); !ok {
		return Node{}, nil, ErrRemoved
	}
	cur := start.idx
	var created []Node
	for i, seg := range segs {
		if c, ok := t.slots[cur].index[seg]; ok {
			if exclusive && i == len(segs)-1 {
				return Node{}, created, fmt.Errorf("%w: %s", ErrDuplicateName, t.address(c))
			}
			cur = c
			continue
		}
		cur = t.alloc(cur, seg)
		created = append(created, t.handle(cur))
	}
	return t.handle(cur), created, nil
}

// address builds the path of idx. Caller holds t.mu.
func (t *tree) address(idx int32) string {
	if idx == rootIndex {
		return "/"
	}
	var parts []string
	for i := idx; i != rootIndex && i >= 0; i = t.slots[i].parent {
		parts = append(parts, t.slots[i].name)
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

// resolve walks segs from start without creating. Caller holds t.mu.
func (t *tree) resolve(start int32, segs []string) (int32, bool) {
	cur := start
	for _, seg := range segs {
		c, ok := t.slots[cur].index[seg]
		if !ok {
			return 0, false
		}
		cur = c
	}
	return cur, true
}

// ValidateName checks that name may be used for a node.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	for _, r := range name {
		if unicode.IsSpace(r) || strings.ContainsRune("/*?[]{},#", r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, r)
		}
	}
	return nil
}

// splitPath splits an address into validated segments. A leading "/" makes
// the path absolute.
func splitPath(path string) (segs []string, absolute bool, err error) {
	absolute = strings.HasPrefix(path, "/")
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if err := ValidateName(seg); err != nil {
			return nil, absolute, err
		}
		segs = append(segs, seg)
	}
	return segs, absolute, nil
}
