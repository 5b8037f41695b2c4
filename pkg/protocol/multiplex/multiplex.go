// Package multiplex combines several protocols into one. Local changes go
// to every member. Changes received by a member go only to the members it
// is exposed to, so bridges between two networks are declared explicitly:
//
//	mux := multiplex.New(oscA, oscB)
//	mux.Expose(oscA, oscB) // values received on A are forwarded to B
package multiplex

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/value"
)

// Edge forwards values received by Source to Target.
type Edge struct {
	Source model.Protocol
	Target model.Protocol
}

// Multiplex is a protocol made of member protocols.
type Multiplex struct {
	mu      sync.RWMutex
	host    model.Host
	members []model.Protocol
	edges   []Edge
	closed  bool
}

// New returns a multiplex over members. Duplicates are ignored.
func New(members ...model.Protocol) *Multiplex {
	m := &Multiplex{}
	for _, p := range members {
		if p != nil && !m.contains(p) {
			m.members = append(m.members, p)
		}
	}
	return m
}

// Kind implements model.Protocol.
func (m *Multiplex) Kind() model.ProtocolKind { return model.ProtocolMultiplex }

// AddMember adds p. A multiplex that is already attached attaches p
// immediately.
func (m *Multiplex) AddMember(p model.Protocol) error {
	if p == nil || p == model.Protocol(m) {
		return fmt.Errorf("%w: invalid multiplex member", model.ErrUnsupported)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contains(p) {
		return fmt.Errorf("%w: %s protocol already a member", model.ErrDuplicateName, p.Kind())
	}
	if m.closed {
		return fmt.Errorf("%w: multiplex closed", model.ErrUnsupported)
	}
	if m.host != nil {
		if err := p.Attach(m.host); err != nil {
			return err
		}
	}
	m.members = append(m.members, p)
	return nil
}

// Expose forwards values received by source to target. Both must be
// members. Adding an existing edge is a no-op.
func (m *Multiplex) Expose(source, target model.Protocol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.contains(source) || !m.contains(target) {
		return fmt.Errorf("%w: exposure between non-members", model.ErrNotFound)
	}
	if source == target {
		return fmt.Errorf("%w: protocol exposed to itself", model.ErrUnsupported)
	}
	for _, e := range m.edges {
		if e.Source == source && e.Target == target {
			return nil
		}
	}
	m.edges = append(m.edges, Edge{Source: source, Target: target})
	return nil
}

// Members returns the members in insertion order.
func (m *Multiplex) Members() []model.Protocol {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Protocol(nil), m.members...)
}

// Edges returns the exposure edges in insertion order.
func (m *Multiplex) Edges() []Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Edge(nil), m.edges...)
}

// Contains reports whether p is a direct member.
func (m *Multiplex) Contains(p model.Protocol) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contains(p)
}

func (m *Multiplex) contains(p model.Protocol) bool {
	for _, q := range m.members {
		if q == p {
			return true
		}
	}
	return false
}

// Attach attaches every member to host. On failure the members attached
// so far are closed.
func (m *Multiplex) Attach(host model.Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.host != nil {
		return fmt.Errorf("%w: multiplex already attached", model.ErrUnsupported)
	}
	for i, p := range m.members {
		if err := p.Attach(host); err != nil {
			for _, q := range m.members[:i] {
				q.Close()
			}
			return fmt.Errorf("multiplex member %d (%s): %w", i, p.Kind(), err)
		}
	}
	m.host = host
	return nil
}

// targets returns the members a change from origin goes to.
func (m *Multiplex) targets(origin model.Protocol) []model.Protocol {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if origin == nil || !m.contains(origin) {
		return append([]model.Protocol(nil), m.members...)
	}
	var out []model.Protocol
	for _, e := range m.edges {
		if e.Source == origin {
			out = append(out, e.Target)
		}
	}
	return out
}

// Push offers the change to the members selected by the pass origin.
// Members already visited by the pass are skipped.
func (m *Multiplex) Push(p *model.Parameter, v value.Value, pass *model.Pass) error {
	if pass == nil {
		pass = model.NewPass(nil)
	}
	var errs []error
	for _, t := range m.targets(pass.Origin()) {
		if !pass.Visit(t) {
			continue
		}
		if err := t.Push(p, v, pass); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

// UpdateNamespace refreshes every member concurrently.
func (m *Multiplex) UpdateNamespace(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range m.Members() {
		g.Go(func() error { return p.UpdateNamespace(ctx) })
	}
	return g.Wait()
}

// Close closes every member.
func (m *Multiplex) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	members := append([]model.Protocol(nil), m.members...)
	m.mu.Unlock()

	var g errgroup.Group
	for _, p := range members {
		g.Go(p.Close)
	}
	return g.Wait()
}

var _ model.Protocol = (*Multiplex)(nil)
