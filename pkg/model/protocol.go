package model

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ossia-go/paramtree/pkg/metrics"
	"github.com/ossia-go/paramtree/pkg/value"
)

// ProtocolKind identifies a protocol variant.
type ProtocolKind uint8

const (
	ProtocolOSC ProtocolKind = iota
	ProtocolMinuit
	ProtocolOSCQueryServer
	ProtocolOSCQueryMirror
	ProtocolMultiplex
)

// String returns the protocol name used in logs and metric labels.
func (k ProtocolKind) String() string {
	switch k {
	case ProtocolOSC:
		return "osc"
	case ProtocolMinuit:
		return "minuit"
	case ProtocolOSCQueryServer:
		return "oscquery"
	case ProtocolOSCQueryMirror:
		return "oscquery-mirror"
	case ProtocolMultiplex:
		return "multiplex"
	default:
		return "unknown"
	}
}

// Protocol exposes a device tree over a transport.
type Protocol interface {
	// Kind returns the protocol variant.
	Kind() ProtocolKind

	// Attach binds the transport and starts its I/O goroutines. A failure
	// wraps ErrTransport and leaves the protocol unusable.
	Attach(host Host) error

	// Push offers an outbound change of p. pass records the protocols that
	// already handled this change.
	Push(p *Parameter, v value.Value, pass *Pass) error

	// UpdateNamespace refreshes the local tree from a remote namespace.
	// Protocols that do not mirror return nil.
	UpdateNamespace(ctx context.Context) error

	// Close stops the I/O goroutines and releases the transport. It blocks
	// until the goroutines exited.
	Close() error
}

// Host is the view a protocol has of its device.
type Host interface {
	Name() string
	Root() Node

	// Inbound resolves address, which may be an OSC pattern, and pushes v
	// into the matching parameters on behalf of origin.
	Inbound(origin Protocol, address string, v value.Value) error

	// Replicate pushes v into the parameter at an exact address without
	// enforcing its access mode.
	Replicate(origin Protocol, address string, v value.Value) error

	OnNodeCreated(fn func(Node)) CallbackID
	OnNodeRemoving(fn func(Node)) CallbackID
	OnParameterCreated(fn func(*Parameter)) CallbackID
	OnParameterDeleting(fn func(*Parameter)) CallbackID
	RemoveCallback(id CallbackID)

	Logger() *slog.Logger
	Metrics() *metrics.Metrics
}

// Pass tracks one propagation of a value through the protocols.
type Pass struct {
	origin Protocol

	mu      sync.Mutex
	visited []Protocol
}

// NewPass starts a propagation. A non-nil origin counts as visited.
func NewPass(origin Protocol) *Pass {
	p := &Pass{origin: origin}
	if origin != nil {
		p.visited = append(p.visited, origin)
	}
	return p
}

// Origin returns the protocol the value came from, or nil for local writes.
func (p *Pass) Origin() Protocol {
	return p.origin
}

// Visit marks proto as visited. It returns false if proto already was.
func (p *Pass) Visit(proto Protocol) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.visited {
		if v == proto {
			return false
		}
	}
	p.visited = append(p.visited, proto)
	return true
}

// Visited reports whether proto was visited.
func (p *Pass) Visited(proto Protocol) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.visited {
		if v == proto {
			return true
		}
	}
	return false
}
