package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ossia-go/paramtree/pkg/metrics"
	"github.com/ossia-go/paramtree/pkg/subscription"
	"github.com/ossia-go/paramtree/pkg/value"
)

type callbackKind uint8

const (
	callbackNodeCreated callbackKind = iota + 1
	callbackNodeRemoving
	callbackParameterCreated
	callbackParameterDeleting
)

// CallbackID identifies a tree notification registration.
type CallbackID struct {
	kind  callbackKind
	token subscription.Token
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.logger = l }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Device) { d.metrics = m }
}

// Device owns a parameter tree and the protocols exposing it.
type Device struct {
	name    string
	tree    *tree
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	protocols []Protocol

	createdSubs       subscription.Registry[func(Node)]
	removingSubs      subscription.Registry[func(Node)]
	paramCreatedSubs  subscription.Registry[func(*Parameter)]
	paramDeletingSubs subscription.Registry[func(*Parameter)]

	ctx    context.Context
	cancel context.CancelFunc

	// lifeMu orders refresh.Add against Close.
	lifeMu  sync.Mutex
	refresh sync.WaitGroup
	closed  atomic.Bool
}

// NewDevice creates a device named name and attaches proto to it. A nil
// proto creates a local-only device. If proto cannot bind, no device is
// returned.
func NewDevice(name string, proto Protocol, opts ...Option) (*Device, error) {
	d := &Device{name: name}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("device", name)
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.tree = newTree(d)
	d.metrics.SetNodes(1)

	if proto != nil {
		if err := d.AddProtocol(proto); err != nil {
			d.cancel()
			return nil, err
		}
	}
	return d, nil
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Root returns the root node.
func (d *Device) Root() Node { return d.tree.root() }

// Logger returns the operational logger.
func (d *Device) Logger() *slog.Logger { return d.logger }

// Metrics returns the metrics collectors, which may be nil.
func (d *Device) Metrics() *metrics.Metrics { return d.metrics }

// NodeCount returns the number of nodes, including the root.
func (d *Device) NodeCount() int {
	d.tree.mu.RLock()
	defer d.tree.mu.RUnlock()
	return d.tree.count
}

// AddProtocol attaches proto to the device.
func (d *Device) AddProtocol(proto Protocol) error {
	if d.closed.Load() {
		return fmt.Errorf("%w: device closed", ErrUnsupported)
	}
	d.mu.RLock()
	for _, p := range d.protocols {
		if p == proto {
			d.mu.RUnlock()
			return fmt.Errorf("%w: %s protocol already attached", ErrDuplicateName, proto.Kind())
		}
	}
	d.mu.RUnlock()

	if err := proto.Attach(d); err != nil {
		d.logger.Error("protocol attach failed", "protocol", proto.Kind(), "err", err)
		return err
	}

	d.mu.Lock()
	d.protocols = append(d.protocols, proto)
	d.mu.Unlock()
	d.logger.Info("protocol attached", "protocol", proto.Kind())
	return nil
}

// RemoveProtocol detaches proto and closes it.
func (d *Device) RemoveProtocol(proto Protocol) error {
	d.mu.Lock()
	idx := -1
	for i, p := range d.protocols {
		if p == proto {
			idx = i
			break
		}
	}
	if idx < 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: protocol %s", ErrNotFound, proto.Kind())
	}
	d.protocols = append(d.protocols[:idx:idx], d.protocols[idx+1:]...)
	d.mu.Unlock()

	return proto.Close()
}

// Protocols returns the attached protocols in attachment order.
func (d *Device) Protocols() []Protocol {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Protocol(nil), d.protocols...)
}

// UpdateNamespace starts an asynchronous refresh of every mirroring
// protocol. Failures are logged.
func (d *Device) UpdateNamespace() {
	d.lifeMu.Lock()
	if d.closed.Load() {
		d.lifeMu.Unlock()
		return
	}
	d.refresh.Add(1)
	d.lifeMu.Unlock()
	go func() {
		defer d.refresh.Done()
		if err := d.SyncNamespace(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("namespace refresh failed", "err", err)
		}
	}()
}

// SyncNamespace refreshes every protocol concurrently and returns the first
// error.
func (d *Device) SyncNamespace(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range d.Protocols() {
		g.Go(func() error {
			if err := p.UpdateNamespace(ctx); err != nil {
				return fmt.Errorf("%s: %w", p.Kind(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Wait blocks until pending namespace refreshes have finished.
func (d *Device) Wait() {
	d.refresh.Wait()
}

// Close stops every protocol and waits for pending refreshes. The tree
// stays readable afterwards.
func (d *Device) Close() error {
	d.lifeMu.Lock()
	if !d.closed.CompareAndSwap(false, true) {
		d.lifeMu.Unlock()
		return nil
	}
	d.lifeMu.Unlock()
	d.cancel()
	d.refresh.Wait()

	d.mu.Lock()
	protos := d.protocols
	d.protocols = nil
	d.mu.Unlock()

	var g errgroup.Group
	for _, p := range protos {
		g.Go(p.Close)
	}
	return g.Wait()
}

// Inbound resolves address and pushes v into the matching parameters on
// behalf of origin. Exact addresses fail with ErrNotFound when missing and
// ErrAccessDenied when the parameter is read-only; pattern addresses skip
// such nodes silently.
func (d *Device) Inbound(origin Protocol, address string, v value.Value) error {
	root := d.Root()
	if IsPattern(address) {
		for _, n := range root.FindPattern(address) {
			p, ok := n.Parameter()
			if !ok || !p.Access().Writable() {
				continue
			}
			if err := p.push(v, NewPass(origin)); err != nil {
				d.logger.Debug("inbound push failed", "address", n.Address(), "err", err)
			}
		}
		return nil
	}

	n, ok := root.Find(address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	p, ok := n.Parameter()
	if !ok {
		return fmt.Errorf("%w: no parameter at %s", ErrNotFound, address)
	}
	if !p.Access().Writable() {
		return fmt.Errorf("%w: %s is read-only", ErrAccessDenied, address)
	}
	return p.push(v, NewPass(origin))
}

// Replicate pushes v into the parameter at the exact address on behalf of
// origin without enforcing the access mode. Protocols mirroring a remote
// tree use it for values coming from the authoritative copy.
func (d *Device) Replicate(origin Protocol, address string, v value.Value) error {
	n, ok := d.Root().Find(address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	p, ok := n.Parameter()
	if !ok {
		return fmt.Errorf("%w: no parameter at %s", ErrNotFound, address)
	}
	return p.push(v, NewPass(origin))
}

// propagate offers a parameter change to every protocol not yet visited.
func (d *Device) propagate(p *Parameter, v value.Value, pass *Pass) {
	if pass == nil {
		pass = NewPass(nil)
	}
	for _, proto := range d.Protocols() {
		if !pass.Visit(proto) {
			continue
		}
		if err := proto.Push(p, v, pass); err != nil {
			d.logger.Debug("outbound push failed",
				"protocol", proto.Kind(), "address", p.Address(), "err", err)
		}
	}
}

// OnNodeCreated registers fn for node creation.
func (d *Device) OnNodeCreated(fn func(Node)) CallbackID {
	return CallbackID{kind: callbackNodeCreated, token: d.createdSubs.Add(fn)}
}

// OnNodeRemoving registers fn for node removal. fn runs while the node is
// still attached.
func (d *Device) OnNodeRemoving(fn func(Node)) CallbackID {
	return CallbackID{kind: callbackNodeRemoving, token: d.removingSubs.Add(fn)}
}

// OnParameterCreated registers fn for parameter creation.
func (d *Device) OnParameterCreated(fn func(*Parameter)) CallbackID {
	return CallbackID{kind: callbackParameterCreated, token: d.paramCreatedSubs.Add(fn)}
}

// OnParameterDeleting registers fn for parameter removal. fn runs while the
// parameter is still attached.
func (d *Device) OnParameterDeleting(fn func(*Parameter)) CallbackID {
	return CallbackID{kind: callbackParameterDeleting, token: d.paramDeletingSubs.Add(fn)}
}

// RemoveCallback unregisters a tree notification. Unknown ids are ignored.
func (d *Device) RemoveCallback(id CallbackID) {
	switch id.kind {
	case callbackNodeCreated:
		d.createdSubs.Remove(id.token)
	case callbackNodeRemoving:
		d.removingSubs.Remove(id.token)
	case callbackParameterCreated:
		d.paramCreatedSubs.Remove(id.token)
	case callbackParameterDeleting:
		d.paramDeletingSubs.Remove(id.token)
	}
}

func (d *Device) nodesCreated(nodes []Node) {
	if len(nodes) == 0 {
		return
	}
	d.metrics.SetNodes(d.NodeCount())
	fns := d.createdSubs.Snapshot()
	for _, n := range nodes {
		for _, fn := range fns {
			fn(n)
		}
	}
}

func (d *Device) nodeRemoving(n Node) {
	for _, fn := range d.removingSubs.Snapshot() {
		fn(n)
	}
}

func (d *Device) parameterCreated(p *Parameter) {
	for _, fn := range d.paramCreatedSubs.Snapshot() {
		fn(p)
	}
}

func (d *Device) parameterDeleting(p *Parameter) {
	for _, fn := range d.paramDeletingSubs.Snapshot() {
		fn(p)
	}
}

var _ Host = (*Device)(nil)
