// Package protocol holds the inbound plumbing shared by the OSC based
// protocols. The protocol variants live in its subpackages.
package protocol

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ossia-go/paramtree/pkg/log"
	"github.com/ossia-go/paramtree/pkg/metrics"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/value"
	"github.com/ossia-go/paramtree/pkg/wire"
)

// DropReason maps an inbound failure to a metrics drop reason.
func DropReason(err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return metrics.ReasonNotFound
	case errors.Is(err, model.ErrAccessDenied):
		return metrics.ReasonAccess
	case errors.Is(err, value.ErrTypeMismatch):
		return metrics.ReasonType
	default:
		return metrics.ReasonDecode
	}
}

// Limits on bundles held for a future time tag.
const (
	DefaultMaxBundleDelay    = 24 * time.Hour
	DefaultMaxPendingBundles = 1024
)

// Dispatcher decodes OSC packets and delivers their messages to a host on
// behalf of one protocol. Bundles with a future time tag are delivered when
// due. Failures are logged, counted and dropped.
type Dispatcher struct {
	host    model.Host
	origin  model.Protocol
	kind    string
	capture log.Capture
	logger  *slog.Logger

	// Learn creates a parameter for messages sent to unknown exact
	// addresses, typed after the received value.
	Learn bool

	// Authoritative delivers exact addresses with Host.Replicate, for
	// protocols mirroring a remote tree.
	Authoritative bool

	// Intercept sees every message first. Returning true consumes it.
	Intercept func(msg *wire.Message, remote string) bool

	// MaxBundleDelay and MaxPendingBundles bound scheduled bundles. A
	// bundle due later, or arriving while the limit is reached, is dropped.
	// Zero selects the defaults.
	MaxBundleDelay    time.Duration
	MaxPendingBundles int

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
}

// NewDispatcher returns a dispatcher delivering to host as origin.
func NewDispatcher(host model.Host, origin model.Protocol, capture log.Capture) *Dispatcher {
	kind := origin.Kind().String()
	return &Dispatcher{
		host:    host,
		origin:  origin,
		kind:    kind,
		capture: capture,
		logger:  host.Logger().With("protocol", kind),
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Packet decodes and delivers one packet.
func (d *Dispatcher) Packet(data []byte, remote string) {
	p, err := wire.ParsePacket(data)
	if err != nil {
		d.host.Metrics().MessageReceived(d.kind)
		d.host.Metrics().MessageDropped(d.kind, metrics.ReasonDecode)
		d.capture.Error(log.LayerWire, remote, err, "decode packet")
		d.logger.Debug("malformed packet", "remote", remote, "err", err)
		return
	}
	switch t := p.(type) {
	case *wire.Message:
		d.Message(t, remote, len(data))
	case *wire.Bundle:
		d.bundle(t, remote)
	}
}

func (d *Dispatcher) bundle(b *wire.Bundle, remote string) {
	deliver := func() {
		for _, m := range b.Messages() {
			d.Message(m, remote, 0)
		}
	}
	delay := b.Timetag.Delay(time.Now())
	if delay <= 0 {
		deliver()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	maxDelay, maxPending := d.MaxBundleDelay, d.MaxPendingBundles
	if maxDelay <= 0 {
		maxDelay = DefaultMaxBundleDelay
	}
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingBundles
	}
	if delay > maxDelay || len(d.timers) >= maxPending {
		m := d.host.Metrics()
		for range b.Messages() {
			m.MessageReceived(d.kind)
			m.MessageDropped(d.kind, metrics.ReasonSchedule)
		}
		d.logger.Debug("scheduled bundle dropped", "remote", remote, "delay", delay, "pending", len(d.timers))
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		_, pending := d.timers[timer]
		delete(d.timers, timer)
		d.mu.Unlock()
		if pending {
			deliver()
		}
	})
	d.timers[timer] = struct{}{}
}

// Message delivers one decoded message. size is the encoded size when known.
func (d *Dispatcher) Message(msg *wire.Message, remote string, size int) {
	m := d.host.Metrics()
	m.MessageReceived(d.kind)
	d.capture.Message(log.DirectionIn, remote, msg, size)

	if d.Intercept != nil && d.Intercept(msg, remote) {
		return
	}

	v, err := wire.ValueFromArguments(msg.Arguments)
	if err != nil {
		m.MessageDropped(d.kind, metrics.ReasonDecode)
		d.logger.Debug("undecodable arguments", "address", msg.Address, "err", err)
		return
	}

	err = d.deliver(msg.Address, v)
	if err != nil && d.Learn && errors.Is(err, model.ErrNotFound) && !model.IsPattern(msg.Address) {
		err = d.learn(msg.Address, v)
	}
	if err != nil {
		m.MessageDropped(d.kind, DropReason(err))
		d.logger.Debug("inbound message dropped", "address", msg.Address, "remote", remote, "err", err)
	}
}

func (d *Dispatcher) deliver(address string, v value.Value) error {
	if d.Authoritative && !model.IsPattern(address) {
		return d.host.Replicate(d.origin, address, v)
	}
	return d.host.Inbound(d.origin, address, v)
}

func (d *Dispatcher) learn(address string, v value.Value) error {
	n, err := d.host.Root().FindOrCreate(address)
	if err != nil {
		return err
	}
	if _, ok := n.Parameter(); !ok {
		if _, err := n.CreateParameter(v.Type()); err != nil && !errors.Is(err, model.ErrDuplicateName) {
			return err
		}
		d.logger.Info("learned parameter", "address", address, "type", v.Type())
	}
	return d.host.Inbound(d.origin, address, v)
}

// Pending returns the number of bundles waiting for their time tag.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Close discards bundles that are not yet due.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for t := range d.timers {
		t.Stop()
	}
	clear(d.timers)
}
