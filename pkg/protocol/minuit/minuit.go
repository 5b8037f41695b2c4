// Package minuit implements the Minuit protocol: OSC over UDP plus textual
// requests that let a peer discover and query the namespace.
//
// Requests are addressed "<application>?<verb>" and answered with
// "<application>:<verb>":
//
//	app?namespace /synth         app:namespace /synth Container nodes={ freq wave }
//	app?get /synth/freq:value    app:get /synth/freq:value 440.0
//	app?listen /synth/freq:value enable
//	                             app:listen /synth/freq:value 442.0
//
// Plain OSC value messages are dropped until the peers have exchanged a
// namespace request or reply.
package minuit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ossia-go/paramtree/pkg/log"
	"github.com/ossia-go/paramtree/pkg/metrics"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/protocol"
	"github.com/ossia-go/paramtree/pkg/transport"
	"github.com/ossia-go/paramtree/pkg/value"
	"github.com/ossia-go/paramtree/pkg/wire"
)

const kind = "minuit"

// Config configures a Minuit protocol.
type Config struct {
	// LocalName is the application name prefixing our requests and replies.
	LocalName string

	// RemoteHost and RemotePort address the peer.
	RemoteHost string
	RemotePort int

	// LocalPort receives messages. Zero picks an ephemeral port.
	LocalPort int

	// LocalHost is the interface to bind (default: all).
	LocalHost string

	// RequestTimeout bounds each namespace or get request (default: 5s).
	RequestTimeout time.Duration

	// Logger for operational messages (default: the device logger).
	Logger *slog.Logger

	// ProtocolLogger captures packets and messages (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns the customary Minuit ports.
func DefaultConfig() Config {
	return Config{
		LocalName:      "paramtree",
		RemoteHost:     "127.0.0.1",
		RemotePort:     13579,
		LocalPort:      9998,
		RequestTimeout: 5 * time.Second,
	}
}

// Protocol is a Minuit protocol instance.
type Protocol struct {
	config Config

	mu         sync.Mutex
	host       model.Host
	logger     *slog.Logger
	capture    log.Capture
	dispatcher *protocol.Dispatcher
	remote     *net.UDPAddr
	server     *transport.PacketServer
	closed     bool

	// listening holds the addresses the peer asked to follow.
	listening map[string]bool
	waiters   map[string][]chan []any

	ready atomic.Bool
}

// New returns an unattached Minuit protocol.
func New(config Config) *Protocol {
	def := DefaultConfig()
	if config.LocalName == "" {
		config.LocalName = def.LocalName
	}
	if config.RemoteHost == "" {
		config.RemoteHost = def.RemoteHost
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = def.RequestTimeout
	}
	return &Protocol{
		config:    config,
		listening: make(map[string]bool),
		waiters:   make(map[string][]chan []any),
	}
}

// Kind implements model.Protocol.
func (p *Protocol) Kind() model.ProtocolKind { return model.ProtocolMinuit }

// Ready reports whether the handshake with the peer completed.
func (p *Protocol) Ready() bool { return p.ready.Load() }

// Attach binds the local port and announces the device to the peer.
func (p *Protocol) Attach(host model.Host) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.host != nil {
		return fmt.Errorf("%w: minuit protocol already attached", model.ErrUnsupported)
	}
	if p.config.RemotePort == 0 {
		return fmt.Errorf("%w: minuit needs a remote port", model.ErrTransport)
	}
	remote, err := transport.ResolveUDP(p.config.RemoteHost, p.config.RemotePort)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}

	p.logger = p.config.Logger
	if p.logger == nil {
		p.logger = host.Logger()
	}
	p.logger = p.logger.With("protocol", kind)
	p.capture = log.Capture{Logger: p.config.ProtocolLogger, Protocol: kind, Device: host.Name()}
	p.remote = remote
	p.host = host
	p.dispatcher = protocol.NewDispatcher(host, p, p.capture)
	p.dispatcher.Intercept = p.intercept

	p.server = transport.NewPacketServer(transport.PacketConfig{
		Address: net.JoinHostPort(p.config.LocalHost, strconv.Itoa(p.config.LocalPort)),
		Capture: p.capture,
		OnPacket: func(data []byte, from net.Addr) {
			p.dispatcher.Packet(data, from.String())
		},
		OnError: func(err error) { p.logger.Warn("receive failed", "err", err) },
	})
	if err := p.server.Start(context.Background()); err != nil {
		p.host = nil
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}

	p.logger.Info("minuit bound", "local", p.server.Addr(), "remote", remote, "name", p.config.LocalName)
	if err := p.sendLocked(p.message(false, verbNamespace, "/")); err != nil {
		p.logger.Debug("namespace announce failed", "err", err)
	}
	return nil
}

// LocalAddr returns the bound address, or nil when unattached.
func (p *Protocol) LocalAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server == nil {
		return nil
	}
	return p.server.Addr()
}

func (p *Protocol) message(reply bool, verb string, args ...any) *wire.Message {
	c := command{app: p.config.LocalName, reply: reply, verb: verb}
	return wire.NewMessage(c.String(), args...)
}

// Push sends v to the peer, as a listen reply when the peer follows the
// parameter and as a plain OSC message otherwise.
func (p *Protocol) Push(param *model.Parameter, v value.Value, _ *model.Pass) error {
	addr := param.Address()
	args := wire.ArgumentsFromValue(v)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.host == nil || p.closed {
		return fmt.Errorf("%w: minuit protocol not attached", model.ErrTransport)
	}
	msg := wire.NewMessage(addr, args...)
	if p.listening[addr] {
		msg = p.message(true, verbListen, append([]any{addr + ":" + attrValue}, args...)...)
	}
	return p.sendLocked(msg)
}

func (p *Protocol) send(msg *wire.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: minuit protocol closed", model.ErrTransport)
	}
	return p.sendLocked(msg)
}

// sendLocked writes msg to the peer. Caller holds p.mu.
func (p *Protocol) sendLocked(msg *wire.Message) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	if err := p.server.SendTo(data, p.remote); err != nil {
		p.host.Metrics().MessageDropped(kind, metrics.ReasonSend)
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	p.host.Metrics().MessageSent(kind)
	p.capture.Message(log.DirectionOut, p.remote.String(), msg, len(data))
	return nil
}

// intercept handles Minuit commands and holds back value messages until
// the handshake completed.
func (p *Protocol) intercept(msg *wire.Message, remote string) bool {
	c, ok := parseCommand(msg.Address)
	if !ok {
		if p.ready.Load() {
			return false
		}
		p.host.Metrics().MessageDropped(kind, metrics.ReasonHandshake)
		p.logger.Debug("value before handshake", "address", msg.Address, "remote", remote)
		return true
	}
	if err := p.handle(c, msg.Arguments); err != nil {
		p.host.Metrics().MessageDropped(kind, protocol.DropReason(err))
		p.logger.Debug("minuit command failed", "command", c, "remote", remote, "err", err)
	}
	return true
}

func (p *Protocol) handle(c command, args []any) error {
	if c.reply {
		return p.handleReply(c, args)
	}

	target := "/"
	if len(args) > 0 {
		s, err := stringArg(args, 0)
		if err != nil {
			return err
		}
		target = s
	}
	addr, attr := splitTarget(target)
	if c.verb == verbNamespace {
		addr = target
	}
	n, ok := p.host.Root().Find(addr)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrNotFound, addr)
	}

	switch c.verb {
	case verbNamespace:
		p.ready.Store(true)
		return p.send(p.message(true, verbNamespace, describe(n)...))
	case verbGet:
		vals, err := attribute(n, attr)
		if err != nil {
			return err
		}
		return p.send(p.message(true, verbGet, append([]any{target}, vals...)...))
	case verbListen:
		if _, ok := n.Parameter(); !ok {
			return fmt.Errorf("%w: no parameter at %s", model.ErrNotFound, addr)
		}
		mode, _ := stringArg(args, 1)
		p.mu.Lock()
		if mode == "disable" {
			delete(p.listening, addr)
		} else {
			p.listening[addr] = true
		}
		p.mu.Unlock()
		p.logger.Debug("peer listen", "address", addr, "mode", mode)
	}
	return nil
}

func (p *Protocol) handleReply(c command, args []any) error {
	target, err := stringArg(args, 0)
	if err != nil {
		return err
	}
	switch c.verb {
	case verbNamespace:
		p.ready.Store(true)
		p.deliver(verbNamespace+" "+target, args)
		return nil
	case verbGet:
		p.deliver(verbGet+" "+target, args[1:])
		return nil
	}

	addr, _ := splitTarget(target)
	v, err := wire.ValueFromArguments(args[1:])
	if err != nil {
		return err
	}
	return p.host.Replicate(p, addr, v)
}

func (p *Protocol) deliver(key string, args []any) {
	p.mu.Lock()
	chans := p.waiters[key]
	delete(p.waiters, key)
	p.mu.Unlock()
	for _, ch := range chans {
		ch <- args
	}
}

// request sends "<name>?<verb> target" and waits for the matching reply.
func (p *Protocol) request(ctx context.Context, verb, target string) ([]any, error) {
	key := verb + " " + target
	ch := make(chan []any, 1)

	p.mu.Lock()
	if p.host == nil || p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: minuit protocol not attached", model.ErrTransport)
	}
	p.waiters[key] = append(p.waiters[key], ch)
	err := p.sendLocked(p.message(false, verb, target))
	p.mu.Unlock()
	if err != nil {
		p.dropWaiter(key, ch)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()
	select {
	case args := <-ch:
		return args, nil
	case <-ctx.Done():
		p.dropWaiter(key, ch)
		return nil, fmt.Errorf("%w: minuit %s %s: %w", model.ErrTransport, verb, target, ctx.Err())
	}
}

func (p *Protocol) dropWaiter(key string, ch chan []any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	chans := p.waiters[key]
	for i, c := range chans {
		if c == ch {
			p.waiters[key] = append(chans[:i:i], chans[i+1:]...)
			break
		}
	}
	if len(p.waiters[key]) == 0 {
		delete(p.waiters, key)
	}
}

// Close releases the socket and waits for the read loop.
func (p *Protocol) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	server, disp := p.server, p.dispatcher
	p.mu.Unlock()

	if disp != nil {
		disp.Close()
	}
	if server == nil {
		return nil
	}
	if err := server.Stop(); err != nil && !errors.Is(err, transport.ErrNotRunning) {
		return err
	}
	return nil
}

var _ model.Protocol = (*Protocol)(nil)
