// Package osc implements the plain OSC protocol: parameter values are sent
// to one remote peer as OSC messages addressed by parameter address, and
// messages received on the local port are pushed into the tree.
package osc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/ossia-go/paramtree/pkg/log"
	"github.com/ossia-go/paramtree/pkg/metrics"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/protocol"
	"github.com/ossia-go/paramtree/pkg/transport"
	"github.com/ossia-go/paramtree/pkg/value"
	"github.com/ossia-go/paramtree/pkg/wire"
)

// Transport selects the OSC carrier.
type Transport string

const (
	UDP Transport = "udp"
	TCP Transport = "tcp"
)

// Config configures an OSC protocol.
type Config struct {
	// RemoteHost receives outbound values (default: 127.0.0.1).
	RemoteHost string

	// RemotePort receives outbound values. Zero disables sending.
	RemotePort int

	// LocalPort receives inbound values. Zero picks an ephemeral port.
	LocalPort int

	// LocalHost is the interface to bind (default: all).
	LocalHost string

	// Transport is UDP (default) or TCP with length-prefixed packets.
	Transport Transport

	// Learn creates parameters for values received on unknown addresses.
	Learn bool

	// Logger for operational messages (default: the device logger).
	Logger *slog.Logger

	// ProtocolLogger captures packets and messages (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns the conventional port pair: send to 9997, listen on 9996.
func DefaultConfig() Config {
	return Config{
		RemoteHost: "127.0.0.1",
		RemotePort: 9997,
		LocalPort:  9996,
		Transport:  UDP,
	}
}

// Protocol is an OSC protocol instance.
type Protocol struct {
	config Config

	mu         sync.Mutex
	host       model.Host
	logger     *slog.Logger
	capture    log.Capture
	dispatcher *protocol.Dispatcher
	remote     *net.UDPAddr
	udp        *transport.PacketServer
	tcp        *transport.StreamServer
	peer       *transport.StreamConn
	closed     bool
}

// New returns an unattached OSC protocol.
func New(config Config) *Protocol {
	if config.RemoteHost == "" {
		config.RemoteHost = "127.0.0.1"
	}
	if config.Transport == "" {
		config.Transport = UDP
	}
	return &Protocol{config: config}
}

// Kind implements model.Protocol.
func (p *Protocol) Kind() model.ProtocolKind { return model.ProtocolOSC }

// Attach binds the local port and starts the read loop.
func (p *Protocol) Attach(host model.Host) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.host != nil {
		return fmt.Errorf("%w: osc protocol already attached", model.ErrUnsupported)
	}

	p.logger = p.config.Logger
	if p.logger == nil {
		p.logger = host.Logger()
	}
	p.logger = p.logger.With("protocol", "osc")
	p.capture = log.Capture{Logger: p.config.ProtocolLogger, Protocol: "osc", Device: host.Name()}
	p.dispatcher = protocol.NewDispatcher(host, p, p.capture)
	p.dispatcher.Learn = p.config.Learn

	if p.config.RemotePort != 0 && p.config.Transport == UDP {
		remote, err := transport.ResolveUDP(p.config.RemoteHost, p.config.RemotePort)
		if err != nil {
			return fmt.Errorf("%w: %w", model.ErrTransport, err)
		}
		p.remote = remote
	}

	local := net.JoinHostPort(p.config.LocalHost, strconv.Itoa(p.config.LocalPort))
	switch p.config.Transport {
	case UDP:
		p.udp = transport.NewPacketServer(transport.PacketConfig{
			Address: local,
			Capture: p.capture,
			OnPacket: func(data []byte, from net.Addr) {
				p.dispatcher.Packet(data, from.String())
			},
			OnError: func(err error) { p.logger.Warn("receive failed", "err", err) },
		})
		if err := p.udp.Start(context.Background()); err != nil {
			return fmt.Errorf("%w: %w", model.ErrTransport, err)
		}
	case TCP:
		p.tcp = transport.NewStreamServer(transport.StreamConfig{
			Address: local,
			Capture: p.capture,
			OnMessage: func(c *transport.StreamConn, data []byte) {
				p.dispatcher.Packet(data, c.RemoteAddr().String())
			},
			OnError: func(_ *transport.StreamConn, err error) { p.logger.Warn("stream failed", "err", err) },
		})
		if err := p.tcp.Start(context.Background()); err != nil {
			return fmt.Errorf("%w: %w", model.ErrTransport, err)
		}
	default:
		return fmt.Errorf("%w: unknown osc transport %q", model.ErrTransport, p.config.Transport)
	}

	p.host = host
	p.logger.Info("osc bound", "local", p.localAddr(), "remote", p.remoteString())
	return nil
}

// LocalAddr returns the bound address, or nil when unattached.
func (p *Protocol) LocalAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.localAddr()
}

func (p *Protocol) localAddr() net.Addr {
	switch {
	case p.udp != nil:
		return p.udp.Addr()
	case p.tcp != nil:
		return p.tcp.Addr()
	}
	return nil
}

func (p *Protocol) remoteString() string {
	if p.config.RemotePort == 0 {
		return ""
	}
	return net.JoinHostPort(p.config.RemoteHost, strconv.Itoa(p.config.RemotePort))
}

// Push sends v to the remote peer.
func (p *Protocol) Push(param *model.Parameter, v value.Value, _ *model.Pass) error {
	msg := wire.MessageFromValue(param.Address(), v)
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.host == nil || p.closed {
		p.mu.Unlock()
		return fmt.Errorf("%w: osc protocol not attached", model.ErrTransport)
	}
	if p.config.RemotePort == 0 {
		p.mu.Unlock()
		return nil
	}
	host := p.host
	err = p.send(data)
	p.mu.Unlock()

	if err != nil {
		host.Metrics().MessageDropped("osc", metrics.ReasonSend)
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	host.Metrics().MessageSent("osc")
	p.capture.Message(log.DirectionOut, p.remoteString(), msg, len(data))
	return nil
}

// send writes data to the remote peer. TCP connections are dialed on
// first use and redialed after a failure. Caller holds p.mu.
func (p *Protocol) send(data []byte) error {
	if p.udp != nil {
		return p.udp.SendTo(data, p.remote)
	}
	if p.peer != nil {
		select {
		case <-p.peer.Done():
			p.peer = nil
		default:
		}
	}
	if p.peer == nil {
		conn, err := transport.Dial(context.Background(), p.remoteString(), transport.DialConfig{
			Capture: p.capture,
			OnMessage: func(data []byte) {
				p.dispatcher.Packet(data, p.remoteString())
			},
		})
		if err != nil {
			return err
		}
		p.peer = conn
	}
	if err := p.peer.Send(data); err != nil {
		p.peer.Close()
		p.peer = nil
		return err
	}
	return nil
}

// UpdateNamespace implements model.Protocol. Plain OSC has no namespace.
func (p *Protocol) UpdateNamespace(context.Context) error { return nil }

// Close releases the socket and waits for the read loop.
func (p *Protocol) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	udp, tcp, peer, disp := p.udp, p.tcp, p.peer, p.dispatcher
	p.mu.Unlock()

	if disp != nil {
		disp.Close()
	}
	var errs []error
	if peer != nil {
		errs = append(errs, peer.Close())
	}
	if udp != nil {
		errs = append(errs, udp.Stop())
	}
	if tcp != nil {
		errs = append(errs, tcp.Stop())
	}
	return errors.Join(errs...)
}

var _ model.Protocol = (*Protocol)(nil)
