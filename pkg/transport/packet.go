package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ossia-go/paramtree/pkg/log"
)

// DefaultMaxPacketSize is the largest UDP payload.
const DefaultMaxPacketSize = 65507

// Packet errors.
var (
	ErrNotRunning     = errors.New("transport not running")
	ErrAlreadyRunning = errors.New("transport already running")
)

// PacketConfig configures a PacketServer.
type PacketConfig struct {
	// Address to bind (e.g. ":9000", "127.0.0.1:0").
	Address string

	// MaxPacketSize bounds received datagrams (default: DefaultMaxPacketSize).
	MaxPacketSize int

	// Capture records raw packets (optional).
	Capture log.Capture

	// OnPacket is called from the read loop for each datagram. The slice is
	// owned by the callee.
	OnPacket func(data []byte, from net.Addr)

	// OnError is called for read errors that do not stop the server.
	OnError func(err error)
}

// PacketServer owns one UDP socket: it receives datagrams on a read loop and
// sends datagrams from the same local port.
type PacketServer struct {
	config PacketConfig
	conn   *net.UDPConn

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPacketServer creates a server; Start binds the socket.
func NewPacketServer(config PacketConfig) *PacketServer {
	if config.MaxPacketSize <= 0 {
		config.MaxPacketSize = DefaultMaxPacketSize
	}
	return &PacketServer{config: config}
}

// Start binds the socket and starts the read loop.
func (s *PacketServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrAlreadyRunning
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", s.config.Address, err)
	}
	s.conn = pc.(*net.UDPConn)

	ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)
	s.wg.Add(1)
	go s.readLoop(ctx)
	return nil
}

// Stop closes the socket and waits for the read loop.
func (s *PacketServer) Stop() error {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return nil
	}
	s.running.Store(false)
	s.cancel()
	err := s.conn.Close()
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// Addr returns the bound address, or nil before Start.
func (s *PacketServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Port returns the bound UDP port, or 0 before Start.
func (s *PacketServer) Port() int {
	if a, ok := s.Addr().(*net.UDPAddr); ok {
		return a.Port
	}
	return 0
}

// SendTo writes one datagram to addr.
func (s *PacketServer) SendTo(data []byte, addr net.Addr) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	if len(data) > DefaultMaxPacketSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), DefaultMaxPacketSize)
	}
	if _, err := s.conn.WriteTo(data, addr); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	s.config.Capture.Packet(log.DirectionOut, addr.String(), data, len(data))
	return nil
}

func (s *PacketServer) readLoop(ctx context.Context) {
	defer s.wg.Done()

	buf := make([]byte, s.config.MaxPacketSize)
	var backoff time.Duration
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if s.config.OnError != nil {
				s.config.OnError(fmt.Errorf("udp read: %w", err))
			}
			// Exponential backoff, capped at one second.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		data := make([]byte, n)
		copy(data, buf[:n])
		s.config.Capture.Packet(log.DirectionIn, from.String(), data, n)
		if s.config.OnPacket != nil {
			s.config.OnPacket(data, from)
		}
	}
}

// ResolveUDP resolves host and port to a UDP address. An empty host means
// the loopback interface.
func ResolveUDP(host string, port int) (*net.UDPAddr, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}
	return addr, nil
}
