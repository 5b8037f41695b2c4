package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ossia-go/paramtree/pkg/log"
)

// ErrConnectionClosed is returned when sending on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// StreamConfig configures a StreamServer.
type StreamConfig struct {
	// Address to listen on (e.g. ":9000").
	Address string

	// MaxMessageSize is the maximum frame size (default: 64KB).
	MaxMessageSize uint32

	// Capture records frames and connection state (optional).
	Capture log.Capture

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *StreamConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *StreamConn)

	// OnMessage is called for each received frame.
	OnMessage func(conn *StreamConn, data []byte)

	// OnError is called when an error occurs.
	OnError func(conn *StreamConn, err error)
}

// StreamServer accepts TCP connections carrying length-prefixed OSC packets.
type StreamServer struct {
	config   StreamConfig
	listener net.Listener

	conns   map[*StreamConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewStreamServer creates a new stream server.
func NewStreamServer(config StreamConfig) *StreamServer {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &StreamServer{
		config: config,
		conns:  make(map[*StreamConn]struct{}),
	}
}

// Start starts listening and accepting connections.
func (s *StreamServer) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrAlreadyRunning
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", s.config.Address, err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop stops the server and closes all connections.
func (s *StreamServer) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address.
func (s *StreamServer) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *StreamServer) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Broadcast sends data to every connection and returns the joined errors.
func (s *StreamServer) Broadcast(data []byte) error {
	s.connsMu.RLock()
	conns := make([]*StreamConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.RUnlock()

	var errs []error
	for _, c := range conns {
		if err := c.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *StreamServer) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() && s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept: %w", err))
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *StreamServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	sconn := newStreamConn(conn, s.config.MaxMessageSize, s.config.Capture)
	sconn.onMessage = func(data []byte) {
		if s.config.OnMessage != nil {
			s.config.OnMessage(sconn, data)
		}
	}
	sconn.onError = func(err error) {
		if s.config.OnError != nil && s.running.Load() {
			s.config.OnError(sconn, err)
		}
	}

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop(s.ctx)

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

// StreamConn is one framed TCP connection, accepted or dialed.
type StreamConn struct {
	conn      net.Conn
	framer    *Framer
	id        string
	capture   log.Capture
	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	onMessage func(data []byte)
	onError   func(err error)
}

func newStreamConn(conn net.Conn, maxSize uint32, c log.Capture) *StreamConn {
	id := uuid.New().String()
	c = c.WithConnection(id)
	framer := NewFramer(conn, maxSize)
	framer.SetCapture(c, conn.RemoteAddr().String())
	c.State(log.StateEntityConnection, conn.RemoteAddr().String(), "", "CONNECTED", "")
	return &StreamConn{
		conn:    conn,
		framer:  framer,
		id:      id,
		capture: c,
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the unique connection identifier.
func (c *StreamConn) ID() string {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *StreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local address.
func (c *StreamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Send writes one frame.
func (c *StreamConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Close closes the connection. It is safe to call more than once.
func (c *StreamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
		c.capture.State(log.StateEntityConnection, c.conn.RemoteAddr().String(), "CONNECTED", "DISCONNECTED", "")
	})
	return err
}

// Done is closed when the read loop has exited.
func (c *StreamConn) Done() <-chan struct{} {
	return c.done
}

func (c *StreamConn) readLoop(ctx context.Context) {
	defer close(c.done)
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				if err != io.EOF && c.onError != nil {
					c.onError(err)
				}
			}
			return
		}
		if c.onMessage != nil {
			c.onMessage(data)
		}
	}
}

// DialConfig configures Dial.
type DialConfig struct {
	// MaxMessageSize is the maximum frame size (default: 64KB).
	MaxMessageSize uint32

	// ConnectTimeout bounds the dial when ctx has no deadline (default: 10s).
	ConnectTimeout time.Duration

	// Capture records frames and connection state (optional).
	Capture log.Capture

	// OnMessage is called for each received frame.
	OnMessage func(data []byte)

	// OnError is called when the read loop fails.
	OnError func(err error)
}

// Dial connects to a stream server and starts reading frames.
func Dial(ctx context.Context, address string, config DialConfig) (*StreamConn, error) {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	dctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(dctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	c := newStreamConn(conn, config.MaxMessageSize, config.Capture)
	c.onMessage = config.OnMessage
	c.onError = config.OnError
	go c.readLoop(context.WithoutCancel(ctx))
	return c, nil
}
