// Package oscquery implements both OSCQuery roles. The server describes the
// device namespace as JSON over HTTP, streams value changes to WebSocket
// clients and receives values on an OSC side channel. The mirror connects
// to a remote server and replicates its namespace into the local device.
package oscquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ossia-go/paramtree/pkg/discovery"
	"github.com/ossia-go/paramtree/pkg/log"
	"github.com/ossia-go/paramtree/pkg/metrics"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/protocol"
	"github.com/ossia-go/paramtree/pkg/subscription"
	"github.com/ossia-go/paramtree/pkg/transport"
	"github.com/ossia-go/paramtree/pkg/value"
	"github.com/ossia-go/paramtree/pkg/wire"
)

// WebSocket commands and notifications.
const (
	CommandListen            = "LISTEN"
	CommandIgnore            = "IGNORE"
	CommandStartOSCStreaming = "START_OSC_STREAMING"
	NotifyPathAdded          = "PATH_ADDED"
	NotifyPathRemoved        = "PATH_REMOVED"
	NotifyPathChanged        = "PATH_CHANGED"
)

const writeTimeout = 5 * time.Second

// Command is a JSON text frame on the WebSocket channel.
type Command struct {
	Command string          `json:"COMMAND"`
	Data    json.RawMessage `json:"DATA,omitempty"`
}

// streamRequest is the DATA of START_OSC_STREAMING.
type streamRequest struct {
	LocalServerPort int `json:"LOCAL_SERVER_PORT"`
	LocalSenderPort int `json:"LOCAL_SENDER_PORT"`
}

// Config configures an OSCQuery server.
type Config struct {
	// OSCPort receives OSC values over UDP. Zero picks an ephemeral port.
	OSCPort int

	// WSPort serves HTTP and WebSocket. Zero picks an ephemeral port.
	WSPort int

	// Host is the interface to bind (default: all).
	Host string

	// Name reported in HOST_INFO and mDNS (default: the device name).
	Name string

	// Advertise registers the server with mDNS.
	Advertise bool

	// Logger for operational messages (default: the device logger).
	Logger *slog.Logger

	// ProtocolLogger captures packets and messages (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns the conventional ports: OSC on 1234, HTTP on 5678.
func DefaultConfig() Config {
	return Config{OSCPort: 1234, WSPort: 5678}
}

// client is one WebSocket connection.
type client struct {
	id     string
	conn   *websocket.Conn
	remote string

	writeMu sync.Mutex

	// guarded by Server.mu
	listening map[string]bool
	stream    *net.UDPAddr
}

func (c *client) write(kind int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(kind, data)
}

// Server is the OSCQuery server protocol.
type Server struct {
	config   Config
	upgrader websocket.Upgrader

	mu         sync.RWMutex
	host       model.Host
	logger     *slog.Logger
	capture    log.Capture
	dispatcher *protocol.Dispatcher
	listener   net.Listener
	http       *http.Server
	udp        *transport.PacketServer
	advert     *discovery.Advertisement
	callbacks  []model.CallbackID
	clients    map[string]*client
	throttles  map[string]*subscription.Coalescer
	closed     bool
	wg         sync.WaitGroup
}

// NewServer returns an unattached OSCQuery server.
func NewServer(config Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients:   make(map[string]*client),
		throttles: make(map[string]*subscription.Coalescer),
	}
}

// Kind implements model.Protocol.
func (s *Server) Kind() model.ProtocolKind { return model.ProtocolOSCQueryServer }

// Attach binds the HTTP and OSC ports and starts serving.
func (s *Server) Attach(host model.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.host != nil {
		return fmt.Errorf("%w: oscquery server already attached", model.ErrUnsupported)
	}

	s.logger = s.config.Logger
	if s.logger == nil {
		s.logger = host.Logger()
	}
	s.logger = s.logger.With("protocol", "oscquery")
	s.capture = log.Capture{Logger: s.config.ProtocolLogger, Protocol: "oscquery", Device: host.Name()}
	s.dispatcher = protocol.NewDispatcher(host, s, s.capture)
	if s.config.Name == "" {
		s.config.Name = host.Name()
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.WSPort)))
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}

	s.udp = transport.NewPacketServer(transport.PacketConfig{
		Address: net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.OSCPort)),
		Capture: s.capture,
		OnPacket: func(data []byte, from net.Addr) {
			s.dispatcher.Packet(data, from.String())
		},
		OnError: func(err error) { s.logger.Warn("receive failed", "err", err) },
	})
	if err := s.udp.Start(context.Background()); err != nil {
		ln.Close()
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}

	s.host = host
	s.listener = ln
	s.http = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "err", err)
		}
	}()

	s.callbacks = append(s.callbacks,
		host.OnNodeCreated(func(n model.Node) { s.notify(NotifyPathAdded, n.Address()) }),
		host.OnNodeRemoving(s.nodeRemoving),
		host.OnParameterCreated(func(p *model.Parameter) { s.notify(NotifyPathChanged, p.Address()) }),
	)

	if s.config.Advertise {
		advert, err := discovery.Advertise(context.Background(), discovery.Info{
			Name:    s.config.Name,
			Port:    s.wsPort(),
			OSCPort: s.udp.Port(),
		})
		if err != nil {
			s.logger.Warn("mdns advertisement failed", "err", err)
		} else {
			s.advert = advert
		}
	}

	s.logger.Info("oscquery serving", "http", ln.Addr().String(), "osc", s.udp.Addr().String())
	return nil
}

func (s *Server) wsPort() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// HTTPAddr returns the bound HTTP address, or nil when unattached.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// OSCAddr returns the bound OSC address, or nil when unattached.
func (s *Server) OSCAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.udp == nil {
		return nil
	}
	return s.udp.Addr()
}

// HostInfo returns the HOST_INFO description.
func (s *Server) HostInfo() HostInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := HostInfo{
		Name:         s.config.Name,
		OSCIP:        s.config.Host,
		OSCTransport: "UDP",
		WSIP:         s.config.Host,
		WSPort:       s.wsPort(),
		Extensions:   extensions(),
	}
	if s.udp != nil {
		info.OSCPort = s.udp.Port()
	}
	return info
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP answers namespace queries and upgrades WebSocket requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	host := s.host
	s.mu.RUnlock()
	if host == nil {
		http.Error(w, "not attached", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.RawQuery
	if query == AttrHostInfo {
		writeJSON(w, s.HostInfo())
		return
	}

	n, ok := host.Root().Find(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if query == "" {
		writeJSON(w, describe(n, true))
		return
	}
	if !knownAttributes[query] {
		http.Error(w, "unknown attribute "+query, http.StatusBadRequest)
		return
	}
	attr, found, err := attribute(n, query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, attr)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &client{
		id:        uuid.NewString(),
		conn:      conn,
		remote:    r.RemoteAddr,
		listening: make(map[string]bool),
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c.id] = c
	s.wg.Add(1)
	s.mu.Unlock()

	capture := s.capture.WithConnection(c.id)
	capture.State(log.StateEntityConnection, c.remote, "", "connected", "")
	s.logger.Debug("websocket client connected", "client", c.id, "remote", c.remote)
	go s.readClient(c, capture)
}

func (s *Server) readClient(c *client, capture log.Capture) {
	defer s.wg.Done()
	defer s.removeClient(c, capture)

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			s.dispatcher.Packet(data, c.remote)
		case websocket.TextMessage:
			s.handleCommand(c, capture, data)
		}
	}
}

func (s *Server) removeClient(c *client, capture log.Capture) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.conn.Close()
	capture.State(log.StateEntityConnection, c.remote, "connected", "closed", "")
	s.logger.Debug("websocket client disconnected", "client", c.id)
}

func (s *Server) handleCommand(c *client, capture log.Capture, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		capture.Error(log.LayerProtocol, c.remote, err, "decode command")
		return
	}

	switch cmd.Command {
	case CommandListen, CommandIgnore:
		var addr string
		if err := json.Unmarshal(cmd.Data, &addr); err != nil {
			capture.Error(log.LayerProtocol, c.remote, err, "decode "+cmd.Command)
			return
		}
		on := cmd.Command == CommandListen
		s.mu.Lock()
		if on {
			c.listening[addr] = true
		} else {
			delete(c.listening, addr)
		}
		s.mu.Unlock()
		if on {
			capture.State(log.StateEntityListen, c.remote, "", "listening", addr)
		} else {
			capture.State(log.StateEntityListen, c.remote, "listening", "", addr)
		}

	case CommandStartOSCStreaming:
		var req streamRequest
		if err := json.Unmarshal(cmd.Data, &req); err != nil || req.LocalServerPort <= 0 {
			capture.Error(log.LayerProtocol, c.remote, fmt.Errorf("invalid stream request: %s", cmd.Data), "decode "+cmd.Command)
			return
		}
		ip, _, err := net.SplitHostPort(c.remote)
		if err != nil {
			return
		}
		addr, err := transport.ResolveUDP(ip, req.LocalServerPort)
		if err != nil {
			capture.Error(log.LayerProtocol, c.remote, err, "resolve stream")
			return
		}
		s.mu.Lock()
		c.stream = addr
		s.mu.Unlock()
		capture.State(log.StateEntityHandshake, c.remote, "", "streaming", addr.String())

	default:
		s.logger.Debug("unknown websocket command", "client", c.id, "command", cmd.Command)
	}
}

// notify sends a namespace notification to every client.
func (s *Server) notify(command, address string) {
	data, err := json.Marshal(Command{Command: command, Data: mustJSON(address)})
	if err != nil {
		return
	}
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(websocket.TextMessage, data); err != nil {
			s.logger.Debug("notification failed", "client", c.id, "err", err)
		}
	}
}

func mustJSON(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

func (s *Server) nodeRemoving(n model.Node) {
	addr := n.Address()
	s.mu.Lock()
	for _, c := range s.clients {
		delete(c.listening, addr)
	}
	delete(s.throttles, addr)
	s.mu.Unlock()
	s.notify(NotifyPathRemoved, addr)
}

// Push sends v to every client listening to the parameter. Parameters with
// a refresh rate are sent at most once per period, latest value first.
func (s *Server) Push(param *model.Parameter, v value.Value, _ *model.Pass) error {
	s.mu.Lock()
	if s.host == nil || s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: oscquery server not attached", model.ErrTransport)
	}
	addr := param.Address()
	rate, limited := param.Node().RefreshRate()
	if limited && rate > 0 {
		c, ok := s.throttles[addr]
		if !ok || c.MinInterval != time.Duration(rate)*time.Millisecond {
			c = subscription.NewCoalescer(time.Duration(rate) * time.Millisecond)
			s.throttles[addr] = c
		}
		s.mu.Unlock()
		if c.Record(addr, v) {
			time.AfterFunc(c.MinInterval, func() { s.flush(c, param.Critical()) })
		}
		return nil
	}
	s.mu.Unlock()
	return s.send(addr, v, param.Critical())
}

func (s *Server) flush(c *subscription.Coalescer, critical bool) {
	for _, change := range c.Flush(false) {
		if err := s.send(change.Address, change.Value, critical); err != nil {
			s.logger.Debug("throttled send failed", "address", change.Address, "err", err)
		}
	}
}

func (s *Server) send(addr string, v value.Value, critical bool) error {
	msg := wire.MessageFromValue(addr, v)
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}

	type target struct {
		c      *client
		stream *net.UDPAddr
	}
	s.mu.RLock()
	var targets []target
	for _, c := range s.clients {
		if c.listening[addr] {
			targets = append(targets, target{c: c, stream: c.stream})
		}
	}
	host, udp := s.host, s.udp
	s.mu.RUnlock()
	if host == nil {
		return nil
	}

	var errs []error
	for _, t := range targets {
		if t.stream != nil && !critical {
			err = udp.SendTo(data, t.stream)
		} else {
			err = t.c.write(websocket.BinaryMessage, data)
		}
		if err != nil {
			host.Metrics().MessageDropped("oscquery", metrics.ReasonSend)
			errs = append(errs, fmt.Errorf("%w: client %s: %w", model.ErrTransport, t.c.id, err))
			continue
		}
		host.Metrics().MessageSent("oscquery")
		s.capture.WithConnection(t.c.id).Message(log.DirectionOut, t.c.remote, msg, len(data))
	}
	return errors.Join(errs...)
}

// UpdateNamespace implements model.Protocol. The server owns its namespace.
func (s *Server) UpdateNamespace(context.Context) error { return nil }

// Close stops serving, disconnects clients and withdraws the advertisement.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	host, srv, udp, advert, disp := s.host, s.http, s.udp, s.advert, s.dispatcher
	callbacks := s.callbacks
	s.callbacks = nil
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	if host == nil {
		return nil
	}
	for _, id := range callbacks {
		host.RemoveCallback(id)
	}
	if advert != nil {
		advert.Stop()
	}
	if disp != nil {
		disp.Close()
	}

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, c := range clients {
		c.conn.Close()
	}
	if udp != nil {
		errs = append(errs, udp.Stop())
	}
	s.wg.Wait()
	return errors.Join(errs...)
}

var _ model.Protocol = (*Server)(nil)
