package oscquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ossia-go/paramtree/pkg/log"
	"github.com/ossia-go/paramtree/pkg/metrics"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/protocol"
	"github.com/ossia-go/paramtree/pkg/value"
	"github.com/ossia-go/paramtree/pkg/wire"
)

// MirrorConfig configures an OSCQuery mirror.
type MirrorConfig struct {
	// Host is the server, as "host:port", "http://host:port" or
	// "ws://host:port".
	Host string

	// Timeout bounds each HTTP request and the WebSocket handshake
	// (default: 5s).
	Timeout time.Duration

	// Logger for operational messages (default: the device logger).
	Logger *slog.Logger

	// ProtocolLogger captures packets and messages (optional).
	ProtocolLogger log.Logger
}

// Mirror replicates a remote OSCQuery namespace into the local device.
type Mirror struct {
	config  MirrorConfig
	httpURL string
	wsURL   string
	client  *http.Client

	mu         sync.Mutex
	host       model.Host
	logger     *slog.Logger
	capture    log.Capture
	dispatcher *protocol.Dispatcher
	conn       *websocket.Conn
	info       HostInfo
	closed     bool
	done       chan struct{}

	// pongs holds the barriers waiting for the server to answer a ping.
	pongs    map[string]chan struct{}
	pingSeq  uint64
	settling sync.WaitGroup

	writeMu sync.Mutex
}

// NewMirror returns an unattached mirror. The host must parse as an
// address or URL.
func NewMirror(config MirrorConfig) (*Mirror, error) {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	httpURL, wsURL, err := endpoints(config.Host)
	if err != nil {
		return nil, err
	}
	return &Mirror{
		config:  config,
		httpURL: httpURL,
		wsURL:   wsURL,
		client:  &http.Client{Timeout: config.Timeout},
	}, nil
}

// endpoints derives the HTTP and WebSocket base URLs from host.
func endpoints(host string) (string, string, error) {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return "", "", fmt.Errorf("%w: mirror host: %w", value.ErrInvalidArgument, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: mirror host %q has no address", value.ErrInvalidArgument, host)
	}
	switch u.Scheme {
	case "http", "ws":
		return "http://" + u.Host, "ws://" + u.Host, nil
	case "https", "wss":
		return "https://" + u.Host, "wss://" + u.Host, nil
	}
	return "", "", fmt.Errorf("%w: mirror scheme %q", value.ErrInvalidArgument, u.Scheme)
}

// Kind implements model.Protocol.
func (m *Mirror) Kind() model.ProtocolKind { return model.ProtocolOSCQueryMirror }

// Attach fetches HOST_INFO and connects the WebSocket channel.
func (m *Mirror) Attach(host model.Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.host != nil {
		return fmt.Errorf("%w: oscquery mirror already attached", model.ErrUnsupported)
	}

	m.logger = m.config.Logger
	if m.logger == nil {
		m.logger = host.Logger()
	}
	m.logger = m.logger.With("protocol", "oscquery-mirror", "server", m.httpURL)
	m.capture = log.Capture{Logger: m.config.ProtocolLogger, Protocol: "oscquery-mirror", Device: host.Name()}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	defer cancel()

	var info HostInfo
	if err := m.get(ctx, "/?"+AttrHostInfo, &info); err != nil {
		return err
	}
	m.capture.State(log.StateEntityHandshake, m.httpURL, "", "host_info", info.Name)

	dialer := websocket.Dialer{HandshakeTimeout: m.config.Timeout}
	conn, _, err := dialer.DialContext(ctx, m.wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	m.capture.State(log.StateEntityConnection, m.wsURL, "", "connected", "")

	m.host = host
	m.info = info
	m.conn = conn
	m.dispatcher = protocol.NewDispatcher(host, m, m.capture)
	m.dispatcher.Authoritative = true
	m.done = make(chan struct{})
	m.pongs = make(map[string]chan struct{})
	conn.SetPongHandler(m.pong)
	go m.readLoop(conn, m.done)

	m.logger.Info("oscquery mirror connected", "name", info.Name)
	return nil
}

// HostInfo returns the server description fetched on Attach.
func (m *Mirror) HostInfo() HostInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

func (m *Mirror) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.httpURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", model.ErrNotFound, path)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: GET %s: %s: %s", model.ErrTransport, path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: GET %s: %w", model.ErrTransport, path, err)
	}
	return nil
}

func (m *Mirror) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if !closed {
				m.logger.Warn("websocket closed", "err", err)
				m.capture.State(log.StateEntityConnection, m.wsURL, "connected", "closed", err.Error())
			}
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			m.dispatcher.Packet(data, m.wsURL)
		case websocket.TextMessage:
			m.handleNotification(data)
		}
	}
}

func (m *Mirror) handleNotification(data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		m.capture.Error(log.LayerProtocol, m.wsURL, err, "decode notification")
		return
	}
	var addr string
	if err := json.Unmarshal(cmd.Data, &addr); err != nil {
		m.capture.Error(log.LayerProtocol, m.wsURL, err, "decode "+cmd.Command)
		return
	}

	switch cmd.Command {
	case NotifyPathAdded, NotifyPathChanged:
		ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
		defer cancel()
		if err := m.refresh(ctx, addr); err != nil {
			m.logger.Warn("path refresh failed", "address", addr, "err", err)
		}
	case NotifyPathRemoved:
		if n, ok := m.host.Root().Find(addr); ok && !n.IsRoot() {
			if err := n.Remove(); err != nil && !errors.Is(err, model.ErrRemoved) {
				m.logger.Debug("remove failed", "address", addr, "err", err)
			}
		}
	default:
		m.logger.Debug("unknown notification", "command", cmd.Command)
	}
}

// refresh fetches one remote subtree and applies it.
func (m *Mirror) refresh(ctx context.Context, addr string) error {
	var remote Node
	if err := m.get(ctx, addr, &remote); err != nil {
		return err
	}
	local, err := m.host.Root().FindOrCreate(addr)
	if err != nil {
		return err
	}
	var params []string
	err = m.apply(local, &remote, &params)
	m.listen(params)

	// Runs on the read loop, which must keep reading for the pong to arrive.
	m.settling.Add(1)
	go func() {
		defer m.settling.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
		defer cancel()
		if err := m.settle(ctx, addr, params); err != nil {
			m.logger.Debug("settle failed", "address", addr, "err", err)
		}
	}()
	return err
}

// UpdateNamespace fetches the remote tree and makes the local tree match
// it, then listens to every parameter.
func (m *Mirror) UpdateNamespace(ctx context.Context) error {
	m.mu.Lock()
	host := m.host
	m.mu.Unlock()
	if host == nil {
		return fmt.Errorf("%w: oscquery mirror not attached", model.ErrTransport)
	}

	var remote Node
	if err := m.get(ctx, "/", &remote); err != nil {
		return err
	}
	var params []string
	err := m.apply(host.Root(), &remote, &params)
	m.listen(params)
	if serr := m.settle(ctx, "/", params); serr != nil {
		err = errors.Join(err, serr)
	}
	m.logger.Debug("namespace mirrored", "parameters", len(params))
	return err
}

// settle waits until the server has handled every LISTEN sent so far, then
// fetches the subtree at addr again and replicates the values that changed
// in between.
func (m *Mirror) settle(ctx context.Context, addr string, params []string) error {
	if len(params) == 0 {
		return nil
	}
	if err := m.barrier(ctx); err != nil {
		return err
	}
	var remote Node
	if err := m.get(ctx, addr, &remote); err != nil {
		return err
	}

	root := m.host.Root()
	var errs []error
	for _, p := range params {
		r, ok := remote.descendant(strings.TrimPrefix(p, addr))
		if !ok || len(r.Value) == 0 {
			continue
		}
		n, ok := root.Find(p)
		if !ok {
			continue
		}
		param, ok := n.Parameter()
		if !ok {
			continue
		}
		v, err := valueFromJSON(param.Type(), r.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		if value.Equal(param.Value(), v) {
			continue
		}
		errs = append(errs, m.host.Replicate(m, p, v))
	}
	return errors.Join(errs...)
}

// descendant walks rel, a slash separated path below n.
func (n *Node) descendant(rel string) (*Node, bool) {
	for name := range strings.SplitSeq(rel, "/") {
		if name == "" {
			continue
		}
		child, ok := n.Contents[name]
		if !ok {
			return nil, false
		}
		n = child
	}
	return n, true
}

// barrier sends a ping and waits for its pong. The server reads frames in
// order, so once the pong arrives every earlier frame has been handled.
func (m *Mirror) barrier(ctx context.Context) error {
	m.mu.Lock()
	conn, done := m.conn, m.done
	if conn == nil || m.closed {
		m.mu.Unlock()
		return fmt.Errorf("%w: oscquery mirror not connected", model.ErrTransport)
	}
	m.pingSeq++
	token := strconv.FormatUint(m.pingSeq, 10)
	ch := make(chan struct{})
	m.pongs[token] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pongs, token)
		m.mu.Unlock()
	}()

	if err := conn.WriteControl(websocket.PingMessage, []byte(token), time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	select {
	case <-ch:
		return nil
	case <-done:
		return fmt.Errorf("%w: websocket closed", model.ErrTransport)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mirror) pong(token string) error {
	m.mu.Lock()
	ch, ok := m.pongs[token]
	delete(m.pongs, token)
	m.mu.Unlock()
	if ok {
		close(ch)
	}
	return nil
}

// apply makes local match remote, collecting parameter addresses.
func (m *Mirror) apply(local model.Node, remote *Node, params *[]string) error {
	var errs []error
	applyMetadata(local, remote)

	if remote.Type != "" {
		if err := m.applyParameter(local, remote); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", local.Address(), err))
		} else {
			*params = append(*params, local.Address())
		}
	} else if _, ok := local.Parameter(); ok {
		errs = append(errs, local.RemoveParameter())
	}

	for _, c := range local.Children() {
		if _, keep := remote.Contents[c.Name()]; !keep {
			errs = append(errs, c.Remove())
		}
	}
	for _, name := range slices.Sorted(maps.Keys(remote.Contents)) {
		child, err := local.FindOrCreate(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, m.apply(child, remote.Contents[name], params))
	}
	return errors.Join(errs...)
}

func applyMetadata(n model.Node, r *Node) {
	if r.Description != "" {
		n.SetDescription(r.Description)
	} else {
		n.UnsetDescription()
	}
	if len(r.Tags) > 0 {
		n.SetTags(r.Tags)
	} else {
		n.UnsetTags()
	}
	if len(r.ExtendedType) > 0 {
		n.SetExtendedType(r.ExtendedType[0])
	} else {
		n.UnsetExtendedType()
	}
	n.SetHidden(r.Hidden)
	if r.RefreshRate != nil {
		n.SetRefreshRate(*r.RefreshRate)
	} else {
		n.UnsetRefreshRate()
	}
	if r.Priority != nil {
		n.SetPriority(*r.Priority)
	} else {
		n.UnsetPriority()
	}
	if r.StepSize != nil {
		n.SetStepSize(*r.StepSize)
	} else {
		n.UnsetStepSize()
	}
}

func (m *Mirror) applyParameter(n model.Node, r *Node) error {
	typ, err := parseTypeTag(r.Type)
	if err != nil {
		return err
	}
	p, ok := n.Parameter()
	if ok && p.Type() != typ {
		if err := n.RemoveParameter(); err != nil {
			return err
		}
		ok = false
	}
	if !ok {
		if p, err = n.CreateParameter(typ); err != nil {
			return err
		}
	}

	if r.Access != nil {
		p.SetAccess(parseAccessCode(*r.Access))
	}
	if len(r.ClipMode) > 0 {
		p.SetBounding(parseClipMode(r.ClipMode[0]))
	}
	if len(r.Unit) > 0 {
		p.SetUnit(r.Unit[0])
	} else {
		p.SetUnit("")
	}
	p.SetCritical(r.Critical)

	d, err := domainFromRanges(typ, r.Range)
	if err != nil {
		return err
	}
	if d.IsZero() {
		p.UnsetDomain()
	} else if err := p.SetDomain(d); err != nil {
		return err
	}

	if len(r.DefaultValue) > 0 {
		if v, err := valueFromJSON(typ, r.DefaultValue); err == nil {
			n.SetDefaultValue(v)
		}
	}
	if len(r.Value) > 0 {
		v, err := valueFromJSON(typ, r.Value)
		if err != nil {
			return err
		}
		return m.host.Replicate(m, n.Address(), v)
	}
	return nil
}

func (m *Mirror) listen(addrs []string) {
	for _, addr := range addrs {
		if err := m.command(CommandListen, addr); err != nil {
			m.logger.Debug("listen failed", "address", addr, "err", err)
			return
		}
	}
}

func (m *Mirror) command(name string, data any) error {
	payload, err := json.Marshal(Command{Command: name, Data: mustJSON(data)})
	if err != nil {
		return err
	}
	return m.write(websocket.TextMessage, payload)
}

func (m *Mirror) write(kind int, data []byte) error {
	m.mu.Lock()
	conn, closed := m.conn, m.closed
	m.mu.Unlock()
	if conn == nil || closed {
		return fmt.Errorf("%w: oscquery mirror not connected", model.ErrTransport)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(kind, data); err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	return nil
}

// Push sends v to the server as a binary OSC frame.
func (m *Mirror) Push(param *model.Parameter, v value.Value, _ *model.Pass) error {
	msg := wire.MessageFromValue(param.Address(), v)
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	m.mu.Lock()
	host := m.host
	m.mu.Unlock()
	if host == nil {
		return fmt.Errorf("%w: oscquery mirror not attached", model.ErrTransport)
	}
	if err := m.write(websocket.BinaryMessage, data); err != nil {
		host.Metrics().MessageDropped("oscquery-mirror", metrics.ReasonSend)
		return err
	}
	host.Metrics().MessageSent("oscquery-mirror")
	m.capture.Message(log.DirectionOut, m.wsURL, msg, len(data))
	return nil
}

// Close disconnects from the server.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn, done, disp := m.conn, m.done, m.dispatcher
	m.mu.Unlock()

	if disp != nil {
		disp.Close()
	}
	if conn == nil {
		return nil
	}
	m.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	m.writeMu.Unlock()
	err := conn.Close()
	<-done
	m.settling.Wait()
	return err
}

var _ model.Protocol = (*Mirror)(nil)
