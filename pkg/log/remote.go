package log

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrSinkClosed is returned when writing to a closed RemoteSink.
var ErrSinkClosed = errors.New("log sink closed")

// RemoteConfig configures a RemoteSink.
type RemoteConfig struct {
	// URL of the log server, e.g. "ws://127.0.0.1:1337".
	URL string

	// App names the sender in every message.
	App string

	// HeartbeatInterval between "alive" messages (default: 1s).
	HeartbeatInterval time.Duration

	// WriteTimeout bounds each WebSocket write (default: 5s).
	WriteTimeout time.Duration

	// DialTimeout bounds the connection handshake (default: 10s).
	DialTimeout time.Duration
}

// DefaultRemoteConfig returns the defaults for url.
func DefaultRemoteConfig(url string) RemoteConfig {
	return RemoteConfig{
		URL:               url,
		HeartbeatInterval: time.Second,
		WriteTimeout:      5 * time.Second,
		DialTimeout:       10 * time.Second,
	}
}

// remoteMessage is the JSON shape understood by the log server.
type remoteMessage struct {
	Operation string `json:"operation"`
	Level     string `json:"level,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Message   string `json:"message,omitempty"`
	PID       int    `json:"pid,omitempty"`
	Cmd       string `json:"cmd,omitempty"`
}

// RemoteSink sends leveled messages to a log server over WebSocket.
type RemoteSink struct {
	threshold
	config RemoteConfig
	conn   *websocket.Conn

	writeMu sync.Mutex
	once    sync.Once
	closed  chan struct{}
	wg      sync.WaitGroup
	err     error
}

// DialRemoteSink connects to the log server.
func DialRemoteSink(ctx context.Context, config RemoteConfig) (*RemoteSink, error) {
	def := DefaultRemoteConfig(config.URL)
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = def.HeartbeatInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = def.DialTimeout
	}

	dialer := &websocket.Dialer{HandshakeTimeout: config.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial log server %s: %w", config.URL, err)
	}
	s := &RemoteSink{
		config: config,
		conn:   conn,
		closed: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.drain()
	return s, nil
}

// Log sends msg. Write failures are remembered and reported by Err.
func (s *RemoteSink) Log(level Level, msg string) {
	if !s.allows(level) {
		return
	}
	_ = s.send(remoteMessage{Operation: "log", Level: level.String(), Sender: s.config.App, Message: msg})
}

// InitHeartbeat starts sending "alive" messages every HeartbeatInterval
// until Close. Only the first call has an effect.
func (s *RemoteSink) InitHeartbeat(pid int, cmdline string) {
	started := false
	s.once.Do(func() { started = true })
	if !started {
		return
	}
	alive := remoteMessage{Operation: "alive", Sender: s.config.App, PID: pid, Cmd: cmdline}
	_ = s.send(alive)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.closed:
				return
			case <-ticker.C:
				if err := s.send(alive); err != nil {
					return
				}
			}
		}
	}()
}

// Err returns the first write error, if any.
func (s *RemoteSink) Err() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.err
}

// Close stops the heartbeat and closes the connection.
func (s *RemoteSink) Close() error {
	s.writeMu.Lock()
	select {
	case <-s.closed:
		s.writeMu.Unlock()
		return nil
	default:
	}
	close(s.closed)
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := s.conn.Close()
	s.writeMu.Unlock()

	s.wg.Wait()
	return err
}

func (s *RemoteSink) send(m remoteMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.closed:
		return ErrSinkClosed
	default:
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if s.err == nil {
			s.err = err
		}
		return err
	}
	return nil
}

// drain discards anything the server sends so control frames are processed.
func (s *RemoteSink) drain() {
	defer s.wg.Done()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var (
	_ Sink = (*SlogSink)(nil)
	_ Sink = (*RemoteSink)(nil)
)
