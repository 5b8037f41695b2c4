package oscquery

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossia-go/paramtree/pkg/domain"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/value"
	"github.com/ossia-go/paramtree/pkg/wire"
)

// newServerDevice returns a device served on ephemeral ports with a float
// parameter at /synth/freq.
func newServerDevice(t *testing.T) (*model.Device, *Server, *model.Parameter) {
	t.Helper()
	srv := NewServer(Config{Host: "127.0.0.1"})
	dev, err := model.NewDevice("synth", srv)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	n, err := dev.Root().CreateChild("/synth/freq")
	require.NoError(t, err)
	p, err := n.CreateParameter(value.TypeFloat)
	require.NoError(t, err)
	rng, err := domain.FloatRange(20, 20000)
	require.NoError(t, err)
	require.NoError(t, p.SetDomain(rng))
	p.SetBounding(domain.Clip)
	require.NoError(t, p.Push(value.Float(440)))
	return dev, srv, p
}

func httpGet(t *testing.T, srv *Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get("http://" + srv.HTTPAddr().String() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.HTTPAddr().String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func sendCommand(t *testing.T, conn *websocket.Conn, name string, data any) {
	t.Helper()
	payload, err := json.Marshal(Command{Command: name, Data: mustJSON(data)})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

// readFrame returns the next frame of the wanted kind, skipping others.
func readFrame(t *testing.T, conn *websocket.Conn, want int) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if kind == want {
			return data
		}
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) *wire.Message {
	t.Helper()
	p, err := wire.ParsePacket(readFrame(t, conn, websocket.BinaryMessage))
	require.NoError(t, err)
	msg, ok := p.(*wire.Message)
	require.True(t, ok)
	return msg
}

// listening reports whether any client listens to addr.
func listening(srv *Server, addr string) bool {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	for _, c := range srv.clients {
		if c.listening[addr] {
			return true
		}
	}
	return false
}

func waitListening(t *testing.T, srv *Server, addr string) {
	t.Helper()
	require.Eventually(t, func() bool { return listening(srv, addr) }, 2*time.Second, 5*time.Millisecond)
}

func TestServeNamespace(t *testing.T) {
	_, srv, _ := newServerDevice(t)

	status, body := httpGet(t, srv, "/")
	require.Equal(t, http.StatusOK, status)
	var root Node
	require.NoError(t, json.Unmarshal(body, &root))
	freq := root.Contents["synth"].Contents["freq"]
	require.NotNil(t, freq)
	assert.Equal(t, "/synth/freq", freq.FullPath)
	assert.Equal(t, "f", freq.Type)
	assert.Equal(t, []any{440.0}, freq.Value)
	assert.Equal(t, []Range{{Min: 20.0, Max: 20000.0}}, freq.Range)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/synth/freq?VALUE", http.StatusOK, `{"VALUE":[440]}`},
		{"/synth/freq?CLIPMODE", http.StatusOK, `{"CLIPMODE":["both"]}`},
		{"/synth/freq?UNIT", http.StatusNoContent, ``},
		{"/synth/freq?BOGUS", http.StatusBadRequest, ``},
		{"/nowhere", http.StatusNotFound, ``},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := httpGet(t, srv, tt.path)
			assert.Equal(t, tt.status, status)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, string(body))
			}
		})
	}
}

func TestHostInfo(t *testing.T) {
	_, srv, _ := newServerDevice(t)

	status, body := httpGet(t, srv, "/?HOST_INFO")
	require.Equal(t, http.StatusOK, status)
	var info HostInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "synth", info.Name)
	assert.Equal(t, srv.OSCAddr().(*net.UDPAddr).Port, info.OSCPort)
	assert.Equal(t, "UDP", info.OSCTransport)
	assert.True(t, info.Extensions["LISTEN"])
	assert.True(t, info.Extensions[AttrValue])
}

func TestMethodNotAllowed(t *testing.T) {
	_, srv, _ := newServerDevice(t)
	resp, err := http.Post("http://"+srv.HTTPAddr().String()+"/", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestListenStreamsOverWebSocket(t *testing.T) {
	_, srv, freq := newServerDevice(t)
	conn := dialWS(t, srv)

	sendCommand(t, conn, CommandListen, "/synth/freq")
	waitListening(t, srv, "/synth/freq")

	require.NoError(t, freq.Push(value.Float(880)))
	msg := readMessage(t, conn)
	assert.Equal(t, "/synth/freq", msg.Address)
	assert.Equal(t, []any{float32(880)}, msg.Arguments)

	sendCommand(t, conn, CommandIgnore, "/synth/freq")
	require.Eventually(t, func() bool { return !listening(srv, "/synth/freq") }, time.Second, 5*time.Millisecond)
}

func TestWebSocketWritesParameters(t *testing.T) {
	_, srv, freq := newServerDevice(t)
	conn := dialWS(t, srv)

	data, err := wire.MessageFromValue("/synth/freq", value.Float(50000)).MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))

	require.Eventually(t, func() bool {
		f, _ := freq.ToFloat()
		return f == 20000
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOSCSideChannel(t *testing.T) {
	_, srv, freq := newServerDevice(t)

	conn, err := net.Dial("udp", srv.OSCAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	data, err := wire.MessageFromValue("/synth/freq", value.Float(100)).MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f, _ := freq.ToFloat()
		return f == 100
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOSCStreaming(t *testing.T) {
	_, srv, freq := newServerDevice(t)
	conn := dialWS(t, srv)

	stream, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer stream.Close()
	port := stream.LocalAddr().(*net.UDPAddr).Port

	sendCommand(t, conn, CommandStartOSCStreaming, map[string]int{"LOCAL_SERVER_PORT": port})
	sendCommand(t, conn, CommandListen, "/synth/freq")
	waitListening(t, srv, "/synth/freq")

	require.NoError(t, freq.Push(value.Float(1000)))
	buf := make([]byte, 1024)
	require.NoError(t, stream.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := stream.ReadFrom(buf)
	require.NoError(t, err)
	p, err := wire.ParsePacket(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, "/synth/freq", p.(*wire.Message).Address)

	// Critical parameters bypass the stream.
	freq.SetCritical(true)
	require.NoError(t, freq.Push(value.Float(1200)))
	msg := readMessage(t, conn)
	assert.Equal(t, "/synth/freq", msg.Address)
	assert.Equal(t, []any{float32(1200)}, msg.Arguments)
}

func TestPathNotifications(t *testing.T) {
	dev, srv, _ := newServerDevice(t)
	conn := dialWS(t, srv)

	n, err := dev.Root().CreateChild("/synth/gain")
	require.NoError(t, err)

	var cmd Command
	require.NoError(t, json.Unmarshal(readFrame(t, conn, websocket.TextMessage), &cmd))
	assert.Equal(t, NotifyPathAdded, cmd.Command)
	assert.JSONEq(t, `"/synth/gain"`, string(cmd.Data))

	_, err = n.CreateParameter(value.TypeInt)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(readFrame(t, conn, websocket.TextMessage), &cmd))
	assert.Equal(t, NotifyPathChanged, cmd.Command)

	require.NoError(t, n.Remove())
	require.NoError(t, json.Unmarshal(readFrame(t, conn, websocket.TextMessage), &cmd))
	assert.Equal(t, NotifyPathRemoved, cmd.Command)
	assert.JSONEq(t, `"/synth/gain"`, string(cmd.Data))
}

func TestRefreshRateCoalesces(t *testing.T) {
	_, srv, freq := newServerDevice(t)
	freq.Node().SetRefreshRate(100)
	conn := dialWS(t, srv)
	sendCommand(t, conn, CommandListen, "/synth/freq")
	waitListening(t, srv, "/synth/freq")

	for _, f := range []float32{100, 200, 300} {
		require.NoError(t, freq.Push(value.Float(f)))
	}
	msg := readMessage(t, conn)
	assert.Equal(t, []any{float32(300)}, msg.Arguments)
}

func TestServerBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	_, err = model.NewDevice("synth", NewServer(Config{Host: "127.0.0.1", WSPort: port}))
	assert.ErrorIs(t, err, model.ErrTransport)
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}

func TestServerPushBeforeAttach(t *testing.T) {
	srv := NewServer(DefaultConfig())
	dev, err := model.NewDevice("local", nil)
	require.NoError(t, err)
	defer dev.Close()
	n, err := dev.Root().CreateChild("/x")
	require.NoError(t, err)
	p, err := n.CreateParameter(value.TypeInt)
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Push(p, value.Int(1), nil), model.ErrTransport)
	assert.NoError(t, srv.Close())
}
