package interactive

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossia-go/paramtree/pkg/config"
	"github.com/ossia-go/paramtree/pkg/discovery"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/protocol/osc"
	"github.com/ossia-go/paramtree/pkg/value"
)

// syncBuffer is a bytes.Buffer safe for the watch goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func newSynth(t *testing.T) *model.Device {
	t.Helper()
	dev, err := model.NewDevice("synth", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	require.NoError(t, config.ApplyNamespace(dev.Root(), []config.Entry{
		{Path: "/synth", Description: "a synthesizer"},
		{Path: "/synth/freq", Type: "float", Min: 20, Max: 20000, Bounding: "clip", Unit: "Hz", Value: 440, Tags: []string{SimulateTag}},
		{Path: "/synth/gate", Type: "bool", Tags: []string{SimulateTag}},
		{Path: "/synth/voices", Type: "int", Tags: []string{SimulateTag}},
		{Path: "/synth/wave", Type: "string", Values: []any{"sine", "square"}, Value: "sine", Tags: []string{SimulateTag}},
		{Path: "/synth/gain", Type: "float", Value: 0.5},
	}))
	return dev
}

func newShell(t *testing.T) (*Shell, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	dev := newSynth(t)
	s := NewShell(dev, NewSimulator(dev, time.Second, nil), out)
	t.Cleanup(s.Close)
	return s, out
}

func run(t *testing.T, s *Shell, out *syncBuffer, line string) string {
	t.Helper()
	out.Reset()
	require.True(t, s.Exec(context.Background(), line), "command %q asked to exit", line)
	return out.String()
}

func TestShellNavigation(t *testing.T) {
	s, out := newShell(t)

	assert.Equal(t, "synth:/> ", s.Prompt())
	assert.Contains(t, run(t, s, out, "ls"), "synth/")

	var prompts []string
	s.onPrompt = func(p string) { prompts = append(prompts, p) }
	run(t, s, out, "cd synth")
	assert.Equal(t, []string{"synth:/synth> "}, prompts)
	assert.Equal(t, "/synth\n", run(t, s, out, "pwd"))

	listing := run(t, s, out, "ls")
	assert.Contains(t, listing, "freq = 440 Hz")
	assert.Contains(t, listing, `wave = "sine"`)

	assert.Contains(t, run(t, s, out, "ls /synth/g*"), "gain = 0.5")
	assert.Contains(t, run(t, s, out, "cd /nowhere"), "node not found")
	assert.Equal(t, "/synth\n", run(t, s, out, "pwd"))

	run(t, s, out, "cd ..")
	assert.Equal(t, "/\n", run(t, s, out, "pwd"))

	tree := run(t, s, out, "tree /synth")
	assert.Contains(t, tree, "freq = 440")
	assert.Contains(t, tree, "# a synthesizer")
}

func TestShellValues(t *testing.T) {
	s, out := newShell(t)

	assert.Equal(t, "/synth/freq = 440 Hz\n", run(t, s, out, "get /synth/freq"))
	assert.Equal(t, "OK\n", run(t, s, out, "set /synth/freq 50000"))
	assert.Equal(t, "/synth/freq = 20000 Hz\n", run(t, s, out, "get /synth/freq"))

	assert.Contains(t, run(t, s, out, "set /synth/freq loud"), "Error:")
	assert.Contains(t, run(t, s, out, "get /synth"), "node has no parameter")
	assert.Contains(t, run(t, s, out, "set /synth/freq"), "Usage: set")
}

func TestShellAttributes(t *testing.T) {
	s, out := newShell(t)

	all := run(t, s, out, "attr /synth/freq")
	assert.Contains(t, all, "unit:")
	assert.Contains(t, all, "Hz")
	assert.Contains(t, all, "domain:")

	assert.Equal(t, "/synth/freq:unit = Hz\n", run(t, s, out, "attr /synth/freq:unit"))
	assert.Equal(t, "OK\n", run(t, s, out, "attr /synth/freq:unit kHz"))
	assert.Equal(t, "/synth/freq:unit = kHz\n", run(t, s, out, "attr /synth/freq:unit"))

	assert.Equal(t, "OK\n", run(t, s, out, `attr /synth:description "a polysynth"`))
	assert.Contains(t, run(t, s, out, "attr /synth:description"), "a polysynth")

	assert.Contains(t, run(t, s, out, "attr /synth/freq:colour"), "unknown attribute")
}

func TestShellCreateRemove(t *testing.T) {
	s, out := newShell(t)

	assert.Equal(t, "Created /fx/reverb/mix\n", run(t, s, out, "create /fx/reverb/mix float"))
	assert.Equal(t, "OK\n", run(t, s, out, "set /fx/reverb/mix 0.3"))
	assert.Contains(t, run(t, s, out, "get /fx/reverb/mix"), "0.3")

	var prompts []string
	s.onPrompt = func(p string) { prompts = append(prompts, p) }
	run(t, s, out, "cd /fx/reverb")
	assert.Equal(t, "OK\n", run(t, s, out, "rm /fx"))
	assert.Equal(t, "/\n", run(t, s, out, "pwd"))
	assert.Equal(t, []string{"synth:/fx/reverb> ", "synth:/> "}, prompts)

	assert.Contains(t, run(t, s, out, "get /fx/reverb/mix"), "node not found")
	assert.Contains(t, run(t, s, out, "create /x quaternion"), "Error:")
}

func TestShellWatch(t *testing.T) {
	s, out := newShell(t)

	assert.Equal(t, "Watching 2 parameter(s)\n", run(t, s, out, "watch /synth/{freq,gain}"))

	freq, ok := s.dev.Root().Find("/synth/freq")
	require.True(t, ok)
	p, _ := freq.Parameter()
	require.NoError(t, p.Push(value.Float(880)))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[watch] /synth/freq <- 880 Hz")
	}, 2*time.Second, 20*time.Millisecond)

	run(t, s, out, "unwatch /synth/freq")
	require.NoError(t, p.Push(value.Float(660)))
	time.Sleep(3 * watchInterval)
	assert.NotContains(t, out.String(), "660")

	assert.Equal(t, "Stopped watching\n", run(t, s, out, "unwatch"))
	assert.Contains(t, run(t, s, out, "watch /synth"), "node has no parameter")
}

func TestShellProtocols(t *testing.T) {
	s, out := newShell(t)
	assert.Equal(t, "No protocols attached\n", run(t, s, out, "protocols"))

	cfg := osc.DefaultConfig()
	cfg.LocalHost = "127.0.0.1"
	cfg.LocalPort = 0
	require.NoError(t, s.dev.AddProtocol(osc.New(cfg)))

	assert.Contains(t, run(t, s, out, "protocols"), "osc on 127.0.0.1:")
}

func TestShellBrowse(t *testing.T) {
	s, out := newShell(t)
	s.browseFunc = func(ctx context.Context) (<-chan discovery.Service, error) {
		ch := make(chan discovery.Service, 1)
		ch <- discovery.Service{Instance: "mixer", Addresses: []string{"10.0.0.5"}, Port: 5678, OSCPort: 1234}
		close(ch)
		return ch, nil
	}

	got := run(t, s, out, "browse")
	assert.Contains(t, got, "mixer at 10.0.0.5:5678 (osc 1234)")
	assert.Contains(t, got, "Found 1 server(s)")
}

func TestShellMisc(t *testing.T) {
	s, out := newShell(t)

	assert.Contains(t, run(t, s, out, "help"), "Parameter Tree Commands")
	assert.Contains(t, run(t, s, out, "frobnicate"), "Unknown command: frobnicate")
	assert.Empty(t, run(t, s, out, "   "))
	assert.Empty(t, run(t, s, out, "# comment"))
	assert.Contains(t, run(t, s, out, "refresh"), "Namespace refreshed")
	assert.Equal(t, "Updated 3 parameter(s)\n", run(t, s, out, "sim step"))
	assert.Equal(t, "Simulation running: false\n", run(t, s, out, "sim"))

	out.Reset()
	assert.False(t, s.Exec(context.Background(), "quit"))
	assert.Equal(t, "Exiting...\n", out.String())
}
