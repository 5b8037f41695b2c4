package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossia-go/paramtree/pkg/log"
	"github.com/ossia-go/paramtree/pkg/value"
)

const synthYAML = `
name: synth
log_level: debug
event_log: /tmp/synth.plog
metrics_addr: ":9090"
protocols:
  - kind: osc
    name: desk
    remote_host: 10.0.0.2
    remote_port: 9000
    local_port: 0
    transport: tcp
    learn: true
  - kind: oscquery
    ws_port: 5678
    advertise: true
  - kind: minuit
    local_name: synth
    timeout: 2s
  - kind: multiplex
    name: bridge
    members: [desk, minuit]
    expose:
      - source: desk
        target: minuit
namespace:
  - path: /synth
    description: a synthesizer
  - path: /synth/freq
    type: float
    min: 20
    max: 20000
    bounding: clip
    unit: Hz
    value: 440
    tags: [audio, pitch]
    refresh_rate: 50
    step_size: 0.5
  - path: /synth/wave
    type: string
    values: [sine, square]
    default: sine
    flags: [repetition_filter]
`

const synthTOML = `
name = "synth"
log_level = "debug"
event_log = "/tmp/synth.plog"
metrics_addr = ":9090"

[[protocols]]
kind = "osc"
name = "desk"
remote_host = "10.0.0.2"
remote_port = 9000
local_port = 0
transport = "tcp"
learn = true

[[protocols]]
kind = "oscquery"
ws_port = 5678
advertise = true

[[protocols]]
kind = "minuit"
local_name = "synth"
timeout = "2s"

[[protocols]]
kind = "multiplex"
name = "bridge"
members = ["desk", "minuit"]

[[protocols.expose]]
source = "desk"
target = "minuit"

[[namespace]]
path = "/synth"
description = "a synthesizer"

[[namespace]]
path = "/synth/freq"
type = "float"
min = 20
max = 20000
bounding = "clip"
unit = "Hz"
value = 440
tags = ["audio", "pitch"]
refresh_rate = 50
step_size = 0.5

[[namespace]]
path = "/synth/wave"
type = "string"
values = ["sine", "square"]
default = "sine"
flags = ["repetition_filter"]
`

func checkSynthFile(t *testing.T, f *File) {
	t.Helper()
	assert.Equal(t, "synth", f.Name)
	assert.Equal(t, log.LevelDebug, f.Level())
	assert.Equal(t, "/tmp/synth.plog", f.EventLog)
	assert.Equal(t, ":9090", f.MetricsAddr)

	require.Len(t, f.Protocols, 4)
	desk := f.Protocols[0]
	assert.Equal(t, KindOSC, desk.Kind)
	assert.Equal(t, "desk", desk.ProtocolName())
	require.NotNil(t, desk.RemotePort)
	assert.Equal(t, 9000, *desk.RemotePort)
	require.NotNil(t, desk.LocalPort)
	assert.Equal(t, 0, *desk.LocalPort)
	assert.Equal(t, "tcp", desk.Transport)
	assert.True(t, desk.Learn)

	query := f.Protocols[1]
	assert.Equal(t, "oscquery", query.ProtocolName())
	assert.Nil(t, query.OSCPort)
	require.NotNil(t, query.WSPort)
	assert.Equal(t, 5678, *query.WSPort)
	assert.True(t, query.Advertise)

	assert.Equal(t, 2*time.Second, f.Protocols[2].TimeoutDuration())

	mux := f.Protocols[3]
	assert.Equal(t, []string{"desk", "minuit"}, mux.Members)
	assert.Equal(t, []Edge{{Source: "desk", Target: "minuit"}}, mux.Expose)

	require.Len(t, f.Namespace, 3)
	freq := f.Namespace[1]
	assert.Equal(t, "float", freq.Type)
	assert.EqualValues(t, 20, freq.Min)
	assert.EqualValues(t, 440, freq.Value)
	assert.Equal(t, []string{"audio", "pitch"}, freq.Tags)
	assert.Equal(t, int32(50), freq.RefreshRate)
	require.NotNil(t, freq.StepSize)
	assert.Equal(t, float32(0.5), *freq.StepSize)

	wave := f.Namespace[2]
	assert.Equal(t, []any{"sine", "square"}, wave.Values)
	assert.True(t, wave.HasFlag("repetition_filter"))
	assert.False(t, wave.HasFlag("muted"))
}

func TestParseYAML(t *testing.T) {
	f, err := Parse([]byte(synthYAML), FormatYAML)
	require.NoError(t, err)
	checkSynthFile(t, f)
}

func TestParseTOML(t *testing.T) {
	f, err := Parse([]byte(synthTOML), FormatTOML)
	require.NoError(t, err)
	checkSynthFile(t, f)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"synth.yaml": synthYAML,
		"synth.yml":  synthYAML,
		"synth.toml": synthTOML,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			f, err := Load(path)
			require.NoError(t, err)
			checkSynthFile(t, f)
		})
	}

	t.Run("unknown extension", func(t *testing.T) {
		path := filepath.Join(dir, "synth.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
	}{
		{"unknown yaml key", FormatYAML, "name: a\ncolour: red\n"},
		{"unknown toml key", FormatTOML, "name = \"a\"\ncolour = \"red\"\n"},
		{"malformed yaml", FormatYAML, "name: [a\n"},
		{"malformed toml", FormatTOML, "name = \n"},
		{"missing name", FormatYAML, "log_level: info\n"},
		{"bad log level", FormatYAML, "name: a\nlog_level: chatty\n"},
		{"unknown kind", FormatYAML, "name: a\nprotocols:\n  - kind: midi\n"},
		{"duplicate name", FormatYAML, "name: a\nprotocols:\n  - kind: osc\n  - kind: osc\n"},
		{"bad timeout", FormatYAML, "name: a\nprotocols:\n  - kind: minuit\n    timeout: soon\n"},
		{"port out of range", FormatYAML, "name: a\nprotocols:\n  - kind: osc\n    local_port: 70000\n"},
		{"mirror without host", FormatYAML, "name: a\nprotocols:\n  - kind: mirror\n"},
		{"bad osc transport", FormatYAML, "name: a\nprotocols:\n  - kind: osc\n    transport: serial\n"},
		{"unknown member", FormatYAML, "name: a\nprotocols:\n  - kind: multiplex\n    members: [ghost]\n"},
		{"nested multiplex", FormatYAML, "name: a\nprotocols:\n  - kind: multiplex\n    name: inner\n  - kind: multiplex\n    members: [inner]\n"},
		{"shared member", FormatYAML, "name: a\nprotocols:\n  - kind: osc\n  - {kind: multiplex, name: m1, members: [osc]}\n  - {kind: multiplex, name: m2, members: [osc]}\n"},
		{"exposure between non-members", FormatYAML, "name: a\nprotocols:\n  - kind: osc\n  - kind: minuit\n  - kind: multiplex\n    members: [osc]\n    expose: [{source: osc, target: minuit}]\n"},
		{"relative path", FormatYAML, "name: a\nnamespace:\n  - path: synth\n"},
		{"bad type", FormatYAML, "name: a\nnamespace:\n  - path: /x\n    type: quaternion\n"},
		{"value without type", FormatYAML, "name: a\nnamespace:\n  - path: /x\n    value: 1\n"},
		{"unknown flag", FormatYAML, "name: a\nnamespace:\n  - path: /x\n    type: int\n    flags: [loud]\n"},
		{"inverted instances", FormatYAML, "name: a\nnamespace:\n  - path: /x\n    instances: {min: 3, max: 1}\n"},
		{"unknown format", Format("ini"), "name=a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		name string
		typ  value.Type
		raw  any
		want value.Value
	}{
		{"yaml int to float", value.TypeFloat, 20, value.Float(20)},
		{"toml int to float", value.TypeFloat, int64(20), value.Float(20)},
		{"float to int", value.TypeInt, 2.0, value.Int(2)},
		{"bool", value.TypeBool, true, value.Bool(true)},
		{"string", value.TypeString, "sine", value.String("sine")},
		{"hex string to bytes", value.TypeBytes, "0x0a0b", value.Bytes([]byte{10, 11})},
		{"string to vec3", value.TypeVec3f, "1 2 3", value.Vec3f(1, 2, 3)},
		{"sequence to vec2", value.TypeVec2f, []any{1, 2.5}, value.Vec2f(1, 2.5)},
		{"sequence to list", value.TypeList, []any{1, "a"}, value.List(value.Int(1), value.String("a"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Literal(tt.typ, tt.raw)
			require.NoError(t, err)
			assert.True(t, value.Equal(tt.want, got), "got %s, want %s", got, tt.want)
		})
	}

	_, err := Literal(value.TypeInt, map[string]any{"a": 1})
	assert.ErrorIs(t, err, value.ErrInvalidArgument)
	_, err = Literal(value.TypeInt, "many")
	assert.ErrorIs(t, err, value.ErrInvalidArgument)
}
