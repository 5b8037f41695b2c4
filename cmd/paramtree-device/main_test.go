package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossia-go/paramtree/pkg/config"
)

func noFlags() Flags {
	return Flags{OSCPort: -1, OSCQueryPort: -1}
}

func TestDeviceFileDefaults(t *testing.T) {
	file, err := deviceFile(noFlags())
	require.NoError(t, err)
	assert.Equal(t, "paramtree", file.Name)
	assert.Empty(t, file.Protocols)
}

func TestDeviceFileFlags(t *testing.T) {
	f := noFlags()
	f.Name = "synth"
	f.LogLevel = "debug"
	f.EventLog = "synth.plog"
	f.OSCPort = 9000
	f.OSCRemote = "10.0.0.2:9001"
	f.OSCQueryPort = 0
	f.Advertise = true
	f.Mirror = "10.0.0.3:5678"

	file, err := deviceFile(f)
	require.NoError(t, err)
	assert.Equal(t, "synth", file.Name)
	assert.Equal(t, "synth.plog", file.EventLog)

	require.Len(t, file.Protocols, 3)
	oscp := file.Protocols[0]
	assert.Equal(t, config.KindOSC, oscp.Kind)
	require.NotNil(t, oscp.LocalPort)
	assert.Equal(t, 9000, *oscp.LocalPort)
	assert.Equal(t, "10.0.0.2", oscp.RemoteHost)
	require.NotNil(t, oscp.RemotePort)
	assert.Equal(t, 9001, *oscp.RemotePort)

	query := file.Protocols[1]
	assert.Equal(t, config.KindOSCQuery, query.Kind)
	require.NotNil(t, query.WSPort)
	assert.Equal(t, 0, *query.WSPort)
	assert.True(t, query.Advertise)

	assert.Equal(t, config.KindMirror, file.Protocols[2].Kind)
	assert.Equal(t, "10.0.0.3:5678", file.Protocols[2].Host)
}

func TestDeviceFileOverridesLoadedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: synth\nlog_level: warn\nprotocols:\n  - kind: osc\n"), 0o644))

	f := noFlags()
	f.ConfigFile = path
	f.LogLevel = "trace"
	f.OSCPort = 9100

	file, err := deviceFile(f)
	require.NoError(t, err)
	assert.Equal(t, "synth", file.Name)
	assert.Equal(t, "trace", file.LogLevel)
	require.Len(t, file.Protocols, 2)
	assert.Equal(t, "osc", file.Protocols[0].ProtocolName())
	assert.Equal(t, "osc2", file.Protocols[1].ProtocolName())
}

func TestDeviceFileErrors(t *testing.T) {
	f := noFlags()
	f.OSCRemote = "nohost"
	_, err := deviceFile(f)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	f = noFlags()
	f.LogLevel = "chatty"
	_, err = deviceFile(f)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	f = noFlags()
	f.ConfigFile = filepath.Join(t.TempDir(), "absent.toml")
	_, err = deviceFile(f)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSwitchWriter(t *testing.T) {
	var a, b bytes.Buffer
	w := &switchWriter{w: &a}
	_, _ = w.Write([]byte("one"))
	w.Set(&b)
	_, _ = w.Write([]byte("two"))
	assert.Equal(t, "one", a.String())
	assert.Equal(t, "two", b.String())
}
