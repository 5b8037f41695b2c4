// Package config loads device files describing a parameter tree, the
// protocols that expose it and the ambient settings of the daemon.
//
// Files are YAML (.yaml, .yml) or TOML (.toml) with the same schema:
//
//	name: synth
//	log_level: info
//	protocols:
//	  - kind: oscquery
//	    osc_port: 1234
//	    ws_port: 5678
//	namespace:
//	  - path: /synth/freq
//	    type: float
//	    min: 20
//	    max: 20000
//	    bounding: clip
//	    unit: Hz
//	    value: 440
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ossia-go/paramtree/pkg/log"
	"github.com/ossia-go/paramtree/pkg/value"
)

// ErrInvalidConfig is returned for malformed or inconsistent device files.
var ErrInvalidConfig = errors.New("invalid config")

// Format is a device file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Protocol kinds accepted in device files.
const (
	KindOSC       = "osc"
	KindMinuit    = "minuit"
	KindOSCQuery  = "oscquery"
	KindMirror    = "mirror"
	KindMultiplex = "multiplex"
)

// File is a device file.
type File struct {
	// Name is the device name.
	Name string `yaml:"name" toml:"name"`

	// LogLevel is the minimum level of operational logs (default: info).
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// EventLog is a path for the CBOR protocol event log (optional).
	EventLog string `yaml:"event_log" toml:"event_log"`

	// MetricsAddr serves Prometheus metrics, e.g. ":9090" (optional).
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr"`

	// LogHost is a remote log server URL (optional).
	LogHost string `yaml:"log_host" toml:"log_host"`

	Protocols []Protocol `yaml:"protocols" toml:"protocols"`
	Namespace []Entry    `yaml:"namespace" toml:"namespace"`
}

// Protocol describes one protocol attached to the device. Fields that do
// not apply to Kind are ignored.
type Protocol struct {
	Kind string `yaml:"kind" toml:"kind"`

	// Name identifies the protocol for multiplex membership (default: Kind).
	Name string `yaml:"name" toml:"name"`

	// osc, minuit. Ports left out take the protocol default; 0 picks an
	// ephemeral port.
	RemoteHost string `yaml:"remote_host" toml:"remote_host"`
	RemotePort *int   `yaml:"remote_port" toml:"remote_port"`
	LocalPort  *int   `yaml:"local_port" toml:"local_port"`
	LocalHost  string `yaml:"local_host" toml:"local_host"`
	Transport  string `yaml:"transport" toml:"transport"`
	Learn      bool   `yaml:"learn" toml:"learn"`

	// LocalName is the Minuit application name, or the OSCQuery server
	// name reported in HOST_INFO.
	LocalName string `yaml:"local_name" toml:"local_name"`

	// oscquery; Host is the bind interface, or the server for a mirror
	OSCPort   *int   `yaml:"osc_port" toml:"osc_port"`
	WSPort    *int   `yaml:"ws_port" toml:"ws_port"`
	Advertise bool   `yaml:"advertise" toml:"advertise"`
	Host      string `yaml:"host" toml:"host"`

	// minuit, mirror
	Timeout string `yaml:"timeout" toml:"timeout"`
	Sync    bool   `yaml:"sync" toml:"sync"`

	// multiplex
	Members []string `yaml:"members" toml:"members"`
	Expose  []Edge   `yaml:"expose" toml:"expose"`
}

// Edge forwards values received by the Source member to Target.
type Edge struct {
	Source string `yaml:"source" toml:"source"`
	Target string `yaml:"target" toml:"target"`
}

// Entry describes one node of the namespace. An empty Type creates a plain
// node without parameter.
type Entry struct {
	Path     string `yaml:"path" toml:"path"`
	Type     string `yaml:"type" toml:"type"`
	Access   string `yaml:"access" toml:"access"`
	Bounding string `yaml:"bounding" toml:"bounding"`

	// Min, Max and Values bound the parameter; Values wins over a range.
	Min    any   `yaml:"min" toml:"min"`
	Max    any   `yaml:"max" toml:"max"`
	Values []any `yaml:"values" toml:"values"`

	// Value is pushed once the parameter is configured.
	Value   any `yaml:"value" toml:"value"`
	Default any `yaml:"default" toml:"default"`

	Unit         string   `yaml:"unit" toml:"unit"`
	Description  string   `yaml:"description" toml:"description"`
	Tags         []string `yaml:"tags" toml:"tags"`
	ExtendedType string   `yaml:"extended_type" toml:"extended_type"`

	// Flags holds parameter switches: muted, disabled, critical,
	// repetition_filter.
	Flags    []string `yaml:"flags" toml:"flags"`
	Critical bool     `yaml:"critical" toml:"critical"`
	Hidden   bool     `yaml:"hidden" toml:"hidden"`

	RefreshRate int32    `yaml:"refresh_rate" toml:"refresh_rate"`
	Priority    *float32 `yaml:"priority" toml:"priority"`
	StepSize    *float32 `yaml:"step_size" toml:"step_size"`
	Instances   *Bounds  `yaml:"instances" toml:"instances"`
}

// Bounds is an instance count range.
type Bounds struct {
	Min int32 `yaml:"min" toml:"min"`
	Max int32 `yaml:"max" toml:"max"`
}

var entryFlags = map[string]bool{
	"muted":             true,
	"disabled":          true,
	"critical":          true,
	"repetition_filter": true,
}

// Load reads the device file at path. The format follows the extension.
func Load(path string) (*File, error) {
	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".toml":
		format = FormatTOML
	default:
		return nil, fmt.Errorf("%w: unsupported file extension %q", ErrInvalidConfig, filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a device file. Unknown keys are rejected.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	case FormatTOML:
		meta, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the file for consistency.
func (f *File) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: device name is required", ErrInvalidConfig)
	}
	if f.LogLevel != "" {
		if _, err := log.ParseLevel(f.LogLevel); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	names := make(map[string]string, len(f.Protocols))
	for i, p := range f.Protocols {
		switch p.Kind {
		case KindOSC, KindMinuit, KindOSCQuery, KindMirror, KindMultiplex:
		default:
			return fmt.Errorf("%w: protocol %d: unknown kind %q", ErrInvalidConfig, i, p.Kind)
		}
		name := p.ProtocolName()
		if _, dup := names[name]; dup {
			return fmt.Errorf("%w: duplicate protocol name %q", ErrInvalidConfig, name)
		}
		names[name] = p.Kind
		if p.Timeout != "" {
			if _, err := time.ParseDuration(p.Timeout); err != nil {
				return fmt.Errorf("%w: protocol %q timeout: %w", ErrInvalidConfig, name, err)
			}
		}
		for _, port := range []*int{p.RemotePort, p.LocalPort, p.OSCPort, p.WSPort} {
			if port != nil && (*port < 0 || *port > 65535) {
				return fmt.Errorf("%w: protocol %q: port %d out of range", ErrInvalidConfig, name, *port)
			}
		}
		switch p.Kind {
		case KindMirror:
			if p.Host == "" {
				return fmt.Errorf("%w: mirror %q needs a host", ErrInvalidConfig, name)
			}
		case KindOSC:
			if p.Transport != "" && p.Transport != "udp" && p.Transport != "tcp" {
				return fmt.Errorf("%w: osc %q transport %q", ErrInvalidConfig, name, p.Transport)
			}
		}
	}

	members := make(map[string]string)
	for _, p := range f.Protocols {
		if p.Kind != KindMultiplex {
			continue
		}
		own := make(map[string]bool, len(p.Members))
		for _, m := range p.Members {
			kind, ok := names[m]
			if !ok {
				return fmt.Errorf("%w: multiplex %q: unknown member %q", ErrInvalidConfig, p.ProtocolName(), m)
			}
			if kind == KindMultiplex {
				return fmt.Errorf("%w: multiplex %q: nested multiplex %q", ErrInvalidConfig, p.ProtocolName(), m)
			}
			if owner, taken := members[m]; taken {
				return fmt.Errorf("%w: protocol %q is a member of %q and %q", ErrInvalidConfig, m, owner, p.ProtocolName())
			}
			members[m] = p.ProtocolName()
			own[m] = true
		}
		for _, e := range p.Expose {
			if !own[e.Source] || !own[e.Target] {
				return fmt.Errorf("%w: multiplex %q: exposure %s -> %s between non-members", ErrInvalidConfig, p.ProtocolName(), e.Source, e.Target)
			}
		}
	}

	for i, e := range f.Namespace {
		if !strings.HasPrefix(e.Path, "/") {
			return fmt.Errorf("%w: namespace entry %d: path %q is not absolute", ErrInvalidConfig, i, e.Path)
		}
		if e.Type != "" {
			if _, err := value.ParseType(e.Type); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, e.Path, err)
			}
		} else if e.Value != nil || e.Min != nil || e.Max != nil || len(e.Values) > 0 {
			return fmt.Errorf("%w: %s: value or domain without type", ErrInvalidConfig, e.Path)
		}
		for _, flag := range e.Flags {
			if !entryFlags[flag] {
				return fmt.Errorf("%w: %s: unknown flag %q", ErrInvalidConfig, e.Path, flag)
			}
		}
		if e.Instances != nil && e.Instances.Min > e.Instances.Max {
			return fmt.Errorf("%w: %s: instance min exceeds max", ErrInvalidConfig, e.Path)
		}
	}
	return nil
}

// ProtocolName returns the protocol name, defaulting to its kind.
func (p Protocol) ProtocolName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Kind
}

// TimeoutDuration returns the parsed timeout, or zero when unset.
func (p Protocol) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(p.Timeout)
	return d
}

// Level returns the parsed log level (default: info).
func (f *File) Level() log.Level {
	l, _ := log.ParseLevel(f.LogLevel)
	return l
}

// HasFlag reports whether the entry lists flag.
func (e Entry) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
