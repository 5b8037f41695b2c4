package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ossia-go/paramtree/pkg/domain"
	"github.com/ossia-go/paramtree/pkg/inspect"
	"github.com/ossia-go/paramtree/pkg/log"
	"github.com/ossia-go/paramtree/pkg/metrics"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/protocol/minuit"
	"github.com/ossia-go/paramtree/pkg/protocol/multiplex"
	"github.com/ossia-go/paramtree/pkg/protocol/osc"
	"github.com/ossia-go/paramtree/pkg/protocol/oscquery"
	"github.com/ossia-go/paramtree/pkg/value"
)

// Options carries the runtime collaborators handed to the device and its
// protocols.
type Options struct {
	// Logger for operational messages (default: slog.Default()).
	Logger *slog.Logger

	// Metrics collects traffic and tree activity (optional).
	Metrics *metrics.Metrics

	// ProtocolLogger captures protocol events (optional).
	ProtocolLogger log.Logger
}

// Build creates the device described by f: the namespace first, then the
// protocols in file order. Mirrors, and Minuit protocols with sync set,
// fetch the remote namespace before Build returns. On failure everything
// created so far is closed.
func Build(ctx context.Context, f *File, opts Options) (*model.Device, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dev, err := model.NewDevice(f.Name, nil,
		model.WithLogger(opts.Logger),
		model.WithMetrics(opts.Metrics),
	)
	if err != nil {
		return nil, err
	}

	if err := ApplyNamespace(dev.Root(), f.Namespace); err != nil {
		_ = dev.Close()
		return nil, err
	}

	protos, err := NewProtocols(f.Protocols, opts)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	for _, np := range protos {
		if err := dev.AddProtocol(np.Protocol); err != nil {
			_ = dev.Close()
			return nil, fmt.Errorf("attach %s: %w", np.Name, err)
		}
		opts.Logger.Info("protocol attached", "name", np.Name, "kind", np.Protocol.Kind())
	}

	for _, np := range protos {
		for _, p := range np.sync {
			if err := p.UpdateNamespace(ctx); err != nil {
				_ = dev.Close()
				return nil, fmt.Errorf("sync %s: %w", np.Name, err)
			}
		}
	}
	return dev, nil
}

// NamedProtocol is a protocol built from a device file entry.
type NamedProtocol struct {
	Name     string
	Protocol model.Protocol

	// sync lists the protocols, Protocol or its members, whose remote
	// namespace is fetched on Build.
	sync []model.Protocol
}

// NewProtocols builds the unattached protocols of the file. Members of a
// multiplex are folded into it, so only top-level protocols are returned.
func NewProtocols(specs []Protocol, opts Options) ([]NamedProtocol, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	built := make(map[string]NamedProtocol, len(specs))
	member := make(map[string]bool)
	for _, s := range specs {
		for _, m := range s.Members {
			member[m] = true
		}
	}

	var out []NamedProtocol
	for _, s := range specs {
		if s.Kind == KindMultiplex {
			continue
		}
		np, err := newProtocol(s, opts)
		if err != nil {
			return nil, err
		}
		built[np.Name] = np
	}

	for _, s := range specs {
		name := s.ProtocolName()
		if s.Kind != KindMultiplex {
			if !member[name] {
				out = append(out, built[name])
			}
			continue
		}
		mux := multiplex.New()
		var sync []model.Protocol
		for _, m := range s.Members {
			np, ok := built[m]
			if !ok {
				return nil, fmt.Errorf("%w: multiplex %q: unknown member %q", ErrInvalidConfig, name, m)
			}
			if err := mux.AddMember(np.Protocol); err != nil {
				return nil, err
			}
			sync = append(sync, np.sync...)
		}
		for _, e := range s.Expose {
			if err := mux.Expose(built[e.Source].Protocol, built[e.Target].Protocol); err != nil {
				return nil, fmt.Errorf("multiplex %q: %w", name, err)
			}
		}
		out = append(out, NamedProtocol{Name: name, Protocol: mux, sync: sync})
	}
	return out, nil
}

func newProtocol(s Protocol, opts Options) (NamedProtocol, error) {
	np := NamedProtocol{Name: s.ProtocolName()}
	logger := opts.Logger.With("protocol", np.Name)

	switch s.Kind {
	case KindOSC:
		cfg := osc.DefaultConfig()
		if s.RemoteHost != "" {
			cfg.RemoteHost = s.RemoteHost
		}
		if s.RemotePort != nil {
			cfg.RemotePort = *s.RemotePort
		}
		if s.LocalPort != nil {
			cfg.LocalPort = *s.LocalPort
		}
		if s.Transport != "" {
			cfg.Transport = osc.Transport(s.Transport)
		}
		cfg.LocalHost = s.LocalHost
		cfg.Learn = s.Learn
		cfg.Logger = logger
		cfg.ProtocolLogger = opts.ProtocolLogger
		np.Protocol = osc.New(cfg)

	case KindMinuit:
		cfg := minuit.DefaultConfig()
		if s.LocalName != "" {
			cfg.LocalName = s.LocalName
		}
		if s.RemoteHost != "" {
			cfg.RemoteHost = s.RemoteHost
		}
		if s.RemotePort != nil {
			cfg.RemotePort = *s.RemotePort
		}
		if s.LocalPort != nil {
			cfg.LocalPort = *s.LocalPort
		}
		if d := s.TimeoutDuration(); d > 0 {
			cfg.RequestTimeout = d
		}
		cfg.LocalHost = s.LocalHost
		cfg.Logger = logger
		cfg.ProtocolLogger = opts.ProtocolLogger
		np.Protocol = minuit.New(cfg)
		if s.Sync {
			np.sync = []model.Protocol{np.Protocol}
		}

	case KindOSCQuery:
		cfg := oscquery.DefaultConfig()
		if s.OSCPort != nil {
			cfg.OSCPort = *s.OSCPort
		}
		if s.WSPort != nil {
			cfg.WSPort = *s.WSPort
		}
		cfg.Host = s.Host
		cfg.Name = s.LocalName
		cfg.Advertise = s.Advertise
		cfg.Logger = logger
		cfg.ProtocolLogger = opts.ProtocolLogger
		np.Protocol = oscquery.NewServer(cfg)

	case KindMirror:
		m, err := oscquery.NewMirror(oscquery.MirrorConfig{
			Host:           s.Host,
			Timeout:        s.TimeoutDuration(),
			Logger:         logger,
			ProtocolLogger: opts.ProtocolLogger,
		})
		if err != nil {
			return np, fmt.Errorf("mirror %q: %w", np.Name, err)
		}
		np.Protocol = m
		np.sync = []model.Protocol{m}

	default:
		return np, fmt.Errorf("%w: unknown protocol kind %q", ErrInvalidConfig, s.Kind)
	}
	return np, nil
}

// ApplyNamespace creates or updates the nodes described by entries, in
// order. Existing parameters keep their type; a conflicting type fails.
func ApplyNamespace(root model.Node, entries []Entry) error {
	for _, e := range entries {
		if err := applyEntry(root, e); err != nil {
			return fmt.Errorf("%s: %w", e.Path, err)
		}
	}
	return nil
}

func applyEntry(root model.Node, e Entry) error {
	n, err := root.FindOrCreate(e.Path)
	if err != nil {
		return err
	}

	if e.Description != "" {
		n.SetDescription(e.Description)
	}
	if len(e.Tags) > 0 {
		n.SetTags(e.Tags)
	}
	if e.ExtendedType != "" {
		n.SetExtendedType(e.ExtendedType)
	}
	if e.Hidden {
		n.SetHidden(true)
	}
	if e.RefreshRate > 0 {
		n.SetRefreshRate(e.RefreshRate)
	}
	if e.Priority != nil {
		n.SetPriority(*e.Priority)
	}
	if e.StepSize != nil {
		n.SetStepSize(*e.StepSize)
	}
	if e.Instances != nil {
		n.SetInstanceBounds(model.InstanceBounds{Min: e.Instances.Min, Max: e.Instances.Max})
	}

	if e.Type == "" {
		if e.Default != nil {
			v, err := untypedLiteral(e.Default)
			if err != nil {
				return fmt.Errorf("default: %w", err)
			}
			n.SetDefaultValue(v)
		}
		return nil
	}

	t, err := value.ParseType(e.Type)
	if err != nil {
		return err
	}
	p, ok := n.Parameter()
	if !ok {
		if p, err = n.CreateParameter(t); err != nil {
			return err
		}
	} else if p.Type() != t {
		return fmt.Errorf("%w: existing %s parameter redeclared as %s", ErrInvalidConfig, p.Type(), t)
	}

	if e.Access != "" {
		a, err := model.ParseAccessMode(e.Access)
		if err != nil {
			return err
		}
		p.SetAccess(a)
	}
	if e.Bounding != "" {
		m, err := domain.ParseBoundingMode(e.Bounding)
		if err != nil {
			return err
		}
		p.SetBounding(m)
	}
	d, err := entryDomain(t, e)
	if err != nil {
		return err
	}
	if !d.IsZero() {
		if err := p.SetDomain(d); err != nil {
			return err
		}
	}
	if e.Unit != "" {
		p.SetUnit(e.Unit)
	}
	if e.Default != nil {
		v, err := Literal(t, e.Default)
		if err != nil {
			return fmt.Errorf("default: %w", err)
		}
		n.SetDefaultValue(v)
	}
	if e.Value != nil {
		v, err := Literal(t, e.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		if err := p.Push(v); err != nil {
			return fmt.Errorf("value: %w", err)
		}
	}

	p.SetMuted(e.HasFlag("muted"))
	p.SetDisabled(e.HasFlag("disabled"))
	p.SetCritical(e.Critical || e.HasFlag("critical"))
	p.SetRepetitionFilter(e.HasFlag("repetition_filter"))
	return nil
}

func entryDomain(t value.Type, e Entry) (domain.Domain, error) {
	if len(e.Values) > 0 {
		vals := make([]value.Value, 0, len(e.Values))
		for i, raw := range e.Values {
			v, err := Literal(t, raw)
			if err != nil {
				return domain.Domain{}, fmt.Errorf("values[%d]: %w", i, err)
			}
			vals = append(vals, v)
		}
		return domain.Set(vals...)
	}
	if e.Min == nil && e.Max == nil {
		return domain.Domain{}, nil
	}

	d, err := domain.OpenRange(t)
	if err != nil {
		return d, err
	}
	if e.Min != nil {
		v, err := Literal(t, e.Min)
		if err != nil {
			return d, fmt.Errorf("min: %w", err)
		}
		if d, err = d.WithMin(v); err != nil {
			return d, err
		}
	}
	if e.Max != nil {
		v, err := Literal(t, e.Max)
		if err != nil {
			return d, fmt.Errorf("max: %w", err)
		}
		if d, err = d.WithMax(v); err != nil {
			return d, err
		}
	}
	return d, nil
}

// Literal converts a decoded YAML or TOML scalar or sequence to a value of
// type t. Strings go through the shell value syntax, so "0x0a0b" is a
// byte buffer and "1 2 3" a vec3f.
func Literal(t value.Type, raw any) (value.Value, error) {
	if s, ok := raw.(string); ok {
		return inspect.ParseValue(t, s)
	}
	v, err := value.From(raw)
	if err != nil {
		return value.Value{}, err
	}
	return v.Convert(t)
}

func untypedLiteral(raw any) (value.Value, error) {
	if s, ok := raw.(string); ok {
		return inspect.ParseLiteral(s)
	}
	return value.From(raw)
}
