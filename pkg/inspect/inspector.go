package inspect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ossia-go/paramtree/pkg/domain"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/value"
)

// Inspector errors.
var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrNoParameter       = errors.New("node has no parameter")
	ErrUnknownAttribute  = errors.New("unknown attribute")
	ErrAttributeNotFound = errors.New("attribute not set")
)

// Inspector provides inspection and mutation capabilities for a local
// device, relative to a working node.
type Inspector struct {
	device *model.Device
	cwd    string
}

// NewInspector creates a new Inspector for the given device, working at
// the root.
func NewInspector(device *model.Device) *Inspector {
	return &Inspector{device: device, cwd: "/"}
}

// Device returns the underlying device.
func (i *Inspector) Device() *model.Device {
	return i.device
}

// Cwd returns the working node address.
func (i *Inspector) Cwd() string {
	return i.cwd
}

// Cd changes the working node. The node must exist.
func (i *Inspector) Cd(input string) error {
	n, _, err := i.node(input)
	if err != nil {
		return err
	}
	i.cwd = n.Address()
	return nil
}

// Parse parses input relative to the working node.
func (i *Inspector) Parse(input string) (*Path, error) {
	return ParsePath(i.cwd, input)
}

func (i *Inspector) node(input string) (model.Node, *Path, error) {
	p, err := i.Parse(input)
	if err != nil {
		return model.Node{}, nil, err
	}
	n, ok := i.device.Root().Find(p.Address)
	if !ok {
		return model.Node{}, p, fmt.Errorf("%w: %s", ErrNodeNotFound, p.Address)
	}
	return n, p, nil
}

// List returns the children of the node at input, or the nodes matching a
// pattern.
func (i *Inspector) List(input string) ([]model.Node, error) {
	if input == "" {
		input = "."
	}
	p, err := i.Parse(input)
	if err != nil {
		return nil, err
	}
	if p.IsPattern {
		return i.device.Root().FindPattern(p.Address), nil
	}
	n, ok := i.device.Root().Find(p.Address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, p.Address)
	}
	return n.Children(), nil
}

// Read returns the parameter at input and its current value.
func (i *Inspector) Read(input string) (*model.Parameter, value.Value, error) {
	n, p, err := i.node(input)
	if err != nil {
		return nil, value.Value{}, err
	}
	param, ok := n.Parameter()
	if !ok {
		return nil, value.Value{}, fmt.Errorf("%w: %s", ErrNoParameter, p.Address)
	}
	return param, param.Value(), nil
}

// Write parses literal by the parameter type and pushes it. Patterns write
// every matching parameter the literal parses for.
func (i *Inspector) Write(input, literal string) error {
	p, err := i.Parse(input)
	if err != nil {
		return err
	}
	var nodes []model.Node
	if p.IsPattern {
		nodes = i.device.Root().FindPattern(p.Address)
	} else if n, ok := i.device.Root().Find(p.Address); ok {
		nodes = []model.Node{n}
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, p.Address)
	}

	var errs []error
	for _, n := range nodes {
		param, ok := n.Parameter()
		if !ok {
			if !p.IsPattern {
				errs = append(errs, fmt.Errorf("%w: %s", ErrNoParameter, n.Address()))
			}
			continue
		}
		v, err := ParseValue(param.Type(), literal)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Address(), err))
			continue
		}
		if err := param.Push(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Address(), err))
		}
	}
	return errors.Join(errs...)
}

// Create creates the node at input with a parameter of the named type.
// An empty type creates a plain node.
func (i *Inspector) Create(input, typ string) (model.Node, error) {
	p, err := i.Parse(input)
	if err != nil {
		return model.Node{}, err
	}
	n, err := i.device.Root().FindOrCreate(p.Address)
	if err != nil {
		return model.Node{}, err
	}
	if typ == "" {
		return n, nil
	}
	t, err := value.ParseType(typ)
	if err != nil {
		return n, err
	}
	if _, err := n.CreateParameter(t); err != nil {
		return n, err
	}
	return n, nil
}

// Remove removes the node at input and its subtree.
func (i *Inspector) Remove(input string) error {
	n, _, err := i.node(input)
	if err != nil {
		return err
	}
	addr := n.Address()
	if err := n.Remove(); err != nil {
		return err
	}
	if i.cwd == addr || strings.HasPrefix(i.cwd, addr+"/") {
		i.cwd = "/"
	}
	return nil
}

// GetAttribute formats one attribute of the node at input.
func (i *Inspector) GetAttribute(input string) (string, error) {
	n, p, err := i.node(input)
	if err != nil {
		return "", err
	}
	name := p.Attribute
	if name == "" {
		name = AttrValue
	}
	attr, ok := ResolveAttributeName(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	s, ok := FormatAttribute(n, attr)
	if !ok {
		return "", fmt.Errorf("%w: %s:%s", ErrAttributeNotFound, p.Address, attr)
	}
	return s, nil
}

// SetAttribute sets the attribute named in input ("addr:attr") from a
// literal. An empty literal unsets optional attributes.
func (i *Inspector) SetAttribute(input, literal string) error {
	n, p, err := i.node(input)
	if err != nil {
		return err
	}
	name := p.Attribute
	if name == "" {
		name = AttrValue
	}
	attr, ok := ResolveAttributeName(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	literal = strings.TrimSpace(literal)

	if err := setNodeAttribute(n, attr, literal); !errors.Is(err, errParameterAttribute) {
		return err
	}

	param, ok := n.Parameter()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoParameter, p.Address)
	}
	return setParameterAttribute(param, attr, literal)
}

var errParameterAttribute = errors.New("parameter attribute")

func setNodeAttribute(n model.Node, attr, literal string) error {
	switch attr {
	case AttrDescription:
		if literal == "" {
			n.UnsetDescription()
		} else {
			n.SetDescription(unquote(literal))
		}
	case AttrTags:
		if literal == "" {
			n.UnsetTags()
			return nil
		}
		var tags []string
		for _, t := range strings.Split(strings.Trim(literal, "[]"), ",") {
			if t = unquote(strings.TrimSpace(t)); t != "" {
				tags = append(tags, t)
			}
		}
		n.SetTags(tags)
	case AttrExtendedType:
		if literal == "" {
			n.UnsetExtendedType()
		} else {
			n.SetExtendedType(unquote(literal))
		}
	case AttrHidden:
		b, ok := parseBool(literal)
		if !ok {
			return fmt.Errorf("%w: %q is not a bool", value.ErrInvalidArgument, literal)
		}
		n.SetHidden(b)
	case AttrRefreshRate:
		if literal == "" {
			n.UnsetRefreshRate()
			return nil
		}
		ms, err := strconv.ParseInt(strings.TrimSuffix(literal, "ms"), 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %q is not a rate in ms", value.ErrInvalidArgument, literal)
		}
		n.SetRefreshRate(int32(ms))
	case AttrPriority, AttrStepSize:
		if literal == "" {
			if attr == AttrPriority {
				n.UnsetPriority()
			} else {
				n.UnsetStepSize()
			}
			return nil
		}
		f, err := strconv.ParseFloat(literal, 32)
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", value.ErrInvalidArgument, literal)
		}
		if attr == AttrPriority {
			n.SetPriority(float32(f))
		} else {
			n.SetStepSize(float32(f))
		}
	case AttrDefault:
		if literal == "" {
			n.UnsetDefaultValue()
			return nil
		}
		var v value.Value
		var err error
		if p, ok := n.Parameter(); ok {
			v, err = ParseValue(p.Type(), literal)
		} else {
			v, err = ParseLiteral(literal)
		}
		if err != nil {
			return err
		}
		n.SetDefaultValue(v)
	default:
		return errParameterAttribute
	}
	return nil
}

func setParameterAttribute(p *model.Parameter, attr, literal string) error {
	switch attr {
	case AttrValue:
		v, err := ParseValue(p.Type(), literal)
		if err != nil {
			return err
		}
		return p.Push(v)
	case AttrAccess:
		a, err := model.ParseAccessMode(literal)
		if err != nil {
			return err
		}
		p.SetAccess(a)
	case AttrBounding:
		m, err := domain.ParseBoundingMode(literal)
		if err != nil {
			return err
		}
		p.SetBounding(m)
	case AttrDomain:
		if literal == "" || literal == "none" {
			p.UnsetDomain()
			return nil
		}
		d, err := ParseDomain(p.Type(), literal)
		if err != nil {
			return err
		}
		return p.SetDomain(d)
	case AttrUnit:
		p.SetUnit(unquote(literal))
	case AttrMuted, AttrDisabled, AttrCritical, AttrRepetitionFilter:
		b, ok := parseBool(literal)
		if !ok {
			return fmt.Errorf("%w: %q is not a bool", value.ErrInvalidArgument, literal)
		}
		switch attr {
		case AttrMuted:
			p.SetMuted(b)
		case AttrDisabled:
			p.SetDisabled(b)
		case AttrCritical:
			p.SetCritical(b)
		default:
			p.SetRepetitionFilter(b)
		}
	case AttrType:
		return fmt.Errorf("%w: the type of %s is fixed", model.ErrUnsupported, p.Address())
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, attr)
	}
	return nil
}

// ParseDomain parses "min..max" as a range or "{a, b, c}" as a value set
// for parameters of type t. Either range bound may be left empty.
func ParseDomain(t value.Type, literal string) (domain.Domain, error) {
	s := strings.TrimSpace(literal)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		parts, err := splitList(s[1 : len(s)-1])
		if err != nil {
			return domain.Domain{}, err
		}
		vals := make([]value.Value, 0, len(parts))
		for _, part := range parts {
			v, err := ParseValue(t, part)
			if err != nil {
				return domain.Domain{}, err
			}
			vals = append(vals, v)
		}
		return domain.Set(vals...)
	}

	lo, hi, ok := strings.Cut(s, "..")
	if !ok {
		return domain.Domain{}, fmt.Errorf("%w: domain %q is neither min..max nor {a, b}", value.ErrInvalidArgument, literal)
	}
	d, err := domain.OpenRange(t)
	if err != nil {
		return d, err
	}
	if lo = strings.TrimSpace(lo); lo != "" {
		v, err := ParseValue(t, lo)
		if err != nil {
			return d, err
		}
		if d, err = d.WithMin(v); err != nil {
			return d, err
		}
	}
	if hi = strings.TrimSpace(hi); hi != "" {
		v, err := ParseValue(t, hi)
		if err != nil {
			return d, err
		}
		if d, err = d.WithMax(v); err != nil {
			return d, err
		}
	}
	return d, nil
}

func unquote(s string) string {
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s
}
