package model

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ossia-go/paramtree/pkg/domain"
	"github.com/ossia-go/paramtree/pkg/subscription"
	"github.com/ossia-go/paramtree/pkg/value"
)

// AccessMode controls which directions remote peers may use.
type AccessMode uint8

const (
	// AccessBi allows remote reads and writes.
	AccessBi AccessMode = iota

	// AccessGet allows remote reads only.
	AccessGet

	// AccessSet allows remote writes only.
	AccessSet
)

// String returns the access mode name.
func (a AccessMode) String() string {
	switch a {
	case AccessBi:
		return "bi"
	case AccessGet:
		return "get"
	case AccessSet:
		return "set"
	default:
		return "unknown"
	}
}

// Readable reports whether remote peers may read the value.
func (a AccessMode) Readable() bool { return a != AccessSet }

// Writable reports whether remote peers may write the value.
func (a AccessMode) Writable() bool { return a != AccessGet }

// ParseAccessMode parses an access mode name.
func ParseAccessMode(s string) (AccessMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bi", "both", "rw":
		return AccessBi, nil
	case "get", "r", "read":
		return AccessGet, nil
	case "set", "w", "write":
		return AccessSet, nil
	}
	return AccessBi, fmt.Errorf("%w: unknown access mode %q", value.ErrInvalidArgument, s)
}

// ValueCallback receives pushed values.
type ValueCallback func(v value.Value)

// Parameter is the typed value attached to a node.
type Parameter struct {
	mu sync.RWMutex

	node Node
	typ  value.Type

	// current is the stored value; fetched is the last pushed one.
	current value.Value
	fetched value.Value

	dom      domain.Domain
	access   AccessMode
	bounding domain.BoundingMode
	unit     string

	muted     bool
	disabled  bool
	critical  bool
	repFilter bool
	listening bool
	removed   bool

	callbacks subscription.Registry[ValueCallback]
}

func newParameter(n Node, typ value.Type) *Parameter {
	zero := value.Zero(typ)
	return &Parameter{
		node:      n,
		typ:       typ,
		current:   zero,
		fetched:   zero,
		access:    AccessBi,
		bounding:  domain.Free,
		listening: true,
	}
}

func (p *Parameter) detach() {
	p.mu.Lock()
	p.removed = true
	p.mu.Unlock()
	p.callbacks.Clear()
}

// Node returns the owning node.
func (p *Parameter) Node() Node { return p.node }

// Address returns the address of the owning node.
func (p *Parameter) Address() string { return p.node.Address() }

// Type returns the declared value type.
func (p *Parameter) Type() value.Type { return p.typ }

// Valid reports whether the parameter is still attached to the tree.
func (p *Parameter) Valid() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.removed
}

// Value returns the current value, however it was last written.
func (p *Parameter) Value() value.Value {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Fetch returns the last value delivered through Push.
func (p *Parameter) Fetch() value.Value {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fetched
}

// coerce converts v to the parameter type. An impulse sent to a valued
// parameter re-emits the current value; a scalar sent to a list parameter
// becomes a one element list.
func (p *Parameter) coerce(v value.Value) (value.Value, error) {
	if v.Type() == value.TypeImpulse && p.typ != value.TypeImpulse {
		return p.current, nil
	}
	if p.typ == value.TypeList && v.Type() != value.TypeList && v.Type().Arity() == 0 {
		return value.List(v), nil
	}
	cv, err := v.Convert(p.typ)
	if err != nil {
		return value.Value{}, fmt.Errorf("%s: %w", p.node.Address(), err)
	}
	return cv, nil
}

// SetValue stores v without notifying subscribers. Protocols are still
// offered the new value unless the parameter is muted.
func (p *Parameter) SetValue(v value.Value) error {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		return ErrRemoved
	}
	cv, err := p.coerce(v)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.current = cv
	muted := p.muted
	p.mu.Unlock()

	if !muted {
		p.node.Device().propagate(p, cv, nil)
	}
	return nil
}

// Push delivers v through the parameter: it is converted to the parameter
// type, conformed to the domain, stored, handed to every subscriber in
// registration order when listening, then offered to the device protocols
// unless muted. Disabled parameters ignore pushes; values rejected by a set
// domain are dropped.
func (p *Parameter) Push(v value.Value) error {
	return p.push(v, nil)
}

func (p *Parameter) push(v value.Value, pass *Pass) error {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		return ErrRemoved
	}
	if p.disabled {
		p.mu.Unlock()
		return nil
	}
	cv, err := p.coerce(v)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if !p.dom.IsZero() {
		var ok bool
		if cv, ok = p.dom.Apply(cv, p.bounding); !ok {
			p.mu.Unlock()
			p.node.Device().logger.Debug("value rejected by domain",
				"address", p.node.Address(), "value", v.String())
			return nil
		}
	}
	if p.repFilter && value.Equal(cv, p.current) {
		p.mu.Unlock()
		return nil
	}
	p.current = cv
	p.fetched = cv
	listening, muted := p.listening, p.muted
	p.mu.Unlock()

	dev := p.node.Device()
	dev.metrics.IncPushes()

	if listening {
		for _, cb := range p.callbacks.Snapshot() {
			cb(cv)
		}
	}
	if !muted {
		dev.propagate(p, cv, pass)
	}
	return nil
}

// AddCallback registers fn for pushed values.
func (p *Parameter) AddCallback(fn ValueCallback) subscription.Token {
	return p.callbacks.Add(fn)
}

// RemoveCallback unregisters a callback. Unknown tokens are ignored.
func (p *Parameter) RemoveCallback(tok subscription.Token) {
	p.callbacks.Remove(tok)
}

// CallbackCount returns the number of registered callbacks.
func (p *Parameter) CallbackCount() int {
	return p.callbacks.Len()
}

// Domain returns the attached domain. The zero Domain means none.
func (p *Parameter) Domain() domain.Domain {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dom
}

// SetDomain attaches d. Its element type must match the parameter type.
func (p *Parameter) SetDomain(d domain.Domain) error {
	if !d.CompatibleWith(p.typ) {
		return fmt.Errorf("%w: %s domain on %s parameter", domain.ErrInvalidDomain, d.ElementType(), p.typ)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dom = d
	return nil
}

// UnsetDomain removes the domain.
func (p *Parameter) UnsetDomain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dom = domain.Domain{}
}

// Access returns the access mode.
func (p *Parameter) Access() AccessMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.access
}

// SetAccess sets the access mode.
func (p *Parameter) SetAccess(a AccessMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.access = a
}

// Bounding returns the bounding mode.
func (p *Parameter) Bounding() domain.BoundingMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bounding
}

// SetBounding sets the bounding mode.
func (p *Parameter) SetBounding(m domain.BoundingMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bounding = m
}

// Unit returns the unit, e.g. "gain.db".
func (p *Parameter) Unit() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unit
}

// SetUnit sets the unit.
func (p *Parameter) SetUnit(unit string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unit = unit
}

// Muted reports whether outbound propagation is suppressed.
func (p *Parameter) Muted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.muted
}

// SetMuted sets the muted flag.
func (p *Parameter) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
}

// Disabled reports whether pushes are ignored.
func (p *Parameter) Disabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disabled
}

// SetDisabled sets the disabled flag.
func (p *Parameter) SetDisabled(disabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled = disabled
}

// Critical reports whether the value must travel over a reliable channel.
func (p *Parameter) Critical() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.critical
}

// SetCritical sets the critical flag.
func (p *Parameter) SetCritical(critical bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.critical = critical
}

// RepetitionFilter reports whether pushes equal to the current value are
// dropped.
func (p *Parameter) RepetitionFilter() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.repFilter
}

// SetRepetitionFilter sets the repetition filter.
func (p *Parameter) SetRepetitionFilter(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repFilter = on
}

// Listening reports whether subscribers are notified on push.
func (p *Parameter) Listening() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.listening
}

// SetListening sets the listening flag.
func (p *Parameter) SetListening(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listening = on
}

// ToInt returns the current value as int32.
func (p *Parameter) ToInt() (int32, error) { return p.Value().ToInt() }

// ToFloat returns the current value as float32.
func (p *Parameter) ToFloat() (float32, error) { return p.Value().ToFloat() }

// ToBool returns the current value as bool.
func (p *Parameter) ToBool() (bool, error) { return p.Value().ToBool() }

// ToChar returns the current value as a character.
func (p *Parameter) ToChar() (byte, error) { return p.Value().ToChar() }

// ToString returns the current value as a string.
func (p *Parameter) ToString() (string, error) { return p.Value().ToString() }

// ToBytes returns a copy of the current value as bytes.
func (p *Parameter) ToBytes() ([]byte, error) { return p.Value().ToBytes() }

// ToVec2f returns the current value as a two component vector.
func (p *Parameter) ToVec2f() ([2]float32, error) { return p.Value().ToVec2f() }

// ToVec3f returns the current value as a three component vector.
func (p *Parameter) ToVec3f() ([3]float32, error) { return p.Value().ToVec3f() }

// ToVec4f returns the current value as a four component vector.
func (p *Parameter) ToVec4f() ([4]float32, error) { return p.Value().ToVec4f() }

// ToList returns the current value as a list.
func (p *Parameter) ToList() ([]value.Value, error) { return p.Value().ToList() }

// ToInts returns the current value as a list of ints.
func (p *Parameter) ToInts() ([]int32, error) { return p.Value().ToInts() }

// ToFloats returns the current value as a list of floats.
func (p *Parameter) ToFloats() ([]float32, error) { return p.Value().ToFloats() }
