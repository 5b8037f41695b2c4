// Package domain constrains parameter values to a range or an explicit set.
package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ossia-go/paramtree/pkg/value"
)

// ErrInvalidDomain is returned when a domain is malformed or does not match
// the type of the parameter it is attached to.
var ErrInvalidDomain = errors.New("invalid domain")

// Kind distinguishes range domains from value sets.
type Kind uint8

const (
	KindNone Kind = iota
	KindRange
	KindSet
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRange:
		return "range"
	case KindSet:
		return "set"
	default:
		return "none"
	}
}

// Domain is a type-matched constraint. The zero Domain constrains nothing.
type Domain struct {
	kind   Kind
	elem   value.Type
	min    value.Value
	max    value.Value
	hasMin bool
	hasMax bool
	values []value.Value
}

func rangeable(t value.Type) bool {
	switch t {
	case value.TypeInt, value.TypeFloat, value.TypeChar,
		value.TypeVec2f, value.TypeVec3f, value.TypeVec4f:
		return true
	default:
		return false
	}
}

// Range returns a closed range domain. min and max must have the same
// rangeable type and min must not exceed max in any component.
func Range(min, max value.Value) (Domain, error) {
	if min.Type() != max.Type() {
		return Domain{}, fmt.Errorf("%w: range bounds %s and %s differ", ErrInvalidDomain, min.Type(), max.Type())
	}
	if !rangeable(min.Type()) {
		return Domain{}, fmt.Errorf("%w: %s values have no range", ErrInvalidDomain, min.Type())
	}
	lo, hi := components(min), components(max)
	for i := range lo {
		if lo[i] > hi[i] {
			return Domain{}, fmt.Errorf("%w: min %s exceeds max %s", ErrInvalidDomain, min, max)
		}
	}
	return Domain{kind: KindRange, elem: min.Type(), min: min, max: max, hasMin: true, hasMax: true}, nil
}

// OpenRange returns a range domain of type t with neither bound set.
// Bounds are added with WithMin and WithMax.
func OpenRange(t value.Type) (Domain, error) {
	if !rangeable(t) {
		return Domain{}, fmt.Errorf("%w: %s values have no range", ErrInvalidDomain, t)
	}
	return Domain{kind: KindRange, elem: t}, nil
}

// IntRange returns a range of integers.
func IntRange(min, max int32) (Domain, error) {
	return Range(value.Int(min), value.Int(max))
}

// FloatRange returns a range of floats.
func FloatRange(min, max float32) (Domain, error) {
	return Range(value.Float(min), value.Float(max))
}

// Set returns a domain that admits only the given values, which must share
// one type. Duplicates are dropped.
func Set(vals ...value.Value) (Domain, error) {
	if len(vals) == 0 {
		return Domain{}, fmt.Errorf("%w: empty value set", ErrInvalidDomain)
	}
	elem := vals[0].Type()
	out := make([]value.Value, 0, len(vals))
	for i, v := range vals {
		if v.Type() != elem {
			return Domain{}, fmt.Errorf("%w: set element %d is %s, expected %s", ErrInvalidDomain, i, v.Type(), elem)
		}
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return Domain{kind: KindSet, elem: elem, values: out}, nil
}

// IntSet returns a set of integers.
func IntSet(vals ...int32) (Domain, error) {
	vs := make([]value.Value, len(vals))
	for i, v := range vals {
		vs[i] = value.Int(v)
	}
	return Set(vs...)
}

// FloatSet returns a set of floats.
func FloatSet(vals ...float32) (Domain, error) {
	vs := make([]value.Value, len(vals))
	for i, v := range vals {
		vs[i] = value.Float(v)
	}
	return Set(vs...)
}

// StringSet returns a set of strings.
func StringSet(vals ...string) (Domain, error) {
	vs := make([]value.Value, len(vals))
	for i, v := range vals {
		vs[i] = value.String(v)
	}
	return Set(vs...)
}

// IsZero reports whether d is the empty domain.
func (d Domain) IsZero() bool { return d.kind == KindNone }

// Kind returns whether d is a range or a set.
func (d Domain) Kind() Kind { return d.kind }

// ElementType returns the value type the domain constrains.
func (d Domain) ElementType() value.Type { return d.elem }

// Min returns the lower bound of a range.
func (d Domain) Min() (value.Value, bool) { return d.min, d.hasMin }

// Max returns the upper bound of a range.
func (d Domain) Max() (value.Value, bool) { return d.max, d.hasMax }

// Values returns a copy of the admitted values of a set.
func (d Domain) Values() []value.Value {
	if d.kind != KindSet {
		return nil
	}
	out := make([]value.Value, len(d.values))
	copy(out, d.values)
	return out
}

// WithMin returns a copy of the range with a new lower bound.
func (d Domain) WithMin(min value.Value) (Domain, error) {
	if d.kind != KindRange || min.Type() != d.elem {
		return d, fmt.Errorf("%w: cannot set %s min on %s domain", ErrInvalidDomain, min.Type(), d)
	}
	if d.hasMax && exceeds(min, d.max) {
		return d, fmt.Errorf("%w: min %s exceeds max %s", ErrInvalidDomain, min, d.max)
	}
	d.min, d.hasMin = min, true
	return d, nil
}

// WithMax returns a copy of the range with a new upper bound.
func (d Domain) WithMax(max value.Value) (Domain, error) {
	if d.kind != KindRange || max.Type() != d.elem {
		return d, fmt.Errorf("%w: cannot set %s max on %s domain", ErrInvalidDomain, max.Type(), d)
	}
	if d.hasMin && exceeds(d.min, max) {
		return d, fmt.Errorf("%w: min %s exceeds max %s", ErrInvalidDomain, d.min, max)
	}
	d.max, d.hasMax = max, true
	return d, nil
}

// WithoutMin returns a copy of the range with the lower bound open.
func (d Domain) WithoutMin() Domain {
	d.min, d.hasMin = value.Value{}, false
	return d
}

// WithoutMax returns a copy of the range with the upper bound open.
func (d Domain) WithoutMax() Domain {
	d.max, d.hasMax = value.Value{}, false
	return d
}

// WithValues returns a set domain of the same element type holding vals.
func (d Domain) WithValues(vals ...value.Value) (Domain, error) {
	nd, err := Set(vals...)
	if err != nil {
		return d, err
	}
	if d.kind != KindNone && nd.elem != d.elem {
		return d, fmt.Errorf("%w: set of %s on %s domain", ErrInvalidDomain, nd.elem, d.elem)
	}
	return nd, nil
}

// CompatibleWith reports whether d may constrain parameters of type t.
// The empty domain is compatible with everything.
func (d Domain) CompatibleWith(t value.Type) bool {
	return d.kind == KindNone || d.elem == t
}

// Equal reports whether two domains are identical.
func Equal(a, b Domain) bool {
	if a.kind != b.kind || a.elem != b.elem {
		return false
	}
	switch a.kind {
	case KindRange:
		return a.hasMin == b.hasMin && a.hasMax == b.hasMax &&
			value.Equal(a.min, b.min) && value.Equal(a.max, b.max)
	case KindSet:
		if len(a.values) != len(b.values) {
			return false
		}
		for i := range a.values {
			if !value.Equal(a.values[i], b.values[i]) {
				return false
			}
		}
	}
	return true
}

// String implements fmt.Stringer.
func (d Domain) String() string {
	switch d.kind {
	case KindRange:
		lo, hi := "-inf", "+inf"
		if d.hasMin {
			lo = d.min.String()
		}
		if d.hasMax {
			hi = d.max.String()
		}
		return fmt.Sprintf("%s[%s, %s]", d.elem, lo, hi)
	case KindSet:
		parts := make([]string, len(d.values))
		for i, v := range d.values {
			parts[i] = v.String()
		}
		return fmt.Sprintf("%s{%s}", d.elem, strings.Join(parts, ", "))
	}
	return "none"
}

func contains(vals []value.Value, v value.Value) bool {
	for _, e := range vals {
		if value.Equal(e, v) {
			return true
		}
	}
	return false
}

func exceeds(lo, hi value.Value) bool {
	a, b := components(lo), components(hi)
	for i := range a {
		if a[i] > b[i] {
			return true
		}
	}
	return false
}
