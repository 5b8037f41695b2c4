package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/ossia-go/paramtree/pkg/value"
)

// BoundingMode selects how a value outside its domain is conformed.
type BoundingMode uint8

const (
	Free BoundingMode = iota
	Clip
	Wrap
	Fold
	Low
	High
)

var boundingNames = []string{"free", "clip", "wrap", "fold", "low", "high"}

// String returns the mode name.
func (m BoundingMode) String() string {
	if int(m) < len(boundingNames) {
		return boundingNames[m]
	}
	return "unknown"
}

// ParseBoundingMode parses a mode name as returned by String.
func ParseBoundingMode(s string) (BoundingMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range boundingNames {
		if name == s {
			return BoundingMode(i), nil
		}
	}
	if s == "" {
		return Free, nil
	}
	return Free, fmt.Errorf("%w: unknown bounding mode %q", value.ErrInvalidArgument, s)
}

// Apply conforms v to the domain under mode. The boolean result is false
// when the value must be rejected, which only happens for sets under a
// mode other than Free. Values of another type than the domain's element
// type pass through.
func (d Domain) Apply(v value.Value, mode BoundingMode) (value.Value, bool) {
	if d.kind == KindNone || mode == Free || v.Type() != d.elem {
		return v, true
	}
	if d.kind == KindSet {
		if contains(d.values, v) {
			return v, true
		}
		return value.Value{}, false
	}

	c := components(v)
	var lo, hi []float64
	if d.hasMin {
		lo = components(d.min)
	}
	if d.hasMax {
		hi = components(d.max)
	}
	for i := range c {
		c[i] = bound(c[i], lo, hi, i, mode)
	}
	return fromComponents(d.elem, c), true
}

func bound(x float64, lo, hi []float64, i int, mode BoundingMode) float64 {
	hasLo, hasHi := lo != nil, hi != nil
	switch mode {
	case Clip:
		if hasLo && x < lo[i] {
			return lo[i]
		}
		if hasHi && x > hi[i] {
			return hi[i]
		}
	case Low:
		if hasLo && x < lo[i] {
			return lo[i]
		}
	case High:
		if hasHi && x > hi[i] {
			return hi[i]
		}
	case Wrap:
		if !hasLo || !hasHi {
			return bound(x, lo, hi, i, Clip)
		}
		r := hi[i] - lo[i]
		if r == 0 {
			return lo[i]
		}
		return lo[i] + mod(x-lo[i], r)
	case Fold:
		if !hasLo || !hasHi {
			return bound(x, lo, hi, i, Clip)
		}
		r := hi[i] - lo[i]
		if r == 0 {
			return lo[i]
		}
		y := mod(x-lo[i], 2*r)
		if y > r {
			y = 2*r - y
		}
		return lo[i] + y
	}
	return x
}

func mod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m < 0 {
		m += b
	}
	return m
}

// components returns the numeric components of a rangeable value.
func components(v value.Value) []float64 {
	switch v.Type() {
	case value.TypeInt:
		i, _ := v.ToInt()
		return []float64{float64(i)}
	case value.TypeFloat:
		f, _ := v.ToFloat()
		return []float64{float64(f)}
	case value.TypeChar:
		c, _ := v.ToChar()
		return []float64{float64(c)}
	case value.TypeVec2f, value.TypeVec3f, value.TypeVec4f:
		fs, _ := v.ToFloats()
		out := make([]float64, len(fs))
		for i, f := range fs {
			out[i] = float64(f)
		}
		return out
	}
	return nil
}

func fromComponents(t value.Type, c []float64) value.Value {
	switch t {
	case value.TypeInt:
		return value.Int(int32(math.Round(c[0])))
	case value.TypeFloat:
		return value.Float(float32(c[0]))
	case value.TypeChar:
		return value.Char(byte(math.Round(c[0])))
	case value.TypeVec2f:
		return value.Vec2f(float32(c[0]), float32(c[1]))
	case value.TypeVec3f:
		return value.Vec3f(float32(c[0]), float32(c[1]), float32(c[2]))
	case value.TypeVec4f:
		return value.Vec4f(float32(c[0]), float32(c[1]), float32(c[2]), float32(c[3]))
	}
	return value.Value{}
}
