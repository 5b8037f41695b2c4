// Package value defines the tagged value carried by parameters: impulse,
// int, float, fixed size float vectors, bool, char, string, bytes and
// nested lists. Values are immutable; the To* accessors and Convert apply
// the conversion rules between variants.
package value

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Value errors.
var (
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Type identifies the variant held by a Value.
type Type uint8

const (
	TypeImpulse Type = iota
	TypeInt
	TypeFloat
	TypeVec2f
	TypeVec3f
	TypeVec4f
	TypeBool
	TypeChar
	TypeString
	TypeBytes
	TypeList
)

var typeNames = []string{
	"impulse", "int", "float", "vec2f", "vec3f", "vec4f",
	"bool", "char", "string", "bytes", "list",
}

// String returns the type name.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// ParseType parses a type name as returned by Type.String.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	switch s {
	case "i", "int32", "integer":
		return TypeInt, nil
	case "f", "float32", "double":
		return TypeFloat, nil
	case "b", "boolean":
		return TypeBool, nil
	case "s", "str":
		return TypeString, nil
	case "blob":
		return TypeBytes, nil
	}
	return 0, fmt.Errorf("%w: unknown type %q", ErrInvalidArgument, s)
}

// Arity returns the number of float components of a vector type, or 0.
func (t Type) Arity() int {
	switch t {
	case TypeVec2f:
		return 2
	case TypeVec3f:
		return 3
	case TypeVec4f:
		return 4
	default:
		return 0
	}
}

// IsNumeric reports whether values of this type have a scalar numeric reading.
func (t Type) IsNumeric() bool {
	switch t {
	case TypeInt, TypeFloat, TypeBool, TypeChar:
		return true
	default:
		return false
	}
}

// Value holds one control value. Values are immutable: constructors copy
// their inputs and accessors return copies, so two Values never share storage.
type Value struct {
	typ  Type
	i    int32
	f    [4]float32
	b    bool
	c    byte
	s    string
	raw  []byte
	list []Value
}

// Impulse returns a value that carries no data.
func Impulse() Value { return Value{typ: TypeImpulse} }

// Int returns an integer value.
func Int(v int32) Value { return Value{typ: TypeInt, i: v} }

// Float returns a float value.
func Float(v float32) Value { return Value{typ: TypeFloat, f: [4]float32{v}} }

// Vec2f returns a two component vector.
func Vec2f(x, y float32) Value { return Value{typ: TypeVec2f, f: [4]float32{x, y}} }

// Vec3f returns a three component vector.
func Vec3f(x, y, z float32) Value { return Value{typ: TypeVec3f, f: [4]float32{x, y, z}} }

// Vec4f returns a four component vector.
func Vec4f(x, y, z, w float32) Value { return Value{typ: TypeVec4f, f: [4]float32{x, y, z, w}} }

// Bool returns a boolean value.
func Bool(v bool) Value { return Value{typ: TypeBool, b: v} }

// Char returns a character value.
func Char(v byte) Value { return Value{typ: TypeChar, c: v} }

// String returns a string value.
func String(v string) Value { return Value{typ: TypeString, s: v} }

// Bytes returns a byte buffer value. The buffer is copied.
func Bytes(v []byte) Value {
	raw := make([]byte, len(v))
	copy(raw, v)
	return Value{typ: TypeBytes, raw: raw}
}

// List returns a list value holding copies of the given values.
func List(vals ...Value) Value {
	list := make([]Value, len(vals))
	for i, v := range vals {
		list[i] = v.clone()
	}
	return Value{typ: TypeList, list: list}
}

// IntList returns a list of Int values.
func IntList(vals []int32) Value {
	list := make([]Value, len(vals))
	for i, v := range vals {
		list[i] = Int(v)
	}
	return Value{typ: TypeList, list: list}
}

// FloatList returns a list of Float values.
func FloatList(vals []float32) Value {
	list := make([]Value, len(vals))
	for i, v := range vals {
		list[i] = Float(v)
	}
	return Value{typ: TypeList, list: list}
}

// Zero returns the initial value of a type: zero numbers, false, empty
// strings, buffers and lists.
func Zero(t Type) Value {
	switch t {
	case TypeBytes:
		return Value{typ: t, raw: []byte{}}
	case TypeList:
		return Value{typ: t, list: []Value{}}
	default:
		return Value{typ: t}
	}
}

// TypedList returns a list whose elements must all be of type elem.
func TypedList(elem Type, vals ...Value) (Value, error) {
	for i, v := range vals {
		if v.typ != elem {
			return Value{}, fmt.Errorf("%w: element %d is %s, expected %s", ErrInvalidArgument, i, v.typ, elem)
		}
	}
	return List(vals...), nil
}

// From builds a Value from a native Go value.
func From(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Impulse(), nil
	case Value:
		return t.clone(), nil
	case struct{}:
		return Impulse(), nil
	case int32:
		return Int(t), nil
	case int:
		return Int(int32(t)), nil
	case int64:
		return Int(int32(t)), nil
	case float32:
		return Float(t), nil
	case float64:
		return Float(float32(t)), nil
	case [2]float32:
		return Vec2f(t[0], t[1]), nil
	case [3]float32:
		return Vec3f(t[0], t[1], t[2]), nil
	case [4]float32:
		return Vec4f(t[0], t[1], t[2], t[3]), nil
	case bool:
		return Bool(t), nil
	case byte:
		return Char(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case []int32:
		return IntList(t), nil
	case []float32:
		return FloatList(t), nil
	case []Value:
		return List(t...), nil
	case []any:
		list := make([]Value, len(t))
		for i, e := range t {
			v, err := From(e)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			list[i] = v
		}
		return Value{typ: TypeList, list: list}, nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported Go type %T", ErrInvalidArgument, x)
	}
}

// Type returns the held variant.
func (v Value) Type() Type { return v.typ }

// IsNumeric reports whether the value has a scalar numeric reading.
func (v Value) IsNumeric() bool { return v.typ.IsNumeric() }

// Len returns the number of list elements or vector components, 1 for scalars
// and 0 for impulses.
func (v Value) Len() int {
	switch v.typ {
	case TypeImpulse:
		return 0
	case TypeList:
		return len(v.list)
	case TypeVec2f, TypeVec3f, TypeVec4f:
		return v.typ.Arity()
	default:
		return 1
	}
}

func (v Value) clone() Value {
	switch v.typ {
	case TypeBytes:
		return Bytes(v.raw)
	case TypeList:
		return List(v.list...)
	default:
		return v
	}
}

// Equal reports whether two values hold the same variant and data.
func Equal(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeImpulse:
		return true
	case TypeInt:
		return a.i == b.i
	case TypeFloat, TypeVec2f, TypeVec3f, TypeVec4f:
		return a.f == b.f
	case TypeBool:
		return a.b == b.b
	case TypeChar:
		return a.c == b.c
	case TypeString:
		return a.s == b.s
	case TypeBytes:
		return bytes.Equal(a.raw, b.raw)
	case TypeList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.typ {
	case TypeImpulse:
		return "impulse"
	case TypeInt:
		return strconv.FormatInt(int64(v.i), 10)
	case TypeFloat:
		return formatFloat(v.f[0])
	case TypeVec2f, TypeVec3f, TypeVec4f:
		parts := make([]string, v.typ.Arity())
		for i := range parts {
			parts[i] = formatFloat(v.f[i])
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeChar:
		return strconv.QuoteRune(rune(v.c))
	case TypeString:
		return strconv.Quote(v.s)
	case TypeBytes:
		return fmt.Sprintf("blob(%d)", len(v.raw))
	case TypeList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "unknown"
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
