package value

import (
	"fmt"
)

func mismatch(from, to Type) error {
	return fmt.Errorf("%w: cannot convert %s to %s", ErrTypeMismatch, from, to)
}

// scalar returns the numeric reading of a scalar value.
func (v Value) scalar() (float64, bool) {
	switch v.typ {
	case TypeInt:
		return float64(v.i), true
	case TypeFloat:
		return float64(v.f[0]), true
	case TypeBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case TypeChar:
		return float64(v.c), true
	default:
		return 0, false
	}
}

// ToInt converts to int32. Floats are truncated toward zero.
func (v Value) ToInt() (int32, error) {
	if v.typ == TypeInt {
		return v.i, nil
	}
	f, ok := v.scalar()
	if !ok {
		return 0, mismatch(v.typ, TypeInt)
	}
	return int32(f), nil
}

// ToFloat converts to float32.
func (v Value) ToFloat() (float32, error) {
	if v.typ == TypeFloat {
		return v.f[0], nil
	}
	f, ok := v.scalar()
	if !ok {
		return 0, mismatch(v.typ, TypeFloat)
	}
	return float32(f), nil
}

// ToBool converts to bool. Any nonzero numeric is true.
func (v Value) ToBool() (bool, error) {
	if v.typ == TypeBool {
		return v.b, nil
	}
	f, ok := v.scalar()
	if !ok {
		return false, mismatch(v.typ, TypeBool)
	}
	return f != 0, nil
}

// ToChar converts to a single byte character.
func (v Value) ToChar() (byte, error) {
	switch v.typ {
	case TypeChar:
		return v.c, nil
	case TypeString:
		if len(v.s) == 1 {
			return v.s[0], nil
		}
		return 0, mismatch(v.typ, TypeChar)
	}
	f, ok := v.scalar()
	if !ok {
		return 0, mismatch(v.typ, TypeChar)
	}
	return byte(int32(f)), nil
}

// ToString converts strings, chars and byte buffers to a string.
func (v Value) ToString() (string, error) {
	switch v.typ {
	case TypeString:
		return v.s, nil
	case TypeChar:
		return string([]byte{v.c}), nil
	case TypeBytes:
		return string(v.raw), nil
	default:
		return "", mismatch(v.typ, TypeString)
	}
}

// ToBytes returns a copy of the held byte buffer or string bytes.
func (v Value) ToBytes() ([]byte, error) {
	switch v.typ {
	case TypeBytes:
		out := make([]byte, len(v.raw))
		copy(out, v.raw)
		return out, nil
	case TypeString:
		return []byte(v.s), nil
	default:
		return nil, mismatch(v.typ, TypeBytes)
	}
}

func (v Value) toVec(t Type) ([4]float32, error) {
	n := t.Arity()
	if v.typ == t {
		return v.f, nil
	}
	if v.typ != TypeList || len(v.list) != n {
		return [4]float32{}, mismatch(v.typ, t)
	}
	var out [4]float32
	for i, e := range v.list {
		f, ok := e.scalar()
		if !ok {
			return [4]float32{}, mismatch(v.typ, t)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// ToVec2f converts a Vec2f or a two element numeric list.
func (v Value) ToVec2f() ([2]float32, error) {
	f, err := v.toVec(TypeVec2f)
	return [2]float32{f[0], f[1]}, err
}

// ToVec3f converts a Vec3f or a three element numeric list.
func (v Value) ToVec3f() ([3]float32, error) {
	f, err := v.toVec(TypeVec3f)
	return [3]float32{f[0], f[1], f[2]}, err
}

// ToVec4f converts a Vec4f or a four element numeric list.
func (v Value) ToVec4f() ([4]float32, error) {
	return v.toVec(TypeVec4f)
}

// ToList returns copies of the list elements. Vectors become Float lists.
func (v Value) ToList() ([]Value, error) {
	switch v.typ {
	case TypeList:
		out := make([]Value, len(v.list))
		for i, e := range v.list {
			out[i] = e.clone()
		}
		return out, nil
	case TypeVec2f, TypeVec3f, TypeVec4f:
		out := make([]Value, v.typ.Arity())
		for i := range out {
			out[i] = Float(v.f[i])
		}
		return out, nil
	default:
		return nil, mismatch(v.typ, TypeList)
	}
}

// ToInts converts a list whose elements are all Int.
func (v Value) ToInts() ([]int32, error) {
	if v.typ != TypeList {
		return nil, mismatch(v.typ, TypeList)
	}
	out := make([]int32, len(v.list))
	for i, e := range v.list {
		if e.typ != TypeInt {
			return nil, fmt.Errorf("%w: element %d is %s, expected int", ErrTypeMismatch, i, e.typ)
		}
		out[i] = e.i
	}
	return out, nil
}

// ToFloats converts a list whose elements are all Float, or a vector.
func (v Value) ToFloats() ([]float32, error) {
	switch v.typ {
	case TypeVec2f, TypeVec3f, TypeVec4f:
		out := make([]float32, v.typ.Arity())
		copy(out, v.f[:])
		return out, nil
	case TypeList:
		out := make([]float32, len(v.list))
		for i, e := range v.list {
			if e.typ != TypeFloat {
				return nil, fmt.Errorf("%w: element %d is %s, expected float", ErrTypeMismatch, i, e.typ)
			}
			out[i] = e.f[0]
		}
		return out, nil
	default:
		return nil, mismatch(v.typ, TypeList)
	}
}

// Convert returns v coerced to type t.
func (v Value) Convert(t Type) (Value, error) {
	if v.typ == t {
		return v.clone(), nil
	}
	switch t {
	case TypeImpulse:
		return Impulse(), nil
	case TypeInt:
		i, err := v.ToInt()
		return Int(i), err
	case TypeFloat:
		f, err := v.ToFloat()
		return Float(f), err
	case TypeBool:
		b, err := v.ToBool()
		return Bool(b), err
	case TypeChar:
		c, err := v.ToChar()
		return Char(c), err
	case TypeString:
		s, err := v.ToString()
		return String(s), err
	case TypeBytes:
		b, err := v.ToBytes()
		return Value{typ: TypeBytes, raw: b}, err
	case TypeVec2f, TypeVec3f, TypeVec4f:
		f, err := v.toVec(t)
		return Value{typ: t, f: f}, err
	case TypeList:
		l, err := v.ToList()
		return Value{typ: TypeList, list: l}, err
	}
	return Value{}, mismatch(v.typ, t)
}

// Convertible lists the Go types accepted by As.
type Convertible interface {
	int32 | float32 | bool | byte | string | []byte |
		[2]float32 | [3]float32 | [4]float32 |
		[]Value | []int32 | []float32
}

// As converts v to the Go type T.
func As[T Convertible](v Value) (T, error) {
	var zero T
	var out any
	var err error
	switch any(zero).(type) {
	case int32:
		out, err = v.ToInt()
	case float32:
		out, err = v.ToFloat()
	case bool:
		out, err = v.ToBool()
	case byte:
		out, err = v.ToChar()
	case string:
		out, err = v.ToString()
	case []byte:
		out, err = v.ToBytes()
	case [2]float32:
		out, err = v.ToVec2f()
	case [3]float32:
		out, err = v.ToVec3f()
	case [4]float32:
		out, err = v.ToVec4f()
	case []Value:
		out, err = v.ToList()
	case []int32:
		out, err = v.ToInts()
	case []float32:
		out, err = v.ToFloats()
	}
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}
