package wire

import (
	"fmt"

	"github.com/ossia-go/paramtree/pkg/value"
)

// ArgumentsFromValue returns the OSC arguments carrying v.
func ArgumentsFromValue(v value.Value) []any {
	switch v.Type() {
	case value.TypeImpulse:
		return nil
	case value.TypeVec2f, value.TypeVec3f, value.TypeVec4f:
		fs, _ := v.ToFloats()
		out := make([]any, len(fs))
		for i, f := range fs {
			out[i] = f
		}
		return out
	case value.TypeList:
		elems, _ := v.ToList()
		out := make([]any, 0, len(elems))
		for _, e := range elems {
			out = append(out, argument(e))
		}
		return out
	default:
		return []any{argument(v)}
	}
}

// argument maps one value to a single argument. Lists and vectors become
// arrays.
func argument(v value.Value) any {
	switch v.Type() {
	case value.TypeImpulse:
		return Impulse{}
	case value.TypeInt:
		i, _ := v.ToInt()
		return i
	case value.TypeFloat:
		f, _ := v.ToFloat()
		return f
	case value.TypeBool:
		b, _ := v.ToBool()
		return b
	case value.TypeChar:
		c, _ := v.ToChar()
		return Char(c)
	case value.TypeString:
		s, _ := v.ToString()
		return s
	case value.TypeBytes:
		b, _ := v.ToBytes()
		return b
	default:
		return ArgumentsFromValue(v)
	}
}

// ValueFromArguments decodes message arguments. No argument is an impulse,
// one argument a scalar and several arguments a list.
func ValueFromArguments(args []any) (value.Value, error) {
	switch len(args) {
	case 0:
		return value.Impulse(), nil
	case 1:
		return valueFromArgument(args[0])
	}
	elems := make([]value.Value, len(args))
	for i, a := range args {
		v, err := valueFromArgument(a)
		if err != nil {
			return value.Value{}, fmt.Errorf("argument %d: %w", i, err)
		}
		elems[i] = v
	}
	return value.List(elems...), nil
}

func valueFromArgument(arg any) (value.Value, error) {
	switch t := arg.(type) {
	case nil, Impulse:
		return value.Impulse(), nil
	case int32:
		return value.Int(t), nil
	case int64:
		return value.Int(int32(t)), nil
	case float32:
		return value.Float(t), nil
	case float64:
		return value.Float(float32(t)), nil
	case bool:
		return value.Bool(t), nil
	case Char:
		return value.Char(byte(t)), nil
	case string:
		return value.String(t), nil
	case []byte:
		return value.Bytes(t), nil
	case Timetag:
		return value.Float(float32(t.Time().Unix())), nil
	case []any:
		elems := make([]value.Value, len(t))
		for i, e := range t {
			v, err := valueFromArgument(e)
			if err != nil {
				return value.Value{}, err
			}
			elems[i] = v
		}
		return value.List(elems...), nil
	}
	return value.Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, arg)
}

// MessageFromValue builds the message that carries v to address.
func MessageFromValue(address string, v value.Value) *Message {
	return NewMessage(address, ArgumentsFromValue(v)...)
}
