package inspect

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ossia-go/paramtree/pkg/value"
)

// ParseValue parses input as a value of type t.
//
// Vectors accept "[1, 2, 3]", "1 2 3" or "1,2,3". Byte buffers accept
// "0x" prefixed hex or raw text. Strings may be quoted.
func ParseValue(t value.Type, input string) (value.Value, error) {
	s := strings.TrimSpace(input)
	switch t {
	case value.TypeImpulse:
		return value.Impulse(), nil

	case value.TypeInt:
		i, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return value.Value{}, fmt.Errorf("%w: %q is not an int", value.ErrInvalidArgument, input)
		}
		return value.Int(int32(i)), nil

	case value.TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return value.Value{}, fmt.Errorf("%w: %q is not a float", value.ErrInvalidArgument, input)
		}
		return value.Float(float32(f)), nil

	case value.TypeBool:
		b, ok := parseBool(s)
		if !ok {
			return value.Value{}, fmt.Errorf("%w: %q is not a bool", value.ErrInvalidArgument, input)
		}
		return value.Bool(b), nil

	case value.TypeChar:
		if u, err := strconv.Unquote(s); err == nil {
			s = u
		}
		if len(s) != 1 {
			return value.Value{}, fmt.Errorf("%w: %q is not a single character", value.ErrInvalidArgument, input)
		}
		return value.Char(s[0]), nil

	case value.TypeString:
		if u, err := strconv.Unquote(s); err == nil {
			return value.String(u), nil
		}
		return value.String(s), nil

	case value.TypeBytes:
		if rest, ok := strings.CutPrefix(s, "0x"); ok {
			b, err := hex.DecodeString(rest)
			if err != nil {
				return value.Value{}, fmt.Errorf("%w: %q is not hex", value.ErrInvalidArgument, input)
			}
			return value.Bytes(b), nil
		}
		return value.Bytes([]byte(s)), nil

	case value.TypeVec2f, value.TypeVec3f, value.TypeVec4f:
		fields := strings.FieldsFunc(strings.Trim(s, "[]()"), func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) != t.Arity() {
			return value.Value{}, fmt.Errorf("%w: %s needs %d components, got %d", value.ErrInvalidArgument, t, t.Arity(), len(fields))
		}
		fs := make([]float32, len(fields))
		for i, field := range fields {
			f, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return value.Value{}, fmt.Errorf("%w: component %d %q is not a float", value.ErrInvalidArgument, i, field)
			}
			fs[i] = float32(f)
		}
		return value.FloatList(fs).Convert(t)

	case value.TypeList:
		v, err := ParseLiteral(s)
		if err != nil {
			return value.Value{}, err
		}
		if v.Type() != value.TypeList {
			return value.List(v), nil
		}
		return v, nil
	}
	return value.Value{}, fmt.Errorf("%w: unknown type %s", value.ErrInvalidArgument, t)
}

// ParseLiteral parses input and infers its type: "impulse" or nothing is
// an impulse, true/false a bool, a quoted string a string, 'c' a char,
// [a, b] a list, a number an int or float, anything else a string.
func ParseLiteral(input string) (value.Value, error) {
	s := strings.TrimSpace(input)
	switch {
	case s == "" || s == "impulse":
		return value.Impulse(), nil
	case s == "true" || s == "false":
		return value.Bool(s == "true"), nil
	case strings.HasPrefix(s, "["):
		if !strings.HasSuffix(s, "]") {
			return value.Value{}, fmt.Errorf("%w: unterminated list %q", value.ErrInvalidArgument, input)
		}
		parts, err := splitList(s[1 : len(s)-1])
		if err != nil {
			return value.Value{}, err
		}
		elems := make([]value.Value, 0, len(parts))
		for _, part := range parts {
			v, err := ParseLiteral(part)
			if err != nil {
				return value.Value{}, err
			}
			elems = append(elems, v)
		}
		return value.List(elems...), nil
	case strings.HasPrefix(s, `"`):
		u, err := strconv.Unquote(s)
		if err != nil {
			return value.Value{}, fmt.Errorf("%w: bad string %s", value.ErrInvalidArgument, s)
		}
		return value.String(u), nil
	case strings.HasPrefix(s, "'"):
		u, err := strconv.Unquote(s)
		if err != nil || len(u) != 1 {
			return value.Value{}, fmt.Errorf("%w: bad char %s", value.ErrInvalidArgument, s)
		}
		return value.Char(u[0]), nil
	}

	if i, err := strconv.ParseInt(s, 0, 32); err == nil {
		return value.Int(int32(i)), nil
	}
	if f, err := strconv.ParseFloat(s, 32); err == nil {
		return value.Float(float32(f)), nil
	}
	return value.String(s), nil
}

// splitList splits the inside of a list literal at top-level commas.
func splitList(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced ']'", value.ErrInvalidArgument)
			}
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if depth != 0 || quote != 0 {
		return nil, fmt.Errorf("%w: unterminated list element", value.ErrInvalidArgument)
	}
	return append(parts, s[start:]), nil
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "1", "on", "yes":
		return true, true
	case "false", "0", "off", "no":
		return false, true
	}
	return false, false
}
