package inspect

import (
	"errors"
	"testing"

	"github.com/ossia-go/paramtree/pkg/value"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		typ     value.Type
		input   string
		want    value.Value
		wantErr bool
	}{
		{"impulse ignores input", value.TypeImpulse, "anything", value.Impulse(), false},
		{"int", value.TypeInt, "42", value.Int(42), false},
		{"hex int", value.TypeInt, "0x10", value.Int(16), false},
		{"negative int", value.TypeInt, " -7 ", value.Int(-7), false},
		{"int overflow", value.TypeInt, "4294967296", value.Value{}, true},
		{"float", value.TypeFloat, "440.5", value.Float(440.5), false},
		{"bad float", value.TypeFloat, "loud", value.Value{}, true},
		{"bool on", value.TypeBool, "on", value.Bool(true), false},
		{"bool 0", value.TypeBool, "0", value.Bool(false), false},
		{"bad bool", value.TypeBool, "maybe", value.Value{}, true},
		{"char", value.TypeChar, "x", value.Char('x'), false},
		{"quoted char", value.TypeChar, "'y'", value.Char('y'), false},
		{"long char", value.TypeChar, "xy", value.Value{}, true},
		{"string", value.TypeString, "sine", value.String("sine"), false},
		{"quoted string", value.TypeString, `"a b"`, value.String("a b"), false},
		{"hex bytes", value.TypeBytes, "0x0102ff", value.Bytes([]byte{1, 2, 0xff}), false},
		{"raw bytes", value.TypeBytes, "ab", value.Bytes([]byte("ab")), false},
		{"bad hex", value.TypeBytes, "0xzz", value.Value{}, true},
		{"vec2 brackets", value.TypeVec2f, "[1, 2]", value.Vec2f(1, 2), false},
		{"vec3 spaces", value.TypeVec3f, "1 2 3", value.Vec3f(1, 2, 3), false},
		{"vec4 commas", value.TypeVec4f, "1,2,3,4", value.Vec4f(1, 2, 3, 4), false},
		{"vec arity", value.TypeVec3f, "1 2", value.Value{}, true},
		{"list", value.TypeList, `[1, "a", 2.5]`, value.List(value.Int(1), value.String("a"), value.Float(2.5)), false},
		{"list wraps scalar", value.TypeList, "3", value.List(value.Int(3)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValue(tt.typ, tt.input)
			if tt.wantErr {
				if !errors.Is(err, value.ErrInvalidArgument) {
					t.Errorf("ParseValue(%s, %q) error = %v, want ErrInvalidArgument", tt.typ, tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseValue(%s, %q) unexpected error: %v", tt.typ, tt.input, err)
			}
			if !value.Equal(got, tt.want) {
				t.Errorf("ParseValue(%s, %q) = %s, want %s", tt.typ, tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		input string
		want  value.Value
	}{
		{"", value.Impulse()},
		{"impulse", value.Impulse()},
		{"true", value.Bool(true)},
		{"12", value.Int(12)},
		{"1.5", value.Float(1.5)},
		{`"hi"`, value.String("hi")},
		{"'c'", value.Char('c')},
		{"word", value.String("word")},
		{"[]", value.List()},
		{"[1, [2, 3]]", value.List(value.Int(1), value.List(value.Int(2), value.Int(3)))},
		{`["a,b", 'x']`, value.List(value.String("a,b"), value.Char('x'))},
	}

	for _, tt := range tests {
		got, err := ParseLiteral(tt.input)
		if err != nil {
			t.Errorf("ParseLiteral(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if !value.Equal(got, tt.want) {
			t.Errorf("ParseLiteral(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}

	for _, bad := range []string{"[1, 2", `"open`, "'ab'", "[1]]"} {
		if _, err := ParseLiteral(bad); !errors.Is(err, value.ErrInvalidArgument) {
			t.Errorf("ParseLiteral(%q) error = %v, want ErrInvalidArgument", bad, err)
		}
	}
}
