package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossia-go/paramtree/pkg/value"
)

func TestMessageEncoding(t *testing.T) {
	msg := NewMessage("/foo", int32(1))
	data, err := msg.MarshalBinary()
	require.NoError(t, err)

	want := []byte{
		'/', 'f', 'o', 'o', 0, 0, 0, 0,
		',', 'i', 0, 0,
		0, 0, 0, 1,
	}
	assert.Equal(t, want, data)
}

func TestMessageRoundTrip(t *testing.T) {
	msg := NewMessage("/a/b",
		int32(-7), float32(0.5), "hello", []byte{1, 2, 3, 4, 5},
		int64(1<<40), float64(2.25), true, false, nil, Impulse{}, Char('x'),
		Timetag(42), []any{int32(1), "in"},
	)
	data, err := msg.MarshalBinary()
	require.NoError(t, err)
	assert.Zero(t, len(data)%4)

	p, err := ParsePacket(data)
	require.NoError(t, err)
	got, ok := p.(*Message)
	require.True(t, ok)
	assert.Equal(t, msg.Address, got.Address)
	assert.Equal(t, msg.Arguments, got.Arguments)

	tags, err := got.TypeTags()
	require.NoError(t, err)
	assert.Equal(t, ",ifsbhdTFNIct[is]", tags)
}

func TestMessageWithoutArguments(t *testing.T) {
	data, err := NewMessage("/bang").MarshalBinary()
	require.NoError(t, err)
	p, err := ParsePacket(data)
	require.NoError(t, err)
	assert.Empty(t, p.(*Message).Arguments)

	// Type tag string omitted entirely.
	p, err = ParsePacket([]byte{'/', 'x', 0, 0})
	require.NoError(t, err)
	assert.Equal(t, "/x", p.(*Message).Address)
}

func TestMessageErrors(t *testing.T) {
	_, err := NewMessage("?nope").MarshalBinary()
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = NewMessage("/x", struct{ A int }{}).MarshalBinary()
	assert.ErrorIs(t, err, ErrUnsupportedType)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unaligned", []byte{'/', 'a', 0}},
		{"bad start", []byte{'!', 0, 0, 0}},
		{"unterminated", []byte{'/', 'a', 'b', 'c'}},
		{"tags without comma", []byte{'/', 'a', 0, 0, 'i', 0, 0, 0, 0, 0, 0, 1}},
		{"truncated int", []byte{'/', 'a', 0, 0, ',', 'i', 0, 0}},
		{"unknown tag", []byte{'/', 'a', 0, 0, ',', 'z', 0, 0}},
		{"unbalanced array", []byte{'/', 'a', 0, 0, ',', '[', 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePacket(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestBundleRoundTrip(t *testing.T) {
	inner := &Bundle{Timetag: Immediately}
	inner.Append(NewMessage("/c", "x"))

	b := &Bundle{Timetag: Timetag(0x1234_5678_0000_0000)}
	b.Append(NewMessage("/a", int32(1)), NewMessage("/b", float32(2)), inner)

	data, err := b.MarshalBinary()
	require.NoError(t, err)

	p, err := ParsePacket(data)
	require.NoError(t, err)
	got, ok := p.(*Bundle)
	require.True(t, ok)
	assert.Equal(t, b.Timetag, got.Timetag)
	require.Len(t, got.Elements, 3)

	msgs := got.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "/a", msgs[0].Address)
	assert.Equal(t, "/c", msgs[2].Address)
	assert.Equal(t, []any{"x"}, msgs[2].Arguments)
}

func TestBundleErrors(t *testing.T) {
	_, err := ParsePacket([]byte{'#', 'b', 'a', 'd', 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrMalformed)

	b := &Bundle{Timetag: Immediately}
	data, _ := b.MarshalBinary()
	data = append(data, 0, 0, 0, 99)
	_, err = ParsePacket(data)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTimetag(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 500_000_000, time.UTC)
	tt := NewTimetag(now)
	assert.WithinDuration(t, now, tt.Time(), time.Microsecond)

	assert.Equal(t, time.Duration(0), Immediately.Delay(now))
	assert.Equal(t, time.Duration(0), NewTimetag(now.Add(-time.Second)).Delay(now))
	d := NewTimetag(now.Add(time.Second)).Delay(now)
	assert.InDelta(t, float64(time.Second), float64(d), float64(time.Microsecond))
}

func TestValueMapping(t *testing.T) {
	tests := []struct {
		name string
		in   value.Value
		args []any
	}{
		{"impulse", value.Impulse(), nil},
		{"int", value.Int(3), []any{int32(3)}},
		{"float", value.Float(1.5), []any{float32(1.5)}},
		{"bool", value.Bool(true), []any{true}},
		{"char", value.Char('k'), []any{Char('k')}},
		{"string", value.String("s"), []any{"s"}},
		{"bytes", value.Bytes([]byte{9}), []any{[]byte{9}}},
		{"vec3", value.Vec3f(1, 2, 3), []any{float32(1), float32(2), float32(3)}},
		{"list", value.List(value.Int(1), value.List(value.String("a"))), []any{int32(1), []any{"a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := ArgumentsFromValue(tt.in)
			assert.Equal(t, tt.args, args)

			data, err := NewMessage("/v", args...).MarshalBinary()
			require.NoError(t, err)
			p, err := ParsePacket(data)
			require.NoError(t, err)

			got, err := ValueFromArguments(p.(*Message).Arguments)
			require.NoError(t, err)
			if tt.in.Type().Arity() > 0 {
				// Vectors come back as float lists; the parameter type converts them.
				vec, err := got.Convert(tt.in.Type())
				require.NoError(t, err)
				got = vec
			}
			assert.True(t, value.Equal(tt.in, got), "got %s, want %s", got, tt.in)
		})
	}
}

func TestValueFromArgumentsWidening(t *testing.T) {
	v, err := ValueFromArguments([]any{int64(5)})
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Int(5), v))

	v, err = ValueFromArguments([]any{float64(0.25)})
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Float(0.25), v))

	v, err = ValueFromArguments([]any{nil})
	require.NoError(t, err)
	assert.Equal(t, value.TypeImpulse, v.Type())

	_, err = ValueFromArguments([]any{struct{}{}})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestMessageString(t *testing.T) {
	msg := NewMessage("/s", int32(1), "x", nil, []any{true})
	assert.Equal(t, "/s ,isN[T] 1 x Nil [true]", msg.String())
}
