package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossia-go/paramtree/pkg/value"
)

func TestApplyIntRange(t *testing.T) {
	d, err := IntRange(0, 10)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   int32
		mode BoundingMode
		want int32
	}{
		{"free passes", 15, Free, 15},
		{"clip high", 15, Clip, 10},
		{"clip low", -3, Clip, 0},
		{"clip inside", 4, Clip, 4},
		{"wrap", 15, Wrap, 5},
		{"wrap negative", -3, Wrap, 7},
		{"fold", 15, Fold, 5},
		{"fold twice", 25, Fold, 5},
		{"fold negative", -4, Fold, 4},
		{"low only", -3, Low, 0},
		{"low leaves high open", 15, Low, 15},
		{"high only", 15, High, 10},
		{"high leaves low open", -3, High, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Apply(value.Int(tt.in), tt.mode)
			require.True(t, ok)
			assert.True(t, value.Equal(value.Int(tt.want), got), "got %s, want %d", got, tt.want)
		})
	}
}

func TestApplyFloatRange(t *testing.T) {
	d, err := FloatRange(-1, 1)
	require.NoError(t, err)

	got, _ := d.Apply(value.Float(1.5), Clip)
	assert.True(t, value.Equal(value.Float(1), got))

	got, _ = d.Apply(value.Float(1.5), Wrap)
	assert.True(t, value.Equal(value.Float(-0.5), got))

	got, _ = d.Apply(value.Float(1.5), Fold)
	assert.True(t, value.Equal(value.Float(0.5), got))
}

func TestApplyVectorComponentWise(t *testing.T) {
	d, err := Range(value.Vec2f(0, 0), value.Vec2f(1, 10))
	require.NoError(t, err)

	got, ok := d.Apply(value.Vec2f(2, 5), Clip)
	require.True(t, ok)
	assert.True(t, value.Equal(value.Vec2f(1, 5), got), "got %s", got)
}

func TestApplyOpenBounds(t *testing.T) {
	d, err := OpenRange(value.TypeInt)
	require.NoError(t, err)
	d, err = d.WithMin(value.Int(0))
	require.NoError(t, err)

	got, _ := d.Apply(value.Int(100), Clip)
	assert.True(t, value.Equal(value.Int(100), got))

	got, _ = d.Apply(value.Int(-1), Clip)
	assert.True(t, value.Equal(value.Int(0), got))

	// Wrap needs both bounds and degrades to clipping.
	got, _ = d.Apply(value.Int(-1), Wrap)
	assert.True(t, value.Equal(value.Int(0), got))
}

func TestApplyDegenerateRange(t *testing.T) {
	d, err := IntRange(3, 3)
	require.NoError(t, err)
	got, _ := d.Apply(value.Int(9), Wrap)
	assert.True(t, value.Equal(value.Int(3), got))
}

func TestApplySet(t *testing.T) {
	d, err := StringSet("red", "green", "red")
	require.NoError(t, err)
	assert.Len(t, d.Values(), 2)

	got, ok := d.Apply(value.String("green"), Clip)
	assert.True(t, ok)
	assert.True(t, value.Equal(value.String("green"), got))

	_, ok = d.Apply(value.String("blue"), Clip)
	assert.False(t, ok)

	got, ok = d.Apply(value.String("blue"), Free)
	assert.True(t, ok)
	assert.True(t, value.Equal(value.String("blue"), got))
}

func TestApplyZeroDomain(t *testing.T) {
	var d Domain
	assert.True(t, d.IsZero())
	got, ok := d.Apply(value.Int(42), Clip)
	assert.True(t, ok)
	assert.True(t, value.Equal(value.Int(42), got))
}

func TestInvalidDomains(t *testing.T) {
	_, err := Range(value.Int(0), value.Float(1))
	assert.ErrorIs(t, err, ErrInvalidDomain)

	_, err = IntRange(10, 0)
	assert.ErrorIs(t, err, ErrInvalidDomain)

	_, err = Range(value.String("a"), value.String("z"))
	assert.ErrorIs(t, err, ErrInvalidDomain)

	_, err = Set(value.Int(1), value.String("x"))
	assert.ErrorIs(t, err, ErrInvalidDomain)

	_, err = Set()
	assert.ErrorIs(t, err, ErrInvalidDomain)

	d, _ := IntRange(0, 10)
	_, err = d.WithMax(value.Float(3))
	assert.ErrorIs(t, err, ErrInvalidDomain)

	_, err = d.WithMin(value.Int(11))
	assert.ErrorIs(t, err, ErrInvalidDomain)
}

func TestCompatibleWith(t *testing.T) {
	d, _ := IntRange(0, 1)
	assert.True(t, d.CompatibleWith(value.TypeInt))
	assert.False(t, d.CompatibleWith(value.TypeFloat))
	assert.True(t, Domain{}.CompatibleWith(value.TypeString))
}

func TestEqualAndString(t *testing.T) {
	a, _ := IntRange(0, 10)
	b, _ := IntRange(0, 10)
	c := b.WithoutMax()
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.Equal(t, "int[0, 10]", a.String())
	assert.Equal(t, "int[0, +inf]", c.String())

	s, _ := IntSet(1, 2)
	assert.Equal(t, "int{1, 2}", s.String())
}

func TestParseBoundingMode(t *testing.T) {
	for i, name := range boundingNames {
		m, err := ParseBoundingMode(name)
		require.NoError(t, err)
		assert.Equal(t, BoundingMode(i), m)
	}
	m, err := ParseBoundingMode("")
	require.NoError(t, err)
	assert.Equal(t, Free, m)

	_, err = ParseBoundingMode("bounce")
	assert.Error(t, err)
}
