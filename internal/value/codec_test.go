package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []Value{
		Null{},
		Bool(true),
		Bool(false),
		Int(0),
		Int(-9223372036854775808),
		Float(0.0),
		Float(math.Inf(1)),
		Float(math.Inf(-1)),
		Float(math.NaN()),
		String(""),
		String("héllo wörld 🎉"),
		Bytes{},
		Bytes{0x00, 0x01, 0xff},
		Array{Int(1), String("x"), Array{Bool(true), Null{}}},
		Object{"a": Int(1), "b": Object{"c": Array{Float(1.5)}}},
	}

	for _, want := range cases {
		encoded := Encode(want)
		got, n, err := Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, len(encoded), n)

		if f, ok := want.(Float); ok && math.IsNaN(float64(f)) {
			gf, ok := got.(Float)
			require.True(t, ok)
			require.True(t, math.IsNaN(float64(gf)))
			continue
		}
		require.True(t, Equal(want, got), "round-trip mismatch for %#v -> %#v", want, got)

		// Re-encode and compare bytes for determinism.
		require.Equal(t, encoded, Encode(got))
	}
}

func TestNaNNotEqualToItself(t *testing.T) {
	a := Float(math.NaN())
	b := Float(math.NaN())
	require.False(t, Equal(a, b))
}

func TestObjectKeyOrderDeterministic(t *testing.T) {
	o1 := Object{"z": Int(1), "a": Int(2)}
	o2 := Object{"a": Int(2), "z": Int(1)}
	require.Equal(t, Encode(o1), Encode(o2))
}
