package posit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allPatterns[F Format]() []Posit[F] {
	n := cfg[F]().NBits
	out := make([]Posit[F], 0, 1<<n)
	for b := uint32(0); b < uint32(1)<<n; b++ {
		p := FromBits[F](b)
		if !p.IsNaR() {
			out = append(out, p)
		}
	}
	return out
}

func TestKnownPatterns(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		want uint32
	}{
		{"one", 1, 0x40},
		{"two", 2, 0x60},
		{"half", 0.5, 0x20},
		{"minus one", -1, 0xC0},
		{"one and a half", 1.5, 0x50},
		{"saturates at maxpos", 1000, 0x7F},
		{"never rounds to zero", 1e-9, 0x01},
		{"zero", 0, 0x00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromFloat64[P8E0](tt.x).Bits())
		})
	}

	assert.True(t, FromFloat64[P8E0](math.NaN()).IsNaR())
	assert.Equal(t, uint32(0x4000), One[P16E1]().Bits())
	assert.Equal(t, math.Ldexp(1, 28), MaxPos[P16E1]().Float64())
	assert.Equal(t, math.Ldexp(1, -28), MinPos[P16E1]().Float64())
	assert.Equal(t, math.Ldexp(1, 120), MaxPos[P32E2]().Float64())
}

func TestFloatRoundTripExhaustive(t *testing.T) {
	for _, p := range allPatterns[P8E0]() {
		require.Equal(t, p, FromFloat64[P8E0](p.Float64()), "pattern %#x", p.Bits())
	}
	for _, p := range allPatterns[P16E1]() {
		require.Equal(t, p, FromFloat64[P16E1](p.Float64()), "pattern %#x", p.Bits())
	}
	for _, p := range allPatterns[P8E2]() {
		require.Equal(t, p, FromFloat64[P8E2](p.Float64()), "pattern %#x", p.Bits())
	}
}

func TestOrderingMatchesValue(t *testing.T) {
	ps := allPatterns[P8E1]()
	for i := range ps {
		for j := range ps {
			a, b := ps[i], ps[j]
			assert.Equal(t, a.Float64() < b.Float64(), a.Less(b), "%v < %v", a, b)
		}
	}
	assert.True(t, NaR[P8E1]().Less(FromInt[P8E1](-64)))
	assert.Equal(t, 0, One[P8E1]().Cmp(FromInt[P8E1](1)))
}

func TestRoundsTiesToEven(t *testing.T) {
	// Patterns 0x40..0x5F cover [1, 2) with five fraction bits.
	for b := uint32(0x40); b < 0x5F; b++ {
		lo := FromBits[P8E0](b)
		hi := FromBits[P8E0](b + 1)
		mid := (lo.Float64() + hi.Float64()) / 2
		want := lo
		if b%2 == 1 {
			want = hi
		}
		assert.Equal(t, want, FromFloat64[P8E0](mid), "midpoint of %#x and %#x", b, b+1)
	}
}

func TestArithmeticMatchesExactRounding(t *testing.T) {
	// Sums and products of two posit8 values are exact in float64, so rounding
	// the float64 result once is the reference.
	ps := allPatterns[P8E0]()
	for _, a := range ps {
		for _, b := range ps {
			require.Equal(t, FromFloat64[P8E0](a.Float64()+b.Float64()), a.Add(b), "%v + %v", a, b)
			require.Equal(t, FromFloat64[P8E0](a.Float64()-b.Float64()), a.Sub(b), "%v - %v", a, b)
			require.Equal(t, FromFloat64[P8E0](a.Float64()*b.Float64()), a.Mul(b), "%v * %v", a, b)
		}
	}
}

func TestAddFarApartMagnitudes(t *testing.T) {
	big := FromFloat64[P32E2](1 << 40)
	tiny := MinPos[P32E2]()
	assert.Equal(t, big, big.Add(tiny))
	assert.Equal(t, big, big.Sub(tiny))
	assert.True(t, tiny.Sub(tiny).IsZero())
}

func TestDivAndSqrt(t *testing.T) {
	six := FromInt[P16E1](6)
	three := FromInt[P16E1](3)
	assert.Equal(t, FromInt[P16E1](2), six.Div(three))
	assert.InDelta(t, 1.0/3, One[P16E1]().Div(three).Float64(), 1e-4)
	assert.True(t, six.Div(Zero[P16E1]()).IsNaR())
	assert.True(t, Zero[P16E1]().Div(six).IsZero())

	assert.Equal(t, FromInt[P16E1](2), FromInt[P16E1](4).Sqrt())
	assert.Equal(t, FromFloat64[P16E1](math.Sqrt2), FromInt[P16E1](2).Sqrt())
	assert.True(t, FromInt[P16E1](-4).Sqrt().IsNaR())

	for _, p := range allPatterns[P8E0]() {
		if p.IsZero() {
			continue
		}
		for _, q := range allPatterns[P8E0]() {
			if q.IsZero() {
				continue
			}
			want := FromFloat64[P8E0](p.Float64() / q.Float64())
			got := p.Div(q)
			// float64 division of two short significands is correctly rounded
			// far below posit8 precision, so any disagreement is a real bug.
			require.Equal(t, want, got, "%v / %v", p, q)
		}
	}
}

func TestConvert(t *testing.T) {
	wide := FromFloat64[P32E2](0.1)
	narrow := Convert[P8E0](wide)
	assert.Equal(t, narrow, Convert[P8E0](wide), "conversion is deterministic")
	assert.Equal(t, FromFloat64[P8E0](0.1), narrow)
	assert.Equal(t, MaxPos[P8E0](), Convert[P8E0](MaxPos[P32E2]()))
	assert.Equal(t, MinPos[P8E0](), Convert[P8E0](MinPos[P32E2]()))

	for _, p := range allPatterns[P8E0]() {
		assert.Equal(t, p, Convert[P8E0](Convert[P32E2](p)), "widening is exact")
	}
	assert.True(t, Convert[P16E1](NaR[P8E0]()).IsNaR())
}

func TestExpLog(t *testing.T) {
	assert.Equal(t, One[P16E1](), Zero[P16E1]().Exp())
	assert.InDelta(t, math.E, One[P16E1]().Exp().Float64(), 1e-3)
	assert.True(t, Zero[P16E1]().Log().IsNaR())
	assert.True(t, FromInt[P16E1](-1).Log().IsNaR())
	assert.True(t, One[P16E1]().Log().IsZero())
}

func TestApproximations(t *testing.T) {
	assert.Equal(t, FromFloat64[P8E0](0.5), SigmoidApprox(Zero[P8E0]()))
	for _, x := range []float64{-2, -1, -0.5, 0.5, 1, 2} {
		p := FromFloat64[P8E0](x)
		assert.InDelta(t, 1/(1+math.Exp(-x)), SigmoidApprox(p).Float64(), 0.05, "x=%v", x)
		assert.InDelta(t, math.Tanh(x), TanhApprox(p).Float64(), 0.1, "x=%v", x)
	}
	assert.InDelta(t, 1/(1+math.Exp(-1.0)), Sigmoid(One[P16E1]()).Float64(), 1e-3)
	assert.InDelta(t, math.Tanh(0.5), Tanh(FromFloat64[P16E1](0.5)).Float64(), 1e-3)
}
