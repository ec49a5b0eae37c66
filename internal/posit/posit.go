// Package posit implements posit arithmetic for a family of fixed-width
// formats selected at the type level, together with the quire, an exact
// accumulator for sums of products.
//
// Every arithmetic operation rounds exactly once, to the nearest posit with
// ties to even. Posits never overflow to NaR and never underflow to zero:
// results saturate at maxpos and minpos.
package posit

import (
	"math"
	"strconv"
)

// Posit is a posit scalar in format F. The zero value is posit zero.
type Posit[F Format] struct {
	bits uint32
}

func cfg[F Format]() Config {
	var f F
	return Config{NBits: f.NBits(), ES: f.ES()}
}

// FromBits builds a posit from a raw bit pattern. Bits above nbits are ignored.
func FromBits[F Format](b uint32) Posit[F] {
	return Posit[F]{bits: b & cfg[F]().mask()}
}

// FromFloat64 rounds x to the nearest posit. NaN and infinities map to NaR.
func FromFloat64[F Format](x float64) Posit[F] {
	c := cfg[F]()
	switch {
	case x == 0:
		return Posit[F]{}
	case math.IsNaN(x) || math.IsInf(x, 0):
		return Posit[F]{bits: c.narBits()}
	}
	neg := x < 0
	frac, exp := math.Frexp(math.Abs(x))
	sig := uint64(frac * (1 << 53))
	return Posit[F]{bits: encode(c, neg, sig, exp-53, false)}
}

// FromFloat32 rounds x to the nearest posit.
func FromFloat32[F Format](x float32) Posit[F] {
	return FromFloat64[F](float64(x))
}

// FromInt rounds i to the nearest posit.
func FromInt[F Format](i int) Posit[F] {
	return FromFloat64[F](float64(i))
}

// Zero returns posit zero.
func Zero[F Format]() Posit[F] { return Posit[F]{} }

// One returns posit one.
func One[F Format]() Posit[F] {
	return Posit[F]{bits: uint32(1) << (cfg[F]().NBits - 2)}
}

// NaR returns the not-a-real value.
func NaR[F Format]() Posit[F] {
	return Posit[F]{bits: cfg[F]().narBits()}
}

// MaxPos returns the largest positive posit.
func MaxPos[F Format]() Posit[F] {
	return Posit[F]{bits: cfg[F]().narBits() - 1}
}

// MinPos returns the smallest positive posit.
func MinPos[F Format]() Posit[F] {
	return Posit[F]{bits: 1}
}

// Config returns the format description of p.
func (p Posit[F]) Config() Config { return cfg[F]() }

// Bits returns the raw bit pattern in the low nbits bits.
func (p Posit[F]) Bits() uint32 { return p.bits }

// IsZero reports whether p is zero.
func (p Posit[F]) IsZero() bool { return p.bits == 0 }

// IsNaR reports whether p is not-a-real.
func (p Posit[F]) IsNaR() bool { return p.bits == cfg[F]().narBits() }

// IsNeg reports whether p is strictly negative. NaR is not negative.
func (p Posit[F]) IsNeg() bool {
	c := cfg[F]()
	return p.bits&c.narBits() != 0 && p.bits != c.narBits()
}

// IsOne reports whether p is exactly one.
func (p Posit[F]) IsOne() bool { return p == One[F]() }

// signed sign-extends the pattern. Posits order like two's complement integers.
func (p Posit[F]) signed() int32 {
	shift := 32 - cfg[F]().NBits
	return int32(p.bits<<shift) >> shift
}

// Cmp returns -1, 0 or +1. NaR sorts below every real.
func (p Posit[F]) Cmp(q Posit[F]) int {
	a, b := p.signed(), q.signed()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Less reports p < q.
func (p Posit[F]) Less(q Posit[F]) bool { return p.signed() < q.signed() }

// Neg returns -p.
func (p Posit[F]) Neg() Posit[F] {
	return Posit[F]{bits: -p.bits & cfg[F]().mask()}
}

// Abs returns |p|.
func (p Posit[F]) Abs() Posit[F] {
	if p.IsNeg() {
		return p.Neg()
	}
	return p
}

// Add returns p+q rounded once.
func (p Posit[F]) Add(q Posit[F]) Posit[F] {
	c := cfg[F]()
	a, ca := decode(c, p.bits)
	b, cb := decode(c, q.bits)
	switch {
	case ca == classNaR || cb == classNaR:
		return NaR[F]()
	case ca == classZero:
		return q
	case cb == classZero:
		return p
	}
	return Posit[F]{bits: addUnpacked(c, a, b)}
}

// Sub returns p-q rounded once.
func (p Posit[F]) Sub(q Posit[F]) Posit[F] {
	return p.Add(q.Neg())
}

// Mul returns p*q rounded once.
func (p Posit[F]) Mul(q Posit[F]) Posit[F] {
	c := cfg[F]()
	a, ca := decode(c, p.bits)
	b, cb := decode(c, q.bits)
	switch {
	case ca == classNaR || cb == classNaR:
		return NaR[F]()
	case ca == classZero || cb == classZero:
		return Posit[F]{}
	}
	return Posit[F]{bits: mulUnpacked(c, a, b)}
}

// Div returns p/q rounded once. Division by zero yields NaR.
func (p Posit[F]) Div(q Posit[F]) Posit[F] {
	c := cfg[F]()
	a, ca := decode(c, p.bits)
	b, cb := decode(c, q.bits)
	switch {
	case ca == classNaR || cb != classNormal:
		return NaR[F]()
	case ca == classZero:
		return Posit[F]{}
	}
	return Posit[F]{bits: divUnpacked(c, a, b)}
}

// Reciprocal returns 1/p.
func (p Posit[F]) Reciprocal() Posit[F] {
	return One[F]().Div(p)
}

// Sqrt returns the correctly rounded square root. Negative inputs yield NaR.
func (p Posit[F]) Sqrt() Posit[F] {
	c := cfg[F]()
	a, ca := decode(c, p.bits)
	switch {
	case ca != classNormal:
		return p
	case a.neg:
		return NaR[F]()
	}
	return Posit[F]{bits: sqrtUnpacked(c, a)}
}

// Exp returns e^p.
func (p Posit[F]) Exp() Posit[F] {
	if p.IsNaR() {
		return p
	}
	return FromFloat64[F](math.Exp(p.Float64()))
}

// Log returns the natural logarithm. Zero and negative inputs yield NaR.
func (p Posit[F]) Log() Posit[F] {
	if p.IsNaR() || p.IsZero() || p.IsNeg() {
		return NaR[F]()
	}
	return FromFloat64[F](math.Log(p.Float64()))
}

// Float64 returns the exact value of p. NaR converts to NaN.
func (p Posit[F]) Float64() float64 {
	u, cl := decode(cfg[F](), p.bits)
	switch cl {
	case classZero:
		return 0
	case classNaR:
		return math.NaN()
	}
	v := math.Ldexp(float64(u.sig), u.exp)
	if u.neg {
		return -v
	}
	return v
}

// Float32 returns p rounded to float32.
func (p Posit[F]) Float32() float32 { return float32(p.Float64()) }

// String formats the exact value, or "NaR".
func (p Posit[F]) String() string {
	if p.IsNaR() {
		return "NaR"
	}
	return strconv.FormatFloat(p.Float64(), 'g', -1, 64)
}

// Max returns the larger of a and b, preferring a on ties.
func Max[F Format](a, b Posit[F]) Posit[F] {
	if a.Less(b) {
		return b
	}
	return a
}

// Convert rounds p from format From into format To.
func Convert[To, From Format](p Posit[From]) Posit[To] {
	u, cl := decode(cfg[From](), p.bits)
	switch cl {
	case classZero:
		return Posit[To]{}
	case classNaR:
		return NaR[To]()
	}
	return Posit[To]{bits: encode(cfg[To](), u.neg, u.sig, u.exp, false)}
}
