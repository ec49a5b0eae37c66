package posit

import (
	"math/big"
)

// Quire is an exact fixed-point accumulator for posits of format F. Every
// posit and every product of two posits is an integer multiple of
// minpos^2 = 2^(-2*MaxExp), so sums of them are held without any rounding
// and converted back to a posit exactly once.
//
// The zero value is an empty quire ready to use. A Quire is not safe for
// concurrent use.
type Quire[F Format] struct {
	acc big.Int
	tmp big.Int
	nar bool
}

// NewQuire returns an empty quire.
func NewQuire[F Format]() *Quire[F] {
	return &Quire[F]{}
}

// Reset clears the accumulator.
func (q *Quire[F]) Reset() {
	q.acc.SetInt64(0)
	q.nar = false
}

// Set replaces the contents with p.
func (q *Quire[F]) Set(p Posit[F]) {
	q.Reset()
	q.Add(p)
}

func (q *Quire[F]) accumulate(neg bool, sig uint64, shift int, sub bool) {
	q.tmp.SetUint64(sig)
	q.tmp.Lsh(&q.tmp, uint(shift))
	if neg != sub {
		q.acc.Sub(&q.acc, &q.tmp)
	} else {
		q.acc.Add(&q.acc, &q.tmp)
	}
}

func (q *Quire[F]) addPosit(p Posit[F], sub bool) {
	c := cfg[F]()
	u, cl := decode(c, p.bits)
	switch cl {
	case classZero:
		return
	case classNaR:
		q.nar = true
		return
	}
	q.accumulate(u.neg, u.sig, u.exp+2*c.MaxExp(), sub)
}

func (q *Quire[F]) addProduct(a, b Posit[F], sub bool) {
	c := cfg[F]()
	ua, ca := decode(c, a.bits)
	ub, cb := decode(c, b.bits)
	switch {
	case ca == classNaR || cb == classNaR:
		q.nar = true
		return
	case ca == classZero || cb == classZero:
		return
	}
	q.accumulate(ua.neg != ub.neg, ua.sig*ub.sig, ua.exp+ub.exp+2*c.MaxExp(), sub)
}

// Add accumulates p.
func (q *Quire[F]) Add(p Posit[F]) { q.addPosit(p, false) }

// Sub accumulates -p.
func (q *Quire[F]) Sub(p Posit[F]) { q.addPosit(p, true) }

// AddProduct accumulates a*b without rounding.
func (q *Quire[F]) AddProduct(a, b Posit[F]) { q.addProduct(a, b, false) }

// SubProduct accumulates -(a*b) without rounding.
func (q *Quire[F]) SubProduct(a, b Posit[F]) { q.addProduct(a, b, true) }

// AddQuire accumulates the exact contents of other.
func (q *Quire[F]) AddQuire(other *Quire[F]) {
	q.nar = q.nar || other.nar
	q.acc.Add(&q.acc, &other.acc)
}

// IsZero reports whether the exact sum is zero.
func (q *Quire[F]) IsZero() bool {
	return !q.nar && q.acc.Sign() == 0
}

// Posit rounds the exact sum to the nearest posit.
func (q *Quire[F]) Posit() Posit[F] {
	c := cfg[F]()
	if q.nar {
		return NaR[F]()
	}
	if q.acc.Sign() == 0 {
		return Posit[F]{}
	}

	neg := q.acc.Sign() < 0
	q.tmp.Abs(&q.acc)
	shift := 0
	sticky := false
	if l := q.tmp.BitLen(); l > 64 {
		shift = l - 64
		sticky = q.tmp.TrailingZeroBits() < uint(shift)
		q.tmp.Rsh(&q.tmp, uint(shift))
	}
	return Posit[F]{bits: encode(c, neg, q.tmp.Uint64(), shift-2*c.MaxExp(), sticky)}
}

// Float64 returns the accumulated value rounded to float64.
func (q *Quire[F]) Float64() float64 {
	if q.nar {
		return Posit[F]{bits: cfg[F]().narBits()}.Float64()
	}
	f := new(big.Float).SetInt(&q.acc)
	f.SetMantExp(f, -2*cfg[F]().MaxExp())
	v, _ := f.Float64()
	return v
}

// Fused helpers built on a single exact accumulation.

// FMA returns a*b + c rounded once.
func FMA[F Format](a, b, c Posit[F]) Posit[F] {
	var q Quire[F]
	q.AddProduct(a, b)
	q.Add(c)
	return q.Posit()
}

// FAM returns (a+b)*c rounded once.
func FAM[F Format](a, b, c Posit[F]) Posit[F] {
	var q Quire[F]
	q.AddProduct(a, c)
	q.AddProduct(b, c)
	return q.Posit()
}

// Dot returns the exactly accumulated dot product of a and b, rounded once.
// The shorter length wins.
func Dot[F Format](a, b []Posit[F]) Posit[F] {
	var q Quire[F]
	for i := range min(len(a), len(b)) {
		q.AddProduct(a[i], b[i])
	}
	return q.Posit()
}

// Sum returns the exactly accumulated sum of xs, rounded once.
func Sum[F Format](xs []Posit[F]) Posit[F] {
	var q Quire[F]
	for _, x := range xs {
		q.Add(x)
	}
	return q.Posit()
}
