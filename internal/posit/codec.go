package posit

import (
	"math"
	"math/bits"
)

// unpacked is an exact decoded posit: |value| = sig * 2^exp.
type unpacked struct {
	neg bool
	sig uint64
	exp int
}

type class uint8

const (
	classNormal class = iota
	classZero
	classNaR
)

// decode splits a bit pattern into sign, regime, exponent and fraction.
func decode(c Config, p uint32) (unpacked, class) {
	n := c.NBits
	p &= c.mask()
	switch p {
	case 0:
		return unpacked{}, classZero
	case c.narBits():
		return unpacked{}, classNaR
	}

	neg := p>>(n-1)&1 == 1
	if neg {
		p = -p & c.mask()
	}

	pos := n - 2
	first := p >> pos & 1
	run := 0
	for pos >= 0 && p>>pos&1 == first {
		run++
		pos--
	}
	k := -run
	if first == 1 {
		k = run - 1
	}
	pos-- // regime terminator

	e := 0
	for i := 0; i < c.ES; i++ {
		e <<= 1
		if pos >= 0 {
			e |= int(p >> pos & 1)
			pos--
		}
	}

	fbits := 0
	if pos >= 0 {
		fbits = pos + 1
	}
	frac := uint64(p) & (uint64(1)<<fbits - 1)
	scale := k*(1<<c.ES) + e

	return unpacked{
		neg: neg,
		sig: uint64(1)<<fbits | frac,
		exp: scale - fbits,
	}, classNormal
}

// bitWriter collects the leading bits of a posit body and folds everything
// past its capacity into a sticky flag.
type bitWriter struct {
	v      uint64
	n      int
	limit  int
	sticky bool
}

func (w *bitWriter) put(b uint64) {
	if w.n < w.limit {
		w.v = w.v<<1 | b
		w.n++
		return
	}
	if b != 0 {
		w.sticky = true
	}
}

func (w *bitWriter) bits() uint64 {
	return w.v << (w.limit - w.n)
}

// encode rounds sig * 2^exp (plus a sticky tail below sig's lsb) to the
// nearest posit, ties to even. Magnitudes beyond maxpos saturate to maxpos
// and nonzero magnitudes below minpos round to minpos.
func encode(c Config, neg bool, sig uint64, exp int, sticky bool) uint32 {
	if sig == 0 {
		if sticky {
			return applySign(c, neg, 1)
		}
		return 0
	}

	n := c.NBits
	maxExp := c.MaxExp()
	maxpos := uint32(1)<<(n-1) - 1

	msb := bits.Len64(sig) - 1
	scale := exp + msb
	if scale > maxExp {
		return applySign(c, neg, maxpos)
	}
	if scale < -maxExp {
		return applySign(c, neg, 1)
	}

	k := scale >> c.ES
	e := scale - k<<c.ES

	// n-1 body bits followed by one guard bit.
	w := bitWriter{limit: n}
	if k >= 0 {
		for i := 0; i <= k; i++ {
			w.put(1)
		}
		w.put(0)
	} else {
		for i := 0; i < -k; i++ {
			w.put(0)
		}
		w.put(1)
	}
	for i := c.ES - 1; i >= 0; i-- {
		w.put(uint64(e>>i) & 1)
	}
	for i := msb - 1; i >= 0; i-- {
		w.put(sig >> i & 1)
	}
	if sticky {
		w.sticky = true
	}

	v := w.bits()
	body := uint32(v >> 1)
	guard := v&1 == 1
	if guard && (w.sticky || body&1 == 1) {
		body++
	}
	if body > maxpos {
		body = maxpos
	}
	if body == 0 {
		body = 1
	}
	return applySign(c, neg, body)
}

func applySign(c Config, neg bool, body uint32) uint32 {
	if neg {
		return -body & c.mask()
	}
	return body
}

// normalize shifts the significand so its leading one sits at bit 61.
func normalize(u unpacked) unpacked {
	shift := 61 - (bits.Len64(u.sig) - 1)
	if shift > 0 {
		u.sig <<= shift
	} else {
		u.sig >>= -shift
	}
	u.exp -= shift
	return u
}

func addUnpacked(c Config, a, b unpacked) uint32 {
	a, b = normalize(a), normalize(b)
	if b.exp > a.exp || (b.exp == a.exp && b.sig > a.sig) {
		a, b = b, a
	}

	d := a.exp - b.exp
	var y uint64
	sticky := false
	if d >= 64 {
		sticky = true
	} else {
		y = b.sig >> d
		sticky = b.sig&(uint64(1)<<d-1) != 0
	}

	if a.neg == b.neg {
		return encode(c, a.neg, a.sig+y, a.exp, sticky)
	}

	s := a.sig - y
	if sticky {
		s--
	}
	if s == 0 && !sticky {
		return 0
	}
	return encode(c, a.neg, s, a.exp, sticky)
}

func mulUnpacked(c Config, a, b unpacked) uint32 {
	return encode(c, a.neg != b.neg, a.sig*b.sig, a.exp+b.exp, false)
}

func divUnpacked(c Config, a, b unpacked) uint32 {
	sa := a.sig << (30 - (bits.Len64(a.sig) - 1))
	ea := a.exp - (30 - (bits.Len64(a.sig) - 1))
	sb := b.sig << (31 - (bits.Len64(b.sig) - 1))
	eb := b.exp - (31 - (bits.Len64(b.sig) - 1))

	q, r := bits.Div64(sa>>2, sa<<62, sb)
	return encode(c, a.neg != b.neg, q, ea-eb-62, r != 0)
}

func sqrtUnpacked(c Config, a unpacked) uint32 {
	shift := 62 - (bits.Len64(a.sig) - 1)
	if (a.exp-shift)%2 != 0 {
		shift++
	}
	x := a.sig << shift
	exp := a.exp - shift

	r := isqrt(x)
	return encode(c, false, r, exp/2, r*r != x)
}

// isqrt returns floor(sqrt(x)).
func isqrt(x uint64) uint64 {
	r := uint64(math.Sqrt(float64(x)))
	for r > 0xFFFFFFFF || r*r > x {
		r--
	}
	for (r+1) <= 0xFFFFFFFF && (r+1)*(r+1) <= x {
		r++
	}
	return r
}
