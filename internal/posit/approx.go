package posit

// SigmoidApprox approximates 1/(1+e^-p) by flipping the sign bit and shifting
// the pattern right by two. It is only accurate for es = 0 formats.
func SigmoidApprox[F Format](p Posit[F]) Posit[F] {
	c := cfg[F]()
	b := p.bits ^ c.narBits()
	return Posit[F]{bits: (b >> 2) & c.mask()}
}

// TanhApprox approximates tanh(p) as 2*sigmoid(2p)-1 using SigmoidApprox.
func TanhApprox[F Format](p Posit[F]) Posit[F] {
	two := FromInt[F](2)
	return two.Mul(SigmoidApprox(two.Mul(p))).Sub(One[F]())
}

// Sigmoid computes 1/(1+e^-p) with one posit rounding per operation.
func Sigmoid[F Format](p Posit[F]) Posit[F] {
	one := One[F]()
	return one.Div(one.Add(p.Neg().Exp()))
}

// Tanh computes (e^p - e^-p)/(e^p + e^-p) with one posit rounding per operation.
func Tanh[F Format](p Posit[F]) Posit[F] {
	plus := p.Exp()
	minus := p.Neg().Exp()
	return plus.Sub(minus).Div(plus.Add(minus))
}
