// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package posit provides posit numbers and their exact quire accumulator.
//
// A posit<nbits, es> packs a sign, a run-length encoded regime, up to es
// exponent bits and a fraction into nbits. Precision is highest near 1 and
// tapers toward the extremes. There is one zero and one NaR (not a real);
// rounding is to nearest even and never produces zero or NaR from a finite
// non-zero value.
//
// Formats are types, so values of different precision cannot be mixed:
//
//	a := posit.FromFloat64[posit.P16E1](1.5)
//	b := posit.FromFloat64[posit.P16E1](0.25)
//	c := posit.FMA(a, b, posit.One[posit.P16E1]()) // a*b + 1, one rounding
//	d := posit.Convert[posit.P8E0](c)
//
// A Quire sums products without rounding:
//
//	var q posit.Quire[posit.P8E0]
//	for i := range x {
//	    q.AddProduct(x[i], w[i])
//	}
//	y := q.Posit()
package posit

import "github.com/born-ml/positnn/internal/posit"

// Format is a type-level posit configuration.
type Format = posit.Format

// Supported formats.
type (
	P8E0  = posit.P8E0
	P8E1  = posit.P8E1
	P8E2  = posit.P8E2
	P10E1 = posit.P10E1
	P12E1 = posit.P12E1
	P16E1 = posit.P16E1
	P16E2 = posit.P16E2
	P32E2 = posit.P32E2
	P32E3 = posit.P32E3
)

// Config is the value-level description of a format.
type Config = posit.Config

// ConfigOf returns the configuration of format F.
func ConfigOf[F Format]() Config { return posit.ConfigOf[F]() }

// Posit is a posit of format F.
type Posit[F Format] = posit.Posit[F]

// Quire is the exact accumulator of format F. The zero value is zero.
type Quire[F Format] = posit.Quire[F]

// FromFloat64 rounds x to the nearest posit.
func FromFloat64[F Format](x float64) Posit[F] { return posit.FromFloat64[F](x) }

// FromInt rounds i to the nearest posit.
func FromInt[F Format](i int) Posit[F] { return posit.FromInt[F](i) }

// Zero returns zero.
func Zero[F Format]() Posit[F] { return posit.Zero[F]() }

// One returns one.
func One[F Format]() Posit[F] { return posit.One[F]() }

// NaR returns the not-a-real value.
func NaR[F Format]() Posit[F] { return posit.NaR[F]() }

// Convert rounds p to format To.
func Convert[To, From Format](p Posit[From]) Posit[To] { return posit.Convert[To](p) }

// FMA returns a*b + c with a single rounding.
func FMA[F Format](a, b, c Posit[F]) Posit[F] { return posit.FMA(a, b, c) }

// FAM returns (a+b)*c with a single rounding.
func FAM[F Format](a, b, c Posit[F]) Posit[F] { return posit.FAM(a, b, c) }

// Dot returns the exactly accumulated dot product of a and b.
func Dot[F Format](a, b []Posit[F]) Posit[F] { return posit.Dot(a, b) }

// Sum returns the exactly accumulated sum of xs.
func Sum[F Format](xs []Posit[F]) Posit[F] { return posit.Sum(xs) }

// Sigmoid returns 1/(1+exp(-p)).
func Sigmoid[F Format](p Posit[F]) Posit[F] { return posit.Sigmoid(p) }

// Tanh returns the hyperbolic tangent of p.
func Tanh[F Format](p Posit[F]) Posit[F] { return posit.Tanh(p) }

// SigmoidApprox is the bit-level sigmoid approximation for es = 0 formats.
func SigmoidApprox[F Format](p Posit[F]) Posit[F] { return posit.SigmoidApprox(p) }

// TanhApprox is 2*SigmoidApprox(2p) - 1.
func TanhApprox[F Format](p Posit[F]) Posit[F] { return posit.TanhApprox(p) }
