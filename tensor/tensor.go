// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides dense row-major tensors of posits.
//
// Example:
//
//	x := tensor.MustFromFloat64s[posit.P16E1](tensor.Shape{2, 3},
//	    1, 2, 3,
//	    4, 5, 6,
//	)
//	y := tensor.Cast[posit.P8E0](x)
//	labels := tensor.Labels(0, 2)
package tensor

import (
	"io"

	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Shape is a list of dimension sizes.
type Shape = tensor.Shape

// Tensor is a dense tensor of posits of format F.
type Tensor[F posit.Format] = tensor.Tensor[F]

// Indices is an integer tensor holding class targets and argmax results.
type Indices = tensor.Indices

// ErrShapeMismatch is returned when a tensor does not have the expected shape.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// ErrCorrupt is returned when a serialized tensor cannot be decoded.
var ErrCorrupt = tensor.ErrCorrupt

// New creates a zero-filled tensor.
func New[F posit.Format](shape Shape) *Tensor[F] { return tensor.New[F](shape) }

// Zeros creates a zero-filled tensor.
func Zeros[F posit.Format](shape Shape) *Tensor[F] { return tensor.Zeros[F](shape) }

// Ones creates a tensor filled with one.
func Ones[F posit.Format](shape Shape) *Tensor[F] { return tensor.Ones[F](shape) }

// Full creates a tensor filled with v.
func Full[F posit.Format](shape Shape, v posit.Posit[F]) *Tensor[F] { return tensor.Full(shape, v) }

// FromFloat64s rounds values into a new tensor.
func FromFloat64s[F posit.Format](shape Shape, values []float64) (*Tensor[F], error) {
	return tensor.FromFloat64s[F](shape, values)
}

// MustFromFloat64s is like FromFloat64s but panics on a size mismatch.
func MustFromFloat64s[F posit.Format](shape Shape, values ...float64) *Tensor[F] {
	return tensor.MustFromFloat64s[F](shape, values...)
}

// Cast converts every element to format To.
func Cast[To, From posit.Format](t *Tensor[From]) *Tensor[To] { return tensor.Cast[To](t) }

// Labels creates a 1-D index tensor.
func Labels(labels ...int) *Indices { return tensor.Labels(labels...) }

// Write encodes t to w with elements rounded to file format G.
func Write[G, F posit.Format](w io.Writer, t *Tensor[F]) error { return tensor.Write[G](w, t) }

// Read decodes a tensor written at file format G.
func Read[G, F posit.Format](r io.Reader) (*Tensor[F], error) { return tensor.Read[G, F](r) }
