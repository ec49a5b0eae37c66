package tensor

import (
	"fmt"

	"github.com/born-ml/positnn/internal/posit"
)

// New creates a zero-filled tensor. It panics on an invalid shape.
//
// Example:
//
//	t := tensor.New[posit.P16E1](tensor.Shape{3, 4})
func New[F posit.Format](shape Shape) *Tensor[F] {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor.New: %v", err))
	}
	shape = shape.Clone()
	return &Tensor[F]{
		shape:   shape,
		strides: shape.ComputeStrides(),
		data:    make([]posit.Posit[F], shape.NumElements()),
	}
}

// Zeros is an alias of New kept for readability at call sites.
func Zeros[F posit.Format](shape Shape) *Tensor[F] {
	return New[F](shape)
}

// Full creates a tensor filled with v.
func Full[F posit.Format](shape Shape, v posit.Posit[F]) *Tensor[F] {
	t := New[F](shape)
	t.Fill(v)
	return t
}

// Ones creates a tensor filled with posit one.
func Ones[F posit.Format](shape Shape) *Tensor[F] {
	return Full(shape, posit.One[F]())
}

// FromPosits creates a tensor that takes ownership of data.
func FromPosits[F posit.Format](shape Shape, data []posit.Posit[F]) (*Tensor[F], error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("%w: %d elements for shape %v", ErrShapeMismatch, len(data), shape)
	}
	shape = shape.Clone()
	return &Tensor[F]{shape: shape, strides: shape.ComputeStrides(), data: data}, nil
}

// FromFloat64s rounds every value to the nearest posit.
func FromFloat64s[F posit.Format](shape Shape, values []float64) (*Tensor[F], error) {
	data := make([]posit.Posit[F], len(values))
	for i, v := range values {
		data[i] = posit.FromFloat64[F](v)
	}
	return FromPosits(shape, data)
}

// FromFloat32s rounds every value to the nearest posit.
func FromFloat32s[F posit.Format](shape Shape, values []float32) (*Tensor[F], error) {
	data := make([]posit.Posit[F], len(values))
	for i, v := range values {
		data[i] = posit.FromFloat32[F](v)
	}
	return FromPosits(shape, data)
}

// MustFromFloat64s is FromFloat64s for literals in tests and examples.
func MustFromFloat64s[F posit.Format](shape Shape, values ...float64) *Tensor[F] {
	t, err := FromFloat64s[F](shape, values)
	if err != nil {
		panic(err)
	}
	return t
}

// Cast converts every element from format From to format To. Shape and
// strides are copied verbatim.
func Cast[To, From posit.Format](t *Tensor[From]) *Tensor[To] {
	data := make([]posit.Posit[To], len(t.data))
	for i, v := range t.data {
		data[i] = posit.Convert[To](v)
	}
	return &Tensor[To]{
		shape:   t.shape.Clone(),
		strides: append([]int(nil), t.strides...),
		data:    data,
	}
}
