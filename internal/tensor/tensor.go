// Package tensor provides the dense N-dimensional posit tensor used by the
// kernels, layers and optimizers.
package tensor

import (
	"fmt"
	"strings"

	"github.com/born-ml/positnn/internal/posit"
)

// Tensor is a dense row-major array of posits in format F.
//
// Tensors are values in the sense that every operation producing a new
// tensor copies its data; no storage is shared unless a caller shares the
// pointer explicitly. Out-of-range flat or multi-index access panics.
type Tensor[F posit.Format] struct {
	shape   Shape
	strides []int
	data    []posit.Posit[F]
}

// Shape returns the tensor's shape. The returned slice must not be modified.
func (t *Tensor[F]) Shape() Shape {
	return t.shape
}

// Strides returns the row-major strides.
func (t *Tensor[F]) Strides() []int {
	return t.strides
}

// Dim returns the number of dimensions.
func (t *Tensor[F]) Dim() int {
	return len(t.shape)
}

// Size returns the total number of elements.
func (t *Tensor[F]) Size() int {
	return len(t.data)
}

// Data returns the backing slice. Writes are visible in the tensor.
func (t *Tensor[F]) Data() []posit.Posit[F] {
	return t.data
}

// At returns the element at flat index i.
func (t *Tensor[F]) At(i int) posit.Posit[F] {
	return t.data[i]
}

// Set stores v at flat index i.
func (t *Tensor[F]) Set(i int, v posit.Posit[F]) {
	t.data[i] = v
}

// AtIndex returns the element at a multi-index.
func (t *Tensor[F]) AtIndex(idx ...int) posit.Posit[F] {
	return t.data[t.shape.Offset(t.strides, idx)]
}

// SetIndex stores v at a multi-index.
func (t *Tensor[F]) SetIndex(v posit.Posit[F], idx ...int) {
	t.data[t.shape.Offset(t.strides, idx)] = v
}

// Clone returns a deep copy.
func (t *Tensor[F]) Clone() *Tensor[F] {
	data := make([]posit.Posit[F], len(t.data))
	copy(data, t.data)
	return &Tensor[F]{
		shape:   t.shape.Clone(),
		strides: append([]int(nil), t.strides...),
		data:    data,
	}
}

// CopyFrom overwrites t with the shape and contents of src.
func (t *Tensor[F]) CopyFrom(src *Tensor[F]) {
	t.shape = src.shape.Clone()
	t.strides = append(t.strides[:0], src.strides...)
	if cap(t.data) >= len(src.data) {
		t.data = t.data[:len(src.data)]
	} else {
		t.data = make([]posit.Posit[F], len(src.data))
	}
	copy(t.data, src.data)
}

// Fill sets every element to v.
func (t *Tensor[F]) Fill(v posit.Posit[F]) {
	for i := range t.data {
		t.data[i] = v
	}
}

// Clear zeroes every element and keeps the shape.
func (t *Tensor[F]) Clear() {
	clear(t.data)
}

// Equal reports whether both tensors have the same shape and bit-identical elements.
func (t *Tensor[F]) Equal(other *Tensor[F]) bool {
	if !t.shape.Equal(other.shape) {
		return false
	}
	for i := range t.data {
		if t.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// Float64s returns the exact values of all elements.
func (t *Tensor[F]) Float64s() []float64 {
	out := make([]float64, len(t.data))
	for i, v := range t.data {
		out[i] = v.Float64()
	}
	return out
}

// String returns a compact human-readable representation.
func (t *Tensor[F]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor[%s]%v[", posit.ConfigOf[F](), []int(t.shape))
	const limit = 16
	for i, v := range t.data {
		if i == limit {
			fmt.Fprintf(&sb, " ... (%d more)", len(t.data)-limit)
			break
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
