package tensor

import (
	"fmt"

	"github.com/born-ml/positnn/internal/posit"
)

// Reshape changes the shape in place. The backing store is resized only when
// the element count changes: extra elements are truncated and new ones are
// zero. Strides are always recomputed.
func (t *Tensor[F]) Reshape(shape Shape) *Tensor[F] {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor.Reshape: %v", err))
	}
	n := shape.NumElements()
	switch {
	case n < len(t.data):
		t.data = t.data[:n:n]
	case n > len(t.data):
		grown := make([]posit.Posit[F], n)
		copy(grown, t.data)
		t.data = grown
	}
	t.shape = shape.Clone()
	t.strides = t.shape.ComputeStrides()
	return t
}

// Slice copies rows [begin, end) along axis 0.
func (t *Tensor[F]) Slice(begin, end int) *Tensor[F] {
	if t.Dim() == 0 || begin < 0 || end > t.shape[0] || begin >= end {
		panic(fmt.Sprintf("tensor.Slice: range [%d, %d) invalid for shape %v", begin, end, t.shape))
	}
	shape := t.shape.Clone()
	shape[0] = end - begin
	out := New[F](shape)
	row := t.strides[0]
	copy(out.data, t.data[begin*row:end*row])
	return out
}

// ArgMax returns the index of the largest element along axis. The axis is
// removed from the result shape. Ties keep the first occurrence.
func (t *Tensor[F]) ArgMax(axis int) *Indices {
	if axis < 0 || axis >= t.Dim() {
		panic(fmt.Sprintf("tensor.ArgMax: axis %d out of range for shape %v", axis, t.shape))
	}
	extent := t.shape[axis]
	stride := t.strides[axis]
	outer := len(t.data) / (extent * stride)

	out := NewIndices(t.shape.Without(axis))
	n := 0
	for o := 0; o < outer; o++ {
		base := o * extent * stride
		for in := 0; in < stride; in++ {
			best := 0
			bestVal := t.data[base+in]
			for k := 1; k < extent; k++ {
				if v := t.data[base+k*stride+in]; bestVal.Less(v) {
					best, bestVal = k, v
				}
			}
			out.data[n] = best
			n++
		}
	}
	return out
}

// Sum adds all elements sequentially with a rounding after each addition.
// Use kernel.Sum for the exactly accumulated total.
func (t *Tensor[F]) Sum() posit.Posit[F] {
	var s posit.Posit[F]
	for _, v := range t.data {
		s = s.Add(v)
	}
	return s
}
