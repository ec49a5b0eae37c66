package tensor

import "fmt"

// Indices is a dense integer tensor used for class targets and argmax results.
type Indices struct {
	shape Shape
	data  []int
}

// NewIndices creates a zero-filled index tensor.
func NewIndices(shape Shape) *Indices {
	return &Indices{shape: shape.Clone(), data: make([]int, shape.NumElements())}
}

// IndicesFrom wraps data with the given shape.
func IndicesFrom(shape Shape, data []int) (*Indices, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("%w: %d indices for shape %v", ErrShapeMismatch, len(data), shape)
	}
	return &Indices{shape: shape.Clone(), data: data}, nil
}

// Labels builds a one-dimensional index tensor from class labels.
func Labels(labels ...int) *Indices {
	return &Indices{shape: Shape{len(labels)}, data: labels}
}

// Shape returns the shape.
func (x *Indices) Shape() Shape { return x.shape }

// Size returns the element count.
func (x *Indices) Size() int { return len(x.data) }

// At returns element i.
func (x *Indices) At(i int) int { return x.data[i] }

// Data returns the backing slice.
func (x *Indices) Data() []int { return x.data }

// Slice copies rows [begin, end) along axis 0.
func (x *Indices) Slice(begin, end int) *Indices {
	if len(x.shape) == 0 || begin < 0 || end > x.shape[0] || begin >= end {
		panic(fmt.Sprintf("tensor.Indices.Slice: range [%d, %d) invalid for shape %v", begin, end, x.shape))
	}
	row := len(x.data) / x.shape[0]
	shape := x.shape.Clone()
	shape[0] = end - begin
	data := make([]int, (end-begin)*row)
	copy(data, x.data[begin*row:end*row])
	return &Indices{shape: shape, data: data}
}

// Matches counts positions where x and other agree.
func (x *Indices) Matches(other *Indices) int {
	n := 0
	for i := range min(len(x.data), len(other.data)) {
		if x.data[i] == other.data[i] {
			n++
		}
	}
	return n
}
