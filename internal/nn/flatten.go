package nn

import (
	"fmt"

	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Flatten collapses every axis after the batch axis, turning
// [batch, channels, height, width] into [batch, channels*height*width] so a
// convolutional block can feed a Linear layer.
type Flatten[O, F, B posit.Format] struct {
	mode
}

// NewFlatten creates a Flatten module.
func NewFlatten[O, F, B posit.Format](Policy[O, F, B]) *Flatten[O, F, B] {
	return &Flatten[O, F, B]{mode: mode{training: true}}
}

// Forward returns a reshaped copy of x.
func (f *Flatten[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	if x.Dim() < 1 {
		panic(fmt.Sprintf("Flatten.Forward: expected a batch axis, got shape %v", x.Shape()))
	}
	shape := x.Shape().Clone()
	batch := shape[0]
	y := x.Clone().Reshape(tensor.Shape{batch, x.Size() / max(batch, 1)})
	return y, newRecord(f, shape)
}

// Backward restores the input shape of delta.
func (f *Flatten[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	shape, err := take[tensor.Shape](rec, f)
	if err != nil {
		return nil, fmt.Errorf("Flatten.Backward: %w", err)
	}
	if delta.Size() != shape.NumElements() {
		return nil, fmt.Errorf("Flatten.Backward: %w: delta %v for input %v", ErrShapeMismatch, delta.Shape(), shape)
	}
	return delta.Clone().Reshape(shape), nil
}

// Parameters returns nil (Flatten has no trainable parameters).
func (f *Flatten[O, F, B]) Parameters() []*Parameter[O] { return nil }
