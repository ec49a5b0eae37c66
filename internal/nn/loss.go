package nn

import (
	"fmt"

	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Reduction selects how per-sample losses are combined into the scalar loss.
type Reduction uint8

const (
	// Mean divides the summed loss by the batch size (by the element count
	// for MSE).
	Mean Reduction = iota
	// Sum reports the raw sum.
	Sum
)

// String returns "mean" or "sum".
func (r Reduction) String() string {
	switch r {
	case Mean:
		return "mean"
	case Sum:
		return "sum"
	}
	return fmt.Sprintf("Reduction(%d)", uint8(r))
}

// Validate returns ErrUnknownReduction for values other than Mean and Sum.
func (r Reduction) Validate() error {
	if r != Mean && r != Sum {
		return fmt.Errorf("%w: %d", ErrUnknownReduction, uint8(r))
	}
	return nil
}

func (r Reduction) apply(loss float64, n int) float64 {
	if r == Mean && n > 0 {
		return loss / float64(n)
	}
	return loss
}

// Loss is a scalar loss bound to one network output, together with its
// derivative with respect to that output at backward precision.
//
// The derivative is per sample: it is not divided by the batch size even
// under Mean reduction, because every layer already divides its parameter
// gradients by the batch size.
type Loss[B posit.Format] interface {
	Value() float64
	Derivative() *tensor.Tensor[B]
}

func checkTargets(rows, cols int, target *tensor.Indices) error {
	if target.Size() != rows {
		return fmt.Errorf("%w: %d targets for %d samples", ErrShapeMismatch, target.Size(), rows)
	}
	for i, t := range target.Data() {
		if t < 0 || t >= cols {
			return fmt.Errorf("%w: target[%d] = %d with %d classes", ErrTargetRange, i, t, cols)
		}
	}
	return nil
}

// MSELoss is the squared-error loss.
type MSELoss[B posit.Format] struct {
	value float64
	err   *tensor.Tensor[B]
}

// MSE computes Σ(output - target)² over all elements, each error and its
// square rounded at forward precision and summed in float64. Mean divides by
// the element count. The operands must have the same number of elements.
func MSE[F, B posit.Format](output, target *tensor.Tensor[F], reduction Reduction) (*MSELoss[B], error) {
	if err := reduction.Validate(); err != nil {
		return nil, err
	}
	if output.Size() != target.Size() {
		return nil, fmt.Errorf("nn.MSE: %w: output %v, target %v", ErrShapeMismatch, output.Shape(), target.Shape())
	}

	e := output.Sub(target)
	var loss float64
	for _, v := range e.Data() {
		loss += v.Mul(v).Float64()
	}
	return &MSELoss[B]{
		value: reduction.apply(loss, e.Size()),
		err:   tensor.Cast[B](e),
	}, nil
}

// Value returns the reduced loss.
func (l *MSELoss[B]) Value() float64 { return l.value }

// Derivative returns 2*(output - target).
func (l *MSELoss[B]) Derivative() *tensor.Tensor[B] {
	return l.err.MulScalar(posit.FromInt[B](2))
}

// NLLLoss is the negative log-likelihood of log-probabilities.
type NLLLoss[B posit.Format] struct {
	value  float64
	shape  tensor.Shape
	target *tensor.Indices
}

// NLL computes -Σ output[i, target[i]] for log-probabilities of shape
// [batch, classes].
func NLL[F, B posit.Format](output *tensor.Tensor[F], target *tensor.Indices, reduction Reduction) (*NLLLoss[B], error) {
	if err := reduction.Validate(); err != nil {
		return nil, err
	}
	if output.Dim() != 2 {
		return nil, fmt.Errorf("nn.NLL: %w: expected [batch, classes], got %v", ErrShapeMismatch, output.Shape())
	}
	rows, cols := output.Shape()[0], output.Shape()[1]
	if err := checkTargets(rows, cols, target); err != nil {
		return nil, fmt.Errorf("nn.NLL: %w", err)
	}

	var loss float64
	for i, t := range target.Data() {
		loss -= output.At(i*cols + t).Float64()
	}
	return &NLLLoss[B]{
		value:  reduction.apply(loss, rows),
		shape:  output.Shape(),
		target: target,
	}, nil
}

// Value returns the reduced loss.
func (l *NLLLoss[B]) Value() float64 { return l.value }

// Derivative is -1 at every target position and zero elsewhere.
func (l *NLLLoss[B]) Derivative() *tensor.Tensor[B] {
	d := tensor.New[B](l.shape)
	cols := l.shape[1]
	minusOne := posit.One[B]().Neg()
	for i, t := range l.target.Data() {
		d.Set(i*cols+t, minusOne)
	}
	return d
}
