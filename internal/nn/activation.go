package nn

import (
	"fmt"

	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// ReLU is a Rectified Linear Unit activation module.
//
// Applies the element-wise function: f(x) = max(0, x)
//
// Forward remembers which elements were zeroed; an input of exactly zero
// counts as zeroed. Backward clears the gradient at those positions.
type ReLU[O, F, B posit.Format] struct {
	mode
	policy Policy[O, F, B]
}

// NewReLU creates a new ReLU activation module.
func NewReLU[O, F, B posit.Format](pol Policy[O, F, B]) *ReLU[O, F, B] {
	return &ReLU[O, F, B]{mode: mode{training: true}, policy: pol}
}

// Forward applies ReLU activation: f(x) = max(0, x).
func (r *ReLU[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	y := x.Clone()
	dropped := make([]bool, y.Size())
	data := y.Data()
	parallel.ForRange(len(data), func(begin, end int) {
		for i := begin; i < end; i++ {
			if data[i].IsNeg() || data[i].IsZero() {
				data[i] = posit.Zero[F]()
				dropped[i] = true
			}
		}
	}, r.policy.Parallel)
	return y, newRecord(r, dropped)
}

// Backward zeroes the gradient where the input was not positive.
func (r *ReLU[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	dropped, err := take[[]bool](rec, r)
	if err != nil {
		return nil, fmt.Errorf("ReLU.Backward: %w", err)
	}
	if delta.Size() != len(dropped) {
		return nil, fmt.Errorf("ReLU.Backward: %w: delta %v for %d inputs", ErrShapeMismatch, delta.Shape(), len(dropped))
	}
	dx := delta.Clone()
	data := dx.Data()
	for i, d := range dropped {
		if d {
			data[i] = posit.Zero[B]()
		}
	}
	return dx, nil
}

// Parameters returns nil (ReLU has no trainable parameters).
func (r *ReLU[O, F, B]) Parameters() []*Parameter[O] { return nil }

// Sigmoid is a sigmoid activation module.
//
// Applies the element-wise function: f(x) = 1 / (1 + exp(-x))
//
// For posits without exponent bits the output uses the bit-level
// approximation unless Approximate is turned off. Backward computes
// σ(1-σ) from the cached output and multiplies it element-wise into the
// gradient, which is exact only because the activation is element-wise.
type Sigmoid[O, F, B posit.Format] struct {
	mode
	policy Policy[O, F, B]

	// Approximate selects the fast approximation when F has es = 0.
	Approximate bool
}

// NewSigmoid creates a new Sigmoid activation module.
func NewSigmoid[O, F, B posit.Format](pol Policy[O, F, B]) *Sigmoid[O, F, B] {
	return &Sigmoid[O, F, B]{mode: mode{training: true}, policy: pol, Approximate: true}
}

// Forward applies the sigmoid.
func (s *Sigmoid[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	f := posit.Sigmoid[F]
	if s.Approximate && posit.ConfigOf[F]().ES == 0 {
		f = posit.SigmoidApprox[F]
	}
	y := mapTensor(x, f, s.policy.Parallel)
	return y, newRecord(s, tensor.Cast[B](y))
}

// Backward multiplies delta by σ(1-σ), with (1-σ)σ fused into one rounding.
func (s *Sigmoid[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	out, err := take[*tensor.Tensor[B]](rec, s)
	if err != nil {
		return nil, fmt.Errorf("Sigmoid.Backward: %w", err)
	}
	one := posit.One[B]()
	return hadamardDerivative(delta, out, func(y posit.Posit[B]) posit.Posit[B] {
		return posit.FAM(one, y.Neg(), y)
	}, s.policy.Parallel)
}

// Parameters returns nil (Sigmoid has no trainable parameters).
func (s *Sigmoid[O, F, B]) Parameters() []*Parameter[O] { return nil }

// Tanh is a hyperbolic tangent activation module.
//
// Applies the element-wise function: f(x) = (exp(x) - exp(-x)) / (exp(x) + exp(-x))
//
// Like Sigmoid it approximates for es = 0 and derives its backward pass,
// 1 - tanh², from the cached output.
type Tanh[O, F, B posit.Format] struct {
	mode
	policy Policy[O, F, B]

	// Approximate selects the fast approximation when F has es = 0.
	Approximate bool
}

// NewTanh creates a new Tanh activation module.
func NewTanh[O, F, B posit.Format](pol Policy[O, F, B]) *Tanh[O, F, B] {
	return &Tanh[O, F, B]{mode: mode{training: true}, policy: pol, Approximate: true}
}

// Forward applies tanh.
func (t *Tanh[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	f := posit.Tanh[F]
	if t.Approximate && posit.ConfigOf[F]().ES == 0 {
		f = posit.TanhApprox[F]
	}
	y := mapTensor(x, f, t.policy.Parallel)
	return y, newRecord(t, tensor.Cast[B](y))
}

// Backward multiplies delta by 1 - y² computed as one fused multiply-add.
func (t *Tanh[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	out, err := take[*tensor.Tensor[B]](rec, t)
	if err != nil {
		return nil, fmt.Errorf("Tanh.Backward: %w", err)
	}
	one := posit.One[B]()
	return hadamardDerivative(delta, out, func(y posit.Posit[B]) posit.Posit[B] {
		return posit.FMA(y, y.Neg(), one)
	}, t.policy.Parallel)
}

// Parameters returns nil (Tanh has no trainable parameters).
func (t *Tanh[O, F, B]) Parameters() []*Parameter[O] { return nil }

func mapTensor[T posit.Format](x *tensor.Tensor[T], f func(posit.Posit[T]) posit.Posit[T], par parallel.Config) *tensor.Tensor[T] {
	y := tensor.New[T](x.Shape())
	src, dst := x.Data(), y.Data()
	parallel.ForRange(len(src), func(begin, end int) {
		for i := begin; i < end; i++ {
			dst[i] = f(src[i])
		}
	}, par)
	return y
}

// hadamardDerivative returns delta ⊙ d(out).
func hadamardDerivative[B posit.Format](delta, out *tensor.Tensor[B], d func(posit.Posit[B]) posit.Posit[B], par parallel.Config) (*tensor.Tensor[B], error) {
	if delta.Size() != out.Size() {
		return nil, fmt.Errorf("%w: delta %v for output %v", ErrShapeMismatch, delta.Shape(), out.Shape())
	}
	dx := mapTensor(out, d, par)
	dx.MulAssign(delta)
	return dx, nil
}
