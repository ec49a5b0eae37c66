package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/positnn/internal/kernel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x·Wᵗ + b
// where:
//   - x is the input tensor with shape [batch_size, in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [batch_size, out_features]
//
// Each output element is one exact accumulation seeded with its bias, so the
// bias costs no extra rounding.
//
// Example:
//
//	pol := nn.NewPolicy[posit.P16E1, posit.P16E1, posit.P16E1](parallel.Serial())
//	layer := nn.NewLinear(pol, 784, 128, rand.New(rand.NewSource(1)))
//	y, rec := layer.Forward(x)          // [32, 784] -> [32, 128]
//	dx, err := layer.Backward(dy, rec)  // [32, 128] -> [32, 784]
type Linear[O, F, B posit.Format] struct {
	mode
	policy      Policy[O, F, B]
	inFeatures  int
	outFeatures int

	weight *MixedTensor[O, F, B] // [out_features, in_features]
	bias   *MixedTensor[O, F, F] // [out_features]

	weightParam *Parameter[O]
	biasParam   *Parameter[O]
}

// linearState is the activation record of Linear: the input at backward
// precision.
type linearState[B posit.Format] struct {
	input *tensor.Tensor[B]
}

// NewLinear creates a new Linear layer.
//
// Weights are drawn from kaiming-uniform with a = sqrt(5) over fan_in.
// Biases are drawn from U(-1/sqrt(fan_in), 1/sqrt(fan_in)). A nil rng uses a
// generator seeded with DefaultSeed.
func NewLinear[O, F, B posit.Format](pol Policy[O, F, B], inFeatures, outFeatures int, rng *rand.Rand) *Linear[O, F, B] {
	l := &Linear[O, F, B]{
		mode:        mode{training: true},
		policy:      pol,
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewMixedTensor[O, F, B](tensor.Shape{outFeatures, inFeatures}),
		bias:        NewMixedTensor[O, F, F](tensor.Shape{outFeatures}),
	}
	l.weightParam = NewMixedParameter("weight", l.weight)
	l.biasParam = NewMixedParameter("bias", l.bias)

	resetAffine(l.weight.Optimizer(), l.bias.Optimizer(), rng)
	l.weightParam.Update()
	l.biasParam.Update()
	return l
}

// Forward computes y = x·Wᵗ + b at forward precision.
//
// Input shape: [batch_size, in_features]
// Output shape: [batch_size, out_features]
func (l *Linear[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	if x.Dim() != 2 || x.Shape()[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input [batch, %d], got shape %v", l.inFeatures, x.Shape()))
	}
	y := kernel.MatMulRowAdd(x, l.weight.Forward(), l.bias.Forward(), l.policy.Parallel)
	return y, newRecord(l, linearState[B]{input: tensor.Cast[B](x)})
}

// Backward accumulates
//
//	dW += deltaᵗ·x / batch
//	db += sum over batch of delta / batch
//
// and returns delta·W at backward precision.
func (l *Linear[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	st, err := take[linearState[B]](rec, l)
	if err != nil {
		return nil, fmt.Errorf("Linear.Backward: %w", err)
	}
	batch := st.input.Shape()[0]
	if delta.Dim() != 2 || delta.Shape()[0] != batch || delta.Shape()[1] != l.outFeatures {
		return nil, fmt.Errorf("Linear.Backward: %w: delta %v for input %v", ErrShapeMismatch, delta.Shape(), st.input.Shape())
	}

	par := l.policy.Parallel
	dw := kernel.MatMulCol(delta, st.input, par)
	db := kernel.SumFirst(delta, par)
	divideBatch(dw, batch)
	divideBatch(db, batch)
	Accumulate(l.weightParam, dw)
	Accumulate(l.biasParam, db)

	return kernel.MatMul(delta, l.weight.Backward(), par), nil
}

// Parameters returns [weight, bias].
func (l *Linear[O, F, B]) Parameters() []*Parameter[O] {
	return []*Parameter[O]{l.weightParam, l.biasParam}
}

// Weight returns the weight parameter.
func (l *Linear[O, F, B]) Weight() *Parameter[O] { return l.weightParam }

// Bias returns the bias parameter.
func (l *Linear[O, F, B]) Bias() *Parameter[O] { return l.biasParam }

// InFeatures returns the number of input features.
func (l *Linear[O, F, B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the number of output features.
func (l *Linear[O, F, B]) OutFeatures() int { return l.outFeatures }
