package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/positnn/internal/kernel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Conv2dConfig holds the hyperparameters of a Conv2d layer.
type Conv2dConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int // Square kernels only.
	Stride      int
	Padding     int
	Bias        bool
}

// DefaultConv2dConfig returns stride 1, no padding, with bias.
func DefaultConv2dConfig(inChannels, outChannels, kernelSize int) Conv2dConfig {
	return Conv2dConfig{
		InChannels:  inChannels,
		OutChannels: outChannels,
		KernelSize:  kernelSize,
		Stride:      1,
		Bias:        true,
	}
}

// Validate reports a configuration no convolution can run with.
func (c Conv2dConfig) Validate() error {
	switch {
	case c.InChannels <= 0 || c.OutChannels <= 0:
		return fmt.Errorf("nn: conv2d channels must be positive, got %d -> %d", c.InChannels, c.OutChannels)
	case c.KernelSize <= 0:
		return fmt.Errorf("nn: conv2d kernel size must be positive, got %d", c.KernelSize)
	case c.Stride <= 0:
		return fmt.Errorf("nn: conv2d stride must be positive, got %d", c.Stride)
	case c.Padding < 0 || c.Padding >= c.KernelSize:
		return fmt.Errorf("nn: conv2d padding must lie in [0, %d), got %d", c.KernelSize, c.Padding)
	}
	return nil
}

// Conv2d is a 2D convolutional layer.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel, kernel]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel) / stride + 1
//	out_w = (width + 2*padding - kernel) / stride + 1
//
// The input gradient is the convolution of the stride-dilated output
// gradient with the 180°-rotated kernel, so forward and backward share the
// same exact-accumulation kernel.
type Conv2d[O, F, B posit.Format] struct {
	mode
	policy Policy[O, F, B]
	config Conv2dConfig

	weight *MixedTensor[O, F, B]
	bias   *MixedTensor[O, F, F] // nil without bias

	weightParam *Parameter[O]
	biasParam   *Parameter[O]
}

type conv2dState[B posit.Format] struct {
	input *tensor.Tensor[B]
}

// NewConv2d creates a Conv2d layer with kaiming-uniform weights (a = sqrt(5),
// fan_in = in_channels*kernel²) and a U(±1/sqrt(fan_in)) bias. A nil rng
// uses a generator seeded with DefaultSeed.
func NewConv2d[O, F, B posit.Format](pol Policy[O, F, B], cfg Conv2dConfig, rng *rand.Rand) (*Conv2d[O, F, B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := cfg.KernelSize
	c := &Conv2d[O, F, B]{
		mode:   mode{training: true},
		policy: pol,
		config: cfg,
		weight: NewMixedTensor[O, F, B](tensor.Shape{cfg.OutChannels, cfg.InChannels, k, k}),
	}
	c.weightParam = NewMixedParameter("weight", c.weight)

	var bias *tensor.Tensor[O]
	if cfg.Bias {
		c.bias = NewMixedTensor[O, F, F](tensor.Shape{cfg.OutChannels})
		c.biasParam = NewMixedParameter("bias", c.bias)
		bias = c.bias.Optimizer()
	}
	resetAffine(c.weight.Optimizer(), bias, rng)
	Sync(c.Parameters())
	return c, nil
}

func (c *Conv2d[O, F, B]) params() kernel.ConvParams {
	return kernel.ConvParams{Stride: c.config.Stride, Padding: c.config.Padding}
}

// Forward convolves x at forward precision.
func (c *Conv2d[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	if x.Dim() != 4 || x.Shape()[1] != c.config.InChannels {
		panic(fmt.Sprintf("Conv2d.Forward: expected input [batch, %d, h, w], got shape %v", c.config.InChannels, x.Shape()))
	}
	var bias *tensor.Tensor[F]
	if c.bias != nil {
		bias = c.bias.Forward()
	}
	y := kernel.Conv2d(x, c.weight.Forward(), bias, c.params(), c.policy.Windows, c.policy.Parallel)
	return y, newRecord(c, conv2dState[B]{input: tensor.Cast[B](x)})
}

// Backward accumulates the kernel and bias gradients, each divided by the
// batch size, and returns the gradient with respect to the input.
func (c *Conv2d[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	st, err := take[conv2dState[B]](rec, c)
	if err != nil {
		return nil, fmt.Errorf("Conv2d.Backward: %w", err)
	}
	in := st.input.Shape()
	if delta.Dim() != 4 || delta.Shape()[0] != in[0] || delta.Shape()[1] != c.config.OutChannels {
		return nil, fmt.Errorf("Conv2d.Backward: %w: delta %v for input %v", ErrShapeMismatch, delta.Shape(), in)
	}

	par, cache := c.policy.Parallel, c.policy.Windows
	k := c.config.KernelSize
	dw := kernel.Conv2dWeightGrad(st.input, delta, k, k, c.params(), cache, par)
	divideBatch(dw, in[0])
	Accumulate(c.weightParam, dw)

	if c.biasParam != nil {
		db := kernel.SumFirst(kernel.SumLast2(delta, par), par)
		divideBatch(db, in[0])
		Accumulate(c.biasParam, db)
	}

	return kernel.Conv2dInputGrad(delta, c.weight.Backward(), in[2], in[3], c.params(), cache, par), nil
}

// Parameters returns [weight, bias], or [weight] without bias.
func (c *Conv2d[O, F, B]) Parameters() []*Parameter[O] {
	if c.biasParam == nil {
		return []*Parameter[O]{c.weightParam}
	}
	return []*Parameter[O]{c.weightParam, c.biasParam}
}

// Weight returns the kernel parameter.
func (c *Conv2d[O, F, B]) Weight() *Parameter[O] { return c.weightParam }

// Bias returns the bias parameter or nil.
func (c *Conv2d[O, F, B]) Bias() *Parameter[O] { return c.biasParam }

// Config returns the layer hyperparameters.
func (c *Conv2d[O, F, B]) Config() Conv2dConfig { return c.config }
