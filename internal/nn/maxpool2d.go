package nn

import (
	"fmt"

	"github.com/born-ml/positnn/internal/kernel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// PoolConfig holds the window of a pooling layer. A zero Stride defaults to
// KernelSize.
type PoolConfig struct {
	KernelSize int
	Stride     int
	Padding    int
}

// Validate reports a window that cannot pool.
func (c PoolConfig) Validate() error {
	switch {
	case c.KernelSize <= 0:
		return fmt.Errorf("nn: pool kernel size must be positive, got %d", c.KernelSize)
	case c.Stride < 0:
		return fmt.Errorf("nn: pool stride must not be negative, got %d", c.Stride)
	case c.Padding < 0 || 2*c.Padding > c.KernelSize:
		return fmt.Errorf("nn: pool padding must lie in [0, %d], got %d", c.KernelSize/2, c.Padding)
	}
	return nil
}

func (c PoolConfig) params() kernel.PoolParams {
	return kernel.PoolParams{Kernel: c.KernelSize, Stride: c.Stride, Padding: c.Padding}
}

// MaxPool2d applies 2D max pooling over [batch, channels, height, width].
//
// Forward records the flat input index chosen for every output. Backward
// routes each output gradient back to that index without comparing values
// again.
//
// Example:
//
//	pool, _ := nn.NewMaxPool2d(pol, nn.PoolConfig{KernelSize: 2})
//	y, rec := pool.Forward(x) // [N, C, 28, 28] -> [N, C, 14, 14]
type MaxPool2d[O, F, B posit.Format] struct {
	mode
	policy Policy[O, F, B]
	config PoolConfig
}

type maxPoolState struct {
	indices *tensor.Indices
	shape   tensor.Shape
}

// NewMaxPool2d creates a max-pooling layer.
func NewMaxPool2d[O, F, B posit.Format](pol Policy[O, F, B], cfg PoolConfig) (*MaxPool2d[O, F, B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MaxPool2d[O, F, B]{mode: mode{training: true}, policy: pol, config: cfg}, nil
}

// Forward takes the maximum of every window.
func (m *MaxPool2d[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	y, idx := kernel.MaxPool2d(x, m.config.params(), m.policy.Windows, m.policy.Parallel)
	return y, newRecord(m, maxPoolState{indices: idx, shape: x.Shape()})
}

// Backward scatters delta to the recorded maxima.
func (m *MaxPool2d[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	st, err := take[maxPoolState](rec, m)
	if err != nil {
		return nil, fmt.Errorf("MaxPool2d.Backward: %w", err)
	}
	if delta.Size() != st.indices.Size() {
		return nil, fmt.Errorf("MaxPool2d.Backward: %w: delta %v for output %v", ErrShapeMismatch, delta.Shape(), st.indices.Shape())
	}
	return kernel.MaxPool2dBackward(delta, st.indices, st.shape, m.config.params(), m.policy.Parallel), nil
}

// Parameters returns nil.
func (m *MaxPool2d[O, F, B]) Parameters() []*Parameter[O] { return nil }

// AvgPool2d applies 2D average pooling over [batch, channels, height, width].
//
// Every window is divided by the full kernel area, including border windows
// that overlap the padding.
type AvgPool2d[O, F, B posit.Format] struct {
	mode
	policy Policy[O, F, B]
	config PoolConfig
}

type avgPoolState struct {
	shape tensor.Shape
}

// NewAvgPool2d creates an average-pooling layer.
func NewAvgPool2d[O, F, B posit.Format](pol Policy[O, F, B], cfg PoolConfig) (*AvgPool2d[O, F, B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AvgPool2d[O, F, B]{mode: mode{training: true}, policy: pol, config: cfg}, nil
}

// Forward averages every window.
func (a *AvgPool2d[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	y := kernel.AvgPool2d(x, a.config.params(), a.policy.Windows, a.policy.Parallel)
	return y, newRecord(a, avgPoolState{shape: x.Shape()})
}

// Backward spreads delta evenly over every window.
func (a *AvgPool2d[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	st, err := take[avgPoolState](rec, a)
	if err != nil {
		return nil, fmt.Errorf("AvgPool2d.Backward: %w", err)
	}
	if delta.Dim() != 4 || delta.Shape()[0] != st.shape[0] || delta.Shape()[1] != st.shape[1] {
		return nil, fmt.Errorf("AvgPool2d.Backward: %w: delta %v for input %v", ErrShapeMismatch, delta.Shape(), st.shape)
	}
	return kernel.AvgPool2dBackward(delta, st.shape, a.config.params(), a.policy.Windows, a.policy.Parallel), nil
}

// Parameters returns nil.
func (a *AvgPool2d[O, F, B]) Parameters() []*Parameter[O] { return nil }
