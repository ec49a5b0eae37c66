package nn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/tensor"
)

func TestConv2dDiagonalScenario(t *testing.T) {
	conv, err := nn.NewConv2d(policy16(), nn.DefaultConv2dConfig(1, 1, 2), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	setWeight(t, conv.Weight(), 1, 0, 0, 1)
	setWeight(t, conv.Bias(), 0)

	x := values[p16](tensor.Shape{4, 1, 2, 2},
		1, 2, 3, 4,
		5, 6, 7, 8,
		-1, 0, 0, 1,
		0.5, 9, 9, 0.25,
	)
	y, rec := conv.Forward(x)
	require.Equal(t, tensor.Shape{4, 1, 1, 1}, y.Shape())
	assert.Equal(t, []float64{5, 13, 0, 0.75}, y.Float64s(), "sum of the diagonal")

	dx, err := conv.Backward(tensor.Ones[p16](y.Shape()), rec)
	require.NoError(t, err)
	assert.Equal(t, []float64{5.5 / 4, 17.0 / 4, 19.0 / 4, 13.25 / 4}, conv.Weight().Grad().Float64s())
	assert.Equal(t, []float64{1}, conv.Bias().Grad().Float64s())

	require.Equal(t, x.Shape(), dx.Shape())
	for b := range 4 {
		assert.Equal(t, []float64{1, 0, 0, 1}, dx.Float64s()[4*b:4*b+4], "input gradient routes to the diagonal")
	}
}

func TestConv2dStridedBackwardShape(t *testing.T) {
	pol := nn.NewPolicy[p16, p16, p16](parallel.WithWorkers(2))
	cfg := nn.Conv2dConfig{InChannels: 2, OutChannels: 3, KernelSize: 3, Stride: 2, Padding: 1, Bias: true}
	conv, err := nn.NewConv2d(pol, cfg, rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	x := tensor.Ones[p16](tensor.Shape{2, 2, 6, 6})
	y, rec := conv.Forward(x)
	require.Equal(t, tensor.Shape{2, 3, 3, 3}, y.Shape())

	dx, err := conv.Backward(tensor.Ones[p16](y.Shape()), rec)
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), dx.Shape(), "leftover rows still receive a gradient slot")
	assert.Positive(t, pol.Windows.Len())
}

func TestConv2dConfigValidate(t *testing.T) {
	_, err := nn.NewConv2d(policy16(), nn.Conv2dConfig{InChannels: 1, OutChannels: 1, KernelSize: 3}, nil)
	require.Error(t, err, "zero stride")

	_, err = nn.NewConv2d(policy16(), nn.Conv2dConfig{InChannels: 1, OutChannels: 1, KernelSize: 3, Stride: 1, Padding: 3}, nil)
	require.Error(t, err, "padding as large as the kernel")

	conv, err := nn.NewConv2d(policy16(), nn.Conv2dConfig{InChannels: 1, OutChannels: 2, KernelSize: 1, Stride: 1}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Nil(t, conv.Bias())
	assert.Len(t, conv.Parameters(), 1)
}
