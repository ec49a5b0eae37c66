package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/tensor"
)

func TestMaxPool2dLayer(t *testing.T) {
	pool, err := nn.NewMaxPool2d(policy16(), nn.PoolConfig{KernelSize: 2})
	require.NoError(t, err)

	x := values[p16](tensor.Shape{1, 1, 2, 4}, 1, 5, 2, 2, 3, 0, 2, 1)
	y, rec := pool.Forward(x)
	assert.Equal(t, []float64{5, 2}, y.Float64s())
	assert.Nil(t, pool.Parameters())

	dx, err := pool.Backward(values[p16](y.Shape(), 7, 9), rec)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 7, 9, 0, 0, 0, 0, 0}, dx.Float64s(), "ties go to the first maximum")
}

func TestMaxPool2dLayerOverlapping(t *testing.T) {
	pool, err := nn.NewMaxPool2d(policy16(), nn.PoolConfig{KernelSize: 2, Stride: 1})
	require.NoError(t, err)

	// The centre is the maximum of all four windows.
	x := values[p16](tensor.Shape{1, 1, 3, 3}, 0, 0, 0, 0, 9, 0, 0, 0, 0)
	y, rec := pool.Forward(x)
	assert.Equal(t, []float64{9, 9, 9, 9}, y.Float64s())

	dx, err := pool.Backward(values[p16](y.Shape(), 1, 2, 3, 4), rec)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 10, 0, 0, 0, 0}, dx.Float64s())
}

func TestAvgPool2dLayer(t *testing.T) {
	pool, err := nn.NewAvgPool2d(policy16(), nn.PoolConfig{KernelSize: 2})
	require.NoError(t, err)

	x := values[p16](tensor.Shape{1, 1, 2, 4}, 1, 2, 3, 4, 5, 6, 7, 8)
	y, rec := pool.Forward(x)
	assert.Equal(t, []float64{3.5, 5.5}, y.Float64s())

	dx, err := pool.Backward(values[p16](y.Shape(), 4, 8), rec)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 2, 2, 1, 1, 2, 2}, dx.Float64s())

	_, err = nn.NewAvgPool2d(policy16(), nn.PoolConfig{KernelSize: 0})
	assert.Error(t, err)
}
