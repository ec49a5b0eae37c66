package nn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/tensor"
)

func TestFlattenLayer(t *testing.T) {
	f := nn.NewFlatten(policy16())

	x := values[p16](tensor.Shape{2, 1, 2, 2}, 1, 2, 3, 4, 5, 6, 7, 8)
	y, rec := f.Forward(x)
	assert.Equal(t, tensor.Shape{2, 4}, y.Shape())
	assert.Equal(t, x.Float64s(), y.Float64s())
	assert.Equal(t, tensor.Shape{2, 1, 2, 2}, x.Shape(), "input keeps its shape")
	assert.Nil(t, f.Parameters())

	dx, err := f.Backward(values[p16](tensor.Shape{2, 4}, 8, 7, 6, 5, 4, 3, 2, 1), rec)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 1, 2, 2}, dx.Shape())
	assert.Equal(t, []float64{8, 7, 6, 5, 4, 3, 2, 1}, dx.Float64s())

	_, rec = f.Forward(x)
	_, err = f.Backward(values[p16](tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6), rec)
	assert.ErrorIs(t, err, nn.ErrShapeMismatch)
}

func TestFlattenInSequential(t *testing.T) {
	pol := policy16()
	conv, err := nn.NewConv2d(pol, nn.DefaultConv2dConfig(1, 2, 2), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	lin := nn.NewLinear(pol, 2*2*2, 3, rand.New(rand.NewSource(2)))
	model := nn.NewSequential[p16, p16, p16](conv, nn.NewFlatten(pol), lin)

	x := tensor.Ones[p16](tensor.Shape{4, 1, 3, 3})
	y, rec := model.Forward(x)
	assert.Equal(t, tensor.Shape{4, 3}, y.Shape())

	dx, err := model.Backward(tensor.Ones[p16](y.Shape()), rec)
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), dx.Shape())
}
