// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/positnn/nn"
	"github.com/born-ml/positnn/optim"
	"github.com/born-ml/positnn/posit"
	"github.com/born-ml/positnn/tensor"
)

type (
	opt = posit.P16E1
	low = posit.P8E0
)

func policy() nn.Policy[opt, low, low] {
	return nn.NewPolicy[opt, low, low](nn.ParallelConfig{Workers: 1})
}

// TestModuleInterface verifies that concrete types implement Module interface.
func TestModuleInterface(t *testing.T) {
	pol := policy()
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name   string
		module nn.Module[opt, low, low]
		params int
	}{
		{"Linear", nn.NewLinear(pol, 4, 3, rng), 2},
		{"ReLU", nn.NewReLU(pol), 0},
		{"Sequential", nn.NewSequential[opt, low, low](
			nn.NewLinear(pol, 4, 3, rng),
			nn.NewTanh(pol),
			nn.NewLinear(pol, 3, 2, rng),
		), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := tensor.MustFromFloat64s[low](tensor.Shape{2, 4}, 0.5, -1, 0.25, 2, 1, 0, -0.5, 0.75)
			y, rec := tt.module.Forward(x)
			require.NotNil(t, rec)
			assert.Equal(t, 2, y.Shape()[0])

			assert.Len(t, tt.module.Parameters(), tt.params)
			assert.True(t, tt.module.Training())
			tt.module.Eval()
			assert.False(t, tt.module.Training())
		})
	}
}

func TestTrainingLoop(t *testing.T) {
	pol := policy()
	rng := rand.New(rand.NewSource(3))
	model := nn.NewSequential[opt, low, low](
		nn.NewLinear(pol, 2, 4, rng),
		nn.NewReLU(pol),
		nn.NewLinear(pol, 4, 2, rng),
	)
	sgd, err := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.1, Momentum: 0.5})
	require.NoError(t, err)

	x := tensor.MustFromFloat64s[low](tensor.Shape{4, 2},
		1, 0.5,
		0.75, 1,
		-1, -0.5,
		-0.5, -1,
	)
	labels := tensor.Labels(0, 0, 1, 1)

	var first, last float64
	for i := range 30 {
		sgd.ZeroGrad()
		logits, rec := model.Forward(x)
		loss, err := nn.CrossEntropy[low, low](logits, labels, nn.Mean)
		require.NoError(t, err)
		_, err = model.Backward(loss.Derivative(), rec)
		require.NoError(t, err)
		sgd.Step()

		if i == 0 {
			first = loss.Value()
		}
		last = loss.Value()
	}
	assert.Less(t, last, first)
	assert.Equal(t, "opt=posit<16,1> fwd=posit<8,0> bwd=posit<8,0>", pol.Precision().String())
	assert.Len(t, nn.NamedState[opt, low, low](model), 4)
}
