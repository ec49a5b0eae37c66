// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for posit networks.
//
// # Overview
//
// This package contains:
//   - SGD: Stochastic Gradient Descent with momentum, dampening, weight decay
//     and Nesterov momentum
//   - SGDMixed: SGD over a higher-precision master copy of the model
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Optimizer interface for custom optimizers
//
// # Basic Usage
//
//	opt, err := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
//	if err != nil {
//	    return err
//	}
//
//	for _, batch := range batches {
//	    opt.ZeroGrad()
//	    // forward, loss, backward
//	    opt.Step()
//	}
package optim

import (
	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/optim"
	"github.com/born-ml/positnn/internal/posit"
)

// Optimizer is implemented by every optimizer.
type Optimizer = optim.Optimizer

// ErrStateMismatch is returned when parameter lists or saved state do not
// line up.
var ErrStateMismatch = optim.ErrStateMismatch

// SGD is stochastic gradient descent at the optimizer precision.
type SGD[O posit.Format] = optim.SGD[O]

// SGDConfig configures SGD.
type SGDConfig = optim.SGDConfig

// DefaultSGDConfig returns plain SGD with learning rate 0.01.
func DefaultSGDConfig() SGDConfig { return optim.DefaultSGDConfig() }

// NewSGD creates an SGD optimizer over params.
func NewSGD[O posit.Format](params []*nn.Parameter[O], config SGDConfig) (*SGD[O], error) {
	return optim.NewSGD(params, config)
}

// SGDMixed runs SGD on a master copy at format O and writes the result back
// into model parameters at format M.
type SGDMixed[M, O posit.Format] = optim.SGDMixed[M, O]

// NewSGDMixed pairs model parameters with master parameters of the same
// architecture.
//
// Example:
//
//	model := buildModel[posit.P8E0]()
//	master := buildModel[posit.P16E1]()
//	opt, err := optim.NewSGDMixed(model.Parameters(), master.Parameters(), optim.SGDConfig{LR: 0.1})
func NewSGDMixed[M, O posit.Format](model []*nn.Parameter[M], opt []*nn.Parameter[O], config SGDConfig) (*SGDMixed[M, O], error) {
	return optim.NewSGDMixed(model, opt, config)
}

// Adam is the Adam optimizer at the optimizer precision.
type Adam[O posit.Format] = optim.Adam[O]

// AdamConfig configures Adam.
type AdamConfig = optim.AdamConfig

// NewAdam creates an Adam optimizer over params.
func NewAdam[O posit.Format](params []*nn.Parameter[O], config AdamConfig) (*Adam[O], error) {
	return optim.NewAdam(params, config)
}
