// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides posit neural network layers and losses.
//
// # Overview
//
// This package contains:
//   - Layers: Linear, Conv2d, MaxPool2d, AvgPool2d, Dropout, BatchNorm1d
//   - Activations: ReLU, Sigmoid, Tanh, LogSoftmax
//   - Loss functions: CrossEntropy, MSE, NLL
//   - Utilities: Sequential, Module interface, Parameter, Policy
//
// # Precision
//
// Every layer takes three posit formats: O for the weights the optimizer
// updates, F for the forward pass and B for the backward pass. A Policy fixes
// them once for a whole model:
//
//	pol := nn.NewPolicy[posit.P16E1, posit.P8E0, posit.P8E0](parallel.Serial())
//	rng := rand.New(rand.NewSource(1))
//	model := nn.NewSequential[posit.P16E1, posit.P8E0, posit.P8E0](
//	    nn.NewLinear(pol, 784, 128, rng),
//	    nn.NewReLU(pol),
//	    nn.NewLinear(pol, 128, 10, rng),
//	)
//
// # Forward and Backward
//
// There is no autograd. Forward returns the output and a Record; Backward
// consumes that Record exactly once:
//
//	logits, rec := model.Forward(x)
//	loss, err := nn.CrossEntropy[posit.P8E0, posit.P8E0](logits, labels, nn.Mean)
//	_, err = model.Backward(loss.Derivative(), rec)
//
// Gradients accumulate into each Parameter until ZeroGrad.
package nn
