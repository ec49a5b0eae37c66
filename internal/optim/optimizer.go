// Package optim implements optimization algorithms for posit networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum, dampening, weight decay
//     and Nesterov look-ahead
//   - SGDMixed: SGD run at a higher precision than the model it updates
//   - Adam: Adaptive Moment Estimation
//
// Every update combines its terms with fused single-rounding operations and
// calls Parameter.Update afterwards, so forward and backward copies of a
// weight are fresh before the next forward pass.
//
// Example usage:
//
//	opt, err := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
//
//	for batch := range batches {
//	    opt.ZeroGrad()
//	    y, rec := model.Forward(batch.X)
//	    loss, _ := nn.CrossEntropy[F, B](y, batch.Y, nn.Mean)
//	    model.Backward(loss.Derivative(), rec)
//	    opt.Step()
//	}
package optim

import (
	"errors"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// ErrStateMismatch is returned when loaded optimizer state does not fit the
// parameters being optimized.
var ErrStateMismatch = errors.New("optim: state does not match parameters")

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update model parameters in place from the gradients accumulated
// in them by the backward pass.
type Optimizer interface {
	// Step applies one update to every parameter and refreshes its
	// lower-precision copies.
	Step()

	// ZeroGrad clears all parameter gradients.
	//
	// Gradients accumulate across backward passes, so this is called once
	// per batch.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64

	// SetLR changes the learning rate, e.g. for scheduling.
	SetLR(lr float64)
}

// stepAll runs update over every parameter index. Parameters are split across
// workers; the per-tensor kernels inside one update run serially.
func stepAll(n int, par parallel.Config, update func(i int, inner parallel.Config)) {
	inner := par
	if par.Enabled() && n > 1 {
		inner = parallel.Serial()
	}
	parallel.For(n, func(i int) { update(i, inner) }, par)
}

// copyGradients converts each source gradient into the matching destination
// gradient.
func copyGradients[From, To posit.Format](from []*nn.Parameter[From], to []*nn.Parameter[To]) {
	for i, p := range to {
		convertInto(p.Grad(), from[i].Grad())
	}
}

// copyWeights converts each source weight into the matching destination
// weight and refreshes the destination's views.
func copyWeights[From, To posit.Format](from []*nn.Parameter[From], to []*nn.Parameter[To]) {
	for i, p := range to {
		convertInto(p.Weight(), from[i].Weight())
		p.Update()
	}
}

func convertInto[To, From posit.Format](dst *tensor.Tensor[To], src *tensor.Tensor[From]) {
	d := dst.Data()
	for i, v := range src.Data() {
		d[i] = posit.Convert[To](v)
	}
}
