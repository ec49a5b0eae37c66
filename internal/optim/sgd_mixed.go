package optim

import (
	"fmt"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/posit"
)

// SGDMixed runs SGD on a separate copy of the parameters held at optimizer
// precision O while the model itself is stored at precision M.
//
// Step converts the model gradients to O, applies the SGD rule there and
// converts the updated weights back into the model, refreshing its views.
// The O copy keeps the small updates that would vanish if they were rounded
// into M directly.
type SGDMixed[M, O posit.Format] struct {
	model []*nn.Parameter[M]
	opt   []*nn.Parameter[O]
	sgd   *SGD[O]
}

// NewSGDMixed pairs model parameters with optimizer-precision copies. The two
// lists must match one to one in shape. The copies are initialized from the
// model weights.
func NewSGDMixed[M, O posit.Format](model []*nn.Parameter[M], opt []*nn.Parameter[O], config SGDConfig) (*SGDMixed[M, O], error) {
	if len(model) != len(opt) {
		return nil, fmt.Errorf("%w: %d model parameters, %d optimizer parameters", ErrStateMismatch, len(model), len(opt))
	}
	for i, p := range model {
		if !p.Weight().Shape().Equal(opt[i].Weight().Shape()) {
			return nil, fmt.Errorf("%w: parameter %d (%s) has shape %v in the model and %v in the optimizer",
				ErrStateMismatch, i, p.Name(), p.Weight().Shape(), opt[i].Weight().Shape())
		}
	}
	sgd, err := NewSGD(opt, config)
	if err != nil {
		return nil, err
	}
	copyWeights(model, opt)
	return &SGDMixed[M, O]{model: model, opt: opt, sgd: sgd}, nil
}

// Step copies gradients to the optimizer copy, updates it and copies the
// weights back into the model.
func (s *SGDMixed[M, O]) Step() {
	copyGradients(s.model, s.opt)
	s.sgd.Step()
	copyWeights(s.opt, s.model)
}

// ZeroGrad clears the model gradients.
func (s *SGDMixed[M, O]) ZeroGrad() {
	nn.ZeroGrad(s.model)
}

// GetLR returns the current learning rate.
func (s *SGDMixed[M, O]) GetLR() float64 { return s.sgd.GetLR() }

// SetLR updates the learning rate.
func (s *SGDMixed[M, O]) SetLR(lr float64) { s.sgd.SetLR(lr) }

// SGD returns the optimizer running at precision O.
func (s *SGDMixed[M, O]) SGD() *SGD[O] { return s.sgd }
