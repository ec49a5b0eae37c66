package optim

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/born-ml/positnn/internal/kernel"
	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR          float64 // Learning rate (default: 0.01)
	Momentum    float64 // Momentum factor (default: 0)
	Dampening   float64 // Dampening for momentum, in [0, 1] (default: 0)
	WeightDecay float64 // L2 penalty (default: 0)
	Nesterov    bool    // Nesterov look-ahead; needs momentum and no dampening

	// Parallel splits Step across parameters.
	Parallel parallel.Config
}

// DefaultSGDConfig returns plain SGD with lr = 0.01.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{LR: 0.01}
}

// Validate reports hyperparameters SGD cannot run with.
func (c SGDConfig) Validate() error {
	switch {
	case c.LR < 0:
		return fmt.Errorf("optim: learning rate must not be negative, got %g", c.LR)
	case c.Momentum < 0:
		return fmt.Errorf("optim: momentum must not be negative, got %g", c.Momentum)
	case c.Dampening < 0 || c.Dampening > 1:
		return fmt.Errorf("optim: dampening must lie in [0, 1], got %g", c.Dampening)
	case c.WeightDecay < 0:
		return fmt.Errorf("optim: weight decay must not be negative, got %g", c.WeightDecay)
	case c.Nesterov && (c.Momentum == 0 || c.Dampening != 0):
		return fmt.Errorf("optim: nesterov needs momentum > 0 and zero dampening")
	}
	return nil
}

// SGD implements Stochastic Gradient Descent with optional weight decay,
// momentum, dampening and Nesterov look-ahead, all at the optimizer precision
// O of the parameters.
//
// For each parameter with gradient g and weight w:
//
//	g = w*decay + g                        (weight decay)
//	v = g                                  (first step)
//	v = v*momentum + g*(1-dampening)       (later steps)
//	g = v*momentum + g  or  g = v          (Nesterov or not)
//	w = g*(-lr) + w
//
// Every line rounds once. Step finishes each parameter with Update so the
// forward and backward copies follow the new weight.
//
// Example:
//
//	opt, err := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD[O posit.Format] struct {
	params []*nn.Parameter[O]
	config SGDConfig

	lr, momentum, dampening, decay posit.Posit[O]

	velocities []*tensor.Tensor[O] // nil until the first momentum step
}

// NewSGD creates a new SGD optimizer. A zero LR selects the default.
func NewSGD[O posit.Format](params []*nn.Parameter[O], config SGDConfig) (*SGD[O], error) {
	if config.LR == 0 {
		config.LR = DefaultSGDConfig().LR
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &SGD[O]{
		params:     params,
		config:     config,
		lr:         posit.FromFloat64[O](config.LR),
		momentum:   posit.FromFloat64[O](config.Momentum),
		dampening:  posit.FromFloat64[O](config.Dampening),
		decay:      posit.FromFloat64[O](config.WeightDecay),
		velocities: make([]*tensor.Tensor[O], len(params)),
	}
	log.Debug().
		Str("optimizer", "sgd").
		Stringer("posit", posit.ConfigOf[O]()).
		Int("params", len(params)).
		Float64("lr", config.LR).
		Float64("momentum", config.Momentum).
		Bool("nesterov", config.Nesterov).
		Msg("optimizer created")
	return s, nil
}

// Step performs a single optimization step.
func (s *SGD[O]) Step() {
	stepAll(len(s.params), s.config.Parallel, s.update)
}

func (s *SGD[O]) update(i int, par parallel.Config) {
	p := s.params[i]
	w := p.Weight()
	dw := p.Grad().Clone()

	if !s.decay.IsZero() {
		kernel.FusedInto(w, dw, dw, s.decay, par)
	}

	if !s.momentum.IsZero() {
		v := s.velocities[i]
		switch {
		case v == nil:
			v = dw.Clone()
			s.velocities[i] = v
		case !s.dampening.IsZero():
			kernel.Fused(v, dw, s.momentum, posit.One[O]().Sub(s.dampening), par)
		default:
			kernel.FusedInto(v, dw, v, s.momentum, par)
		}

		if s.config.Nesterov {
			kernel.FusedInto(v, dw, dw, s.momentum, par)
		} else {
			dw = v
		}
	}

	kernel.FusedInto(dw, w, w, s.lr.Neg(), par)
	p.Update()
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[O]) ZeroGrad() {
	nn.ZeroGrad(s.params)
}

// GetLR returns the current learning rate.
func (s *SGD[O]) GetLR() float64 {
	return s.config.LR
}

// SetLR updates the learning rate.
//
// Useful for learning rate scheduling during training.
func (s *SGD[O]) SetLR(lr float64) {
	s.config.LR = lr
	s.lr = posit.FromFloat64[O](lr)
}

// Config returns the configuration in effect.
func (s *SGD[O]) Config() SGDConfig {
	return s.config
}

// StateDict returns the velocity buffers for serialization.
//
// Without momentum, or before the first step, the map is empty.
//
// State keys: "velocity.{param_index}" -> velocity tensor.
func (s *SGD[O]) StateDict() map[string]*tensor.Tensor[O] {
	state := make(map[string]*tensor.Tensor[O])
	for i, v := range s.velocities {
		if v != nil {
			state[fmt.Sprintf("velocity.%d", i)] = v.Clone()
		}
	}
	return state
}

// LoadStateDict restores velocity buffers. Parameters without an entry start
// over with their next gradient.
//
// Returns ErrStateMismatch if a velocity shape differs from its parameter.
func (s *SGD[O]) LoadStateDict(state map[string]*tensor.Tensor[O]) error {
	velocities := make([]*tensor.Tensor[O], len(s.params))
	for i, p := range s.params {
		v, ok := state[fmt.Sprintf("velocity.%d", i)]
		if !ok {
			continue
		}
		if !v.Shape().Equal(p.Weight().Shape()) {
			return fmt.Errorf("%w: velocity %d has shape %v, parameter %s has %v",
				ErrStateMismatch, i, v.Shape(), p.Name(), p.Weight().Shape())
		}
		velocities[i] = v.Clone()
	}
	s.velocities = velocities
	return nil
}
