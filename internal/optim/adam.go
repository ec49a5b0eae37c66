package optim

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 0.001)
	Betas [2]float64 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-8)

	// Parallel splits Step across parameters.
	Parallel parallel.Config
}

// Adam implements the Adam (Adaptive Moment Estimation) optimizer at the
// optimizer precision O.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)   // Parameter update
//
// Both moment updates and the final parameter update round once per element.
// Eps never vanishes: posits round tiny values to minpos, not zero.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam[O posit.Format] struct {
	params []*nn.Parameter[O]
	config AdamConfig
	t      int // Timestep for bias correction

	m []*tensor.Tensor[O] // First moment estimates
	v []*tensor.Tensor[O] // Second moment estimates
}

// NewAdam creates a new Adam optimizer, filling zero hyperparameters with
// their defaults.
func NewAdam[O posit.Format](params []*nn.Parameter[O], config AdamConfig) (*Adam[O], error) {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	for _, b := range config.Betas {
		if b < 0 || b >= 1 {
			return nil, fmt.Errorf("optim: adam betas must lie in [0, 1), got %v", config.Betas)
		}
	}
	if config.LR < 0 {
		return nil, fmt.Errorf("optim: learning rate must not be negative, got %g", config.LR)
	}

	a := &Adam[O]{
		params: params,
		config: config,
		m:      make([]*tensor.Tensor[O], len(params)),
		v:      make([]*tensor.Tensor[O], len(params)),
	}
	for i, p := range params {
		a.m[i] = tensor.Zeros[O](p.Weight().Shape())
		a.v[i] = tensor.Zeros[O](p.Weight().Shape())
	}
	log.Debug().
		Str("optimizer", "adam").
		Stringer("posit", posit.ConfigOf[O]()).
		Int("params", len(params)).
		Float64("lr", config.LR).
		Msg("optimizer created")
	return a, nil
}

// Step performs a single optimization step.
func (a *Adam[O]) Step() {
	a.t++
	c := a.config
	c1 := posit.FromFloat64[O](1 / (1 - math.Pow(c.Betas[0], float64(a.t))))
	c2 := posit.FromFloat64[O](1 / (1 - math.Pow(c.Betas[1], float64(a.t))))
	b1 := posit.FromFloat64[O](c.Betas[0])
	b2 := posit.FromFloat64[O](c.Betas[1])
	one := posit.One[O]()
	k1, k2 := one.Sub(b1), one.Sub(b2)
	eps := posit.FromFloat64[O](c.Eps)
	negLR := posit.FromFloat64[O](-c.LR)

	stepAll(len(a.params), c.Parallel, func(i int, par parallel.Config) {
		p := a.params[i]
		g, w := p.Grad().Data(), p.Weight().Data()
		m, v := a.m[i].Data(), a.v[i].Data()
		parallel.ForRange(len(w), func(begin, end int) {
			var q posit.Quire[O]
			for j := begin; j < end; j++ {
				q.Reset()
				q.AddProduct(b1, m[j])
				q.AddProduct(k1, g[j])
				m[j] = q.Posit()

				q.Reset()
				q.AddProduct(b2, v[j])
				q.AddProduct(k2, g[j].Mul(g[j]))
				v[j] = q.Posit()

				mHat := m[j].Mul(c1)
				den := v[j].Mul(c2).Sqrt().Add(eps)
				w[j] = posit.FMA(mHat.Div(den), negLR, w[j])
			}
		}, par)
		p.Update()
	})
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[O]) ZeroGrad() {
	nn.ZeroGrad(a.params)
}

// GetLR returns the current learning rate.
func (a *Adam[O]) GetLR() float64 {
	return a.config.LR
}

// SetLR updates the learning rate.
//
// Useful for learning rate scheduling during training.
func (a *Adam[O]) SetLR(lr float64) {
	a.config.LR = lr
}

// GetTimestep returns the current timestep.
//
// Useful for monitoring optimizer state.
func (a *Adam[O]) GetTimestep() int {
	return a.t
}
