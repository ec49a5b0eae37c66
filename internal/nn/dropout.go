package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// DropoutConfig holds the configuration of a Dropout layer.
type DropoutConfig struct {
	P    float64 // Probability of zeroing an element, in [0, 1].
	Seed int64   // Seed of the mask generator.
}

// DefaultDropoutConfig returns p = 0.5.
func DefaultDropoutConfig() DropoutConfig {
	return DropoutConfig{P: 0.5, Seed: 1}
}

// Validate reports a probability outside [0, 1].
func (c DropoutConfig) Validate() error {
	if c.P < 0 || c.P > 1 {
		return fmt.Errorf("nn: dropout probability must lie in [0, 1], got %g", c.P)
	}
	return nil
}

// Dropout zeroes each element with probability p during training and scales
// the survivors by 1/(1-p). In evaluation mode it is the identity.
//
// The mask drawn by Forward travels in the record and is replayed by
// Backward. UseMask fixes the mask instead of sampling it.
type Dropout[O, F, B posit.Format] struct {
	mode
	policy Policy[O, F, B]
	p      float64
	rng    *rand.Rand
	preset []bool
}

type dropoutState struct {
	mask []bool // nil in evaluation mode
}

// NewDropout creates a Dropout layer.
func NewDropout[O, F, B posit.Format](pol Policy[O, F, B], cfg DropoutConfig) (*Dropout[O, F, B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dropout[O, F, B]{
		mode:   mode{training: true},
		policy: pol,
		p:      cfg.P,
		//nolint:gosec // Dropout masks are not security-critical
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// UseMask makes every following training Forward use mask, where true means
// dropped. Passing nil returns to sampling.
func (d *Dropout[O, F, B]) UseMask(mask []bool) {
	d.preset = append([]bool(nil), mask...)
}

// P returns the drop probability.
func (d *Dropout[O, F, B]) P() float64 { return d.p }

// Forward drops and rescales in training mode and passes x through otherwise.
func (d *Dropout[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	if !d.training {
		return x.Clone(), newRecord(d, dropoutState{})
	}

	var mask []bool
	if d.preset != nil {
		if len(d.preset) != x.Size() {
			panic(fmt.Sprintf("Dropout.Forward: preset mask has %d entries for input %v", len(d.preset), x.Shape()))
		}
		mask = d.preset
	} else {
		mask = make([]bool, x.Size())
		for i := range mask {
			mask[i] = d.rng.Float64() < d.p
		}
	}
	return applyMask(x, mask, d.p, d.policy.Parallel), newRecord(d, dropoutState{mask: mask})
}

// Backward replays the forward mask on delta.
func (d *Dropout[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	st, err := take[dropoutState](rec, d)
	if err != nil {
		return nil, fmt.Errorf("Dropout.Backward: %w", err)
	}
	if st.mask == nil {
		return delta.Clone(), nil
	}
	if delta.Size() != len(st.mask) {
		return nil, fmt.Errorf("Dropout.Backward: %w: delta %v for %d inputs", ErrShapeMismatch, delta.Shape(), len(st.mask))
	}
	return applyMask(delta, st.mask, d.p, d.policy.Parallel), nil
}

// Parameters returns nil.
func (d *Dropout[O, F, B]) Parameters() []*Parameter[O] { return nil }

func applyMask[T posit.Format](x *tensor.Tensor[T], mask []bool, p float64, par parallel.Config) *tensor.Tensor[T] {
	y := x.Clone()
	data := y.Data()
	var scale posit.Posit[T]
	if p < 1 {
		one := posit.One[T]()
		scale = one.Div(one.Sub(posit.FromFloat64[T](p)))
	}
	parallel.ForRange(len(data), func(begin, end int) {
		for i := begin; i < end; i++ {
			if mask[i] {
				data[i] = posit.Zero[T]()
			} else {
				data[i] = data[i].Mul(scale)
			}
		}
	}, par)
	return y
}
