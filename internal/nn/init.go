package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// FanMode selects which fan KaimingUniform scales by.
type FanMode uint8

const (
	// FanIn preserves the magnitude of activations in the forward pass.
	FanIn FanMode = iota
	// FanOut preserves the magnitude of gradients in the backward pass.
	FanOut
)

// Fans returns the fan-in and fan-out of a weight tensor: shape[1] and
// shape[0] times the receptive field size (the product of the remaining
// axes).
func Fans(shape tensor.Shape) (fanIn, fanOut int) {
	if len(shape) < 2 {
		return shape.NumElements(), shape.NumElements()
	}
	receptive := 1
	for _, d := range shape[2:] {
		receptive *= d
	}
	return shape[1] * receptive, shape[0] * receptive
}

// LeakyReLUGain returns the recommended gain sqrt(2/(1+a²)) for a leaky ReLU
// with negative slope a.
func LeakyReLUGain(a float64) float64 {
	return math.Sqrt(2 / (1 + a*a))
}

// Uniform fills t with values drawn from U(lo, hi), each rounded to the
// nearest posit.
func Uniform[T posit.Format](t *tensor.Tensor[T], lo, hi float64, rng *rand.Rand) {
	data := t.Data()
	for i := range data {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		data[i] = posit.FromFloat64[T](lo + (hi-lo)*rng.Float64())
	}
}

// KaimingUniform fills t with U(-bound, bound) where
// bound = sqrt(3) * gain / sqrt(fan) and gain = LeakyReLUGain(a).
func KaimingUniform[T posit.Format](t *tensor.Tensor[T], a float64, mode FanMode, rng *rand.Rand) {
	fanIn, fanOut := Fans(t.Shape())
	fan := fanIn
	if mode == FanOut {
		fan = fanOut
	}
	bound := math.Sqrt(3) * LeakyReLUGain(a) / math.Sqrt(float64(fan))
	Uniform(t, -bound, bound, rng)
}

// DefaultSeed seeds the initializer of Linear and Conv2d when no generator is
// given.
const DefaultSeed = 1

// resetAffine applies the default initialization of Linear and Conv2d:
// kaiming-uniform weights with a = sqrt(5) and a bias drawn from
// U(-1/sqrt(fan_in), 1/sqrt(fan_in)). A nil rng falls back to a generator
// seeded with DefaultSeed.
func resetAffine[T posit.Format](weight, bias *tensor.Tensor[T], rng *rand.Rand) {
	if rng == nil {
		rng = rand.New(rand.NewSource(DefaultSeed)) //nolint:gosec // weight initialization
	}
	KaimingUniform(weight, math.Sqrt(5), FanIn, rng)
	if bias != nil {
		fanIn, _ := Fans(weight.Shape())
		bound := 1 / math.Sqrt(float64(fanIn))
		Uniform(bias, -bound, bound, rng)
	}
}

// divideBatch divides a freshly computed gradient by the batch size when the
// batch holds more than one sample.
func divideBatch[T posit.Format](g *tensor.Tensor[T], batch int) {
	if batch > 1 {
		g.DivScalarAssign(posit.FromInt[T](batch))
	}
}
