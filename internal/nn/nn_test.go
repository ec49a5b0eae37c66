package nn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

type (
	p8  = posit.P8E0
	p16 = posit.P16E1
	p32 = posit.P32E2
)

func policy16() nn.Policy[p16, p16, p16] {
	return nn.NewPolicy[p16, p16, p16](parallel.Serial())
}

func values[F posit.Format](shape tensor.Shape, vals ...float64) *tensor.Tensor[F] {
	return tensor.MustFromFloat64s[F](shape, vals...)
}

// setWeight overwrites a parameter and refreshes its views.
func setWeight(t *testing.T, p *nn.Parameter[p16], vals ...float64) {
	t.Helper()
	require.Equal(t, p.Weight().Size(), len(vals), "parameter %s", p)
	p.Weight().CopyFrom(values[p16](p.Weight().Shape(), vals...))
	p.Update()
}

func TestMixedTensorAliasing(t *testing.T) {
	shape := tensor.Shape{2, 2}

	same := nn.NewMixedTensor[p16, p16, p16](shape)
	assert.Equal(t, nn.Aliased, same.ForwardKind())
	assert.Equal(t, nn.Aliased, same.BackwardKind())
	assert.Same(t, same.Optimizer(), same.Forward())
	assert.Same(t, same.Optimizer(), same.Backward())

	lowForward := nn.NewMixedTensor[p16, p8, p8](shape)
	assert.Equal(t, nn.Owned, lowForward.ForwardKind())
	assert.Equal(t, nn.Aliased, lowForward.BackwardKind())
	assert.Same(t, lowForward.Forward(), lowForward.Backward(), "backward shares the forward copy")

	backToOpt := nn.NewMixedTensor[p16, p8, p16](shape)
	assert.Equal(t, nn.Owned, backToOpt.ForwardKind())
	assert.Equal(t, nn.Aliased, backToOpt.BackwardKind())
	assert.Same(t, backToOpt.Optimizer(), backToOpt.Backward())

	distinct := nn.NewMixedTensor[p32, p8, p16](shape)
	assert.Equal(t, nn.Owned, distinct.ForwardKind())
	assert.Equal(t, nn.Owned, distinct.BackwardKind())
}

func TestMixedTensorSync(t *testing.T) {
	m := nn.NewMixedTensor[p32, p8, p16](tensor.Shape{3})
	m.Optimizer().CopyFrom(values[p32](tensor.Shape{3}, 0.3, -1.7, 100))

	assert.Equal(t, []float64{0, 0, 0}, m.Forward().Float64s(), "views are stale before Sync")
	m.Sync()

	for i, v := range m.Optimizer().Data() {
		assert.Equal(t, posit.Convert[p8](v), m.Forward().At(i))
		assert.Equal(t, posit.Convert[p16](v), m.Backward().At(i))
	}
}

func TestParameterGradientAccumulates(t *testing.T) {
	p := nn.NewMixedParameter("w", nn.NewMixedTensor[p16, p8, p8](tensor.Shape{2}))
	nn.Accumulate(p, values[p8](tensor.Shape{2}, 1, 2))
	nn.Accumulate(p, values[p8](tensor.Shape{2}, 0.5, -4))
	assert.Equal(t, []float64{1.5, -2}, p.Grad().Float64s())
	assert.True(t, p.Grad().Shape().Equal(p.Weight().Shape()))

	p.ZeroGrad()
	assert.Equal(t, []float64{0, 0}, p.Grad().Float64s())

	assert.Panics(t, func() { nn.Accumulate(p, values[p8](tensor.Shape{3}, 1, 2, 3)) })
}

func TestRecordSingleUse(t *testing.T) {
	pol := policy16()
	rng := rand.New(rand.NewSource(1))
	a := nn.NewLinear(pol, 2, 2, rng)
	b := nn.NewLinear(pol, 2, 2, rng)

	x := values[p16](tensor.Shape{1, 2}, 1, 2)
	y, rec := a.Forward(x)
	delta := tensor.Ones[p16](y.Shape())

	_, err := b.Backward(delta, rec)
	require.ErrorIs(t, err, nn.ErrRecordMismatch)
	assert.False(t, rec.Consumed(), "a rejected record stays usable")

	_, err = a.Backward(delta, nil)
	require.ErrorIs(t, err, nn.ErrRecordMismatch)

	_, err = a.Backward(delta, rec)
	require.NoError(t, err)
	assert.True(t, rec.Consumed())

	_, err = a.Backward(delta, rec)
	require.ErrorIs(t, err, nn.ErrRecordConsumed)
}

func TestLinear(t *testing.T) {
	l := nn.NewLinear(policy16(), 2, 3, rand.New(rand.NewSource(1)))
	setWeight(t, l.Weight(), 1, 0, 0, 1, 1, 1)
	setWeight(t, l.Bias(), 10, 20, 30)

	x := values[p16](tensor.Shape{2, 2}, 1, 2, 3, 4)
	y, rec := l.Forward(x)
	assert.Equal(t, []float64{11, 22, 33, 13, 24, 37}, y.Float64s())

	dx, err := l.Backward(tensor.Ones[p16](y.Shape()), rec)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2, 2}, dx.Float64s())
	assert.Equal(t, []float64{2, 3, 2, 3, 2, 3}, l.Weight().Grad().Float64s(), "deltaᵗ·x / batch")
	assert.Equal(t, []float64{1, 1, 1}, l.Bias().Grad().Float64s())

	// A second pass accumulates.
	_, rec = l.Forward(x)
	_, err = l.Backward(tensor.Ones[p16](y.Shape()), rec)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2}, l.Bias().Grad().Float64s())

	assert.Panics(t, func() { l.Forward(values[p16](tensor.Shape{1, 3}, 1, 2, 3)) })
}

func TestLinearInitBounds(t *testing.T) {
	l := nn.NewLinear(policy16(), 16, 4, rand.New(rand.NewSource(3)))
	// kaiming_uniform(a=√5) reduces to U(±1/sqrt(fan_in)).
	bound := 1.0 / 4
	for _, v := range l.Weight().Weight().Float64s() {
		assert.LessOrEqual(t, v, bound+1e-3)
		assert.GreaterOrEqual(t, v, -bound-1e-3)
	}
	for _, v := range l.Bias().Weight().Float64s() {
		assert.LessOrEqual(t, v, bound+1e-3)
		assert.GreaterOrEqual(t, v, -bound-1e-3)
	}
}

func TestNilRandFallsBackToDefaultSeed(t *testing.T) {
	var l *nn.Linear[p16, p16, p16]
	require.NotPanics(t, func() { l = nn.NewLinear(policy16(), 6, 3, nil) })
	seeded := nn.NewLinear(policy16(), 6, 3, rand.New(rand.NewSource(nn.DefaultSeed)))
	assert.Equal(t, seeded.Weight().Weight().Float64s(), l.Weight().Weight().Float64s())
	assert.Equal(t, seeded.Bias().Weight().Float64s(), l.Bias().Weight().Float64s())

	c, err := nn.NewConv2d(policy16(), nn.DefaultConv2dConfig(1, 2, 2), nil)
	require.NoError(t, err)
	ref, err := nn.NewConv2d(policy16(), nn.DefaultConv2dConfig(1, 2, 2), rand.New(rand.NewSource(nn.DefaultSeed)))
	require.NoError(t, err)
	assert.Equal(t, ref.Weight().Weight().Float64s(), c.Weight().Weight().Float64s())
}

func TestFans(t *testing.T) {
	in, out := nn.Fans(tensor.Shape{8, 3, 5, 5})
	assert.Equal(t, 75, in)
	assert.Equal(t, 200, out)

	in, out = nn.Fans(tensor.Shape{10, 4})
	assert.Equal(t, 4, in)
	assert.Equal(t, 10, out)
}

func TestSequential(t *testing.T) {
	pol := policy16()
	rng := rand.New(rand.NewSource(5))
	drop, err := nn.NewDropout(pol, nn.DropoutConfig{P: 0.5, Seed: 1})
	require.NoError(t, err)
	bn, err := nn.NewBatchNorm1d(pol, nn.DefaultBatchNormConfig(4))
	require.NoError(t, err)

	model := nn.NewSequential[p16, p16, p16](
		nn.NewLinear(pol, 3, 4, rng),
		bn,
		nn.NewReLU(pol),
		drop,
		nn.NewLinear(pol, 4, 2, rng),
	)
	assert.Equal(t, 5, model.Len())
	assert.Len(t, model.Parameters(), 6)

	model.Eval()
	assert.False(t, drop.Training())
	model.Train()
	assert.True(t, drop.Training())

	named := nn.NamedState[p16, p16, p16](model)
	names := make([]string, len(named))
	for i, nt := range named {
		names[i] = nt.Name
	}
	assert.Equal(t, []string{
		"0.weight", "0.bias",
		"1.gamma", "1.beta", "1.running_mean", "1.running_var",
		"4.weight", "4.bias",
	}, names)
	assert.Len(t, nn.State[p16, p16, p16](model), len(named))

	x := values[p16](tensor.Shape{2, 3}, 1, -1, 0.5, 2, 0, -0.5)
	y, rec := model.Forward(x)
	require.Equal(t, tensor.Shape{2, 2}, y.Shape())

	dx, err := model.Backward(tensor.Ones[p16](y.Shape()), rec)
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), dx.Shape())

	_, err = model.Backward(tensor.Ones[p16](y.Shape()), rec)
	assert.ErrorIs(t, err, nn.ErrRecordConsumed)
}

func TestZeroGradAndSync(t *testing.T) {
	pol := nn.NewPolicy[p16, p8, p8](parallel.Serial())
	l := nn.NewLinear(pol, 2, 2, rand.New(rand.NewSource(1)))
	params := l.Parameters()

	nn.Accumulate(params[0], values[p8](tensor.Shape{4}, 1, 1, 1, 1))
	nn.ZeroGrad(params)
	assert.Equal(t, []float64{0, 0, 0, 0}, params[0].Grad().Float64s())

	params[1].Weight().Fill(posit.FromFloat64[p16](0.75))
	nn.Sync(params)
	x := tensor.Zeros[p8](tensor.Shape{1, 2})
	y, _ := l.Forward(x)
	assert.Equal(t, []float64{0.75, 0.75}, y.Float64s(), "forward sees the synced bias")
}

func TestPolicyPrecision(t *testing.T) {
	pol := nn.NewPolicy[p32, p8, p16](parallel.Serial())
	prec := pol.Precision()
	assert.Equal(t, posit.Config{NBits: 32, ES: 2}, prec.Optimizer)
	assert.Equal(t, posit.Config{NBits: 8, ES: 0}, prec.Forward)
	assert.Equal(t, posit.Config{NBits: 16, ES: 1}, prec.Backward)
	assert.Equal(t, "opt=posit<32,2> fwd=posit<8,0> bwd=posit<16,1>", prec.String())
	assert.NotNil(t, pol.Windows)
}
