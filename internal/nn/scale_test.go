package nn_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

func floats[F posit.Format](ps []posit.Posit[F]) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = p.Float64()
	}
	return out
}

func assertRelative(t *testing.T, want, got []float64, eps float64, msg string) {
	t.Helper()
	require.Len(t, got, len(want), msg)
	for i := range want {
		assert.InDelta(t, want[i], got[i], eps*math.Max(1, math.Abs(want[i])), "%s[%d]", msg, i)
	}
}

func meanVar(v []float64) (mean, variance float64) {
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	for _, x := range v {
		variance += (x - mean) * (x - mean)
	}
	return mean, variance / float64(len(v))
}

func scaleInput() (*tensor.Tensor[p32], *tensor.Tensor[p32]) {
	x := values[p32](tensor.Shape{2, 3}, 0.5, -1, 2, 1.5, 0.25, -0.75)
	delta := values[p32](tensor.Shape{2, 2}, 40, -24, 8, 16)
	return x, delta
}

func refLinear(t *testing.T, x, delta *tensor.Tensor[p32]) (*nn.Linear[p32, p32, p32], *tensor.Tensor[p32]) {
	t.Helper()
	ref := nn.NewLinear(policy32(), 3, 2, rand.New(rand.NewSource(5)))
	_, rec := ref.Forward(x)
	dx, err := ref.Backward(delta, rec)
	require.NoError(t, err)
	return ref, dx
}

// calibrateSpreads runs a three-point BackScale in setup mode with loss-side
// spreads 1, 10 and 100 at points 0, 1 and 2.
func calibrateSpreads(t *testing.T, cfg nn.BackScaleConfig) *nn.BackScale[p32, p32, p32] {
	t.Helper()
	bs, err := nn.NewBackScale(policy32(), cfg)
	require.NoError(t, err)

	bs.Setup()
	for i, spread := range []float64{1, 10, 100} {
		p, err := bs.Point(i, nil)
		require.NoError(t, err)
		_, rec := p.Forward(values[p32](tensor.Shape{1, 2}, 0, 0))
		dx, err := p.Backward(values[p32](tensor.Shape{1, 2}, -spread, spread), rec)
		require.NoError(t, err)
		assert.Equal(t, []float64{-spread, spread}, dx.Float64s(), "setup passes gradients through")
	}
	require.NoError(t, bs.Enable())
	return bs
}

func TestBackScaleModes(t *testing.T) {
	tests := []struct {
		name   string
		mode   nn.BackScaleMode
		pow2   bool
		scales []float64
		acc    []float64
	}{
		{"loss", nn.BackScaleLoss, false, []float64{1, 1, 37}, []float64{37, 37, 37}},
		{"mix", nn.BackScaleMix, false, []float64{1, 0.1, math.Pow(10, 1.5)}, []float64{math.Sqrt(10), math.Sqrt(10), math.Pow(10, 1.5)}},
		{"before", nn.BackScaleBefore, false, []float64{1, 0.1, 10}, []float64{1, 1, 10}},
		{"after", nn.BackScaleAfter, false, []float64{1, 0.1, 100}, []float64{10, 10, 100}},
		{"after pow2", nn.BackScaleAfter, true, []float64{1, 0.125, 128}, []float64{16, 16, 128}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := calibrateSpreads(t, nn.BackScaleConfig{Points: 3, Mode: tt.mode, Pow2: tt.pow2})
			assert.Equal(t, []int{2, 2, 2}, bs.Sizes())
			assertRelative(t, []float64{1, 10, 100}, floats(bs.Stddev()), 1e-6, "stddev")
			assertRelative(t, tt.scales, floats(bs.Scales()), 1e-3, "scales")
			assertRelative(t, tt.acc, floats(bs.AccScales()), 1e-3, "acc")
		})
	}
}

func TestBackScaleDividesGradient(t *testing.T) {
	bs := calibrateSpreads(t, nn.BackScaleConfig{Points: 3, Mode: nn.BackScaleAfter})
	out, err := bs.Point(2, nil)
	require.NoError(t, err)

	_, rec := out.Forward(values[p32](tensor.Shape{1, 2}, 0, 0))
	dx, err := out.Backward(values[p32](tensor.Shape{1, 2}, -100, 100), rec)
	require.NoError(t, err)
	assertRelative(t, []float64{-1, 1}, dx.Float64s(), 1e-3, "dx")

	bs.Disable()
	_, rec = out.Forward(values[p32](tensor.Shape{1, 2}, 0, 0))
	dx, err = out.Backward(values[p32](tensor.Shape{1, 2}, -100, 100), rec)
	require.NoError(t, err)
	assert.Equal(t, []float64{-100, 100}, dx.Float64s())
}

func TestBackScaleRestoresParameterGradients(t *testing.T) {
	pol := policy32()
	x, delta := scaleInput()
	ref, dref := refLinear(t, x, delta)

	bs, err := nn.NewBackScale(pol, nn.BackScaleConfig{Points: 2, Mode: nn.BackScaleLoss})
	require.NoError(t, err)
	p0, err := bs.Point(0, nn.NewLinear(pol, 3, 2, rand.New(rand.NewSource(5))))
	require.NoError(t, err)
	out, err := bs.Point(1, nil)
	require.NoError(t, err)
	model := nn.NewSequential[p32, p32, p32](p0, out)

	bs.Setup()
	_, rec := model.Forward(x)
	_, err = model.Backward(delta, rec)
	require.NoError(t, err)
	require.NoError(t, bs.Enable())

	acc := bs.AccScales()
	require.False(t, acc[1].IsOne())
	assert.Equal(t, acc[0], acc[1], "loss mode scales only the last point")

	nn.ZeroGrad(model.Parameters())
	_, rec = model.Forward(x)
	dx, err := model.Backward(delta, rec)
	require.NoError(t, err)

	for i, p := range model.Parameters() {
		assertRelative(t, ref.Parameters()[i].Grad().Float64s(), p.Grad().Float64s(), 1e-4, p.Name())
	}
	want := dref.Float64s()
	for i := range want {
		want[i] /= acc[1].Float64()
	}
	assertRelative(t, want, dx.Float64s(), 1e-4, "dx")
}

func TestBackScaleSkipsOneAndZeroFactors(t *testing.T) {
	pol := policy32()
	x, delta := scaleInput()
	ref, dref := refLinear(t, x, delta)

	zero, one := posit.Zero[p32](), posit.One[p32]()
	tests := []struct {
		name        string
		scales, acc []posit.Posit[p32]
	}{
		{"zero", []posit.Posit[p32]{one, zero}, []posit.Posit[p32]{zero, zero}},
		{"one", []posit.Posit[p32]{one, one}, []posit.Posit[p32]{one, one}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs, err := nn.NewBackScale(pol, nn.BackScaleConfig{Points: 2, Mode: nn.BackScaleMix})
			require.NoError(t, err)
			p0, err := bs.Point(0, nn.NewLinear(pol, 3, 2, rand.New(rand.NewSource(5))))
			require.NoError(t, err)
			out, err := bs.Point(1, nil)
			require.NoError(t, err)
			model := nn.NewSequential[p32, p32, p32](p0, out)

			bs.SetFactors(tt.scales, tt.acc)
			require.NoError(t, bs.Enable())

			_, rec := model.Forward(x)
			dx, err := model.Backward(delta, rec)
			require.NoError(t, err)
			assert.Equal(t, dref.Float64s(), dx.Float64s())
			for i, p := range model.Parameters() {
				assert.Equal(t, ref.Parameters()[i].Grad().Float64s(), p.Grad().Float64s(), p.Name())
			}
		})
	}
}

func TestBackScaleDisabledIsTransparent(t *testing.T) {
	pol := policy32()
	x, delta := scaleInput()
	_, dref := refLinear(t, x, delta)

	bs, err := nn.NewBackScale(pol, nn.DefaultBackScaleConfig(2))
	require.NoError(t, err)
	p0, err := bs.Point(0, nn.NewLinear(pol, 3, 2, rand.New(rand.NewSource(5))))
	require.NoError(t, err)
	out, err := bs.Point(1, nil)
	require.NoError(t, err)
	model := nn.NewSequential[p32, p32, p32](p0, out)

	names := make([]string, 0, 2)
	for _, nt := range nn.NamedState[p32, p32, p32](model) {
		names = append(names, nt.Name)
	}
	assert.Equal(t, []string{"0.weight", "0.bias"}, names)

	_, rec := model.Forward(x)
	dx, err := model.Backward(delta, rec)
	require.NoError(t, err)
	assert.Equal(t, dref.Float64s(), dx.Float64s())

	model.Eval()
	assert.False(t, p0.Training())
	assert.False(t, p0.Layer().Training())
}

func TestBackScaleErrors(t *testing.T) {
	pol := policy32()

	_, err := nn.NewBackScale(pol, nn.BackScaleConfig{Points: 3, Mode: nn.BackScaleMode(9)})
	require.ErrorIs(t, err, nn.ErrUnknownScaleMode)
	assert.Equal(t, "BackScaleMode(9)", nn.BackScaleMode(9).String())

	_, err = nn.NewBackScale(pol, nn.DefaultBackScaleConfig(1))
	require.Error(t, err)

	bs, err := nn.NewBackScale(pol, nn.DefaultBackScaleConfig(2))
	require.NoError(t, err)
	_, err = bs.Point(2, nil)
	require.Error(t, err)

	require.ErrorIs(t, bs.Enable(), nn.ErrNotCalibrated)

	bs.Setup()
	out, err := bs.Point(1, nil)
	require.NoError(t, err)
	_, rec := out.Forward(values[p32](tensor.Shape{2}, 0, 0))
	_, err = out.Backward(values[p32](tensor.Shape{2}, 1, -1), rec)
	require.NoError(t, err)
	require.ErrorIs(t, bs.Enable(), nn.ErrNotCalibrated, "point 0 saw no gradient")

	_, rec = out.Forward(values[p32](tensor.Shape{2}, 0, 0))
	_, err = out.Backward(values[p32](tensor.Shape{3}, 1, -1, 0), rec)
	require.ErrorIs(t, err, nn.ErrShapeMismatch)
}

func linearStd(delta, weight []float64, fanIn int) float64 {
	m1, v1 := meanVar(delta)
	m2, v2 := meanVar(weight)
	m1, m2 = m1*m1, m2*m2
	return math.Sqrt((v1+m1)*(v2+m2)-m1*m2) * math.Sqrt(float64(fanIn))
}

func TestAdaptiveScaleNormalizeLinear(t *testing.T) {
	pol := policy32()
	x, delta := scaleInput()
	ref, dref := refLinear(t, x, delta)

	as, err := nn.NewAdaptiveScale(pol, nn.AdaptiveScaleConfig{Points: 1, Mode: nn.AdaptiveNormalize, Momentum: 1})
	require.NoError(t, err)
	fc := nn.NewLinear(pol, 3, 2, rand.New(rand.NewSource(5)))
	p, err := as.Point(0, fc)
	require.NoError(t, err)

	as.Setup()
	_, rec := p.Forward(x)
	dx, err := p.Backward(delta, rec)
	require.NoError(t, err)

	want := linearStd(delta.Float64s(), fc.Weight().Weight().Float64s(), 3)
	assert.Equal(t, []int{4}, as.Sizes())
	assertRelative(t, []float64{want}, floats(as.Stddev()), 1e-4, "stddev")
	assertRelative(t, []float64{want}, floats(as.RunningStddev()), 1e-4, "running")
	assertRelative(t, []float64{want}, floats(as.Scales()), 1e-4, "scales")
	assert.Equal(t, as.Scales(), as.AccScales())

	for i, par := range p.Parameters() {
		assertRelative(t, ref.Parameters()[i].Grad().Float64s(), par.Grad().Float64s(), 1e-4, par.Name())
	}
	scale := as.Scales()[0].Float64()
	wantDx := dref.Float64s()
	for i := range wantDx {
		wantDx[i] /= scale
	}
	assertRelative(t, wantDx, dx.Float64s(), 1e-4, "dx")
}

func TestAdaptiveScaleHalfAccumulates(t *testing.T) {
	pol := policy32()
	x, delta := scaleInput()

	as, err := nn.NewAdaptiveScale(pol, nn.AdaptiveScaleConfig{Points: 2, Mode: nn.AdaptiveHalf, Momentum: 1})
	require.NoError(t, err)
	fc1 := nn.NewLinear(pol, 3, 2, rand.New(rand.NewSource(5)))
	fc2 := nn.NewLinear(pol, 2, 2, rand.New(rand.NewSource(6)))
	p1, err := as.Point(0, fc1)
	require.NoError(t, err)
	p2, err := as.Point(1, fc2)
	require.NoError(t, err)
	model := nn.NewSequential[p32, p32, p32](p1, p2)

	as.Setup()
	_, rec := model.Forward(x)
	_, err = model.Backward(delta, rec)
	require.NoError(t, err)

	std := floats(as.Stddev())
	want2 := linearStd(delta.Float64s(), fc2.Weight().Weight().Float64s(), 2)
	assert.InEpsilon(t, want2, std[1], 1e-4)
	assert.InEpsilon(t, 0.6745*std[0], as.Scales()[0].Float64(), 1e-4)
	assert.InEpsilon(t, 0.6745*std[1], as.Scales()[1].Float64(), 1e-4)

	scales, acc := floats(as.Scales()), floats(as.AccScales())
	assert.InEpsilon(t, scales[1], acc[1], 1e-6)
	assert.InEpsilon(t, scales[0]*scales[1], acc[0], 1e-4)
}

func TestAdaptiveScaleDefaultUsesBackwardFormat(t *testing.T) {
	pol := nn.NewPolicy[p32, p32, p16](parallel.Serial())
	as, err := nn.NewAdaptiveScale(pol, nn.DefaultAdaptiveScaleConfig(1))
	require.NoError(t, err)
	fc := nn.NewLinear(pol, 3, 2, rand.New(rand.NewSource(5)))
	p, err := as.Point(0, fc)
	require.NoError(t, err)

	as.Setup()
	_, rec := p.Forward(values[p32](tensor.Shape{2, 3}, 0.5, -1, 2, 1.5, 0.25, -0.75))
	deltaVals := []float64{40, -24, 8, 16}
	_, err = p.Backward(values[p16](tensor.Shape{2, 2}, deltaVals...), rec)
	require.NoError(t, err)

	std := linearStd(deltaVals, fc.Weight().Weight().Float64s(), 3)
	running := 0.9 + 0.1*std
	u := posit.FromBits[p16](1 << (posit.ConfigOf[p16]().ES + 1)).Float64()
	assert.InEpsilon(t, running, as.RunningStddev()[0].Float64(), 1e-4)
	assert.InEpsilon(t, running*1.25331447e-3*u, as.Scales()[0].Float64(), 1e-3)
}

func TestAdaptiveScaleConvEstimate(t *testing.T) {
	pol := policy32()
	conv, err := nn.NewConv2d(pol, nn.DefaultConv2dConfig(1, 2, 2), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	as, err := nn.NewAdaptiveScale(pol, nn.AdaptiveScaleConfig{Points: 1, Mode: nn.AdaptiveNormalize, Momentum: 1, Pow2: true})
	require.NoError(t, err)
	p, err := as.Point(0, conv)
	require.NoError(t, err)

	as.Setup()
	_, rec := p.Forward(tensor.Ones[p32](tensor.Shape{1, 1, 3, 3}))
	deltaVals := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	_, err = p.Backward(values[p32](tensor.Shape{1, 2, 2, 2}, deltaVals...), rec)
	require.NoError(t, err)

	_, v1 := meanVar(deltaVals)
	var sq float64
	for _, w := range conv.Weight().Weight().Float64s() {
		sq += w * w
	}
	want := math.Sqrt(v1 * sq)
	assert.InEpsilon(t, want, as.Stddev()[0].Float64(), 1e-4)
	assert.Equal(t, math.Exp2(math.Round(math.Log2(want))), as.Scales()[0].Float64())
}

func TestAdaptiveScaleSkipsOneAndZeroFactors(t *testing.T) {
	pol := policy32()
	x, delta := scaleInput()
	ref, dref := refLinear(t, x, delta)

	zero, one := posit.Zero[p32](), posit.One[p32]()
	for name, f := range map[string]posit.Posit[p32]{"zero": zero, "one": one} {
		t.Run(name, func(t *testing.T) {
			as, err := nn.NewAdaptiveScale(pol, nn.AdaptiveScaleConfig{Points: 1, Mode: nn.AdaptiveNormalize, Momentum: 0.1})
			require.NoError(t, err)
			p, err := as.Point(0, nn.NewLinear(pol, 3, 2, rand.New(rand.NewSource(5))))
			require.NoError(t, err)
			as.SetFactors([]posit.Posit[p32]{f}, []posit.Posit[p32]{f})
			as.Enable()

			_, rec := p.Forward(x)
			dx, err := p.Backward(delta, rec)
			require.NoError(t, err)
			assert.Equal(t, dref.Float64s(), dx.Float64s())
			for i, par := range p.Parameters() {
				assert.Equal(t, ref.Parameters()[i].Grad().Float64s(), par.Grad().Float64s(), par.Name())
			}
		})
	}
}

func TestAdaptiveScaleErrors(t *testing.T) {
	pol := policy32()

	_, err := nn.NewAdaptiveScale(pol, nn.AdaptiveScaleConfig{Points: 1, Mode: nn.AdaptiveScaleMode(5)})
	require.ErrorIs(t, err, nn.ErrUnknownScaleMode)
	assert.Equal(t, "half", nn.AdaptiveHalf.String())

	_, err = nn.NewAdaptiveScale(pol, nn.AdaptiveScaleConfig{Points: 1, Momentum: 2})
	require.Error(t, err)

	as, err := nn.NewAdaptiveScale(pol, nn.DefaultAdaptiveScaleConfig(1))
	require.NoError(t, err)
	_, err = as.Point(0, nn.NewReLU(pol))
	require.Error(t, err, "layer without parameters")
	_, err = as.Point(0, nil)
	require.Error(t, err)
	_, err = as.Point(1, nn.NewLinear(pol, 2, 2, nil))
	require.Error(t, err)
}
