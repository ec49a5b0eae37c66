package nn

import (
	"fmt"

	"github.com/born-ml/positnn/internal/kernel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// BatchNormConfig holds the configuration of BatchNorm1d.
type BatchNormConfig struct {
	NumFeatures       int
	Eps               float64 // Added to the variance before the square root.
	Momentum          float64 // Weight of the batch statistic in the running average.
	Affine            bool    // Learn a per-feature scale and shift.
	TrackRunningStats bool    // Keep running statistics for evaluation mode.
}

// DefaultBatchNormConfig returns eps 1e-5, momentum 0.1, affine, tracking.
func DefaultBatchNormConfig(numFeatures int) BatchNormConfig {
	return BatchNormConfig{
		NumFeatures:       numFeatures,
		Eps:               1e-5,
		Momentum:          0.1,
		Affine:            true,
		TrackRunningStats: true,
	}
}

// Validate reports an unusable configuration.
func (c BatchNormConfig) Validate() error {
	switch {
	case c.NumFeatures <= 0:
		return fmt.Errorf("nn: batchnorm needs a positive feature count, got %d", c.NumFeatures)
	case c.Eps <= 0:
		return fmt.Errorf("nn: batchnorm eps must be positive, got %g", c.Eps)
	case c.Momentum < 0 || c.Momentum > 1:
		return fmt.Errorf("nn: batchnorm momentum must lie in [0, 1], got %g", c.Momentum)
	}
	return nil
}

// BatchNorm1d normalizes each feature of a [batch, features] input.
//
// In training mode (or whenever running statistics are not tracked) the
// batch mean and population variance are accumulated exactly per feature and
// the running statistics are updated as
//
//	running = running*(1-momentum) + batch*momentum
//
// In evaluation mode the running statistics normalize instead. With Affine,
// the normalized value is then scaled by gamma and shifted by beta.
type BatchNorm1d[O, F, B posit.Format] struct {
	mode
	policy Policy[O, F, B]
	config BatchNormConfig

	gamma *MixedTensor[O, F, B]
	beta  *MixedTensor[O, F, B]

	gammaParam *Parameter[O]
	betaParam  *Parameter[O]

	runningMean *tensor.Tensor[O]
	runningVar  *tensor.Tensor[O]
}

type batchNormState[B posit.Format] struct {
	xNorm      *tensor.Tensor[B]
	stddev     *tensor.Tensor[B]
	batchStats bool
}

// NewBatchNorm1d creates a BatchNorm1d layer with gamma = 1, beta = 0,
// running mean 0 and running variance 1.
func NewBatchNorm1d[O, F, B posit.Format](pol Policy[O, F, B], cfg BatchNormConfig) (*BatchNorm1d[O, F, B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	shape := tensor.Shape{cfg.NumFeatures}
	bn := &BatchNorm1d[O, F, B]{
		mode:        mode{training: true},
		policy:      pol,
		config:      cfg,
		gamma:       NewMixedTensor[O, F, B](shape),
		beta:        NewMixedTensor[O, F, B](shape),
		runningMean: tensor.Zeros[O](shape),
		runningVar:  tensor.Ones[O](shape),
	}
	bn.gamma.Optimizer().Fill(posit.One[O]())
	bn.gamma.Sync()
	bn.beta.Sync()
	if cfg.Affine {
		bn.gammaParam = NewMixedParameter("gamma", bn.gamma)
		bn.betaParam = NewMixedParameter("beta", bn.beta)
	}
	return bn, nil
}

// Forward normalizes x.
func (bn *BatchNorm1d[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	features := bn.config.NumFeatures
	if x.Dim() != 2 || x.Shape()[1] != features {
		panic(fmt.Sprintf("BatchNorm1d.Forward: expected input [batch, %d], got shape %v", features, x.Shape()))
	}

	batchStats := bn.training || !bn.config.TrackRunningStats
	var mean, variance *tensor.Tensor[F]
	if batchStats {
		mean, variance = featureMoments(x)
		if bn.config.TrackRunningStats {
			m := posit.FromFloat64[O](bn.config.Momentum)
			keep := posit.One[O]().Sub(m)
			par := bn.policy.Parallel
			kernel.Fused(bn.runningMean, tensor.Cast[O](mean), keep, m, par)
			kernel.Fused(bn.runningVar, tensor.Cast[O](variance), keep, m, par)
		}
	} else {
		mean = tensor.Cast[F](bn.runningMean)
		variance = tensor.Cast[F](bn.runningVar)
	}

	stddev := variance.AddScalar(posit.FromFloat64[F](bn.config.Eps))
	for i, v := range stddev.Data() {
		stddev.Set(i, v.Sqrt())
	}

	y := x.Sub(mean)
	y.DivAssign(stddev)
	st := batchNormState[B]{
		xNorm:      tensor.Cast[B](y),
		stddev:     tensor.Cast[B](stddev),
		batchStats: batchStats,
	}

	if bn.config.Affine {
		y.MulAssign(bn.gamma.Forward())
		y.AddAssign(bn.beta.Forward())
	}
	return y, newRecord(bn, st)
}

// featureMoments returns the per-column mean and population variance of a
// [batch, features] tensor. Both sums are exact; the variance accumulates the
// squares of deviations from the rounded mean.
func featureMoments[T posit.Format](x *tensor.Tensor[T]) (mean, variance *tensor.Tensor[T]) {
	batch, features := x.Shape()[0], x.Shape()[1]
	n := posit.FromInt[T](batch)
	mean = tensor.New[T](tensor.Shape{features})
	variance = tensor.New[T](tensor.Shape{features})
	data := x.Data()

	var q posit.Quire[T]
	for j := range features {
		q.Reset()
		for i := j; i < len(data); i += features {
			q.Add(data[i])
		}
		mu := q.Posit().Div(n)
		mean.Set(j, mu)

		q.Reset()
		for i := j; i < len(data); i += features {
			d := data[i].Sub(mu)
			q.AddProduct(d, d)
		}
		variance.Set(j, q.Posit().Div(n))
	}
	return mean, variance
}

// Backward returns the input gradient and, with Affine, accumulates
//
//	dgamma += Σ delta*x̂ / N
//	dbeta  += Σ delta / N
//
// With batch statistics the input gradient is
//
//	dx = (N*g - x̂*Σ(g*x̂) - Σg) / (N*σ)    where g = delta*gamma
//
// with the numerator accumulated exactly. With running statistics it is
// delta*gamma/σ.
func (bn *BatchNorm1d[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	st, err := take[batchNormState[B]](rec, bn)
	if err != nil {
		return nil, fmt.Errorf("BatchNorm1d.Backward: %w", err)
	}
	if !delta.Shape().Equal(st.xNorm.Shape()) {
		return nil, fmt.Errorf("BatchNorm1d.Backward: %w: delta %v for input %v", ErrShapeMismatch, delta.Shape(), st.xNorm.Shape())
	}
	par := bn.policy.Parallel
	batch, features := delta.Shape()[0], delta.Shape()[1]

	if bn.config.Affine {
		dgamma := kernel.Dot(delta, st.xNorm, 0, par)
		dbeta := kernel.SumFirst(delta, par)
		divideBatch(dgamma, batch)
		divideBatch(dbeta, batch)
		Accumulate(bn.gammaParam, dgamma)
		Accumulate(bn.betaParam, dbeta)
	}

	g := delta.Clone()
	if bn.config.Affine {
		g.MulAssign(bn.gamma.Backward())
	}
	if !st.batchStats {
		return g.DivAssign(st.stddev), nil
	}

	t1 := kernel.Dot(g, st.xNorm, 0, par)
	t2 := kernel.SumFirst(g, par)
	n := posit.FromInt[B](batch)

	dx := tensor.New[B](delta.Shape())
	gd, xd, dd := g.Data(), st.xNorm.Data(), dx.Data()
	var q posit.Quire[B]
	for i := range dd {
		j := i % features
		q.Reset()
		q.AddProduct(gd[i], n)
		q.SubProduct(xd[i], t1.At(j))
		q.Sub(t2.At(j))
		dd[i] = q.Posit()
	}
	dx.DivAssign(st.stddev.MulScalar(n))
	return dx, nil
}

// Parameters returns [gamma, beta] with Affine and nil otherwise.
func (bn *BatchNorm1d[O, F, B]) Parameters() []*Parameter[O] {
	if !bn.config.Affine {
		return nil
	}
	return []*Parameter[O]{bn.gammaParam, bn.betaParam}
}

// Buffers returns [running mean, running variance] when tracked.
func (bn *BatchNorm1d[O, F, B]) Buffers() []NamedTensor[O] {
	if !bn.config.TrackRunningStats {
		return nil
	}
	return []NamedTensor[O]{
		{Name: "running_mean", Tensor: bn.runningMean},
		{Name: "running_var", Tensor: bn.runningVar},
	}
}

// RunningMean returns the running mean.
func (bn *BatchNorm1d[O, F, B]) RunningMean() *tensor.Tensor[O] { return bn.runningMean }

// RunningVar returns the running variance.
func (bn *BatchNorm1d[O, F, B]) RunningVar() *tensor.Tensor[O] { return bn.runningVar }
