package nn

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/born-ml/positnn/internal/kernel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

var (
	// ErrUnknownScaleMode is returned for a BackScaleMode or
	// AdaptiveScaleMode outside the defined constants.
	ErrUnknownScaleMode = errors.New("nn: unknown gradient scale mode")

	// ErrNotCalibrated is returned by BackScale.Enable before every scale
	// point has seen a gradient in setup mode.
	ErrNotCalibrated = errors.New("nn: gradient scale not calibrated")
)

type scaleState uint8

const (
	scaleDisabled scaleState = iota
	scaleSetup
	scaleEnabled
)

// BackScaleMode selects how BackScale turns the measured gradient spread at
// each point into scale factors.
type BackScaleMode uint8

const (
	// BackScaleLoss scales only the loss gradient, by the size-weighted mean
	// standard deviation over all points.
	BackScaleLoss BackScaleMode = iota
	// BackScaleMix sets each exponent from the size-weighted log-spread
	// differences between a point and both neighbours.
	BackScaleMix
	// BackScaleBefore sets each exponent from the log-spread difference to
	// the previous point.
	BackScaleBefore
	// BackScaleAfter sets each exponent from the log-spread difference to
	// the next point.
	BackScaleAfter
)

// String returns the mode name.
func (m BackScaleMode) String() string {
	switch m {
	case BackScaleLoss:
		return "loss"
	case BackScaleMix:
		return "mix"
	case BackScaleBefore:
		return "before"
	case BackScaleAfter:
		return "after"
	}
	return fmt.Sprintf("BackScaleMode(%d)", uint8(m))
}

// Validate returns ErrUnknownScaleMode for undefined modes.
func (m BackScaleMode) Validate() error {
	if m > BackScaleAfter {
		return fmt.Errorf("%w: %d", ErrUnknownScaleMode, uint8(m))
	}
	return nil
}

// BackScaleConfig holds the configuration of BackScale.
type BackScaleConfig struct {
	Points int // Scale points, the last one at the loss.
	Mode   BackScaleMode
	Pow2   bool // Round every factor to the nearest power of two.
}

// DefaultBackScaleConfig returns a Mix configuration without rounding.
func DefaultBackScaleConfig(points int) BackScaleConfig {
	return BackScaleConfig{Points: points, Mode: BackScaleMix}
}

// Validate reports an unusable configuration.
func (c BackScaleConfig) Validate() error {
	if c.Points < 2 {
		return fmt.Errorf("nn: back scale needs at least 2 points, got %d", c.Points)
	}
	return c.Mode.Validate()
}

// BackScale keeps backward gradients inside the accurate range of a posit
// format by dividing them by fixed factors at a set of points, and restores
// the magnitude of the parameter gradients afterwards.
//
// Factors come from a setup pass: after Setup, every point records the size
// and standard deviation of the gradient crossing it, and Enable turns those
// statistics into factors. Points are numbered in forward order. Point i
// wraps layer i and scales the gradient leaving that layer's Backward. The
// last point wraps nothing and sits after the network, where it sees the
// loss gradient.
//
// One BackScale may serve several replicas of a model. Setup must then be
// driven through a single replica, since points overwrite their statistics.
//
// Example:
//
//	bs, _ := nn.NewBackScale(pol, nn.DefaultBackScaleConfig(3))
//	p0, _ := bs.Point(0, fc1)
//	p1, _ := bs.Point(1, fc2)
//	out, _ := bs.Point(2, nil)
//	model := nn.NewSequential(p0, relu, p1, out)
type BackScale[O, F, B posit.Format] struct {
	cfg BackScaleConfig

	mu         sync.RWMutex
	state      scaleState
	calibrated bool
	seen       []bool
	sizes      []int
	std        []posit.Posit[O]
	scales     []posit.Posit[O]
	acc        []posit.Posit[O]
}

// NewBackScale creates a disabled BackScale with all factors one.
func NewBackScale[O, F, B posit.Format](_ Policy[O, F, B], cfg BackScaleConfig) (*BackScale[O, F, B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.Points
	s := &BackScale[O, F, B]{
		cfg:    cfg,
		seen:   make([]bool, n),
		sizes:  make([]int, n),
		std:    make([]posit.Posit[O], n),
		scales: ones[O](n),
		acc:    ones[O](n),
	}
	return s, nil
}

// Config returns the configuration.
func (s *BackScale[O, F, B]) Config() BackScaleConfig { return s.cfg }

// Point returns scale point i wrapping layer. layer may be nil, which makes
// the point an identity module.
func (s *BackScale[O, F, B]) Point(i int, layer Module[O, F, B]) (*ScalePoint[O, F, B], error) {
	if i < 0 || i >= s.cfg.Points {
		return nil, fmt.Errorf("nn: scale point %d outside [0, %d)", i, s.cfg.Points)
	}
	return &ScalePoint[O, F, B]{wrapped: newWrapped(layer), owner: s, index: i}, nil
}

// Setup makes every point record gradient statistics. Gradients pass
// unscaled while in setup.
func (s *BackScale[O, F, B]) Setup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = scaleSetup
	clear(s.seen)
}

// Enable starts scaling. Called after Setup, it first computes the factors
// from the recorded statistics. Otherwise it reuses the last factors.
func (s *BackScale[O, F, B]) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == scaleSetup {
		if err := s.calibrate(); err != nil {
			return err
		}
	}
	if !s.calibrated {
		return ErrNotCalibrated
	}
	s.state = scaleEnabled
	return nil
}

// Disable stops scaling. The factors are kept.
func (s *BackScale[O, F, B]) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = scaleDisabled
}

// Sizes returns the gradient element count recorded at each point.
func (s *BackScale[O, F, B]) Sizes() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.sizes...)
}

// Stddev returns the gradient standard deviation recorded at each point.
func (s *BackScale[O, F, B]) Stddev() []posit.Posit[O] { return s.snapshot(s.std) }

// Scales returns the factor each point divides its gradient by.
func (s *BackScale[O, F, B]) Scales() []posit.Posit[O] { return s.snapshot(s.scales) }

// AccScales returns, per point, the product of its factor and the factors
// of every later point: the total the gradient entering that point's
// wrapped layer has been divided by, counting the point itself.
func (s *BackScale[O, F, B]) AccScales() []posit.Posit[O] { return s.snapshot(s.acc) }

func (s *BackScale[O, F, B]) snapshot(v []posit.Posit[O]) []posit.Posit[O] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]posit.Posit[O](nil), v...)
}

func (s *BackScale[O, F, B]) record(i int, delta *tensor.Tensor[B]) {
	std := posit.Convert[O](kernel.Std(delta))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[i] = true
	s.sizes[i] = delta.Size()
	s.std[i] = std
}

// factors returns the divisor of point i and the multiplier for the
// gradients of its layer, which saw a gradient divided by every later point.
func (s *BackScale[O, F, B]) factors(i int) (scale, grad posit.Posit[O]) {
	scale, grad = s.scales[i], posit.One[O]()
	if i+1 < len(s.acc) {
		grad = s.acc[i+1]
	}
	return scale, grad
}

// calibrate computes the factors. The caller holds the lock.
func (s *BackScale[O, F, B]) calibrate() error {
	for i, ok := range s.seen {
		if !ok {
			return fmt.Errorf("%w: point %d saw no gradient", ErrNotCalibrated, i)
		}
	}

	n := s.cfg.Points
	scales := ones[O](n)
	switch s.cfg.Mode {
	case BackScaleLoss:
		scales[n-1] = s.lossScale()
	case BackScaleMix, BackScaleBefore, BackScaleAfter:
		exps := s.exponents()
		for i := 1; i < n; i++ {
			scales[i] = pow10(exps[i])
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownScaleMode, uint8(s.cfg.Mode))
	}
	if s.cfg.Pow2 {
		for i := range scales {
			scales[i] = roundPow2(scales[i])
		}
	}

	acc := make([]posit.Posit[O], n)
	acc[n-1] = scales[n-1]
	for i := n - 2; i >= 0; i-- {
		acc[i] = scales[i].Mul(acc[i+1])
	}
	s.scales, s.acc, s.calibrated = scales, acc, true
	return nil
}

// lossScale is Σ n_i·std_i / Σ n_i, or one when that is zero.
func (s *BackScale[O, F, B]) lossScale() posit.Posit[O] {
	total := 0
	for _, n := range s.sizes {
		total += n
	}
	var q posit.Quire[O]
	for i, n := range s.sizes {
		q.AddProduct(posit.FromFloat64[O](float64(n)/float64(total)), s.std[i])
	}
	aux := q.Posit()
	if aux.IsZero() {
		return posit.One[O]()
	}
	return aux
}

// exponents returns the base-10 exponent of every factor. Entry 0 is zero.
func (s *BackScale[O, F, B]) exponents() []posit.Posit[O] {
	n := s.cfg.Points
	lg := make([]posit.Posit[O], n)
	ln10 := posit.FromFloat64[O](math.Ln10)
	for i, std := range s.std {
		if !std.IsZero() {
			lg[i] = std.Log().Div(ln10)
		}
	}
	size := func(i int) float64 { return float64(s.sizes[i]) }

	exps := make([]posit.Posit[O], n)
	for i := 1; i < n-1; i++ {
		switch s.cfg.Mode {
		case BackScaleMix:
			a, b, c := size(i-1), size(i), size(i+1)
			den := (a + b) * (b + c)
			var q posit.Quire[O]
			q.AddProduct(posit.FromFloat64[O](a*b/den), lg[i-1].Sub(lg[i]))
			q.AddProduct(posit.FromFloat64[O](a*c/den), lg[i-1].Sub(lg[i+1]))
			q.AddProduct(posit.FromFloat64[O](b*c/den), lg[i].Sub(lg[i+1]))
			exps[i] = q.Posit()
		case BackScaleBefore:
			exps[i] = lg[i-1].Sub(lg[i])
		case BackScaleAfter:
			exps[i] = lg[i].Sub(lg[i+1])
		}
	}

	last := n - 1
	switch s.cfg.Mode {
	case BackScaleMix:
		a, b := size(last-1), size(last)
		var q posit.Quire[O]
		q.AddProduct(posit.FromFloat64[O](a/(a+b)), lg[last-1])
		q.AddProduct(posit.FromFloat64[O](b/(a+b)), lg[last])
		exps[last] = q.Posit()
	case BackScaleBefore:
		exps[last] = lg[last-1]
	case BackScaleAfter:
		exps[last] = lg[last]
	}
	return exps
}

// ScalePoint is one point of a BackScale. It wraps an optional layer and
// scales the gradient that layer returns.
type ScalePoint[O, F, B posit.Format] struct {
	wrapped[O, F, B]
	owner *BackScale[O, F, B]
	index int
}

// Index returns the point number.
func (p *ScalePoint[O, F, B]) Index() int { return p.index }

// Forward runs the wrapped layer, or returns x without a layer.
func (p *ScalePoint[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	return p.forward(p, x)
}

// Backward runs the wrapped layer's Backward and then, depending on the
// owner's state, records statistics of its result or divides it by this
// point's factor. When scaling, the layer's parameter gradients are
// multiplied by the product of every later factor, which assumes they held
// no earlier contribution.
func (p *ScalePoint[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	dx, err := p.backward(p, delta, rec)
	if err != nil {
		return nil, fmt.Errorf("ScalePoint.Backward: %w", err)
	}

	s := p.owner
	s.mu.RLock()
	state := s.state
	scale, grad := s.factors(p.index)
	s.mu.RUnlock()

	switch state {
	case scaleSetup:
		s.record(p.index, dx)
	case scaleEnabled:
		if p.layer != nil && !grad.IsOne() && !grad.IsZero() {
			for _, par := range p.layer.Parameters() {
				par.Grad().MulScalarAssign(grad)
			}
		}
		if !scale.IsOne() && !scale.IsZero() {
			dx = dx.DivScalar(posit.Convert[B](scale))
		}
	}
	return dx, nil
}

// AdaptiveScaleMode selects the target spread of AdaptiveScale.
type AdaptiveScaleMode uint8

const (
	// AdaptiveDefault scales by the running deviation times a constant tied
	// to the smallest backward posit with a fraction bit.
	AdaptiveDefault AdaptiveScaleMode = iota
	// AdaptiveNormalize scales by the running deviation.
	AdaptiveNormalize
	// AdaptiveHalf scales by the running deviation times 0.6745, the
	// median absolute value of a unit normal.
	AdaptiveHalf
)

// String returns the mode name.
func (m AdaptiveScaleMode) String() string {
	switch m {
	case AdaptiveDefault:
		return "default"
	case AdaptiveNormalize:
		return "normalize"
	case AdaptiveHalf:
		return "half"
	}
	return fmt.Sprintf("AdaptiveScaleMode(%d)", uint8(m))
}

// Validate returns ErrUnknownScaleMode for undefined modes.
func (m AdaptiveScaleMode) Validate() error {
	if m > AdaptiveHalf {
		return fmt.Errorf("%w: %d", ErrUnknownScaleMode, uint8(m))
	}
	return nil
}

// AdaptiveScaleConfig holds the configuration of AdaptiveScale.
type AdaptiveScaleConfig struct {
	Points   int // One per wrapped layer.
	Mode     AdaptiveScaleMode
	Momentum float64 // Weight of the new estimate in the running deviation.
	Pow2     bool    // Round every factor to the nearest power of two.
}

// DefaultAdaptiveScaleConfig returns the Default mode with momentum 0.1.
func DefaultAdaptiveScaleConfig(points int) AdaptiveScaleConfig {
	return AdaptiveScaleConfig{Points: points, Mode: AdaptiveDefault, Momentum: 0.1}
}

// Validate reports an unusable configuration.
func (c AdaptiveScaleConfig) Validate() error {
	switch {
	case c.Points < 1:
		return fmt.Errorf("nn: adaptive scale needs at least 1 point, got %d", c.Points)
	case c.Momentum < 0 || c.Momentum > 1:
		return fmt.Errorf("nn: adaptive scale momentum must lie in [0, 1], got %g", c.Momentum)
	}
	return c.Mode.Validate()
}

// AdaptiveScale divides the gradient reaching each wrapped layer by a factor
// derived from a running estimate of the standard deviation of that layer's
// input gradient, and multiplies the layer's parameter gradients by the
// accumulated factor so they keep their true magnitude.
//
// The estimate uses the mean and variance of the incoming gradient and of the
// layer weight, so it is available before the layer's Backward runs. Points
// are numbered in forward order, one per Linear or Conv2d layer. In setup
// mode every backward pass refreshes the estimates and factors and scales
// with them. Enable freezes the factors.
type AdaptiveScale[O, F, B posit.Format] struct {
	cfg  AdaptiveScaleConfig
	unit posit.Posit[O]

	mu      sync.RWMutex
	state   scaleState
	sizes   []int
	std     []posit.Posit[O]
	running []posit.Posit[O]
	scales  []posit.Posit[O]
	acc     []posit.Posit[O]
}

// NewAdaptiveScale creates a disabled AdaptiveScale with running deviations
// and factors one.
func NewAdaptiveScale[O, F, B posit.Format](_ Policy[O, F, B], cfg AdaptiveScaleConfig) (*AdaptiveScale[O, F, B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.Points
	// Smallest backward posit carrying a fraction bit.
	u := posit.FromBits[B](1 << (posit.ConfigOf[B]().ES + 1))
	return &AdaptiveScale[O, F, B]{
		cfg:     cfg,
		unit:    posit.FromFloat64[O](1.25331447e-3).Mul(posit.Convert[O](u)),
		sizes:   make([]int, n),
		std:     ones[O](n),
		running: ones[O](n),
		scales:  ones[O](n),
		acc:     ones[O](n),
	}, nil
}

// Config returns the configuration.
func (s *AdaptiveScale[O, F, B]) Config() AdaptiveScaleConfig { return s.cfg }

// Point returns point i wrapping layer, which must be a Linear or Conv2d
// style module: its first parameter is a weight of rank 2 or 4.
func (s *AdaptiveScale[O, F, B]) Point(i int, layer Module[O, F, B]) (*AdaptivePoint[O, F, B], error) {
	if i < 0 || i >= s.cfg.Points {
		return nil, fmt.Errorf("nn: scale point %d outside [0, %d)", i, s.cfg.Points)
	}
	if layer == nil || len(layer.Parameters()) == 0 {
		return nil, fmt.Errorf("nn: adaptive scale point %d needs a layer with parameters", i)
	}
	if r := layer.Parameters()[0].Weight().Dim(); r != 2 && r != 4 {
		return nil, fmt.Errorf("nn: adaptive scale point %d: weight rank %d, want 2 or 4", i, r)
	}
	return &AdaptivePoint[O, F, B]{wrapped: newWrapped(layer), owner: s, index: i}, nil
}

// Setup makes every backward pass refresh the estimates and factors.
func (s *AdaptiveScale[O, F, B]) Setup() { s.setState(scaleSetup) }

// Enable scales with the current factors.
func (s *AdaptiveScale[O, F, B]) Enable() { s.setState(scaleEnabled) }

// Disable stops scaling.
func (s *AdaptiveScale[O, F, B]) Disable() { s.setState(scaleDisabled) }

func (s *AdaptiveScale[O, F, B]) setState(st scaleState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Sizes returns the gradient element count seen at each point.
func (s *AdaptiveScale[O, F, B]) Sizes() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.sizes...)
}

// Stddev returns the latest deviation estimate at each point.
func (s *AdaptiveScale[O, F, B]) Stddev() []posit.Posit[O] { return s.snapshot(s.std) }

// RunningStddev returns the running deviation at each point.
func (s *AdaptiveScale[O, F, B]) RunningStddev() []posit.Posit[O] { return s.snapshot(s.running) }

// Scales returns the factor each point divides its gradient by.
func (s *AdaptiveScale[O, F, B]) Scales() []posit.Posit[O] { return s.snapshot(s.scales) }

// AccScales returns, per point, the product of its factor and every later
// factor.
func (s *AdaptiveScale[O, F, B]) AccScales() []posit.Posit[O] { return s.snapshot(s.acc) }

func (s *AdaptiveScale[O, F, B]) snapshot(v []posit.Posit[O]) []posit.Posit[O] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]posit.Posit[O](nil), v...)
}

// update refreshes the estimate and factors of point i from the gradient
// arriving at its layer. Later points have already run in the same pass.
func (s *AdaptiveScale[O, F, B]) update(i int, delta *tensor.Tensor[B], weight *tensor.Tensor[O]) {
	std := estimateStd(tensor.Cast[O](delta), weight)

	s.mu.Lock()
	defer s.mu.Unlock()
	m := posit.FromFloat64[O](s.cfg.Momentum)
	s.sizes[i] = delta.Size()
	s.std[i] = std
	s.running[i] = s.running[i].Mul(posit.One[O]().Sub(m)).Add(std.Mul(m))

	scale := s.running[i]
	switch s.cfg.Mode {
	case AdaptiveDefault:
		scale = scale.Mul(s.unit)
	case AdaptiveHalf:
		scale = scale.Mul(posit.FromFloat64[O](0.6745))
	}
	if s.cfg.Pow2 {
		scale = roundPow2(scale)
	}
	s.scales[i] = scale
	if i+1 == len(s.acc) {
		s.acc[i] = scale
	} else {
		s.acc[i] = scale.Mul(s.acc[i+1])
	}
}

// estimateStd predicts the deviation of the input gradient of a layer with
// the given weight from the gradient at its output.
func estimateStd[O posit.Format](delta, weight *tensor.Tensor[O]) posit.Posit[O] {
	var1 := kernel.Variance(delta)
	fanIn := posit.FromInt[O](weight.Shape()[1])
	if weight.Dim() == 4 {
		return posit.Dot(weight.Data(), weight.Data()).Mul(var1).Div(fanIn).Sqrt()
	}

	m1, m2 := kernel.Mean(delta), kernel.Mean(weight)
	m1, m2 = m1.Mul(m1), m2.Mul(m2)
	var2 := kernel.Variance(weight)
	prod := var1.Add(m1).Mul(var2.Add(m2)).Sub(m1.Mul(m2))
	return prod.Sqrt().Mul(fanIn.Sqrt())
}

// AdaptivePoint is one point of an AdaptiveScale wrapping a layer.
type AdaptivePoint[O, F, B posit.Format] struct {
	wrapped[O, F, B]
	owner *AdaptiveScale[O, F, B]
	index int
}

// Index returns the point number.
func (p *AdaptivePoint[O, F, B]) Index() int { return p.index }

// Forward runs the wrapped layer.
func (p *AdaptivePoint[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	return p.forward(p, x)
}

// Backward divides delta by this point's factor, runs the layer's Backward
// and multiplies the layer's parameter gradients by the accumulated factor,
// which assumes they held no earlier contribution. In setup mode the
// estimate and factors are refreshed from delta first.
func (p *AdaptivePoint[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	s := p.owner
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	if state == scaleSetup {
		s.update(p.index, delta, p.layer.Parameters()[0].Weight())
	}
	if state == scaleDisabled {
		dx, err := p.backward(p, delta, rec)
		if err != nil {
			return nil, fmt.Errorf("AdaptivePoint.Backward: %w", err)
		}
		return dx, nil
	}

	s.mu.RLock()
	scale, acc := s.scales[p.index], s.acc[p.index]
	s.mu.RUnlock()

	if !scale.IsOne() && !scale.IsZero() {
		delta = delta.DivScalar(posit.Convert[B](scale))
	}
	dx, err := p.backward(p, delta, rec)
	if err != nil {
		return nil, fmt.Errorf("AdaptivePoint.Backward: %w", err)
	}
	if !acc.IsOne() && !acc.IsZero() {
		for _, par := range p.layer.Parameters() {
			par.Grad().MulScalarAssign(acc)
		}
	}
	return dx, nil
}

// wrapped is the module plumbing shared by scale points: it delegates to an
// optional layer and tags records with the point as owner.
type wrapped[O, F, B posit.Format] struct {
	mode
	layer Module[O, F, B]
}

func newWrapped[O, F, B posit.Format](layer Module[O, F, B]) wrapped[O, F, B] {
	return wrapped[O, F, B]{mode: mode{training: true}, layer: layer}
}

// Layer returns the wrapped layer, or nil.
func (w *wrapped[O, F, B]) Layer() Module[O, F, B] { return w.layer }

func (w *wrapped[O, F, B]) forward(owner any, x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	if w.layer == nil {
		return x, newRecord(owner, x.Shape().Clone())
	}
	y, inner := w.layer.Forward(x)
	return y, newRecord(owner, inner)
}

func (w *wrapped[O, F, B]) backward(owner any, delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	if w.layer == nil {
		shape, err := take[tensor.Shape](rec, owner)
		if err != nil {
			return nil, err
		}
		if delta.Size() != shape.NumElements() {
			return nil, fmt.Errorf("%w: delta %v for output %v", ErrShapeMismatch, delta.Shape(), shape)
		}
		return delta, nil
	}
	inner, err := take[*Record](rec, owner)
	if err != nil {
		return nil, err
	}
	return w.layer.Backward(delta, inner)
}

// Parameters returns the wrapped layer's parameters.
func (w *wrapped[O, F, B]) Parameters() []*Parameter[O] {
	if w.layer == nil {
		return nil
	}
	return w.layer.Parameters()
}

// Buffers returns the wrapped layer's buffers.
func (w *wrapped[O, F, B]) Buffers() []NamedTensor[O] {
	if s, ok := w.layer.(Stateful[O]); ok {
		return s.Buffers()
	}
	return nil
}

// Train switches the point and its layer to training mode.
func (w *wrapped[O, F, B]) Train() {
	w.mode.Train()
	if w.layer != nil {
		w.layer.Train()
	}
}

// Eval switches the point and its layer to evaluation mode.
func (w *wrapped[O, F, B]) Eval() {
	w.mode.Eval()
	if w.layer != nil {
		w.layer.Eval()
	}
}

func ones[O posit.Format](n int) []posit.Posit[O] {
	v := make([]posit.Posit[O], n)
	for i := range v {
		v[i] = posit.One[O]()
	}
	return v
}

// pow10 returns 10^x.
func pow10[O posit.Format](x posit.Posit[O]) posit.Posit[O] {
	return x.Mul(posit.FromFloat64[O](math.Ln10)).Exp()
}

// roundPow2 rounds p to the power of two nearest in log scale, keeping the
// sign. Zero and NaR are returned unchanged.
func roundPow2[O posit.Format](p posit.Posit[O]) posit.Posit[O] {
	if p.IsZero() || p.IsNaR() {
		return p
	}
	f := p.Float64()
	return posit.FromFloat64[O](math.Copysign(math.Exp2(math.Round(math.Log2(math.Abs(f)))), f))
}
