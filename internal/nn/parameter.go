package nn

import (
	"fmt"

	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Syncer refreshes derived copies of a weight after it changes.
type Syncer interface {
	Sync()
}

// Parameter represents a trainable parameter in a neural network.
//
// The weight is the authoritative optimizer-precision tensor. The gradient
// has the same shape and precision and accumulates until ZeroGrad.
//
// Example:
//
//	w := nn.NewMixedTensor[posit.P16E1, posit.P8E0, posit.P12E1](tensor.Shape{10, 4})
//	p := nn.NewMixedParameter("fc.weight", w)
//
//	// After the optimizer changed p.Weight():
//	p.Update() // refresh forward and backward views
type Parameter[O posit.Format] struct {
	name   string
	weight *tensor.Tensor[O]
	grad   *tensor.Tensor[O]
	syncer Syncer
}

// NewParameter wraps a plain tensor. Update is a no-op for such parameters.
func NewParameter[O posit.Format](name string, weight *tensor.Tensor[O]) *Parameter[O] {
	return &Parameter[O]{
		name:   name,
		weight: weight,
		grad:   tensor.New[O](weight.Shape()),
	}
}

// NewMixedParameter wraps the optimizer tensor of m. Update calls m.Sync.
func NewMixedParameter[O, F, B posit.Format](name string, m *MixedTensor[O, F, B]) *Parameter[O] {
	p := NewParameter(name, m.Optimizer())
	p.syncer = m
	return p
}

// Name returns the parameter name.
func (p *Parameter[O]) Name() string { return p.name }

// Weight returns the authoritative weight tensor.
func (p *Parameter[O]) Weight() *tensor.Tensor[O] { return p.weight }

// Grad returns the gradient accumulator.
func (p *Parameter[O]) Grad() *tensor.Tensor[O] { return p.grad }

// ZeroGrad clears the gradient accumulator.
func (p *Parameter[O]) ZeroGrad() { p.grad.Clear() }

// Update propagates the authoritative weight to any derived views.
func (p *Parameter[O]) Update() {
	if p.syncer != nil {
		p.syncer.Sync()
	}
}

// String returns the name and shape.
func (p *Parameter[O]) String() string {
	return fmt.Sprintf("%s%v", p.name, p.weight.Shape())
}

// Accumulate adds g, computed at any precision, into the gradient of p.
// g must have as many elements as the weight.
func Accumulate[O, G posit.Format](p *Parameter[O], g *tensor.Tensor[G]) {
	if g.Size() != p.grad.Size() {
		panic(fmt.Sprintf("nn.Accumulate: gradient %v does not match parameter %s", g.Shape(), p))
	}
	dst, src := p.grad.Data(), g.Data()
	for i := range dst {
		dst[i] = dst[i].Add(posit.Convert[O](src[i]))
	}
}
