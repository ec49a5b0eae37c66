// Package nn implements the layers, losses and mixed-precision parameters of
// the posit training core.
//
// This package provides building blocks for constructing neural networks:
//   - Module interface: Forward/Backward pair linked by an activation Record
//   - Parameter and MixedTensor: one logical weight held at optimizer,
//     forward and backward precision
//   - Layers: Linear, Conv2d, MaxPool2d, AvgPool2d, Dropout, BatchNorm1d
//   - Activations: ReLU, Sigmoid, Tanh, LogSoftmax
//   - Loss functions: CrossEntropy, MSE, NLL
//   - Gradient scaling: BackScale and AdaptiveScale points wrapping layers
//   - Sequential: Container for stacking layers
//
// Every layer is generic over three posit formats: O for the authoritative
// weights and gradients the optimizer works on, F for the forward pass and B
// for the backward pass. A Policy value fixes all three at construction.
//
// There is no autograd graph. Forward returns an opaque Record holding
// whatever the matching Backward needs (layer input, masks, arg-max indices,
// normalization statistics). A Record is consumed by exactly one Backward call
// on the module that produced it.
package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

var (
	// ErrRecordMismatch is returned when Backward receives a record produced
	// by a different module, or no record at all.
	ErrRecordMismatch = errors.New("nn: activation record belongs to another module")

	// ErrRecordConsumed is returned when a record is passed to Backward twice.
	ErrRecordConsumed = errors.New("nn: activation record already consumed")

	// ErrShapeMismatch is returned by losses given operands of incompatible
	// size.
	ErrShapeMismatch = errors.New("nn: shape mismatch")

	// ErrTargetRange is returned when a class target lies outside the output
	// columns.
	ErrTargetRange = errors.New("nn: target index out of range")

	// ErrUnknownReduction is returned for a Reduction other than Mean or Sum.
	ErrUnknownReduction = errors.New("nn: unknown reduction")
)

// Module is the interface implemented by every layer.
//
// Forward computes the output for x and returns the activation record the
// matching Backward call needs. Backward consumes the record, adds this
// module's parameter gradients into their accumulators and returns the
// gradient with respect to the module input.
//
// Type parameters O, F and B are the optimizer, forward and backward posit
// formats.
type Module[O, F, B posit.Format] interface {
	Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record)
	Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error)

	// Parameters returns all trainable parameters of this module, in a stable
	// order. Modules without parameters return nil.
	Parameters() []*Parameter[O]

	// Train and Eval switch the mode of this module and all its children.
	Train()
	Eval()
	Training() bool
}

// Stateful is implemented by modules holding non-trainable state that must be
// persisted with the model, such as batch-norm running statistics.
type Stateful[O posit.Format] interface {
	Buffers() []NamedTensor[O]
}

// Record is the opaque activation record linking one Forward call to its
// Backward call.
type Record struct {
	owner    any
	state    any
	consumed bool
}

func newRecord(owner, state any) *Record {
	return &Record{owner: owner, state: state}
}

// Consumed reports whether the record has been used by Backward.
func (r *Record) Consumed() bool {
	return r != nil && r.consumed
}

// take validates rec against its expected owner and marks it consumed.
func take[S any](rec *Record, owner any) (S, error) {
	var zero S
	if rec == nil || rec.owner != owner {
		return zero, ErrRecordMismatch
	}
	if rec.consumed {
		return zero, ErrRecordConsumed
	}
	s, ok := rec.state.(S)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected state %T", ErrRecordMismatch, rec.state)
	}
	rec.consumed = true
	return s, nil
}

// mode is embedded by every module to carry the training flag.
type mode struct {
	training bool
}

// Train switches the module to training mode.
func (m *mode) Train() { m.training = true }

// Eval switches the module to evaluation mode.
func (m *mode) Eval() { m.training = false }

// Training reports whether the module is in training mode.
func (m *mode) Training() bool { return m.training }

// NamedTensor is one entry of a module's persistent state.
type NamedTensor[O posit.Format] struct {
	Name   string
	Tensor *tensor.Tensor[O]
}

// NamedState returns the persistent state of m: for every leaf module in
// order, its parameter weights followed by its buffers. Children of a
// Sequential are prefixed with their index, e.g. "0.weight", "3.running_var".
func NamedState[O, F, B posit.Format](m Module[O, F, B]) []NamedTensor[O] {
	if s, ok := m.(*Sequential[O, F, B]); ok {
		var out []NamedTensor[O]
		for i, child := range s.modules {
			for _, nt := range NamedState(child) {
				nt.Name = fmt.Sprintf("%d.%s", i, nt.Name)
				out = append(out, nt)
			}
		}
		return out
	}

	var out []NamedTensor[O]
	for _, p := range m.Parameters() {
		out = append(out, NamedTensor[O]{Name: p.Name(), Tensor: p.Weight()})
	}
	if s, ok := m.(Stateful[O]); ok {
		out = append(out, s.Buffers()...)
	}
	return out
}

// State returns the tensors of NamedState without their names.
func State[O, F, B posit.Format](m Module[O, F, B]) []*tensor.Tensor[O] {
	named := NamedState(m)
	out := make([]*tensor.Tensor[O], len(named))
	for i, nt := range named {
		out[i] = nt.Tensor
	}
	return out
}

// ZeroGrad clears the gradient accumulators of params.
func ZeroGrad[O posit.Format](params []*Parameter[O]) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// Sync refreshes the forward and backward copies of params from their
// authoritative weights.
func Sync[O posit.Format](params []*Parameter[O]) {
	for _, p := range params {
		p.Update()
	}
}
