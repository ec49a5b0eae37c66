package nn

import (
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// SlotKind tells whether a MixedTensor view owns its storage.
type SlotKind uint8

const (
	// Owned views have their own storage, refreshed by Sync.
	Owned SlotKind = iota
	// Aliased views share storage with another view of the same format.
	Aliased
)

func (k SlotKind) String() string {
	if k == Aliased {
		return "aliased"
	}
	return "owned"
}

type slot[T posit.Format] struct {
	kind SlotKind
	t    *tensor.Tensor[T]
}

// MixedTensor is one logical weight materialized at optimizer precision O,
// forward precision F and backward precision B.
//
// The optimizer tensor is authoritative. A view whose format equals the
// optimizer format aliases the optimizer tensor; a backward view whose
// format equals the forward format aliases the forward view. Every other
// view owns a converted copy that Sync recomputes.
type MixedTensor[O, F, B posit.Format] struct {
	optimizer *tensor.Tensor[O]
	forward   slot[F]
	backward  slot[B]
}

// NewMixedTensor allocates a zero weight of the given shape.
func NewMixedTensor[O, F, B posit.Format](shape tensor.Shape) *MixedTensor[O, F, B] {
	m := &MixedTensor[O, F, B]{optimizer: tensor.New[O](shape)}

	if f, ok := any(m.optimizer).(*tensor.Tensor[F]); ok {
		m.forward = slot[F]{kind: Aliased, t: f}
	} else {
		m.forward = slot[F]{kind: Owned, t: tensor.New[F](shape)}
	}

	switch {
	case aliasOf[B](m.optimizer) != nil:
		m.backward = slot[B]{kind: Aliased, t: aliasOf[B](m.optimizer)}
	case aliasOf[B](m.forward.t) != nil:
		m.backward = slot[B]{kind: Aliased, t: aliasOf[B](m.forward.t)}
	default:
		m.backward = slot[B]{kind: Owned, t: tensor.New[B](shape)}
	}
	return m
}

func aliasOf[T, S posit.Format](t *tensor.Tensor[S]) *tensor.Tensor[T] {
	a, _ := any(t).(*tensor.Tensor[T])
	return a
}

// Optimizer returns the authoritative tensor.
func (m *MixedTensor[O, F, B]) Optimizer() *tensor.Tensor[O] { return m.optimizer }

// Forward returns the forward-precision view.
func (m *MixedTensor[O, F, B]) Forward() *tensor.Tensor[F] { return m.forward.t }

// Backward returns the backward-precision view.
func (m *MixedTensor[O, F, B]) Backward() *tensor.Tensor[B] { return m.backward.t }

// ForwardKind reports whether the forward view is owned or aliased.
func (m *MixedTensor[O, F, B]) ForwardKind() SlotKind { return m.forward.kind }

// BackwardKind reports whether the backward view is owned or aliased.
func (m *MixedTensor[O, F, B]) BackwardKind() SlotKind { return m.backward.kind }

// Sync recomputes every owned view from the optimizer tensor. It must run
// after each change to the optimizer tensor and before the next forward pass.
func (m *MixedTensor[O, F, B]) Sync() {
	if m.forward.kind == Owned {
		convertInto(m.forward.t, m.optimizer)
	}
	if m.backward.kind == Owned {
		convertInto(m.backward.t, m.optimizer)
	}
}

func convertInto[To, From posit.Format](dst *tensor.Tensor[To], src *tensor.Tensor[From]) {
	d, s := dst.Data(), src.Data()
	for i := range d {
		d[i] = posit.Convert[To](s[i])
	}
}
