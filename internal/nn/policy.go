package nn

import (
	"fmt"

	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/window"
)

// Precision names the three posit configurations of a model.
type Precision struct {
	Optimizer posit.Config `json:"optimizer"`
	Forward   posit.Config `json:"forward"`
	Backward  posit.Config `json:"backward"`
}

// String returns e.g. "opt=posit<16,1> fwd=posit<8,0> bwd=posit<12,1>".
func (p Precision) String() string {
	return fmt.Sprintf("opt=%s fwd=%s bwd=%s", p.Optimizer, p.Forward, p.Backward)
}

// Policy fixes the precisions of every layer built from it through its type
// parameters and carries the execution context shared by those layers.
//
// O is the format of authoritative weights, gradients and optimizer state.
// F is the format of the forward pass. B is the format of the backward pass
// and of freshly computed gradients before they are accumulated at O.
//
// The zero value runs serially and builds windows on demand.
type Policy[O, F, B posit.Format] struct {
	// Parallel splits kernel loops across goroutines.
	Parallel parallel.Config
	// Windows memoizes convolution and pooling index maps. Layers built from
	// the same policy share it.
	Windows *window.Cache
}

// NewPolicy returns a policy with a fresh window cache.
func NewPolicy[O, F, B posit.Format](par parallel.Config) Policy[O, F, B] {
	return Policy[O, F, B]{Parallel: par, Windows: &window.Cache{}}
}

// Precision returns the configurations selected by the type parameters.
func (Policy[O, F, B]) Precision() Precision {
	return Precision{
		Optimizer: posit.ConfigOf[O](),
		Forward:   posit.ConfigOf[F](),
		Backward:  posit.ConfigOf[B](),
	}
}
