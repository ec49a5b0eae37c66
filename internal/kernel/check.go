package kernel

import (
	"fmt"

	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
	"github.com/born-ml/positnn/internal/window"
)

func mustRank[F posit.Format](op string, t *tensor.Tensor[F], rank int) {
	if t.Dim() != rank {
		panic(fmt.Sprintf("kernel.%s: expected rank %d, got shape %v", op, rank, t.Shape()))
	}
}

func mustGeometry(op string, g window.Geometry) {
	if err := g.Validate(); err != nil {
		panic(fmt.Sprintf("kernel.%s: %v", op, err))
	}
}

func windowFor(cache *window.Cache, kind window.Kind, g window.Geometry) *window.Window {
	if cache != nil {
		return cache.Get(kind, g)
	}
	switch kind {
	case window.InputMajor:
		return window.Inverse(g)
	case window.KernelMajor:
		return window.ByKernel(g)
	default:
		return window.Forward(g)
	}
}
