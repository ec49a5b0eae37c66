package kernel

import (
	"fmt"

	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
	"github.com/born-ml/positnn/internal/window"
)

// PoolParams holds the geometry of a square 2-D pooling window.
type PoolParams struct {
	Kernel  int
	Stride  int
	Padding int
}

func (p PoolParams) geometry(inH, inW int) window.Geometry {
	stride := p.Stride
	if stride <= 0 {
		stride = p.Kernel
	}
	return window.Geometry{
		InH: inH, InW: inW,
		KernelH: p.Kernel, KernelW: p.Kernel,
		Stride:  stride,
		Padding: p.Padding,
	}
}

// Overlapping reports whether neighbouring windows share input elements.
func (p PoolParams) Overlapping() bool {
	stride := p.Stride
	if stride <= 0 {
		stride = p.Kernel
	}
	return stride < p.Kernel
}

// MaxPool2d takes the maximum of every window of input [N, C, H, W]. Ties keep
// the first maximal tap in row-major window order. The second result records,
// for every output element, the flat index into input of the selected
// element, or -1 when the window lies entirely in padding (the output is then
// zero).
func MaxPool2d[F posit.Format](input *tensor.Tensor[F], p PoolParams, cache *window.Cache, par parallel.Config) (*tensor.Tensor[F], *tensor.Indices) {
	mustRank("MaxPool2d", input, 4)
	s := input.Shape()
	g := p.geometry(s[2], s[3])
	mustGeometry("MaxPool2d", g)
	w := windowFor(cache, window.OutputMajor, g)

	plane := w.OutH * w.OutW
	inPlane := s[2] * s[3]
	shape := tensor.Shape{s[0], s[1], w.OutH, w.OutW}
	out := tensor.New[F](shape)
	idx := tensor.NewIndices(shape)

	in, od, id := input.Data(), out.Data(), idx.Data()
	parallel.ForRange(len(od), func(begin, end int) {
		for n := begin; n < end; n++ {
			base := n / plane * inPlane
			lo, hi := w.Bounds(n % plane)
			if lo == hi {
				od[n], id[n] = posit.Zero[F](), -1
				continue
			}
			best := base + w.MapWindow[lo]
			for t := lo + 1; t < hi; t++ {
				if i := base + w.MapWindow[t]; in[best].Less(in[i]) {
					best = i
				}
			}
			od[n], id[n] = in[best], best
		}
	}, par)

	observe("MaxPool2d", len(od))
	return out, idx
}

// MaxPool2dBackward routes delta to the input positions recorded by
// MaxPool2d. A position chosen by a single window receives that gradient
// directly; a position chosen by several windows receives their exact sum.
// Every other position is zero.
func MaxPool2dBackward[F posit.Format](delta *tensor.Tensor[F], indices *tensor.Indices, inputShape tensor.Shape, p PoolParams, par parallel.Config) *tensor.Tensor[F] {
	if delta.Size() != indices.Size() {
		panic(fmt.Sprintf("kernel.MaxPool2dBackward: delta %v does not match indices %v", delta.Shape(), indices.Shape()))
	}
	out := tensor.New[F](inputShape)
	dd, od, id := delta.Data(), out.Data(), indices.Data()

	if !p.Overlapping() {
		parallel.ForRange(len(dd), func(begin, end int) {
			for n := begin; n < end; n++ {
				if i := id[n]; i >= 0 {
					od[i] = dd[n]
				}
			}
		}, par)
		observe("MaxPool2dBackward", len(od))
		return out
	}

	// Invert the selection so each input position owns the list of outputs
	// that picked it.
	start := make([]int, len(od)+1)
	for _, i := range id {
		if i >= 0 {
			start[i+1]++
		}
	}
	for i := 1; i < len(start); i++ {
		start[i] += start[i-1]
	}
	from := make([]int, start[len(od)])
	next := append([]int(nil), start[:len(od)]...)
	for n, i := range id {
		if i >= 0 {
			from[next[i]] = n
			next[i]++
		}
	}

	parallel.ForRange(len(od), func(begin, end int) {
		var q posit.Quire[F]
		for i := begin; i < end; i++ {
			switch lo, hi := start[i], start[i+1]; hi - lo {
			case 0:
			case 1:
				od[i] = dd[from[lo]]
			default:
				q.Reset()
				for _, n := range from[lo:hi] {
					q.Add(dd[n])
				}
				od[i] = q.Posit()
			}
		}
	}, par)

	observe("MaxPool2dBackward", len(od))
	return out
}

// AvgPool2d averages every window of input [N, C, H, W]. Taps are summed
// exactly and divided by the nominal window area Kernel*Kernel, including at
// borders where some taps fall into padding.
func AvgPool2d[F posit.Format](input *tensor.Tensor[F], p PoolParams, cache *window.Cache, par parallel.Config) *tensor.Tensor[F] {
	mustRank("AvgPool2d", input, 4)
	s := input.Shape()
	g := p.geometry(s[2], s[3])
	mustGeometry("AvgPool2d", g)
	w := windowFor(cache, window.OutputMajor, g)

	plane := w.OutH * w.OutW
	inPlane := s[2] * s[3]
	area := posit.FromInt[F](p.Kernel * p.Kernel)
	out := tensor.New[F](tensor.Shape{s[0], s[1], w.OutH, w.OutW})

	in, od := input.Data(), out.Data()
	parallel.ForRange(len(od), func(begin, end int) {
		var q posit.Quire[F]
		for n := begin; n < end; n++ {
			base := n / plane * inPlane
			lo, hi := w.Bounds(n % plane)
			q.Reset()
			for t := lo; t < hi; t++ {
				q.Add(in[base+w.MapWindow[t]])
			}
			od[n] = q.Posit().Div(area)
		}
	}, par)

	observe("AvgPool2d", len(od))
	return out
}

// AvgPool2dBackward spreads delta [N, C, OH, OW] back over input
// [N, C, H, W]: each input position receives the exact sum of the deltas of
// every window covering it, divided by Kernel*Kernel.
func AvgPool2dBackward[F posit.Format](delta *tensor.Tensor[F], inputShape tensor.Shape, p PoolParams, cache *window.Cache, par parallel.Config) *tensor.Tensor[F] {
	mustRank("AvgPool2dBackward", delta, 4)
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("kernel.AvgPool2dBackward: input shape %v is not rank 4", inputShape))
	}
	g := p.geometry(inputShape[2], inputShape[3])
	mustGeometry("AvgPool2dBackward", g)
	w := windowFor(cache, window.InputMajor, g)
	ds := delta.Shape()
	if ds[2] != w.OutH || ds[3] != w.OutW {
		panic(fmt.Sprintf("kernel.AvgPool2dBackward: delta %v does not match output %dx%d", ds, w.OutH, w.OutW))
	}

	plane := w.OutH * w.OutW
	inPlane := inputShape[2] * inputShape[3]
	area := posit.FromInt[F](p.Kernel * p.Kernel)
	out := tensor.New[F](inputShape)

	dd, od := delta.Data(), out.Data()
	parallel.ForRange(len(od), func(begin, end int) {
		var q posit.Quire[F]
		for i := begin; i < end; i++ {
			base := i / inPlane * plane
			lo, hi := w.Bounds(i % inPlane)
			if lo == hi {
				continue
			}
			q.Reset()
			for t := lo; t < hi; t++ {
				q.Add(dd[base+w.MapWindow[t]])
			}
			od[i] = q.Posit().Div(area)
		}
	}, par)

	observe("AvgPool2dBackward", len(od))
	return out
}
