package kernel

import (
	"fmt"

	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
	"github.com/born-ml/positnn/internal/window"
)

// ConvParams holds the spatial hyperparameters of a 2-D convolution.
type ConvParams struct {
	Stride  int
	Padding int
	// Dilation dilates the input (not the kernel). Used by the input-gradient
	// pass to undo the forward stride.
	Dilation int
	// ExtraH and ExtraW pad the bottom and right edges only.
	ExtraH, ExtraW int
}

func (p ConvParams) geometry(inH, inW, kH, kW int) window.Geometry {
	return window.Geometry{
		InH: inH, InW: inW,
		KernelH: kH, KernelW: kW,
		Stride:   p.Stride,
		Padding:  p.Padding,
		Dilation: p.Dilation,
		ExtraH:   p.ExtraH,
		ExtraW:   p.ExtraW,
	}
}

// Conv2d cross-correlates input [N, C, H, W] with weight [O, C, KH, KW].
// Each output element starts from bias[o] (or zero when bias is nil), then
// accumulates input*weight over every input channel and valid window tap in
// one quire, and is rounded once. The result is [N, O, OH, OW].
func Conv2d[F posit.Format](input, weight, bias *tensor.Tensor[F], p ConvParams, cache *window.Cache, par parallel.Config) *tensor.Tensor[F] {
	mustRank("Conv2d", input, 4)
	mustRank("Conv2d", weight, 4)
	is, ws := input.Shape(), weight.Shape()
	if is[1] != ws[1] {
		panic(fmt.Sprintf("kernel.Conv2d: input channels %d do not match weight %v", is[1], ws))
	}
	if bias != nil && bias.Size() != ws[0] {
		panic(fmt.Sprintf("kernel.Conv2d: bias %v does not match %d output channels", bias.Shape(), ws[0]))
	}

	g := p.geometry(is[2], is[3], ws[2], ws[3])
	mustGeometry("Conv2d", g)
	w := windowFor(cache, window.OutputMajor, g)

	batch, inCh, outCh := is[0], is[1], ws[0]
	plane := w.OutH * w.OutW
	out := tensor.New[F](tensor.Shape{batch, outCh, w.OutH, w.OutW})

	in, wt, od := input.Data(), weight.Data(), out.Data()
	inBatch, inChan := input.Strides()[0], input.Strides()[1]
	wOut, wIn := weight.Strides()[0], weight.Strides()[1]
	var bd []posit.Posit[F]
	if bias != nil {
		bd = bias.Data()
	}

	parallel.ForRange(len(od), func(begin, end int) {
		var q posit.Quire[F]
		for n := begin; n < end; n++ {
			b := n / (outCh * plane)
			o := n / plane % outCh
			pos := n % plane

			if bd != nil {
				q.Set(bd[o])
			} else {
				q.Reset()
			}
			lo, hi := w.Bounds(pos)
			for c := range inCh {
				ibase := b*inBatch + c*inChan
				wbase := o*wOut + c*wIn
				for t := lo; t < hi; t++ {
					q.AddProduct(in[ibase+w.MapWindow[t]], wt[wbase+w.KernelWindow[t]])
				}
			}
			od[n] = q.Posit()
		}
	}, par)

	observe("Conv2d", len(od))
	return out
}

// Conv2dWeightGrad computes the weight gradient of a convolution from the
// layer input [N, C, H, W] and the output gradient delta [N, O, OH, OW]. The
// batch dimension is contracted inside the accumulator. The result is
// [O, C, kernelH, kernelW] and is not normalized by batch size.
func Conv2dWeightGrad[F posit.Format](input, delta *tensor.Tensor[F], kernelH, kernelW int, p ConvParams, cache *window.Cache, par parallel.Config) *tensor.Tensor[F] {
	mustRank("Conv2dWeightGrad", input, 4)
	mustRank("Conv2dWeightGrad", delta, 4)
	is, ds := input.Shape(), delta.Shape()
	if is[0] != ds[0] {
		panic(fmt.Sprintf("kernel.Conv2dWeightGrad: batch of input %v and delta %v differ", is, ds))
	}

	g := p.geometry(is[2], is[3], kernelH, kernelW)
	mustGeometry("Conv2dWeightGrad", g)
	w := windowFor(cache, window.KernelMajor, g)
	if w.OutH != ds[2] || w.OutW != ds[3] {
		panic(fmt.Sprintf("kernel.Conv2dWeightGrad: delta %v does not match output %dx%d", ds, w.OutH, w.OutW))
	}

	batch, inCh, outCh := is[0], is[1], ds[1]
	taps := kernelH * kernelW
	out := tensor.New[F](tensor.Shape{outCh, inCh, kernelH, kernelW})

	in, dd, od := input.Data(), delta.Data(), out.Data()
	inBatch, inChan := input.Strides()[0], input.Strides()[1]
	dBatch, dChan := delta.Strides()[0], delta.Strides()[1]

	parallel.ForRange(len(od), func(begin, end int) {
		var q posit.Quire[F]
		for n := begin; n < end; n++ {
			o := n / (inCh * taps)
			c := n / taps % inCh
			tap := n % taps

			q.Reset()
			lo, hi := w.Bounds(tap)
			for b := range batch {
				ibase := b*inBatch + c*inChan
				dbase := b*dBatch + o*dChan
				for t := lo; t < hi; t++ {
					q.AddProduct(in[ibase+w.MapWindow[t]], dd[dbase+w.KernelWindow[t]])
				}
			}
			od[n] = q.Posit()
		}
	}, par)

	observe("Conv2dWeightGrad", len(od))
	return out
}

// RotateWeight swaps the input and output channel axes of a kernel
// [O, C, KH, KW] and reverses the taps of every channel pair, giving
// [C, O, KH, KW].
func RotateWeight[F posit.Format](w *tensor.Tensor[F]) *tensor.Tensor[F] {
	mustRank("RotateWeight", w, 4)
	s := w.Shape()
	outCh, inCh, taps := s[0], s[1], s[2]*s[3]
	out := tensor.New[F](tensor.Shape{inCh, outCh, s[2], s[3]})
	src, dst := w.Data(), out.Data()
	for o := range outCh {
		for c := range inCh {
			from := (o*inCh + c) * taps
			to := (c*outCh + o) * taps
			for t := range taps {
				dst[to+taps-1-t] = src[from+t]
			}
		}
	}
	return out
}

// Conv2dInputGrad propagates delta [N, O, OH, OW] back through a convolution
// with weight [O, C, K, K], giving [N, C, inH, inW]. It convolves the
// stride-dilated delta with the rotated kernel using padding K-1-padding.
// Input rows and columns the forward pass never reached receive zero.
func Conv2dInputGrad[F posit.Format](delta, weight *tensor.Tensor[F], inH, inW int, p ConvParams, cache *window.Cache, par parallel.Config) *tensor.Tensor[F] {
	mustRank("Conv2dInputGrad", delta, 4)
	mustRank("Conv2dInputGrad", weight, 4)
	ws, ds := weight.Shape(), delta.Shape()
	if ws[2] != ws[3] {
		panic(fmt.Sprintf("kernel.Conv2dInputGrad: square kernel required, got %v", ws))
	}
	k := ws[2]
	stride := max(p.Stride, 1)
	pad := k - 1 - p.Padding
	if pad < 0 {
		panic(fmt.Sprintf("kernel.Conv2dInputGrad: padding %d exceeds kernel size %d - 1", p.Padding, k))
	}

	reachH := (ds[2]-1)*stride + k - 2*p.Padding
	reachW := (ds[3]-1)*stride + k - 2*p.Padding
	if inH < reachH || inW < reachW {
		panic(fmt.Sprintf("kernel.Conv2dInputGrad: input %dx%d smaller than reachable %dx%d", inH, inW, reachH, reachW))
	}

	back := ConvParams{
		Stride:   1,
		Padding:  pad,
		Dilation: stride,
		ExtraH:   inH - reachH,
		ExtraW:   inW - reachW,
	}
	return Conv2d(delta, RotateWeight(weight), nil, back, cache, par)
}
