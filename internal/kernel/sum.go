package kernel

import (
	"fmt"

	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Sum returns the exactly accumulated total of all elements.
func Sum[F posit.Format](a *tensor.Tensor[F]) posit.Posit[F] {
	observe("Sum", 1)
	return posit.Sum(a.Data())
}

// SumAxis exactly sums along axis; the axis is removed from the result.
func SumAxis[F posit.Format](a *tensor.Tensor[F], axis int, par parallel.Config) *tensor.Tensor[F] {
	return reduceAxis("SumAxis", a, nil, axis, par)
}

// SumFirst exactly sums along the first axis.
func SumFirst[F posit.Format](a *tensor.Tensor[F], par parallel.Config) *tensor.Tensor[F] {
	return reduceAxis("SumFirst", a, nil, 0, par)
}

// Dot exactly accumulates the element-wise product of a and b along axis.
func Dot[F posit.Format](a, b *tensor.Tensor[F], axis int, par parallel.Config) *tensor.Tensor[F] {
	mustSameSize("Dot", a, b)
	return reduceAxis("Dot", a, b, axis, par)
}

func reduceAxis[F posit.Format](op string, a, b *tensor.Tensor[F], axis int, par parallel.Config) *tensor.Tensor[F] {
	if axis < 0 || axis >= a.Dim() {
		panic(fmt.Sprintf("kernel.%s: axis %d out of range for shape %v", op, axis, a.Shape()))
	}
	shape := a.Shape().Without(axis)
	if len(shape) == 0 {
		shape = tensor.Shape{1}
	}
	out := tensor.New[F](shape)

	extent := a.Shape()[axis]
	stride := a.Strides()[axis]
	ad, od := a.Data(), out.Data()
	var bd []posit.Posit[F]
	if b != nil {
		bd = b.Data()
	}

	parallel.ForRange(len(od), func(begin, end int) {
		var q posit.Quire[F]
		for n := begin; n < end; n++ {
			base := (n/stride)*extent*stride + n%stride
			q.Reset()
			for k := range extent {
				i := base + k*stride
				if bd != nil {
					q.AddProduct(ad[i], bd[i])
				} else {
					q.Add(ad[i])
				}
			}
			od[n] = q.Posit()
		}
	}, par)

	observe(op, len(od))
	return out
}

// SumLast2 exactly sums over the last two axes, e.g. [N, C, H, W] -> [N, C].
func SumLast2[F posit.Format](a *tensor.Tensor[F], par parallel.Config) *tensor.Tensor[F] {
	if a.Dim() < 2 {
		panic(fmt.Sprintf("kernel.SumLast2: rank %d too small", a.Dim()))
	}
	shape := a.Shape()[:a.Dim()-2].Clone()
	if len(shape) == 0 {
		shape = tensor.Shape{1}
	}
	out := tensor.New[F](shape)
	plane := a.Shape()[a.Dim()-2] * a.Shape()[a.Dim()-1]
	ad, od := a.Data(), out.Data()

	parallel.ForRange(len(od), func(begin, end int) {
		for n := begin; n < end; n++ {
			od[n] = posit.Sum(ad[n*plane : (n+1)*plane])
		}
	}, par)

	observe("SumLast2", len(od))
	return out
}
