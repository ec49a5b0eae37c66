package kernel

import (
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Mean returns the exact sum of all elements rounded once, divided by the
// element count.
func Mean[F posit.Format](a *tensor.Tensor[F]) posit.Posit[F] {
	sum := posit.Sum(a.Data())
	return sum.Div(posit.FromInt[F](a.Size()))
}

// Variance returns the population variance. Each deviation from the rounded
// mean is rounded once and its square accumulated exactly.
func Variance[F posit.Format](a *tensor.Tensor[F]) posit.Posit[F] {
	mean := Mean(a)
	var q posit.Quire[F]
	for _, v := range a.Data() {
		d := mean.Sub(v)
		q.AddProduct(d, d)
	}
	return q.Posit().Div(posit.FromInt[F](a.Size()))
}

// Std returns the square root of Variance.
func Std[F posit.Format](a *tensor.Tensor[F]) posit.Posit[F] {
	return Variance(a).Sqrt()
}
