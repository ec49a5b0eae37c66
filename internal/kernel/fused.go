package kernel

import (
	"fmt"

	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

func mustSameSize[F posit.Format](op string, a, b *tensor.Tensor[F]) {
	if a.Size() != b.Size() {
		panic(fmt.Sprintf("kernel.%s: sizes differ: %v and %v", op, a.Shape(), b.Shape()))
	}
}

// Fused sets a = a*alpha + b*beta in place with one rounding per element.
func Fused[F posit.Format](a, b *tensor.Tensor[F], alpha, beta posit.Posit[F], par parallel.Config) {
	mustSameSize("Fused", a, b)
	ad, bd := a.Data(), b.Data()
	alpha1, beta1 := alpha.IsOne(), beta.IsOne()

	parallel.ForRange(len(ad), func(begin, end int) {
		var q posit.Quire[F]
		for i := begin; i < end; i++ {
			if alpha1 {
				q.Set(ad[i])
			} else {
				q.Reset()
				q.AddProduct(ad[i], alpha)
			}
			if beta1 {
				q.Add(bd[i])
			} else {
				q.AddProduct(bd[i], beta)
			}
			ad[i] = q.Posit()
		}
	}, par)
	observe("Fused", len(ad))
}

// FusedInto sets c = a*alpha + b with one rounding per element. c may be the
// same tensor as a or b.
func FusedInto[F posit.Format](a, b, c *tensor.Tensor[F], alpha posit.Posit[F], par parallel.Config) {
	mustSameSize("FusedInto", a, b)
	mustSameSize("FusedInto", a, c)
	ad, bd, cd := a.Data(), b.Data(), c.Data()

	parallel.ForRange(len(ad), func(begin, end int) {
		if alpha.IsOne() {
			for i := begin; i < end; i++ {
				cd[i] = ad[i].Add(bd[i])
			}
			return
		}
		for i := begin; i < end; i++ {
			cd[i] = posit.FMA(ad[i], alpha, bd[i])
		}
	}, par)
	observe("FusedInto", len(ad))
}
