package kernel

import (
	"fmt"

	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Transpose returns the transpose of a rank-2 tensor.
func Transpose[F posit.Format](a *tensor.Tensor[F]) *tensor.Tensor[F] {
	mustRank("Transpose", a, 2)
	rows, cols := a.Shape()[0], a.Shape()[1]
	out := tensor.New[F](tensor.Shape{cols, rows})
	src, dst := a.Data(), out.Data()
	for i := range rows {
		for j := range cols {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return out
}

// MatMulRow returns a·bᵗ for a [m, k] and b [n, k]: every output entry is the
// exactly accumulated dot product of a row of a with a row of b.
func MatMulRow[F posit.Format](a, b *tensor.Tensor[F], par parallel.Config) *tensor.Tensor[F] {
	return matMulRow("MatMulRow", a, b, nil, par)
}

// MatMulRowAdd returns a·bᵗ + c where element n of the result is seeded
// with c[n mod c.Size()] inside the same accumulator, so the addend costs
// no extra rounding. A bias of shape [n] therefore adds per column.
func MatMulRowAdd[F posit.Format](a, b, c *tensor.Tensor[F], par parallel.Config) *tensor.Tensor[F] {
	return matMulRow("MatMulRowAdd", a, b, c, par)
}

// MatMul returns a·b for a [m, k] and b [k, n].
func MatMul[F posit.Format](a, b *tensor.Tensor[F], par parallel.Config) *tensor.Tensor[F] {
	return matMulRow("MatMul", a, Transpose(b), nil, par)
}

// MatMulCol returns aᵗ·b for a [k, m] and b [k, n].
func MatMulCol[F posit.Format](a, b *tensor.Tensor[F], par parallel.Config) *tensor.Tensor[F] {
	return matMulRow("MatMulCol", Transpose(a), Transpose(b), nil, par)
}

func matMulRow[F posit.Format](op string, a, b, c *tensor.Tensor[F], par parallel.Config) *tensor.Tensor[F] {
	mustRank(op, a, 2)
	mustRank(op, b, 2)
	m, k := a.Shape()[0], a.Shape()[1]
	n := b.Shape()[0]
	if b.Shape()[1] != k {
		panic(fmt.Sprintf("kernel.%s: inner dimensions differ: %v and %v", op, a.Shape(), b.Shape()))
	}

	out := tensor.New[F](tensor.Shape{m, n})
	ad, bd, od := a.Data(), b.Data(), out.Data()
	var cd []posit.Posit[F]
	if c != nil && c.Size() > 0 {
		cd = c.Data()
	}

	parallel.ForRange(m*n, func(begin, end int) {
		var q posit.Quire[F]
		for idx := begin; idx < end; idx++ {
			i, j := idx/n, idx%n
			if cd != nil {
				q.Set(cd[idx%len(cd)])
			} else {
				q.Reset()
			}
			arow := ad[i*k : (i+1)*k]
			brow := bd[j*k : (j+1)*k]
			for t := range k {
				q.AddProduct(arow[t], brow[t])
			}
			od[idx] = q.Posit()
		}
	}, par)

	observe(op, m*n)
	return out
}
