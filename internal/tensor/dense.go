package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/positnn/internal/posit"
)

// ToDense returns the exact float64 values of a rank-1 or rank-2 tensor as a
// gonum matrix. Rank-1 tensors become a single row.
func ToDense[F posit.Format](t *Tensor[F]) *mat.Dense {
	switch t.Dim() {
	case 1:
		return mat.NewDense(1, t.shape[0], t.Float64s())
	case 2:
		return mat.NewDense(t.shape[0], t.shape[1], t.Float64s())
	default:
		panic(fmt.Sprintf("tensor.ToDense: rank %d not supported", t.Dim()))
	}
}

// FromDense rounds a gonum matrix to a rank-2 posit tensor.
func FromDense[F posit.Format](m mat.Matrix) *Tensor[F] {
	r, c := m.Dims()
	out := New[F](Shape{r, c})
	for i := range r {
		for j := range c {
			out.data[i*c+j] = posit.FromFloat64[F](m.At(i, j))
		}
	}
	return out
}
