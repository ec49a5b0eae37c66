package kernel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

type p16 = posit.P16E1

// randInts fills a tensor with small integers so that every intermediate
// result stays exactly representable and float64 references are exact.
func randInts(rng *rand.Rand, shape tensor.Shape, lo, hi int) *tensor.Tensor[p16] {
	x := tensor.New[p16](shape)
	for i := range x.Size() {
		x.Set(i, posit.FromInt[p16](lo+rng.Intn(hi-lo+1)))
	}
	return x
}

func assertValues(t *testing.T, want []float64, got *tensor.Tensor[p16], msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, got.Float64s(), msgAndArgs...)
}
