package tensor

import "github.com/born-ml/positnn/internal/posit"

// Element-wise operators. When the operands have different sizes the
// right-hand side repeats cyclically: element i of t is combined with element
// i mod other.Size() of other. The result always has t's shape.

func (t *Tensor[F]) apply(other *Tensor[F], op func(a, b posit.Posit[F]) posit.Posit[F]) *Tensor[F] {
	n := len(other.data)
	if n == 0 {
		return t
	}
	if n == len(t.data) {
		for i := range t.data {
			t.data[i] = op(t.data[i], other.data[i])
		}
		return t
	}
	for i := range t.data {
		t.data[i] = op(t.data[i], other.data[i%n])
	}
	return t
}

func (t *Tensor[F]) applyScalar(v posit.Posit[F], op func(a, b posit.Posit[F]) posit.Posit[F]) *Tensor[F] {
	for i := range t.data {
		t.data[i] = op(t.data[i], v)
	}
	return t
}

func add[F posit.Format](a, b posit.Posit[F]) posit.Posit[F] { return a.Add(b) }
func sub[F posit.Format](a, b posit.Posit[F]) posit.Posit[F] { return a.Sub(b) }
func mul[F posit.Format](a, b posit.Posit[F]) posit.Posit[F] { return a.Mul(b) }
func div[F posit.Format](a, b posit.Posit[F]) posit.Posit[F] { return a.Div(b) }

// AddAssign performs t += other in place and returns t.
func (t *Tensor[F]) AddAssign(other *Tensor[F]) *Tensor[F] { return t.apply(other, add[F]) }

// SubAssign performs t -= other in place and returns t.
func (t *Tensor[F]) SubAssign(other *Tensor[F]) *Tensor[F] { return t.apply(other, sub[F]) }

// MulAssign performs t *= other in place and returns t.
func (t *Tensor[F]) MulAssign(other *Tensor[F]) *Tensor[F] { return t.apply(other, mul[F]) }

// DivAssign performs t /= other in place and returns t.
func (t *Tensor[F]) DivAssign(other *Tensor[F]) *Tensor[F] { return t.apply(other, div[F]) }

// AddScalarAssign adds v to every element.
func (t *Tensor[F]) AddScalarAssign(v posit.Posit[F]) *Tensor[F] { return t.applyScalar(v, add[F]) }

// SubScalarAssign subtracts v from every element.
func (t *Tensor[F]) SubScalarAssign(v posit.Posit[F]) *Tensor[F] { return t.applyScalar(v, sub[F]) }

// MulScalarAssign multiplies every element by v.
func (t *Tensor[F]) MulScalarAssign(v posit.Posit[F]) *Tensor[F] { return t.applyScalar(v, mul[F]) }

// DivScalarAssign divides every element by v.
func (t *Tensor[F]) DivScalarAssign(v posit.Posit[F]) *Tensor[F] { return t.applyScalar(v, div[F]) }

// Add returns t + other as a new tensor.
func (t *Tensor[F]) Add(other *Tensor[F]) *Tensor[F] { return t.Clone().AddAssign(other) }

// Sub returns t - other as a new tensor.
func (t *Tensor[F]) Sub(other *Tensor[F]) *Tensor[F] { return t.Clone().SubAssign(other) }

// Mul returns t * other as a new tensor.
func (t *Tensor[F]) Mul(other *Tensor[F]) *Tensor[F] { return t.Clone().MulAssign(other) }

// Div returns t / other as a new tensor.
func (t *Tensor[F]) Div(other *Tensor[F]) *Tensor[F] { return t.Clone().DivAssign(other) }

// AddScalar returns t + v as a new tensor.
func (t *Tensor[F]) AddScalar(v posit.Posit[F]) *Tensor[F] { return t.Clone().AddScalarAssign(v) }

// SubScalar returns t - v as a new tensor.
func (t *Tensor[F]) SubScalar(v posit.Posit[F]) *Tensor[F] { return t.Clone().SubScalarAssign(v) }

// MulScalar returns t * v as a new tensor.
func (t *Tensor[F]) MulScalar(v posit.Posit[F]) *Tensor[F] { return t.Clone().MulScalarAssign(v) }

// DivScalar returns t / v as a new tensor.
func (t *Tensor[F]) DivScalar(v posit.Posit[F]) *Tensor[F] { return t.Clone().DivScalarAssign(v) }

// Neg returns -t as a new tensor.
func (t *Tensor[F]) Neg() *Tensor[F] {
	out := t.Clone()
	for i, v := range out.data {
		out.data[i] = v.Neg()
	}
	return out
}
