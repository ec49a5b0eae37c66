package tensor

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/positnn/internal/posit"
)

type p16 = posit.P16E1

func assertEqualShape(t *testing.T, expected, actual Shape, msg string) {
	t.Helper()
	if !expected.Equal(actual) {
		t.Errorf("%s: expected shape %v, got %v", msg, expected, actual)
	}
}

func assertRowMajor[F posit.Format](t *testing.T, x *Tensor[F]) {
	t.Helper()
	assert.Equal(t, x.Shape().NumElements(), x.Size(), "size == product(shape)")
	strides := x.Strides()
	for i := range strides {
		want := 1
		for _, d := range x.Shape()[i+1:] {
			want *= d
		}
		assert.Equal(t, want, strides[i], "stride %d", i)
	}
}

func TestShapeStrides(t *testing.T) {
	tests := []struct {
		shape   Shape
		strides []int
	}{
		{Shape{4}, []int{1}},
		{Shape{2, 3}, []int{3, 1}},
		{Shape{2, 3, 4}, []int{12, 4, 1}},
		{Shape{5, 1, 2, 2}, []int{4, 4, 2, 1}},
	}
	for _, tt := range tests {
		x := New[p16](tt.shape)
		assert.Equal(t, tt.strides, x.Strides())
		assertRowMajor(t, x)
	}
}

func TestMultiIndex(t *testing.T) {
	x := New[p16](Shape{2, 3, 4})
	x.SetIndex(posit.FromInt[p16](7), 1, 2, 3)
	assert.Equal(t, posit.FromInt[p16](7), x.At(23))
	assert.Equal(t, posit.FromInt[p16](7), x.AtIndex(1, 2, 3))

	assert.Panics(t, func() { x.AtIndex(2, 0, 0) }, "out-of-range index must not wrap")
	assert.Panics(t, func() { x.AtIndex(0, 0) }, "rank mismatch")
	assert.Panics(t, func() { x.At(24) })
}

func TestReshape(t *testing.T) {
	x := MustFromFloat64s[p16](Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	x.Reshape(Shape{3, 2})
	assertEqualShape(t, Shape{3, 2}, x.Shape(), "same size")
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, x.Float64s())
	assertRowMajor(t, x)

	x.Reshape(Shape{2, 2})
	assert.Equal(t, []float64{1, 2, 3, 4}, x.Float64s(), "shrinking truncates")
	assertRowMajor(t, x)

	x.Reshape(Shape{3, 2})
	assert.Equal(t, []float64{1, 2, 3, 4, 0, 0}, x.Float64s(), "growing zero-extends")
	assertRowMajor(t, x)

	assert.Panics(t, func() { x.Reshape(Shape{0, 2}) })
}

func TestSlice(t *testing.T) {
	x := MustFromFloat64s[p16](Shape{3, 2}, 1, 2, 3, 4, 5, 6)
	s := x.Slice(1, 3)
	assertEqualShape(t, Shape{2, 2}, s.Shape(), "slice")
	assert.Equal(t, []float64{3, 4, 5, 6}, s.Float64s())

	s.Set(0, posit.Zero[p16]())
	assert.Equal(t, 3.0, x.At(2).Float64(), "slices copy")
	assert.Panics(t, func() { x.Slice(2, 4) })
}

func TestArgMaxFirstOccurrence(t *testing.T) {
	x := MustFromFloat64s[p16](Shape{3, 4},
		1, 5, 5, 2,
		-1, -1, -1, -1,
		0, 3, 1, 3,
	)
	assert.Equal(t, []int{1, 0, 1}, x.ArgMax(1).Data())
	assert.Equal(t, []int{0, 0, 0, 2}, x.ArgMax(0).Data())

	cube := MustFromFloat64s[p16](Shape{2, 2, 2}, 1, 2, 3, 0, 0, 9, 9, 1)
	am := cube.ArgMax(1)
	assertEqualShape(t, Shape{2, 2}, am.Shape(), "argmax removes the axis")
	assert.Equal(t, []int{1, 0, 1, 0}, am.Data())
}

func TestElementwiseCyclicBroadcast(t *testing.T) {
	x := MustFromFloat64s[p16](Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	row := MustFromFloat64s[p16](Shape{3}, 10, 20, 30)

	assert.Equal(t, []float64{11, 22, 33, 14, 25, 36}, x.Add(row).Float64s())
	assert.Equal(t, []float64{10, 40, 90, 40, 100, 180}, x.Mul(row).Float64s())

	pair := MustFromFloat64s[p16](Shape{2}, 1, 2)
	assert.Equal(t, []float64{0, 0, 2, 2, 4, 4}, x.Sub(pair).Float64s(), "shorter operand repeats cyclically")

	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, x.Float64s(), "non-mutating operators copy")

	x.DivScalarAssign(posit.FromInt[p16](2))
	assert.Equal(t, []float64{0.5, 1, 1.5, 2, 2.5, 3}, x.Float64s())
	assert.Equal(t, []float64{-0.5, -1, -1.5, -2, -2.5, -3}, x.Neg().Float64s())
}

func TestCastDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vals := make([]float64, 64)
	for i := range vals {
		vals[i] = rng.NormFloat64()
	}
	wide, err := FromFloat64s[posit.P32E2](Shape{8, 8}, vals)
	require.NoError(t, err)

	first := Cast[posit.P32E2](Cast[posit.P8E0](wide))
	second := Cast[posit.P32E2](Cast[posit.P8E0](wide))
	assert.True(t, first.Equal(second))
	assert.Equal(t, wide.Strides(), first.Strides())
	assertEqualShape(t, wide.Shape(), first.Shape(), "cast")
}

func TestWriteReadRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	vals := make([]float64, 2*3*4)
	for i := range vals {
		vals[i] = rng.Float64()*8 - 4
	}
	x, err := FromFloat64s[posit.P16E2](Shape{2, 3, 4}, vals)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write[posit.P16E2](&buf, x))
	y, err := Read[posit.P16E2, posit.P16E2](&buf)
	require.NoError(t, err)
	assert.True(t, x.Equal(y), "round trip is bit exact")

	buf.Reset()
	require.NoError(t, Write[posit.P8E0](&buf, x))
	narrowed, err := Read[posit.P8E0, posit.P16E2](&buf)
	require.NoError(t, err)
	assert.True(t, Cast[posit.P16E2](Cast[posit.P8E0](x)).Equal(narrowed), "file format narrows")
}

func TestReadRejectsCorruptHeader(t *testing.T) {
	x := Ones[p16](Shape{2, 2})
	var buf bytes.Buffer
	require.NoError(t, Write[p16](&buf, x))
	raw := buf.Bytes()
	raw[8] = 5 // size no longer matches shape

	_, err := Read[p16, p16](bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrCorrupt)

	dst := New[p16](Shape{4})
	buf.Reset()
	require.NoError(t, Write[p16](&buf, x))
	assert.ErrorIs(t, ReadInto[p16](&buf, dst), ErrShapeMismatch)
}

func TestReadBoundsSize(t *testing.T) {
	header := func(vals ...uint64) *bytes.Reader {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, vals))
		return bytes.NewReader(buf.Bytes())
	}

	// rank 1, size above the limit
	_, err := Read[p16, p16](header(1, MaxElements+1, MaxElements+1, 1))
	assert.ErrorIs(t, err, ErrCorrupt)

	// dimensions whose product wraps around to the stated size
	_, err = Read[p16, p16](header(2, 4, 1<<62, 4, 4, 1))
	assert.ErrorIs(t, err, ErrCorrupt)

	// plausible header, data missing
	_, err = Read[p16, p16](header(1, 1<<20, 1<<20, 1))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorrupt)
}

func TestDenseBridge(t *testing.T) {
	x := MustFromFloat64s[p16](Shape{2, 2}, 1, 2, 3, 4)
	d := ToDense(x)
	var sq mat.Dense
	sq.Mul(d, d)
	y := FromDense[p16](&sq)
	assert.Equal(t, []float64{7, 10, 15, 22}, y.Float64s())
}

func TestNaiveSum(t *testing.T) {
	vals := []float64{1}
	for range 64 {
		vals = append(vals, 1.0/16384)
	}
	x := MustFromFloat64s[p16](Shape{len(vals)}, vals...)
	assert.Equal(t, 1.0, x.Sum().Float64(), "sequential rounding drops each small addend")
}

func TestFromPositsErrors(t *testing.T) {
	_, err := FromFloat64s[p16](Shape{2, 2}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = IndicesFrom(Shape{2}, []int{1})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	labels := Labels(0, 1, 1, 0)
	assert.Equal(t, []int{1, 1}, labels.Slice(1, 3).Data())
	assert.Equal(t, 3, labels.Matches(Labels(0, 1, 0, 0)))
}
