package nn

import (
	"fmt"

	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// LogSoftmax applies log(softmax(x)) along the last axis of [batch, classes].
//
// Per sample, y = x - (max + log(Σ exp(x - max))), with the exponentials
// accumulated exactly. By default Backward keeps only the diagonal of the
// Jacobian, multiplying delta element-wise by (Σ - exp_i)/Σ computed from
// the cached exponentials. The result is exact when delta has a single
// non-zero entry per row, as the NLL derivative does. FullJacobian switches
// to dx_i = d_i - softmax_i * Σ_k d_k for arbitrary upstream gradients.
type LogSoftmax[O, F, B posit.Format] struct {
	mode
	policy Policy[O, F, B]
	full   bool
}

type logSoftmaxState[B posit.Format] struct {
	exp *tensor.Tensor[B] // exp(x - max)
	sum []posit.Posit[B]  // per sample
}

// NewLogSoftmax creates a LogSoftmax module.
func NewLogSoftmax[O, F, B posit.Format](pol Policy[O, F, B]) *LogSoftmax[O, F, B] {
	return &LogSoftmax[O, F, B]{mode: mode{training: true}, policy: pol}
}

// FullJacobian makes Backward apply the complete log-softmax Jacobian.
func (l *LogSoftmax[O, F, B]) FullJacobian() *LogSoftmax[O, F, B] {
	l.full = true
	return l
}

// Forward computes log-probabilities.
func (l *LogSoftmax[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	if x.Dim() != 2 {
		panic(fmt.Sprintf("LogSoftmax.Forward: expected [batch, classes], got shape %v", x.Shape()))
	}
	batch, classes := x.Shape()[0], x.Shape()[1]
	y := x.Clone()
	exp := tensor.New[F](x.Shape())
	sum := make([]posit.Posit[F], batch)

	xd, yd, ed := x.Data(), y.Data(), exp.Data()
	parallel.ForRange(batch, func(begin, end int) {
		var q posit.Quire[F]
		for i := begin; i < end; i++ {
			row := xd[i*classes : (i+1)*classes]
			m := rowMax(row)
			q.Reset()
			for k, v := range row {
				ed[i*classes+k] = v.Sub(m).Exp()
				q.Add(ed[i*classes+k])
			}
			sum[i] = q.Posit()
			shift := m.Add(sum[i].Log())
			for k := range row {
				yd[i*classes+k] = yd[i*classes+k].Sub(shift)
			}
		}
	}, l.policy.Parallel)

	st := logSoftmaxState[B]{exp: tensor.Cast[B](exp), sum: make([]posit.Posit[B], batch)}
	for i, s := range sum {
		st.sum[i] = posit.Convert[B](s)
	}
	return y, newRecord(l, st)
}

// Backward multiplies delta by (Σ - exp_i)/Σ, or applies the full Jacobian
// when FullJacobian was set.
func (l *LogSoftmax[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	st, err := take[logSoftmaxState[B]](rec, l)
	if err != nil {
		return nil, fmt.Errorf("LogSoftmax.Backward: %w", err)
	}
	if delta.Size() != st.exp.Size() {
		return nil, fmt.Errorf("LogSoftmax.Backward: %w: delta %v for output %v", ErrShapeMismatch, delta.Shape(), st.exp.Shape())
	}
	classes := st.exp.Shape()[1]
	if l.full {
		return l.fullBackward(delta, st, classes), nil
	}
	dx := tensor.New[B](st.exp.Shape())
	ed, dd := st.exp.Data(), dx.Data()
	for i := range dd {
		s := st.sum[i/classes]
		dd[i] = s.Sub(ed[i]).Div(s)
	}
	dx.MulAssign(delta)
	return dx, nil
}

func (l *LogSoftmax[O, F, B]) fullBackward(delta *tensor.Tensor[B], st logSoftmaxState[B], classes int) *tensor.Tensor[B] {
	dx := tensor.New[B](st.exp.Shape())
	ed, din, dd := st.exp.Data(), delta.Data(), dx.Data()
	batch := len(st.sum)
	parallel.ForRange(batch, func(begin, end int) {
		var q posit.Quire[B]
		for i := begin; i < end; i++ {
			row := din[i*classes : (i+1)*classes]
			q.Reset()
			for _, d := range row {
				q.Add(d)
			}
			total := q.Posit()
			for k, d := range row {
				p := ed[i*classes+k].Div(st.sum[i])
				dd[i*classes+k] = d.Sub(p.Mul(total))
			}
		}
	}, l.policy.Parallel)
	return dx
}

// Parameters returns nil.
func (l *LogSoftmax[O, F, B]) Parameters() []*Parameter[O] { return nil }

// rowMax returns the largest element of a non-empty row.
func rowMax[T posit.Format](row []posit.Posit[T]) posit.Posit[T] {
	m := row[0]
	for _, v := range row[1:] {
		m = posit.Max(m, v)
	}
	return m
}
