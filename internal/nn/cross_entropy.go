package nn

import (
	"fmt"

	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// SoftmaxGrad selects the operation order used to form softmax - onehot.
// The order changes the trained accuracy at low bit-widths.
type SoftmaxGrad uint8

const (
	// FusedTarget divides off-target entries by the sum and computes the
	// target entry as exp*(1/sum) - 1 in one rounding.
	FusedTarget SoftmaxGrad = iota
	// DivideThenSubtract rounds exp/sum, then subtracts one at the target.
	DivideThenSubtract
	// SubtractThenDivide computes (exp - sum)/sum at the target.
	SubtractThenDivide
)

// CrossEntropyLoss combines log-softmax and negative log-likelihood over
// logits of shape [batch, classes].
type CrossEntropyLoss[B posit.Format] struct {
	value  float64
	exp    *tensor.Tensor[B] // exp(x - rowmax)
	sum    []posit.Posit[B]  // per sample, accumulated exactly
	target *tensor.Indices

	// Grad selects the derivative formula. FusedTarget by default.
	Grad SoftmaxGrad
}

// CrossEntropy computes, per sample,
//
//	-(x[target] - max - log Σ exp(x - max))
//
// with the exponentials summed exactly and the arithmetic at backward
// precision B. The per-sample terms are summed in float64; Mean divides by
// the batch size.
func CrossEntropy[F, B posit.Format](logits *tensor.Tensor[F], target *tensor.Indices, reduction Reduction) (*CrossEntropyLoss[B], error) {
	if err := reduction.Validate(); err != nil {
		return nil, err
	}
	if logits.Dim() != 2 {
		return nil, fmt.Errorf("nn.CrossEntropy: %w: expected [batch, classes], got %v", ErrShapeMismatch, logits.Shape())
	}
	rows, cols := logits.Shape()[0], logits.Shape()[1]
	if err := checkTargets(rows, cols, target); err != nil {
		return nil, fmt.Errorf("nn.CrossEntropy: %w", err)
	}

	x := tensor.Cast[B](logits)
	l := &CrossEntropyLoss[B]{
		exp:    tensor.New[B](x.Shape()),
		sum:    make([]posit.Posit[B], rows),
		target: target,
	}

	xd, ed := x.Data(), l.exp.Data()
	var q posit.Quire[B]
	var loss float64
	for i := range rows {
		row := xd[i*cols : (i+1)*cols]
		m := rowMax(row)
		q.Reset()
		for k, v := range row {
			ed[i*cols+k] = v.Sub(m).Exp()
			q.Add(ed[i*cols+k])
		}
		l.sum[i] = q.Posit()
		logSoftmax := row[target.At(i)].Sub(m).Sub(l.sum[i].Log())
		loss -= logSoftmax.Float64()
	}
	l.value = reduction.apply(loss, rows)
	return l, nil
}

// Value returns the reduced loss.
func (l *CrossEntropyLoss[B]) Value() float64 { return l.value }

// Derivative returns softmax(x) - onehot(target).
func (l *CrossEntropyLoss[B]) Derivative() *tensor.Tensor[B] {
	d := l.exp.Clone()
	cols := d.Shape()[1]
	data := d.Data()
	one := posit.One[B]()
	minusOne := one.Neg()

	for i, sum := range l.sum {
		t := l.target.At(i)
		den := sum.Reciprocal()
		for k := range cols {
			v := &data[i*cols+k]
			switch {
			case k != t:
				*v = v.Div(sum)
			case l.Grad == DivideThenSubtract:
				*v = v.Div(sum).Sub(one)
			case l.Grad == SubtractThenDivide:
				*v = v.Sub(sum).Div(sum)
			default:
				*v = posit.FMA(*v, den, minusOne)
			}
		}
	}
	return d
}

// Probabilities returns the softmax of the logits.
func (l *CrossEntropyLoss[B]) Probabilities() *tensor.Tensor[B] {
	p := l.exp.Clone()
	cols := p.Shape()[1]
	data := p.Data()
	for i := range data {
		data[i] = data[i].Div(l.sum[i/cols])
	}
	return p
}
