package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/optim"
	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/serialization"
	"github.com/born-ml/positnn/internal/tensor"
	"github.com/born-ml/positnn/internal/train"
)

type runOptions struct {
	Epochs    int
	BatchSize int
	Workers   int
	Procs     int
	LR        float64
	Momentum  float64
	Hidden    int
	Samples   int
	Seed      int64
	SavePath  string
}

func (o runOptions) validate() error {
	switch {
	case o.Epochs <= 0:
		return fmt.Errorf("epochs must be positive, got %d", o.Epochs)
	case o.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", o.BatchSize)
	case o.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", o.Workers)
	case o.Hidden <= 0:
		return fmt.Errorf("hidden width must be positive, got %d", o.Hidden)
	case o.Samples <= 0:
		return fmt.Errorf("samples must be positive, got %d", o.Samples)
	}
	return nil
}

var errUnknownPrecision = errors.New("unknown precision")

func dispatch(ctx context.Context, precision string, o runOptions) error {
	switch precision {
	case "p8":
		return run[posit.P8E0, posit.P8E0, posit.P8E0](ctx, o)
	case "p16":
		return run[posit.P16E1, posit.P16E1, posit.P16E1](ctx, o)
	case "p32":
		return run[posit.P32E2, posit.P32E2, posit.P32E2](ctx, o)
	case "mixed":
		return run[posit.P16E1, posit.P8E0, posit.P8E0](ctx, o)
	default:
		return fmt.Errorf("%w: %q", errUnknownPrecision, precision)
	}
}

// dataset holds two Gaussian blobs in the plane, one per class.
type dataset struct {
	x      *mat.Dense
	labels []int
}

func makeDataset(perClass int, rng *rand.Rand) dataset {
	centers := [2][2]float64{{1, 1}, {-1, -1}}
	n := 2 * perClass
	x := mat.NewDense(n, 2, nil)
	labels := make([]int, n)
	for i, k := range rng.Perm(n) {
		c := k % 2
		x.Set(i, 0, centers[c][0]+0.5*rng.NormFloat64())
		x.Set(i, 1, centers[c][1]+0.5*rng.NormFloat64())
		labels[i] = c
	}
	return dataset{x: x, labels: labels}
}

// split returns the first frac of the rows and the rest.
func (d dataset) split(frac float64) (dataset, dataset) {
	r, _ := d.x.Dims()
	k := int(float64(r) * frac)
	return dataset{x: mat.DenseCopyOf(d.x.Slice(0, k, 0, 2)), labels: d.labels[:k]},
		dataset{x: mat.DenseCopyOf(d.x.Slice(k, r, 0, 2)), labels: d.labels[k:]}
}

func tensors[F posit.Format](d dataset) (*tensor.Tensor[F], *tensor.Indices) {
	y, err := tensor.IndicesFrom(tensor.Shape{len(d.labels)}, d.labels)
	if err != nil {
		panic(err)
	}
	return tensor.FromDense[F](d.x), y
}

func newModel[O, F, B posit.Format](pol nn.Policy[O, F, B], hidden int, rng *rand.Rand) nn.Module[O, F, B] {
	bn, err := nn.NewBatchNorm1d(pol, nn.DefaultBatchNormConfig(hidden))
	if err != nil {
		panic(err)
	}
	return nn.NewSequential[O, F, B](
		nn.NewLinear(pol, 2, hidden, rng),
		bn,
		nn.NewReLU(pol),
		nn.NewLinear(pol, hidden, 2, rng),
	)
}

func run[O, F, B posit.Format](ctx context.Context, o runOptions) error {
	rng := rand.New(rand.NewSource(o.Seed))
	pol := nn.NewPolicy[O, F, B](parallel.WithWorkers(o.Procs))
	log.Info().
		Stringer("precision", pol.Precision()).
		Int("workers", o.Workers).
		Int("epochs", o.Epochs).
		Msg("Starting training")

	model := newModel(pol, o.Hidden, rng)
	factory := func() nn.Module[O, F, B] { return newModel(pol, o.Hidden, rng) }

	opt, err := optim.NewSGD(model.Parameters(), optim.SGDConfig{
		LR:       o.LR,
		Momentum: o.Momentum,
		Parallel: parallel.WithWorkers(o.Procs),
	})
	if err != nil {
		return err
	}
	tr, err := train.NewTrainer(model, factory, opt, train.CrossEntropy[F, B](), train.Config{
		Workers:  o.Workers,
		Parallel: parallel.WithWorkers(o.Procs),
	})
	if err != nil {
		return err
	}

	trainSet, testSet := makeDataset(o.Samples, rng).split(0.8)
	xTrain, yTrain := tensors[F](trainSet)
	xTest, yTest := tensors[F](testSet)
	n := xTrain.Shape()[0]

	var last train.EvalResult
	for epoch := 1; epoch <= o.Epochs; epoch++ {
		start := time.Now()
		var sum float64
		for begin := 0; begin < n; begin += o.BatchSize {
			end := min(begin+o.BatchSize, n)
			res, err := tr.Step(ctx, xTrain.Slice(begin, end), yTrain.Slice(begin, end))
			if err != nil {
				return fmt.Errorf("epoch %d: %w", epoch, err)
			}
			sum += res.Loss * float64(res.Samples)
		}

		last, err = tr.Evaluate(ctx, xTest, yTest)
		if err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}
		log.Info().
			Int("epoch", epoch).
			Float64("train_loss", sum/float64(n)).
			Float64("test_loss", last.Loss).
			Float64("accuracy", last.Accuracy).
			Dur("elapsed", time.Since(start)).
			Msg("Epoch complete")
	}

	if o.SavePath == "" {
		return nil
	}
	return roundTrip(ctx, o, pol, model, opt, last, tr.Steps(), xTest, yTest)
}

// roundTrip checkpoints the model and optimizer, loads both into fresh
// instances and checks that the reloaded model scores the same.
func roundTrip[O, F, B posit.Format](ctx context.Context, o runOptions, pol nn.Policy[O, F, B], model nn.Module[O, F, B], opt *optim.SGD[O], last train.EvalResult, steps int, x *tensor.Tensor[F], y *tensor.Indices) error {
	ck := serialization.Checkpoint{
		Epoch:    o.Epochs,
		Step:     int64(steps),
		Loss:     last.Loss,
		Accuracy: last.Accuracy,
		Metadata: map[string]string{"hidden": fmt.Sprint(o.Hidden)},
	}
	if err := serialization.SaveCheckpoint[O](o.SavePath, model, opt, ck); err != nil {
		return err
	}

	restored := newModel(pol, o.Hidden, rand.New(rand.NewSource(o.Seed+1)))
	restoredOpt, err := optim.NewSGD(restored.Parameters(), opt.Config())
	if err != nil {
		return err
	}
	got, err := serialization.LoadCheckpoint[O](o.SavePath, restored, restoredOpt, serialization.ReaderOptions{})
	if err != nil {
		return err
	}

	tr, err := train.NewTrainer(restored, nil, restoredOpt, train.CrossEntropy[F, B](), train.DefaultConfig())
	if err != nil {
		return err
	}
	res, err := tr.Evaluate(ctx, x, y)
	if err != nil {
		return err
	}
	log.Info().
		Str("path", o.SavePath).
		Int("epoch", got.Epoch).
		Float64("accuracy", res.Accuracy).
		Bool("matches", res.Correct == last.Correct).
		Msg("Reloaded checkpoint")
	return nil
}
