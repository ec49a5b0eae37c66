// Package train runs synchronous data-parallel training steps.
//
// A Trainer owns one master model and, when more than one worker is
// configured, a replica per worker built by a Factory. Every step copies the
// master state into the replicas, gives each replica a contiguous slice of
// the batch, runs its forward and backward passes concurrently, exact-sums
// the replica gradients into the master and applies a single optimizer step.
package train

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/optim"
	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

var tracer = otel.Tracer("github.com/born-ml/positnn/internal/train")

var (
	// ErrNoFactory is returned when more than one worker is requested
	// without a way to build replicas.
	ErrNoFactory = errors.New("train: replica factory required for more than one worker")

	// ErrReplicaMismatch is returned when a replica's state does not line up
	// with the master model.
	ErrReplicaMismatch = errors.New("train: replica state does not match master")

	// ErrEmptyBatch is returned for a batch without samples.
	ErrEmptyBatch = errors.New("train: empty batch")

	// ErrBatchMismatch is returned when inputs and targets disagree on the
	// batch size.
	ErrBatchMismatch = errors.New("train: input and target batch sizes differ")
)

// Factory builds a fresh model with the same architecture as the master.
type Factory[O, F, B posit.Format] func() nn.Module[O, F, B]

// LossFunc computes a loss over a batch of outputs and class targets.
type LossFunc[F, B posit.Format] func(output *tensor.Tensor[F], target *tensor.Indices, reduction nn.Reduction) (nn.Loss[B], error)

// CrossEntropy adapts nn.CrossEntropy to a LossFunc.
func CrossEntropy[F, B posit.Format]() LossFunc[F, B] {
	return func(output *tensor.Tensor[F], target *tensor.Indices, reduction nn.Reduction) (nn.Loss[B], error) {
		l, err := nn.CrossEntropy[F, B](output, target, reduction)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

// NLL adapts nn.NLL to a LossFunc, for models ending in LogSoftmax.
func NLL[F, B posit.Format]() LossFunc[F, B] {
	return func(output *tensor.Tensor[F], target *tensor.Indices, reduction nn.Reduction) (nn.Loss[B], error) {
		l, err := nn.NLL[F, B](output, target, reduction)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

// Config controls data parallelism.
type Config struct {
	// Workers is the number of replicas a batch is split across. Values <= 1
	// train the master model directly.
	Workers int
	// Parallel splits the gradient reduction across goroutines.
	Parallel parallel.Config
}

// DefaultConfig trains on a single worker.
func DefaultConfig() Config {
	return Config{Workers: 1, Parallel: parallel.Serial()}
}

// StepResult reports one training step.
type StepResult struct {
	Loss     float64 // Mean loss per sample.
	Samples  int
	Workers  int
	Duration time.Duration
}

// EvalResult reports an evaluation pass.
type EvalResult struct {
	Loss     float64 // Mean loss per sample.
	Correct  int
	Total    int
	Accuracy float64
}

// Trainer couples a master model with its optimizer and replicas.
type Trainer[O, F, B posit.Format] struct {
	model    nn.Module[O, F, B]
	opt      optim.Optimizer
	loss     LossFunc[F, B]
	cfg      Config
	replicas []nn.Module[O, F, B]
	steps    int
}

// NewTrainer builds the replicas and checks that they match the master.
// The optimizer must have been built over model.Parameters().
func NewTrainer[O, F, B posit.Format](model nn.Module[O, F, B], factory Factory[O, F, B], opt optim.Optimizer, loss LossFunc[F, B], cfg Config) (*Trainer[O, F, B], error) {
	if loss == nil {
		loss = CrossEntropy[F, B]()
	}
	t := &Trainer[O, F, B]{model: model, opt: opt, loss: loss, cfg: cfg}

	if cfg.Workers > 1 {
		if factory == nil {
			return nil, ErrNoFactory
		}
		master := nn.NamedState(model)
		for i := range cfg.Workers {
			r := factory()
			if err := matchState(master, nn.NamedState(r)); err != nil {
				return nil, fmt.Errorf("replica %d: %w", i, err)
			}
			t.replicas = append(t.replicas, r)
		}
	}

	log.Debug().
		Int("workers", max(cfg.Workers, 1)).
		Str("precision", precisionOf[O, F, B]().String()).
		Msg("trainer created")
	return t, nil
}

func precisionOf[O, F, B posit.Format]() nn.Precision {
	return nn.Policy[O, F, B]{}.Precision()
}

func matchState[O posit.Format](master, replica []nn.NamedTensor[O]) error {
	if len(master) != len(replica) {
		return fmt.Errorf("%w: %d tensors, want %d", ErrReplicaMismatch, len(replica), len(master))
	}
	for i := range master {
		if master[i].Name != replica[i].Name || !master[i].Tensor.Shape().Equal(replica[i].Tensor.Shape()) {
			return fmt.Errorf("%w: %s%v, want %s%v", ErrReplicaMismatch,
				replica[i].Name, replica[i].Tensor.Shape(), master[i].Name, master[i].Tensor.Shape())
		}
	}
	return nil
}

// Model returns the master model.
func (t *Trainer[O, F, B]) Model() nn.Module[O, F, B] { return t.model }

// Workers returns the number of replicas, or 1 without data parallelism.
func (t *Trainer[O, F, B]) Workers() int { return max(len(t.replicas), 1) }

// Steps returns the number of completed training steps.
func (t *Trainer[O, F, B]) Steps() int { return t.steps }

// Split returns the contiguous per-worker ranges of a batch of n samples.
// The first n%workers ranges get one extra sample.
func Split(n, workers int) [][2]int {
	return parallel.WithWorkers(workers).Chunks(n)
}

func checkBatch[F posit.Format](x *tensor.Tensor[F], y *tensor.Indices) (int, error) {
	if x.Dim() == 0 || x.Shape()[0] == 0 {
		return 0, ErrEmptyBatch
	}
	n := x.Shape()[0]
	if len(y.Shape()) == 0 || y.Shape()[0] != n {
		return 0, fmt.Errorf("%w: %d inputs, %d targets", ErrBatchMismatch, n, y.Size())
	}
	return n, nil
}

// Step runs one synchronous training step on the batch (x, y) and returns
// the mean loss per sample.
func (t *Trainer[O, F, B]) Step(ctx context.Context, x *tensor.Tensor[F], y *tensor.Indices) (StepResult, error) {
	ctx, span := tracer.Start(ctx, "train.Step", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := time.Now()
	res, err := t.step(ctx, x, y)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		stepErrors.Inc()
		return StepResult{}, err
	}
	res.Duration = time.Since(start)
	t.steps++

	span.SetAttributes(
		attribute.Int("samples", res.Samples),
		attribute.Int("workers", res.Workers),
		attribute.Float64("loss", res.Loss),
	)
	stepsTotal.Inc()
	samplesTotal.Add(float64(res.Samples))
	lossGauge.Set(res.Loss)
	stepDuration.Observe(res.Duration.Seconds())

	log.Debug().
		Int("step", t.steps).
		Int("samples", res.Samples).
		Float64("loss", res.Loss).
		Dur("duration", res.Duration).
		Msg("train step")
	return res, nil
}

func (t *Trainer[O, F, B]) step(ctx context.Context, x *tensor.Tensor[F], y *tensor.Indices) (StepResult, error) {
	n, err := checkBatch(x, y)
	if err != nil {
		return StepResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	t.opt.ZeroGrad()
	loss, workers, err := t.ForwardBackward(x, y)
	if err != nil {
		return StepResult{}, err
	}
	if len(t.replicas) > 0 {
		t.ReduceGradients(workers)
	}
	t.opt.Step()

	return StepResult{Loss: loss, Samples: n, Workers: workers}, nil
}

// ForwardBackward runs the forward and backward passes of the batch and
// leaves the gradients in the master model (single worker) or in the first
// workers replicas. It returns the mean loss per sample and the number of
// workers used.
func (t *Trainer[O, F, B]) ForwardBackward(x *tensor.Tensor[F], y *tensor.Indices) (float64, int, error) {
	n, err := checkBatch(x, y)
	if err != nil {
		return 0, 0, err
	}

	if len(t.replicas) == 0 {
		t.model.Train()
		l, err := t.passBackward(t.model, x, y)
		if err != nil {
			return 0, 0, err
		}
		return l / float64(n), 1, nil
	}

	ranges := Split(n, len(t.replicas))
	losses := make([]float64, len(ranges))
	counts := make([]float64, len(ranges))
	errs := make([]error, len(ranges))

	parallel.For(len(ranges), func(w int) {
		begin, end := ranges[w][0], ranges[w][1]
		replica := t.replicas[w]
		t.load(replica)
		replica.Train()
		nn.ZeroGrad(replica.Parameters())

		l, err := t.passBackward(replica, x.Slice(begin, end), y.Slice(begin, end))
		if err != nil {
			errs[w] = fmt.Errorf("worker %d: %w", w, err)
			return
		}
		counts[w] = float64(end - begin)
		losses[w] = l / counts[w]
	}, parallel.WithWorkers(len(ranges)))

	if err := errors.Join(errs...); err != nil {
		return 0, 0, err
	}
	t.mergeBuffers(len(ranges))

	return stat.Mean(losses, counts), len(ranges), nil
}

// passBackward returns the summed loss of the batch after running backward.
func (t *Trainer[O, F, B]) passBackward(m nn.Module[O, F, B], x *tensor.Tensor[F], y *tensor.Indices) (float64, error) {
	out, rec := m.Forward(x)
	l, err := t.loss(out, y, nn.Sum)
	if err != nil {
		return 0, err
	}
	if _, err := m.Backward(l.Derivative(), rec); err != nil {
		return 0, err
	}
	return l.Value(), nil
}

// load copies the master weights and buffers into replica.
func (t *Trainer[O, F, B]) load(replica nn.Module[O, F, B]) {
	src := nn.State(t.model)
	for i, dst := range nn.State(replica) {
		dst.CopyFrom(src[i])
	}
	nn.Sync(replica.Parameters())
}

// mergeBuffers replaces the master's non-trainable state, such as batch-norm
// running statistics, with the exact mean of the first workers replicas.
func (t *Trainer[O, F, B]) mergeBuffers(workers int) {
	weights := make(map[*tensor.Tensor[O]]bool)
	for _, p := range t.model.Parameters() {
		weights[p.Weight()] = true
	}

	master := nn.State(t.model)
	states := make([][]*tensor.Tensor[O], workers)
	for w := range workers {
		states[w] = nn.State(t.replicas[w])
	}
	for i, dst := range master {
		if weights[dst] {
			continue
		}
		srcs := make([]*tensor.Tensor[O], workers)
		for w := range workers {
			srcs[w] = states[w][i]
		}
		average(dst, srcs, false, t.cfg.Parallel)
	}
}

// ReduceGradients adds the exact mean of the first workers replica gradients
// into the master gradients.
func (t *Trainer[O, F, B]) ReduceGradients(workers int) {
	params := make([][]*nn.Parameter[O], workers)
	for w := range workers {
		params[w] = t.replicas[w].Parameters()
	}
	ReduceGradients(t.model.Parameters(), params, t.cfg.Parallel)
}

// ReduceGradients adds, element by element, the quire sum of the replica
// gradients divided by the number of replicas into the master gradients.
func ReduceGradients[O posit.Format](master []*nn.Parameter[O], replicas [][]*nn.Parameter[O], par parallel.Config) {
	if len(replicas) == 0 {
		return
	}
	for j, p := range master {
		srcs := make([]*tensor.Tensor[O], len(replicas))
		for w, r := range replicas {
			srcs[w] = r[j].Grad()
		}
		average(p.Grad(), srcs, true, par)
	}
}

// average writes mean(srcs) into dst, or adds it to dst when accumulate is
// set. Each element is summed in a quire and rounded once before division.
func average[O posit.Format](dst *tensor.Tensor[O], srcs []*tensor.Tensor[O], accumulate bool, par parallel.Config) {
	out := dst.Data()
	count := posit.FromInt[O](len(srcs))
	parallel.ForRange(len(out), func(begin, end int) {
		var q posit.Quire[O]
		for i := begin; i < end; i++ {
			q.Reset()
			for _, s := range srcs {
				q.Add(s.Data()[i])
			}
			mean := q.Posit().Div(count)
			if accumulate {
				out[i] = out[i].Add(mean)
			} else {
				out[i] = mean
			}
		}
	}, par)
}

// Evaluate runs the batch forward in evaluation mode and scores the argmax
// of each output row against y.
func (t *Trainer[O, F, B]) Evaluate(ctx context.Context, x *tensor.Tensor[F], y *tensor.Indices) (EvalResult, error) {
	ctx, span := tracer.Start(ctx, "train.Evaluate", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	res, err := t.evaluate(ctx, x, y)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return EvalResult{}, err
	}

	span.SetAttributes(
		attribute.Int("samples", res.Total),
		attribute.Float64("accuracy", res.Accuracy),
	)
	accuracyGauge.Set(res.Accuracy)
	log.Debug().
		Int("correct", res.Correct).
		Int("total", res.Total).
		Float64("loss", res.Loss).
		Msg("evaluation")
	return res, nil
}

func (t *Trainer[O, F, B]) evaluate(ctx context.Context, x *tensor.Tensor[F], y *tensor.Indices) (EvalResult, error) {
	n, err := checkBatch(x, y)
	if err != nil {
		return EvalResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return EvalResult{}, err
	}

	if len(t.replicas) == 0 {
		wasTraining := t.model.Training()
		t.model.Eval()
		defer func() {
			if wasTraining {
				t.model.Train()
			}
		}()
		l, c, err := t.score(t.model, x, y)
		if err != nil {
			return EvalResult{}, err
		}
		return newEvalResult(l, c, n), nil
	}

	ranges := Split(n, len(t.replicas))
	losses := make([]float64, len(ranges))
	correct := make([]int, len(ranges))
	errs := make([]error, len(ranges))

	parallel.For(len(ranges), func(w int) {
		begin, end := ranges[w][0], ranges[w][1]
		replica := t.replicas[w]
		t.load(replica)
		replica.Eval()
		l, c, err := t.score(replica, x.Slice(begin, end), y.Slice(begin, end))
		if err != nil {
			errs[w] = fmt.Errorf("worker %d: %w", w, err)
			return
		}
		losses[w], correct[w] = l, c
	}, parallel.WithWorkers(len(ranges)))

	if err := errors.Join(errs...); err != nil {
		return EvalResult{}, err
	}
	var sum float64
	var hits int
	for w := range ranges {
		sum += losses[w]
		hits += correct[w]
	}
	return newEvalResult(sum, hits, n), nil
}

func newEvalResult(loss float64, correct, total int) EvalResult {
	return EvalResult{
		Loss:     loss / float64(total),
		Correct:  correct,
		Total:    total,
		Accuracy: float64(correct) / float64(total),
	}
}

// score returns the summed loss and the number of correct predictions.
func (t *Trainer[O, F, B]) score(m nn.Module[O, F, B], x *tensor.Tensor[F], y *tensor.Indices) (float64, int, error) {
	out, _ := m.Forward(x)
	l, err := t.loss(out, y, nn.Sum)
	if err != nil {
		return 0, 0, err
	}
	return l.Value(), out.ArgMax(1).Matches(y), nil
}
