package serialization

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/optim"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// ErrNotCheckpoint is returned by LoadCheckpoint for a plain model file.
var ErrNotCheckpoint = errors.New("serialization: file is not a checkpoint")

// optimizerPrefix marks optimizer state entries in a checkpoint.
const optimizerPrefix = "optimizer."

// OptimizerState is implemented by optimizers whose state can be saved and
// restored, such as *optim.SGD.
type OptimizerState[O posit.Format] interface {
	StateDict() map[string]*tensor.Tensor[O]
	LoadStateDict(state map[string]*tensor.Tensor[O]) error
	GetLR() float64
}

// Checkpoint is a complete training state snapshot: the model, the optimizer
// buffers and where training stood.
//
// Example:
//
//	ck := serialization.Checkpoint{Epoch: 10, Step: 5000, Loss: 0.123}
//	err := serialization.SaveCheckpoint[posit.P16E1](path, model, opt, ck)
//
// To resume training:
//
//	ck, err := serialization.LoadCheckpoint[posit.P16E1](path, model, opt, serialization.ReaderOptions{})
//	startEpoch := ck.Epoch + 1
type Checkpoint struct {
	Epoch    int
	Step     int64
	Loss     float64
	Accuracy float64
	Metadata map[string]string
}

func optimizerType(opt any) string {
	switch opt.(type) {
	case interface{ Config() optim.SGDConfig }:
		return "sgd"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", opt), "*")
	}
}

// SaveCheckpoint writes the state of m, followed by the optimizer state under
// an "optimizer." prefix, at file format G.
func SaveCheckpoint[G, O, F, B posit.Format](path string, m nn.Module[O, F, B], opt OptimizerState[O], ck Checkpoint) error {
	state := nn.NamedState(m)

	dict := opt.StateDict()
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		state = append(state, nn.NamedTensor[O]{Name: optimizerPrefix + k, Tensor: dict[k]})
	}

	metadata := make(map[string]string, len(ck.Metadata)+1)
	for k, v := range ck.Metadata {
		metadata[k] = v
	}
	metadata["lr"] = strconv.FormatFloat(opt.GetLR(), 'g', -1, 64)

	return SaveFile[G](path, state, Meta{
		ModelType: "checkpoint",
		Precision: nn.Policy[O, F, B]{}.Precision().String(),
		Metadata:  metadata,
		Checkpoint: &CheckpointMeta{
			Epoch:         ck.Epoch,
			Step:          ck.Step,
			Loss:          ck.Loss,
			Accuracy:      ck.Accuracy,
			OptimizerType: optimizerType(opt),
		},
	})
}

// LoadCheckpoint restores m and opt from a file written by SaveCheckpoint at
// format G. Neither is modified unless the whole file decodes.
func LoadCheckpoint[G, O, F, B posit.Format](path string, m nn.Module[O, F, B], opt OptimizerState[O], opts ReaderOptions) (*Checkpoint, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for checkpoint loading
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = fh.Close() // Read-only
	}()

	f, err := readFile(bufio.NewReader(fh), opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	h := &f.header
	if want := posit.ConfigOf[G](); h.Config() != want {
		return nil, &ConfigMismatchError{File: h.Config(), Want: want}
	}
	if h.Checkpoint == nil {
		return nil, ErrNotCheckpoint
	}

	stored := make(map[string]TensorMeta, len(h.Tensors))
	optState := make(map[string]*tensor.Tensor[O])
	for _, tm := range h.Tensors {
		if name, ok := strings.CutPrefix(tm.Name, optimizerPrefix); ok {
			t, err := decode[G, O](f, tm)
			if err != nil {
				return nil, err
			}
			optState[name] = t
			continue
		}
		stored[tm.Name] = tm
	}

	state := nn.NamedState(m)
	if len(stored) != len(state) {
		return nil, fmt.Errorf("%w: file holds %d model tensors, model has %d", ErrStateMismatch, len(stored), len(state))
	}
	decoded := make([]*tensor.Tensor[O], len(state))
	for i, nt := range state {
		tm, ok := stored[nt.Name]
		if !ok {
			return nil, fmt.Errorf("%w: tensor %q not in file", ErrStateMismatch, nt.Name)
		}
		if !nt.Tensor.Shape().Equal(tm.Shape) {
			return nil, fmt.Errorf("%w: tensor %q stored as %v, model has %v", ErrStateMismatch, nt.Name, tm.Shape, nt.Tensor.Shape())
		}
		if decoded[i], err = decode[G, O](f, tm); err != nil {
			return nil, err
		}
	}

	if err := opt.LoadStateDict(optState); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	for i, nt := range state {
		nt.Tensor.CopyFrom(decoded[i])
	}
	nn.Sync(m.Parameters())

	ck := &Checkpoint{
		Epoch:    h.Checkpoint.Epoch,
		Step:     h.Checkpoint.Step,
		Loss:     h.Checkpoint.Loss,
		Accuracy: h.Checkpoint.Accuracy,
		Metadata: h.Metadata,
	}
	log.Info().
		Str("path", path).
		Int("epoch", ck.Epoch).
		Int64("step", ck.Step).
		Int("optimizer_tensors", len(optState)).
		Msg("Loaded checkpoint")
	return ck, nil
}
