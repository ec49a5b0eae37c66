package serialization_test

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/serialization"
	"github.com/born-ml/positnn/internal/tensor"
)

type (
	p8  = posit.P8E0
	p16 = posit.P16E1
)

type model = nn.Sequential[p16, p8, p8]

func newModel(t *testing.T, seed int64, hidden int) *model {
	t.Helper()
	pol := nn.NewPolicy[p16, p8, p8](parallel.Serial())
	rng := rand.New(rand.NewSource(seed))
	bn, err := nn.NewBatchNorm1d(pol, nn.DefaultBatchNormConfig(hidden))
	require.NoError(t, err)
	return nn.NewSequential[p16, p8, p8](
		nn.NewLinear(pol, 3, hidden, rng),
		bn,
		nn.NewReLU(pol),
		nn.NewLinear(pol, hidden, 2, rng),
	)
}

func state(m *model) [][]float64 {
	var out [][]float64
	for _, t := range nn.State[p16, p8, p8](m) {
		out = append(out, t.Float64s())
	}
	return out
}

func TestSaveLoadModelRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mlp.pnn")
	src := newModel(t, 1, 4)

	// Move the running statistics away from their initial values.
	src.Forward(tensor.MustFromFloat64s[p8](tensor.Shape{2, 3}, 1, 2, 3, -1, 0.5, 0))

	meta := serialization.Meta{
		ModelType:  "mlp",
		Metadata:   map[string]string{"dataset": "synthetic"},
		Checkpoint: &serialization.CheckpointMeta{Epoch: 3, Step: 42, Loss: 0.25, OptimizerType: "sgd"},
	}
	require.NoError(t, serialization.SaveModel[p16, p16, p8, p8](path, src, meta))

	dst := newModel(t, 2, 4)
	require.NotEqual(t, state(src), state(dst))

	h, err := serialization.LoadModel[p16, p16, p8, p8](path, dst, serialization.ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, state(src), state(dst))

	assert.Equal(t, serialization.FormatVersion, h.FormatVersion)
	assert.Equal(t, posit.Config{NBits: 16, ES: 1}, h.Config())
	assert.Equal(t, 8, h.Count)
	assert.Equal(t, "mlp", h.ModelType)
	assert.Equal(t, "opt=posit<16,1> fwd=posit<8,0> bwd=posit<8,0>", h.Precision)
	assert.Equal(t, "synthetic", h.Metadata["dataset"])
	require.NotNil(t, h.Checkpoint)
	assert.Equal(t, int64(42), h.Checkpoint.Step)

	// Forward views were refreshed by LoadModel.
	x := tensor.MustFromFloat64s[p8](tensor.Shape{1, 3}, 0.5, -0.5, 1)
	src.Eval()
	dst.Eval()
	ys, _ := src.Forward(x)
	yd, _ := dst.Forward(x)
	assert.Equal(t, ys.Float64s(), yd.Float64s())
}

func TestLowerFileFormatRounds(t *testing.T) {
	w := tensor.MustFromFloat64s[p16](tensor.Shape{3}, 0.3, -1.7, 100)
	entries := []nn.NamedTensor[p16]{{Name: "w", Tensor: w}}

	var buf bytes.Buffer
	require.NoError(t, serialization.Write[p8](&buf, entries, serialization.Meta{}))

	got := tensor.Zeros[p16](tensor.Shape{3})
	_, err := serialization.Read[p8](bytes.NewReader(buf.Bytes()), []nn.NamedTensor[p16]{{Name: "w", Tensor: got}}, serialization.ReaderOptions{})
	require.NoError(t, err)
	for i, v := range w.Data() {
		assert.Equal(t, posit.Convert[p16](posit.Convert[p8](v)), got.At(i))
	}
}

func TestConfigMismatchIsHardError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mlp.pnn")
	m := newModel(t, 1, 4)
	require.NoError(t, serialization.SaveModel[p16, p16, p8, p8](path, m, serialization.Meta{}))

	_, err := serialization.LoadModel[p8, p16, p8, p8](path, m, serialization.ReaderOptions{})
	require.ErrorIs(t, err, serialization.ErrConfigMismatch)

	var cm *serialization.ConfigMismatchError
	require.True(t, errors.As(err, &cm))
	assert.Equal(t, posit.Config{NBits: 16, ES: 1}, cm.File)
	assert.Equal(t, posit.Config{NBits: 8, ES: 0}, cm.Want)
}

func TestStateMismatchLeavesModelUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mlp.pnn")
	require.NoError(t, serialization.SaveModel[p16, p16, p8, p8](path, newModel(t, 1, 4), serialization.Meta{}))

	other := newModel(t, 2, 5)
	before := state(other)
	_, err := serialization.LoadModel[p16, p16, p8, p8](path, other, serialization.ReaderOptions{})
	require.ErrorIs(t, err, serialization.ErrStateMismatch)
	assert.Equal(t, before, state(other))

	var buf bytes.Buffer
	w := tensor.Zeros[p16](tensor.Shape{2})
	require.NoError(t, serialization.Write[p16](&buf, []nn.NamedTensor[p16]{{Name: "a", Tensor: w}}, serialization.Meta{}))
	_, err = serialization.Read[p16](&buf, []nn.NamedTensor[p16]{{Name: "b", Tensor: w}}, serialization.ReaderOptions{})
	require.ErrorIs(t, err, serialization.ErrStateMismatch)
}

func TestCorruptFiles(t *testing.T) {
	entries := []nn.NamedTensor[p16]{{Name: "w", Tensor: tensor.Ones[p16](tensor.Shape{4})}}
	var buf bytes.Buffer
	require.NoError(t, serialization.Write[p16](&buf, entries, serialization.Meta{}))
	good := buf.Bytes()

	badMagic := bytes.Clone(good)
	copy(badMagic, "XXXX")
	_, err := serialization.ReadHeader(bytes.NewReader(badMagic), serialization.ReaderOptions{})
	require.ErrorIs(t, err, serialization.ErrInvalidMagic)

	badVersion := bytes.Clone(good)
	badVersion[4] = 9
	_, err = serialization.ReadHeader(bytes.NewReader(badVersion), serialization.ReaderOptions{})
	require.ErrorIs(t, err, serialization.ErrUnsupportedVersion)

	flipped := bytes.Clone(good)
	flipped[len(flipped)-1] ^= 0xff
	_, err = serialization.ReadHeader(bytes.NewReader(flipped), serialization.ReaderOptions{})
	require.ErrorIs(t, err, serialization.ErrChecksumMismatch)

	h, err := serialization.ReadHeader(bytes.NewReader(flipped), serialization.ReaderOptions{SkipChecksumValidation: true})
	require.NoError(t, err)
	assert.Equal(t, 1, h.Count)

	_, err = serialization.ReadHeader(bytes.NewReader(good[:len(good)-3]), serialization.ReaderOptions{})
	require.Error(t, err, "truncated data section")
}

func TestSaveFileToMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "m.pnn")
	err := serialization.SaveFile[p16](path, []nn.NamedTensor[p16]{}, serialization.Meta{})
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestValidation(t *testing.T) {
	require.NoError(t, serialization.ValidateTensorName("0.running_mean"))
	require.Error(t, serialization.ValidateTensorName(""))
	require.Error(t, serialization.ValidateTensorName("bad\x00name"))

	err := serialization.ValidateTensorOffsets([]serialization.TensorMeta{
		{Name: "a", Offset: 0, Size: 16},
		{Name: "b", Offset: 8, Size: 16},
	}, 64)
	var ve *serialization.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "offset_overlap", ve.Type)

	err = serialization.ValidateTensorOffsets([]serialization.TensorMeta{{Name: "a", Offset: 60, Size: 16}}, 64)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "out_of_bounds", ve.Type)

	h := &serialization.Header{Count: 2, Tensors: []serialization.TensorMeta{{Name: "a", Offset: 0, Size: 8}}}
	require.Error(t, serialization.ValidateHeader(h, 8, serialization.ValidationNormal))
	require.NoError(t, serialization.ValidateHeader(h, 8, serialization.ValidationNone))

	dup := []nn.NamedTensor[p16]{
		{Name: "w", Tensor: tensor.Ones[p16](tensor.Shape{1})},
		{Name: "w", Tensor: tensor.Ones[p16](tensor.Shape{1})},
	}
	require.Error(t, serialization.Write[p16](&bytes.Buffer{}, dup, serialization.Meta{}))
}
