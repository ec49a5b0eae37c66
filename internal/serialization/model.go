package serialization

import (
	"bufio"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/posit"
)

// SaveFile writes state to path at file format G.
func SaveFile[G, O posit.Format](path string, state []nn.NamedTensor[O], meta Meta) error {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := Write[G](w, state, meta); err != nil {
		_ = f.Close() // Best effort close on error
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	log.Info().
		Str("path", path).
		Stringer("format", posit.ConfigOf[G]()).
		Int("tensors", len(state)).
		Msg("Saved model")
	return nil
}

// LoadFile reads a file written at format G into state.
func LoadFile[G, O posit.Format](path string, state []nn.NamedTensor[O], opts ReaderOptions) (*Header, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = f.Close() // Read-only
	}()

	h, err := Read[G](bufio.NewReader(f), state, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	log.Info().
		Str("path", path).
		Stringer("format", h.Config()).
		Int("tensors", h.Count).
		Str("model", h.ModelType).
		Msg("Loaded model")
	return h, nil
}

// SaveModel writes the persistent state of m, its parameters and buffers as
// listed by nn.NamedState, at file format G.
func SaveModel[G, O, F, B posit.Format](path string, m nn.Module[O, F, B], meta Meta) error {
	if meta.Precision == "" {
		meta.Precision = nn.Policy[O, F, B]{}.Precision().String()
	}
	return SaveFile[G](path, nn.NamedState(m), meta)
}

// LoadModel restores m from a file written by SaveModel at format G and
// refreshes the forward and backward copies of its parameters.
func LoadModel[G, O, F, B posit.Format](path string, m nn.Module[O, F, B], opts ReaderOptions) (*Header, error) {
	h, err := LoadFile[G](path, nn.NamedState(m), opts)
	if err != nil {
		return nil, err
	}
	nn.Sync(m.Parameters())
	return h, nil
}
