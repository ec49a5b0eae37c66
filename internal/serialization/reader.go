package serialization

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// ReaderOptions configures reading.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// file is a decoded .pnn stream.
type file struct {
	header Header
	flags  uint32
	data   []byte
}

func readFile(r io.Reader, opts ReaderOptions) (*file, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(fixed[4:]); v != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, v, FormatVersion)
	}
	f := &file{flags: binary.LittleEndian.Uint32(fixed[8:])}
	headerSize := binary.LittleEndian.Uint64(fixed[16:])
	dataSize := binary.LittleEndian.Uint64(fixed[24:])
	var checksum [ChecksumSize]byte
	copy(checksum[:], fixed[ChecksumOffset:])

	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := cbor.Unmarshal(headerBytes, &f.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	pad := padding(int64(FixedHeaderSize) + int64(headerSize))
	if _, err := io.CopyN(io.Discard, r, pad); err != nil {
		return nil, fmt.Errorf("failed to skip padding: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(r, int64(dataSize))) //nolint:gosec // G115: bounded by the stream
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if uint64(len(data)) != dataSize {
		return nil, fmt.Errorf("failed to read tensor data: %w", io.ErrUnexpectedEOF)
	}
	f.data = data

	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(data, checksum); err != nil {
			return nil, err
		}
	}
	if err := ValidateHeader(&f.header, int64(len(data)), opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return f, nil
}

// ReadHeader decodes and validates a .pnn stream and returns its header
// without decoding any tensor.
func ReadHeader(r io.Reader, opts ReaderOptions) (*Header, error) {
	f, err := readFile(r, opts)
	if err != nil {
		return nil, err
	}
	return &f.header, nil
}

// Read decodes a .pnn stream written at file format G into the tensors of
// state, matched by name. The file must hold exactly those tensors with the
// same shapes; on any error no tensor of state is modified.
func Read[G, O posit.Format](r io.Reader, state []nn.NamedTensor[O], opts ReaderOptions) (*Header, error) {
	f, err := readFile(r, opts)
	if err != nil {
		return nil, err
	}
	h := &f.header
	if want := posit.ConfigOf[G](); h.Config() != want {
		return nil, &ConfigMismatchError{File: h.Config(), Want: want}
	}
	if len(h.Tensors) != len(state) {
		return nil, fmt.Errorf("%w: file holds %d tensors, model has %d", ErrStateMismatch, len(h.Tensors), len(state))
	}

	stored := make(map[string]TensorMeta, len(h.Tensors))
	for _, m := range h.Tensors {
		stored[m.Name] = m
	}
	decoded := make([]*tensor.Tensor[O], len(state))
	for i, nt := range state {
		m, ok := stored[nt.Name]
		if !ok {
			return nil, fmt.Errorf("%w: tensor %q not in file", ErrStateMismatch, nt.Name)
		}
		if !nt.Tensor.Shape().Equal(m.Shape) {
			return nil, fmt.Errorf("%w: tensor %q stored as %v, model has %v", ErrStateMismatch, nt.Name, m.Shape, nt.Tensor.Shape())
		}
		t, err := decode[G, O](f, m)
		if err != nil {
			return nil, err
		}
		decoded[i] = t
	}

	for i, nt := range state {
		nt.Tensor.CopyFrom(decoded[i])
	}
	return h, nil
}

// decode reads the record described by m from the data section.
func decode[G, O posit.Format](f *file, m TensorMeta) (*tensor.Tensor[O], error) {
	if m.Offset < 0 || m.Size < 0 || m.Offset+m.Size > int64(len(f.data)) {
		return nil, &ValidationError{Type: "out_of_bounds", Tensor: m.Name, Details: "record outside data section"}
	}
	t := tensor.New[O](tensor.Shape(m.Shape))
	if err := tensor.ReadInto[G](bytes.NewReader(f.data[m.Offset:m.Offset+m.Size]), t); err != nil {
		return nil, fmt.Errorf("failed to decode tensor %s: %w", m.Name, err)
	}
	return t, nil
}
