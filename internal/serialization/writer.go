package serialization

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Write encodes state in .pnn format with every tensor converted to the file
// format G. Entries keep their order.
func Write[G, O posit.Format](w io.Writer, state []nn.NamedTensor[O], meta Meta) error {
	cfg := posit.ConfigOf[G]()
	header := Header{
		FormatVersion: FormatVersion,
		NBits:         cfg.NBits,
		ES:            cfg.ES,
		Count:         len(state),
		ModelType:     meta.ModelType,
		Precision:     meta.Precision,
		CreatedAt:     time.Now().UTC(),
		Tensors:       make([]TensorMeta, 0, len(state)),
		Metadata:      meta.Metadata,
		Checkpoint:    meta.Checkpoint,
	}

	var data bytes.Buffer
	seen := make(map[string]bool, len(state))
	for _, nt := range state {
		if err := ValidateTensorName(nt.Name); err != nil {
			return err
		}
		if seen[nt.Name] {
			return &ValidationError{Type: "duplicate_name", Tensor: nt.Name, Details: "stored twice"}
		}
		seen[nt.Name] = true

		offset := int64(data.Len())
		if err := tensor.Write[G](&data, nt.Tensor); err != nil {
			return fmt.Errorf("failed to encode tensor %s: %w", nt.Name, err)
		}
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   nt.Name,
			Shape:  []int(nt.Tensor.Shape().Clone()),
			Offset: offset,
			Size:   int64(data.Len()) - offset,
		})
	}

	headerBytes, err := cbor.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	var flags uint32
	if len(meta.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if meta.Checkpoint != nil {
		flags |= FlagHasOptimizer
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed, MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:], flags)
	binary.LittleEndian.PutUint64(fixed[16:], uint64(len(headerBytes)))
	binary.LittleEndian.PutUint64(fixed[24:], uint64(data.Len()))
	sum := ComputeChecksum(data.Bytes())
	copy(fixed[ChecksumOffset:], sum[:])

	pad := make([]byte, padding(int64(FixedHeaderSize+len(headerBytes))))
	for _, chunk := range [][]byte{fixed, headerBytes, pad, data.Bytes()} {
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("failed to write model: %w", err)
		}
	}
	return nil
}
