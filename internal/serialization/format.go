package serialization

import (
	"time"

	"github.com/born-ml/positnn/internal/posit"
)

// Format constants.
const (
	MagicBytes      = "PSNN"
	FormatVersion   = 1
	HeaderAlignment = 64 // Tensor data starts on a 64-byte boundary
	FixedHeaderSize = 64
	ChecksumSize    = 32 // SHA-256
	ChecksumOffset  = 0x20
)

// Flags for the .pnn format.
const (
	FlagHasOptimizer uint32 = 1 << 0 // optimizer state included
	FlagHasMetadata  uint32 = 1 << 1 // custom metadata included
)

// Header is the CBOR metadata block of a .pnn file.
type Header struct {
	FormatVersion int               `cbor:"version"`
	NBits         int               `cbor:"nbits"`
	ES            int               `cbor:"es"`
	Count         int               `cbor:"count"`
	ModelType     string            `cbor:"model_type,omitempty"`
	Precision     string            `cbor:"precision,omitempty"` // training precisions, informational
	CreatedAt     time.Time         `cbor:"created_at"`
	Tensors       []TensorMeta      `cbor:"tensors"`
	Metadata      map[string]string `cbor:"metadata,omitempty"`
	Checkpoint    *CheckpointMeta   `cbor:"checkpoint,omitempty"`
}

// Config returns the posit configuration the tensors are stored at.
func (h *Header) Config() posit.Config {
	return posit.Config{NBits: h.NBits, ES: h.ES}
}

// CheckpointMeta contains training state information for checkpoints.
type CheckpointMeta struct {
	Epoch         int     `cbor:"epoch"`
	Step          int64   `cbor:"step"`
	Loss          float64 `cbor:"loss"`
	Accuracy      float64 `cbor:"accuracy"`
	OptimizerType string  `cbor:"optimizer_type,omitempty"`
}

// TensorMeta describes one tensor record in the data section.
type TensorMeta struct {
	Name   string `cbor:"name"`
	Shape  []int  `cbor:"shape"`
	Offset int64  `cbor:"offset"` // bytes from the start of the data section
	Size   int64  `cbor:"size"`   // bytes of the record
}

// Meta carries the optional descriptive fields of a file.
type Meta struct {
	ModelType  string
	Precision  string
	Metadata   map[string]string
	Checkpoint *CheckpointMeta
}

func padding(pos int64) int64 {
	return (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
}
