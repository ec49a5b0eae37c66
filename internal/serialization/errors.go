package serialization

import (
	"errors"
	"fmt"

	"github.com/born-ml/positnn/internal/posit"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrConfigMismatch     = errors.New("posit configuration mismatch")
	ErrStateMismatch      = errors.New("stored tensors do not match the model")
)

// ConfigMismatchError reports a file written with a different posit
// configuration than the one it is being read with.
type ConfigMismatchError struct {
	File posit.Config // Configuration recorded in the header
	Want posit.Config // Configuration requested by the reader
}

// Error implements the error interface.
func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("posits have different sizes: file %s, given %s", e.File, e.Want)
}

// Is makes errors.Is(err, ErrConfigMismatch) hold.
func (e *ConfigMismatchError) Is(target error) bool {
	return target == ErrConfigMismatch
}

// ValidationError provides detailed information about validation failures.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Tensor  string // Primary tensor name involved
	Tensor2 string // Secondary tensor name (for overlap errors)
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch {
	case e.Tensor2 != "":
		return fmt.Sprintf("%s: tensors %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	case e.Tensor != "":
		return fmt.Sprintf("%s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}
