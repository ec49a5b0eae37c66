package tensor

import "errors"

// Sentinel errors returned by tensor construction and I/O.
var (
	ErrShapeMismatch = errors.New("tensor: shape mismatch")
	ErrCorrupt       = errors.New("tensor: corrupt encoding")
)
