// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package serialization saves and restores models and training checkpoints
// as .pnn files.
//
// A .pnn file stores every tensor at one posit configuration, chosen by the
// writer and recorded in the header. Reading a file with a different
// configuration fails with ErrConfigMismatch.
//
// Example:
//
//	err := serialization.SaveModel[posit.P16E1](path, model, serialization.Meta{ModelType: "lenet"})
//	_, err = serialization.LoadModel[posit.P16E1](path, model, serialization.ReaderOptions{})
package serialization

import (
	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/serialization"
)

// Errors returned while reading.
var (
	ErrChecksumMismatch   = serialization.ErrChecksumMismatch
	ErrInvalidMagic       = serialization.ErrInvalidMagic
	ErrUnsupportedVersion = serialization.ErrUnsupportedVersion
	ErrConfigMismatch     = serialization.ErrConfigMismatch
	ErrStateMismatch      = serialization.ErrStateMismatch
	ErrNotCheckpoint      = serialization.ErrNotCheckpoint
)

// Header is the metadata block of a .pnn file.
type Header = serialization.Header

// Meta carries the optional descriptive fields of a file.
type Meta = serialization.Meta

// CheckpointMeta is the training progress recorded in a header.
type CheckpointMeta = serialization.CheckpointMeta

// ReaderOptions configures reading.
type ReaderOptions = serialization.ReaderOptions

// ValidationLevel controls how strictly a header is checked.
type ValidationLevel = serialization.ValidationLevel

// Validation levels.
const (
	ValidationStrict = serialization.ValidationStrict
	ValidationNormal = serialization.ValidationNormal
	ValidationNone   = serialization.ValidationNone
)

// ConfigMismatchError reports a file written at another posit configuration.
type ConfigMismatchError = serialization.ConfigMismatchError

// Checkpoint is a model, its optimizer state and training progress.
type Checkpoint = serialization.Checkpoint

// OptimizerState is an optimizer whose buffers can be saved.
type OptimizerState[O posit.Format] = serialization.OptimizerState[O]

// SaveModel writes the state of m at file format G.
func SaveModel[G, O, F, B posit.Format](path string, m nn.Module[O, F, B], meta Meta) error {
	return serialization.SaveModel[G](path, m, meta)
}

// LoadModel restores the state of m from a file written at format G.
func LoadModel[G, O, F, B posit.Format](path string, m nn.Module[O, F, B], opts ReaderOptions) (*Header, error) {
	return serialization.LoadModel[G](path, m, opts)
}

// SaveCheckpoint writes m and the optimizer state at file format G.
func SaveCheckpoint[G, O, F, B posit.Format](path string, m nn.Module[O, F, B], opt OptimizerState[O], ck Checkpoint) error {
	return serialization.SaveCheckpoint[G](path, m, opt, ck)
}

// LoadCheckpoint restores m and opt from a checkpoint written at format G.
func LoadCheckpoint[G, O, F, B posit.Format](path string, m nn.Module[O, F, B], opt OptimizerState[O], opts ReaderOptions) (*Checkpoint, error) {
	return serialization.LoadCheckpoint[G](path, m, opt, opts)
}
