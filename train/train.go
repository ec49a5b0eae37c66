// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package train runs synchronous data-parallel training steps over posit
// models.
//
// Example:
//
//	build := func() nn.Module[O, F, B] { return newModel(pol, rng) }
//	model := build()
//	opt, _ := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.05})
//	tr, err := train.NewTrainer(model, build, opt, train.CrossEntropy[F, B](), train.Config{Workers: 4})
//	res, err := tr.Step(ctx, x, labels)
package train

import (
	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/optim"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/train"
)

// Trainer couples a master model with its optimizer and replicas.
type Trainer[O, F, B posit.Format] = train.Trainer[O, F, B]

// Config controls data parallelism.
type Config = train.Config

// StepResult reports one training step.
type StepResult = train.StepResult

// EvalResult reports an evaluation pass.
type EvalResult = train.EvalResult

// Factory builds a fresh model with the master's architecture.
type Factory[O, F, B posit.Format] = train.Factory[O, F, B]

// LossFunc computes a loss over outputs and class targets.
type LossFunc[F, B posit.Format] = train.LossFunc[F, B]

// Errors returned by NewTrainer, Step and Evaluate.
var (
	ErrNoFactory       = train.ErrNoFactory
	ErrReplicaMismatch = train.ErrReplicaMismatch
	ErrEmptyBatch      = train.ErrEmptyBatch
	ErrBatchMismatch   = train.ErrBatchMismatch
)

// DefaultConfig trains on a single worker.
func DefaultConfig() Config { return train.DefaultConfig() }

// CrossEntropy is the softmax cross-entropy LossFunc.
func CrossEntropy[F, B posit.Format]() LossFunc[F, B] { return train.CrossEntropy[F, B]() }

// NLL is the negative log-likelihood LossFunc for LogSoftmax outputs.
func NLL[F, B posit.Format]() LossFunc[F, B] { return train.NLL[F, B]() }

// NewTrainer builds the replicas and checks that they match the master.
func NewTrainer[O, F, B posit.Format](model nn.Module[O, F, B], factory Factory[O, F, B], opt optim.Optimizer, loss LossFunc[F, B], cfg Config) (*Trainer[O, F, B], error) {
	return train.NewTrainer(model, factory, opt, loss, cfg)
}
