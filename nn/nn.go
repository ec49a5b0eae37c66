// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand"

	"github.com/born-ml/positnn/internal/nn"
	"github.com/born-ml/positnn/internal/parallel"
	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Module is implemented by every layer.
type Module[O, F, B posit.Format] = nn.Module[O, F, B]

// Record links one Forward call to its Backward call.
type Record = nn.Record

// Policy fixes the optimizer, forward and backward precisions of a model.
type Policy[O, F, B posit.Format] = nn.Policy[O, F, B]

// Precision names the three formats of a policy.
type Precision = nn.Precision

// ParallelConfig controls fork-join execution of kernels.
type ParallelConfig = parallel.Config

// SerialConfig runs every kernel on the calling goroutine.
func SerialConfig() ParallelConfig { return parallel.Serial() }

// DefaultParallelConfig splits kernels across the available CPUs.
func DefaultParallelConfig() ParallelConfig { return parallel.DefaultConfig() }

// ParallelWorkers splits kernels into n chunks.
func ParallelWorkers(n int) ParallelConfig { return parallel.WithWorkers(n) }

// NewPolicy returns a policy with a fresh window cache.
//
// Example:
//
//	pol := nn.NewPolicy[posit.P16E1, posit.P8E0, posit.P8E0](nn.DefaultParallelConfig())
func NewPolicy[O, F, B posit.Format](par ParallelConfig) Policy[O, F, B] {
	return nn.NewPolicy[O, F, B](par)
}

// Parameter is a trainable weight with its gradient accumulator.
type Parameter[O posit.Format] = nn.Parameter[O]

// MixedTensor holds one logical tensor at three precisions.
type MixedTensor[O, F, B posit.Format] = nn.MixedTensor[O, F, B]

// NamedTensor is one entry of a model's persistent state.
type NamedTensor[O posit.Format] = nn.NamedTensor[O]

// NewParameter wraps weight as a single-precision parameter.
func NewParameter[O posit.Format](name string, weight *tensor.Tensor[O]) *Parameter[O] {
	return nn.NewParameter(name, weight)
}

// NamedState returns the weights and buffers of m in a stable order.
func NamedState[O, F, B posit.Format](m Module[O, F, B]) []NamedTensor[O] {
	return nn.NamedState(m)
}

// ZeroGrad clears the gradient accumulators of params.
func ZeroGrad[O posit.Format](params []*Parameter[O]) { nn.ZeroGrad(params) }

// Sync refreshes the forward and backward views of params.
func Sync[O posit.Format](params []*Parameter[O]) { nn.Sync(params) }

// Errors returned by Backward and the losses.
var (
	ErrRecordMismatch   = nn.ErrRecordMismatch
	ErrRecordConsumed   = nn.ErrRecordConsumed
	ErrShapeMismatch    = nn.ErrShapeMismatch
	ErrTargetRange      = nn.ErrTargetRange
	ErrUnknownReduction = nn.ErrUnknownReduction
	ErrUnknownScaleMode = nn.ErrUnknownScaleMode
	ErrNotCalibrated    = nn.ErrNotCalibrated
)

// Layers

// Sequential chains modules.
type Sequential[O, F, B posit.Format] = nn.Sequential[O, F, B]

// NewSequential creates a container running modules in order.
func NewSequential[O, F, B posit.Format](modules ...Module[O, F, B]) *Sequential[O, F, B] {
	return nn.NewSequential(modules...)
}

// Linear is a fully connected layer.
type Linear[O, F, B posit.Format] = nn.Linear[O, F, B]

// NewLinear creates a Linear layer with kaiming-uniform weights. A nil rng
// uses DefaultSeed.
func NewLinear[O, F, B posit.Format](pol Policy[O, F, B], inFeatures, outFeatures int, rng *rand.Rand) *Linear[O, F, B] {
	return nn.NewLinear(pol, inFeatures, outFeatures, rng)
}

// Conv2d is a 2D convolution.
type Conv2d[O, F, B posit.Format] = nn.Conv2d[O, F, B]

// Conv2dConfig configures a Conv2d layer.
type Conv2dConfig = nn.Conv2dConfig

// DefaultConv2dConfig returns a stride 1, unpadded convolution with bias.
func DefaultConv2dConfig(inChannels, outChannels, kernelSize int) Conv2dConfig {
	return nn.DefaultConv2dConfig(inChannels, outChannels, kernelSize)
}

// NewConv2d creates a Conv2d layer. A nil rng uses DefaultSeed.
func NewConv2d[O, F, B posit.Format](pol Policy[O, F, B], cfg Conv2dConfig, rng *rand.Rand) (*Conv2d[O, F, B], error) {
	return nn.NewConv2d(pol, cfg, rng)
}

// PoolConfig configures a pooling window.
type PoolConfig = nn.PoolConfig

// MaxPool2d is 2D max pooling.
type MaxPool2d[O, F, B posit.Format] = nn.MaxPool2d[O, F, B]

// NewMaxPool2d creates a MaxPool2d layer.
func NewMaxPool2d[O, F, B posit.Format](pol Policy[O, F, B], cfg PoolConfig) (*MaxPool2d[O, F, B], error) {
	return nn.NewMaxPool2d(pol, cfg)
}

// AvgPool2d is 2D average pooling.
type AvgPool2d[O, F, B posit.Format] = nn.AvgPool2d[O, F, B]

// NewAvgPool2d creates an AvgPool2d layer.
func NewAvgPool2d[O, F, B posit.Format](pol Policy[O, F, B], cfg PoolConfig) (*AvgPool2d[O, F, B], error) {
	return nn.NewAvgPool2d(pol, cfg)
}

// Dropout zeroes random elements in training mode.
type Dropout[O, F, B posit.Format] = nn.Dropout[O, F, B]

// DropoutConfig configures a Dropout layer.
type DropoutConfig = nn.DropoutConfig

// NewDropout creates a Dropout layer.
func NewDropout[O, F, B posit.Format](pol Policy[O, F, B], cfg DropoutConfig) (*Dropout[O, F, B], error) {
	return nn.NewDropout(pol, cfg)
}

// BatchNorm1d normalizes features over the batch.
type BatchNorm1d[O, F, B posit.Format] = nn.BatchNorm1d[O, F, B]

// BatchNormConfig configures a BatchNorm1d layer.
type BatchNormConfig = nn.BatchNormConfig

// DefaultBatchNormConfig returns the usual settings for numFeatures.
func DefaultBatchNormConfig(numFeatures int) BatchNormConfig {
	return nn.DefaultBatchNormConfig(numFeatures)
}

// NewBatchNorm1d creates a BatchNorm1d layer.
func NewBatchNorm1d[O, F, B posit.Format](pol Policy[O, F, B], cfg BatchNormConfig) (*BatchNorm1d[O, F, B], error) {
	return nn.NewBatchNorm1d(pol, cfg)
}

// Flatten collapses every axis after the batch axis.
type Flatten[O, F, B posit.Format] = nn.Flatten[O, F, B]

// NewFlatten creates a Flatten layer.
func NewFlatten[O, F, B posit.Format](pol Policy[O, F, B]) *Flatten[O, F, B] { return nn.NewFlatten(pol) }

// DefaultSeed seeds Linear and Conv2d initialization when rng is nil.
const DefaultSeed = nn.DefaultSeed

// Gradient scaling

// BackScale divides backward gradients by calibrated factors at a set of
// points and restores the parameter gradients.
type BackScale[O, F, B posit.Format] = nn.BackScale[O, F, B]

// ScalePoint is one point of a BackScale.
type ScalePoint[O, F, B posit.Format] = nn.ScalePoint[O, F, B]

// BackScaleConfig configures a BackScale.
type BackScaleConfig = nn.BackScaleConfig

// BackScaleMode selects how BackScale derives its factors.
type BackScaleMode = nn.BackScaleMode

// BackScale modes.
const (
	BackScaleLoss   = nn.BackScaleLoss
	BackScaleMix    = nn.BackScaleMix
	BackScaleBefore = nn.BackScaleBefore
	BackScaleAfter  = nn.BackScaleAfter
)

// DefaultBackScaleConfig returns a Mix configuration over points.
func DefaultBackScaleConfig(points int) BackScaleConfig { return nn.DefaultBackScaleConfig(points) }

// NewBackScale creates a disabled BackScale.
func NewBackScale[O, F, B posit.Format](pol Policy[O, F, B], cfg BackScaleConfig) (*BackScale[O, F, B], error) {
	return nn.NewBackScale(pol, cfg)
}

// AdaptiveScale divides the gradient reaching each wrapped layer by a
// running estimate of its spread.
type AdaptiveScale[O, F, B posit.Format] = nn.AdaptiveScale[O, F, B]

// AdaptivePoint is one point of an AdaptiveScale.
type AdaptivePoint[O, F, B posit.Format] = nn.AdaptivePoint[O, F, B]

// AdaptiveScaleConfig configures an AdaptiveScale.
type AdaptiveScaleConfig = nn.AdaptiveScaleConfig

// AdaptiveScaleMode selects the target spread of AdaptiveScale.
type AdaptiveScaleMode = nn.AdaptiveScaleMode

// AdaptiveScale modes.
const (
	AdaptiveDefault   = nn.AdaptiveDefault
	AdaptiveNormalize = nn.AdaptiveNormalize
	AdaptiveHalf      = nn.AdaptiveHalf
)

// DefaultAdaptiveScaleConfig returns the Default mode with momentum 0.1.
func DefaultAdaptiveScaleConfig(points int) AdaptiveScaleConfig {
	return nn.DefaultAdaptiveScaleConfig(points)
}

// NewAdaptiveScale creates a disabled AdaptiveScale.
func NewAdaptiveScale[O, F, B posit.Format](pol Policy[O, F, B], cfg AdaptiveScaleConfig) (*AdaptiveScale[O, F, B], error) {
	return nn.NewAdaptiveScale(pol, cfg)
}

// Activations

// ReLU is max(0, x).
type ReLU[O, F, B posit.Format] = nn.ReLU[O, F, B]

// NewReLU creates a ReLU layer.
func NewReLU[O, F, B posit.Format](pol Policy[O, F, B]) *ReLU[O, F, B] { return nn.NewReLU(pol) }

// Sigmoid is the logistic function.
type Sigmoid[O, F, B posit.Format] = nn.Sigmoid[O, F, B]

// NewSigmoid creates a Sigmoid layer.
func NewSigmoid[O, F, B posit.Format](pol Policy[O, F, B]) *Sigmoid[O, F, B] {
	return nn.NewSigmoid(pol)
}

// Tanh is the hyperbolic tangent.
type Tanh[O, F, B posit.Format] = nn.Tanh[O, F, B]

// NewTanh creates a Tanh layer.
func NewTanh[O, F, B posit.Format](pol Policy[O, F, B]) *Tanh[O, F, B] { return nn.NewTanh(pol) }

// LogSoftmax is the row-wise log of the softmax.
type LogSoftmax[O, F, B posit.Format] = nn.LogSoftmax[O, F, B]

// NewLogSoftmax creates a LogSoftmax layer.
func NewLogSoftmax[O, F, B posit.Format](pol Policy[O, F, B]) *LogSoftmax[O, F, B] {
	return nn.NewLogSoftmax(pol)
}

// Losses

// Reduction selects how per-sample losses combine.
type Reduction = nn.Reduction

// Reductions.
const (
	Mean = nn.Mean
	Sum  = nn.Sum
)

// Loss is a computed loss value with its derivative.
type Loss[B posit.Format] = nn.Loss[B]

// CrossEntropyLoss is the result of CrossEntropy.
type CrossEntropyLoss[B posit.Format] = nn.CrossEntropyLoss[B]

// SoftmaxGrad selects the operation order of the cross-entropy derivative.
type SoftmaxGrad = nn.SoftmaxGrad

// Cross-entropy derivative orders.
const (
	FusedTarget        = nn.FusedTarget
	DivideThenSubtract = nn.DivideThenSubtract
	SubtractThenDivide = nn.SubtractThenDivide
)

// CrossEntropy computes softmax cross-entropy of logits against target classes.
func CrossEntropy[F, B posit.Format](logits *tensor.Tensor[F], target *tensor.Indices, reduction Reduction) (*CrossEntropyLoss[B], error) {
	return nn.CrossEntropy[F, B](logits, target, reduction)
}

// MSELoss is the result of MSE.
type MSELoss[B posit.Format] = nn.MSELoss[B]

// MSE computes the squared error between output and target.
func MSE[F, B posit.Format](output, target *tensor.Tensor[F], reduction Reduction) (*MSELoss[B], error) {
	return nn.MSE[F, B](output, target, reduction)
}

// NLLLoss is the result of NLL.
type NLLLoss[B posit.Format] = nn.NLLLoss[B]

// NLL computes the negative log-likelihood of log-probabilities.
func NLL[F, B posit.Format](output *tensor.Tensor[F], target *tensor.Indices, reduction Reduction) (*NLLLoss[B], error) {
	return nn.NLL[F, B](output, target, reduction)
}
