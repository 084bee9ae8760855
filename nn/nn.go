// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the layers the proxy model is built from.
package nn

import (
	"math/rand"

	"github.com/born-ml/fieldproxy/internal/nn"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// ErrConfig reports invalid layer hyperparameters.
var ErrConfig = nn.ErrConfig

// ConvOptions configures Conv2D.
type ConvOptions = nn.ConvOptions

// Layers.
type (
	Linear[B tensor.Backend]             = nn.Linear[B]
	Conv2D[B tensor.Backend]             = nn.Conv2D[B]
	SeparableConv2D[B tensor.Backend]    = nn.SeparableConv2D[B]
	ConvTranspose2D[B tensor.Backend]    = nn.ConvTranspose2D[B]
	InstanceNorm2D[B tensor.Backend]     = nn.InstanceNorm2D[B]
	AvgPool2D[B tensor.Backend]          = nn.AvgPool2D[B]
	GELU[B tensor.Backend]               = nn.GELU[B]
	Sequential[B tensor.Backend]         = nn.Sequential[B]
	MultiHeadAttention[B tensor.Backend] = nn.MultiHeadAttention[B]
	LSTM[B tensor.Backend]               = nn.LSTM[B]
	TimeDistributed[B tensor.Backend]    = nn.TimeDistributed[B]
)

// NewLinear creates a fully connected layer.
func NewLinear[B tensor.Backend](in, out int, rng *rand.Rand, backend B) *Linear[B] {
	return nn.NewLinear(in, out, rng, backend)
}

// NewConv2D creates a 2D convolution with a square kernel.
func NewConv2D[B tensor.Backend](in, out, kernel int, opts ConvOptions, rng *rand.Rand, backend B) *Conv2D[B] {
	return nn.NewConv2D(in, out, kernel, opts, rng, backend)
}

// NewSeparableConv2D creates a depthwise 3x3 plus pointwise 1x1 convolution.
func NewSeparableConv2D[B tensor.Backend](in, out int, rng *rand.Rand, backend B) *SeparableConv2D[B] {
	return nn.NewSeparableConv2D(in, out, rng, backend)
}

// NewConvTranspose2D creates a transposed convolution.
func NewConvTranspose2D[B tensor.Backend](in, out, kernel, stride, padding, outputPadding int, rng *rand.Rand, backend B) *ConvTranspose2D[B] {
	return nn.NewConvTranspose2D(in, out, kernel, stride, padding, outputPadding, rng, backend)
}

// NewMultiHeadAttention creates self-attention over [batch, seq, embed] tokens.
func NewMultiHeadAttention[B tensor.Backend](embed, heads int, rng *rand.Rand, backend B) (*MultiHeadAttention[B], error) {
	return nn.NewMultiHeadAttention(embed, heads, rng, backend)
}

// NewLSTM creates a single-layer batch-first LSTM.
func NewLSTM[B tensor.Backend](in, hidden int, rng *rand.Rand, backend B) *LSTM[B] {
	return nn.NewLSTM(in, hidden, rng, backend)
}

// NewTimeDistributed applies inner to every step of a [N, T, ...] input.
func NewTimeDistributed[B tensor.Backend](inner Module[B]) *TimeDistributed[B] {
	return nn.NewTimeDistributed(inner)
}

// NewSequential chains modules.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// CountParameters returns the number of scalar weights in params.
func CountParameters[B tensor.Backend](params []*Parameter[B]) int {
	return nn.CountParameters(params)
}
