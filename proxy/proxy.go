// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package proxy exposes the field proxy model: a separable-convolution
// encoder, a multi-head attention block, an LSTM expansion over time and a
// per-step transposed-convolution decoder.
package proxy

import (
	"math/rand"

	"github.com/born-ml/fieldproxy/internal/proxy"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Config describes the architecture.
type Config = proxy.Config

// Model maps [N, C, H, W] input fields to [N, T, 2, H, W] predictions.
type Model[B tensor.Backend] = proxy.Model[B]

// TemporalExpander turns a latent vector into a sequence.
type TemporalExpander[B tensor.Backend] = proxy.TemporalExpander[B]

// Errors returned by construction and Forward.
var (
	ErrConfig = proxy.ErrConfig
	ErrShape  = proxy.ErrShape
	ErrDevice = proxy.ErrDevice
)

// DefaultConfig returns the reference architecture for height x width fields.
func DefaultConfig(height, width int) Config {
	return proxy.DefaultConfig(height, width)
}

// New builds a model with an LSTM temporal expander.
func New[B tensor.Backend](cfg Config, rng *rand.Rand, backend B) (*Model[B], error) {
	return proxy.New(cfg, rng, backend)
}
