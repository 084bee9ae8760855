// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loss exposes the composite reconstruction loss:
// w_mse * MSE + w_ssim * (1 - SSIM) over every predicted frame.
package loss

import (
	"github.com/born-ml/fieldproxy/internal/loss"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Config holds the term weights and SSIM settings.
type Config = loss.Config

// SSIMConfig holds the gaussian window and stability constants.
type SSIMConfig = loss.SSIMConfig

// Composite is the combined loss.
type Composite[B tensor.Backend] = loss.Composite[B]

// Breakdown reports the loss terms of one batch.
type Breakdown = loss.Breakdown

// DefaultConfig returns equal MSE and SSIM weights with an 11x11 window.
func DefaultConfig() Config {
	return loss.DefaultConfig()
}

// NewComposite validates cfg and builds the loss.
func NewComposite[B tensor.Backend](cfg Config) (*Composite[B], error) {
	return loss.NewComposite[B](cfg)
}
