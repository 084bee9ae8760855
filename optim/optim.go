// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim exposes the optimizers: NAdam (default), Adam and SGD.
package optim

import (
	"github.com/born-ml/fieldproxy/internal/nn"
	"github.com/born-ml/fieldproxy/internal/optim"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Config represents the shared configuration accepted by New.
type Config = optim.Config

// Optimizer implementations and their configs.
type (
	NAdam[B tensor.Backend] = optim.NAdam[B]
	Adam[B tensor.Backend]  = optim.Adam[B]
	SGD[B tensor.Backend]   = optim.SGD[B]

	NAdamConfig = optim.NAdamConfig
	AdamConfig  = optim.AdamConfig
	SGDConfig   = optim.SGDConfig
)

// ErrUnknownOptimizer is returned by New for an unrecognized name.
var ErrUnknownOptimizer = optim.ErrUnknownOptimizer

// New builds the optimizer called name ("nadam", "adam" or "sgd").
func New[B tensor.Backend](name string, params []*nn.Parameter[B], cfg Config, backend B) (Optimizer, error) {
	return optim.New(name, params, cfg, backend)
}

// NewNAdam creates a NAdam optimizer.
func NewNAdam[B tensor.Backend](params []*nn.Parameter[B], cfg NAdamConfig, backend B) *NAdam[B] {
	return optim.NewNAdam(params, cfg, backend)
}

// NewAdam creates an Adam optimizer.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], cfg AdamConfig, backend B) *Adam[B] {
	return optim.NewAdam(params, cfg, backend)
}

// NewSGD creates an SGD optimizer with optional momentum.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], cfg SGDConfig, backend B) *SGD[B] {
	return optim.NewSGD(params, cfg, backend)
}
