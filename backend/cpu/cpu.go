// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the host backend: gonum BLAS for matrix products
// and convolutions, data-parallel loops sized to the host's logical cores.
package cpu

import (
	internalcpu "github.com/born-ml/fieldproxy/internal/backend/cpu"
	"github.com/born-ml/fieldproxy/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend using every logical core.
func New() *Backend {
	return internalcpu.New()
}
