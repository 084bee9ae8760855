// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend. Only Windows builds load the
// native library; elsewhere New returns ErrUnavailable.
//
//	gpu, err := webgpu.New()
//	if err != nil {
//	    return err
//	}
//	defer gpu.Release()
//	backend := autodiff.New(gpu)
package webgpu

import (
	internalwebgpu "github.com/born-ml/fieldproxy/internal/backend/webgpu"
	"github.com/born-ml/fieldproxy/tensor"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// ErrUnavailable is returned by New when no adapter can be used.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// New creates a new WebGPU backend. Call Release when done.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
