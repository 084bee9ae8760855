//go:build !windows

package webgpu

import (
	"github.com/born-ml/fieldproxy/internal/backend/cpu"
)

// Backend is the host-only placeholder on platforms without the wgpu
// native library.
type Backend struct {
	*cpu.CPUBackend
}

// New always fails on this platform.
func New() (*Backend, error) {
	return nil, ErrUnavailable
}

// IsAvailable reports whether a WebGPU adapter can be requested.
func IsAvailable() bool {
	return false
}

// Release is a no-op.
func (b *Backend) Release() {}
