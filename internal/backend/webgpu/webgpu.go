// Package webgpu implements a WebGPU-accelerated backend using go-webgpu
// (github.com/go-webgpu/webgpu) zero-CGO bindings.
//
// The backend embeds the CPU backend and offloads matrix products and
// same-shape elementwise kernels to WGSL compute shaders; everything else
// runs on the host. Tensors are tagged tensor.WebGPU either way, so the
// model's placement checks see one device.
//
// The native wgpu library is only wired up on Windows. Elsewhere New
// returns ErrUnavailable.
package webgpu

import "errors"

// ErrUnavailable is returned by New when no WebGPU adapter can be used.
var ErrUnavailable = errors.New("webgpu: not available")

// MinGPUElements is the operand size below which kernels stay on the host.
// Upload and read-back dominate for smaller tensors.
const MinGPUElements = 4096
