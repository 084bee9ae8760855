// Package cpu implements the CPU backend with gonum BLAS integration.
package cpu

import (
	"fmt"

	"github.com/born-ml/fieldproxy/internal/parallel"
	"github.com/born-ml/fieldproxy/internal/tensor"
	"github.com/klauspost/cpuid/v2"
)

// CPUBackend implements tensor operations on the host CPU.
//
// Matrix products and convolutions lower to gonum's SGEMM; image kernels
// fan out over samples and channels with the parallel package.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithDevice tags the tensors the backend allocates with device.
// Accelerated backends embed a CPUBackend for the kernels they do not
// implement and use this to keep placement consistent.
func WithDevice(d tensor.Device) Option {
	return func(c *CPUBackend) { c.device = d }
}

// WithParallel overrides the worker configuration.
func WithParallel(cfg parallel.Config) Option {
	return func(c *CPUBackend) { c.par = cfg }
}

// New creates a new CPU backend.
func New(opts ...Option) *CPUBackend {
	c := &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the backend name including the host CPU model.
func (cpu *CPUBackend) Name() string {
	simd := "generic"
	if cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) {
		simd = "AVX2"
	}
	brand := cpuid.CPU.BrandName
	if brand == "" {
		brand = "unknown CPU"
	}
	return fmt.Sprintf("CPU (%s, %s, %d workers)", brand, simd, cpu.par.NumWorkers)
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Parallel returns the worker configuration.
func (cpu *CPUBackend) Parallel() parallel.Config {
	return cpu.par
}

// alloc creates a zeroed result tensor on the backend's device.
func (cpu *CPUBackend) alloc(op string, shape tensor.Shape) *tensor.RawTensor {
	r, err := tensor.NewRaw(shape, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return r
}

// check panics with a *tensor.DeviceError if an operand lives elsewhere.
func (cpu *CPUBackend) check(op string, ts ...*tensor.RawTensor) {
	if err := tensor.CheckDevice(op, cpu.device, ts...); err != nil {
		panic(err)
	}
}
