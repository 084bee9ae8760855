//go:build windows

package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/fieldproxy/internal/backend/cpu"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Backend runs matrix products and elementwise kernels on a WebGPU device
// and the remaining kernels on the embedded CPU backend.
type Backend struct {
	*cpu.CPUBackend

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     wgpu.AdapterInfo

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex
}

// New creates a WebGPU backend on the default high-performance adapter.
func New() (backend *Backend, err error) {
	// wgpu panics when the native library cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("%w: native library: %v", ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", ErrUnavailable, err)
	}
	info := adapter.GetInfo()

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrUnavailable, err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: device has no queue", ErrUnavailable)
	}

	return &Backend{
		CPUBackend: cpu.New(cpu.WithDevice(tensor.WebGPU)),
		instance:   instance,
		adapter:    adapter,
		device:     device,
		queue:      queue,
		info:       info,
		shaders:    make(map[string]*wgpu.ShaderModule),
		pipelines:  make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// IsAvailable reports whether a WebGPU adapter can be requested.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Name returns the backend name including the adapter.
func (b *Backend) Name() string {
	return fmt.Sprintf("WebGPU (%s %s, %s)", b.info.Vendor, b.info.Device, b.info.Architecture)
}

// Release frees all GPU resources.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, p := range b.pipelines {
		p.Release()
		delete(b.pipelines, name)
	}
	for name, s := range b.shaders {
		s.Release()
		delete(b.shaders, name)
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// MatMul performs (M, K) @ (K, N) -> (M, N), on the GPU for large operands.
func (b *Backend) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	xs, ys := x.Shape(), y.Shape()
	if len(xs) != 2 || len(ys) != 2 || xs[1] != ys[0] || xs[0]*ys[1] < MinGPUElements {
		return b.CPUBackend.MatMul(x, y)
	}
	b.check("matmul", x, y)
	out, err := b.runMatMul(x, y, xs[0], xs[1], ys[1])
	if err != nil {
		panic(fmt.Sprintf("matmul: %v", err))
	}
	return out
}

// Add performs element-wise addition. Broadcasting runs on the host.
func (b *Backend) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	if !b.offloadBinary(x, y) {
		return b.CPUBackend.Add(x, y)
	}
	return b.binary("add", addShader, x, y)
}

// Sub performs element-wise subtraction. Broadcasting runs on the host.
func (b *Backend) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	if !b.offloadBinary(x, y) {
		return b.CPUBackend.Sub(x, y)
	}
	return b.binary("sub", subShader, x, y)
}

// Mul performs element-wise multiplication. Broadcasting runs on the host.
func (b *Backend) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	if !b.offloadBinary(x, y) {
		return b.CPUBackend.Mul(x, y)
	}
	return b.binary("mul", mulShader, x, y)
}

// Sigmoid applies the logistic function.
func (b *Backend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	if x.NumElements() < MinGPUElements {
		return b.CPUBackend.Sigmoid(x)
	}
	return b.unary("sigmoid", sigmoidShader, x)
}

// Tanh applies the hyperbolic tangent.
func (b *Backend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	if x.NumElements() < MinGPUElements {
		return b.CPUBackend.Tanh(x)
	}
	return b.unary("tanh", tanhShader, x)
}

func (b *Backend) offloadBinary(x, y *tensor.RawTensor) bool {
	return x.Shape().Equal(y.Shape()) && x.NumElements() >= MinGPUElements
}

func (b *Backend) binary(op, shader string, x, y *tensor.RawTensor) *tensor.RawTensor {
	b.check(op, x, y)
	out, err := b.runElementwise(op, shader, x, y)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	return out
}

func (b *Backend) unary(op, shader string, x *tensor.RawTensor) *tensor.RawTensor {
	b.check(op, x)
	out, err := b.runElementwise(op, shader, x)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	return out
}

func (b *Backend) check(op string, ts ...*tensor.RawTensor) {
	if err := tensor.CheckDevice(op, tensor.WebGPU, ts...); err != nil {
		panic(err)
	}
}
