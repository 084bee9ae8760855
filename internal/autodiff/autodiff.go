// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation (CPU, WebGPU) and adds
// gradient tracking capabilities through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op implements its backward pass
//   - Reverse-mode AD: Computes gradients efficiently using chain rule
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//
//	x, _ := tensor.FromSlice([]float32{2.0}, tensor.Shape{1}, backend)
//	y := x.Mul(x).Sum() // y = x²
//
//	grads, _ := autodiff.Backward(y, backend)
//	fmt.Println(grads[x.Raw()].Data()) // dy/dx = 2x = 4.0
package autodiff

import (
	"github.com/born-ml/fieldproxy/internal/autodiff/ops"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

func (b *AutodiffBackend[B]) record(op ops.Operation) {
	if b.tape.IsRecording() {
		b.tape.Record(op)
	}
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(x, y)
	b.record(ops.NewAddOp(x, y, result))
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(x, y)
	b.record(ops.NewSubOp(x, y, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(x, y)
	b.record(ops.NewMulOp(x, y, result))
	return result
}

// Div performs element-wise division and records the operation.
func (b *AutodiffBackend[B]) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Div(x, y)
	b.record(ops.NewDivOp(x, y, result))
	return result
}

// AddScalar adds a constant and records the operation.
func (b *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	result := b.inner.AddScalar(x, s)
	b.record(ops.NewAddScalarOp(x, result))
	return result
}

// MulScalar scales by a constant and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	result := b.inner.MulScalar(x, s)
	b.record(ops.NewMulScalarOp(x, result, s))
	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MatMul(x, y)
	b.record(ops.NewMatMulOp(x, y, result))
	return result
}

// BatchMatMul performs batched matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) BatchMatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.BatchMatMul(x, y)
	b.record(ops.NewBatchMatMulOp(x, y, result))
	return result
}

// Reshape reshapes a tensor and records the operation.
//
// Reshape must be recorded even though it is a view: the result is a new
// RawTensor, and gradients are keyed by tensor identity.
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(t, newShape)
	b.record(ops.NewReshapeOp(t, result))
	return result
}

// Transpose transposes a tensor and records the operation.
func (b *AutodiffBackend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	ndim := len(t.Shape())
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	result := b.inner.Transpose(t, axes...)
	b.record(ops.NewTransposeOp(t, result, axes))
	return result
}

// Narrow slices a tensor along dim and records the operation.
func (b *AutodiffBackend[B]) Narrow(t *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	dim = t.Shape().NormalizeDim(dim)
	result := b.inner.Narrow(t, dim, start, length)
	b.record(ops.NewNarrowOp(t, result, dim, start, length))
	return result
}

// Cat concatenates tensors and records the operation.
func (b *AutodiffBackend[B]) Cat(xs []*tensor.RawTensor, dim int) *tensor.RawTensor {
	result := b.inner.Cat(xs, dim)
	dim = result.Shape().NormalizeDim(dim)
	inputs := append([]*tensor.RawTensor(nil), xs...)
	b.record(ops.NewCatOp(inputs, result, dim))
	return result
}

// Sum reduces to a scalar and records the operation.
func (b *AutodiffBackend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sum(x)
	b.record(ops.NewSumOp(x, result))
	return result
}

// SumDim reduces along dim and records the operation.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	dim = x.Shape().NormalizeDim(dim)
	result := b.inner.SumDim(x, dim, keepDim)
	b.record(ops.NewSumDimOp(x, result, dim, keepDim))
	return result
}

// GELU applies the exact GELU and records the operation.
func (b *AutodiffBackend[B]) GELU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.GELU(x)
	b.record(ops.NewGELUOp(x, result))
	return result
}

// Sigmoid applies the logistic function and records the operation.
func (b *AutodiffBackend[B]) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sigmoid(x)
	b.record(ops.NewSigmoidOp(x, result))
	return result
}

// Tanh applies the hyperbolic tangent and records the operation.
func (b *AutodiffBackend[B]) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Tanh(x)
	b.record(ops.NewTanhOp(x, result))
	return result
}

// Softmax normalizes along the last dimension and records the operation.
func (b *AutodiffBackend[B]) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Softmax(x)
	b.record(ops.NewSoftmaxOp(x, result))
	return result
}

// Conv2D performs grouped 2D convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding, groups int) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, padding, groups)
	b.record(ops.NewConv2DOp(input, kernel, result, stride, padding, groups))
	return result
}

// ConvTranspose2D performs a transposed convolution and records the operation.
func (b *AutodiffBackend[B]) ConvTranspose2D(input, kernel *tensor.RawTensor, stride, padding, outputPadding int) *tensor.RawTensor {
	result := b.inner.ConvTranspose2D(input, kernel, stride, padding, outputPadding)
	b.record(ops.NewConvTranspose2DOp(input, kernel, result, stride, padding, outputPadding))
	return result
}

// AvgPool2D performs average pooling and records the operation.
func (b *AutodiffBackend[B]) AvgPool2D(x *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	result := b.inner.AvgPool2D(x, kernelSize, stride)
	b.record(ops.NewAvgPool2DOp(x, result, kernelSize, stride))
	return result
}

// InstanceNorm2D normalizes each plane and records the operation.
func (b *AutodiffBackend[B]) InstanceNorm2D(x *tensor.RawTensor, eps float32) *tensor.RawTensor {
	result := b.inner.InstanceNorm2D(x, eps)
	b.record(ops.NewInstanceNorm2DOp(x, result, eps))
	return result
}

// Backward kernels run during tape replay and are never recorded.

// Conv2DBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) Conv2DBackward(input, kernel, grad *tensor.RawTensor, stride, padding, groups int) (*tensor.RawTensor, *tensor.RawTensor) {
	return b.inner.Conv2DBackward(input, kernel, grad, stride, padding, groups)
}

// ConvTranspose2DBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) ConvTranspose2DBackward(input, kernel, grad *tensor.RawTensor, stride, padding, outputPadding int) (*tensor.RawTensor, *tensor.RawTensor) {
	return b.inner.ConvTranspose2DBackward(input, kernel, grad, stride, padding, outputPadding)
}

// AvgPool2DBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) AvgPool2DBackward(grad *tensor.RawTensor, inputShape tensor.Shape, kernelSize, stride int) *tensor.RawTensor {
	return b.inner.AvgPool2DBackward(grad, inputShape, kernelSize, stride)
}

// InstanceNorm2DBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) InstanceNorm2DBackward(input, grad *tensor.RawTensor, eps float32) *tensor.RawTensor {
	return b.inner.InstanceNorm2DBackward(input, grad, eps)
}

// GELUBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) GELUBackward(input, grad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.GELUBackward(input, grad)
}

// SoftmaxBackward delegates to the wrapped backend.
func (b *AutodiffBackend[B]) SoftmaxBackward(output, grad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.SoftmaxBackward(output, grad)
}
