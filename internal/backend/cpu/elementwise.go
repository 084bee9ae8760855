package cpu

import (
	"fmt"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b, func(x, y float32) float32 { return x / y })
}

// AddScalar adds s to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return cpu.unary("add_scalar", x, func(v float32) float32 { return v + s })
}

// MulScalar multiplies every element by s.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return cpu.unary("mul_scalar", x, func(v float32) float32 { return v * s })
}

func (cpu *CPUBackend) unary(op string, x *tensor.RawTensor, f func(float32) float32) *tensor.RawTensor {
	cpu.check(op, x)
	result := cpu.alloc(op, x.Shape())
	out, in := result.Data(), x.Data()
	for i, v := range in {
		out[i] = f(v)
	}
	return result
}

func (cpu *CPUBackend) binary(op string, a, b *tensor.RawTensor, f func(x, y float32) float32) *tensor.RawTensor {
	cpu.check(op, a, b)
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}

	result := cpu.alloc(op, outShape)
	out := result.Data()
	ad, bd := a.Data(), b.Data()

	if !needsBroadcast {
		for i := range out {
			out[i] = f(ad[i], bd[i])
		}
		return result
	}

	aStrides := broadcastStrides(a.Shape(), outShape)
	bStrides := broadcastStrides(b.Shape(), outShape)
	idx := make([]int, len(outShape))
	ao, bo := 0, 0
	for i := range out {
		out[i] = f(ad[ao], bd[bo])
		for d := len(outShape) - 1; d >= 0; d-- {
			idx[d]++
			ao += aStrides[d]
			bo += bStrides[d]
			if idx[d] < outShape[d] {
				break
			}
			ao -= aStrides[d] * outShape[d]
			bo -= bStrides[d] * outShape[d]
			idx[d] = 0
		}
	}
	return result
}

// broadcastStrides returns the strides to walk shape while iterating outShape.
// Broadcast and missing leading dimensions get stride 0.
func broadcastStrides(shape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	offset := len(outShape) - len(shape)
	own := shape.ComputeStrides()
	for d := range outShape {
		src := d - offset
		if src < 0 || shape[src] == 1 {
			continue
		}
		strides[d] = own[src]
	}
	return strides
}
