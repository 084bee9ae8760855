package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

const invSqrt2 = 0.70710678118654752440
const invSqrt2Pi = 0.39894228040143267794

// GELU applies the exact Gaussian error linear unit x·Φ(x).
func (cpu *CPUBackend) GELU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("gelu", x, func(v float32) float32 {
		f := float64(v)
		return float32(0.5 * f * (1 + math.Erf(f*invSqrt2)))
	})
}

// GELUBackward returns grad · (Φ(x) + x·φ(x)).
func (cpu *CPUBackend) GELUBackward(input, grad *tensor.RawTensor) *tensor.RawTensor {
	cpu.check("gelu_backward", input, grad)
	if !input.Shape().Equal(grad.Shape()) {
		panic(fmt.Sprintf("gelu_backward: shape mismatch %v vs %v", input.Shape(), grad.Shape()))
	}
	result := cpu.alloc("gelu_backward", input.Shape())
	out, in, g := result.Data(), input.Data(), grad.Data()
	for i, v := range in {
		f := float64(v)
		cdf := 0.5 * (1 + math.Erf(f*invSqrt2))
		pdf := invSqrt2Pi * math.Exp(-0.5*f*f)
		out[i] = g[i] * float32(cdf+f*pdf)
	}
	return result
}

// Sigmoid applies 1/(1+exp(-x)) element-wise.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sigmoid", x, sigmoid)
}

// Tanh applies the hyperbolic tangent element-wise.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("tanh", x, func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

func sigmoid(v float32) float32 {
	// Split on sign so exp never overflows.
	if v >= 0 {
		return float32(1 / (1 + math.Exp(-float64(v))))
	}
	e := math.Exp(float64(v))
	return float32(e / (1 + e))
}

// Softmax normalizes along the last dimension using the max-shift trick.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	cpu.check("softmax", x)
	shape := x.Shape()
	if len(shape) == 0 {
		panic("softmax: scalar input")
	}
	n := shape[len(shape)-1]
	rows := x.NumElements() / n

	result := cpu.alloc("softmax", shape)
	in, out := x.Data(), result.Data()
	for r := 0; r < rows; r++ {
		row := in[r*n : (r+1)*n]
		dst := out[r*n : (r+1)*n]

		maxVal := row[0]
		for _, v := range row[1:] {
			maxVal = max(maxVal, v)
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - maxVal))
			dst[i] = float32(e)
			sum += e
		}
		inv := float32(1 / sum)
		for i := range dst {
			dst[i] *= inv
		}
	}
	return result
}

// SoftmaxBackward returns y · (g - Σ g·y) row-wise, where y is the softmax output.
func (cpu *CPUBackend) SoftmaxBackward(output, grad *tensor.RawTensor) *tensor.RawTensor {
	cpu.check("softmax_backward", output, grad)
	shape := output.Shape()
	n := shape[len(shape)-1]
	rows := output.NumElements() / n

	result := cpu.alloc("softmax_backward", shape)
	y, g, out := output.Data(), grad.Data(), result.Data()
	for r := 0; r < rows; r++ {
		base := r * n
		var dot float32
		for i := 0; i < n; i++ {
			dot += g[base+i] * y[base+i]
		}
		for i := 0; i < n; i++ {
			out[base+i] = y[base+i] * (g[base+i] - dot)
		}
	}
	return result
}
