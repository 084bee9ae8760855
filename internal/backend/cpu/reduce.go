package cpu

import (
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Sum reduces all elements to a scalar, accumulating in float64.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	cpu.check("sum", x)
	var acc float64
	for _, v := range x.Data() {
		acc += float64(v)
	}
	result := cpu.alloc("sum", tensor.Shape{})
	result.Data()[0] = float32(acc)
	return result
}

// SumDim sums along dim. With keepDim the reduced dimension stays as size 1.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	cpu.check("sum_dim", x)
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)
	outer, inner := splitAround(shape, dim)
	size := shape[dim]

	outShape := make(tensor.Shape, 0, len(shape))
	for d, s := range shape {
		switch {
		case d != dim:
			outShape = append(outShape, s)
		case keepDim:
			outShape = append(outShape, 1)
		}
	}

	result := cpu.alloc("sum_dim", outShape)
	in, out := x.Data(), result.Data()
	for o := 0; o < outer; o++ {
		dst := out[o*inner : (o+1)*inner]
		for k := 0; k < size; k++ {
			src := in[(o*size+k)*inner : (o*size+k+1)*inner]
			for i, v := range src {
				dst[i] += v
			}
		}
	}
	return result
}
