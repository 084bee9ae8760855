package cpu

import (
	"fmt"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Reshape returns a view of t with a different shape. Backends never write
// into operands, so the view can share storage.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	cpu.check("reshape", t)
	if err := newShape.Validate(); err != nil {
		panic(fmt.Sprintf("reshape: invalid shape: %v", err))
	}
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: incompatible shapes: %v -> %v (different number of elements)",
			t.Shape(), newShape))
	}
	return t.View(newShape)
}

// Transpose permutes the dimensions of t. With no axes it reverses them.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	cpu.check("transpose", t)
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: axes length %d != ndim %d", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim {
			panic(fmt.Sprintf("transpose: invalid axis %d for %dD tensor", ax, ndim))
		}
		if seen[ax] {
			panic(fmt.Sprintf("transpose: duplicate axis %d", ax))
		}
		seen[ax] = true
	}

	newShape := make(tensor.Shape, ndim)
	inStrides := t.Strides()
	walk := make([]int, ndim) // input stride for each output dimension
	for i, ax := range axes {
		newShape[i] = shape[ax]
		walk[i] = inStrides[ax]
	}

	result := cpu.alloc("transpose", newShape)
	in, out := t.Data(), result.Data()
	idx := make([]int, ndim)
	off := 0
	for i := range out {
		out[i] = in[off]
		for d := ndim - 1; d >= 0; d-- {
			idx[d]++
			off += walk[d]
			if idx[d] < newShape[d] {
				break
			}
			off -= walk[d] * newShape[d]
			idx[d] = 0
		}
	}
	return result
}

// Narrow copies length slices of t starting at start along dim.
func (cpu *CPUBackend) Narrow(t *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	cpu.check("narrow", t)
	shape := t.Shape()
	dim = shape.NormalizeDim(dim)
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dimension %d of %v",
			start, start+length, dim, shape))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	outer, inner := splitAround(shape, dim)

	result := cpu.alloc("narrow", outShape)
	in, out := t.Data(), result.Data()
	block := length * inner
	for o := 0; o < outer; o++ {
		src := (o*shape[dim] + start) * inner
		copy(out[o*block:(o+1)*block], in[src:src+block])
	}
	return result
}

// Cat concatenates tensors along dim. All other dimensions must match.
func (cpu *CPUBackend) Cat(xs []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(xs) == 0 {
		panic("cat: at least one tensor required")
	}
	cpu.check("cat", xs...)
	base := xs[0].Shape()
	dim = base.NormalizeDim(dim)

	total := 0
	for i, x := range xs {
		s := x.Shape()
		if len(s) != len(base) {
			panic(fmt.Sprintf("cat: tensor %d has rank %d, expected %d", i, len(s), len(base)))
		}
		for d := range s {
			if d != dim && s[d] != base[d] {
				panic(fmt.Sprintf("cat: tensor %d shape %v incompatible with %v along dim %d", i, s, base, d))
			}
		}
		total += s[dim]
	}

	outShape := base.Clone()
	outShape[dim] = total
	outer, inner := splitAround(base, dim)

	result := cpu.alloc("cat", outShape)
	out := result.Data()
	rowOut := total * inner
	offset := 0
	for _, x := range xs {
		block := x.Shape()[dim] * inner
		in := x.Data()
		for o := 0; o < outer; o++ {
			copy(out[o*rowOut+offset:o*rowOut+offset+block], in[o*block:(o+1)*block])
		}
		offset += block
	}
	return result
}

// splitAround returns the element counts before and after dim.
func splitAround(shape tensor.Shape, dim int) (outer, inner int) {
	outer, inner = 1, 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	return outer, inner
}
