package ops

import "github.com/born-ml/fieldproxy/internal/tensor"

// ReshapeOp records a reshape so gradients reach the original tensor.
//
// Example: a Conv2D bias [C_out] reshaped to [1, C_out, 1, 1] for
// broadcasting only receives its gradient through this operation.
type ReshapeOp struct{ base }

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(input, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{newBase(output, input)}
}

// Backward reshapes the gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.inputs[0].Shape())}
}

// TransposeOp represents a transpose operation.
//
// Backward:
//
//	∂L/∂input = transpose(∂L/∂output, inverse_axes)
type TransposeOp struct {
	base
	axes []int
}

// NewTransposeOp creates a new TransposeOp.
func NewTransposeOp(input, output *tensor.RawTensor, axes []int) *TransposeOp {
	return &TransposeOp{base: newBase(output, input), axes: axes}
}

// Backward transposes the gradient with the inverse permutation.
func (op *TransposeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inverse := make([]int, len(op.axes))
	for i, ax := range op.axes {
		inverse[ax] = i
	}
	return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}
}

// NarrowOp represents output = input[..., start:start+length, ...] along dim.
//
// Backward: the gradient is placed back at the slice position and zero elsewhere.
type NarrowOp struct {
	base
	dim, start, length int
}

// NewNarrowOp creates a new NarrowOp. dim must already be normalized.
func NewNarrowOp(input, output *tensor.RawTensor, dim, start, length int) *NarrowOp {
	return &NarrowOp{base: newBase(output, input), dim: dim, start: start, length: length}
}

// Backward pads the gradient with zeros to the input shape.
func (op *NarrowOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.inputs[0].Shape()
	if op.length == shape[op.dim] {
		return []*tensor.RawTensor{outputGrad}
	}

	parts := make([]*tensor.RawTensor, 0, 3)
	if op.start > 0 {
		before := shape.Clone()
		before[op.dim] = op.start
		parts = append(parts, zeros(before, backend))
	}
	parts = append(parts, outputGrad)
	if rest := shape[op.dim] - op.start - op.length; rest > 0 {
		after := shape.Clone()
		after[op.dim] = rest
		parts = append(parts, zeros(after, backend))
	}
	return []*tensor.RawTensor{backend.Cat(parts, op.dim)}
}

// CatOp represents concatenation along dim.
//
// Backward: each input receives the slice of the gradient it contributed.
type CatOp struct {
	base
	dim int
}

// NewCatOp creates a new CatOp. dim must already be normalized.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{base: newBase(output, inputs...), dim: dim}
}

// Backward splits the gradient along dim.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	offset := 0
	for i, in := range op.inputs {
		size := in.Shape()[op.dim]
		grads[i] = backend.Narrow(outputGrad, op.dim, offset, size)
		offset += size
	}
	return grads
}
