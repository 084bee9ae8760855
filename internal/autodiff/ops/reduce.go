package ops

import "github.com/born-ml/fieldproxy/internal/tensor"

// SumOp represents the sum of all elements.
//
// Backward: every input element receives the scalar output gradient.
type SumOp struct{ base }

// NewSumOp creates a new SumOp.
func NewSumOp(input, output *tensor.RawTensor) *SumOp {
	return &SumOp{newBase(output, input)}
}

// Backward broadcasts the scalar gradient to the input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	g := outputGrad.Data()[0]
	return []*tensor.RawTensor{backend.MulScalar(ones(op.inputs[0].Shape(), backend), g)}
}

// SumDimOp represents a sum along one dimension.
type SumDimOp struct {
	base
	dim     int
	keepDim bool
}

// NewSumDimOp creates a new SumDimOp. dim must already be normalized.
func NewSumDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{base: newBase(output, input), dim: dim, keepDim: keepDim}
}

// Backward broadcasts the gradient back along the reduced dimension.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.inputs[0].Shape()
	kept := shape.Clone()
	kept[op.dim] = 1
	grad := outputGrad
	if !op.keepDim {
		grad = backend.Reshape(outputGrad, kept)
	}
	return []*tensor.RawTensor{backend.Add(zeros(shape, backend), grad)}
}
