package ops

import "github.com/born-ml/fieldproxy/internal/tensor"

// GELUOp represents the exact GELU activation.
//
// Backward: ∂L/∂x = ∂L/∂y · (Φ(x) + x·φ(x))
type GELUOp struct{ base }

// NewGELUOp creates a new GELUOp.
func NewGELUOp(input, output *tensor.RawTensor) *GELUOp {
	return &GELUOp{newBase(output, input)}
}

// Backward delegates to the backend's GELU derivative kernel.
func (op *GELUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.GELUBackward(op.inputs[0], outputGrad)}
}

// SigmoidOp represents y = σ(x).
//
// Backward: ∂L/∂x = ∂L/∂y · y · (1 - y)
type SigmoidOp struct{ base }

// NewSigmoidOp creates a new SigmoidOp.
func NewSigmoidOp(input, output *tensor.RawTensor) *SigmoidOp {
	return &SigmoidOp{newBase(output, input)}
}

// Backward computes the sigmoid gradient from the saved output.
func (op *SigmoidOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	y := op.output
	oneMinusY := backend.AddScalar(backend.MulScalar(y, -1), 1)
	return []*tensor.RawTensor{backend.Mul(outputGrad, backend.Mul(y, oneMinusY))}
}

// TanhOp represents y = tanh(x).
//
// Backward: ∂L/∂x = ∂L/∂y · (1 - y²)
type TanhOp struct{ base }

// NewTanhOp creates a new TanhOp.
func NewTanhOp(input, output *tensor.RawTensor) *TanhOp {
	return &TanhOp{newBase(output, input)}
}

// Backward computes the tanh gradient from the saved output.
func (op *TanhOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	y := op.output
	oneMinusY2 := backend.AddScalar(backend.MulScalar(backend.Mul(y, y), -1), 1)
	return []*tensor.RawTensor{backend.Mul(outputGrad, oneMinusY2)}
}

// SoftmaxOp represents softmax over the last dimension.
//
// Backward: ∂L/∂x = y · (g - Σ g·y)
type SoftmaxOp struct{ base }

// NewSoftmaxOp creates a new SoftmaxOp.
func NewSoftmaxOp(input, output *tensor.RawTensor) *SoftmaxOp {
	return &SoftmaxOp{newBase(output, input)}
}

// Backward delegates to the backend's softmax Jacobian-vector kernel.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.SoftmaxBackward(op.output, outputGrad)}
}
