// Package ops defines the differentiable operations recorded on a gradient tape.
//
// Each operation remembers its inputs and output during the forward pass and
// maps an output gradient to input gradients during the backward pass. The
// arithmetic is delegated to the backend handed to Backward, so operations
// run wherever the forward pass ran.
//
// Supported operations:
//   - Add, Sub, Mul, Div with broadcasting, AddScalar, MulScalar
//   - MatMul, BatchMatMul
//   - Reshape, Transpose, Narrow, Cat
//   - Sum, SumDim
//   - GELU, Sigmoid, Tanh, Softmax
//   - Conv2D (grouped), ConvTranspose2D, AvgPool2D, InstanceNorm2D
package ops

import "github.com/born-ml/fieldproxy/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The i-th result belongs to Inputs()[i]; a nil entry means no gradient.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// base carries the bookkeeping shared by every operation.
type base struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

func newBase(output *tensor.RawTensor, inputs ...*tensor.RawTensor) base {
	return base{inputs: inputs, output: output}
}

// Inputs returns the operation's inputs.
func (b base) Inputs() []*tensor.RawTensor { return b.inputs }

// Output returns the operation's output.
func (b base) Output() *tensor.RawTensor { return b.output }
