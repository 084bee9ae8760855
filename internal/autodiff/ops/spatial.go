package ops

import "github.com/born-ml/fieldproxy/internal/tensor"

// Conv2DOp records a grouped 2D convolution operation for autodiff.
//
// Forward: output = Conv2D(input, kernel, stride, padding, groups)
//
// Backward:
//   - d_input:  transposed convolution of d_output with the kernel
//   - d_kernel: correlation of the input with d_output
//
// References:
//   - "A guide to convolution arithmetic for deep learning" (Dumoulin & Visin, 2016)
type Conv2DOp struct {
	base
	stride, padding, groups int
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding, groups int) *Conv2DOp {
	return &Conv2DOp{base: newBase(output, input, kernel), stride: stride, padding: padding, groups: groups}
}

// Backward computes gradients for Conv2D.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dIn, dK := backend.Conv2DBackward(op.inputs[0], op.inputs[1], outputGrad, op.stride, op.padding, op.groups)
	return []*tensor.RawTensor{dIn, dK}
}

// ConvTranspose2DOp records a 2D transposed convolution.
type ConvTranspose2DOp struct {
	base
	stride, padding, outputPadding int
}

// NewConvTranspose2DOp creates a new ConvTranspose2D operation.
func NewConvTranspose2DOp(input, kernel, output *tensor.RawTensor, stride, padding, outputPadding int) *ConvTranspose2DOp {
	return &ConvTranspose2DOp{
		base:          newBase(output, input, kernel),
		stride:        stride,
		padding:       padding,
		outputPadding: outputPadding,
	}
}

// Backward computes gradients for ConvTranspose2D.
func (op *ConvTranspose2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dIn, dK := backend.ConvTranspose2DBackward(op.inputs[0], op.inputs[1], outputGrad, op.stride, op.padding, op.outputPadding)
	return []*tensor.RawTensor{dIn, dK}
}

// AvgPool2DOp records average pooling.
//
// Backward: each window position receives grad / (k*k).
type AvgPool2DOp struct {
	base
	kernelSize, stride int
}

// NewAvgPool2DOp creates a new AvgPool2D operation.
func NewAvgPool2DOp(input, output *tensor.RawTensor, kernelSize, stride int) *AvgPool2DOp {
	return &AvgPool2DOp{base: newBase(output, input), kernelSize: kernelSize, stride: stride}
}

// Backward computes the input gradient for average pooling.
func (op *AvgPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.AvgPool2DBackward(outputGrad, op.inputs[0].Shape(), op.kernelSize, op.stride)}
}

// InstanceNorm2DOp records per-(sample, channel) normalization.
type InstanceNorm2DOp struct {
	base
	eps float32
}

// NewInstanceNorm2DOp creates a new InstanceNorm2D operation.
func NewInstanceNorm2DOp(input, output *tensor.RawTensor, eps float32) *InstanceNorm2DOp {
	return &InstanceNorm2DOp{base: newBase(output, input), eps: eps}
}

// Backward computes the input gradient for instance normalization.
func (op *InstanceNorm2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.InstanceNorm2DBackward(op.inputs[0], outputGrad, op.eps)}
}
