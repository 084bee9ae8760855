package tensor

// Backend defines the kernels a compute backend must provide.
//
// Implementations:
//   - cpu.CPUBackend: pure Go kernels, gonum BLAS for matrix products
//   - webgpu.Backend: WGSL compute shaders for matmul and elementwise kernels
//   - autodiff.AutodiffBackend: decorator that records operations for backprop
//
// Kernels never modify their operands and panic on shape or device
// violations; callers that need an error validate beforehand.
type Backend interface {
	// Element-wise binary operations with NumPy broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Element-wise operations with a scalar.
	AddScalar(x *RawTensor, s float32) *RawTensor
	MulScalar(x *RawTensor, s float32) *RawTensor

	// MatMul multiplies [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor
	// BatchMatMul multiplies [B, M, K] @ [B, K, N] -> [B, M, N].
	BatchMatMul(a, b *RawTensor) *RawTensor

	// Shape operations.
	Reshape(x *RawTensor, shape Shape) *RawTensor
	Transpose(x *RawTensor, axes ...int) *RawTensor
	Narrow(x *RawTensor, dim, start, length int) *RawTensor
	Cat(xs []*RawTensor, dim int) *RawTensor

	// Reductions.
	Sum(x *RawTensor) *RawTensor // scalar result
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Activations.
	GELU(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor
	Softmax(x *RawTensor) *RawTensor // along the last dimension

	// Spatial operations on [N, C, H, W].
	Conv2D(input, kernel *RawTensor, stride, padding, groups int) *RawTensor
	ConvTranspose2D(input, kernel *RawTensor, stride, padding, outputPadding int) *RawTensor
	AvgPool2D(x *RawTensor, kernelSize, stride int) *RawTensor
	InstanceNorm2D(x *RawTensor, eps float32) *RawTensor

	// Backward kernels used by the autodiff operations.
	Conv2DBackward(input, kernel, grad *RawTensor, stride, padding, groups int) (inputGrad, kernelGrad *RawTensor)
	ConvTranspose2DBackward(input, kernel, grad *RawTensor, stride, padding, outputPadding int) (inputGrad, kernelGrad *RawTensor)
	AvgPool2DBackward(grad *RawTensor, inputShape Shape, kernelSize, stride int) *RawTensor
	InstanceNorm2DBackward(input, grad *RawTensor, eps float32) *RawTensor
	GELUBackward(input, grad *RawTensor) *RawTensor
	SoftmaxBackward(output, grad *RawTensor) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}
