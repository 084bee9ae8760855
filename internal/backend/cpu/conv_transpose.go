package cpu

import (
	"fmt"

	"github.com/born-ml/fieldproxy/internal/parallel"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// convTransposeGeom describes a transposed convolution as the adjoint of a
// regular convolution: the transposed output is the convolution's input and
// the transposed input is the convolution's output grid.
type convTransposeGeom struct {
	n, cin, h, w int
	cout, k      int
	stride, pad  int
	outH, outW   int
}

func newConvTransposeGeom(op string, input, kernel tensor.Shape, stride, padding, outputPadding int) convTransposeGeom {
	if len(input) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(input)))
	}
	if len(kernel) != 4 || kernel[2] != kernel[3] {
		panic(fmt.Sprintf("%s: kernel must be square 4D [C_in,C_out,K,K], got %v", op, kernel))
	}
	if kernel[0] != input[1] {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, input[1], kernel[0]))
	}
	if stride < 1 || padding < 0 || outputPadding < 0 || outputPadding >= stride {
		panic(fmt.Sprintf("%s: invalid stride=%d padding=%d output_padding=%d", op, stride, padding, outputPadding))
	}

	g := convTransposeGeom{
		n: input[0], cin: input[1], h: input[2], w: input[3],
		cout: kernel[1], k: kernel[2],
		stride: stride, pad: padding,
	}
	g.outH = (g.h-1)*stride - 2*padding + g.k + outputPadding
	g.outW = (g.w-1)*stride - 2*padding + g.k + outputPadding
	if g.outH <= 0 || g.outW <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d", op, g.outH, g.outW))
	}
	return g
}

// ConvTranspose2D performs a 2D transposed convolution.
//
// Input shape: [N, C_in, H, W]
// Kernel shape: [C_in, C_out, K, K]
// Output shape: [N, C_out, (H-1)*stride - 2*padding + K + output_padding, ...]
//
// Each sample computes W^T @ x_n -> [C_out*K*K, H*W] and scatters the
// columns into the output with col2im.
func (cpu *CPUBackend) ConvTranspose2D(input, kernel *tensor.RawTensor, stride, padding, outputPadding int) *tensor.RawTensor {
	cpu.check("conv_transpose2d", input, kernel)
	g := newConvTransposeGeom("conv_transpose2d", input.Shape(), kernel.Shape(), stride, padding, outputPadding)

	output := cpu.alloc("conv_transpose2d", tensor.Shape{g.n, g.cout, g.outH, g.outW})
	in, w, out := input.Data(), kernel.Data(), output.Data()
	hw, outHW := g.h*g.w, g.outH*g.outW
	colRows := g.cout * g.k * g.k

	parallel.For(g.n, func(n int) {
		col := make([]float32, colRows*hw)
		gemm(true, false, colRows, hw, g.cin, w, in[n*g.cin*hw:(n+1)*g.cin*hw], 0, col)
		col2im(out[n*g.cout*outHW:(n+1)*g.cout*outHW], col, g.cout, g.outH, g.outW, g.k, g.stride, g.pad, g.h, g.w)
	}, cpu.par)
	return output
}

// ConvTranspose2DBackward computes gradients with respect to input and kernel.
//
//	cols    = im2col(dOut_n) over the input grid
//	dInput  = W @ cols
//	dKernel = Σ_n x_n @ cols^T
func (cpu *CPUBackend) ConvTranspose2DBackward(input, kernel, grad *tensor.RawTensor, stride, padding, outputPadding int) (inputGrad, kernelGrad *tensor.RawTensor) {
	cpu.check("conv_transpose2d_backward", input, kernel, grad)
	g := newConvTransposeGeom("conv_transpose2d_backward", input.Shape(), kernel.Shape(), stride, padding, outputPadding)
	if want := (tensor.Shape{g.n, g.cout, g.outH, g.outW}); !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("conv_transpose2d_backward: grad shape %v, expected %v", grad.Shape(), want))
	}

	inputGrad = cpu.alloc("conv_transpose2d_backward", input.Shape())
	kernelGrad = cpu.alloc("conv_transpose2d_backward", kernel.Shape())
	in, w, dOut := input.Data(), kernel.Data(), grad.Data()
	dIn, dW := inputGrad.Data(), kernelGrad.Data()
	hw, outHW := g.h*g.w, g.outH*g.outW
	colRows := g.cout * g.k * g.k

	partial := make([][]float32, parallel.NumChunks(g.n, cpu.par))
	parallel.ForChunks(g.n, func(c, lo, hi int) {
		acc := make([]float32, len(dW))
		col := make([]float32, colRows*hw)
		for n := lo; n < hi; n++ {
			im2col(col, dOut[n*g.cout*outHW:(n+1)*g.cout*outHW], g.cout, g.outH, g.outW, g.k, g.stride, g.pad, g.h, g.w)
			x := in[n*g.cin*hw : (n+1)*g.cin*hw]
			gemm(false, false, g.cin, hw, colRows, w, col, 0, dIn[n*g.cin*hw:(n+1)*g.cin*hw])
			gemm(false, true, g.cin, colRows, hw, x, col, 1, acc)
		}
		partial[c] = acc
	}, cpu.par)

	for _, acc := range partial {
		for i, v := range acc {
			dW[i] += v
		}
	}
	return inputGrad, kernelGrad
}
