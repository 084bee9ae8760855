package cpu

import (
	"fmt"

	"github.com/born-ml/fieldproxy/internal/parallel"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// convGeom holds the derived sizes of a grouped 2D convolution.
type convGeom struct {
	n, cin, h, w     int
	cout, k          int
	stride, pad      int
	groups, cpg, opg int // channels per group in / out
	outH, outW       int
}

func (g convGeom) kk() int      { return g.k * g.k }
func (g convGeom) colRows() int { return g.cpg * g.kk() }
func (g convGeom) outHW() int   { return g.outH * g.outW }

func newConvGeom(op string, input, kernel tensor.Shape, stride, padding, groups int) convGeom {
	if len(input) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(input)))
	}
	if len(kernel) != 4 {
		panic(fmt.Sprintf("%s: kernel must be 4D [C_out,C_in/groups,K,K], got %dD", op, len(kernel)))
	}
	if kernel[2] != kernel[3] {
		panic(fmt.Sprintf("%s: only square kernels are supported, got %dx%d", op, kernel[2], kernel[3]))
	}
	if stride < 1 || padding < 0 || groups < 1 {
		panic(fmt.Sprintf("%s: invalid stride=%d padding=%d groups=%d", op, stride, padding, groups))
	}

	g := convGeom{
		n: input[0], cin: input[1], h: input[2], w: input[3],
		cout: kernel[0], k: kernel[2],
		stride: stride, pad: padding, groups: groups,
	}
	if g.cin%groups != 0 || g.cout%groups != 0 {
		panic(fmt.Sprintf("%s: channels in=%d out=%d not divisible by groups=%d", op, g.cin, g.cout, groups))
	}
	g.cpg, g.opg = g.cin/groups, g.cout/groups
	if kernel[1] != g.cpg {
		panic(fmt.Sprintf("%s: kernel expects %d channels per group, input provides %d", op, kernel[1], g.cpg))
	}

	g.outH = (g.h+2*padding-g.k)/stride + 1
	g.outW = (g.w+2*padding-g.k)/stride + 1
	if g.outH <= 0 || g.outW <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", op, g.outH, g.outW))
	}
	return g
}

// Conv2D performs grouped 2D convolution using im2col + GEMM.
//
// Input shape: [N, C_in, H, W]
// Kernel shape: [C_out, C_in/groups, K, K]
// Output shape: [N, C_out, H_out, W_out]
//
// For every sample and group the input patches are unrolled into a
// [C_in/groups*K*K, H_out*W_out] matrix and multiplied by the group's
// [C_out/groups, C_in/groups*K*K] kernel slice. groups == C_in gives a
// depthwise convolution.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding, groups int) *tensor.RawTensor {
	cpu.check("conv2d", input, kernel)
	g := newConvGeom("conv2d", input.Shape(), kernel.Shape(), stride, padding, groups)

	output := cpu.alloc("conv2d", tensor.Shape{g.n, g.cout, g.outH, g.outW})
	in, w, out := input.Data(), kernel.Data(), output.Data()
	hw, outHW := g.h*g.w, g.outHW()
	wGroup := g.opg * g.colRows()

	parallel.For(g.n, func(n int) {
		col := make([]float32, g.colRows()*outHW)
		for gi := 0; gi < g.groups; gi++ {
			img := in[(n*g.cin+gi*g.cpg)*hw : (n*g.cin+(gi+1)*g.cpg)*hw]
			im2col(col, img, g.cpg, g.h, g.w, g.k, g.stride, g.pad, g.outH, g.outW)
			dst := out[(n*g.cout+gi*g.opg)*outHW : (n*g.cout+(gi+1)*g.opg)*outHW]
			gemm(false, false, g.opg, outHW, g.colRows(), w[gi*wGroup:(gi+1)*wGroup], col, 0, dst)
		}
	}, cpu.par)
	return output
}

// Conv2DBackward computes gradients with respect to input and kernel.
//
//	dInput  = col2im(W_g^T @ dOut_g)
//	dKernel = Σ_n dOut_g @ im2col(x_n)^T
//
// Kernel gradients are accumulated per worker chunk and summed at the end.
func (cpu *CPUBackend) Conv2DBackward(input, kernel, grad *tensor.RawTensor, stride, padding, groups int) (inputGrad, kernelGrad *tensor.RawTensor) {
	cpu.check("conv2d_backward", input, kernel, grad)
	g := newConvGeom("conv2d_backward", input.Shape(), kernel.Shape(), stride, padding, groups)
	if want := (tensor.Shape{g.n, g.cout, g.outH, g.outW}); !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("conv2d_backward: grad shape %v, expected %v", grad.Shape(), want))
	}

	inputGrad = cpu.alloc("conv2d_backward", input.Shape())
	kernelGrad = cpu.alloc("conv2d_backward", kernel.Shape())
	in, w, dOut := input.Data(), kernel.Data(), grad.Data()
	dIn, dW := inputGrad.Data(), kernelGrad.Data()
	hw, outHW := g.h*g.w, g.outHW()
	wGroup := g.opg * g.colRows()

	partial := make([][]float32, parallel.NumChunks(g.n, cpu.par))
	parallel.ForChunks(g.n, func(c, lo, hi int) {
		acc := make([]float32, len(dW))
		col := make([]float32, g.colRows()*outHW)
		dCol := make([]float32, g.colRows()*outHW)
		for n := lo; n < hi; n++ {
			for gi := 0; gi < g.groups; gi++ {
				imgOff := (n*g.cin + gi*g.cpg) * hw
				outOff := (n*g.cout + gi*g.opg) * outHW
				gOut := dOut[outOff : outOff+g.opg*outHW]
				wg := w[gi*wGroup : (gi+1)*wGroup]

				gemm(true, false, g.colRows(), outHW, g.opg, wg, gOut, 0, dCol)
				col2im(dIn[imgOff:imgOff+g.cpg*hw], dCol, g.cpg, g.h, g.w, g.k, g.stride, g.pad, g.outH, g.outW)

				im2col(col, in[imgOff:imgOff+g.cpg*hw], g.cpg, g.h, g.w, g.k, g.stride, g.pad, g.outH, g.outW)
				gemm(false, true, g.opg, g.colRows(), outHW, gOut, col, 1, acc[gi*wGroup:(gi+1)*wGroup])
			}
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

// im2col unrolls img [c, h, w] into col [c*k*k, outH*outW].
// Row (ci, ky, kx) column (oy, ox) reads img[ci, oy*stride-pad+ky, ox*stride-pad+kx],
// or zero when that lands in the padding.
func im2col(col, img []float32, c, h, w, k, stride, pad, outH, outW int) {
	outHW := outH * outW
	for ci := 0; ci < c; ci++ {
		plane := img[ci*h*w : (ci+1)*h*w]
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := col[((ci*k+ky)*k+kx)*outHW : ((ci*k+ky)*k+kx+1)*outHW]
				for oy := 0; oy < outH; oy++ {
					iy := oy*stride - pad + ky
					dst := row[oy*outW : (oy+1)*outW]
					if iy < 0 || iy >= h {
						clear(dst)
						continue
					}
					src := plane[iy*w : (iy+1)*w]
					for ox := range dst {
						ix := ox*stride - pad + kx
						if ix < 0 || ix >= w {
							dst[ox] = 0
						} else {
							dst[ox] = src[ix]
						}
					}
				}
			}
		}
	}
}

// col2im is the adjoint of im2col: it scatter-adds col into img.
func col2im(img, col []float32, c, h, w, k, stride, pad, outH, outW int) {
	outHW := outH * outW
	for ci := 0; ci < c; ci++ {
		plane := img[ci*h*w : (ci+1)*h*w]
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := col[((ci*k+ky)*k+kx)*outHW : ((ci*k+ky)*k+kx+1)*outHW]
				for oy := 0; oy < outH; oy++ {
					iy := oy*stride - pad + ky
					if iy < 0 || iy >= h {
						continue
					}
					dst := plane[iy*w : (iy+1)*w]
					src := row[oy*outW : (oy+1)*outW]
					for ox, v := range src {
						ix := ox*stride - pad + kx
						if ix >= 0 && ix < w {
							dst[ix] += v
						}
					}
				}
			}
		}
	}
}
