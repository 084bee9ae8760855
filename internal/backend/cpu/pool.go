package cpu

import (
	"fmt"

	"github.com/born-ml/fieldproxy/internal/parallel"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

func poolOutput(op string, shape tensor.Shape, kernelSize, stride int) (outH, outW int) {
	if len(shape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(shape)))
	}
	if kernelSize < 1 || stride < 1 {
		panic(fmt.Sprintf("%s: invalid kernel_size=%d stride=%d", op, kernelSize, stride))
	}
	outH = (shape[2]-kernelSize)/stride + 1
	outW = (shape[3]-kernelSize)/stride + 1
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("%s: input %v smaller than kernel %d", op, shape, kernelSize))
	}
	return outH, outW
}

// AvgPool2D averages non-padded kernelSize x kernelSize windows.
//
// Output: [N, C, (H-k)/stride+1, (W-k)/stride+1]
func (cpu *CPUBackend) AvgPool2D(x *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	cpu.check("avgpool2d", x)
	shape := x.Shape()
	outH, outW := poolOutput("avgpool2d", shape, kernelSize, stride)
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]

	result := cpu.alloc("avgpool2d", tensor.Shape{n, c, outH, outW})
	in, out := x.Data(), result.Data()
	scale := 1 / float32(kernelSize*kernelSize)

	parallel.For(n*c, func(p int) {
		plane := in[p*h*w : (p+1)*h*w]
		dst := out[p*outH*outW : (p+1)*outH*outW]
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				var sum float32
				for ky := 0; ky < kernelSize; ky++ {
					row := plane[(oy*stride+ky)*w:]
					for kx := 0; kx < kernelSize; kx++ {
						sum += row[ox*stride+kx]
					}
				}
				dst[oy*outW+ox] = sum * scale
			}
		}
	}, cpu.par)
	return result
}

// AvgPool2DBackward spreads each output gradient evenly over its window.
func (cpu *CPUBackend) AvgPool2DBackward(grad *tensor.RawTensor, inputShape tensor.Shape, kernelSize, stride int) *tensor.RawTensor {
	cpu.check("avgpool2d_backward", grad)
	outH, outW := poolOutput("avgpool2d_backward", inputShape, kernelSize, stride)
	n, c, h, w := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	if want := (tensor.Shape{n, c, outH, outW}); !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("avgpool2d_backward: grad shape %v, expected %v", grad.Shape(), want))
	}

	result := cpu.alloc("avgpool2d_backward", inputShape)
	g, out := grad.Data(), result.Data()
	scale := 1 / float32(kernelSize*kernelSize)

	parallel.For(n*c, func(p int) {
		src := g[p*outH*outW : (p+1)*outH*outW]
		plane := out[p*h*w : (p+1)*h*w]
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				v := src[oy*outW+ox] * scale
				for ky := 0; ky < kernelSize; ky++ {
					row := plane[(oy*stride+ky)*w:]
					for kx := 0; kx < kernelSize; kx++ {
						row[ox*stride+kx] += v
					}
				}
			}
		}
	}, cpu.par)
	return result
}
