package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/fieldproxy/internal/parallel"
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// planeStats returns the mean and 1/sqrt(var+eps) of a plane, using the
// biased variance.
func planeStats(plane []float32, eps float32) (mean, invStd float32) {
	var sum float64
	for _, v := range plane {
		sum += float64(v)
	}
	m := sum / float64(len(plane))
	var sq float64
	for _, v := range plane {
		d := float64(v) - m
		sq += d * d
	}
	variance := sq / float64(len(plane))
	return float32(m), float32(1 / math.Sqrt(variance+float64(eps)))
}

func checkNormInput(op string, shape tensor.Shape) (planes, hw int) {
	if len(shape) != 4 {
		panic(fmt.Sprintf("%s: input must be 4D [N,C,H,W], got %dD", op, len(shape)))
	}
	return shape[0] * shape[1], shape[2] * shape[3]
}

// InstanceNorm2D normalizes every (sample, channel) plane to zero mean and
// unit variance: y = (x - mean) / sqrt(var + eps). No affine parameters.
func (cpu *CPUBackend) InstanceNorm2D(x *tensor.RawTensor, eps float32) *tensor.RawTensor {
	cpu.check("instance_norm2d", x)
	planes, hw := checkNormInput("instance_norm2d", x.Shape())

	result := cpu.alloc("instance_norm2d", x.Shape())
	in, out := x.Data(), result.Data()
	parallel.For(planes, func(p int) {
		src := in[p*hw : (p+1)*hw]
		dst := out[p*hw : (p+1)*hw]
		mean, invStd := planeStats(src, eps)
		for i, v := range src {
			dst[i] = (v - mean) * invStd
		}
	}, cpu.par)
	return result
}

// InstanceNorm2DBackward returns dx = invStd * (g - mean(g) - y*mean(g*y))
// per plane, with y recomputed from input.
func (cpu *CPUBackend) InstanceNorm2DBackward(input, grad *tensor.RawTensor, eps float32) *tensor.RawTensor {
	cpu.check("instance_norm2d_backward", input, grad)
	planes, hw := checkNormInput("instance_norm2d_backward", input.Shape())
	if !grad.Shape().Equal(input.Shape()) {
		panic(fmt.Sprintf("instance_norm2d_backward: grad shape %v, expected %v", grad.Shape(), input.Shape()))
	}

	result := cpu.alloc("instance_norm2d_backward", input.Shape())
	in, g, out := input.Data(), grad.Data(), result.Data()
	parallel.For(planes, func(p int) {
		src := in[p*hw : (p+1)*hw]
		gp := g[p*hw : (p+1)*hw]
		dst := out[p*hw : (p+1)*hw]
		mean, invStd := planeStats(src, eps)

		var sumG, sumGY float64
		for i, v := range src {
			y := (v - mean) * invStd
			sumG += float64(gp[i])
			sumGY += float64(gp[i] * y)
		}
		meanG := float32(sumG / float64(hw))
		meanGY := float32(sumGY / float64(hw))
		for i, v := range src {
			y := (v - mean) * invStd
			dst[i] = invStd * (gp[i] - meanG - y*meanGY)
		}
	}, cpu.par)
	return result
}
