package ops

import (
	"github.com/born-ml/fieldproxy/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, target tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(target) {
		return grad
	}
	if len(target) == 0 {
		return backend.Sum(grad)
	}

	// Leading dimensions added by broadcasting.
	for len(grad.Shape()) > len(target) {
		grad = backend.SumDim(grad, 0, false)
	}
	for d, size := range target {
		if size == 1 && grad.Shape()[d] > 1 {
			grad = backend.SumDim(grad, d, true)
		}
	}
	if !grad.Shape().Equal(target) {
		grad = backend.Reshape(grad, target)
	}
	return grad
}

// ones allocates a ones tensor on the backend's device.
func ones(shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	r := zeros(shape, backend)
	data := r.Data()
	for i := range data {
		data[i] = 1
	}
	return r
}

func zeros(shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	r, err := tensor.NewRaw(shape, backend.Device())
	if err != nil {
		panic(err)
	}
	return r
}
