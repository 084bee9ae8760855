package autodiff

import (
	"fmt"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// BackwardCapable is an interface for backends that support backward pass.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// GetTape returns the gradient tape for backward computation.
	GetTape() *GradientTape
}

// GetTape returns the gradient tape (implements BackwardCapable interface).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// Backward computes gradients of t using the backend's tape.
//
// The output gradient is seeded with ones, so for a scalar loss the result
// holds ∂loss/∂x for every recorded tensor x.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x := tensor.Ones(tensor.Shape{2}, backend)
//	y := x.Mul(x).Sum() // y = Σx²
//	gradients, err := autodiff.Backward(y, backend)
//	grad := gradients[x.Raw()] // 2x
func Backward[B BackwardCapable](t *tensor.Tensor[B], backend B) (map[*tensor.RawTensor]*tensor.RawTensor, error) {
	tape := backend.GetTape()
	if tape.NumOps() == 0 {
		return nil, fmt.Errorf("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}

	outputGrad, err := tensor.NewRaw(t.Shape(), backend.Device())
	if err != nil {
		return nil, fmt.Errorf("backward: failed to create output gradient: %w", err)
	}
	data := outputGrad.Data()
	for i := range data {
		data[i] = 1
	}

	return tape.Backward(t.Raw(), outputGrad, backend), nil
}
